package sales

// Consolidate synthesizes full sale records from order-detail lines by joining
// them against the extracted customer and product sets, keyed by their source
// IDs. Lines whose foreign keys have no match still produce a record with
// UNKNOWN placeholders rather than failing; normalization and the dimension
// sentinels downstream absorb them.
//
// First occurrence wins when a source reports the same customer or product ID
// twice, matching the deterministic source iteration order.
func Consolidate(details []OrderDetail, customers []CustomerRecord, products []ProductRecord) []Record {
	if len(details) == 0 {
		return nil
	}

	custByID := make(map[int64]CustomerRecord, len(customers))
	for _, c := range customers {
		if c.SourceID <= 0 {
			continue
		}
		if _, ok := custByID[c.SourceID]; !ok {
			custByID[c.SourceID] = c
		}
	}

	prodByID := make(map[int64]ProductRecord, len(products))
	for _, p := range products {
		if p.SourceID <= 0 {
			continue
		}
		if _, ok := prodByID[p.SourceID]; !ok {
			prodByID[p.SourceID] = p
		}
	}

	out := make([]Record, 0, len(details))
	for _, d := range details {
		r := Record{
			OrderID:  d.OrderID,
			Quantity: d.Quantity,
			Price:    d.Price,
			SaleDate: d.SaleDate,
			Status:   d.Status,
		}

		if c, ok := custByID[d.CustomerID]; ok {
			r.CustomerName = c.Name
			r.CustomerSurname = c.Surname
			r.CustomerEmail = c.Email
		} else {
			r.CustomerName = UnknownName
		}

		if p, ok := prodByID[d.ProductID]; ok {
			r.ProductName = p.Name
			r.Category = p.Category
		} else {
			r.ProductName = UnknownName
		}

		out = append(out, r)
	}
	return out
}
