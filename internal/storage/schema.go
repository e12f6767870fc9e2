package storage

// Warehouse table and column names. The star schema is fixed; keeping the
// names here lets the loaders and every backend agree without a shared DDL
// model.
const (
	TableCustomer = "dim_customer"
	TableProduct  = "dim_product"
	TableTime     = "dim_time"
	TableStatus   = "dim_status"
	TableFact     = "fact_sales"

	ColCustomerID = "customer_id"
	ColProductID  = "product_id"
	ColTimeID     = "time_id"
	ColStatusID   = "status_id"
	ColFactID     = "sale_id"

	// Dimension natural keys.
	ColEmail       = "email"
	ColProductName = "name"
	ColDate        = "date"
	ColStatusName  = "name"

	// Fact natural key.
	ColOrderID = "order_id"

	// SCD1 attribute hash column carried by the mutable dimensions.
	ColRowHash = "row_hash"
)
