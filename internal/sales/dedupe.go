package sales

// Deduplicate collapses records sharing an order ID, keeping the first
// occurrence of each key in the original encounter order. Sources are iterated
// in a fixed configured order upstream, so "first seen wins" is deterministic.
// The removed count is reported alongside the survivors.
func Deduplicate(in []Record) (out []Record, removed int) {
	if len(in) == 0 {
		return nil, 0
	}

	seen := make(map[string]struct{}, len(in))
	out = make([]Record, 0, len(in))

	for _, r := range in {
		if _, dup := seen[r.OrderID]; dup {
			removed++
			continue
		}
		seen[r.OrderID] = struct{}{}
		out = append(out, r)
	}
	return out, removed
}
