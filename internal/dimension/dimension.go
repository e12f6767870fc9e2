// Package dimension maintains the warehouse dimensions. Each loader primes a
// full-table cache of natural key -> surrogate key, inserts rows it has not
// seen, overwrites changed attributes in place (type 1, no history) and
// resolves keys for the fact stage from the cache alone.
package dimension

import (
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// Logger is the minimal logging facility the loaders use.
type Logger interface {
	Printf(format string, v ...any)
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}

// DefaultBatchSize caps rows per insert statement.
const DefaultBatchSize = 1000

// attrHash fingerprints a dimension row's mutable attributes. An unchanged
// hash lets a load skip the overwrite entirely.
func attrHash(parts ...string) string {
	return strconv.FormatUint(xxh3.HashString(strings.Join(parts, "\x1f")), 16)
}

func chunkRows(rows [][]any, size int) [][][]any {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][][]any
	for start := 0; start < len(rows); start += size {
		out = append(out, rows[start:min(start+size, len(rows))])
	}
	return out
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
