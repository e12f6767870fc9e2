package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NormalizeKey converts a dimension key value to a canonical string form,
// suitable for in-memory cache keys (e.g. "ana@example.com" or "2024-03-02").
//
// Backends must not assume a particular underlying type for keys; this helper
// keeps lookup caches consistent across backends. Dates normalize to their
// calendar day so the time dimension keys identically regardless of the
// driver's scan type.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case time.Time:
		return t.Format("2006-01-02")
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
