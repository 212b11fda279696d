package storage

import (
	"time"
)

// NormalizeValue converts a driver value to the small set of types query
// results carry: nil, int64, float64, bool, string.
//
// Backends must not assume a particular underlying type for scanned values;
// this helper keeps results consistent across drivers.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(t)
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case float32:
		return float64(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
