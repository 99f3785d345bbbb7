package datastore

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// KeyOf returns a comparable key for an identifier so that values of different
// numeric types, json.Number and []byte compare by value.
func KeyOf(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return floatKey(f)
		}
		return n.String()
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return uintKey(uint64(n))
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return uintKey(n)
	case float32:
		return floatKey(float64(n))
	case float64:
		return floatKey(n)
	case []byte:
		return string(n)
	case string, bool:
		return n
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

func uintKey(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return strconv.FormatUint(u, 10)
}

func floatKey(f float64) any {
	if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
		return int64(f)
	}
	return f
}
