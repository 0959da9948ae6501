package valuepath

import (
	"encoding/json"
	"math"
)

// Equal reports structural JSON-value equality between a and b: same
// type, recursively equal. Numeric values are compared as 64-bit floats
// regardless of whether they arrived as json.Number, float64, or int, per
// spec.md §4.4 ("implementations SHOULD compare as 64-bit floats when
// both sides are numeric").
func Equal(a, b interface{}) bool {
	af, aIsNum := asFloat(a)
	bf, bIsNum := asFloat(b)
	if aIsNum && bIsNum {
		if math.IsNaN(af) || math.IsNaN(bf) {
			return false
		}
		return af == bf
	}

	switch at := a.(type) {
	case nil:
		return b == nil
	case bool:
		bb, ok := b.(bool)
		return ok && at == bb
	case string:
		bs, ok := b.(string)
		return ok && at == bs
	case []interface{}:
		bs, ok := b.([]interface{})
		if !ok || len(at) != len(bs) {
			return false
		}
		for i := range at {
			if !Equal(at[i], bs[i]) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		bm, ok := b.(map[string]interface{})
		if !ok || len(at) != len(bm) {
			return false
		}
		for k, v := range at {
			bv, exists := bm[k]
			if !exists || !Equal(v, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// asFloat attempts to coerce v to a 64-bit float, reporting success.
func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

// AsFloat64 exposes numeric coercion for the comparison operators in
// pkg/condition.
func AsFloat64(v interface{}) (float64, bool) {
	return asFloat(v)
}
