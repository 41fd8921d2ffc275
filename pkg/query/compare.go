// ABOUTME: Value comparison semantics shared by query operators
// ABOUTME: Numeric coercion across int and float plus deep equality for composites

package query

import "github.com/nainya/docsync/pkg/document"

// Compare orders two values when they are mutually comparable. Numbers
// compare numerically regardless of Go type (JSON decoding yields float64,
// callers pass int literals); strings compare lexicographically. Mixed or
// composite types are not comparable.
func Compare(a, b interface{}) (int, bool) {
	if na, ok := toFloat(a); ok {
		nb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case na < nb:
			return -1, true
		case na > nb:
			return 1, true
		default:
			return 0, true
		}
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case sa < sb:
			return -1, true
		case sa > sb:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

// Equal tests deep equality with numeric coercion
func Equal(a, b interface{}) bool {
	if na, ok := toFloat(a); ok {
		nb, ok := toFloat(b)
		return ok && na == nb
	}
	switch va := a.(type) {
	case nil:
		return b == nil
	case string:
		vb, ok := b.(string)
		return ok && va == vb
	case bool:
		vb, ok := b.(bool)
		return ok && va == vb
	case []interface{}:
		vb, ok := b.([]interface{})
		if !ok || len(va) != len(vb) {
			return false
		}
		for i := range va {
			if !Equal(va[i], vb[i]) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		return equalMaps(va, b)
	case document.Document:
		return equalMaps(va, b)
	default:
		return a == b
	}
}

func equalMaps(a map[string]interface{}, b interface{}) bool {
	vb, ok := asPlainMap(b)
	if !ok || len(a) != len(vb) {
		return false
	}
	for k, av := range a {
		bv, ok := vb[k]
		if !ok || !Equal(av, bv) {
			return false
		}
	}
	return true
}

// asPlainMap normalizes both the plain map type and the named Document type,
// which Clone preserves inside stored document sets
func asPlainMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case document.Document:
		return m, true
	default:
		return nil, false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
