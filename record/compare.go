package record

import "reflect"

// identical reports whether a and b are the same value under the
// structural-sharing discipline jsonpath maintains: unchanged subtrees
// are literally the same map/slice, not merely equal ones. It never
// compares two maps or two slices with ==, which would panic; map and
// slice identity is instead checked via their backing pointer.
func identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok {
			return false
		}
		return reflect.ValueOf(av).Pointer() == reflect.ValueOf(bv).Pointer()
	case []any:
		bv, ok := b.([]any)
		if !ok {
			return false
		}
		return reflect.ValueOf(av).Pointer() == reflect.ValueOf(bv).Pointer()
	default:
		return a == b
	}
}
