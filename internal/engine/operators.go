// internal/engine/operators.go
package engine

import (
	"strconv"
	"strings"

	"github.com/floormgmt/instruct/internal/entity"
	"github.com/floormgmt/instruct/internal/types"
)

/*
 * Operator comparison primitives.
 *
 * Equality is lenient: numeric operands (including numeric strings) compare
 * by value so JSON floats, integers and "10" interoperate; everything else
 * compares by string form with case folding unless the condition is
 * case-sensitive. Ordered comparison (gt/gte/lt/lte/between) is strict:
 * operands must both be numeric or both be plain strings, otherwise the
 * comparison errors and the condition fails with the error recorded.
 *
 * Why function-based: the sixteen operators share three comparison
 * primitives; a switch over functions stays smaller than sixteen interface
 * implementations with near-identical bodies.
 */

func entityStringify(v any) string {
	return entity.Stringify(v)
}

// fold lower-cases s unless the condition demands case sensitivity.
func fold(s string, caseSensitive bool) string {
	if caseSensitive {
		return s
	}
	return strings.ToLower(s)
}

// toNumber converts numeric types and numeric strings to float64.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		trimmed := strings.TrimSpace(n)
		if trimmed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// looseEqual performs equality with numeric coercion and case folding.
func looseEqual(actual, expected any, caseSensitive bool) bool {
	if na, ok := toNumber(actual); ok {
		if ne, ok := toNumber(expected); ok {
			return na == ne
		}
	}
	if ab, ok := actual.(bool); ok {
		if eb, ok := expected.(bool); ok {
			return ab == eb
		}
	}
	return fold(entityStringify(actual), caseSensitive) == fold(entityStringify(expected), caseSensitive)
}

// compareOrdered returns -1/0/1 for actual vs expected, or ErrTypeMismatch
// when the operands are not comparable under an ordered operator.
func compareOrdered(actual, expected any, caseSensitive bool) (int, error) {
	na, aNum := toNumber(actual)
	ne, eNum := toNumber(expected)
	if aNum && eNum {
		switch {
		case na < ne:
			return -1, nil
		case na > ne:
			return 1, nil
		default:
			return 0, nil
		}
	}

	as, aStr := actual.(string)
	es, eStr := expected.(string)
	if aStr && eStr {
		return strings.Compare(fold(as, caseSensitive), fold(es, caseSensitive)), nil
	}

	return 0, types.ErrTypeMismatch
}

// explodeList normalizes an in/not_in comparison value: a literal list is
// used as-is, a string is split on commas with whitespace trimmed, anything
// else becomes a single-element list.
func explodeList(v any) []any {
	switch list := v.(type) {
	case nil:
		return nil
	case []any:
		return list
	case string:
		parts := strings.Split(list, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out
	default:
		return []any{v}
	}
}

// memberOf reports whether actual equals any list element under looseEqual.
func memberOf(actual any, list []any, caseSensitive bool) bool {
	for _, elem := range list {
		if looseEqual(actual, elem, caseSensitive) {
			return true
		}
	}
	return false
}
