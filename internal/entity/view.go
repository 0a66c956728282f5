// Package entity provides read-only views over domain entities for rule
// evaluation. The engine never depends on a concrete entity type: each
// domain module supplies a View (or an Accessor producing views) and the
// evaluator walks dot-separated field paths against it.
package entity

import (
	"encoding/json"
	"strings"

	"github.com/floormgmt/instruct/internal/types"
)

/*
 * Field path resolution.
 *
 * Paths are dot-separated segments walked against nested map structures
 * ("customer.region.name"). Missing intermediate segments short-circuit to
 * null rather than erroring: rules routinely probe optional relations and a
 * hole in the data is a condition outcome, not an engine failure.
 *
 * Derived fields: a segment may resolve to a Derived (func() any). It is
 * invoked with no arguments and traversal continues into its result. This
 * mirrors callable/property-style attributes on the source entities.
 */

// Derived is a computed field value. Resolution invokes it with no arguments.
type Derived func() any

// View is a read-only projection of one entity's fields.
type View interface {
	// Resolve walks a dot-separated path and returns the value at the leaf.
	// Missing segments yield nil, never an error.
	Resolve(path string) any
}

// MapView adapts a nested map to a View. Values may be scalars, nested
// map[string]any, []any, or Derived functions.
type MapView map[string]any

// Resolve implements View.
func (m MapView) Resolve(path string) any {
	if path == "" {
		return nil
	}
	segments := strings.Split(path, ".")
	if len(segments) > types.MaxFieldPathDepth {
		return nil
	}

	var current any = map[string]any(m)
	for _, seg := range segments {
		current = deref(current)
		obj, ok := current.(map[string]any)
		if !ok {
			// Scalar or nil at an intermediate position
			return nil
		}
		val, ok := obj[seg]
		if !ok {
			return nil
		}
		current = val
	}
	return deref(current)
}

// deref invokes Derived values so traversal and comparison see the result.
func deref(v any) any {
	if fn, ok := v.(Derived); ok {
		return fn()
	}
	if fn, ok := v.(func() any); ok {
		return fn()
	}
	return v
}

// FromJSON parses an entity payload into a MapView.
// Rejects payloads above MaxEntityPayloadSize and non-object roots.
func FromJSON(payload json.RawMessage) (MapView, error) {
	if len(payload) > types.MaxEntityPayloadSize {
		return nil, types.ErrFieldNotFound
	}
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, err
	}
	return MapView(m), nil
}

// Stringify renders a resolved value the way condition operators compare it:
// strings pass through, numbers use their JSON form, nil becomes "".
func Stringify(v any) string {
	v = deref(v)
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}

// IsNull reports whether a resolved value counts as null for the
// is_null/is_not_null operators: true null and empty string both qualify.
func IsNull(v any) bool {
	v = deref(v)
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}
