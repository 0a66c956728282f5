package entity

import (
	"context"
	"encoding/json"
	"sync"
)

// Accessor is the engine's window into domain entity storage. Each domain
// module (or the trigger caller) supplies an implementation; the engine
// consumes it for scope field filters and creation-event checks.
type Accessor interface {
	// GetField returns the value at a dot-separated path of an entity, or
	// nil if the entity or the path is missing.
	GetField(ctx context.Context, kind, id, path string) (any, error)

	// ListMatching returns ids of entities of a kind whose fields satisfy
	// the filter (equality per key, dot paths allowed).
	ListMatching(ctx context.Context, kind string, filter map[string]any) ([]string, error)

	// IsNew reports whether the entity is being created by the current
	// operation (used by applies_to_new_only scopes).
	IsNew(ctx context.Context, kind, id string) (bool, error)
}

// StaticAccessor is a map-backed Accessor holding entity snapshots in
// memory. The HTTP trigger API registers the inline entity payload here;
// tests use it directly.
type StaticAccessor struct {
	mu       sync.RWMutex
	entities map[string]map[string]MapView // kind -> id -> view
	created  map[string]map[string]bool    // kind -> id -> is-new flag
}

// NewStaticAccessor returns an empty in-memory accessor.
func NewStaticAccessor() *StaticAccessor {
	return &StaticAccessor{
		entities: make(map[string]map[string]MapView),
		created:  make(map[string]map[string]bool),
	}
}

// Put registers an entity snapshot.
func (a *StaticAccessor) Put(kind, id string, view MapView, isNew bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.entities[kind] == nil {
		a.entities[kind] = make(map[string]MapView)
		a.created[kind] = make(map[string]bool)
	}
	a.entities[kind][id] = view
	a.created[kind][id] = isNew
}

// GetField implements Accessor.
func (a *StaticAccessor) GetField(ctx context.Context, kind, id, path string) (any, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	view, ok := a.entities[kind][id]
	if !ok {
		return nil, nil
	}
	return view.Resolve(path), nil
}

// ListMatching implements Accessor.
func (a *StaticAccessor) ListMatching(ctx context.Context, kind string, filter map[string]any) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var ids []string
	for id, view := range a.entities[kind] {
		if MatchesFilter(view, filter) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// IsNew implements Accessor.
func (a *StaticAccessor) IsNew(ctx context.Context, kind, id string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.created[kind][id], nil
}

// MatchesFilter reports whether every filter entry equals the value at its
// path in the view. String comparison is exact; numbers compare by value so
// JSON integers and floats interoperate.
func MatchesFilter(view View, filter map[string]any) bool {
	for path, want := range filter {
		got := view.Resolve(path)
		if !looseEqual(got, want) {
			return false
		}
	}
	return true
}

func looseEqual(a, b any) bool {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
		return false
	}
	return Stringify(a) == Stringify(b) && (a != nil) == (b != nil)
}

func asFloat(v any) (float64, bool) {
	switch n := deref(v).(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
