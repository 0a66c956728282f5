// internal/entity/view_test.go
package entity

import (
	"context"
	"encoding/json"
	"testing"
)

func TestMapView_Resolve(t *testing.T) {
	view := MapView{
		"status": "active",
		"weight": 42.5,
		"customer": map[string]any{
			"name": "ARAMCO",
			"region": map[string]any{
				"code": "ME",
			},
		},
		"tags": []any{"a", "b"},
	}

	tests := []struct {
		path string
		want any
	}{
		{"status", "active"},
		{"weight", 42.5},
		{"customer.name", "ARAMCO"},
		{"customer.region.code", "ME"},
		{"customer.missing", nil},
		{"missing", nil},
		{"missing.deeper", nil},
		{"status.not_an_object", nil},
		{"tags", []any{"a", "b"}},
		{"", nil},
	}

	for _, tt := range tests {
		got := view.Resolve(tt.path)
		switch want := tt.want.(type) {
		case []any:
			gotList, ok := got.([]any)
			if !ok || len(gotList) != len(want) {
				t.Errorf("Resolve(%q) = %v, want %v", tt.path, got, want)
			}
		default:
			if got != tt.want {
				t.Errorf("Resolve(%q) = %v, want %v", tt.path, got, tt.want)
			}
		}
	}
}

func TestMapView_Resolve_Derived(t *testing.T) {
	view := MapView{
		"total": Derived(func() any { return 99.0 }),
		"nested": map[string]any{
			"computed": func() any { return "value" },
		},
	}

	if got := view.Resolve("total"); got != 99.0 {
		t.Errorf("Resolve(total) = %v, want 99", got)
	}
	if got := view.Resolve("nested.computed"); got != "value" {
		t.Errorf("Resolve(nested.computed) = %v, want value", got)
	}
}

func TestMapView_Resolve_DerivedIntermediate(t *testing.T) {
	view := MapView{
		"relation": Derived(func() any {
			return map[string]any{"name": "linked"}
		}),
	}
	if got := view.Resolve("relation.name"); got != "linked" {
		t.Errorf("Resolve(relation.name) = %v, want linked", got)
	}
}

func TestFromJSON(t *testing.T) {
	view, err := FromJSON(json.RawMessage(`{"a": {"b": 1}}`))
	if err != nil {
		t.Fatalf("FromJSON() error = %v, want nil", err)
	}
	if got := view.Resolve("a.b"); got != 1.0 {
		t.Errorf("Resolve(a.b) = %v, want 1", got)
	}

	if _, err := FromJSON(json.RawMessage(`[1,2]`)); err == nil {
		t.Error("FromJSON(array) error = nil, want error")
	}
	if _, err := FromJSON(json.RawMessage(`not json`)); err == nil {
		t.Error("FromJSON(garbage) error = nil, want error")
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"plain", "plain"},
		{42.0, "42"},
		{42.5, "42.5"},
		{true, "true"},
		{Derived(func() any { return "derived" }), "derived"},
	}

	for _, tt := range tests {
		if got := Stringify(tt.in); got != tt.want {
			t.Errorf("Stringify(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsNull(t *testing.T) {
	if !IsNull(nil) {
		t.Error("IsNull(nil) = false, want true")
	}
	if !IsNull("") {
		t.Error("IsNull(\"\") = false, want true")
	}
	if IsNull("x") {
		t.Error("IsNull(x) = true, want false")
	}
	if IsNull(0.0) {
		t.Error("IsNull(0) = true, want false")
	}
}

func TestMatchesFilter(t *testing.T) {
	view := MapView{
		"region": "EMEA",
		"tier":   2.0,
		"owner":  map[string]any{"id": "u-7"},
	}

	tests := []struct {
		name   string
		filter map[string]any
		want   bool
	}{
		{"single match", map[string]any{"region": "EMEA"}, true},
		{"single miss", map[string]any{"region": "APAC"}, false},
		{"numeric int vs float", map[string]any{"tier": 2}, true},
		{"nested path", map[string]any{"owner.id": "u-7"}, true},
		{"all must match", map[string]any{"region": "EMEA", "tier": 3}, false},
		{"missing field", map[string]any{"absent": "x"}, false},
		{"empty filter", map[string]any{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesFilter(view, tt.filter); got != tt.want {
				t.Errorf("MatchesFilter() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStaticAccessor(t *testing.T) {
	ctx := context.Background()
	acc := NewStaticAccessor()
	acc.Put("order", "o-1", MapView{"status": "open", "amount": 10.0}, true)
	acc.Put("order", "o-2", MapView{"status": "closed", "amount": 20.0}, false)

	val, err := acc.GetField(ctx, "order", "o-1", "status")
	if err != nil || val != "open" {
		t.Errorf("GetField() = %v, %v, want open, nil", val, err)
	}
	if val, _ := acc.GetField(ctx, "order", "missing", "status"); val != nil {
		t.Errorf("GetField(missing) = %v, want nil", val)
	}

	ids, err := acc.ListMatching(ctx, "order", map[string]any{"status": "open"})
	if err != nil || len(ids) != 1 || ids[0] != "o-1" {
		t.Errorf("ListMatching() = %v, %v, want [o-1], nil", ids, err)
	}

	isNew, _ := acc.IsNew(ctx, "order", "o-1")
	if !isNew {
		t.Error("IsNew(o-1) = false, want true")
	}
	isNew, _ = acc.IsNew(ctx, "order", "o-2")
	if isNew {
		t.Error("IsNew(o-2) = true, want false")
	}
}
