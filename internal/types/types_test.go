// internal/types/types_test.go
package types

import (
	"testing"
	"time"
)

func TestPriority_Rank(t *testing.T) {
	tests := []struct {
		priority Priority
		want     int
	}{
		{PriorityMandatory, 5},
		{PriorityCritical, 4},
		{PriorityHigh, 3},
		{PriorityNormal, 2},
		{PriorityLow, 1},
		{Priority("bogus"), 0},
	}

	for _, tt := range tests {
		if got := tt.priority.Rank(); got != tt.want {
			t.Errorf("Rank(%q) = %d, want %d", tt.priority, got, tt.want)
		}
	}
}

func TestPriority_Overridable(t *testing.T) {
	if PriorityMandatory.Overridable() {
		t.Error("Overridable(mandatory) = true, want false")
	}
	for _, p := range []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical} {
		if !p.Overridable() {
			t.Errorf("Overridable(%q) = false, want true", p)
		}
	}
}

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusDraft, StatusInReview, true},
		{StatusDraft, StatusActive, false},
		{StatusInReview, StatusApproved, true},
		{StatusInReview, StatusDraft, true},
		{StatusApproved, StatusActive, true},
		{StatusApproved, StatusDraft, true},
		{StatusApproved, StatusInactive, false},
		{StatusActive, StatusInactive, true},
		{StatusActive, StatusApproved, false},
		{StatusInactive, StatusActive, true},
		{StatusInactive, StatusDraft, false},
		// Anything can archive; archived is terminal
		{StatusDraft, StatusArchived, true},
		{StatusActive, StatusArchived, true},
		{StatusArchived, StatusActive, false},
		{StatusArchived, StatusArchived, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestParseHelpers(t *testing.T) {
	if _, err := ParseRuleType("Safety"); err != nil {
		t.Errorf("ParseRuleType(Safety) error = %v, want nil", err)
	}
	if _, err := ParseRuleType("nope"); err == nil {
		t.Error("ParseRuleType(nope) error = nil, want ErrInvalidRuleType")
	}
	if _, err := ParsePriority("MANDATORY"); err != nil {
		t.Errorf("ParsePriority(MANDATORY) error = %v, want nil", err)
	}
	if _, err := ParseStatus("in_review"); err != nil {
		t.Errorf("ParseStatus(in_review) error = %v, want nil", err)
	}
	if _, err := ParseStatus("deleted"); err == nil {
		t.Error("ParseStatus(deleted) error = nil, want ErrInvalidStatus")
	}
}

func TestRule_CurrentlyValid(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name string
		rule Rule
		want bool
	}{
		{"active no window", Rule{Status: StatusActive}, true},
		{"inactive", Rule{Status: StatusInactive}, false},
		{"draft", Rule{Status: StatusDraft}, false},
		{"inside window", Rule{Status: StatusActive, ValidFrom: &past, ValidUntil: &future}, true},
		{"before window", Rule{Status: StatusActive, ValidFrom: &future}, false},
		{"after window", Rule{Status: StatusActive, ValidUntil: &past}, false},
		{"default ignores window", Rule{Status: StatusActive, IsDefault: true, ValidUntil: &past}, true},
		{"default still needs active", Rule{Status: StatusInactive, IsDefault: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.CurrentlyValid(now); got != tt.want {
				t.Errorf("CurrentlyValid() = %v, want %v", got, tt.want)
			}
		})
	}
}
