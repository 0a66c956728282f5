// internal/types/rules.go
package types

import "time"

/*
 * Domain types for instruction rules.
 *
 * Provides Rule, Condition, Action, TargetScope and ExecutionLog structures
 * used by internal/engine for compilation and evaluation and by
 * internal/core/store for persistence. These types are wire-format agnostic;
 * the store maps them to SQL rows, the API to JSON.
 *
 * Key types:
 *   - Rule: named, versioned unit combining conditions, actions and scopes
 *   - Condition: single comparison against a field of a triggering entity
 *   - Action: side effect executed when a rule's conditions pass
 *   - TargetScope: restriction on which entities a rule fires for
 *   - ExecutionLog: append-only audit record of one evaluation
 *
 * Condition and action value fields hold structured literals as stored text
 * (JSON where parseable, raw string otherwise); parsing happens during rule
 * compilation in internal/engine.
 */

// Rule is a named, versioned business rule owning its conditions, actions
// and target scopes (1:N, cascade-delete with the rule).
type Rule struct {
	RuleID           string     `db:"rule_id" json:"rule_id"`
	Code             string     `db:"code" json:"code"`
	Title            string     `db:"title" json:"title"`
	Description      string     `db:"description" json:"description,omitempty"`
	ShortDescription string     `db:"short_description" json:"short_description,omitempty"`
	RuleType         RuleType   `db:"rule_type" json:"rule_type"`
	Priority         Priority   `db:"priority" json:"priority"`
	Status           Status     `db:"status" json:"status"`
	IsDefault        bool       `db:"is_default" json:"is_default"`
	IsTemporary      bool       `db:"is_temporary" json:"is_temporary"`
	ValidFrom        *time.Time `db:"valid_from" json:"valid_from,omitempty"`
	ValidUntil       *time.Time `db:"valid_until" json:"valid_until,omitempty"`
	ExecutionOrder   int        `db:"execution_order" json:"execution_order"`
	TriggerCount     int64      `db:"trigger_count" json:"trigger_count"`
	LastTriggeredAt  *time.Time `db:"last_triggered_at" json:"last_triggered_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`

	Conditions []Condition   `json:"conditions,omitempty"`
	Actions    []Action      `json:"actions,omitempty"`
	Scopes     []TargetScope `json:"scopes,omitempty"`
}

// CurrentlyValid reports whether the rule may evaluate at the given instant:
// status must be active and, unless the rule is always-on (is_default), the
// instant must fall inside the validity window. Open-ended bounds allowed.
func (r *Rule) CurrentlyValid(asOf time.Time) bool {
	if r.Status != StatusActive {
		return false
	}
	if r.IsDefault {
		return true
	}
	if r.ValidFrom != nil && asOf.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && asOf.After(*r.ValidUntil) {
		return false
	}
	return true
}

// Condition is one comparison within a rule. Conditions are grouped: within
// a group they chain left-to-right via each condition's own LogicalOperator
// (which connects it to the NEXT condition); distinct groups combine with OR.
type Condition struct {
	ConditionID     string          `db:"condition_id" json:"condition_id"`
	RuleID          string          `db:"rule_id" json:"rule_id"`
	TargetKind      string          `db:"target_kind" json:"target_kind"`
	FieldPath       string          `db:"field_path" json:"field_path"`
	Operator        string          `db:"operator" json:"operator"`
	Value           string          `db:"value" json:"value"`
	ValueMax        string          `db:"value_max" json:"value_max,omitempty"`
	CaseSensitive   bool            `db:"case_sensitive" json:"case_sensitive"`
	LogicalOperator LogicalOperator `db:"logical_operator" json:"logical_operator"`
	ConditionGroup  int             `db:"condition_group" json:"condition_group"`
	SortOrder       int             `db:"sort_order" json:"order"`
}

// Action is one effect to produce when a rule's conditions pass. ActionType
// is "family.kind" (e.g. "control.prevent", "notify.email", "data.set_field");
// Parameters holds the family-specific payload as a JSON object.
type Action struct {
	ActionID        string `db:"action_id" json:"action_id"`
	RuleID          string `db:"rule_id" json:"rule_id"`
	ActionType      string `db:"action_type" json:"action_type"`
	Parameters      string `db:"parameters" json:"parameters,omitempty"`
	MessageTemplate string `db:"message_template" json:"message_template,omitempty"`
	TargetField     string `db:"target_field" json:"target_field,omitempty"`
	ValueExpression string `db:"value_expression" json:"value_expression,omitempty"`
	Severity        string `db:"severity" json:"severity,omitempty"`
	SortOrder       int    `db:"sort_order" json:"order"`
	StopPropagation bool   `db:"stop_propagation" json:"stop_propagation"`
}

// TargetScope restricts which entities a rule fires for. Either TargetID
// names a specific entity of TargetKind, or FieldFilter holds a JSON object
// predicate over entity attributes; neither is required. A rule with no
// include scopes for a kind applies to all entities of that kind.
type TargetScope struct {
	ScopeID          string    `db:"scope_id" json:"scope_id"`
	RuleID           string    `db:"rule_id" json:"rule_id"`
	ScopeType        ScopeType `db:"scope_type" json:"scope_type"`
	TargetKind       string    `db:"target_kind" json:"target_kind"`
	TargetID         string    `db:"target_id" json:"target_id,omitempty"`
	FieldFilter      string    `db:"field_filter" json:"field_filter,omitempty"`
	AppliesToNewOnly bool      `db:"applies_to_new_only" json:"applies_to_new_only"`
}

// ExecutionLog is the append-only audit record of one rule evaluation against
// one trigger. Condition and action results are snapshots serialized as JSON;
// they stay intact even if the rule is later edited or archived.
type ExecutionLog struct {
	LogID            string    `db:"log_id" json:"log_id"`
	RuleID           string    `db:"rule_id" json:"rule_id"`
	RuleCode         string    `db:"rule_code" json:"rule_code"`
	EntityKind       string    `db:"entity_kind" json:"entity_kind"`
	EntityID         string    `db:"entity_id" json:"entity_id"`
	EventName        string    `db:"event_name" json:"event_name"`
	ActingUser       string    `db:"acting_user" json:"acting_user,omitempty"`
	Passed           bool      `db:"passed" json:"passed"`
	Blocked          bool      `db:"blocked" json:"blocked"`
	ConditionResults string    `db:"condition_results" json:"condition_results,omitempty"`
	ActionResults    string    `db:"action_results" json:"action_results,omitempty"`
	WasOverridden    bool      `db:"was_overridden" json:"was_overridden"`
	OverrideReason   string    `db:"override_reason" json:"override_reason,omitempty"`
	OverrideApprover string    `db:"override_approver" json:"override_approver,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
