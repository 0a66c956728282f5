// internal/engine/compile.go
package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/floormgmt/instruct/internal/types"
)

/*
 * Rule compilation and validation.
 *
 * Compiles types.Rule to CompiledRule with parsed operators, decoded value
 * literals, grouped conditions and ordered actions. Compilation moves error
 * detection to rule creation time: the management API validates through
 * Compile before persisting, and the engine skips (with a warning) any
 * stored rule that no longer compiles rather than failing the trigger.
 *
 * Value literals: the stored value is decoded as JSON where possible
 * (numbers, booleans, lists, objects) and kept as the raw string otherwise.
 * "ARAMCO" and ARAMCO both mean the string ARAMCO; [1,2,3] means a list.
 *
 * Grouping: conditions sort by (condition_group, sort_order) and split into
 * groups. Each condition's logical operator connects it to the NEXT
 * condition in its group; groups combine with OR (see aggregate.go).
 */

// Operator identifies a condition comparison.
type Operator int

const (
	OpUnspecified Operator = iota
	OpEq
	OpNeq
	OpGt
	OpGte
	OpLt
	OpLte
	OpContains
	OpNotContains
	OpStartsWith
	OpEndsWith
	OpIn
	OpNotIn
	OpIsNull
	OpIsNotNull
	OpRegex
	OpBetween
)

var operatorNames = map[string]Operator{
	"eq":           OpEq,
	"neq":          OpNeq,
	"gt":           OpGt,
	"gte":          OpGte,
	"lt":           OpLt,
	"lte":          OpLte,
	"contains":     OpContains,
	"not_contains": OpNotContains,
	"starts_with":  OpStartsWith,
	"ends_with":    OpEndsWith,
	"in":           OpIn,
	"not_in":       OpNotIn,
	"is_null":      OpIsNull,
	"is_not_null":  OpIsNotNull,
	"regex":        OpRegex,
	"between":      OpBetween,
}

// ParseOperator converts a stored operator name to its enum value.
func ParseOperator(s string) (Operator, error) {
	if op, ok := operatorNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return op, nil
	}
	return OpUnspecified, fmt.Errorf("%w: %q", types.ErrInvalidOperator, s)
}

// String returns the stored name of the operator.
func (op Operator) String() string {
	for name, o := range operatorNames {
		if o == op {
			return name
		}
	}
	return "unspecified"
}

// ActionFamily groups action types by dispatch target.
type ActionFamily string

const (
	FamilyDisplay  ActionFamily = "display"
	FamilyControl  ActionFamily = "control"
	FamilyNotify   ActionFamily = "notify"
	FamilyData     ActionFamily = "data"
	FamilyWorkflow ActionFamily = "workflow"
	FamilyValidate ActionFamily = "validate"
	FamilyLog      ActionFamily = "log"
	FamilyUI       ActionFamily = "ui"
	FamilyExternal ActionFamily = "external"
)

// actionKinds lists the permitted subtypes per family. An empty subtype is
// allowed only where a single obvious default exists.
var actionKinds = map[ActionFamily][]string{
	FamilyDisplay:  {"message", "warning", "error", "info"},
	FamilyControl:  {"prevent", "require_confirmation", "require_approval", "require_override"},
	FamilyNotify:   {"email", "sms", "system"},
	FamilyData:     {"set_field", "calculate_field", "increment_counter"},
	FamilyWorkflow: {"change_status", "assign_user", "create_task", "enqueue"},
	FamilyValidate: {"min", "max", "pattern", "range"},
	FamilyLog:      {"audit", "custom"},
	FamilyUI:       {"highlight", "disable", "hide", "show"},
	FamilyExternal: {"webhook", "api"},
}

// ParseActionType splits "family.kind" and validates both parts.
func ParseActionType(s string) (ActionFamily, string, error) {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(s)), ".", 2)
	family := ActionFamily(parts[0])
	kinds, ok := actionKinds[family]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", types.ErrInvalidActionType, s)
	}
	if len(parts) == 1 {
		// Bare family: validate and log carry a usable default
		switch family {
		case FamilyValidate:
			return family, "range", nil
		case FamilyLog:
			return family, "audit", nil
		}
		return "", "", fmt.Errorf("%w: %q (missing kind)", types.ErrInvalidActionType, s)
	}
	for _, k := range kinds {
		if k == parts[1] {
			return family, parts[1], nil
		}
	}
	return "", "", fmt.Errorf("%w: %q", types.ErrInvalidActionType, s)
}

// CompiledCondition is a pre-processed condition ready for evaluation.
type CompiledCondition struct {
	ConditionID   string
	TargetKind    string
	FieldPath     string
	Operator      Operator
	Value         any // decoded literal
	ValueMax      any // decoded literal, between only
	CaseSensitive bool
	Connector     types.LogicalOperator // connects to the NEXT condition in the group
	Group         int
}

// CompiledGroup is an ordered chain of conditions folded left-to-right.
type CompiledGroup struct {
	Number     int
	Conditions []CompiledCondition
}

// CompiledAction is a pre-processed action ready for dispatch.
type CompiledAction struct {
	ActionID        string
	Family          ActionFamily
	Kind            string
	Params          map[string]any
	MessageTemplate string
	TargetField     string
	ValueExpression string
	Severity        string
	StopPropagation bool
}

// CompiledScope is a pre-processed target scope. A malformed field filter is
// carried as FilterErr so scope resolution can fail closed per rule.
type CompiledScope struct {
	ScopeType  types.ScopeType
	TargetKind string
	TargetID   string
	Filter     map[string]any
	FilterErr  error
	NewOnly    bool
}

// CompiledRule is fully pre-processed and ready for evaluation.
type CompiledRule struct {
	RuleID         string
	Code           string
	Title          string
	RuleType       types.RuleType
	Priority       types.Priority
	Status         types.Status
	IsDefault      bool
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	ExecutionOrder int
	Groups         []CompiledGroup
	Actions        []CompiledAction
	Scopes         []CompiledScope

	kinds map[string]bool // entity kinds referenced by conditions and scopes
}

// CurrentlyValid mirrors types.Rule.CurrentlyValid on the compiled form.
func (r *CompiledRule) CurrentlyValid(asOf time.Time) bool {
	if r.Status != types.StatusActive {
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

// AppliesToKind reports whether the rule references the entity kind. A rule
// that names no kinds anywhere applies to every kind.
func (r *CompiledRule) AppliesToKind(kind string) bool {
	if len(r.kinds) == 0 {
		return true
	}
	return r.kinds[kind]
}

// Compile validates and pre-processes a rule for evaluation.
func Compile(rule *types.Rule) (*CompiledRule, error) {
	compiled := &CompiledRule{
		RuleID:         rule.RuleID,
		Code:           rule.Code,
		Title:          rule.Title,
		RuleType:       rule.RuleType,
		Priority:       rule.Priority,
		Status:         rule.Status,
		IsDefault:      rule.IsDefault,
		ValidFrom:      rule.ValidFrom,
		ValidUntil:     rule.ValidUntil,
		ExecutionOrder: rule.ExecutionOrder,
		kinds:          make(map[string]bool),
	}

	conditions := make([]types.Condition, len(rule.Conditions))
	copy(conditions, rule.Conditions)
	sort.SliceStable(conditions, func(i, j int) bool {
		if conditions[i].ConditionGroup != conditions[j].ConditionGroup {
			return conditions[i].ConditionGroup < conditions[j].ConditionGroup
		}
		return conditions[i].SortOrder < conditions[j].SortOrder
	})

	for _, cond := range conditions {
		cc, err := compileCondition(cond)
		if err != nil {
			return nil, fmt.Errorf("condition %s: %w", cond.ConditionID, err)
		}
		if cc.TargetKind != "" {
			compiled.kinds[cc.TargetKind] = true
		}
		n := len(compiled.Groups)
		if n == 0 || compiled.Groups[n-1].Number != cond.ConditionGroup {
			compiled.Groups = append(compiled.Groups, CompiledGroup{Number: cond.ConditionGroup})
			n++
		}
		compiled.Groups[n-1].Conditions = append(compiled.Groups[n-1].Conditions, cc)
	}

	actions := make([]types.Action, len(rule.Actions))
	copy(actions, rule.Actions)
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].SortOrder < actions[j].SortOrder
	})

	for _, act := range actions {
		ca, err := compileAction(act)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", act.ActionID, err)
		}
		compiled.Actions = append(compiled.Actions, ca)
	}

	for _, scope := range rule.Scopes {
		cs := compileScope(scope)
		if cs.ScopeType == types.ScopeInclude && cs.TargetKind != "" {
			compiled.kinds[cs.TargetKind] = true
		}
		compiled.Scopes = append(compiled.Scopes, cs)
	}

	return compiled, nil
}

// compileCondition parses the operator and decodes value literals.
// Between requires value_max. Regex patterns are NOT compiled here: a bad
// pattern is a per-condition evaluation failure, not a load failure.
func compileCondition(cond types.Condition) (CompiledCondition, error) {
	op, err := ParseOperator(cond.Operator)
	if err != nil {
		return CompiledCondition{}, err
	}

	connector := cond.LogicalOperator
	if connector != types.LogicalOr {
		connector = types.LogicalAnd
	}

	cc := CompiledCondition{
		ConditionID:   cond.ConditionID,
		TargetKind:    cond.TargetKind,
		FieldPath:     cond.FieldPath,
		Operator:      op,
		Value:         parseLiteral(cond.Value),
		CaseSensitive: cond.CaseSensitive,
		Connector:     connector,
		Group:         cond.ConditionGroup,
	}

	if op == OpBetween {
		if strings.TrimSpace(cond.ValueMax) == "" {
			return CompiledCondition{}, types.ErrMissingValueMax
		}
		cc.ValueMax = parseLiteral(cond.ValueMax)
	}

	if op == OpIn || op == OpNotIn {
		if list, ok := cc.Value.([]any); ok && len(list) > types.MaxInListValues {
			return CompiledCondition{}, fmt.Errorf("in list exceeds %d values", types.MaxInListValues)
		}
	}

	return cc, nil
}

// compileAction parses the action type and decodes the parameter object.
func compileAction(act types.Action) (CompiledAction, error) {
	family, kind, err := ParseActionType(act.ActionType)
	if err != nil {
		return CompiledAction{}, err
	}

	params := map[string]any{}
	if strings.TrimSpace(act.Parameters) != "" {
		if err := json.Unmarshal([]byte(act.Parameters), &params); err != nil {
			return CompiledAction{}, fmt.Errorf("parameters: %w", err)
		}
	}

	return CompiledAction{
		ActionID:        act.ActionID,
		Family:          family,
		Kind:            kind,
		Params:          params,
		MessageTemplate: act.MessageTemplate,
		TargetField:     act.TargetField,
		ValueExpression: act.ValueExpression,
		Severity:        act.Severity,
		StopPropagation: act.StopPropagation,
	}, nil
}

// compileScope decodes the field filter, recording (not raising) parse
// failures so resolution can fail closed for just the affected rule.
func compileScope(scope types.TargetScope) CompiledScope {
	cs := CompiledScope{
		ScopeType:  scope.ScopeType,
		TargetKind: scope.TargetKind,
		TargetID:   scope.TargetID,
		NewOnly:    scope.AppliesToNewOnly,
	}
	if cs.ScopeType != types.ScopeExclude {
		cs.ScopeType = types.ScopeInclude
	}
	if strings.TrimSpace(scope.FieldFilter) != "" {
		var filter map[string]any
		if err := json.Unmarshal([]byte(scope.FieldFilter), &filter); err != nil {
			cs.FilterErr = fmt.Errorf("%w: %v", types.ErrBadFieldFilter, err)
		} else {
			cs.Filter = filter
		}
	}
	return cs
}

// parseLiteral decodes a stored condition value: JSON where parseable
// (numbers, booleans, lists, null), raw string otherwise. Empty means nil.
func parseLiteral(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v
	}
	return raw
}

// ValidateRule runs the checks the management API applies before persisting:
// enum fields parse, conditions and actions compile, and regex patterns are
// compilable (rejected up front even though evaluation would tolerate them).
func ValidateRule(rule *types.Rule) error {
	if strings.TrimSpace(rule.Code) == "" {
		return fmt.Errorf("rule code required")
	}
	if _, err := types.ParseRuleType(string(rule.RuleType)); err != nil {
		return err
	}
	if _, err := types.ParsePriority(string(rule.Priority)); err != nil {
		return err
	}
	if _, err := types.ParseStatus(string(rule.Status)); err != nil {
		return err
	}
	compiled, err := Compile(rule)
	if err != nil {
		return err
	}
	for _, group := range compiled.Groups {
		for _, cond := range group.Conditions {
			if cond.Operator == OpRegex {
				pattern := entityStringify(cond.Value)
				if _, err := regexp.Compile(pattern); err != nil {
					return fmt.Errorf("%w: %v", types.ErrBadRegex, err)
				}
			}
		}
	}
	return nil
}
