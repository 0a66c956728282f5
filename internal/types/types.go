// Package types provides domain models shared across instruct components.
//
// Zero-dependency design: types.go, rules.go and errors.go use only the
// standard library. ID utilities in ids.go import uuid but are isolated so
// embedding callers can avoid the dependency.
//
// Enum values are stored as strings: the rule tables are edited by operators
// and read by reporting tools, so readable values beat compact integers.
// Parse helpers at the storage/API boundary reject unknown values.
package types

import "strings"

// RuleType classifies a rule by the business concern it enforces.
type RuleType string

const (
	RuleTypeTechnical   RuleType = "technical"
	RuleTypeQuality     RuleType = "quality"
	RuleTypeSafety      RuleType = "safety"
	RuleTypeLogistics   RuleType = "logistics"
	RuleTypeCommercial  RuleType = "commercial"
	RuleTypeOperational RuleType = "operational"
	RuleTypeRegulatory  RuleType = "regulatory"
	RuleTypeMaintenance RuleType = "maintenance"
)

// Priority orders rules within the same execution_order slot and decides
// whether a blocking verdict can be overridden by a human operator.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityNormal    Priority = "normal"
	PriorityHigh      Priority = "high"
	PriorityCritical  Priority = "critical"
	PriorityMandatory Priority = "mandatory"
)

// Rank returns the numeric ordering weight of a priority (higher wins ties).
// Unknown priorities rank below low so malformed rows never outrank valid ones.
func (p Priority) Rank() int {
	switch p {
	case PriorityMandatory:
		return 5
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Overridable reports whether a block produced under this priority may be
// bypassed by a human with a recorded reason and approver.
func (p Priority) Overridable() bool {
	return p != PriorityMandatory
}

// Status tracks a rule through its lifecycle. Only active rules evaluate.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusInReview Status = "in_review"
	StatusApproved Status = "approved"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusArchived Status = "archived"
)

// CanTransition reports whether a status change follows the rule lifecycle:
// draft -> in_review -> approved -> active, with active <-> inactive and any
// state able to archive. Archived is terminal.
func (s Status) CanTransition(to Status) bool {
	if s == StatusArchived {
		return false
	}
	if to == StatusArchived {
		return true
	}
	switch s {
	case StatusDraft:
		return to == StatusInReview
	case StatusInReview:
		return to == StatusApproved || to == StatusDraft
	case StatusApproved:
		return to == StatusActive || to == StatusDraft
	case StatusActive:
		return to == StatusInactive
	case StatusInactive:
		return to == StatusActive
	default:
		return false
	}
}

// LogicalOperator connects a condition to the next one in its group.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// ScopeType marks a target scope as widening or narrowing rule applicability.
type ScopeType string

const (
	ScopeInclude ScopeType = "include"
	ScopeExclude ScopeType = "exclude"
)

// ParseRuleType validates a stored rule type string.
func ParseRuleType(s string) (RuleType, error) {
	switch t := RuleType(strings.ToLower(s)); t {
	case RuleTypeTechnical, RuleTypeQuality, RuleTypeSafety, RuleTypeLogistics,
		RuleTypeCommercial, RuleTypeOperational, RuleTypeRegulatory, RuleTypeMaintenance:
		return t, nil
	}
	return "", ErrInvalidRuleType
}

// ParsePriority validates a stored priority string.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(s)); p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical, PriorityMandatory:
		return p, nil
	}
	return "", ErrInvalidPriority
}

// ParseStatus validates a stored status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(s)); st {
	case StatusDraft, StatusInReview, StatusApproved, StatusActive, StatusInactive, StatusArchived:
		return st, nil
	}
	return "", ErrInvalidStatus
}
