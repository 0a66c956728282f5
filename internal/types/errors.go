package types

import "errors"

// Sentinel errors for instruct operations.
var (
	// ErrInvalidRuleType indicates an unknown rule type string.
	ErrInvalidRuleType = errors.New("invalid rule type")

	// ErrInvalidPriority indicates an unknown priority string.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrInvalidStatus indicates an unknown status string.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidOperator indicates an unknown condition operator.
	ErrInvalidOperator = errors.New("invalid operator")

	// ErrInvalidActionType indicates an unknown action type.
	ErrInvalidActionType = errors.New("invalid action type")

	// ErrInvalidTransition indicates a status change outside the rule lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrFieldNotFound indicates a field path could not be resolved.
	ErrFieldNotFound = errors.New("field not found")

	// ErrTypeMismatch indicates operands incomparable under the operator.
	ErrTypeMismatch = errors.New("operand type mismatch")

	// ErrBadRegex indicates a regex condition with an uncompilable pattern.
	ErrBadRegex = errors.New("invalid regex pattern")

	// ErrMissingValueMax indicates a between condition without an upper bound.
	ErrMissingValueMax = errors.New("between operator requires value_max")

	// ErrBadFieldFilter indicates a scope with a malformed field filter.
	// Scope resolution fails closed: the rule is treated as out of scope.
	ErrBadFieldFilter = errors.New("malformed scope field filter")

	// ErrRuleNotFound indicates a rule lookup by id or code found nothing.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrLogNotFound indicates an execution log lookup found nothing.
	ErrLogNotFound = errors.New("execution log not found")

	// ErrDuplicateCode indicates a rule code collision on create.
	ErrDuplicateCode = errors.New("rule code already exists")

	// ErrOverrideForbidden indicates an override attempt on a mandatory block.
	ErrOverrideForbidden = errors.New("mandatory block cannot be overridden")

	// ErrOverrideIncomplete indicates an override without reason or approver.
	ErrOverrideIncomplete = errors.New("override requires reason and approver")
)

// Resource limits enforced by the engine to bound evaluation cost.
const (
	// MaxFieldPathDepth prevents runaway traversal through nested views.
	// 16 segments handles deeply nested relations (customer.region.manager...).
	MaxFieldPathDepth = 16

	// MaxInListValues limits in/not_in list size to keep membership checks linear.
	MaxInListValues = 256

	// MaxEntityPayloadSize limits trigger payloads to prevent OOM during
	// concurrent evaluation. 1MB covers typical entity snapshots.
	MaxEntityPayloadSize = 1024 * 1024
)
