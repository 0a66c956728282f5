// internal/engine/evaluate.go
package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/floormgmt/instruct/internal/entity"
	"github.com/floormgmt/instruct/internal/types"
)

/*
 * Condition evaluation.
 *
 * Evaluates one compiled condition against an entity view. The field path
 * resolves through the view (missing segments become null, see
 * internal/entity); the resolved value then meets the operator.
 *
 * Failure policy: a type mismatch or bad regex yields (false, error). The
 * condition counts as failed and the error is captured in the execution
 * log's per-condition detail; it never aborts the rule or the trigger.
 *
 * Determinism: evaluation depends only on the condition and the view's
 * field values. No clocks, no randomness, no shared state.
 */

// ConditionResult is the per-condition snapshot stored in the execution log.
type ConditionResult struct {
	ConditionID string `json:"condition_id"`
	FieldPath   string `json:"field_path"`
	Operator    string `json:"operator"`
	Actual      any    `json:"actual"`
	Expected    any    `json:"expected,omitempty"`
	Group       int    `json:"group"`
	Passed      bool   `json:"passed"`
	Error       string `json:"error,omitempty"`
}

// EvaluateCondition resolves the condition's field path against the view and
// applies the operator. Returns (false, error) on evaluation failure.
func EvaluateCondition(cond CompiledCondition, view entity.View) (bool, error) {
	actual := view.Resolve(cond.FieldPath)

	switch cond.Operator {
	case OpIsNull:
		return entity.IsNull(actual), nil
	case OpIsNotNull:
		return !entity.IsNull(actual), nil

	case OpEq:
		return looseEqual(actual, cond.Value, cond.CaseSensitive), nil
	case OpNeq:
		return !looseEqual(actual, cond.Value, cond.CaseSensitive), nil

	case OpGt, OpGte, OpLt, OpLte:
		c, err := compareOrdered(actual, cond.Value, cond.CaseSensitive)
		if err != nil {
			return false, fmt.Errorf("%s %s: %w", cond.FieldPath, cond.Operator, err)
		}
		switch cond.Operator {
		case OpGt:
			return c > 0, nil
		case OpGte:
			return c >= 0, nil
		case OpLt:
			return c < 0, nil
		default:
			return c <= 0, nil
		}

	case OpContains, OpNotContains, OpStartsWith, OpEndsWith:
		haystack := fold(entityStringify(actual), cond.CaseSensitive)
		needle := fold(entityStringify(cond.Value), cond.CaseSensitive)
		var matched bool
		switch cond.Operator {
		case OpContains, OpNotContains:
			matched = strings.Contains(haystack, needle)
		case OpStartsWith:
			matched = strings.HasPrefix(haystack, needle)
		default:
			matched = strings.HasSuffix(haystack, needle)
		}
		if cond.Operator == OpNotContains {
			return !matched, nil
		}
		return matched, nil

	case OpIn:
		return memberOf(actual, explodeList(cond.Value), cond.CaseSensitive), nil
	case OpNotIn:
		return !memberOf(actual, explodeList(cond.Value), cond.CaseSensitive), nil

	case OpRegex:
		pattern := entityStringify(cond.Value)
		if !cond.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("%w: %v", types.ErrBadRegex, err)
		}
		// Search, not anchor: the pattern matches anywhere in the string form
		return re.FindStringIndex(entityStringify(actual)) != nil, nil

	case OpBetween:
		low, err := compareOrdered(actual, cond.Value, cond.CaseSensitive)
		if err != nil {
			return false, fmt.Errorf("%s between: %w", cond.FieldPath, err)
		}
		high, err := compareOrdered(actual, cond.ValueMax, cond.CaseSensitive)
		if err != nil {
			return false, fmt.Errorf("%s between: %w", cond.FieldPath, err)
		}
		// Inclusive on both ends
		return low >= 0 && high <= 0, nil

	default:
		return false, fmt.Errorf("%w: %d", types.ErrInvalidOperator, cond.Operator)
	}
}
