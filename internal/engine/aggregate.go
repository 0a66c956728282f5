// internal/engine/aggregate.go
package engine

import (
	"github.com/floormgmt/instruct/internal/entity"
	"github.com/floormgmt/instruct/internal/types"
)

/*
 * Condition group aggregation.
 *
 * Conditions arrive pre-sorted by (condition_group, order) from compilation.
 * Within a group the verdict folds left: start with the first condition's
 * result, then combine with each subsequent condition using the PREVIOUS
 * condition's logical operator. Group verdicts combine with OR, so
 * multi-group rules express a disjunction of conjunctions:
 * (A AND B) OR (C AND D).
 *
 * A rule with no conditions aggregates to true (vacuously in effect).
 *
 * No short-circuit within a group: every condition evaluates so the
 * execution log carries a complete per-condition snapshot. Auditability
 * outranks the saved comparisons here; conditions are cheap and rules are
 * short.
 */

// Aggregate evaluates every condition group against the view and combines
// the verdicts. The returned results cover all evaluated conditions in
// order, including failed and errored ones.
func Aggregate(groups []CompiledGroup, view entity.View) (bool, []ConditionResult) {
	if len(groups) == 0 {
		return true, nil
	}

	var results []ConditionResult
	overall := false

	for _, group := range groups {
		groupVerdict := aggregateGroup(group, view, &results)
		overall = overall || groupVerdict
	}

	return overall, results
}

// aggregateGroup folds one group's conditions left-to-right.
func aggregateGroup(group CompiledGroup, view entity.View, results *[]ConditionResult) bool {
	verdict := true
	connector := types.LogicalAnd

	for i, cond := range group.Conditions {
		passed, err := EvaluateCondition(cond, view)

		result := ConditionResult{
			ConditionID: cond.ConditionID,
			FieldPath:   cond.FieldPath,
			Operator:    cond.Operator.String(),
			Actual:      view.Resolve(cond.FieldPath),
			Expected:    cond.Value,
			Group:       group.Number,
			Passed:      passed,
		}
		if err != nil {
			result.Error = err.Error()
		}
		*results = append(*results, result)

		if i == 0 {
			verdict = passed
		} else if connector == types.LogicalOr {
			verdict = verdict || passed
		} else {
			verdict = verdict && passed
		}
		connector = cond.Connector
	}

	return verdict
}
