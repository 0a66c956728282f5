// internal/engine/selector.go
package engine

import (
	"sort"
	"time"
)

/*
 * Rule selection and ordering.
 *
 * Filters the compiled rule set down to rules that are currently valid
 * (active status, inside the validity window or always-on) and reference
 * the triggering entity kind, then orders them for evaluation:
 *
 *   1. execution_order ascending (lower runs first)
 *   2. priority descending (mandatory > critical > high > normal > low)
 *   3. code ascending (stable tiebreak across restarts)
 *
 * Scope resolution is deliberately NOT applied here: it needs the entity
 * view and the is-new flag, which belong to the trigger. The engine gates
 * each selected rule through InScope before evaluating it.
 */

// Select returns the ordered candidate rules for a trigger on the given
// entity kind at the given instant.
func Select(rules []*CompiledRule, kind string, asOf time.Time) []*CompiledRule {
	selected := make([]*CompiledRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.CurrentlyValid(asOf) {
			continue
		}
		if !rule.AppliesToKind(kind) {
			continue
		}
		selected = append(selected, rule)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		a, b := selected[i], selected[j]
		if a.ExecutionOrder != b.ExecutionOrder {
			return a.ExecutionOrder < b.ExecutionOrder
		}
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra > rb
		}
		return a.Code < b.Code
	})

	return selected
}

// effectiveGroups filters a rule's condition groups to conditions that
// target the triggering kind (or no kind). Conditions written against other
// entity kinds are inert for this trigger; empty groups drop out entirely.
func effectiveGroups(rule *CompiledRule, kind string) []CompiledGroup {
	groups := make([]CompiledGroup, 0, len(rule.Groups))
	for _, group := range rule.Groups {
		filtered := CompiledGroup{Number: group.Number}
		for _, cond := range group.Conditions {
			if cond.TargetKind == "" || cond.TargetKind == kind {
				filtered.Conditions = append(filtered.Conditions, cond)
			}
		}
		if len(filtered.Conditions) > 0 {
			groups = append(groups, filtered)
		}
	}
	return groups
}
