// internal/engine/scope.go
package engine

import (
	"github.com/floormgmt/instruct/internal/entity"
	"github.com/floormgmt/instruct/internal/types"
)

/*
 * Scope resolution.
 *
 * Decides whether a rule applies to the triggering entity before any
 * condition evaluates. Include scopes widen, exclude scopes veto:
 *
 *   - No include scopes for the entity's kind: in scope by default.
 *   - Otherwise the entity must match at least one include scope, either by
 *     specific (kind, id) or by field filter.
 *   - Matching any exclude scope puts the rule out of scope regardless.
 *   - Scopes flagged applies_to_new_only are ignored unless the trigger is
 *     a creation event.
 *
 * Fail-closed: a malformed field filter makes the whole rule out of scope
 * for this trigger. Applying a rule whose boundary cannot be parsed would
 * fire it unpredictably; skipping it is the safe failure.
 */

// InScope reports whether the rule applies to the triggering entity.
// The returned error, when non-nil, names the malformed scope filter that
// forced the fail-closed verdict; the boolean is false in that case.
func InScope(rule *CompiledRule, kind, id string, view entity.View, isNew bool) (bool, error) {
	includeMatched := false
	includeSeen := false

	for _, scope := range rule.Scopes {
		if scope.TargetKind != "" && scope.TargetKind != kind {
			continue
		}
		if scope.NewOnly && !isNew {
			continue
		}
		if scope.FilterErr != nil {
			return false, scope.FilterErr
		}

		matched := scopeMatches(scope, id, view)

		if scope.ScopeType == types.ScopeExclude {
			if matched {
				return false, nil
			}
			continue
		}

		includeSeen = true
		if matched {
			includeMatched = true
		}
	}

	if !includeSeen {
		return true, nil
	}
	return includeMatched, nil
}

// scopeMatches tests one scope against the entity. A scope with neither a
// specific target nor a filter matches every entity of its kind.
func scopeMatches(scope CompiledScope, id string, view entity.View) bool {
	if scope.TargetID != "" {
		return scope.TargetID == id
	}
	if scope.Filter != nil {
		return entity.MatchesFilter(view, scope.Filter)
	}
	return true
}
