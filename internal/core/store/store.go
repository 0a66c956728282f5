// Package store persists rules and execution logs through the named queries
// in internal/core/db. It is the only package that talks SQL; the engine and
// API layers see domain types from internal/types.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/floormgmt/instruct/internal/core/db"
	"github.com/floormgmt/instruct/internal/types"
)

// Store provides rule and log persistence over a Queries instance.
type Store struct {
	q   *db.Queries
	now func() time.Time
}

// New creates a store. The clock is overridable in tests.
func New(q *db.Queries) *Store {
	return &Store{q: q, now: time.Now}
}

// WithClock replaces the store clock, for tests that need fixed timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// ListActiveRules returns all active rules with their conditions, actions and
// scopes attached, ordered by execution_order then code.
func (s *Store) ListActiveRules(ctx context.Context) ([]types.Rule, error) {
	var rules []types.Rule
	if err := s.q.Select(ctx, "list-rules-by-status", &rules, string(types.StatusActive)); err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}

	for i := range rules {
		if err := s.attachChildren(ctx, &rules[i]); err != nil {
			return nil, err
		}
	}
	return rules, nil
}

// RecordExecution appends an execution log entry and bumps the rule's trigger
// counter in one transaction. The counter update is a single SQL increment so
// concurrent evaluations never lose counts.
func (s *Store) RecordExecution(ctx context.Context, entry *types.ExecutionLog) error {
	insertLog, err := s.q.Raw("insert-execution-log")
	if err != nil {
		return err
	}
	bump, err := s.q.Raw("increment-trigger-count")
	if err != nil {
		return err
	}

	tx, err := s.q.DB().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, insertLog,
		entry.LogID, entry.RuleID, entry.RuleCode, entry.EntityKind,
		entry.EntityID, entry.EventName, entry.ActingUser, entry.Passed,
		entry.Blocked, entry.ConditionResults, entry.ActionResults,
		entry.WasOverridden, entry.OverrideReason, entry.OverrideApprover,
		entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert execution log: %w", err)
	}

	if _, err := tx.ExecContext(ctx, bump, entry.CreatedAt, entry.RuleID); err != nil {
		return fmt.Errorf("failed to increment trigger count: %w", err)
	}

	return tx.Commit()
}

// CreateRule inserts a rule with its children. Missing IDs are assigned;
// created_at/updated_at are set from the store clock. A duplicate code maps
// to types.ErrDuplicateCode.
func (s *Store) CreateRule(ctx context.Context, rule *types.Rule) error {
	now := s.now().UTC()
	if rule.RuleID == "" {
		rule.RuleID = types.NewRuleID()
	}
	if rule.Status == "" {
		rule.Status = types.StatusDraft
	}
	rule.CreatedAt = now
	rule.UpdatedAt = now

	insertRule, err := s.q.Raw("insert-rule")
	if err != nil {
		return err
	}

	tx, err := s.q.DB().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, insertRule,
		rule.RuleID, rule.Code, rule.Title, rule.Description,
		rule.ShortDescription, string(rule.RuleType), string(rule.Priority),
		string(rule.Status), rule.IsDefault, rule.IsTemporary,
		rule.ValidFrom, rule.ValidUntil, rule.ExecutionOrder,
		rule.TriggerCount, rule.LastTriggeredAt, rule.CreatedAt, rule.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return types.ErrDuplicateCode
		}
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	if err := s.insertChildren(ctx, tx, rule); err != nil {
		return err
	}

	return tx.Commit()
}

// GetRule loads one rule with children. Returns types.ErrRuleNotFound when
// no row matches.
func (s *Store) GetRule(ctx context.Context, ruleID string) (*types.Rule, error) {
	var rule types.Rule
	if err := s.q.Get(ctx, "get-rule", &rule, ruleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to load rule: %w", err)
	}
	if err := s.attachChildren(ctx, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// GetRuleByCode loads one rule by its unique code, children attached.
func (s *Store) GetRuleByCode(ctx context.Context, code string) (*types.Rule, error) {
	var rule types.Rule
	if err := s.q.Get(ctx, "get-rule-by-code", &rule, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to load rule: %w", err)
	}
	if err := s.attachChildren(ctx, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListRules returns rules without children, optionally filtered by status.
// The list endpoint shows summaries; callers fetch a single rule for detail.
func (s *Store) ListRules(ctx context.Context, status string) ([]types.Rule, error) {
	var rules []types.Rule
	var err error
	if status == "" {
		err = s.q.Select(ctx, "list-rules", &rules)
	} else {
		err = s.q.Select(ctx, "list-rules-by-status", &rules, status)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// UpdateRule rewrites a rule's mutable fields and replaces its children.
// Code, status and trigger counters are not touched here; status changes go
// through UpdateStatus and codes are immutable once assigned.
func (s *Store) UpdateRule(ctx context.Context, rule *types.Rule) error {
	rule.UpdatedAt = s.now().UTC()

	updateRule, err := s.q.Raw("update-rule")
	if err != nil {
		return err
	}

	tx, err := s.q.DB().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, updateRule,
		rule.Title, rule.Description, rule.ShortDescription,
		string(rule.RuleType), string(rule.Priority), rule.IsDefault,
		rule.IsTemporary, rule.ValidFrom, rule.ValidUntil,
		rule.ExecutionOrder, rule.UpdatedAt, rule.RuleID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return types.ErrRuleNotFound
	}

	for _, name := range []string{"delete-conditions", "delete-actions", "delete-scopes"} {
		query, err := s.q.Raw(name)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, rule.RuleID); err != nil {
			return fmt.Errorf("failed to clear rule children: %w", err)
		}
	}

	if err := s.insertChildren(ctx, tx, rule); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateStatus moves a rule along its lifecycle, rejecting transitions the
// lifecycle does not allow with types.ErrInvalidTransition.
func (s *Store) UpdateStatus(ctx context.Context, ruleID string, to types.Status) error {
	var rule types.Rule
	if err := s.q.Get(ctx, "get-rule", &rule, ruleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrRuleNotFound
		}
		return fmt.Errorf("failed to load rule: %w", err)
	}

	if !rule.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", types.ErrInvalidTransition, rule.Status, to)
	}

	if _, err := s.q.Exec(ctx, "update-rule-status", string(to), s.now().UTC(), ruleID); err != nil {
		return fmt.Errorf("failed to update rule status: %w", err)
	}
	return nil
}

// ArchiveRule retires a rule. Rules are never deleted: archiving keeps the
// execution log's rule references resolvable.
func (s *Store) ArchiveRule(ctx context.Context, ruleID string) error {
	return s.UpdateStatus(ctx, ruleID, types.StatusArchived)
}

// LogFilter narrows ListLogs. Zero values mean no constraint; Limit of 0
// defaults to 100.
type LogFilter struct {
	RuleID     string
	EntityKind string
	EntityID   string
	Limit      int
}

// ListLogs returns execution log entries, newest first.
func (s *Store) ListLogs(ctx context.Context, filter LogFilter) ([]types.ExecutionLog, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var logs []types.ExecutionLog
	var err error
	switch {
	case filter.RuleID != "":
		err = s.q.Select(ctx, "list-logs-for-rule", &logs, filter.RuleID, limit)
	case filter.EntityKind != "" && filter.EntityID != "":
		err = s.q.Select(ctx, "list-logs-for-entity", &logs, filter.EntityKind, filter.EntityID, limit)
	default:
		err = s.q.Select(ctx, "list-logs", &logs, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list execution logs: %w", err)
	}
	return logs, nil
}

// GetLog loads one execution log entry.
func (s *Store) GetLog(ctx context.Context, logID string) (*types.ExecutionLog, error) {
	var entry types.ExecutionLog
	if err := s.q.Get(ctx, "get-log", &entry, logID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrLogNotFound
		}
		return nil, fmt.Errorf("failed to load execution log: %w", err)
	}
	return &entry, nil
}

// OverrideLog records a human override of a blocking log entry. Both a reason
// and an approver are required, and the blocking rule's priority must allow
// overrides; mandatory blocks return types.ErrOverrideForbidden.
func (s *Store) OverrideLog(ctx context.Context, logID, reason, approver string) (*types.ExecutionLog, error) {
	if strings.TrimSpace(reason) == "" || strings.TrimSpace(approver) == "" {
		return nil, types.ErrOverrideIncomplete
	}

	entry, err := s.GetLog(ctx, logID)
	if err != nil {
		return nil, err
	}
	if !entry.Blocked {
		return nil, fmt.Errorf("%w: log entry is not a block", types.ErrOverrideForbidden)
	}

	var rule types.Rule
	if err := s.q.Get(ctx, "get-rule", &rule, entry.RuleID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load rule for override: %w", err)
	}
	if !rule.Priority.Overridable() {
		return nil, types.ErrOverrideForbidden
	}

	if _, err := s.q.Exec(ctx, "mark-log-override", true, reason, approver, logID); err != nil {
		return nil, fmt.Errorf("failed to record override: %w", err)
	}

	entry.WasOverridden = true
	entry.OverrideReason = reason
	entry.OverrideApprover = approver
	return entry, nil
}

// attachChildren loads a rule's conditions, actions and scopes.
func (s *Store) attachChildren(ctx context.Context, rule *types.Rule) error {
	if err := s.q.Select(ctx, "list-conditions", &rule.Conditions, rule.RuleID); err != nil {
		return fmt.Errorf("failed to load conditions for rule %s: %w", rule.RuleID, err)
	}
	if err := s.q.Select(ctx, "list-actions", &rule.Actions, rule.RuleID); err != nil {
		return fmt.Errorf("failed to load actions for rule %s: %w", rule.RuleID, err)
	}
	if err := s.q.Select(ctx, "list-scopes", &rule.Scopes, rule.RuleID); err != nil {
		return fmt.Errorf("failed to load scopes for rule %s: %w", rule.RuleID, err)
	}
	return nil
}

// insertChildren writes a rule's conditions, actions and scopes inside tx,
// assigning IDs and back-references as needed.
func (s *Store) insertChildren(ctx context.Context, tx execer, rule *types.Rule) error {
	insertCondition, err := s.q.Raw("insert-condition")
	if err != nil {
		return err
	}
	insertAction, err := s.q.Raw("insert-action")
	if err != nil {
		return err
	}
	insertScope, err := s.q.Raw("insert-scope")
	if err != nil {
		return err
	}

	for i := range rule.Conditions {
		c := &rule.Conditions[i]
		if c.ConditionID == "" {
			c.ConditionID = types.NewConditionID()
		}
		c.RuleID = rule.RuleID
		if c.LogicalOperator == "" {
			c.LogicalOperator = types.LogicalAnd
		}
		if _, err := tx.ExecContext(ctx, insertCondition,
			c.ConditionID, c.RuleID, c.TargetKind, c.FieldPath, c.Operator,
			c.Value, c.ValueMax, c.CaseSensitive, string(c.LogicalOperator),
			c.ConditionGroup, c.SortOrder,
		); err != nil {
			return fmt.Errorf("failed to insert condition: %w", err)
		}
	}

	for i := range rule.Actions {
		a := &rule.Actions[i]
		if a.ActionID == "" {
			a.ActionID = types.NewActionID()
		}
		a.RuleID = rule.RuleID
		if _, err := tx.ExecContext(ctx, insertAction,
			a.ActionID, a.RuleID, a.ActionType, a.Parameters,
			a.MessageTemplate, a.TargetField, a.ValueExpression,
			a.Severity, a.SortOrder, a.StopPropagation,
		); err != nil {
			return fmt.Errorf("failed to insert action: %w", err)
		}
	}

	for i := range rule.Scopes {
		sc := &rule.Scopes[i]
		if sc.ScopeID == "" {
			sc.ScopeID = types.NewScopeID()
		}
		sc.RuleID = rule.RuleID
		if _, err := tx.ExecContext(ctx, insertScope,
			sc.ScopeID, sc.RuleID, string(sc.ScopeType), sc.TargetKind,
			sc.TargetID, sc.FieldFilter, sc.AppliesToNewOnly,
		); err != nil {
			return fmt.Errorf("failed to insert scope: %w", err)
		}
	}

	return nil
}

// execer is satisfied by *sqlx.Tx and *sqlx.DB.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// isUniqueViolation recognizes unique constraint errors from both drivers.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
