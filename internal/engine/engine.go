// internal/engine/engine.go
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/floormgmt/instruct/internal/entity"
	"github.com/floormgmt/instruct/internal/types"
)

/*
 * Engine facade: the trigger API.
 *
 * One Evaluate call per external event. The engine fetches the compiled
 * active rule set (cached), selects and orders candidates for the entity
 * kind, gates each through scope resolution, aggregates its conditions,
 * executes actions on pass, and writes exactly one execution log record per
 * evaluated rule either way. A rule whose executed actions included
 * stop_propagation halts the pass.
 *
 * Concurrency: Evaluate is safe for concurrent use across independent
 * triggers. The only shared mutable state is the rule cache (lock-guarded)
 * and the persisted counters, which the store increments atomically in SQL.
 * Rules within one trigger evaluate strictly in order.
 *
 * Failure modes: a store that cannot produce the rule set is an engine
 * fatal error. fail_mode=closed (default) surfaces it to the caller so the
 * triggering operation fails closed; fail_mode=open logs it and returns an
 * empty outcome so the operation proceeds unguarded. Per-condition,
 * per-action and per-scope failures never escalate past their rule.
 */

// Store is the persistence surface the engine consumes.
type Store interface {
	// ListActiveRules returns all rules in active status with their
	// conditions, actions and scopes attached.
	ListActiveRules(ctx context.Context) ([]types.Rule, error)

	// RecordExecution appends one execution log record and atomically
	// increments the rule's trigger counter in the same logical operation.
	RecordExecution(ctx context.Context, log *types.ExecutionLog) error
}

// Trigger is one external event submitted for evaluation.
type Trigger struct {
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id"`
	EventName  string          `json:"event"`
	ActingUser string          `json:"acting_user,omitempty"`
	IsNew      bool            `json:"is_new"`
	Entity     json.RawMessage `json:"entity"`

	// View overrides Entity when set; used by in-process callers whose
	// entities carry derived fields.
	View entity.View `json:"-"`
}

// Outcome is the verdict the caller must honor before completing the
// triggering operation.
type Outcome struct {
	Blocked         bool               `json:"blocked"`
	BlockReasons    []string           `json:"block_reasons,omitempty"`
	Overridable     bool               `json:"overridable"`
	DisplayMessages []Message          `json:"display_messages,omitempty"`
	FieldMutations  map[string]any     `json:"field_mutations,omitempty"`
	UIHints         map[string]string  `json:"ui_hints,omitempty"`
	Validations     []ValidationResult `json:"validations,omitempty"`
	EvaluatedRules  int                `json:"evaluated_rules"`
	MatchedRules    []string           `json:"matched_rules,omitempty"`

	stopped   bool
	blockSeen bool
}

// Config tunes the engine.
type Config struct {
	CacheTTL       time.Duration
	WebhookTimeout time.Duration
	FailOpen       bool // fail_mode=open: proceed unguarded when rules are unreadable
}

// Engine evaluates instruction rules against triggering events.
type Engine struct {
	store    Store
	cache    *ruleCache
	executor *Executor
	failOpen bool
	log      *zap.SugaredLogger
	now      func() time.Time
}

// New builds an engine. notifier, workflow and directory may be nil; the
// corresponding action families then record errors instead of effects.
func New(store Store, cfg Config, notifier Notifier, workflow Workflow, directory Directory, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Engine{
		store:    store,
		cache:    newRuleCache(ttl),
		executor: NewExecutor(notifier, workflow, directory, cfg.WebhookTimeout, log),
		failOpen: cfg.FailOpen,
		log:      log,
		now:      time.Now,
	}
}

// Invalidate drops the cached rule set. The management API calls this after
// any rule mutation so edits take effect on the next evaluation.
func (e *Engine) Invalidate() {
	e.cache.invalidate()
}

// Evaluate runs all applicable rules for the trigger and returns the merged
// outcome. Callers must honor Blocked before completing the operation.
func (e *Engine) Evaluate(ctx context.Context, trig Trigger) (*Outcome, error) {
	view := trig.View
	if view == nil {
		var err error
		view, err = entity.FromJSON(trig.Entity)
		if err != nil {
			return nil, fmt.Errorf("entity payload: %w", err)
		}
	}

	rules, err := e.activeRules(ctx)
	if err != nil {
		if e.failOpen {
			e.log.Errorw("rule set unreadable, failing open", "error", err)
			return &Outcome{}, nil
		}
		return nil, fmt.Errorf("rule set unreadable: %w", err)
	}

	out := &Outcome{}
	asOf := e.now()

	for _, rule := range Select(rules, trig.EntityKind, asOf) {
		inScope, scopeErr := InScope(rule, trig.EntityKind, trig.EntityID, view, trig.IsNew)
		if scopeErr != nil {
			e.log.Warnw("scope resolution failed, rule skipped",
				"rule", rule.Code, "error", scopeErr)
		}
		if !inScope {
			continue
		}

		passed, condResults := Aggregate(effectiveGroups(rule, trig.EntityKind), view)
		out.EvaluatedRules++

		var actResults []ActionResult
		blocked := false
		if passed {
			actResults, blocked = e.executor.ExecuteAll(ctx, rule, trig, view, out)
			out.MatchedRules = append(out.MatchedRules, rule.Code)
		}

		e.record(ctx, rule, trig, passed, blocked, condResults, actResults)

		if out.stopped {
			break
		}
	}

	return out, nil
}

// activeRules returns the compiled rule set, consulting the cache first.
// Rules that fail to compile are skipped with a warning: one corrupted rule
// must not take the whole engine down.
func (e *Engine) activeRules(ctx context.Context) ([]*CompiledRule, error) {
	if cached := e.cache.get(); cached != nil {
		return cached, nil
	}

	stored, err := e.store.ListActiveRules(ctx)
	if err != nil {
		return nil, err
	}

	compiled := make([]*CompiledRule, 0, len(stored))
	for i := range stored {
		rule, err := Compile(&stored[i])
		if err != nil {
			e.log.Warnw("rule does not compile, skipped",
				"rule", stored[i].Code, "error", err)
			continue
		}
		compiled = append(compiled, rule)
	}

	e.cache.set(compiled)
	return compiled, nil
}

// record writes the execution log entry for one evaluated rule. Exactly one
// record per selector pass, pass or fail. A write failure is logged and
// swallowed: losing one audit row must not block the caller's operation.
func (e *Engine) record(ctx context.Context, rule *CompiledRule, trig Trigger, passed, blocked bool, condResults []ConditionResult, actResults []ActionResult) {
	condJSON, err := json.Marshal(condResults)
	if err != nil {
		condJSON = []byte("[]")
	}
	actJSON, err := json.Marshal(actResults)
	if err != nil {
		actJSON = []byte("[]")
	}

	entry := &types.ExecutionLog{
		LogID:            types.NewLogID(),
		RuleID:           rule.RuleID,
		RuleCode:         rule.Code,
		EntityKind:       trig.EntityKind,
		EntityID:         trig.EntityID,
		EventName:        trig.EventName,
		ActingUser:       trig.ActingUser,
		Passed:           passed,
		Blocked:          blocked,
		ConditionResults: string(condJSON),
		ActionResults:    string(actJSON),
		CreatedAt:        e.now().UTC(),
	}

	if err := e.store.RecordExecution(ctx, entry); err != nil {
		e.log.Errorw("execution log write failed",
			"rule", rule.Code, "entity", trig.EntityKind+"/"+trig.EntityID, "error", err)
	}
}
