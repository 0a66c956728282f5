// internal/engine/actions.go
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/floormgmt/instruct/internal/entity"
)

/*
 * Action execution.
 *
 * Runs a passed rule's actions strictly in order and folds their effects
 * into the trigger outcome. Dispatch is by action family:
 *
 *   display   user-facing message payloads only
 *   control   blocking verdicts the caller must honor; prevent additionally
 *             skips the rule's remaining actions
 *   notify    fan-out through the Notifier collaborator (fire-and-forget)
 *   data      mutations of the in-flight entity payload; the caller persists
 *   workflow  status/assignment/task requests to the owning domain module
 *   validate  pass/fail with a message, never blocking by itself
 *   log       audit note, always succeeds
 *   ui        presentation hints keyed by target field
 *   external  outbound webhook with a bounded timeout; failure is isolated
 *             unless the action is marked critical
 *
 * An action error is recorded and execution continues, with two exceptions:
 * control.prevent returns immediately (remaining actions marked skipped)
 * and a failed critical external call stops the rest of the rule's actions.
 */

// ActionResult is the per-action snapshot stored in the execution log.
type ActionResult struct {
	ActionID   string `json:"action_id"`
	ActionType string `json:"action_type"`
	Status     string `json:"status"` // ok, error, skipped
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	Blocking   bool   `json:"blocking,omitempty"`
}

// Message is a user-facing display payload.
type Message struct {
	Severity string `json:"severity"`
	Text     string `json:"text"`
}

// ValidationResult reports one validate action's verdict.
type ValidationResult struct {
	Field   string `json:"field"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// Notifier delivers messages to recipients. Fire-and-forget: delivery
// failures are logged, never surfaced to the rule evaluation result.
type Notifier interface {
	Notify(ctx context.Context, recipients []string, channel, message string) error
}

// TaskSpec describes a task a workflow action asks the domain to create.
type TaskSpec struct {
	Title      string `json:"title"`
	AssignedTo string `json:"assigned_to,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	DueDate    string `json:"due_date,omitempty"`
}

// Workflow is the consumed interface of the domain module that owns the
// triggering entity's lifecycle.
type Workflow interface {
	ChangeStatus(ctx context.Context, kind, id, newStatus string) error
	Assign(ctx context.Context, kind, id, userID string) error
	CreateTask(ctx context.Context, spec TaskSpec) error
	Enqueue(ctx context.Context, queue string, payload map[string]any) error
}

// Executor dispatches compiled actions to their side effects.
type Executor struct {
	notifier       Notifier
	workflow       Workflow
	directory      Directory
	client         *http.Client
	webhookTimeout time.Duration
	log            *zap.SugaredLogger
}

// NewExecutor wires the executor's collaborators. Any of notifier, workflow
// and directory may be nil; the corresponding actions then record an error
// without failing the rule. A nil client gets a default with the webhook
// timeout applied per call.
func NewExecutor(notifier Notifier, workflow Workflow, directory Directory, webhookTimeout time.Duration, log *zap.SugaredLogger) *Executor {
	if webhookTimeout <= 0 {
		webhookTimeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Executor{
		notifier:       notifier,
		workflow:       workflow,
		directory:      directory,
		client:         &http.Client{Timeout: webhookTimeout},
		webhookTimeout: webhookTimeout,
		log:            log,
	}
}

// ExecuteAll runs the rule's actions in order, folding effects into out.
// Returns the per-action results and whether any blocking verdict was
// produced by this rule.
func (x *Executor) ExecuteAll(ctx context.Context, rule *CompiledRule, trig Trigger, view entity.View, out *Outcome) ([]ActionResult, bool) {
	results := make([]ActionResult, 0, len(rule.Actions))
	blocked := false

	for i, action := range rule.Actions {
		result := x.execute(ctx, rule, action, trig, view, out)
		results = append(results, result)

		if result.Status != "skipped" && action.StopPropagation {
			out.stopped = true
		}
		if result.Blocking {
			blocked = true
		}

		// prevent returns its verdict immediately; a failed critical
		// external call poisons the rest of the rule
		stopRule := (action.Family == FamilyControl && action.Kind == "prevent" && result.Blocking) ||
			(action.Family == FamilyExternal && result.Status == "error" && boolParam(action.Params, "critical"))
		if stopRule {
			for _, rest := range rule.Actions[i+1:] {
				results = append(results, ActionResult{
					ActionID:   rest.ActionID,
					ActionType: string(rest.Family) + "." + rest.Kind,
					Status:     "skipped",
				})
			}
			break
		}
	}

	return results, blocked
}

// execute dispatches one action. Never panics; all failures land in the result.
func (x *Executor) execute(ctx context.Context, rule *CompiledRule, action CompiledAction, trig Trigger, view entity.View, out *Outcome) ActionResult {
	result := ActionResult{
		ActionID:   action.ActionID,
		ActionType: string(action.Family) + "." + action.Kind,
		Status:     "ok",
	}
	message := Render(action.MessageTemplate, view)
	result.Message = message

	fail := func(err error) ActionResult {
		result.Status = "error"
		result.Error = err.Error()
		x.log.Warnw("action failed",
			"rule", rule.Code, "action_type", result.ActionType, "error", err)
		return result
	}

	switch action.Family {
	case FamilyDisplay:
		severity := action.Severity
		if severity == "" {
			severity = action.Kind
			if severity == "message" {
				severity = "info"
			}
		}
		out.DisplayMessages = append(out.DisplayMessages, Message{Severity: severity, Text: message})

	case FamilyControl:
		reason := message
		if reason == "" {
			reason = fmt.Sprintf("blocked by rule %s (%s)", rule.Code, action.Kind)
		}
		out.Blocked = true
		out.BlockReasons = append(out.BlockReasons, reason)
		// One mandatory block makes the whole outcome non-overridable
		if !out.blockSeen {
			out.Overridable = rule.Priority.Overridable()
		} else {
			out.Overridable = out.Overridable && rule.Priority.Overridable()
		}
		out.blockSeen = true
		result.Blocking = true

	case FamilyNotify:
		recipients, err := ResolveRecipients(ctx, x.directory, action.Params)
		if err != nil {
			return fail(fmt.Errorf("recipient resolution: %w", err))
		}
		if x.notifier == nil {
			return fail(fmt.Errorf("no notifier configured"))
		}
		if err := x.notifier.Notify(ctx, recipients, action.Kind, message); err != nil {
			// Fire-and-forget: delivery failure is logged, not propagated
			return fail(fmt.Errorf("notify: %w", err))
		}

	case FamilyData:
		if err := x.applyDataAction(action, view, out); err != nil {
			return fail(err)
		}

	case FamilyWorkflow:
		if x.workflow == nil {
			return fail(fmt.Errorf("no workflow collaborator configured"))
		}
		if err := x.applyWorkflowAction(ctx, action, trig, message); err != nil {
			return fail(err)
		}

	case FamilyValidate:
		vr := x.applyValidateAction(action, view, message)
		out.Validations = append(out.Validations, vr)
		if !vr.Passed {
			result.Status = "ok" // a failed validation is a result, not an action error
			result.Message = vr.Message
		}

	case FamilyLog:
		// Audit note only; the execution log writer persists it with the rest

	case FamilyUI:
		field := action.TargetField
		if field == "" {
			field = stringParam(action.Params, "field")
		}
		if field == "" {
			return fail(fmt.Errorf("ui action without target field"))
		}
		if out.UIHints == nil {
			out.UIHints = make(map[string]string)
		}
		out.UIHints[field] = action.Kind

	case FamilyExternal:
		if err := x.callWebhook(ctx, rule, action, trig, message); err != nil {
			return fail(fmt.Errorf("webhook: %w", err))
		}

	default:
		return fail(fmt.Errorf("unknown action family %q", action.Family))
	}

	return result
}

// applyDataAction computes a field mutation for the in-flight entity
// payload. The caller owns persistence of the mutated fields.
func (x *Executor) applyDataAction(action CompiledAction, view entity.View, out *Outcome) error {
	if action.TargetField == "" {
		return fmt.Errorf("data action without target field")
	}
	if out.FieldMutations == nil {
		out.FieldMutations = make(map[string]any)
	}

	switch action.Kind {
	case "set_field":
		out.FieldMutations[action.TargetField] = parseLiteral(Render(action.ValueExpression, view))
		return nil

	case "calculate_field":
		rendered := Render(action.ValueExpression, view)
		value, err := calculate(rendered)
		if err != nil {
			return fmt.Errorf("calculate %q: %w", rendered, err)
		}
		out.FieldMutations[action.TargetField] = value
		return nil

	case "increment_counter":
		amount := 1.0
		if a, ok := toNumber(action.Params["amount"]); ok {
			amount = a
		}
		current, _ := toNumber(view.Resolve(action.TargetField))
		out.FieldMutations[action.TargetField] = current + amount
		return nil

	default:
		return fmt.Errorf("unknown data action %q", action.Kind)
	}
}

// applyWorkflowAction forwards the request to the owning domain module.
func (x *Executor) applyWorkflowAction(ctx context.Context, action CompiledAction, trig Trigger, message string) error {
	switch action.Kind {
	case "change_status":
		newStatus := stringParam(action.Params, "new_status")
		if newStatus == "" {
			return fmt.Errorf("change_status without new_status parameter")
		}
		return x.workflow.ChangeStatus(ctx, trig.EntityKind, trig.EntityID, newStatus)

	case "assign_user":
		userID := stringParam(action.Params, "user_id")
		if userID == "" {
			return fmt.Errorf("assign_user without user_id parameter")
		}
		return x.workflow.Assign(ctx, trig.EntityKind, trig.EntityID, userID)

	case "create_task":
		title := stringParam(action.Params, "title")
		if title == "" {
			title = message
		}
		if title == "" {
			return fmt.Errorf("create_task without title")
		}
		return x.workflow.CreateTask(ctx, TaskSpec{
			Title:      title,
			AssignedTo: stringParam(action.Params, "assigned_to"),
			EntityKind: trig.EntityKind,
			EntityID:   trig.EntityID,
			DueDate:    stringParam(action.Params, "due_date"),
		})

	case "enqueue":
		queue := stringParam(action.Params, "queue")
		if queue == "" {
			return fmt.Errorf("enqueue without queue parameter")
		}
		payload := map[string]any{
			"entity_kind": trig.EntityKind,
			"entity_id":   trig.EntityID,
			"event":       trig.EventName,
		}
		if extra, ok := action.Params["payload"].(map[string]any); ok {
			for k, v := range extra {
				payload[k] = v
			}
		}
		return x.workflow.Enqueue(ctx, queue, payload)

	default:
		return fmt.Errorf("unknown workflow action %q", action.Kind)
	}
}

// applyValidateAction enforces min/max/pattern constraints on the target
// field. The verdict travels in the outcome; it does not block by itself.
func (x *Executor) applyValidateAction(action CompiledAction, view entity.View, message string) ValidationResult {
	field := action.TargetField
	value := view.Resolve(field)
	vr := ValidationResult{Field: field, Passed: true}

	failWith := func(fallback string) {
		vr.Passed = false
		if message != "" {
			vr.Message = message
		} else {
			vr.Message = fallback
		}
	}

	if minRaw, ok := action.Params["min"]; ok {
		if minVal, okMin := toNumber(minRaw); okMin {
			if actual, okActual := toNumber(value); !okActual || actual < minVal {
				failWith(fmt.Sprintf("%s must be at least %v", field, minRaw))
			}
		}
	}
	if maxRaw, ok := action.Params["max"]; ok && vr.Passed {
		if maxVal, okMax := toNumber(maxRaw); okMax {
			if actual, okActual := toNumber(value); !okActual || actual > maxVal {
				failWith(fmt.Sprintf("%s must be at most %v", field, maxRaw))
			}
		}
	}
	if pattern := stringParam(action.Params, "pattern"); pattern != "" && vr.Passed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			failWith(fmt.Sprintf("%s has an invalid validation pattern", field))
		} else if !re.MatchString(entity.Stringify(value)) {
			failWith(fmt.Sprintf("%s does not match required pattern", field))
		}
	}

	return vr
}

// callWebhook POSTs the trigger context to the configured URL with a
// bounded timeout. Non-2xx responses count as failure.
func (x *Executor) callWebhook(ctx context.Context, rule *CompiledRule, action CompiledAction, trig Trigger, message string) error {
	url := stringParam(action.Params, "url")
	if url == "" {
		return fmt.Errorf("external action without url parameter")
	}

	body, err := json.Marshal(map[string]any{
		"rule_code":   rule.Code,
		"entity_kind": trig.EntityKind,
		"entity_id":   trig.EntityID,
		"event":       trig.EventName,
		"message":     message,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, x.webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// calculate evaluates a flat left-associative arithmetic expression of the
// form "num op num op num" produced by template rendering. Covers the
// calculated-field use cases (totals, scaled thresholds) without an
// expression language.
func calculate(expr string) (float64, error) {
	fields := strings.Fields(expr)
	if len(fields) == 0 || len(fields)%2 == 0 {
		return 0, fmt.Errorf("malformed expression")
	}
	acc, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", fields[0])
	}
	for i := 1; i < len(fields); i += 2 {
		operand, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", fields[i+1])
		}
		switch fields[i] {
		case "+":
			acc += operand
		case "-":
			acc -= operand
		case "*":
			acc *= operand
		case "/":
			if operand == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			acc /= operand
		default:
			return 0, fmt.Errorf("unknown operator %q", fields[i])
		}
	}
	return acc, nil
}

func stringParam(params map[string]any, key string) string {
	if s, ok := params[key].(string); ok {
		return s
	}
	return ""
}

func boolParam(params map[string]any, key string) bool {
	b, _ := params[key].(bool)
	return b
}
