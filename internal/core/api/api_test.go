// internal/core/api/api_test.go
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/floormgmt/instruct/internal/core/db"
	"github.com/floormgmt/instruct/internal/core/store"
	"github.com/floormgmt/instruct/internal/engine"
)

// newTestServer wires the full service against a throwaway SQLite database,
// authentication disabled.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	conn, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.MigrateUp(conn); err != nil {
		t.Fatalf("db.MigrateUp() error = %v", err)
	}
	q, err := db.LoadQueries(conn)
	if err != nil {
		t.Fatalf("db.LoadQueries() error = %v", err)
	}

	st := store.New(q)
	eng := engine.New(st, engine.Config{}, nil, nil, nil, nil)
	svc := NewService(eng, st, nil, nil)

	srv := httptest.NewServer(svc.Router(0))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func preventRuleBody(code string) map[string]any {
	return map[string]any{
		"code":      code,
		"title":     "No restricted destinations",
		"rule_type": "logistics",
		"priority":  "high",
		"conditions": []map[string]any{{
			"target_kind": "order",
			"field_path":  "destination.country",
			"operator":    "in",
			"value":       `["XX", "YY"]`,
		}},
		"actions": []map[string]any{{
			"action_type":      "control.prevent",
			"message_template": "destination {destination.country} is restricted",
		}},
	}
}

func activateRule(t *testing.T, srv *httptest.Server, ruleID string) {
	t.Helper()
	for _, status := range []string{"in_review", "approved", "active"} {
		resp, body := doJSON(t, http.MethodPut, srv.URL+"/v1/rules/"+ruleID+"/status",
			map[string]string{"status": status})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status change to %s = %d (%v), want 200", status, resp.StatusCode, body)
		}
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/health", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v, want 200 ok", resp.StatusCode, body)
	}
}

func TestCreateRule(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/rules", preventRuleBody("LOG-001"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d (%v), want 201", resp.StatusCode, body)
	}
	if body["rule_id"] == "" || body["rule_id"] == nil {
		t.Error("rule_id missing in create response")
	}
	if body["status"] != "draft" {
		t.Errorf("status = %v, want draft regardless of input", body["status"])
	}

	// Same code again conflicts
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/rules", preventRuleBody("LOG-001"))
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", resp.StatusCode)
	}
}

func TestCreateRule_Validation(t *testing.T) {
	srv := newTestServer(t)

	missingTitle := preventRuleBody("LOG-001")
	delete(missingTitle, "title")
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/rules", missingTitle)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("create without title = %d, want 400", resp.StatusCode)
	}

	badOperator := preventRuleBody("LOG-002")
	badOperator["conditions"] = []map[string]any{{
		"field_path": "x", "operator": "approximately", "value": "1",
	}}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/rules", badOperator)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("create with unknown operator = %d, want 400", resp.StatusCode)
	}
}

func TestRuleLifecycleEndpoints(t *testing.T) {
	srv := newTestServer(t)

	_, created := doJSON(t, http.MethodPost, srv.URL+"/v1/rules", preventRuleBody("LOG-001"))
	ruleID := created["rule_id"].(string)

	// Skipping review is rejected
	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/v1/rules/"+ruleID+"/status",
		map[string]string{"status": "active"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("draft -> active = %d, want 409", resp.StatusCode)
	}

	activateRule(t, srv, ruleID)

	resp, rule := doJSON(t, http.MethodGet, srv.URL+"/v1/rules/"+ruleID, nil)
	if resp.StatusCode != http.StatusOK || rule["status"] != "active" {
		t.Errorf("get rule = %d status %v, want 200 active", resp.StatusCode, rule["status"])
	}

	resp, list := doJSON(t, http.MethodGet, srv.URL+"/v1/rules?status=active", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list = %d, want 200", resp.StatusCode)
	}
	if rules, ok := list["rules"].([]any); !ok || len(rules) != 1 {
		t.Errorf("active rules = %v, want one entry", list["rules"])
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/rules?status=deleted", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("list with unknown status = %d, want 400", resp.StatusCode)
	}

	// DELETE archives, the row stays readable
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/rules/"+ruleID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", delResp.StatusCode)
	}

	resp, rule = doJSON(t, http.MethodGet, srv.URL+"/v1/rules/"+ruleID, nil)
	if resp.StatusCode != http.StatusOK || rule["status"] != "archived" {
		t.Errorf("archived rule = %d status %v, want 200 archived", resp.StatusCode, rule["status"])
	}
}

func TestGetRule_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/rules/missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get missing rule = %d, want 404", resp.StatusCode)
	}
}

func TestUpdateRule_PreservesCodeAndStatus(t *testing.T) {
	srv := newTestServer(t)

	_, created := doJSON(t, http.MethodPost, srv.URL+"/v1/rules", preventRuleBody("LOG-001"))
	ruleID := created["rule_id"].(string)

	update := preventRuleBody("SNEAKY-NEW-CODE")
	update["title"] = "Updated title"
	update["status"] = "active"

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/v1/rules/"+ruleID, update)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update = %d (%v), want 200", resp.StatusCode, body)
	}
	if body["code"] != "LOG-001" {
		t.Errorf("code = %v, want LOG-001 (immutable)", body["code"])
	}
	if body["status"] != "draft" {
		t.Errorf("status = %v, want draft (changes go through the status endpoint)", body["status"])
	}
	if body["title"] != "Updated title" {
		t.Errorf("title = %v, want updated", body["title"])
	}
}

func TestEvaluateAndOverrideFlow(t *testing.T) {
	srv := newTestServer(t)

	_, created := doJSON(t, http.MethodPost, srv.URL+"/v1/rules", preventRuleBody("LOG-001"))
	ruleID := created["rule_id"].(string)
	activateRule(t, srv, ruleID)

	resp, outcome := doJSON(t, http.MethodPost, srv.URL+"/v1/evaluate", map[string]any{
		"entity_kind": "order",
		"entity_id":   "o-1",
		"event":       "update",
		"entity":      map[string]any{"destination": map[string]any{"country": "XX"}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("evaluate = %d (%v), want 200", resp.StatusCode, outcome)
	}
	if outcome["blocked"] != true {
		t.Fatalf("blocked = %v, want true", outcome["blocked"])
	}
	if outcome["overridable"] != true {
		t.Errorf("overridable = %v, want true for high priority", outcome["overridable"])
	}

	// A clean entity passes
	resp, outcome = doJSON(t, http.MethodPost, srv.URL+"/v1/evaluate", map[string]any{
		"entity_kind": "order",
		"entity_id":   "o-2",
		"event":       "update",
		"entity":      map[string]any{"destination": map[string]any{"country": "DE"}},
	})
	if resp.StatusCode != http.StatusOK || outcome["blocked"] == true {
		t.Fatalf("clean evaluate = %d blocked %v, want 200 unblocked", resp.StatusCode, outcome["blocked"])
	}

	resp, logList := doJSON(t, http.MethodGet, srv.URL+"/v1/logs?rule_id="+ruleID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list logs = %d, want 200", resp.StatusCode)
	}
	entries, ok := logList["logs"].([]any)
	if !ok || len(entries) != 2 {
		t.Fatalf("logs = %v, want 2 entries", logList["logs"])
	}

	// Newest first: the blocked entry is the older one
	blockedEntry := entries[1].(map[string]any)
	if blockedEntry["blocked"] != true {
		t.Fatalf("older log entry blocked = %v, want true", blockedEntry["blocked"])
	}
	logID := blockedEntry["log_id"].(string)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/logs/"+logID+"/override",
		map[string]string{"approver": "mgr-1"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("override without reason = %d, want 400", resp.StatusCode)
	}

	resp, overridden := doJSON(t, http.MethodPost, srv.URL+"/v1/logs/"+logID+"/override",
		map[string]string{"reason": "customer escalation", "approver": "mgr-1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("override = %d (%v), want 200", resp.StatusCode, overridden)
	}
	if overridden["was_overridden"] != true {
		t.Errorf("was_overridden = %v, want true", overridden["was_overridden"])
	}

	resp, single := doJSON(t, http.MethodGet, srv.URL+"/v1/logs/"+logID, nil)
	if resp.StatusCode != http.StatusOK || single["override_approver"] != "mgr-1" {
		t.Errorf("get log = %d approver %v, want 200 mgr-1", resp.StatusCode, single["override_approver"])
	}
}

func TestEvaluate_BadRequests(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing entity_kind", map[string]any{
			"entity_id": "o-1", "entity": map[string]any{}}},
		{"missing entity_id", map[string]any{
			"entity_kind": "order", "entity": map[string]any{}}},
		{"missing entity", map[string]any{
			"entity_kind": "order", "entity_id": "o-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/evaluate", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("evaluate = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestListLogs_BadLimit(t *testing.T) {
	srv := newTestServer(t)

	for _, limit := range []string{"0", "-5", "abc"} {
		resp, _ := doJSON(t, http.MethodGet, fmt.Sprintf("%s/v1/logs?limit=%s", srv.URL, limit), nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("list logs with limit=%s = %d, want 400", limit, resp.StatusCode)
		}
	}
}
