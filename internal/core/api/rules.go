package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/floormgmt/instruct/internal/engine"
	"github.com/floormgmt/instruct/internal/types"
)

// handleCreateRule inserts a new rule in draft status. The rule must compile
// before it is stored; a rule that cannot compile could never evaluate.
func (s *Service) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule types.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if rule.Code == "" || rule.Title == "" {
		respondError(w, http.StatusBadRequest, "code and title are required", nil)
		return
	}

	// New rules always enter the lifecycle at draft.
	rule.RuleID = ""
	rule.Status = types.StatusDraft
	rule.TriggerCount = 0
	rule.LastTriggeredAt = nil

	if err := engine.ValidateRule(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "rule does not validate", err)
		return
	}

	if err := s.store.CreateRule(r.Context(), &rule); err != nil {
		respondStoreError(w, err)
		return
	}

	s.log.Infow("rule created", "rule", rule.Code, "rule_id", rule.RuleID)
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Service) handleListRules(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" {
		if _, err := types.ParseStatus(status); err != nil {
			respondError(w, http.StatusBadRequest, "unknown status", err)
			return
		}
	}

	rules, err := s.store.ListRules(r.Context(), status)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (s *Service) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.store.GetRule(r.Context(), chi.URLParam(r, "ruleID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// handleUpdateRule replaces a rule's definition. Code and status are
// immutable here; status changes go through the status endpoint.
func (s *Service) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")

	existing, err := s.store.GetRule(r.Context(), ruleID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	var rule types.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule.RuleID = ruleID
	rule.Code = existing.Code
	rule.Status = existing.Status

	if err := engine.ValidateRule(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "rule does not validate", err)
		return
	}

	if err := s.store.UpdateRule(r.Context(), &rule); err != nil {
		respondStoreError(w, err)
		return
	}

	// Edits to an active rule must reach the next evaluation.
	s.engine.Invalidate()

	s.log.Infow("rule updated", "rule", rule.Code, "rule_id", ruleID)
	respondJSON(w, http.StatusOK, rule)
}

// handleUpdateStatus moves a rule along its lifecycle.
func (s *Service) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	to, err := types.ParseStatus(req.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unknown status", err)
		return
	}

	if err := s.store.UpdateStatus(r.Context(), ruleID, to); err != nil {
		respondStoreError(w, err)
		return
	}

	s.engine.Invalidate()

	s.log.Infow("rule status changed", "rule_id", ruleID, "status", to)
	respondJSON(w, http.StatusOK, map[string]string{"rule_id": ruleID, "status": string(to)})
}

// handleArchiveRule retires a rule. DELETE archives rather than removes so
// execution log references stay resolvable.
func (s *Service) handleArchiveRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")

	if err := s.store.ArchiveRule(r.Context(), ruleID); err != nil {
		respondStoreError(w, err)
		return
	}

	s.engine.Invalidate()

	s.log.Infow("rule archived", "rule_id", ruleID)
	w.WriteHeader(http.StatusNoContent)
}
