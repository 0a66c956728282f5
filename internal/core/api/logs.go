package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/floormgmt/instruct/internal/core/auth"
	"github.com/floormgmt/instruct/internal/core/store"
)

func (s *Service) handleListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.LogFilter{
		RuleID:     q.Get("rule_id"),
		EntityKind: q.Get("entity_kind"),
		EntityID:   q.Get("entity_id"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		filter.Limit = limit
	}

	logs, err := s.store.ListLogs(r.Context(), filter)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Service) handleGetLog(w http.ResponseWriter, r *http.Request) {
	entry, err := s.store.GetLog(r.Context(), chi.URLParam(r, "logID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// handleOverrideLog records a human override of a blocking log entry.
// Mandatory-priority blocks cannot be overridden; the store enforces that.
func (s *Service) handleOverrideLog(w http.ResponseWriter, r *http.Request) {
	logID := chi.URLParam(r, "logID")

	var req struct {
		Reason   string `json:"reason"`
		Approver string `json:"approver"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Approver == "" {
		req.Approver = auth.SubjectFromContext(r.Context())
	}

	entry, err := s.store.OverrideLog(r.Context(), logID, req.Reason, req.Approver)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	s.log.Infow("block overridden",
		"log_id", logID, "rule", entry.RuleCode, "approver", req.Approver)
	respondJSON(w, http.StatusOK, entry)
}
