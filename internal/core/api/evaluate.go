package api

import (
	"encoding/json"
	"net/http"

	"github.com/floormgmt/instruct/internal/core/auth"
	"github.com/floormgmt/instruct/internal/engine"
	"github.com/floormgmt/instruct/internal/types"
)

// handleEvaluate runs all applicable rules against a triggering event and
// returns the merged outcome. The caller is expected to honor blocked=true
// before completing its operation.
func (s *Service) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var trig engine.Trigger
	body := http.MaxBytesReader(w, r.Body, types.MaxEntityPayloadSize)
	if err := json.NewDecoder(body).Decode(&trig); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if trig.EntityKind == "" {
		respondError(w, http.StatusBadRequest, "entity_kind is required", nil)
		return
	}
	if trig.EntityID == "" {
		respondError(w, http.StatusBadRequest, "entity_id is required", nil)
		return
	}
	if len(trig.Entity) == 0 {
		respondError(w, http.StatusBadRequest, "entity is required", nil)
		return
	}
	if trig.ActingUser == "" {
		// Authenticated callers default to their API key's subject.
		trig.ActingUser = auth.SubjectFromContext(r.Context())
	}

	outcome, err := s.engine.Evaluate(r.Context(), trig)
	if err != nil {
		s.log.Errorw("evaluation failed",
			"entity_kind", trig.EntityKind, "entity_id", trig.EntityID,
			"event", trig.EventName, "error", err)
		respondError(w, http.StatusServiceUnavailable, "evaluation failed", err)
		return
	}

	respondJSON(w, http.StatusOK, outcome)
}
