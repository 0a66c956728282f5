package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/floormgmt/instruct/internal/types"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]string{"error": message}
	if err != nil {
		body["details"] = err.Error()
	}
	respondJSON(w, status, body)
}

// respondStoreError maps domain sentinels to HTTP statuses; anything
// unrecognized is a 500.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrRuleNotFound), errors.Is(err, types.ErrLogNotFound):
		respondError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, types.ErrDuplicateCode):
		respondError(w, http.StatusConflict, "rule code already exists", err)
	case errors.Is(err, types.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "status transition not allowed", err)
	case errors.Is(err, types.ErrOverrideForbidden):
		respondError(w, http.StatusForbidden, "override not permitted", err)
	case errors.Is(err, types.ErrOverrideIncomplete):
		respondError(w, http.StatusBadRequest, "override requires reason and approver", err)
	default:
		respondError(w, http.StatusInternalServerError, "internal error", err)
	}
}
