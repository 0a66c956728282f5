// Package api exposes the rule service over HTTP: a trigger endpoint that
// evaluates rules against an entity event, management endpoints for the rule
// tables, and read access to the execution log.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/floormgmt/instruct/internal/core/auth"
	"github.com/floormgmt/instruct/internal/core/store"
	"github.com/floormgmt/instruct/internal/engine"
)

// Service wires the engine, store and authenticator into HTTP handlers.
type Service struct {
	engine *engine.Engine
	store  *store.Store
	auth   *auth.Authenticator
	log    *zap.SugaredLogger
}

// NewService creates the HTTP service. auth may be nil to disable
// authentication entirely.
func NewService(eng *engine.Engine, st *store.Store, authn *auth.Authenticator, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{engine: eng, store: st, auth: authn, log: log}
}

// Router builds the chi router with all routes and middleware attached.
// The health endpoint sits outside authentication so load balancers can
// probe without credentials.
func (s *Service) Router(requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if requestTimeout > 0 {
		r.Use(middleware.Timeout(requestTimeout))
	}

	r.Get("/v1/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.auth.Middleware())
		}

		r.Post("/v1/evaluate", s.handleEvaluate)

		r.Route("/v1/rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)

			r.Route("/{ruleID}", func(r chi.Router) {
				r.Get("/", s.handleGetRule)
				r.Put("/", s.handleUpdateRule)
				r.Delete("/", s.handleArchiveRule)
				r.Put("/status", s.handleUpdateStatus)
			})
		})

		r.Route("/v1/logs", func(r chi.Router) {
			r.Get("/", s.handleListLogs)
			r.Get("/{logID}", s.handleGetLog)
			r.Post("/{logID}/override", s.handleOverrideLog)
		})
	})

	return r
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
