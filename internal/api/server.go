// Package api exposes the HTTP interface for the signing and run service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wrenlabs/quill/internal/agent"
	"github.com/wrenlabs/quill/internal/config"
	"github.com/wrenlabs/quill/internal/metrics"
	"github.com/wrenlabs/quill/internal/progress/sinks"
	"github.com/wrenlabs/quill/internal/signing"
)

// RunService is the slice of the runner the API needs.
type RunService interface {
	Submit(ctx context.Context, params agent.RunParameters) (string, error)
	Cancel(runID string) bool
}

// Server wires HTTP handlers to the runner, stores, and signing manager.
type Server struct {
	router   chi.Router
	runs     RunService
	store    agent.RunStore
	signer   *signing.Manager
	creds    signing.Credentials
	snapshot *sinks.Store
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. snapshot may be
// nil when no progress store sink is attached.
func NewServer(
	runs RunService,
	store agent.RunStore,
	signer *signing.Manager,
	creds signing.Credentials,
	snapshot *sinks.Store,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runs:     runs,
		store:    store,
		signer:   signer,
		creds:    creds,
		snapshot: snapshot,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(s.apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/sign", s.sign)
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.submitRun)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/status", s.getRunStatus)
				r.Get("/result", s.getRunResult)
				r.Post("/cancel", s.cancelRun)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// In-memory dependencies are always ready; downstream checks can hook in
	// here when the store backends grow health probes.
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type signRequest struct {
	Scheme      string            `json:"scheme,omitempty"`
	Params      map[string]string `json:"params"`
	Credentials map[string]string `json:"credentials,omitempty"`
}

type signResponse struct {
	Scheme    string            `json:"scheme"`
	Signature string            `json:"signature"`
	Params    map[string]string `json:"params"`
	Headers   map[string]string `json:"headers,omitempty"`
}

func (s *Server) sign(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Params) == 0 {
		s.writeError(w, http.StatusBadRequest, "params required")
		return
	}
	creds := s.creds
	if len(req.Credentials) > 0 {
		creds = signing.Credentials(req.Credentials)
	}
	res, err := s.signer.Generate(r.Context(), signing.Request{
		Scheme: req.Scheme,
		Params: req.Params,
		Creds:  creds,
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, signing.ErrSchemeUnsupported):
			status = http.StatusBadRequest
		case errors.Is(err, signing.ErrMissingCredential):
			status = http.StatusUnprocessableEntity
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, signResponse{
		Scheme:    res.Scheme,
		Signature: res.Signature,
		Params:    res.Params,
		Headers:   res.Headers,
	})
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	var params agent.RunParameters
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(params.Tasks) == 0 {
		s.writeError(w, http.StatusBadRequest, "at least one task required")
		return
	}
	for _, task := range params.Tasks {
		if task.URL == "" {
			s.writeError(w, http.StatusBadRequest, "task url required")
			return
		}
	}
	runID, err := s.runs.Submit(r.Context(), params)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) getRunStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	resp := map[string]any{"run": run}
	if s.snapshot != nil {
		if snap, ok := s.snapshot.Get(runID); ok {
			resp["progress"] = map[string]any{
				"completed": snap.Completed,
				"total":     snap.Total,
				"stage":     snap.Stage,
			}
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getRunResult(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	tasks, err := s.store.ListTasks(r.Context(), runID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch run tasks")
		return
	}
	s.writeJSON(w, http.StatusOK, agent.RunResult{Run: run, Tasks: tasks})
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if _, err := s.store.GetRun(r.Context(), runID); err != nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if !s.runs.Cancel(runID) {
		s.writeError(w, http.StatusConflict, "run is not active")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": "cancelling",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
