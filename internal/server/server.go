// Package server exposes the loan workflow over HTTP: starting workflows, forwarding process-item
// signals from the process service, and reporting workflow state.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cschleiden/loanflow/backend"
	"github.com/cschleiden/loanflow/client"
	"github.com/cschleiden/loanflow/core"
	"github.com/cschleiden/loanflow/loan"
	"github.com/cschleiden/loanflow/workflow"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	router     chi.Router
	httpServer *http.Server
	client     *client.Client
	logger     *slog.Logger
	metrics    http.Handler
}

// New creates the server. metrics is served on /metrics if given.
func New(address string, c *client.Client, logger *slog.Logger, metrics http.Handler) *Server {
	s := &Server{
		client:  c,
		logger:  logger.With("component", "http-server"),
		metrics: metrics,
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/workflows", func(r chi.Router) {
		r.Post("/", s.startWorkflow)
		r.Get("/{instanceID}", s.getWorkflow)
		r.Delete("/{instanceID}", s.cancelWorkflow)
		r.Post("/{instanceID}/signals/"+loan.SignalProcessItem, s.signalProcessItem)
	})

	return r
}

// Handler returns the router, for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", "address", s.httpServer.Addr)

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type startRequest struct {
	ProcessID string `json:"processId"`
}

type instanceResponse struct {
	InstanceID  string `json:"instanceId"`
	ExecutionID string `json:"executionId"`
	State       string `json:"state,omitempty"`

	Result *loan.WorkflowResponse `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	stats, err := s.client.GetStats(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":                  "ok",
		"activeWorkflowInstances": stats.ActiveWorkflowInstances,
		"pendingWorkflowTasks":    stats.PendingWorkflowTasks,
		"pendingActivities":       stats.PendingActivities,
	})
}

func (s *Server) startWorkflow(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}

	if req.ProcessID == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.New("processId is required"))
		return
	}

	wfi, err := loan.Start(r.Context(), s.client, req.ProcessID)
	if err != nil {
		if errors.Is(err, backend.ErrInstanceAlreadyExists) {
			s.writeError(w, r, http.StatusConflict, err)
			return
		}

		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusCreated, instanceResponse{InstanceID: wfi.InstanceID, ExecutionID: wfi.ExecutionID})
}

func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	wfi, ok := s.latestInstance(w, r)
	if !ok {
		return
	}

	state, err := s.client.GetWorkflowInstanceState(ctx, wfi)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	resp := instanceResponse{
		InstanceID:  wfi.InstanceID,
		ExecutionID: wfi.ExecutionID,
		State:       state.String(),
	}

	if state == core.WorkflowInstanceStateFinished {
		result, err := client.GetWorkflowResult[loan.WorkflowResponse](ctx, s.client, wfi, time.Second)
		if err != nil {
			var werr *workflow.Error
			if !errors.As(err, &werr) {
				s.writeError(w, r, http.StatusInternalServerError, err)
				return
			}

			resp.Error = err.Error()
		} else {
			resp.Result = &result
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) cancelWorkflow(w http.ResponseWriter, r *http.Request) {
	wfi, ok := s.latestInstance(w, r)
	if !ok {
		return
	}

	if err := s.client.CancelWorkflowInstance(r.Context(), wfi); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) signalProcessItem(w http.ResponseWriter, r *http.Request) {
	var item loan.ProcessItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("decoding signal: %w", err))
		return
	}

	instanceID := chi.URLParam(r, "instanceID")
	if err := s.client.SignalWorkflow(r.Context(), instanceID, loan.SignalProcessItem, item); err != nil {
		if errors.Is(err, backend.ErrInstanceNotFound) {
			s.writeError(w, r, http.StatusNotFound, err)
			return
		}

		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) latestInstance(w http.ResponseWriter, r *http.Request) (*workflow.Instance, bool) {
	wfi, err := s.client.GetLatestInstance(r.Context(), chi.URLParam(r, "instanceID"))
	if err != nil {
		if errors.Is(err, backend.ErrInstanceNotFound) {
			s.writeError(w, r, http.StatusNotFound, err)
			return nil, false
		}

		s.writeError(w, r, http.StatusInternalServerError, err)
		return nil, false
	}

	return wfi, true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path, "request.id", middleware.GetReqID(r.Context()), "error", err)
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
