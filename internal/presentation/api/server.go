// Package api exposes status, sync and checkpoint operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jbctechsolutions/invsync/internal/application/checkpoint"
	"github.com/jbctechsolutions/invsync/internal/application/engine"
	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	"github.com/jbctechsolutions/invsync/internal/domain/errors"
	"github.com/jbctechsolutions/invsync/internal/infrastructure/logging"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Server serves the HTTP API.
type Server struct {
	engine      *engine.Service
	checkpoints *checkpoint.Manager
	logger      *logging.Logger
}

// NewServer creates a new API server.
func NewServer(svc *engine.Service, checkpoints *checkpoint.Manager, logger *logging.Logger) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if checkpoints == nil {
		return nil, fmt.Errorf("checkpoint manager is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{engine: svc, checkpoints: checkpoints, logger: logger}, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /sync", s.handleSync)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("GET /checkpoints", s.handleListCheckpoints)
	mux.HandleFunc("POST /checkpoints", s.handleCreateCheckpoint)
	mux.HandleFunc("POST /checkpoints/{id}/restore", s.handleRestore)
	mux.HandleFunc("DELETE /checkpoints/{id}", s.handleDeleteCheckpoint)
	return s.withLogging(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.DebugContext(r.Context(), "api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// syncRequest is the body of POST /sync. An absent or empty list means
// every registered kind.
type syncRequest struct {
	Entities []string `json:"entities"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	kinds, err := parseKindsParam(r.URL.Query().Get("kinds"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	report, err := s.engine.Status(r.Context(), kinds)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatusResponse(report))
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, errors.NewError(errors.CodeValidation, "failed to read request body", err))
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, r, errors.NewError(errors.CodeValidation, "invalid request body", err))
			return
		}
	}

	kinds, err := entity.ParseKinds(req.Entities)
	if err != nil {
		s.writeError(w, r, errors.NewError(errors.CodeValidation, "invalid entities", err))
		return
	}

	report, err := s.engine.Sync(r.Context(), kinds)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	runs, err := s.engine.History(r.Context(), 20)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	list, err := s.checkpoints.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"checkpoints": list})
}

func (s *Server) handleCreateCheckpoint(w http.ResponseWriter, r *http.Request) {
	cp, err := s.checkpoints.Create(r.Context(), checkpoint.ReasonManual)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cp.Summarize())
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.checkpoints.Restore(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"restored": id})
}

func (s *Server) handleDeleteCheckpoint(w http.ResponseWriter, r *http.Request) {
	if err := s.checkpoints.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "api request failed", "path", r.URL.Path, "error", err.Error())
	}
	code := errors.CodeOf(err)
	if code == "" {
		code = errors.CodeStorage
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

// statusFor maps an error code to an HTTP status.
func statusFor(err error) int {
	switch errors.CodeOf(err) {
	case errors.CodeValidation:
		return http.StatusBadRequest
	case errors.CodeNotFound, errors.CodeCheckpointNotFound:
		return http.StatusNotFound
	case errors.CodeSyncInProgress:
		return http.StatusConflict
	case errors.CodeCheckpointWriteFailed, errors.CodeRemoteUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseKindsParam(raw string) ([]entity.Kind, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	kinds, err := entity.ParseKinds(strings.Split(raw, ","))
	if err != nil {
		return nil, errors.NewError(errors.CodeValidation, "invalid kinds", err)
	}
	return kinds, nil
}
