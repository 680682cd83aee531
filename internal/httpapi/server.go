package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/aristath/butler/internal/events"
	"github.com/aristath/butler/internal/observability"
	"github.com/aristath/butler/internal/orchestrator"
	"github.com/aristath/butler/internal/scheduler"
)

// Orchestrator is the part of orchestrator.Manager the API drives.
type Orchestrator interface {
	Send(ctx context.Context, message string) (orchestrator.State, error)
	State() orchestrator.State
	Tasks() []*scheduler.Task
	ClearTasks(ctx context.Context) (int, error)
	ClearHistory(ctx context.Context) error
	SetMaxConcurrent(n int)
}

type Server struct {
	orch     Orchestrator
	bus      events.Subscriber
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func New(orch Orchestrator, bus events.Subscriber, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		orch:    orch,
		bus:     bus,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
	}
}

// sameOrigin admits non-browser clients and browser pages served from the
// same host.
func sameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Get("/v1/state", s.handleState)
	r.Post("/v1/messages", s.handleSend)
	r.Delete("/v1/messages", s.handleClearHistory)
	r.Get("/v1/tasks", s.handleListTasks)
	r.Get("/v1/tasks/{id}", s.handleGetTask)
	r.Delete("/v1/tasks", s.handleClearTasks)
	r.Put("/v1/scheduler", s.handleScheduler)
	r.Get("/v1/events", s.handleEvents)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.orch.State()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"thread_id":    st.ThreadID,
		"active_tasks": st.ActiveTaskCount,
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.orch.State())
}

type sendRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}
	st, err := s.orch.Send(r.Context(), req.Message)
	if err != nil {
		s.logger.Warn("send failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "send_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.ClearHistory(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "clear_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type schedulerRequest struct {
	MaxConcurrent int `json:"max_concurrent"`
}

func (s *Server) handleScheduler(w http.ResponseWriter, r *http.Request) {
	var req schedulerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.MaxConcurrent < 1 {
		respondError(w, http.StatusBadRequest, "invalid_request", "max_concurrent must be at least 1")
		return
	}
	s.orch.SetMaxConcurrent(req.MaxConcurrent)
	respondJSON(w, http.StatusOK, req)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
