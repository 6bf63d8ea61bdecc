// Package api exposes parley's HTTP surface: chat generation, thread
// inspection, health probes and Prometheus metrics.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/parley/internal/generate"
	"github.com/MrWong99/parley/internal/health"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/internal/store"
	"github.com/MrWong99/parley/pkg/llm"
)

// maxChatBody caps the accepted request body for POST /chat.
const maxChatBody = 1 << 20 // 1 MiB

// Server routes HTTP requests to the generation orchestrator and the thread
// store. Construct with [NewServer] and mount via [Server.Handler].
type Server struct {
	generator atomic.Pointer[generate.Generator]
	store     store.Store
	health    *health.Handler
	metrics   *observe.Metrics
}

// NewServer creates a Server. The health handler may carry zero checkers; the
// metrics sink defaults to the package-wide instruments when nil.
func NewServer(g *generate.Generator, st store.Store, h *health.Handler, m *observe.Metrics) *Server {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	if h == nil {
		h = health.New()
	}
	s := &Server{store: st, health: h, metrics: m}
	s.generator.Store(g)
	return s
}

// SetGenerator atomically swaps the orchestrator serving new requests.
// In-flight generations finish on the instance they started with. Used by the
// config watcher to apply hot-reloaded generation settings.
func (s *Server) SetGenerator(g *generate.Generator) {
	if g != nil {
		s.generator.Store(g)
	}
}

// Handler returns the fully routed handler, wrapped in the tracing and
// metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /threads/{id}", s.handleGetThread)
	mux.HandleFunc("DELETE /threads/{id}", s.handleDeleteThread)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)

	return observe.Middleware(s.metrics)(mux)
}

// chatRequest is the body of POST /chat.
type chatRequest struct {
	// ThreadID continues an existing conversation. Empty starts a new one.
	ThreadID string `json:"thread_id"`

	// Message is the user's message. Required.
	Message string `json:"message"`

	// ResponseSchema optionally constrains the answer to a JSON value
	// conforming to this JSON Schema.
	ResponseSchema map[string]any `json:"response_schema,omitempty"`

	// Tools optionally restricts which registered tools the model may use
	// for this call. Empty offers all of them.
	Tools []string `json:"tools,omitempty"`
}

// chatResponse is the body of a successful POST /chat.
type chatResponse struct {
	ThreadID   string `json:"thread_id"`
	Content    string `json:"content"`
	Structured any    `json:"structured,omitempty"`
	Rounds     int    `json:"rounds"`
}

// threadResponse is the body of GET /threads/{id}.
type threadResponse struct {
	ThreadID string        `json:"thread_id"`
	Messages []llm.Message `json:"messages"`
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := s.generator.Load().Generate(r.Context(), generate.Request{
		ThreadID:       req.ThreadID,
		Prompt:         req.Message,
		ResponseSchema: req.ResponseSchema,
		Tools:          req.Tools,
	})
	if err != nil {
		writeGenerateError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		ThreadID:   res.ThreadID,
		Content:    res.Content,
		Structured: res.Structured,
		Rounds:     res.Rounds,
	})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	messages, err := s.store.History(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read thread: "+err.Error())
		return
	}
	if messages == nil {
		messages = []llm.Message{}
	}
	writeJSON(w, http.StatusOK, threadResponse{ThreadID: id, Messages: messages})
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Clear(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "clear thread: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeGenerateError maps orchestrator failures onto HTTP status codes.
// Caller mistakes are 4xx; upstream endpoint trouble is 502/503/504.
func writeGenerateError(w http.ResponseWriter, err error) {
	var terr *llm.TransportError
	switch {
	case errors.Is(err, generate.ErrEmptyPrompt), errors.Is(err, generate.ErrInvalidSchema):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, generate.ErrMaxRounds), errors.Is(err, generate.ErrSchemaViolation):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, resilience.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, llm.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &terr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding response failed"}`, http.StatusInternalServerError)
	}
}
