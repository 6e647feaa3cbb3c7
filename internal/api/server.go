// Package api implements the Studly HTTP API: the streaming chat
// endpoint plus lesson, checkpoint, flashcard, and rehearse routes.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/studlyhq/studly/internal/agent"
	"github.com/studlyhq/studly/internal/buildinfo"
	"github.com/studlyhq/studly/internal/checkpoint"
	"github.com/studlyhq/studly/internal/lesson"
	"github.com/studlyhq/studly/internal/llm"
	"github.com/studlyhq/studly/internal/web"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// AgentRunner runs one chat turn. Satisfied by *agent.Loop.
type AgentRunner interface {
	Run(ctx context.Context, req *agent.Request, callback llm.StreamCallback) (*agent.Response, error)
}

// Deps are the collaborators the HTTP handlers call into.
type Deps struct {
	Runner      AgentRunner
	Lessons     *lesson.Store
	Checkpoints *checkpoint.Store
	Planner     *lesson.Planner
	Embedder    llm.Embedder
	Text        llm.TextGenerator
	Objects     llm.ObjectGenerator

	TextModel      string
	ObjectModel    string
	EmbeddingModel string

	// TurnTimeout caps how long one chat turn may run, tool calls
	// included. Zero means no limit.
	TurnTimeout time.Duration
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	deps    Deps
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a new API server.
func NewServer(address string, port int, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		deps:    deps,
		logger:  logger,
	}
}

// Handler builds the route table. Exposed separately from Start so
// tests can drive it with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Chat (SSE stream of message part deltas)
	mux.HandleFunc("POST /v1/chat", s.handleChat)

	// Direct study endpoints (no agent loop)
	mux.HandleFunc("POST /v1/flashcards", s.handleFlashcards)
	mux.HandleFunc("POST /v1/rehearse", s.handleRehearse)

	// Lessons and checkpoints
	mux.HandleFunc("POST /v1/lessons", s.handleLessonCreate)
	mux.HandleFunc("GET /v1/lessons/{id}", s.handleLessonGet)
	mux.HandleFunc("GET /v1/lessons/{id}/checkpoints", s.handleCheckpointList)
	mux.HandleFunc("POST /v1/checkpoints/{id}/complete", s.handleCheckpointComplete)

	// Health endpoints
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	// Lesson progress web UI
	if s.deps.Lessons != nil && s.deps.Checkpoints != nil {
		web.RegisterRoutes(mux, s.deps.Lessons, s.deps.Checkpoints, s.logger)
	}

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Long for streaming responses
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Studly",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}
