package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/simforge/simforge/internal/session"
)

// Config holds review server configuration.
type Config struct {
	ListenAddr string // e.g. ":8090"
	StaticDir  string // optional on-disk review bundle
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{ListenAddr: ":8090"}
}

// Server is the review HTTP server. Live runs come from the in-memory
// store; past compiles and their artifacts come from the session store.
type Server struct {
	config   *Config
	store    *Store
	sessions *session.Store
	hub      *Hub
	server   *http.Server
}

// NewServer creates a new review server. sessions may be nil, in which case
// the session endpoints respond 503.
func NewServer(config *Config, store *Store, sessions *session.Store, hub *Hub) *Server {
	s := &Server{
		config:   config,
		store:    store,
		sessions: sessions,
		hub:      hub,
	}

	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/", s.handleRunDetail)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionDetail)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/events", s.handleSSE)

	// Static review bundle
	mux.HandleFunc("/", s.handleStatic)

	// Wrap with CORS and logging middleware
	handler := corsMiddleware(loggingMiddleware(mux))

	s.server = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the review routes for testing.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start begins serving the review screen.
func (s *Server) Start() error {
	slog.Info("Starting review server", "addr", s.config.ListenAddr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("review server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	slog.Info("Stopping review server")
	return s.server.Shutdown(ctx)
}

// handleRuns handles GET /api/runs
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	respondJSON(w, s.store.ListRuns())
}

// handleRunDetail handles GET /api/runs/{id} and GET /api/runs/{id}/logs
func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	parts := strings.SplitN(path, "/", 2)

	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Run ID required", http.StatusBadRequest)
		return
	}

	id := parts[0]

	if len(parts) == 2 && parts[1] == "logs" {
		s.handleLogs(w, r, id)
		return
	}

	run, ok := s.store.GetRun(id)
	if !ok {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	respondJSON(w, run)
}

// handleLogs handles GET /api/runs/{id}/logs
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request, id string) {
	limit := 100 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	respondJSON(w, s.store.GetLogs(id, limit))
}

// handleSessions handles GET /api/sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.sessions == nil {
		http.Error(w, "Session store not configured", http.StatusServiceUnavailable)
		return
	}

	respondJSON(w, s.sessions.List())
}

// handleSessionDetail handles GET /api/sessions/{id}, its model and report
// artifacts, and GET /api/sessions/{id}/diff/{other} which diffs {id}
// against the older session {other}.
func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.sessions == nil {
		http.Error(w, "Session store not configured", http.StatusServiceUnavailable)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(path, "/")

	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	sess, err := s.sessions.Load(parts[0])
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	if len(parts) == 1 {
		respondJSON(w, sess)
		return
	}

	switch parts[1] {
	case "model":
		s.serveArtifact(w, sess, session.ArtifactModel)
	case "report":
		s.serveArtifact(w, sess, session.ArtifactReport)
	case "diagram":
		s.serveArtifact(w, sess, session.ArtifactDiagram)
	case "diff":
		if len(parts) < 3 || parts[2] == "" {
			http.Error(w, "Diff target session ID required", http.StatusBadRequest)
			return
		}
		other, err := s.sessions.Load(parts[2])
		if err != nil {
			http.Error(w, "Diff target session not found", http.StatusNotFound)
			return
		}
		diff, err := session.DiffSessions(s.sessions, other, sess)
		if err != nil {
			slog.Error("Failed to diff sessions", "old", other.ID, "new", sess.ID, "error", err)
			http.Error(w, "Diff failed", http.StatusInternalServerError)
			return
		}
		respondJSON(w, diff)
	default:
		http.Error(w, "Unknown session resource", http.StatusNotFound)
	}
}

// serveArtifact streams a stored artifact as JSON.
func (s *Server) serveArtifact(w http.ResponseWriter, sess *session.Session, name string) {
	data, err := s.sessions.LoadArtifact(sess, name)
	if err != nil {
		http.Error(w, "Artifact not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	respondJSON(w, s.store.GetStats())
}

// handleHealth handles GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	respondJSON(w, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleSSE handles GET /api/events (Server-Sent Events)
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	client, err := NewClient(s.hub, w)
	if err != nil {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	s.hub.Register(client)
	defer s.hub.Unregister(client)

	slog.Info("Review client connected")

	// Send initial connection event
	connEvent := &Event{
		Type:      "connected",
		Timestamp: time.Now(),
	}
	data, _ := json.Marshal(connEvent)
	client.send(data)

	// Start keepalive in background
	go client.KeepAlive(30 * time.Second)

	// Block until client disconnects
	<-r.Context().Done()
	slog.Info("Review client disconnected")
}

// handleStatic serves the on-disk review bundle when one is configured.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.config.StaticDir != "" {
		if _, err := os.Stat(s.config.StaticDir); err == nil {
			http.FileServer(http.Dir(s.config.StaticDir)).ServeHTTP(w, r)
			return
		}
	}

	if r.URL.Path == "/" {
		respondJSON(w, map[string]string{
			"service": "simforge-review",
			"events":  "/api/events",
			"runs":    "/api/runs",
		})
		return
	}

	http.NotFound(w, r)
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// corsMiddleware adds CORS headers for local development
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
