// Package server provides the HTTP compile service plus health check and
// graceful shutdown utilities shared by the serve, review and worker
// entrypoints.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"
)

// HealthStatus is the reported state of a component or of the whole
// process.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck is one component's probe result.
type HealthCheck struct {
	Name    string            `json:"name"`
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthResponse is the body returned by every health endpoint.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Checks    []HealthCheck `json:"checks,omitempty"`
}

// HealthChecker probes one dependency.
type HealthChecker func(ctx context.Context) HealthCheck

// HealthServer serves liveness, readiness and aggregate health probes.
// Checks registered with RegisterCheck run on every /health request.
type HealthServer struct {
	mu       sync.RWMutex
	checks   map[string]HealthChecker
	version  string
	ready    bool
	live     bool
	stopOnce sync.Once
	stopped  chan struct{}
}

// HealthConfig configures the health server.
type HealthConfig struct {
	Version string
	Addr    string // listen address, default ":8080"
}

// NewHealthServer builds a health server that starts live but not ready.
func NewHealthServer(config *HealthConfig) *HealthServer {
	s := &HealthServer{
		checks:  make(map[string]HealthChecker),
		live:    true,
		stopped: make(chan struct{}),
	}
	if config != nil {
		s.version = config.Version
	}
	return s
}

// RegisterCheck adds a named dependency probe.
func (s *HealthServer) RegisterCheck(name string, checker HealthChecker) {
	s.mu.Lock()
	s.checks[name] = checker
	s.mu.Unlock()
}

// SetReady flips the readiness gate.
func (s *HealthServer) SetReady(ready bool) {
	s.mu.Lock()
	s.ready = ready
	s.mu.Unlock()
}

// SetLive flips the liveness gate.
func (s *HealthServer) SetLive(live bool) {
	s.mu.Lock()
	s.live = live
	s.mu.Unlock()
}

// Handler returns the probe mux. Each endpoint also has a Kubernetes-style
// z alias.
func (s *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	for _, path := range []string{"/health", "/healthz"} {
		mux.HandleFunc(path, s.handleHealth)
	}
	for _, path := range []string{"/ready", "/readyz"} {
		mux.HandleFunc(path, s.gateHandler(func() bool { return s.ready }))
	}
	for _, path := range []string{"/live", "/livez"} {
		mux.HandleFunc(path, s.gateHandler(func() bool { return s.live }))
	}
	return mux
}

// ListenAndServe blocks serving probes until Shutdown is called.
func (s *HealthServer) ListenAndServe(addr string) error {
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	go func() {
		<-s.stopped
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()
	return srv.ListenAndServe()
}

// Shutdown stops the probe listener. Safe to call more than once.
func (s *HealthServer) Shutdown() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := s.evaluate(ctx)

	code := http.StatusOK
	if response.Status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, response)
}

// evaluate runs every registered check and folds the results into one
// status. Any unhealthy check makes the whole response unhealthy, any
// degraded check degrades it.
func (s *HealthServer) evaluate(ctx context.Context) HealthResponse {
	s.mu.RLock()
	checks := make(map[string]HealthChecker, len(s.checks))
	for name, c := range s.checks {
		checks[name] = c
	}
	version := s.version
	s.mu.RUnlock()

	response := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   version,
		Checks:    make([]HealthCheck, 0, len(checks)),
	}
	for name, checker := range checks {
		check := checker(ctx)
		check.Name = name
		response.Checks = append(response.Checks, check)

		switch check.Status {
		case HealthStatusUnhealthy:
			response.Status = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if response.Status == HealthStatusHealthy {
				response.Status = HealthStatusDegraded
			}
		}
	}
	return response
}

// gateHandler serves a boolean probe (/ready, /live) from a gate read
// under the lock.
func (s *HealthServer) gateHandler(gate func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		ok := gate()
		s.mu.RUnlock()

		response := HealthResponse{
			Status:    HealthStatusHealthy,
			Timestamp: time.Now().UTC(),
		}
		code := http.StatusOK
		if !ok {
			response.Status = HealthStatusUnhealthy
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, response)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// connChecker wraps a ping function into a pass/fail checker for a named
// backend.
func connChecker(label string, checkFn func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if err := checkFn(ctx); err != nil {
			return HealthCheck{
				Status:  HealthStatusUnhealthy,
				Message: label + " connection failed: " + err.Error(),
			}
		}
		return HealthCheck{
			Status:  HealthStatusHealthy,
			Message: label + " connection OK",
		}
	}
}

// TemporalHealthChecker probes Temporal connectivity.
func TemporalHealthChecker(checkFn func(ctx context.Context) error) HealthChecker {
	return connChecker("Temporal", checkFn)
}

// GraphStoreHealthChecker probes graph store connectivity.
func GraphStoreHealthChecker(checkFn func(ctx context.Context) error) HealthChecker {
	return connChecker("Graph store", checkFn)
}

// VectorStoreHealthChecker probes the vector index. Vector indexing is
// optional, so a failing probe degrades the service instead of failing it.
func VectorStoreHealthChecker(collection string, checkFn func(ctx context.Context) error) HealthChecker {
	details := map[string]string{"collection": collection}
	return func(ctx context.Context) HealthCheck {
		if checkFn == nil {
			return HealthCheck{
				Status:  HealthStatusHealthy,
				Message: "Vector store configured: " + collection,
			}
		}
		if err := checkFn(ctx); err != nil {
			return HealthCheck{
				Status:  HealthStatusDegraded,
				Message: "Vector store degraded: " + err.Error(),
				Details: details,
			}
		}
		return HealthCheck{
			Status:  HealthStatusHealthy,
			Message: "Vector store OK",
			Details: details,
		}
	}
}

// SessionStoreHealthChecker verifies the on-disk session root exists and
// is a directory.
func SessionStoreHealthChecker(rootDir string) HealthChecker {
	details := map[string]string{"path": rootDir}
	return func(ctx context.Context) HealthCheck {
		info, err := os.Stat(rootDir)
		switch {
		case err != nil:
			return HealthCheck{
				Status:  HealthStatusUnhealthy,
				Message: "Session store root unavailable: " + err.Error(),
				Details: details,
			}
		case !info.IsDir():
			return HealthCheck{
				Status:  HealthStatusUnhealthy,
				Message: "Session store root is not a directory",
				Details: details,
			}
		default:
			return HealthCheck{
				Status:  HealthStatusHealthy,
				Message: "Session store OK",
				Details: details,
			}
		}
	}
}
