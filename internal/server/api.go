package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/simforge/simforge/internal/formats"
	"github.com/simforge/simforge/internal/graphstore"
	"github.com/simforge/simforge/internal/pipeline"
	"github.com/simforge/simforge/internal/pipeline/audit"
	"github.com/simforge/simforge/internal/pipeline/gate"
	"github.com/simforge/simforge/internal/pipeline/index"
	"github.com/simforge/simforge/internal/pipeline/ingest"
	"github.com/simforge/simforge/internal/pipeline/lower"
	"github.com/simforge/simforge/internal/pipeline/persist"
	"github.com/simforge/simforge/internal/qualitygate"
	"github.com/simforge/simforge/internal/session"
	"github.com/simforge/simforge/internal/vector"
)

// APIConfig configures the compile service.
type APIConfig struct {
	Addr         string // default ":8085"
	Version      string
	CacheSize    int   // memoized compile results (default 256)
	MaxBodyBytes int64 // request body limit (default 8 MiB)
}

// DefaultAPIConfig returns sensible defaults.
func DefaultAPIConfig() *APIConfig {
	return &APIConfig{
		Addr:         ":8085",
		CacheSize:    256,
		MaxBodyBytes: 8 << 20,
	}
}

// CompileDeps carries the optional backends the compile service persists to.
// Any nil dependency turns the corresponding pipeline stage into a
// passthrough.
type CompileDeps struct {
	Sessions *session.Store
	Graph    graphstore.Repository
	Vectors  *vector.Indexer
	Gates    *qualitygate.Pipeline
}

// CompileResponse is the body returned by POST /v1/compile.
type CompileResponse struct {
	SessionID   string                      `json:"session_id,omitempty"`
	Fingerprint string                      `json:"fingerprint"`
	Cached      bool                        `json:"cached"`
	GateStatus  string                      `json:"gate_status,omitempty"`
	Warnings    []string                    `json:"warnings,omitempty"`
	Model       json.RawMessage             `json:"model"`
	Report      *qualitygate.PipelineResult `json:"report,omitempty"`
}

// apiMetrics holds the prometheus instruments for the compile service.
type apiMetrics struct {
	registry        *prometheus.Registry
	compilesTotal   *prometheus.CounterVec
	compileDuration *prometheus.HistogramVec
	cacheHits       prometheus.Counter
	inFlight        prometheus.Gauge
}

func newAPIMetrics() *apiMetrics {
	reg := prometheus.NewRegistry()
	m := &apiMetrics{registry: reg}

	m.compilesTotal = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "simforge_compiles_total",
			Help: "Total number of compile requests",
		},
		[]string{"format", "status"},
	)

	m.compileDuration = promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "simforge_compile_duration_seconds",
			Help:    "Compile request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"format"},
	)

	m.cacheHits = promauto.With(reg).NewCounter(
		prometheus.CounterOpts{
			Name: "simforge_compile_cache_hits_total",
			Help: "Compile requests served from the memoization cache",
		},
	)

	m.inFlight = promauto.With(reg).NewGauge(
		prometheus.GaugeOpts{
			Name: "simforge_http_requests_in_flight",
			Help: "In-flight compile requests",
		},
	)

	return m
}

// CompileService is the HTTP compile API. Lowering is a pure function of the
// diagram bytes, so results are memoized in an LRU cache keyed by the input
// fingerprint.
type CompileService struct {
	config   *APIConfig
	registry *formats.Registry
	deps     CompileDeps
	health   *HealthServer
	metrics  *apiMetrics
	cache    *lru.Cache[string, CompileResponse]
	server   *http.Server
}

// NewCompileService creates the compile API server.
func NewCompileService(config *APIConfig, registry *formats.Registry, deps CompileDeps) (*CompileService, error) {
	if config == nil {
		config = DefaultAPIConfig()
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 256
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 8 << 20
	}
	if registry == nil {
		registry = formats.Default()
	}

	cache, err := lru.New[string, CompileResponse](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating compile cache: %w", err)
	}

	s := &CompileService{
		config:   config,
		registry: registry,
		deps:     deps,
		health:   NewHealthServer(&HealthConfig{Version: config.Version}),
		metrics:  newAPIMetrics(),
		cache:    cache,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/compile", s.handleCompile)
	mux.HandleFunc("/v1/formats", s.handleFormats)
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	healthHandler := s.health.Handler()
	for _, p := range []string{"/health", "/ready", "/live", "/healthz", "/readyz", "/livez"} {
		mux.Handle(p, healthHandler)
	}

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Health exposes the embedded health server so callers can register
// dependency checks and flip readiness.
func (s *CompileService) Health() *HealthServer { return s.health }

// Handler exposes the service routes for testing.
func (s *CompileService) Handler() http.Handler { return s.server.Handler }

// Start begins serving the compile API.
func (s *CompileService) Start() error {
	s.health.SetReady(true)
	slog.Info("Starting compile service", "addr", s.config.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("compile service error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the service.
func (s *CompileService) Stop(ctx context.Context) error {
	slog.Info("Stopping compile service")
	s.health.SetReady(false)
	return s.server.Shutdown(ctx)
}

// handleCompile handles POST /v1/compile. The body is a diagram in any
// registered format; ?format= selects the decoder (default json) and
// ?source= labels the input.
func (s *CompileService) handleCompile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.metrics.inFlight.Inc()
	defer s.metrics.inFlight.Dec()

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		source = "request." + format
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	if len(body) == 0 {
		http.Error(w, "Empty diagram body", http.StatusBadRequest)
		return
	}

	key := format + ":" + session.ContentHash(body)
	if cached, ok := s.cache.Get(key); ok {
		s.metrics.cacheHits.Inc()
		s.metrics.compilesTotal.WithLabelValues(format, "cached").Inc()
		cached.Cached = true
		s.writeJSON(w, http.StatusOK, cached)
		return
	}

	start := time.Now()
	resp, status, err := s.compile(r.Context(), format, source, body)
	s.metrics.compileDuration.WithLabelValues(format).Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.compilesTotal.WithLabelValues(format, "error").Inc()
		slog.Error("Compile request failed", "source", source, "format", format, "error", err)
		http.Error(w, err.Error(), status)
		return
	}

	s.metrics.compilesTotal.WithLabelValues(format, "ok").Inc()
	s.cache.Add(key, *resp)
	s.writeJSON(w, http.StatusOK, *resp)
}

// compile drives the full pipeline over an in-memory diagram.
func (s *CompileService) compile(ctx context.Context, format, source string, body []byte) (*CompileResponse, int, error) {
	dec, err := s.registry.Decoder(format)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	env, err := dec.Decode(source, body)
	if err != nil {
		return nil, http.StatusUnprocessableEntity, fmt.Errorf("decoding diagram: %w", err)
	}

	sc := &pipeline.StageContext{
		Raw:      body,
		Envelope: env,
		Source:   source,
		Format:   format,
		Registry: s.registry,
		Sessions: s.deps.Sessions,
		GraphDB:  s.deps.Graph,
		Vectors:  s.deps.Vectors,
		Gates:    s.deps.Gates,
		Params:   make(map[string]string),
	}

	stages := []pipeline.Stage{
		ingest.New(),
		lower.New(),
		audit.New(),
		gate.New(),
		persist.New(),
		index.New(),
	}

	var warnings []string
	for _, stage := range stages {
		result, runErr := stage.Run(ctx, sc)
		if result != nil {
			warnings = append(warnings, result.Warnings...)
			if id := result.Metadata["session_id"]; id != "" {
				sc.Params["session_id"] = id
			}
		}
		if runErr != nil {
			status := http.StatusInternalServerError
			if stage.Name() == "ingest" {
				status = http.StatusUnprocessableEntity
			}
			return nil, status, fmt.Errorf("stage %s: %w", stage.Name(), runErr)
		}
	}

	canonical, err := sc.Doc.Canonical()
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("rendering model: %w", err)
	}

	resp := &CompileResponse{
		SessionID:   sc.Params["session_id"],
		Fingerprint: session.ContentHash(body),
		Warnings:    warnings,
		Model:       canonical,
		Report:      sc.GateReport,
	}
	if sc.GateReport != nil {
		resp.GateStatus = string(sc.GateReport.Status)
	}

	return resp, http.StatusOK, nil
}

// handleFormats handles GET /v1/formats.
func (s *CompileService) handleFormats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string][]string{"formats": s.registry.Formats()})
}

func (s *CompileService) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
