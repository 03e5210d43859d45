package regress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"sync"
	"time"
)

// RecorderConfig configures the fixture recorder.
type RecorderConfig struct {
	TargetURL   string // Upstream compile service to proxy to
	ListenAddr  string // Address to listen on (default ":8099")
	OutputPath  string // JSONL file to write fixtures to
	CompilePath string // Request path to record (default "/v1/compile")
	MaxBodySize int64  // Max captured body size in bytes (default 1MB)
}

// Recorder is an HTTP reverse proxy in front of a running compile server.
// Every successful compile request passing through it is captured as one
// fixture line: the request body becomes the diagram, the response body the
// expected model.
type Recorder struct {
	config *RecorderConfig
	server *http.Server
	output *os.File
	enc    *json.Encoder
	mu     sync.Mutex
	count  int
}

type contextKey string

const diagramKey contextKey = "recorder_diagram"

// NewRecorder creates a fixture recorder.
func NewRecorder(config *RecorderConfig) (*Recorder, error) {
	if config.ListenAddr == "" {
		config.ListenAddr = ":8099"
	}
	if config.CompilePath == "" {
		config.CompilePath = "/v1/compile"
	}
	if config.MaxBodySize == 0 {
		config.MaxBodySize = 1 << 20
	}

	target, err := url.Parse(config.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}

	f, err := os.Create(config.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	rec := &Recorder{
		config: config,
		output: f,
		enc:    json.NewEncoder(f),
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	origDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		origDirector(req)
		req.Host = target.Host
	}
	proxy.ModifyResponse = rec.recordResponse

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if r.Method == http.MethodPost && r.URL.Path == config.CompilePath && r.Body != nil {
			bodyBytes, _ := io.ReadAll(io.LimitReader(r.Body, config.MaxBodySize))
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			if json.Valid(bodyBytes) {
				ctx = context.WithValue(ctx, diagramKey, json.RawMessage(bodyBytes))
			}
		}
		proxy.ServeHTTP(w, r.WithContext(ctx))
	})

	rec.server = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return rec, nil
}

// Handler exposes the recording proxy for embedding in tests.
func (rec *Recorder) Handler() http.Handler {
	return rec.server.Handler
}

// recordResponse captures successful compile responses as fixture lines.
func (rec *Recorder) recordResponse(resp *http.Response) error {
	diagram, _ := resp.Request.Context().Value(diagramKey).(json.RawMessage)
	if diagram == nil || resp.StatusCode != http.StatusOK {
		return nil
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, rec.config.MaxBodySize))
	if err != nil {
		return err
	}
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	if !json.Valid(bodyBytes) {
		return nil
	}

	rec.mu.Lock()
	rec.count++
	name := fmt.Sprintf("recorded-%03d", rec.count)
	fixture := Fixture{
		Name:     name,
		Format:   "json",
		Diagram:  diagram,
		Expected: bodyBytes,
	}
	err = rec.enc.Encode(&fixture)
	rec.mu.Unlock()

	return err
}

// Start begins listening and proxying.
func (rec *Recorder) Start() error {
	return rec.server.ListenAndServe()
}

// Stop gracefully shuts down the recorder.
func (rec *Recorder) Stop(ctx context.Context) error {
	defer rec.output.Close()
	return rec.server.Shutdown(ctx)
}

// Count returns the number of fixtures recorded.
func (rec *Recorder) Count() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.count
}
