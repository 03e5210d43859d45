package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/simforge/simforge/internal/formats"
	"github.com/simforge/simforge/internal/session"
)

const clinicBody = `{
	"json": {
		"nodes": [
			{"id": "g1", "type": "generator", "name": "Patient"},
			{"id": "a1", "type": "activity", "name": "Triage", "data": {"resources": ["Nurse"]}},
			{"id": "t1", "type": "terminator", "name": "Discharge"}
		],
		"edges": [
			{"id": "e1", "source": "g1", "target": "a1", "data": {"condition": "True"}},
			{"id": "e2", "source": "a1", "target": "t1", "data": {"condition": "True"}}
		]
	}
}`

func compileService(t *testing.T, deps CompileDeps) *CompileService {
	t.Helper()
	svc, err := NewCompileService(DefaultAPIConfig(), formats.Default(), deps)
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}
	return svc
}

func postCompile(t *testing.T, svc *CompileService, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCompileService_CompilesDiagram(t *testing.T) {
	svc := compileService(t, CompileDeps{})

	rec := postCompile(t, svc, "/v1/compile", clinicBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp CompileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	if resp.Fingerprint == "" {
		t.Error("expected fingerprint to be set")
	}
	if resp.Cached {
		t.Error("expected first compile to be uncached")
	}
	if resp.GateStatus != "passed" {
		t.Errorf("expected gate status passed, got %q", resp.GateStatus)
	}
	if len(resp.Model) == 0 {
		t.Fatal("expected model payload")
	}

	var model map[string]interface{}
	if err := json.Unmarshal(resp.Model, &model); err != nil {
		t.Fatalf("decoding model payload: %v", err)
	}
	if len(model) == 0 {
		t.Error("expected non-empty model document")
	}
}

func TestCompileService_MemoizesByFingerprint(t *testing.T) {
	svc := compileService(t, CompileDeps{})

	first := postCompile(t, svc, "/v1/compile", clinicBody)
	if first.Code != http.StatusOK {
		t.Fatalf("first compile: expected 200, got %d", first.Code)
	}

	second := postCompile(t, svc, "/v1/compile", clinicBody)
	if second.Code != http.StatusOK {
		t.Fatalf("second compile: expected 200, got %d", second.Code)
	}

	var resp CompileResponse
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !resp.Cached {
		t.Error("expected second compile to be served from cache")
	}
}

func TestCompileService_PersistsSession(t *testing.T) {
	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("creating session store: %v", err)
	}
	svc := compileService(t, CompileDeps{Sessions: store})

	rec := postCompile(t, svc, "/v1/compile?source=clinic.json", clinicBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp CompileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("expected session_id in response")
	}

	sess, err := store.Load(resp.SessionID)
	if err != nil {
		t.Fatalf("loading saved session: %v", err)
	}
	if sess.Source != "clinic.json" {
		t.Errorf("expected source clinic.json, got %s", sess.Source)
	}

	// A cached rerun of the same diagram must not create a second session.
	postCompile(t, svc, "/v1/compile?source=clinic.json", clinicBody)
	if got := len(store.List()); got != 1 {
		t.Errorf("expected 1 stored session after cached rerun, got %d", got)
	}
}

func TestCompileService_RejectsUnknownFormat(t *testing.T) {
	svc := compileService(t, CompileDeps{})

	rec := postCompile(t, svc, "/v1/compile?format=toml", clinicBody)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", rec.Code)
	}
}

func TestCompileService_RejectsMalformedBody(t *testing.T) {
	svc := compileService(t, CompileDeps{})

	rec := postCompile(t, svc, "/v1/compile", "{not json")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for malformed body, got %d", rec.Code)
	}
}

func TestCompileService_RejectsEmptyBody(t *testing.T) {
	svc := compileService(t, CompileDeps{})

	rec := postCompile(t, svc, "/v1/compile", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", rec.Code)
	}
}

func TestCompileService_MethodNotAllowed(t *testing.T) {
	svc := compileService(t, CompileDeps{})

	req := httptest.NewRequest(http.MethodGet, "/v1/compile", nil)
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestCompileService_ListsFormats(t *testing.T) {
	svc := compileService(t, CompileDeps{})

	req := httptest.NewRequest(http.MethodGet, "/v1/formats", nil)
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	got := strings.Join(resp["formats"], ",")
	for _, want := range []string{"json", "yaml", "hcl"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected format %s in %s", want, got)
		}
	}
}

func TestCompileService_ExposesMetrics(t *testing.T) {
	svc := compileService(t, CompileDeps{})

	postCompile(t, svc, "/v1/compile", clinicBody)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "simforge_compiles_total") {
		t.Error("expected compile counter in metrics output")
	}
}

func TestCompileService_HealthEndpoints(t *testing.T) {
	svc := compileService(t, CompileDeps{})
	svc.Health().SetReady(true)

	for _, path := range []string{"/health", "/ready", "/live"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		svc.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, rec.Code)
		}
	}
}
