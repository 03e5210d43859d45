package regress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/simforge/simforge/internal/compiler"
	"github.com/simforge/simforge/internal/formats"
)

const harborDiagram = `{"json":{"nodes":[
{"id":"g1","type":"generator","name":"Vessels"},
{"id":"a1","type":"activity","name":"Unload","data":{"resources":["Berth"]}},
{"id":"a2","type":"activity","name":"Depart"},
{"id":"t1","type":"terminator","name":"Exit"}],
"edges":[
{"id":"e1","source":"g1","target":"a1"},
{"id":"e2","source":"a1","target":"a2"},
{"id":"e3","source":"a2","target":"t1"}]}}`

func compileExpected(t *testing.T, diagramJSON string) json.RawMessage {
	t.Helper()
	env, err := (formats.JSON{}).Decode("test", []byte(diagramJSON))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	doc, err := compiler.CompileEnvelope(env)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := doc.Canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	return out
}

func makeHarborFixture(t *testing.T) Fixture {
	t.Helper()
	return Fixture{
		Name:     "harbor",
		Diagram:  json.RawMessage(harborDiagram),
		Expected: compileExpected(t, harborDiagram),
	}
}

// ==================== Fixtures Tests ====================

func TestReadJSONL(t *testing.T) {
	in := `{"name":"a","diagram":{"json":{"nodes":[],"edges":[]}},"expected":{"scenario":""}}
{"name":"b","format":"json","diagram":{"json":{"nodes":[],"edges":[]}},"expected":{"scenario":""}}
`
	fixtures, err := ReadJSONL(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(fixtures) != 2 {
		t.Fatalf("expected 2 fixtures, got %d", len(fixtures))
	}
	if fixtures[0].Name != "a" || fixtures[1].Format != "json" {
		t.Fatalf("fields not decoded: %+v", fixtures)
	}
}

func TestReadJSONL_EmptyLines(t *testing.T) {
	in := `{"name":"a","diagram":{},"expected":{}}

{"name":"b","diagram":{},"expected":{}}
`
	fixtures, err := ReadJSONL(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(fixtures) != 2 {
		t.Fatalf("expected 2 fixtures, got %d", len(fixtures))
	}
}

func TestReadJSONL_MissingName(t *testing.T) {
	in := `{"diagram":{},"expected":{}}`
	_, err := ReadJSONL(strings.NewReader(in))
	if err == nil {
		t.Fatal("expected error for missing name")
	}
	if !strings.Contains(err.Error(), "missing name") {
		t.Fatalf("expected 'missing name' error, got: %v", err)
	}
}

func TestReadJSONL_MissingDiagram(t *testing.T) {
	in := `{"name":"a","expected":{}}`
	_, err := ReadJSONL(strings.NewReader(in))
	if err == nil {
		t.Fatal("expected error for missing diagram")
	}
	if !strings.Contains(err.Error(), "missing diagram") {
		t.Fatalf("expected 'missing diagram' error, got: %v", err)
	}
}

func TestReadJSONL_MissingExpected(t *testing.T) {
	in := `{"name":"a","diagram":{}}`
	_, err := ReadJSONL(strings.NewReader(in))
	if err == nil {
		t.Fatal("expected error for missing expected")
	}
	if !strings.Contains(err.Error(), "missing expected") {
		t.Fatalf("expected 'missing expected' error, got: %v", err)
	}
}

func TestReadJSONL_InvalidJSON(t *testing.T) {
	in := `{"name":"a",invalid}`
	_, err := ReadJSONL(strings.NewReader(in))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestWriteJSONL_Roundtrip(t *testing.T) {
	fixtures := []Fixture{
		{Name: "a", Diagram: json.RawMessage(`{"json":{}}`), Expected: json.RawMessage(`{"scenario":""}`)},
		{Name: "b", Format: "json", Diagram: json.RawMessage(`{}`), Expected: json.RawMessage(`{}`),
			Normalize: &NormalizeRules{IgnoreFields: []string{"description"}}},
	}

	var sb strings.Builder
	if err := WriteJSONL(&sb, fixtures); err != nil {
		t.Fatalf("WriteJSONL: %v", err)
	}

	back, err := ReadJSONL(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	if len(back) != 2 {
		t.Fatalf("expected 2 fixtures back, got %d", len(back))
	}
	if back[1].Normalize == nil || back[1].Normalize.IgnoreFields[0] != "description" {
		t.Fatal("normalize rules lost in roundtrip")
	}
}

func TestLoadSaveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.jsonl")
	fixtures := []Fixture{makeHarborFixture(t)}

	if err := SaveFile(path, fixtures); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	back, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(back) != 1 || back[0].Name != "harbor" {
		t.Fatalf("unexpected fixtures: %+v", back)
	}
}

// ==================== Compare Tests ====================

func TestCompareModel_Equal(t *testing.T) {
	res := CompareModel("x",
		json.RawMessage(`{"a":1,"b":{"c":true}}`),
		json.RawMessage(`{"b":{"c":true},"a":1}`),
		nil)
	if !res.Pass {
		t.Fatalf("expected pass for same JSON different order, got: %+v", res)
	}
}

func TestCompareModel_MismatchPath(t *testing.T) {
	res := CompareModel("x",
		json.RawMessage(`{"model":{"activities":[{"id":"Unload","handlerType":"Vessels"}]}}`),
		json.RawMessage(`{"model":{"activities":[{"id":"Unload","handlerType":"Trucks"}]}}`),
		nil)
	if res.Pass {
		t.Fatal("expected fail")
	}
	if !strings.Contains(res.Reason, "$.model.activities[0].handlerType") {
		t.Fatalf("expected path in reason, got: %s", res.Reason)
	}
	if !strings.Contains(res.Reason, "Vessels") || !strings.Contains(res.Reason, "Trucks") {
		t.Fatalf("expected values in reason, got: %s", res.Reason)
	}
}

func TestCompareModel_LengthMismatch(t *testing.T) {
	res := CompareModel("x",
		json.RawMessage(`{"model":{"connections":[{"type":"Flow"}]}}`),
		json.RawMessage(`{"model":{"connections":[]}}`),
		nil)
	if res.Pass {
		t.Fatal("expected fail")
	}
	if !strings.Contains(res.Reason, "length mismatch") {
		t.Fatalf("expected length mismatch reason, got: %s", res.Reason)
	}
}

func TestCompareModel_MissingField(t *testing.T) {
	res := CompareModel("x",
		json.RawMessage(`{"scenario":"","model":{}}`),
		json.RawMessage(`{"model":{}}`),
		nil)
	if res.Pass {
		t.Fatal("expected fail")
	}
	if !strings.Contains(res.Reason, "$.scenario") || !strings.Contains(res.Reason, "missing") {
		t.Fatalf("expected missing field reason, got: %s", res.Reason)
	}
}

func TestCompareModel_IgnoreFields(t *testing.T) {
	rules := &NormalizeRules{IgnoreFields: []string{"description"}}
	res := CompareModel("x",
		json.RawMessage(`{"description":"old","model":{}}`),
		json.RawMessage(`{"description":"new","model":{}}`),
		rules)
	if !res.Pass {
		t.Fatalf("expected pass with ignored field, got: %+v", res)
	}
}

func TestCompareModel_SortSlices(t *testing.T) {
	expected := json.RawMessage(`{"model":{"connections":[
		{"type":"Flow","from":"A","to":"B"},
		{"type":"StartToStart","from":"A","to":"C"}]}}`)
	actual := json.RawMessage(`{"model":{"connections":[
		{"type":"StartToStart","from":"A","to":"C"},
		{"type":"Flow","from":"A","to":"B"}]}}`)

	res := CompareModel("x", expected, actual, nil)
	if res.Pass {
		t.Fatal("expected order-sensitive compare to fail")
	}

	res = CompareModel("x", expected, actual, &NormalizeRules{SortSlices: true})
	if !res.Pass {
		t.Fatalf("expected pass with sorted slices, got: %+v", res)
	}
}

func TestCompareModel_InvalidExpected(t *testing.T) {
	res := CompareModel("x", json.RawMessage(`{invalid`), json.RawMessage(`{}`), nil)
	if res.Pass {
		t.Fatal("expected fail for invalid expected")
	}
	if !strings.Contains(res.Reason, "expected model invalid") {
		t.Fatalf("unexpected reason: %s", res.Reason)
	}
}

// ==================== Runner Tests ====================

func TestRunCase_Pass(t *testing.T) {
	r := NewRunner(nil)
	res := r.RunCase(makeHarborFixture(t))
	if !res.Pass {
		t.Fatalf("expected pass, got: %+v", res)
	}
	if res.Name != "harbor" {
		t.Fatalf("name mismatch: %s", res.Name)
	}
}

func TestRunCase_Regression(t *testing.T) {
	f := makeHarborFixture(t)
	f.Expected = json.RawMessage(strings.Replace(string(f.Expected), "Vessels", "Trucks", 1))

	r := NewRunner(nil)
	res := r.RunCase(f)
	if res.Pass {
		t.Fatal("expected fail for tampered expectation")
	}
	if !strings.Contains(res.Reason, "$.model") {
		t.Fatalf("expected model path in reason, got: %s", res.Reason)
	}
}

func TestRunCase_UnknownFormat(t *testing.T) {
	f := makeHarborFixture(t)
	f.Format = "xml"

	r := NewRunner(nil)
	res := r.RunCase(f)
	if res.Pass {
		t.Fatal("expected fail for unknown format")
	}
	if !strings.Contains(res.Reason, "decoder") {
		t.Fatalf("unexpected reason: %s", res.Reason)
	}
}

func TestRunCase_UndecodableDiagram(t *testing.T) {
	f := Fixture{
		Name:     "broken",
		Diagram:  json.RawMessage(`{"not":"a diagram"}`),
		Expected: json.RawMessage(`{}`),
	}
	r := NewRunner(nil)
	res := r.RunCase(f)
	if res.Pass {
		t.Fatal("expected fail for undecodable diagram")
	}
	if !strings.Contains(res.Reason, "decode") {
		t.Fatalf("unexpected reason: %s", res.Reason)
	}
}

func TestRun_Pack(t *testing.T) {
	good := makeHarborFixture(t)
	bad := makeHarborFixture(t)
	bad.Name = "tampered"
	bad.Expected = json.RawMessage(strings.Replace(string(bad.Expected), "Vessels", "Trucks", 1))

	r := NewRunner(nil)
	pack, err := r.Run(context.Background(), []Fixture{good, bad})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pack.CaseCount != 2 || pack.PassCount != 1 || pack.FailCount != 1 {
		t.Fatalf("unexpected counts: %+v", pack)
	}
	if pack.Pass {
		t.Fatal("expected overall fail")
	}
	failures := pack.Failures()
	if len(failures) != 1 || failures[0].Name != "tampered" {
		t.Fatalf("unexpected failures: %+v", failures)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(nil)
	pack, err := r.Run(ctx, []Fixture{makeHarborFixture(t)})
	if err == nil {
		t.Fatal("expected context error")
	}
	if pack.CaseCount != 0 {
		t.Fatalf("expected no cases run, got %d", pack.CaseCount)
	}
}

// ==================== ReportPack Tests ====================

func TestReportPack_Counts(t *testing.T) {
	pack := NewReportPack()
	pack.AddResult(CaseResult{Name: "a", Pass: true})
	pack.AddResult(CaseResult{Name: "b", Pass: false, Reason: "mismatch"})
	pack.Finish()

	if pack.CaseCount != 2 {
		t.Fatalf("expected 2 cases, got %d", pack.CaseCount)
	}
	if pack.PassCount != 1 {
		t.Fatalf("expected 1 pass, got %d", pack.PassCount)
	}
	if pack.FailCount != 1 {
		t.Fatalf("expected 1 fail, got %d", pack.FailCount)
	}
	if pack.Pass {
		t.Fatal("expected overall fail")
	}
}

func TestReportPack_AllPass(t *testing.T) {
	pack := NewReportPack()
	pack.AddResult(CaseResult{Name: "a", Pass: true})
	pack.AddResult(CaseResult{Name: "b", Pass: true})
	pack.Finish()

	if !pack.Pass {
		t.Fatal("expected overall pass")
	}
}

func TestReportPack_String(t *testing.T) {
	pack := NewReportPack()
	pack.AddResult(CaseResult{Name: "a", Pass: true})
	pack.Finish()

	s := pack.String()
	if !strings.Contains(s, "1 cases") {
		t.Fatalf("expected case count in string, got: %s", s)
	}
	if !strings.Contains(s, "1 pass") {
		t.Fatalf("expected pass count in string, got: %s", s)
	}
}

func TestReportPack_Write(t *testing.T) {
	dir := t.TempDir()
	pack := NewReportPack()
	pack.AddResult(CaseResult{Name: "a", Pass: true})
	pack.Finish()

	if err := pack.Write(dir); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "summary.json"))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var back ReportPack
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if back.CaseCount != 1 || !back.Pass {
		t.Fatalf("unexpected summary: %+v", back)
	}
}

// ==================== Generate Tests ====================

const harborYAML = `nodes:
  - id: g1
    type: generator
    name: Vessels
  - id: a1
    type: activity
    name: Unload
edges:
  - id: e1
    source: g1
    target: a1
`

func TestGenerateFromDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "harbor.json"), []byte(harborDiagram), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "quay.yaml"), []byte(harborYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644); err != nil {
		t.Fatal(err)
	}

	fixtures, err := GenerateFromDir(nil, dir)
	if err != nil {
		t.Fatalf("GenerateFromDir: %v", err)
	}
	if len(fixtures) != 2 {
		t.Fatalf("expected 2 fixtures, got %d", len(fixtures))
	}
	// Sorted by path
	if fixtures[0].Name != "harbor" || fixtures[1].Name != "quay" {
		t.Fatalf("unexpected names: %s, %s", fixtures[0].Name, fixtures[1].Name)
	}
	// YAML source is re-encoded to the JSON wire form
	if fixtures[1].Format != "json" {
		t.Fatalf("expected yaml fixture re-encoded as json, got %s", fixtures[1].Format)
	}
	if !json.Valid(fixtures[1].Diagram) {
		t.Fatal("re-encoded diagram is not valid JSON")
	}

	// Generated fixtures replay clean
	r := NewRunner(nil)
	for _, f := range fixtures {
		if res := r.RunCase(f); !res.Pass {
			t.Errorf("generated fixture %s failed: %s", f.Name, res.Reason)
		}
	}
}

func TestUpdate_NoChanges(t *testing.T) {
	fixtures := []Fixture{makeHarborFixture(t)}
	updated, changed, err := Update(nil, fixtures)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if changed != 0 {
		t.Fatalf("expected no changes, got %d", changed)
	}
	if len(updated) != 1 {
		t.Fatalf("expected 1 fixture, got %d", len(updated))
	}
}

func TestUpdate_RepinsExpected(t *testing.T) {
	f := makeHarborFixture(t)
	f.Expected = json.RawMessage(strings.Replace(string(f.Expected), "Vessels", "Trucks", 1))

	updated, changed, err := Update(nil, []Fixture{f})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if changed != 1 {
		t.Fatalf("expected 1 change, got %d", changed)
	}

	r := NewRunner(nil)
	if res := r.RunCase(updated[0]); !res.Pass {
		t.Fatalf("updated fixture should replay clean: %s", res.Reason)
	}
}

// ==================== Recorder Tests ====================

func TestRecorder_CapturesCompileTraffic(t *testing.T) {
	modelJSON := string(compileExpected(t, harborDiagram))
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/compile" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(modelJSON))
			return
		}
		w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	outPath := filepath.Join(t.TempDir(), "recorded.jsonl")
	rec, err := NewRecorder(&RecorderConfig{
		TargetURL:  upstream.URL,
		OutputPath: outPath,
	})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	proxy := httptest.NewServer(rec.Handler())
	defer proxy.Close()

	// A compile request is recorded
	resp, err := http.Post(proxy.URL+"/v1/compile", "application/json", strings.NewReader(harborDiagram))
	if err != nil {
		t.Fatalf("POST compile: %v", err)
	}
	resp.Body.Close()

	// Other traffic passes through unrecorded
	resp, err = http.Get(proxy.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	resp.Body.Close()

	if rec.Count() != 1 {
		t.Fatalf("expected 1 recorded fixture, got %d", rec.Count())
	}

	if err := rec.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	fixtures, err := LoadFile(outPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(fixtures) != 1 {
		t.Fatalf("expected 1 fixture in file, got %d", len(fixtures))
	}
	if fixtures[0].Name != "recorded-001" {
		t.Fatalf("unexpected name: %s", fixtures[0].Name)
	}

	// The recorded fixture replays against the live compiler
	r := NewRunner(nil)
	if res := r.RunCase(fixtures[0]); !res.Pass {
		t.Fatalf("recorded fixture failed replay: %s", res.Reason)
	}
}
