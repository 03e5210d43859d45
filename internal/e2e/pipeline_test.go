package e2e

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/simforge/simforge/internal/formats"
	"github.com/simforge/simforge/internal/pipeline"
	"github.com/simforge/simforge/internal/pipeline/audit"
	"github.com/simforge/simforge/internal/pipeline/gate"
	"github.com/simforge/simforge/internal/pipeline/ingest"
	"github.com/simforge/simforge/internal/pipeline/lower"
	"github.com/simforge/simforge/internal/pipeline/persist"
	"github.com/simforge/simforge/internal/qualitygate"
	"github.com/simforge/simforge/internal/regress"
	"github.com/simforge/simforge/internal/session"
	"github.com/simforge/simforge/internal/simmodel"
)

const orderFlowDiagram = `{
  "json": {
    "nodes": [
      {"id": "g1", "type": "generator", "name": "Order"},
      {"id": "a1", "type": "activity", "name": "Pick", "data": {"resources": ["Picker"]}},
      {"id": "a2", "type": "activity", "name": "Pack", "data": {"resources": ["Packer"]}},
      {"id": "t1", "type": "terminator", "name": "Shipped"}
    ],
    "edges": [
      {"id": "e1", "source": "g1", "target": "a1", "data": {"condition": "True"}},
      {"id": "e2", "source": "a1", "target": "a2", "data": {"condition": "True"}},
      {"id": "e3", "source": "a2", "target": "t1", "data": {"condition": "True"}}
    ]
  }
}`

// runStages drives the given stages over one context. Stage errors abort
// the run; failed gate reports do not.
func runStages(t *testing.T, sc *pipeline.StageContext, stages []pipeline.Stage) {
	t.Helper()
	ctx := context.Background()
	for _, stage := range stages {
		if _, err := stage.Run(ctx, sc); err != nil {
			t.Fatalf("stage %s: %v", stage.Name(), err)
		}
	}
}

func fullPipeline() []pipeline.Stage {
	return []pipeline.Stage{ingest.New(), lower.New(), audit.New(), gate.New(), persist.New()}
}

func writeDiagram(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPipeline_DiagramFileToSession(t *testing.T) {
	tmpDir := t.TempDir()
	input := writeDiagram(t, tmpDir, "orders.json", orderFlowDiagram)

	store, err := session.NewStore(filepath.Join(tmpDir, "sessions"))
	if err != nil {
		t.Fatal(err)
	}

	sc := &pipeline.StageContext{
		Registry: formats.Default(),
		Sessions: store,
		Params:   map[string]string{"input": input},
	}
	runStages(t, sc, fullPipeline())

	if sc.Doc == nil {
		t.Fatal("pipeline produced no document")
	}
	if got := len(sc.Doc.Model.Activities); got != 2 {
		t.Fatalf("expected 2 activities, got %d", got)
	}
	for _, act := range sc.Doc.Model.Activities {
		if act.HandlerType != "Order" {
			t.Errorf("activity %s: expected handler Order, got %q", act.ID, act.HandlerType)
		}
	}
	if got := len(sc.Doc.Model.Resources); got != 2 {
		t.Errorf("expected 2 resources, got %d", got)
	}
	if sc.GateReport == nil {
		t.Fatal("expected gate report")
	}
	if sc.GateReport.Status != qualitygate.GatePassed {
		t.Errorf("expected gates to pass, got %s: %s", sc.GateReport.Status, sc.GateReport.Summary)
	}

	// The run must be durable: one session holding the diagram, the
	// model and the gate report, reloadable byte for byte.
	summaries := store.List()
	if len(summaries) != 1 {
		t.Fatalf("expected 1 stored session, got %d", len(summaries))
	}
	sess, err := store.Load(summaries[0].ID)
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	if sess.Source != input {
		t.Errorf("session source = %q, want %q", sess.Source, input)
	}
	if sess.GateStatus != string(qualitygate.GatePassed) {
		t.Errorf("session gate status = %q, want passed", sess.GateStatus)
	}

	stored, err := store.LoadArtifact(sess, session.ArtifactModel)
	if err != nil {
		t.Fatalf("loading model artifact: %v", err)
	}
	canonical, err := sc.Doc.Canonical()
	if err != nil {
		t.Fatal(err)
	}
	if string(stored) != string(canonical) {
		t.Error("stored model artifact differs from compiled model")
	}

	report, err := store.LoadArtifact(sess, session.ArtifactReport)
	if err != nil {
		t.Fatalf("loading gate report artifact: %v", err)
	}
	var pr qualitygate.PipelineResult
	if err := json.Unmarshal(report, &pr); err != nil {
		t.Fatalf("decoding gate report artifact: %v", err)
	}
	if pr.Status != qualitygate.GatePassed {
		t.Errorf("stored report status = %s, want passed", pr.Status)
	}
}

func TestPipeline_YAMLDiagram(t *testing.T) {
	tmpDir := t.TempDir()
	input := writeDiagram(t, tmpDir, "flow.yaml", `nodes:
  - id: g1
    type: generator
    name: Patient
  - id: a1
    type: activity
    name: Triage
edges:
  - id: e1
    source: g1
    target: a1
    condition: "True"
`)

	sc := &pipeline.StageContext{
		Registry: formats.Default(),
		Params:   map[string]string{"input": input},
	}
	runStages(t, sc, []pipeline.Stage{ingest.New(), lower.New()})

	if sc.Format != "yaml" {
		t.Errorf("expected yaml format, got %q", sc.Format)
	}
	if len(sc.Doc.Model.Activities) != 1 {
		t.Fatalf("expected 1 activity, got %d", len(sc.Doc.Model.Activities))
	}
	if sc.Doc.Model.Activities[0].HandlerType != "Patient" {
		t.Errorf("expected Patient handler, got %q", sc.Doc.Model.Activities[0].HandlerType)
	}
}

func TestPipeline_UnclaimedActivityStillPersists(t *testing.T) {
	// An activity no generator reaches keeps the Unknown handler. The gate
	// stage degrades but the session snapshot is still written.
	tmpDir := t.TempDir()
	input := writeDiagram(t, tmpDir, "orphan.json", `{
	  "json": {
	    "nodes": [
	      {"id": "g1", "type": "generator", "name": "Order"},
	      {"id": "a1", "type": "activity", "name": "Pick"},
	      {"id": "a2", "type": "activity", "name": "Orphan"}
	    ],
	    "edges": [
	      {"id": "e1", "source": "g1", "target": "a1", "data": {"condition": "True"}}
	    ]
	  }
	}`)

	store, err := session.NewStore(filepath.Join(tmpDir, "sessions"))
	if err != nil {
		t.Fatal(err)
	}

	sc := &pipeline.StageContext{
		Registry: formats.Default(),
		Sessions: store,
		Params:   map[string]string{"input": input},
	}
	runStages(t, sc, fullPipeline())

	if got := sc.Doc.Model.UnknownHandlerCount(); got != 1 {
		t.Errorf("expected 1 unknown handler, got %d", got)
	}
	if sc.GateReport == nil {
		t.Fatal("expected gate report")
	}
	if sc.GateReport.Status == qualitygate.GatePassed {
		t.Error("expected a degraded gate outcome for the orphan activity")
	}

	summaries := store.List()
	if len(summaries) != 1 {
		t.Fatalf("expected the session to persist despite gates, got %d", len(summaries))
	}
	if summaries[0].GateStatus == string(qualitygate.GatePassed) {
		t.Errorf("session should carry the degraded gate status, got %q", summaries[0].GateStatus)
	}
}

func TestPipeline_SessionDiffAcrossEdits(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := session.NewStore(filepath.Join(tmpDir, "sessions"))
	if err != nil {
		t.Fatal(err)
	}

	compile := func(name, content string) *session.Session {
		input := writeDiagram(t, tmpDir, name, content)
		sc := &pipeline.StageContext{
			Registry: formats.Default(),
			Sessions: store,
			Params:   map[string]string{"input": input},
		}
		runStages(t, sc, fullPipeline())

		for _, s := range store.List() {
			if s.Source == input {
				sess, err := store.Load(s.ID)
				if err != nil {
					t.Fatal(err)
				}
				return sess
			}
		}
		t.Fatalf("no session stored for %s", input)
		return nil
	}

	oldSess := compile("v1.json", orderFlowDiagram)

	// Second revision adds an Inspect activity between Pack and Shipped.
	newSess := compile("v2.json", `{
	  "json": {
	    "nodes": [
	      {"id": "g1", "type": "generator", "name": "Order"},
	      {"id": "a1", "type": "activity", "name": "Pick", "data": {"resources": ["Picker"]}},
	      {"id": "a2", "type": "activity", "name": "Pack", "data": {"resources": ["Packer"]}},
	      {"id": "a3", "type": "activity", "name": "Inspect"},
	      {"id": "t1", "type": "terminator", "name": "Shipped"}
	    ],
	    "edges": [
	      {"id": "e1", "source": "g1", "target": "a1", "data": {"condition": "True"}},
	      {"id": "e2", "source": "a1", "target": "a2", "data": {"condition": "True"}},
	      {"id": "e3", "source": "a2", "target": "a3", "data": {"condition": "True"}},
	      {"id": "e4", "source": "a3", "target": "t1", "data": {"condition": "True"}}
	    ]
	  }
	}`)

	diff, err := session.DiffSessions(store, oldSess, newSess)
	if err != nil {
		t.Fatalf("diffing sessions: %v", err)
	}

	var added bool
	for _, d := range diff.Activities {
		if d.ID == "Inspect" {
			added = true
		}
	}
	if !added {
		t.Error("diff should report the added Inspect activity")
	}

	rendered := session.FormatDiff(diff)
	if !strings.Contains(rendered, "Inspect") {
		t.Errorf("formatted diff missing Inspect:\n%s", rendered)
	}
}

func TestPipeline_FixtureRoundTrip(t *testing.T) {
	// A fixture generated from today's compiler output must pass a
	// regression run against the same compiler.
	tmpDir := t.TempDir()
	writeDiagram(t, tmpDir, "orders.json", orderFlowDiagram)

	registry := formats.Default()
	fixtures, err := regress.GenerateFromDir(registry, tmpDir)
	if err != nil {
		t.Fatalf("generating fixtures: %v", err)
	}
	if len(fixtures) != 1 {
		t.Fatalf("expected 1 fixture, got %d", len(fixtures))
	}

	fixturesPath := filepath.Join(tmpDir, "fixtures.jsonl")
	if err := regress.SaveFile(fixturesPath, fixtures); err != nil {
		t.Fatal(err)
	}
	loaded, err := regress.LoadFile(fixturesPath)
	if err != nil {
		t.Fatal(err)
	}

	pack, err := regress.NewRunner(registry).Run(context.Background(), loaded)
	if err != nil {
		t.Fatalf("running fixtures: %v", err)
	}
	if failures := pack.Failures(); len(failures) > 0 {
		t.Fatalf("expected all fixtures to pass, got %d failures: %+v", len(failures), failures)
	}
}

func TestPipeline_CanonicalOutputIsStable(t *testing.T) {
	tmpDir := t.TempDir()
	input := writeDiagram(t, tmpDir, "orders.json", orderFlowDiagram)

	render := func() []byte {
		sc := &pipeline.StageContext{
			Registry: formats.Default(),
			Params:   map[string]string{"input": input},
		}
		runStages(t, sc, []pipeline.Stage{ingest.New(), lower.New()})
		out, err := sc.Doc.Canonical()
		if err != nil {
			t.Fatal(err)
		}
		return out
	}

	first := render()
	second := render()
	if string(first) != string(second) {
		t.Error("two compiles of the same diagram rendered differently")
	}

	var doc simmodel.Document
	if err := json.Unmarshal(first, &doc); err != nil {
		t.Fatalf("canonical output is not valid JSON: %v", err)
	}
}
