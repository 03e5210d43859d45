package index

import (
	"context"
	"errors"
	"testing"

	"github.com/simforge/simforge/internal/compiler"
	"github.com/simforge/simforge/internal/diagram"
	"github.com/simforge/simforge/internal/pipeline"
	"github.com/simforge/simforge/internal/vector"
)

type fakeRepo struct {
	upserted []vector.Document
	fail     bool
}

func (f *fakeRepo) Upsert(ctx context.Context, docs []vector.Document) error {
	if f.fail {
		return errors.New("connection refused")
	}
	f.upserted = append(f.upserted, docs...)
	return nil
}

func (f *fakeRepo) Search(ctx context.Context, vec []float32, topK int) ([]vector.SearchResult, error) {
	return nil, nil
}

func (f *fakeRepo) Close() error { return nil }

func compiledContext() *pipeline.StageContext {
	g := &diagram.Graph{
		Nodes: []diagram.Node{
			{ID: "g1", Type: diagram.NodeGenerator, Name: "Order"},
			{ID: "a1", Type: diagram.NodeActivity, Name: "Pick"},
		},
		Edges: []diagram.Edge{
			{ID: "e1", Source: "g1", Target: "a1", Data: diagram.EdgeData{Condition: diagram.Unconditional}},
		},
	}
	idx := diagram.NewIndex(g)
	return &pipeline.StageContext{
		Index:  idx,
		Doc:    compiler.CompileIndex(idx),
		Source: "order.json",
		Params: map[string]string{},
	}
}

func TestIndex_UpsertsModel(t *testing.T) {
	repo := &fakeRepo{}
	sc := compiledContext()
	sc.Vectors = vector.NewIndexer(repo)
	sc.Params["session_id"] = "sess-1"

	result, err := New().Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Status != pipeline.StatusSuccess {
		t.Errorf("expected success, got %s: %v", result.Status, result.Errors)
	}
	if len(repo.upserted) != 1 {
		t.Fatalf("expected 1 upserted document, got %d", len(repo.upserted))
	}
	if repo.upserted[0].Metadata["model_id"] != "sess-1" {
		t.Errorf("expected model_id sess-1, got %q", repo.upserted[0].Metadata["model_id"])
	}
	if result.Metrics.StoreCalls != 1 {
		t.Errorf("expected 1 store call, got %d", result.Metrics.StoreCalls)
	}
}

func TestIndex_DerivesModelIDWithoutSession(t *testing.T) {
	repo := &fakeRepo{}
	sc := compiledContext()
	sc.Vectors = vector.NewIndexer(repo)

	result, err := New().Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Metadata["model_id"] == "" {
		t.Error("expected derived model_id metadata")
	}
	if len(repo.upserted) != 1 {
		t.Fatalf("expected 1 upserted document, got %d", len(repo.upserted))
	}
}

func TestIndex_NoVectorStorePassesThrough(t *testing.T) {
	sc := compiledContext()

	result, err := New().Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Status != pipeline.StatusPassthrough {
		t.Errorf("expected passthrough, got %s", result.Status)
	}
	if result.Metadata["passthrough_reason"] == "" {
		t.Error("expected passthrough reason")
	}
}

func TestIndex_UpsertFailureFails(t *testing.T) {
	sc := compiledContext()
	sc.Vectors = vector.NewIndexer(&fakeRepo{fail: true})

	result, err := New().Run(context.Background(), sc)
	if err == nil {
		t.Fatal("expected error when upsert fails")
	}
	if result.Status != pipeline.StatusFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
}
