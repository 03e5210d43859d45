package vector

import (
	"context"
	"testing"

	"github.com/simforge/simforge/internal/simmodel"
)

func makeFeatureDoc() *simmodel.Document {
	return &simmodel.Document{
		Model: simmodel.Model{
			EntityRelationships: []simmodel.EntityRelationship{
				{Owner: "Vessels", Component: "Tugs"},
			},
			Resources: []simmodel.Resource{
				{Type: "Berth", Group: "Berth", Quantity: 0},
			},
			Activities: []simmodel.Activity{
				{
					ID:          "Unload",
					HandlerType: "Vessels",
					Attributes:  simmodel.Attributes{Initial: true},
					Conditions:  []simmodel.Condition{{Attribute: "laden", Value: "true"}},
					Requirements: []simmodel.Requirement{
						{ResourceGroups: []string{"Berth"}, Quantity: 1},
					},
				},
				{ID: "Depart", HandlerType: "Vessels"},
				{ID: "Audit", HandlerType: simmodel.UnknownHandler},
			},
			Connections: []simmodel.Connection{
				{Type: simmodel.ConnFlow, From: "Unload", To: "Depart"},
				{Type: simmodel.ConnStartToStart, From: "Unload", To: "Audit"},
			},
		},
	}
}

func TestFeaturizeDimension(t *testing.T) {
	v := Featurize(makeFeatureDoc())
	if len(v) != Dim {
		t.Fatalf("expected %d dims, got %d", Dim, len(v))
	}
	for i, f := range v {
		if f < 0 || f > 1 {
			t.Errorf("dim %d out of range: %f", i, f)
		}
	}
}

func TestFeaturizeDeterministic(t *testing.T) {
	v1 := Featurize(makeFeatureDoc())
	v2 := Featurize(makeFeatureDoc())
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("dim %d differs between runs: %f != %f", i, v1[i], v2[i])
		}
	}
}

func TestFeaturizeComponents(t *testing.T) {
	v := Featurize(makeFeatureDoc())

	// 3 activities -> 3/11
	if want := float32(3) / 11; v[0] != want {
		t.Errorf("activity dim: got %f, want %f", v[0], want)
	}
	// 1 known entity (Vessels)
	if want := float32(1) / 9; v[1] != want {
		t.Errorf("entity dim: got %f, want %f", v[1], want)
	}
	// Connection type fractions: 1 Flow + 1 StartToStart of 2
	if v[5] != 0.5 {
		t.Errorf("StartToStart fraction: got %f, want 0.5", v[5])
	}
	if v[7] != 0.5 {
		t.Errorf("Flow fraction: got %f, want 0.5", v[7])
	}
	if v[4] != 0 || v[6] != 0 {
		t.Errorf("unused connection fractions should be 0, got %f %f", v[4], v[6])
	}
	// 1 of 3 activities unclaimed
	if want := float32(1) / 3; v[8] != want {
		t.Errorf("unknown ratio: got %f, want %f", v[8], want)
	}
	// 1 of 3 initial
	if want := float32(1) / 3; v[9] != want {
		t.Errorf("initial ratio: got %f, want %f", v[9], want)
	}
	// Busiest handler (Vessels) has 2 of 3 activities
	if want := float32(2) / 3; v[13] != want {
		t.Errorf("handler load: got %f, want %f", v[13], want)
	}
}

func TestFeaturizeEmptyModel(t *testing.T) {
	v := Featurize(simmodel.NewDocument())
	for i, f := range v {
		if f != 0 {
			t.Errorf("dim %d of empty model: got %f, want 0", i, f)
		}
	}
}

func TestFeaturizeDistinguishesModels(t *testing.T) {
	a := Featurize(makeFeatureDoc())

	other := makeFeatureDoc()
	other.Model.Activities = other.Model.Activities[:1]
	other.Model.Connections = nil
	b := Featurize(other)

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different models produced identical vectors")
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(makeFeatureDoc())
	want := "activities=3 connections=2 entities=1 resources=1 relationships=1 unknown=1"
	if s != want {
		t.Fatalf("summary mismatch:\ngot  %s\nwant %s", s, want)
	}
}

func TestPointIDStable(t *testing.T) {
	a := PointID("abc123")
	b := PointID("abc123")
	if a != b {
		t.Fatalf("point ID not stable: %s != %s", a, b)
	}
	if len(a) != 36 {
		t.Fatalf("expected UUID form, got %s", a)
	}
	if PointID("other") == a {
		t.Fatal("different model IDs mapped to same point ID")
	}
}

type fakeRepo struct {
	upserted []Document
	searched [][]float32
	results  []SearchResult
}

func (f *fakeRepo) Upsert(_ context.Context, docs []Document) error {
	f.upserted = append(f.upserted, docs...)
	return nil
}

func (f *fakeRepo) Search(_ context.Context, vec []float32, _ int) ([]SearchResult, error) {
	f.searched = append(f.searched, vec)
	return f.results, nil
}

func (f *fakeRepo) Close() error { return nil }

func TestIndexerIndexModel(t *testing.T) {
	repo := &fakeRepo{}
	ix := NewIndexer(repo)

	doc := makeFeatureDoc()
	if err := ix.IndexModel(context.Background(), "model-1", "harbor.json", doc); err != nil {
		t.Fatalf("IndexModel: %v", err)
	}

	if len(repo.upserted) != 1 {
		t.Fatalf("expected 1 upserted doc, got %d", len(repo.upserted))
	}
	d := repo.upserted[0]
	if d.ID != PointID("model-1") {
		t.Fatalf("point ID mismatch: %s", d.ID)
	}
	if d.Metadata["model_id"] != "model-1" || d.Metadata["source"] != "harbor.json" {
		t.Fatalf("metadata mismatch: %v", d.Metadata)
	}
	if d.Metadata["activities"] != "3" {
		t.Fatalf("activities metadata: %s", d.Metadata["activities"])
	}
	if len(d.Vector) != Dim {
		t.Fatalf("vector length: %d", len(d.Vector))
	}
}

func TestIndexerSearchSimilar(t *testing.T) {
	repo := &fakeRepo{results: []SearchResult{{ID: "x", Score: 0.9}}}
	ix := NewIndexer(repo)

	results, err := ix.SearchSimilar(context.Background(), makeFeatureDoc(), 5)
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(results) != 1 || results[0].Score != 0.9 {
		t.Fatalf("unexpected results: %v", results)
	}
	if len(repo.searched) != 1 || len(repo.searched[0]) != Dim {
		t.Fatal("search vector not featurized")
	}
}
