package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/simforge/simforge/internal/diagram"
	"github.com/simforge/simforge/internal/simmodel"
)

func makeTestDoc() *simmodel.Document {
	return &simmodel.Document{
		Model: simmodel.Model{
			EntityRelationships: []simmodel.EntityRelationship{
				{Owner: "Vessels", Component: "Unload"},
			},
			Resources: []simmodel.Resource{
				{Type: "Berth", Group: "Berth", Quantity: 0},
			},
			Activities: []simmodel.Activity{
				{
					ID:          "Unload",
					HandlerType: "Vessels",
					Attributes:  simmodel.Attributes{Initial: true},
					Conditions:  []simmodel.Condition{},
					Requirements: []simmodel.Requirement{
						{ResourceGroups: []string{"Berth"}, Quantity: 1},
					},
				},
				{
					ID:           "Depart",
					HandlerType:  "Vessels",
					Conditions:   []simmodel.Condition{},
					Requirements: []simmodel.Requirement{},
				},
			},
			Connections: []simmodel.Connection{
				{Type: simmodel.ConnFlow, From: "Unload", To: "Depart"},
			},
		},
	}
}

func makeTestArtifacts(t *testing.T, doc *simmodel.Document, seed string) []Artifact {
	t.Helper()
	model, err := doc.Canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	return []Artifact{
		{Name: ArtifactDiagram, Content: []byte(`{"json":{"nodes":[],"edges":[]},"seed":"` + seed + `"}`)},
		{Name: ArtifactModel, Content: model},
		{Name: ArtifactReport, Content: []byte(`{"gates":"passed"}`)},
	}
}

func makeTestSession(t *testing.T, seed string) (*Session, []Artifact) {
	t.Helper()
	doc := makeTestDoc()
	artifacts := makeTestArtifacts(t, doc, seed)
	stats := ModelStats{
		Activities:          len(doc.Model.Activities),
		Resources:           len(doc.Model.Resources),
		EntityRelationships: len(doc.Model.EntityRelationships),
		Connections:         len(doc.Model.Connections),
	}
	return New("harbor.json", "canvas", stats, artifacts), artifacts
}

func TestContentHash(t *testing.T) {
	content := []byte("hello world")
	h1 := ContentHash(content)
	h2 := ContentHash(content)
	if h1 != h2 {
		t.Fatalf("ContentHash not deterministic: %s != %s", h1, h2)
	}
	if len(h1) != 64 { // SHA-256 hex is 64 chars
		t.Fatalf("unexpected hash length: %d", len(h1))
	}
	// Different content should produce different hash
	h3 := ContentHash([]byte("different"))
	if h1 == h3 {
		t.Fatal("different content produced same hash")
	}
}

func TestNewSession(t *testing.T) {
	sess, artifacts := makeTestSession(t, "a")

	if len(sess.ID) != 16 {
		t.Fatalf("unexpected ID length: %d (%s)", len(sess.ID), sess.ID)
	}
	if sess.Source != "harbor.json" {
		t.Fatalf("source mismatch: %s", sess.Source)
	}
	if sess.Format != "canvas" {
		t.Fatalf("format mismatch: %s", sess.Format)
	}
	if len(sess.Artifacts) != 3 {
		t.Fatalf("expected 3 artifact entries, got %d", len(sess.Artifacts))
	}
	if sess.Fingerprint != ContentHash(artifacts[0].Content) {
		t.Fatal("fingerprint should be the diagram artifact hash")
	}
	if sess.ContentHash == "" {
		t.Fatal("content hash not set")
	}
	for i, e := range sess.Artifacts {
		if e.ContentHash != ContentHash(artifacts[i].Content) {
			t.Errorf("artifact %s hash mismatch", e.Name)
		}
		if e.Size != len(artifacts[i].Content) {
			t.Errorf("artifact %s size mismatch: got %d, want %d", e.Name, e.Size, len(artifacts[i].Content))
		}
	}
}

func TestNewSessionContentHashDeterministic(t *testing.T) {
	s1, _ := makeTestSession(t, "same")
	s2, _ := makeTestSession(t, "same")
	if s1.ContentHash != s2.ContentHash {
		t.Fatalf("same artifacts produced different content hashes: %s != %s", s1.ContentHash, s2.ContentHash)
	}
}

func TestSessionArtifactLookup(t *testing.T) {
	sess, _ := makeTestSession(t, "lookup")

	entry, ok := sess.Artifact(ArtifactModel)
	if !ok {
		t.Fatal("expected model artifact entry")
	}
	if entry.Name != ArtifactModel {
		t.Fatalf("entry name mismatch: %s", entry.Name)
	}

	if _, ok := sess.Artifact("missing"); ok {
		t.Fatal("expected no entry for missing artifact")
	}
}

func TestStatsFor(t *testing.T) {
	g := &diagram.Graph{
		Nodes: []diagram.Node{
			{ID: "g1", Type: diagram.NodeGenerator, Name: "Vessels"},
			{ID: "a1", Type: diagram.NodeActivity, Name: "Unload"},
		},
		Edges: []diagram.Edge{
			{ID: "e1", Source: "g1", Target: "a1"},
		},
	}
	idx := diagram.NewIndex(g)
	doc := makeTestDoc()

	stats := StatsFor(idx, doc)
	if stats.Nodes != 2 {
		t.Errorf("nodes: got %d, want 2", stats.Nodes)
	}
	if stats.Edges != 1 {
		t.Errorf("edges: got %d, want 1", stats.Edges)
	}
	if stats.Activities != 2 {
		t.Errorf("activities: got %d, want 2", stats.Activities)
	}
	if stats.Resources != 1 {
		t.Errorf("resources: got %d, want 1", stats.Resources)
	}
	if stats.EntityRelationships != 1 {
		t.Errorf("relationships: got %d, want 1", stats.EntityRelationships)
	}
	if stats.Connections != 1 {
		t.Errorf("connections: got %d, want 1", stats.Connections)
	}
}

func TestNewStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if store == nil {
		t.Fatal("store is nil")
	}
	// Verify directories exist
	if _, err := os.Stat(filepath.Join(dir, "store", "sessions")); err != nil {
		t.Fatalf("sessions dir missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "store", "objects")); err != nil {
		t.Fatalf("objects dir missing: %v", err)
	}
}

func TestStoreSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	sess, artifacts := makeTestSession(t, "roundtrip")
	sess.GateStatus = "passed"
	sess.Metadata["runner"] = "test"

	if err := store.Save(sess, artifacts); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(sess.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.ID != sess.ID {
		t.Fatalf("ID mismatch: got %s, want %s", loaded.ID, sess.ID)
	}
	if loaded.Source != sess.Source {
		t.Fatalf("Source mismatch: got %s, want %s", loaded.Source, sess.Source)
	}
	if loaded.Fingerprint != sess.Fingerprint {
		t.Fatal("fingerprint mismatch")
	}
	if loaded.GateStatus != "passed" {
		t.Fatalf("gate status mismatch: %s", loaded.GateStatus)
	}
	if loaded.Stats.Activities != sess.Stats.Activities {
		t.Fatalf("stats mismatch: got %d activities, want %d", loaded.Stats.Activities, sess.Stats.Activities)
	}
	if len(loaded.Artifacts) != len(sess.Artifacts) {
		t.Fatalf("artifact manifest mismatch: got %d, want %d", len(loaded.Artifacts), len(sess.Artifacts))
	}
	if loaded.Metadata["runner"] != "test" {
		t.Fatal("metadata lost in roundtrip")
	}
}

func TestStoreLoadArtifacts(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	sess, artifacts := makeTestSession(t, "artifacts")
	if err := store.Save(sess, artifacts); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.LoadArtifacts(sess)
	if err != nil {
		t.Fatalf("LoadArtifacts: %v", err)
	}
	if len(loaded) != len(artifacts) {
		t.Fatalf("artifact count mismatch: got %d, want %d", len(loaded), len(artifacts))
	}
	for i, a := range loaded {
		if a.Name != artifacts[i].Name {
			t.Errorf("artifact %d name mismatch: got %s, want %s", i, a.Name, artifacts[i].Name)
		}
		if string(a.Content) != string(artifacts[i].Content) {
			t.Errorf("artifact %s content mismatch", a.Name)
		}
	}
}

func TestStoreLoadArtifact(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	sess, artifacts := makeTestSession(t, "single")
	if err := store.Save(sess, artifacts); err != nil {
		t.Fatalf("Save: %v", err)
	}

	content, err := store.LoadArtifact(sess, ArtifactModel)
	if err != nil {
		t.Fatalf("LoadArtifact: %v", err)
	}
	if string(content) != string(artifacts[1].Content) {
		t.Fatal("model artifact content mismatch")
	}

	if _, err := store.LoadArtifact(sess, "missing"); err == nil {
		t.Fatal("expected error for missing artifact")
	}
}

func TestStoreList(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	older, olderArts := makeTestSession(t, "older")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer, newerArts := makeTestSession(t, "newer")
	newer.CreatedAt = time.Now()

	store.Save(older, olderArts)
	store.Save(newer, newerArts)

	list := store.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	// Should be newest first
	if list[0].ID != newer.ID {
		t.Fatalf("expected newest first, got %s", list[0].ID)
	}
}

func TestStoreTag(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	sess, artifacts := makeTestSession(t, "tagme")
	store.Save(sess, artifacts)

	if err := store.Tag(sess.ID, "baseline"); err != nil {
		t.Fatalf("Tag: %v", err)
	}

	loaded, err := store.Load(sess.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Tag != "baseline" {
		t.Fatalf("tag mismatch: got %s, want baseline", loaded.Tag)
	}

	// Index must reflect the tag too
	list := store.List()
	if len(list) != 1 || list[0].Tag != "baseline" {
		t.Fatal("index summary missing tag")
	}
}

func TestStoreFindByTag(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	first, firstArts := makeTestSession(t, "first")
	second, secondArts := makeTestSession(t, "second")
	store.Save(first, firstArts)
	store.Save(second, secondArts)
	store.Tag(second.ID, "release")

	found, err := store.FindByTag("release")
	if err != nil {
		t.Fatalf("FindByTag: %v", err)
	}
	if found.ID != second.ID {
		t.Fatalf("wrong session found: got %s, want %s", found.ID, second.ID)
	}

	if _, err := store.FindByTag("nope"); err == nil {
		t.Fatal("expected error for unknown tag")
	}
}

func TestStoreDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	sess, artifacts := makeTestSession(t, "doomed")
	store.Save(sess, artifacts)

	if err := store.Delete(sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := store.Load(sess.ID); err == nil {
		t.Fatal("expected error loading deleted session")
	}

	list := store.List()
	if len(list) != 0 {
		t.Fatalf("expected empty list after delete, got %d", len(list))
	}
}

func TestStorePrune(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	base := time.Now().Add(-time.Hour)
	var ids []string
	var taggedID string
	for i := 0; i < 5; i++ {
		sess, artifacts := makeTestSession(t, fmt.Sprintf("prune-%d", i))
		sess.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if i == 0 {
			sess.Tag = "keeper"
			taggedID = sess.ID
		}
		if err := store.Save(sess, artifacts); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
		ids = append(ids, sess.ID)
	}

	// 4 untagged sessions; keeping 2 newest removes the 2 oldest untagged.
	removed, err := store.Prune(2)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	// Tagged session survives even though it is the oldest
	if _, err := store.Load(taggedID); err != nil {
		t.Fatalf("tagged session pruned: %v", err)
	}
	// Newest untagged sessions survive
	for _, id := range ids[3:] {
		if _, err := store.Load(id); err != nil {
			t.Fatalf("recent session pruned: %v", err)
		}
	}
	// Oldest untagged sessions are gone
	for _, id := range ids[1:3] {
		if _, err := store.Load(id); err == nil {
			t.Fatalf("expected session %s to be pruned", id)
		}
	}
}

func TestStoreExport(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	sess, artifacts := makeTestSession(t, "export")
	store.Save(sess, artifacts)

	targetDir := filepath.Join(dir, "exported")
	if err := store.Export(sess, targetDir); err != nil {
		t.Fatalf("Export: %v", err)
	}

	for _, a := range artifacts {
		content, err := os.ReadFile(filepath.Join(targetDir, a.Name))
		if err != nil {
			t.Fatalf("read exported %s: %v", a.Name, err)
		}
		if string(content) != string(a.Content) {
			t.Errorf("exported %s content mismatch", a.Name)
		}
	}
}

func TestStoreReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	sess, artifacts := makeTestSession(t, "persist")
	store.Save(sess, artifacts)

	// A fresh store on the same directory sees the saved session
	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore reopen: %v", err)
	}
	list := reopened.List()
	if len(list) != 1 || list[0].ID != sess.ID {
		t.Fatal("reopened store lost the session index")
	}
	if _, err := reopened.Load(sess.ID); err != nil {
		t.Fatalf("Load after reopen: %v", err)
	}
}

func TestDiffDocumentsIdentical(t *testing.T) {
	old := makeTestDoc()
	new := makeTestDoc()

	d := DiffDocuments(old, new)
	if !d.Summary.Identical {
		t.Fatal("expected identical summary")
	}
	if len(d.Activities) != 0 {
		t.Fatalf("expected no activity diffs, got %d", len(d.Activities))
	}
	if len(d.Hunks) != 0 {
		t.Fatalf("expected no hunks, got %d", len(d.Hunks))
	}
}

func TestDiffDocumentsActivityAdded(t *testing.T) {
	old := makeTestDoc()
	new := makeTestDoc()
	new.Model.Activities = append(new.Model.Activities, simmodel.Activity{
		ID:           "Inspect",
		HandlerType:  "Agents",
		Conditions:   []simmodel.Condition{},
		Requirements: []simmodel.Requirement{},
	})

	d := DiffDocuments(old, new)
	if d.Summary.ActivitiesAdded != 1 {
		t.Fatalf("expected 1 activity added, got %d", d.Summary.ActivitiesAdded)
	}
	found := false
	for _, ad := range d.Activities {
		if ad.ID == "Inspect" && ad.Type == DiffAdded {
			found = true
			if ad.NewHandler != "Agents" {
				t.Errorf("new handler: got %s, want Agents", ad.NewHandler)
			}
		}
	}
	if !found {
		t.Fatal("expected Inspect in added activities")
	}
	if d.Summary.Identical {
		t.Fatal("diff should not be identical")
	}
}

func TestDiffDocumentsActivityRemoved(t *testing.T) {
	old := makeTestDoc()
	new := makeTestDoc()
	new.Model.Activities = new.Model.Activities[:1]

	d := DiffDocuments(old, new)
	if d.Summary.ActivitiesRemoved != 1 {
		t.Fatalf("expected 1 activity removed, got %d", d.Summary.ActivitiesRemoved)
	}
	found := false
	for _, ad := range d.Activities {
		if ad.ID == "Depart" && ad.Type == DiffRemoved {
			found = true
		}
	}
	if !found {
		t.Fatal("expected Depart in removed activities")
	}
}

func TestDiffDocumentsHandlerChange(t *testing.T) {
	old := makeTestDoc()
	new := makeTestDoc()
	new.Model.Activities[1].HandlerType = "Tugs"

	d := DiffDocuments(old, new)
	if d.Summary.ActivitiesModified != 1 {
		t.Fatalf("expected 1 activity modified, got %d", d.Summary.ActivitiesModified)
	}
	if d.Summary.Rehandled != 1 {
		t.Fatalf("expected 1 rehandled, got %d", d.Summary.Rehandled)
	}
	var ad ActivityDiff
	for _, cand := range d.Activities {
		if cand.ID == "Depart" {
			ad = cand
		}
	}
	if ad.Type != DiffModified || !ad.HandlerChanged {
		t.Fatalf("expected modified Depart with handler change, got %+v", ad)
	}
	if ad.OldHandler != "Vessels" || ad.NewHandler != "Tugs" {
		t.Fatalf("handler transition: got %s -> %s", ad.OldHandler, ad.NewHandler)
	}
}

func TestDiffDocumentsAttributeChanges(t *testing.T) {
	old := makeTestDoc()
	new := makeTestDoc()
	new.Model.Activities[0].Attributes.Initial = false
	new.Model.Activities[1].Conditions = []simmodel.Condition{
		{Attribute: "priority", Value: "high"},
	}

	d := DiffDocuments(old, new)
	if d.Summary.ActivitiesModified != 2 {
		t.Fatalf("expected 2 activities modified, got %d", d.Summary.ActivitiesModified)
	}
	for _, ad := range d.Activities {
		switch ad.ID {
		case "Unload":
			if !ad.InitialChanged {
				t.Error("expected Unload initial change")
			}
		case "Depart":
			if !ad.ConditionsChanged {
				t.Error("expected Depart conditions change")
			}
		}
	}
}

func TestDiffDocumentsConnectionDeltas(t *testing.T) {
	old := makeTestDoc()
	new := makeTestDoc()
	new.Model.Connections = append(new.Model.Connections,
		simmodel.Connection{Type: simmodel.ConnStartToStart, From: "Unload", To: "Depart"},
		simmodel.Connection{Type: simmodel.ConnFlow, From: "Depart", To: "Unload"},
	)

	d := DiffDocuments(old, new)
	if d.ConnectionDeltas["StartToStart"] != 1 {
		t.Errorf("StartToStart delta: got %d, want 1", d.ConnectionDeltas["StartToStart"])
	}
	if d.ConnectionDeltas["Flow"] != 1 {
		t.Errorf("Flow delta: got %d, want 1", d.ConnectionDeltas["Flow"])
	}
}

func TestDiffDocumentsRelationshipsAndResources(t *testing.T) {
	old := makeTestDoc()
	new := makeTestDoc()
	new.Model.EntityRelationships = []simmodel.EntityRelationship{
		{Owner: "Trucks", Component: "Load"},
	}
	new.Model.Resources = append(new.Model.Resources,
		simmodel.Resource{Type: "Crane", Group: "Crane", Quantity: 0})

	d := DiffDocuments(old, new)
	if len(d.RelationshipsAdded) != 1 || d.RelationshipsAdded[0].Owner != "Trucks" {
		t.Fatalf("relationships added: %+v", d.RelationshipsAdded)
	}
	if len(d.RelationshipsRemoved) != 1 || d.RelationshipsRemoved[0].Owner != "Vessels" {
		t.Fatalf("relationships removed: %+v", d.RelationshipsRemoved)
	}
	if len(d.ResourcesAdded) != 1 || d.ResourcesAdded[0] != "Crane" {
		t.Fatalf("resources added: %v", d.ResourcesAdded)
	}
	if len(d.ResourcesRemoved) != 0 {
		t.Fatalf("resources removed: %v", d.ResourcesRemoved)
	}
}

func TestDiffDocumentsHunks(t *testing.T) {
	old := makeTestDoc()
	new := makeTestDoc()
	new.Model.Activities[1].HandlerType = "Tugs"

	d := DiffDocuments(old, new)
	if len(d.Hunks) == 0 {
		t.Fatal("expected line hunks for changed model")
	}
	if d.Summary.LinesAdded == 0 || d.Summary.LinesRemoved == 0 {
		t.Fatalf("expected line counts, got +%d -%d", d.Summary.LinesAdded, d.Summary.LinesRemoved)
	}
	// The changed handler line appears as remove+add
	var sawRemove, sawAdd bool
	for _, h := range d.Hunks {
		for _, l := range h.Lines {
			if l.Type == "remove" && strings.Contains(l.Content, "Vessels") {
				sawRemove = true
			}
			if l.Type == "add" && strings.Contains(l.Content, "Tugs") {
				sawAdd = true
			}
		}
	}
	if !sawRemove || !sawAdd {
		t.Fatal("expected handler change to show in hunk lines")
	}
}

func TestDiffSessions(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	oldDoc := makeTestDoc()
	newDoc := makeTestDoc()
	newDoc.Model.Activities[1].HandlerType = "Tugs"

	oldModel, _ := oldDoc.Canonical()
	newModel, _ := newDoc.Canonical()

	oldArts := []Artifact{
		{Name: ArtifactDiagram, Content: []byte("{}")},
		{Name: ArtifactModel, Content: oldModel},
	}
	newArts := []Artifact{
		{Name: ArtifactDiagram, Content: []byte("{}")},
		{Name: ArtifactModel, Content: newModel},
	}

	oldSess := New("harbor.json", "canvas", ModelStats{}, oldArts)
	newSess := New("harbor.json", "canvas", ModelStats{}, newArts)
	store.Save(oldSess, oldArts)
	store.Save(newSess, newArts)
	store.Tag(newSess.ID, "candidate")
	newSess.Tag = "candidate"

	d, err := DiffSessions(store, oldSess, newSess)
	if err != nil {
		t.Fatalf("DiffSessions: %v", err)
	}
	if d.OldID != oldSess.ID || d.NewID != newSess.ID {
		t.Fatalf("session IDs not recorded: %s -> %s", d.OldID, d.NewID)
	}
	if d.NewTag != "candidate" {
		t.Fatalf("new tag not recorded: %s", d.NewTag)
	}
	if d.Summary.Rehandled != 1 {
		t.Fatalf("expected 1 rehandled activity, got %d", d.Summary.Rehandled)
	}
}

func TestDiffSessionsMissingModel(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	arts := []Artifact{{Name: ArtifactDiagram, Content: []byte("{}")}}
	sess := New("bare.json", "canvas", ModelStats{}, arts)
	store.Save(sess, arts)

	if _, err := DiffSessions(store, sess, sess); err == nil {
		t.Fatal("expected error for session without model artifact")
	}
}

func TestComputeHunks(t *testing.T) {
	oldText := "line1\nline2\nline3"
	newText := "line1\nmodified\nline3\nline4"

	hunks := computeHunks(oldText, newText)
	if len(hunks) == 0 {
		t.Fatal("expected hunks")
	}

	var adds, removes int
	for _, h := range hunks {
		for _, l := range h.Lines {
			switch l.Type {
			case "add":
				adds++
			case "remove":
				removes++
			}
		}
	}
	if adds != 2 {
		t.Errorf("adds: got %d, want 2", adds)
	}
	if removes != 1 {
		t.Errorf("removes: got %d, want 1", removes)
	}
}

func TestComputeHunksIdentical(t *testing.T) {
	text := "a\nb\nc"
	if hunks := computeHunks(text, text); hunks != nil {
		t.Fatalf("expected nil hunks for identical text, got %d", len(hunks))
	}
}

func TestFormatDiff(t *testing.T) {
	old := makeTestDoc()
	new := makeTestDoc()
	new.Model.Activities[1].HandlerType = "Tugs"
	new.Model.Resources = append(new.Model.Resources,
		simmodel.Resource{Type: "Crane", Group: "Crane", Quantity: 0})

	d := DiffDocuments(old, new)
	d.OldID = "aaaa000011112222"
	d.NewID = "bbbb000011112222"

	out := FormatDiff(d)
	for _, want := range []string{
		"aaaa000011112222",
		"bbbb000011112222",
		"Depart",
		"handler Vessels -> Tugs",
		"+ Crane",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatDiff output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatDiffIdentical(t *testing.T) {
	d := DiffDocuments(makeTestDoc(), makeTestDoc())
	out := FormatDiff(d)
	if !strings.Contains(out, "identical") {
		t.Fatalf("expected identical message, got:\n%s", out)
	}
}
