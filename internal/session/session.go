// Package session stores compile runs as content-addressed snapshots so
// model output can be tagged, compared and rolled back.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/simforge/simforge/internal/diagram"
	"github.com/simforge/simforge/internal/simmodel"
)

// Artifact names every compile session records.
const (
	ArtifactDiagram = "diagram"
	ArtifactModel   = "model.json"
	ArtifactReport  = "report.json"
)

// Session represents a point-in-time capture of one compile run's inputs
// and outputs.
type Session struct {
	ID          string            `json:"id"`
	ParentID    string            `json:"parent_id,omitempty"`
	Tag         string            `json:"tag,omitempty"`
	Description string            `json:"description,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Source      string            `json:"source"`
	Format      string            `json:"format"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	ContentHash string            `json:"content_hash"`
	GateStatus  string            `json:"gate_status,omitempty"`
	Stats       ModelStats        `json:"stats"`
	Artifacts   []ArtifactEntry   `json:"artifacts"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ModelStats captures the shape of a compiled model for listing without
// loading the model artifact.
type ModelStats struct {
	Nodes               int `json:"nodes"`
	Edges               int `json:"edges"`
	Activities          int `json:"activities"`
	UnknownHandlers     int `json:"unknown_handlers"`
	Resources           int `json:"resources"`
	EntityRelationships int `json:"entity_relationships"`
	Connections         int `json:"connections"`
}

// ArtifactEntry records a stored artifact with its content hash.
type ArtifactEntry struct {
	Name        string `json:"name"`
	ContentHash string `json:"content_hash"`
	Size        int    `json:"size"`
}

// Artifact is an in-memory artifact before or after storage.
type Artifact struct {
	Name    string
	Content []byte
}

// Index is a lightweight listing of all sessions for fast lookup.
type Index struct {
	Sessions  []Summary `json:"sessions"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary is the minimal info for listing sessions.
type Summary struct {
	ID          string    `json:"id"`
	ParentID    string    `json:"parent_id,omitempty"`
	Tag         string    `json:"tag,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Source      string    `json:"source"`
	Format      string    `json:"format"`
	GateStatus  string    `json:"gate_status,omitempty"`
	Activities  int       `json:"activities"`
	Connections int       `json:"connections"`
}

// StatsFor derives ModelStats from the index a model was compiled from and
// the compiled document.
func StatsFor(idx *diagram.Index, doc *simmodel.Document) ModelStats {
	return ModelStats{
		Nodes:               len(idx.Nodes()),
		Edges:               len(idx.Edges()),
		Activities:          len(doc.Model.Activities),
		UnknownHandlers:     doc.Model.UnknownHandlerCount(),
		Resources:           len(doc.Model.Resources),
		EntityRelationships: len(doc.Model.EntityRelationships),
		Connections:         len(doc.Model.Connections),
	}
}

// New builds a session from a compile run. Artifacts are hashed but not
// persisted; Store.Save writes them. The diagram artifact, when present,
// also fingerprints the input so reruns of the same diagram can be
// detected.
func New(source, format string, stats ModelStats, artifacts []Artifact) *Session {
	s := &Session{
		CreatedAt: time.Now(),
		Source:    source,
		Format:    format,
		Stats:     stats,
		Metadata:  make(map[string]string),
	}

	for _, a := range artifacts {
		s.Artifacts = append(s.Artifacts, ArtifactEntry{
			Name:        a.Name,
			ContentHash: ContentHash(a.Content),
			Size:        len(a.Content),
		})
		if a.Name == ArtifactDiagram {
			s.Fingerprint = ContentHash(a.Content)
		}
	}

	s.ContentHash = manifestHash(s.Artifacts)
	s.ID = generateID(s)

	return s
}

// ContentHash computes SHA-256 of content.
func ContentHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

func manifestHash(entries []ArtifactEntry) string {
	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e.Name))
		h.Write([]byte(e.ContentHash))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func generateID(s *Session) string {
	data, _ := json.Marshal(struct {
		Time    int64  `json:"t"`
		Content string `json:"c"`
	}{
		Time:    s.CreatedAt.UnixNano(),
		Content: s.ContentHash,
	})
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:8]) // Short 16-char hex ID
}

// Summary returns a lightweight summary of this session.
func (s *Session) Summary() Summary {
	return Summary{
		ID:          s.ID,
		ParentID:    s.ParentID,
		Tag:         s.Tag,
		CreatedAt:   s.CreatedAt,
		Source:      s.Source,
		Format:      s.Format,
		GateStatus:  s.GateStatus,
		Activities:  s.Stats.Activities,
		Connections: s.Stats.Connections,
	}
}

// Artifact returns the manifest entry with the given name.
func (s *Session) Artifact(name string) (ArtifactEntry, bool) {
	for _, e := range s.Artifacts {
		if e.Name == name {
			return e, true
		}
	}
	return ArtifactEntry{}, false
}
