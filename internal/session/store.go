package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	sessionsDir = "sessions"
	objectsDir  = "objects"
	indexFile   = "index.json"
)

// Store provides content-addressable storage for compile sessions.
type Store struct {
	mu      sync.RWMutex
	rootDir string
	index   *Index
}

// NewStore creates or opens a session store at the given directory.
func NewStore(rootDir string) (*Store, error) {
	s := &Store{rootDir: rootDir}

	// Create directory structure
	dirs := []string{
		filepath.Join(rootDir, sessionsDir),
		filepath.Join(rootDir, objectsDir),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", dir, err)
		}
	}

	// Load or create index
	if err := s.loadIndex(); err != nil {
		s.index = &Index{
			Sessions:  []Summary{},
			UpdatedAt: time.Now(),
		}
	}

	return s, nil
}

// Save persists a session and its artifacts.
func (s *Store) Save(sess *Session, artifacts []Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store each artifact as a content-addressed object
	for _, a := range artifacts {
		hash := ContentHash(a.Content)
		if err := s.writeObject(hash, a.Content); err != nil {
			return fmt.Errorf("store object %s: %w", a.Name, err)
		}
	}

	// Store the session metadata
	sessDir := filepath.Join(s.rootDir, sessionsDir, sess.ID)
	if err := os.MkdirAll(sessDir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	sessData, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := os.WriteFile(filepath.Join(sessDir, "session.json"), sessData, 0o644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	// Update index
	s.index.Sessions = append(s.index.Sessions, sess.Summary())
	s.index.UpdatedAt = time.Now()
	return s.saveIndex()
}

// Load retrieves a session by ID.
func (s *Store) Load(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.load(id)
}

func (s *Store) load(id string) (*Session, error) {
	sessPath := filepath.Join(s.rootDir, sessionsDir, id, "session.json")
	data, err := os.ReadFile(sessPath)
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}

	return &sess, nil
}

// LoadArtifacts retrieves all artifacts of a session from the object store.
func (s *Store) LoadArtifacts(sess *Session) ([]Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var artifacts []Artifact
	for _, entry := range sess.Artifacts {
		content, err := s.readObject(entry.ContentHash)
		if err != nil {
			return nil, fmt.Errorf("read object for %s: %w", entry.Name, err)
		}
		artifacts = append(artifacts, Artifact{
			Name:    entry.Name,
			Content: content,
		})
	}

	return artifacts, nil
}

// LoadArtifact retrieves one named artifact of a session.
func (s *Store) LoadArtifact(sess *Session, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := sess.Artifact(name)
	if !ok {
		return nil, fmt.Errorf("session %s has no artifact %q", sess.ID, name)
	}
	return s.readObject(entry.ContentHash)
}

// List returns all session summaries, newest first.
func (s *Store) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Summary, len(s.index.Sessions))
	copy(result, s.index.Sessions)

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result
}

// FindByTag returns the session with the given tag.
func (s *Store) FindByTag(tag string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, summary := range s.index.Sessions {
		if summary.Tag == tag {
			return s.load(summary.ID)
		}
	}
	return nil, fmt.Errorf("session with tag %q not found", tag)
}

// Tag assigns a tag to a session.
func (s *Store) Tag(id, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.load(id)
	if err != nil {
		return err
	}

	sess.Tag = tag
	sessData, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	sessPath := filepath.Join(s.rootDir, sessionsDir, id, "session.json")
	if err := os.WriteFile(sessPath, sessData, 0o644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	// Update index
	for i, summary := range s.index.Sessions {
		if summary.ID == id {
			s.index.Sessions[i].Tag = tag
			break
		}
	}
	s.index.UpdatedAt = time.Now()
	return s.saveIndex()
}

// Delete removes a session. Objects stay in place; they may be shared with
// other sessions through content addressing.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.delete(id)
}

func (s *Store) delete(id string) error {
	sessDir := filepath.Join(s.rootDir, sessionsDir, id)
	if err := os.RemoveAll(sessDir); err != nil {
		return fmt.Errorf("remove session dir: %w", err)
	}

	// Remove from index
	filtered := s.index.Sessions[:0]
	for _, summary := range s.index.Sessions {
		if summary.ID != id {
			filtered = append(filtered, summary)
		}
	}
	s.index.Sessions = filtered
	s.index.UpdatedAt = time.Now()

	return s.saveIndex()
}

// Prune deletes all but the newest keep sessions and returns how many were
// removed. Tagged sessions are never pruned.
func (s *Store) Prune(keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 0 {
		keep = 0
	}

	sorted := make([]Summary, len(s.index.Sessions))
	copy(sorted, s.index.Sessions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	removed := 0
	kept := 0
	for _, summary := range sorted {
		if summary.Tag != "" {
			continue
		}
		if kept < keep {
			kept++
			continue
		}
		if err := s.delete(summary.ID); err != nil {
			return removed, err
		}
		removed++
	}

	return removed, nil
}

// Export writes a session's artifacts to the target directory under their
// artifact names.
func (s *Store) Export(sess *Session, targetDir string) error {
	artifacts, err := s.LoadArtifacts(sess)
	if err != nil {
		return fmt.Errorf("load artifacts: %w", err)
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}

	for _, a := range artifacts {
		outPath := filepath.Join(targetDir, a.Name)
		if err := os.WriteFile(outPath, a.Content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", a.Name, err)
		}
	}

	return nil
}

// writeObject stores content by its hash.
func (s *Store) writeObject(hash string, content []byte) error {
	prefix := hash[:2]
	dir := filepath.Join(s.rootDir, objectsDir, prefix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	objPath := filepath.Join(dir, hash[2:])
	if _, err := os.Stat(objPath); err == nil {
		return nil // Already exists (content-addressable dedup)
	}

	return os.WriteFile(objPath, content, 0o644)
}

// readObject retrieves content by its hash.
func (s *Store) readObject(hash string) ([]byte, error) {
	prefix := hash[:2]
	objPath := filepath.Join(s.rootDir, objectsDir, prefix, hash[2:])
	return os.ReadFile(objPath)
}

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.rootDir, indexFile))
	if err != nil {
		return err
	}
	s.index = &Index{}
	return json.Unmarshal(data, s.index)
}

func (s *Store) saveIndex() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.rootDir, indexFile), data, 0o644)
}
