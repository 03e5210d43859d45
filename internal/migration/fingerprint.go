// Package migration drives incremental batch conversion: content
// fingerprints of diagram files decide which inputs changed since the
// last run, so a fleet conversion only recompiles what it must.
package migration

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/simforge/simforge/internal/formats"
	"github.com/simforge/simforge/internal/session"
)

// DiagramFile is one authored diagram picked up from the input directory.
type DiagramFile struct {
	Path    string // path as given, used as the state key
	Format  string // decoder format name (json, yaml, hcl)
	Content []byte
}

// CollectDiagrams walks dir and returns every file the format registry has
// a decoder for, sorted by path. Files without a registered decoder and
// unreadable files are skipped.
func CollectDiagrams(registry *formats.Registry, dir string) ([]DiagramFile, error) {
	var files []DiagramFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		dec, err := registry.ForPath(path)
		if err != nil {
			return nil // not a diagram format
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		files = append(files, DiagramFile{Path: path, Format: dec.Format(), Content: content})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ComputeFingerprints hashes every diagram's raw content. Diagrams are
// self-contained (no includes or copybook-style dependencies), so the
// content hash alone decides staleness.
func ComputeFingerprints(files []DiagramFile) map[string]string {
	result := make(map[string]string, len(files))
	for _, f := range files {
		result[f.Path] = session.ContentHash(f.Content)
	}
	return result
}
