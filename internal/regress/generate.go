package regress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/simforge/simforge/internal/compiler"
	"github.com/simforge/simforge/internal/formats"
)

// GenerateFromDir compiles every decodable diagram under dir and pins the
// current output as the expected model. Non-JSON diagrams are re-encoded to
// the JSON wire form so fixtures replay without the original decoder input.
func GenerateFromDir(registry *formats.Registry, dir string) ([]Fixture, error) {
	if registry == nil {
		registry = formats.Default()
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, err := registry.ForPath(path); err == nil {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(paths)

	var fixtures []Fixture
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		dec, err := registry.ForPath(path)
		if err != nil {
			return nil, err
		}

		env, err := dec.Decode(path, data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		doc, err := compiler.CompileEnvelope(env)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", path, err)
		}
		expected, err := doc.Canonical()
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", path, err)
		}

		diagram := json.RawMessage(data)
		format := dec.Format()
		if format != "json" {
			diagram, err = json.Marshal(env)
			if err != nil {
				return nil, fmt.Errorf("reencode %s: %w", path, err)
			}
			format = "json"
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		name := strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))

		fixtures = append(fixtures, Fixture{
			Name:     name,
			Format:   format,
			Diagram:  diagram,
			Expected: expected,
		})
	}

	return fixtures, nil
}

// Update recompiles every fixture's diagram and replaces the expected model
// with the current output. It returns how many fixtures changed.
func Update(registry *formats.Registry, fixtures []Fixture) ([]Fixture, int, error) {
	if registry == nil {
		registry = formats.Default()
	}

	updated := make([]Fixture, len(fixtures))
	changed := 0
	for i, f := range fixtures {
		format := f.Format
		if format == "" {
			format = "json"
		}
		dec, err := registry.Decoder(format)
		if err != nil {
			return nil, 0, fmt.Errorf("fixture %s: %w", f.Name, err)
		}
		env, err := dec.Decode(f.Name, f.Diagram)
		if err != nil {
			return nil, 0, fmt.Errorf("fixture %s: decode: %w", f.Name, err)
		}
		doc, err := compiler.CompileEnvelope(env)
		if err != nil {
			return nil, 0, fmt.Errorf("fixture %s: compile: %w", f.Name, err)
		}
		expected, err := doc.Canonical()
		if err != nil {
			return nil, 0, fmt.Errorf("fixture %s: encode: %w", f.Name, err)
		}

		updated[i] = f
		if canonicalRaw(f.Expected) != canonicalRaw(expected) {
			updated[i].Expected = expected
			changed++
		}
	}
	return updated, changed, nil
}

func canonicalRaw(b json.RawMessage) string {
	var tree any
	if err := json.Unmarshal(b, &tree); err != nil {
		return string(b)
	}
	return canonicalJSON(tree)
}
