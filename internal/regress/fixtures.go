// Package regress replays recorded diagram fixtures through the compiler
// and checks the output still matches the pinned models.
package regress

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Fixture is a single replay case: one diagram and the model it is expected
// to compile to.
//
// The schema is deliberately small so fixtures can come from the recorder,
// from the generator, or be written by hand.
type Fixture struct {
	Name string `json:"name"`

	// Format names the decoder for Diagram. Empty means "json".
	Format string `json:"format,omitempty"`

	Diagram  json.RawMessage `json:"diagram"`
	Expected json.RawMessage `json:"expected"`

	// Normalize rules for this fixture (optional overrides).
	Normalize *NormalizeRules `json:"normalize,omitempty"`
}

// ReadJSONL reads fixtures from a JSON Lines stream.
func ReadJSONL(r io.Reader) ([]Fixture, error) {
	var out []Fixture
	sc := bufio.NewScanner(r)
	// Allow reasonably large fixtures (diagram payloads).
	sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var f Fixture
		if err := json.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("fixtures: invalid JSONL at line %d: %w", lineNo, err)
		}
		if f.Name == "" {
			return nil, fmt.Errorf("fixtures: missing name at line %d", lineNo)
		}
		if len(f.Diagram) == 0 {
			return nil, fmt.Errorf("fixtures: missing diagram at line %d", lineNo)
		}
		if len(f.Expected) == 0 {
			return nil, fmt.Errorf("fixtures: missing expected at line %d", lineNo)
		}
		out = append(out, f)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteJSONL writes fixtures as one compact JSON object per line.
func WriteJSONL(w io.Writer, fixtures []Fixture) error {
	enc := json.NewEncoder(w)
	for i := range fixtures {
		if err := enc.Encode(&fixtures[i]); err != nil {
			return fmt.Errorf("fixtures: encode %s: %w", fixtures[i].Name, err)
		}
	}
	return nil
}

// LoadFile reads a JSONL fixture file.
func LoadFile(path string) ([]Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadJSONL(f)
}

// SaveFile writes fixtures to a JSONL file.
func SaveFile(path string, fixtures []Fixture) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteJSONL(f, fixtures); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
