package formats

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/simforge/simforge/internal/simmodel"
)

// ExportJSON encodes a compiled document, canonically or indented.
func ExportJSON(doc *simmodel.Document, pretty bool) ([]byte, error) {
	if pretty {
		return doc.Pretty()
	}
	return doc.Canonical()
}

// ExportYAML encodes a compiled document as YAML, keeping the JSON key
// names. The document goes through its canonical encoding first so both
// exports agree on structure.
func ExportYAML(doc *simmodel.Document) ([]byte, error) {
	raw, err := doc.Canonical()
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("reshaping for yaml: %w", err)
	}
	return yaml.Marshal(generic)
}
