package formats

import (
	"encoding/json"
	"fmt"

	"github.com/simforge/simforge/internal/diagram"
)

// JSON decodes the canvas export envelope, `{"json": {nodes, edges}}`. A
// bare `{nodes, edges}` object is accepted too, since conversion scripts
// often strip the envelope.
type JSON struct{}

func (JSON) Format() string       { return "json" }
func (JSON) Extensions() []string { return []string{".json"} }

func (JSON) Decode(name string, data []byte) (*diagram.Envelope, error) {
	var env diagram.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	if env.JSON.Nodes != nil || env.JSON.Edges != nil {
		return &env, nil
	}

	var g diagram.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	if g.Nodes == nil && g.Edges == nil {
		return nil, fmt.Errorf("decoding %s: neither envelope nor graph shaped", name)
	}
	return &diagram.Envelope{JSON: g}, nil
}
