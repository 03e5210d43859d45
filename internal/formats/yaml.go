package formats

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/simforge/simforge/internal/diagram"
)

// YAML decodes hand-authored diagrams, the format regression fixtures are
// usually written in. Keys are snake_case; the structure otherwise mirrors
// the canvas export.
type YAML struct{}

func (YAML) Format() string       { return "yaml" }
func (YAML) Extensions() []string { return []string{".yaml", ".yml"} }

type yamlDiagram struct {
	Nodes []yamlNode `yaml:"nodes"`
	Edges []yamlEdge `yaml:"edges"`
}

type yamlNode struct {
	ID        string   `yaml:"id"`
	Type      string   `yaml:"type"`
	Name      string   `yaml:"name"`
	Resources []string `yaml:"resources"`
	Duration  string   `yaml:"duration"`
}

type yamlEdge struct {
	ID           string `yaml:"id"`
	Source       string `yaml:"source"`
	Target       string `yaml:"target"`
	Dependency   bool   `yaml:"dependency"`
	Condition    string `yaml:"condition"`
	EdgeType     string `yaml:"edge_type"`
	SourceHandle string `yaml:"source_handle"`
	TargetHandle string `yaml:"target_handle"`
}

func (YAML) Decode(name string, data []byte) (*diagram.Envelope, error) {
	var yd yamlDiagram
	if err := yaml.Unmarshal(data, &yd); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	if yd.Nodes == nil && yd.Edges == nil {
		return nil, fmt.Errorf("decoding %s: no nodes or edges", name)
	}

	g := diagram.Graph{Nodes: []diagram.Node{}, Edges: []diagram.Edge{}}
	for _, n := range yd.Nodes {
		g.Nodes = append(g.Nodes, diagram.Node{
			ID:   n.ID,
			Type: diagram.NodeType(n.Type),
			Name: n.Name,
			Data: diagram.NodeData{Resources: n.Resources, Duration: n.Duration},
		})
	}
	for _, e := range yd.Edges {
		g.Edges = append(g.Edges, diagram.Edge{
			ID:           e.ID,
			Source:       e.Source,
			Target:       e.Target,
			SourceHandle: e.SourceHandle,
			TargetHandle: e.TargetHandle,
			Data: diagram.EdgeData{
				IsDependency: e.Dependency,
				Condition:    e.Condition,
				EdgeType:     e.EdgeType,
			},
		})
	}
	return &diagram.Envelope{JSON: g}, nil
}
