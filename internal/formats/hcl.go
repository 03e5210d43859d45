package formats

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/simforge/simforge/internal/diagram"
)

// HCL decodes infrastructure-style authored diagrams:
//
//	node "g1" {
//	  type = "generator"
//	  name = "Arrivals"
//	}
//	edge "e1" {
//	  source        = "g1"
//	  target        = "a1"
//	  condition     = unconditional
//	  source_handle = right
//	}
//
// A small set of named constants (unconditional, left, right, top, bottom)
// is in scope so authors do not retype the canvas literals.
type HCL struct{}

func (HCL) Format() string       { return "hcl" }
func (HCL) Extensions() []string { return []string{".hcl"} }

type hclDiagram struct {
	Nodes []hclNode `hcl:"node,block"`
	Edges []hclEdge `hcl:"edge,block"`
}

type hclNode struct {
	ID        string   `hcl:"id,label"`
	Type      string   `hcl:"type"`
	Name      string   `hcl:"name,optional"`
	Resources []string `hcl:"resources,optional"`
	Duration  string   `hcl:"duration,optional"`
}

type hclEdge struct {
	ID           string `hcl:"id,label"`
	Source       string `hcl:"source"`
	Target       string `hcl:"target"`
	Dependency   bool   `hcl:"dependency,optional"`
	Condition    string `hcl:"condition,optional"`
	EdgeType     string `hcl:"edge_type,optional"`
	SourceHandle string `hcl:"source_handle,optional"`
	TargetHandle string `hcl:"target_handle,optional"`
}

// hclScope is the evaluation context for authored diagram files.
var hclScope = &hcl.EvalContext{
	Variables: map[string]cty.Value{
		"unconditional": cty.StringVal(diagram.Unconditional),
		"left":          cty.StringVal("left"),
		"right":         cty.StringVal("right"),
		"top":           cty.StringVal("top"),
		"bottom":        cty.StringVal("bottom"),
	},
}

func (HCL) Decode(name string, data []byte) (*diagram.Envelope, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, name)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %s", name, diags.Error())
	}

	var hd hclDiagram
	if diags := gohcl.DecodeBody(file.Body, hclScope, &hd); diags.HasErrors() {
		return nil, fmt.Errorf("decoding %s: %s", name, diags.Error())
	}

	g := diagram.Graph{Nodes: []diagram.Node{}, Edges: []diagram.Edge{}}
	for _, n := range hd.Nodes {
		name := n.Name
		if name == "" {
			name = n.ID
		}
		g.Nodes = append(g.Nodes, diagram.Node{
			ID:   n.ID,
			Type: diagram.NodeType(n.Type),
			Name: name,
			Data: diagram.NodeData{Resources: n.Resources, Duration: n.Duration},
		})
	}
	for _, e := range hd.Edges {
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
