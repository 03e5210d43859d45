package diagram

// NodeType classifies authored canvas nodes.
type NodeType string

const (
	NodeGenerator      NodeType = "generator"
	NodeActivity       NodeType = "activity"
	NodeTerminator     NodeType = "terminator"
	NodeGlobal         NodeType = "global"
	NodeEvent          NodeType = "event"
	NodeInitialization NodeType = "initialization"
	NodeTableau        NodeType = "tableau"
	NodeModuleFrame    NodeType = "moduleFrame"
)

// KnownType reports whether t is one of the node types the canvas can author.
// Unrecognized types are carried through decoding and ignored by rules that
// key on type.
func KnownType(t NodeType) bool {
	switch t {
	case NodeGenerator, NodeActivity, NodeTerminator, NodeGlobal,
		NodeEvent, NodeInitialization, NodeTableau, NodeModuleFrame:
		return true
	}
	return false
}

// Node is a single authored node. Name is the display label and doubles as
// the identifier in compiled output; ID is only used to resolve edges.
type Node struct {
	ID   string   `json:"id" validate:"required"`
	Type NodeType `json:"type" validate:"required"`
	Name string   `json:"name"`
	Data NodeData `json:"data"`
}

// NodeData is the type-dependent payload attached to a node. Only activity
// nodes populate Resources and Duration; other node types leave it empty.
type NodeData struct {
	Resources []string `json:"resources,omitempty"`
	Duration  string   `json:"duration,omitempty"`
}

// Edge is a directed connection between two nodes. SourceHandle and
// TargetHandle record which side of each endpoint the edge attaches to
// (left/right/top/bottom style handle ids from the canvas).
type Edge struct {
	ID           string   `json:"id" validate:"required"`
	Source       string   `json:"source" validate:"required"`
	Target       string   `json:"target" validate:"required"`
	SourceHandle string   `json:"sourceHandle,omitempty"`
	TargetHandle string   `json:"targetHandle,omitempty"`
	Data         EdgeData `json:"data"`
}

// EdgeData carries the user-editable edge annotations. Condition defaults to
// "True" in the canvas, which means unconditional. EdgeType is a canvas
// rendering hint and takes no part in compilation.
type EdgeData struct {
	IsDependency bool   `json:"isDependency,omitempty"`
	Condition    string `json:"condition,omitempty"`
	EdgeType     string `json:"edgeType,omitempty"`
}

// Graph is one authored diagram, flattened for serialization. Node and edge
// order is the canvas authoring order and is preserved through compilation
// so output is stable across runs.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Envelope is the wire form the canvas export action produces.
type Envelope struct {
	JSON Graph `json:"json"`
}

// Unconditional is the canvas default condition text; edges carrying it
// contribute no condition entries.
const Unconditional = "True"
