package simmodel

import (
	"bytes"
	"encoding/json"
)

// UnknownHandler marks an activity no generator claims.
const UnknownHandler = "Unknown"

// EntityRelationship is a directed owner→component pair between entity
// names. The list in a Model is deduplicated.
type EntityRelationship struct {
	Owner     string `json:"owner"`
	Component string `json:"component"`
}

// Resource is one distinct resource type referenced by the diagram.
// Quantity is always 0 here; the simulator assigns real inventory levels.
type Resource struct {
	Type     string `json:"type"`
	Group    string `json:"group"`
	Quantity int    `json:"quantity"`
}

// Attributes holds per-activity flags. Initial marshals only when true.
type Attributes struct {
	Initial bool `json:"initial,omitempty"`
}

// Condition is one parsed routing predicate on an activity's incoming edge.
// Value is a bool for the literal tokens True/False, otherwise the raw
// right-hand string.
type Condition struct {
	Attribute string `json:"attribute"`
	Value     any    `json:"value"`
}

// Requirement reserves quantity units from the named resource groups before
// the activity may start.
type Requirement struct {
	ResourceGroups []string `json:"resourceGroups"`
	Quantity       int      `json:"quantity"`
}

// Duration is a placeholder for timing parameters; lowering emits it empty
// and the simulator's calibration step fills it in.
type Duration struct{}

// Activity is one lowered activity record. ID is the node's display name,
// not its canvas id.
type Activity struct {
	ID           string        `json:"id"`
	HandlerType  string        `json:"handlerType"`
	Attributes   Attributes    `json:"attributes"`
	Conditions   []Condition   `json:"conditions"`
	Requirements []Requirement `json:"requirements"`
	Duration     Duration      `json:"duration"`
}

// ConnectionType labels a classified edge.
type ConnectionType string

const (
	ConnStartToInflow  ConnectionType = "StartToInflow"
	ConnStartToStart   ConnectionType = "StartToStart"
	ConnFinishToFinish ConnectionType = "FinishToFinish"
	ConnFlow           ConnectionType = "Flow"
	// ConnUnclassified is the zero value; classification never emits it.
	ConnUnclassified ConnectionType = ""
)

// Connection links two node display names with a classified type.
type Connection struct {
	Type ConnectionType `json:"type"`
	From string         `json:"from"`
	To   string         `json:"to"`
}

// Model is the simulation-ready body of a compiled diagram.
type Model struct {
	EntityRelationships []EntityRelationship `json:"entityRelationships"`
	Resources           []Resource           `json:"resources"`
	Activities          []Activity           `json:"activities"`
	Connections         []Connection         `json:"connections"`
}

// Document is the export record handed to the simulation loader. Scenario
// and Description are user-supplied outside compilation and stay empty here.
type Document struct {
	Scenario    string `json:"scenario"`
	Description string `json:"description"`
	Model       Model  `json:"model"`
}

// NewDocument returns a Document whose model slices are allocated, so every
// list marshals as [] rather than null even when empty.
func NewDocument() *Document {
	return &Document{
		Model: Model{
			EntityRelationships: []EntityRelationship{},
			Resources:           []Resource{},
			Activities:          []Activity{},
			Connections:         []Connection{},
		},
	}
}

// Canonical returns the compact JSON encoding of the document. Struct field
// order is fixed, so two equal documents always encode to identical bytes;
// fingerprinting and regression comparison rely on this.
func (d *Document) Canonical() ([]byte, error) {
	return json.Marshal(d)
}

// Pretty returns an indented encoding for humans and review tooling.
func (d *Document) Pretty() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ActivityByID returns the activity with the given display name.
func (m *Model) ActivityByID(id string) (*Activity, bool) {
	for i := range m.Activities {
		if m.Activities[i].ID == id {
			return &m.Activities[i], true
		}
	}
	return nil, false
}

// UnknownHandlerCount reports how many activities no generator claims.
func (m *Model) UnknownHandlerCount() int {
	n := 0
	for i := range m.Activities {
		if m.Activities[i].HandlerType == UnknownHandler {
			n++
		}
	}
	return n
}

// ConnectionCounts tallies connections by type.
func (m *Model) ConnectionCounts() map[ConnectionType]int {
	counts := make(map[ConnectionType]int)
	for _, c := range m.Connections {
		counts[c.Type]++
	}
	return counts
}
