package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/simforge/simforge/internal/diagram"
	"github.com/simforge/simforge/internal/simmodel"
)

// CompileMetrics collects statistics for one diagram compilation.
type CompileMetrics struct {
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at,omitempty"`
	Duration    time.Duration `json:"duration_ms,omitempty"`
	Input       InputMetrics  `json:"input"`
	Output      OutputMetrics `json:"output"`
	Stages      []StageMetrics `json:"stages"`
	GateOutcome string        `json:"gate_outcome,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
}

type InputMetrics struct {
	Format          string `json:"format"`
	Nodes           int    `json:"nodes"`
	Generators      int    `json:"generators"`
	Activities      int    `json:"activities"`
	Terminators     int    `json:"terminators"`
	Edges           int    `json:"edges"`
	DependencyEdges int    `json:"dependency_edges"`
	SkippedEdges    int    `json:"skipped_edges"`
	Findings        int    `json:"findings"`
}

type OutputMetrics struct {
	Activities          int            `json:"activities"`
	UnknownHandlers     int            `json:"unknown_handlers"`
	Resources           int            `json:"resources"`
	EntityRelationships int            `json:"entity_relationships"`
	Connections         map[string]int `json:"connections"`
}

type StageMetrics struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ms"`
	Status   string        `json:"status"`
}

// New starts tracking a compile run.
func New() *CompileMetrics {
	return &CompileMetrics{StartedAt: time.Now()}
}

// CollectInput computes diagram-side metrics from the built index.
func (m *CompileMetrics) CollectInput(format string, idx *diagram.Index, findings int) {
	m.Input.Format = format
	m.Input.Nodes = len(idx.Nodes())
	m.Input.Generators = len(idx.Generators())
	m.Input.Activities = len(idx.Activities())
	m.Input.Terminators = len(idx.NodesOfType(diagram.NodeTerminator))
	m.Input.Edges = len(idx.Edges())
	m.Input.SkippedEdges = len(idx.SkippedEdges())
	m.Input.Findings = findings

	for _, e := range idx.Edges() {
		if e.Data.IsDependency {
			m.Input.DependencyEdges++
		}
	}
}

// CollectOutput computes model-side metrics from the compiled document.
func (m *CompileMetrics) CollectOutput(doc *simmodel.Document) {
	m.Output.Activities = len(doc.Model.Activities)
	m.Output.UnknownHandlers = doc.Model.UnknownHandlerCount()
	m.Output.Resources = len(doc.Model.Resources)
	m.Output.EntityRelationships = len(doc.Model.EntityRelationships)

	m.Output.Connections = make(map[string]int)
	for typ, n := range doc.Model.ConnectionCounts() {
		m.Output.Connections[string(typ)] = n
	}
}

// AddStage records a single pipeline stage's timing and status.
func (m *CompileMetrics) AddStage(name string, d time.Duration, status string) {
	m.Stages = append(m.Stages, StageMetrics{Name: name, Duration: d, Status: status})
}

// Finish marks the compile as complete.
func (m *CompileMetrics) Finish(gateOutcome string, warnings []string) {
	m.FinishedAt = time.Now()
	m.Duration = m.FinishedAt.Sub(m.StartedAt)
	m.GateOutcome = gateOutcome
	m.Warnings = warnings
}

// connectionOrder fixes the printed connection-type order.
var connectionOrder = []simmodel.ConnectionType{
	simmodel.ConnStartToInflow,
	simmodel.ConnStartToStart,
	simmodel.ConnFinishToFinish,
	simmodel.ConnFlow,
}

// PrintSummary writes a human-readable summary.
func (m *CompileMetrics) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║       SIMFORGE COMPILE REPORT        ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", m.Duration.Round(time.Millisecond))
	if m.GateOutcome != "" {
		fmt.Fprintf(w, "║ Gates:       %-23s║\n", m.GateOutcome)
	}
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ DIAGRAM (%s)\n", m.Input.Format)
	fmt.Fprintf(w, "║   Nodes:        %d\n", m.Input.Nodes)
	fmt.Fprintf(w, "║   Generators:   %d\n", m.Input.Generators)
	fmt.Fprintf(w, "║   Activities:   %d\n", m.Input.Activities)
	fmt.Fprintf(w, "║   Terminators:  %d\n", m.Input.Terminators)
	fmt.Fprintf(w, "║   Edges:        %d (%d dependency)\n", m.Input.Edges, m.Input.DependencyEdges)
	if m.Input.SkippedEdges > 0 {
		fmt.Fprintf(w, "║   Skipped:      %d\n", m.Input.SkippedEdges)
	}
	if m.Input.Findings > 0 {
		fmt.Fprintf(w, "║   Findings:     %d\n", m.Input.Findings)
	}
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ MODEL\n")
	fmt.Fprintf(w, "║   Activities:   %d (%d unknown handler)\n", m.Output.Activities, m.Output.UnknownHandlers)
	fmt.Fprintf(w, "║   Resources:    %d\n", m.Output.Resources)
	fmt.Fprintf(w, "║   Entity Rels:  %d\n", m.Output.EntityRelationships)
	for _, typ := range connectionOrder {
		if n := m.Output.Connections[string(typ)]; n > 0 {
			fmt.Fprintf(w, "║   %-14s %d\n", string(typ)+":", n)
		}
	}
	if len(m.Stages) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ STAGES\n")
		for _, s := range m.Stages {
			fmt.Fprintf(w, "║   %-10s %8s  [%s]\n", s.Name, s.Duration.Round(time.Millisecond), s.Status)
		}
	}
	if len(m.Warnings) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ WARNINGS\n")
		for _, warning := range m.Warnings {
			fmt.Fprintf(w, "║   • %s\n", warning)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the metrics as formatted JSON.
func (m *CompileMetrics) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
