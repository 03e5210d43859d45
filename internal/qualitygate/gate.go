package qualitygate

import (
	"fmt"
	"time"

	"github.com/simforge/simforge/internal/compiler"
	"github.com/simforge/simforge/internal/diagram"
	"github.com/simforge/simforge/internal/simmodel"
)

// GateStatus represents the result of a quality gate check.
type GateStatus string

const (
	GatePassed  GateStatus = "passed"
	GateFailed  GateStatus = "failed"
	GateSkipped GateStatus = "skipped"
	GateWarning GateStatus = "warning"
)

// GateSeverity indicates how critical a gate failure is.
type GateSeverity string

const (
	SeverityCritical GateSeverity = "critical" // Pipeline must abort
	SeverityRequired GateSeverity = "required" // Must pass but allows retry
	SeverityAdvisory GateSeverity = "advisory" // Warning only, does not block
)

// GateResult captures the outcome of a single gate evaluation.
type GateResult struct {
	Name        string        `json:"name"`
	Status      GateStatus    `json:"status"`
	Severity    GateSeverity  `json:"severity"`
	Score       float64       `json:"score"`     // 0.0-1.0 normalized
	Threshold   float64       `json:"threshold"` // Required minimum
	Message     string        `json:"message"`
	Details     []string      `json:"details,omitempty"`
	Duration    time.Duration `json:"duration"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
}

// Gate is the interface all quality gates must implement.
type Gate interface {
	Name() string
	Severity() GateSeverity
	Evaluate(ctx *EvalContext) (*GateResult, error)
}

// EvalContext provides data for gate evaluation, precomputed from the
// diagram index and the compiled model.
type EvalContext struct {
	Activities               int      // Lowered activity records
	UnknownHandlers          int      // Activities no generator claims
	Generators               int      // Generator nodes in the diagram
	EdgesAuthored            int      // All authored edges, resolvable or not
	DanglingEdges            int      // Edges dropped for missing endpoints
	DependencyEdges          int      // Resolvable dependency edges
	UnclassifiedDependencies int      // Dependency edges no connection rule consumed
	Connections              int      // Classified connections
	EntityRelationships      int      // Extracted ownership pairs
	Resources                int      // Distinct resource types
	OrphanResources          []string // Resource types matching no entity
	Warnings                 []string // Pipeline warnings
	Metadata                 map[string]string
}

// NewEvalContext derives gate inputs from the index a model was compiled
// from and the compiled document.
func NewEvalContext(idx *diagram.Index, doc *simmodel.Document) *EvalContext {
	ctx := &EvalContext{
		Activities:          len(doc.Model.Activities),
		UnknownHandlers:     doc.Model.UnknownHandlerCount(),
		Generators:          len(idx.Generators()),
		EdgesAuthored:       len(idx.Edges()) + len(idx.SkippedEdges()),
		DanglingEdges:       len(idx.SkippedEdges()),
		Connections:         len(doc.Model.Connections),
		EntityRelationships: len(doc.Model.EntityRelationships),
		Resources:           len(doc.Model.Resources),
		Metadata:            make(map[string]string),
	}

	for _, e := range idx.Edges() {
		if e.Data.IsDependency {
			ctx.DependencyEdges++
		}
	}
	ctx.UnclassifiedDependencies = countUnclassifiedDependencies(idx)

	entities := make(map[string]bool)
	for _, a := range doc.Model.Activities {
		if a.HandlerType != simmodel.UnknownHandler {
			entities[compiler.NormalizeEntityName(a.HandlerType)] = true
		}
	}
	for _, r := range doc.Model.Resources {
		if !entities[compiler.NormalizeEntityName(r.Type)] {
			ctx.OrphanResources = append(ctx.OrphanResources, r.Type)
		}
	}

	return ctx
}

// countUnclassifiedDependencies counts dependency edges no classification
// rule consumes: edges touching terminators, edges into generators that
// flow nowhere, and edges whose endpoints are not activity-shaped at all.
func countUnclassifiedDependencies(idx *diagram.Index) int {
	n := 0
	for _, e := range idx.Edges() {
		if !e.Data.IsDependency {
			continue
		}
		src, _ := idx.Node(e.Source)
		tgt, _ := idx.Node(e.Target)

		if src.Type == diagram.NodeTerminator || tgt.Type == diagram.NodeTerminator {
			n++
			continue
		}
		if src.Type == diagram.NodeActivity && tgt.Type == diagram.NodeActivity {
			continue
		}
		if src.Type == diagram.NodeActivity && tgt.Type == diagram.NodeGenerator {
			consumed := false
			for _, out := range idx.Outgoing(tgt.ID) {
				if !out.Data.IsDependency && idx.IsType(out.Target, diagram.NodeActivity) {
					consumed = true
					break
				}
			}
			if !consumed {
				n++
			}
			continue
		}
		n++
	}
	return n
}

// PipelineResult captures the complete gate pipeline evaluation.
type PipelineResult struct {
	Status       GateStatus    `json:"status"` // Overall: passed if all required gates pass
	Gates        []GateResult  `json:"gates"`
	PassedCount  int           `json:"passed_count"`
	FailedCount  int           `json:"failed_count"`
	SkippedCount int           `json:"skipped_count"`
	WarningCount int           `json:"warning_count"`
	Duration     time.Duration `json:"duration"`
	EvaluatedAt  time.Time     `json:"evaluated_at"`
	Summary      string        `json:"summary"`
}

// Pipeline orchestrates multiple quality gates in sequence.
type Pipeline struct {
	gates []Gate
}

// NewPipeline creates a new quality gate pipeline.
func NewPipeline(gates ...Gate) *Pipeline {
	return &Pipeline{gates: gates}
}

// AddGate appends a gate to the pipeline.
func (p *Pipeline) AddGate(g Gate) {
	p.gates = append(p.gates, g)
}

// Run evaluates all gates against the provided context.
func (p *Pipeline) Run(ctx *EvalContext) *PipelineResult {
	start := time.Now()
	result := &PipelineResult{
		Status:      GatePassed,
		EvaluatedAt: start,
	}

	aborted := false

	for _, gate := range p.gates {
		if aborted {
			result.Gates = append(result.Gates, GateResult{
				Name:        gate.Name(),
				Status:      GateSkipped,
				Severity:    gate.Severity(),
				Message:     "Skipped due to critical gate failure",
				EvaluatedAt: time.Now(),
			})
			result.SkippedCount++
			continue
		}

		gateStart := time.Now()
		gr, err := gate.Evaluate(ctx)
		if err != nil {
			gr = &GateResult{
				Name:     gate.Name(),
				Status:   GateFailed,
				Severity: gate.Severity(),
				Message:  fmt.Sprintf("Gate evaluation error: %v", err),
			}
		}
		gr.Duration = time.Since(gateStart)
		gr.EvaluatedAt = gateStart

		result.Gates = append(result.Gates, *gr)

		switch gr.Status {
		case GatePassed:
			result.PassedCount++
		case GateFailed:
			result.FailedCount++
			if gr.Severity == SeverityCritical {
				aborted = true
				result.Status = GateFailed
			} else if gr.Severity == SeverityRequired {
				result.Status = GateFailed
			}
		case GateWarning:
			result.WarningCount++
		case GateSkipped:
			result.SkippedCount++
		}
	}

	result.Duration = time.Since(start)
	result.Summary = formatSummary(result)

	return result
}

func formatSummary(r *PipelineResult) string {
	return fmt.Sprintf("Quality Gates: %d passed, %d failed, %d warnings, %d skipped [%s]",
		r.PassedCount, r.FailedCount, r.WarningCount, r.SkippedCount, r.Status)
}
