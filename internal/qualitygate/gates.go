package qualitygate

import (
	"fmt"
	"strings"
)

// EmptyModelGate checks that compilation produced something to simulate.
type EmptyModelGate struct {
	severity GateSeverity
}

func NewEmptyModelGate(severity GateSeverity) *EmptyModelGate {
	return &EmptyModelGate{severity: severity}
}

func (g *EmptyModelGate) Name() string           { return "model" }
func (g *EmptyModelGate) Severity() GateSeverity { return g.severity }
func (g *EmptyModelGate) Evaluate(ctx *EvalContext) (*GateResult, error) {
	r := &GateResult{
		Name:     g.Name(),
		Severity: g.severity,
	}
	if ctx.Activities > 0 {
		r.Status = GatePassed
		r.Score = 1.0
		r.Message = fmt.Sprintf("Model has %d activities", ctx.Activities)
	} else {
		r.Status = GateFailed
		r.Score = 0.0
		r.Message = "Model is empty: no activity nodes compiled"
	}
	return r, nil
}

// UnknownHandlerGate checks that enough activities resolved to an owning
// entity.
type UnknownHandlerGate struct {
	MaxRatio float64
	severity GateSeverity
}

func NewUnknownHandlerGate(maxRatio float64, severity GateSeverity) *UnknownHandlerGate {
	return &UnknownHandlerGate{MaxRatio: maxRatio, severity: severity}
}

func (g *UnknownHandlerGate) Name() string           { return "handlers" }
func (g *UnknownHandlerGate) Severity() GateSeverity { return g.severity }
func (g *UnknownHandlerGate) Evaluate(ctx *EvalContext) (*GateResult, error) {
	r := &GateResult{
		Name:      g.Name(),
		Severity:  g.severity,
		Threshold: g.MaxRatio,
	}

	if ctx.Activities == 0 {
		r.Status = GateSkipped
		r.Message = "No activities to evaluate"
		return r, nil
	}

	ratio := float64(ctx.UnknownHandlers) / float64(ctx.Activities)
	r.Score = 1.0 - ratio

	if ratio <= g.MaxRatio {
		r.Status = GatePassed
		r.Message = fmt.Sprintf("Unknown-handler ratio %.1f%% within limit %.1f%%",
			ratio*100, g.MaxRatio*100)
	} else {
		r.Status = GateFailed
		r.Message = fmt.Sprintf("Unknown-handler ratio %.1f%% exceeds limit %.1f%% (%d/%d activities)",
			ratio*100, g.MaxRatio*100, ctx.UnknownHandlers, ctx.Activities)
	}
	return r, nil
}

// DanglingEdgeGate checks that the diagram does not reference too many
// missing nodes.
type DanglingEdgeGate struct {
	MaxRatio float64
	severity GateSeverity
}

func NewDanglingEdgeGate(maxRatio float64, severity GateSeverity) *DanglingEdgeGate {
	return &DanglingEdgeGate{MaxRatio: maxRatio, severity: severity}
}

func (g *DanglingEdgeGate) Name() string           { return "edges" }
func (g *DanglingEdgeGate) Severity() GateSeverity { return g.severity }
func (g *DanglingEdgeGate) Evaluate(ctx *EvalContext) (*GateResult, error) {
	r := &GateResult{
		Name:      g.Name(),
		Severity:  g.severity,
		Threshold: g.MaxRatio,
	}

	if ctx.EdgesAuthored == 0 {
		r.Status = GateSkipped
		r.Message = "No edges to evaluate"
		return r, nil
	}

	ratio := float64(ctx.DanglingEdges) / float64(ctx.EdgesAuthored)
	r.Score = 1.0 - ratio

	if ratio <= g.MaxRatio {
		r.Status = GatePassed
		r.Message = fmt.Sprintf("Dangling-edge ratio %.1f%% within limit %.1f%%",
			ratio*100, g.MaxRatio*100)
	} else {
		r.Status = GateFailed
		r.Message = fmt.Sprintf("Dangling-edge ratio %.1f%% exceeds limit %.1f%% (%d/%d edges)",
			ratio*100, g.MaxRatio*100, ctx.DanglingEdges, ctx.EdgesAuthored)
	}
	return r, nil
}

// UnclassifiedDependencyGate checks that dependency edges actually
// classified into connections.
type UnclassifiedDependencyGate struct {
	MaxCount int
	severity GateSeverity
}

func NewUnclassifiedDependencyGate(maxCount int, severity GateSeverity) *UnclassifiedDependencyGate {
	return &UnclassifiedDependencyGate{MaxCount: maxCount, severity: severity}
}

func (g *UnclassifiedDependencyGate) Name() string           { return "dependencies" }
func (g *UnclassifiedDependencyGate) Severity() GateSeverity { return g.severity }
func (g *UnclassifiedDependencyGate) Evaluate(ctx *EvalContext) (*GateResult, error) {
	r := &GateResult{
		Name:     g.Name(),
		Severity: g.severity,
	}

	if ctx.DependencyEdges == 0 {
		r.Status = GateSkipped
		r.Message = "No dependency edges to evaluate"
		return r, nil
	}

	count := ctx.UnclassifiedDependencies
	r.Score = 1.0 - float64(count)/float64(ctx.DependencyEdges)

	if count <= g.MaxCount {
		r.Status = GatePassed
		r.Message = fmt.Sprintf("Unclassified dependency count %d within limit %d", count, g.MaxCount)
	} else {
		r.Status = GateFailed
		r.Message = fmt.Sprintf("Unclassified dependency count %d exceeds limit %d", count, g.MaxCount)
	}
	return r, nil
}

// OrphanResourceGate flags resources whose names match no simulation
// entity; usually a typo in a resource label or a missing generator.
type OrphanResourceGate struct {
	severity GateSeverity
}

func NewOrphanResourceGate(severity GateSeverity) *OrphanResourceGate {
	return &OrphanResourceGate{severity: severity}
}

func (g *OrphanResourceGate) Name() string           { return "resources" }
func (g *OrphanResourceGate) Severity() GateSeverity { return g.severity }
func (g *OrphanResourceGate) Evaluate(ctx *EvalContext) (*GateResult, error) {
	r := &GateResult{
		Name:     g.Name(),
		Severity: g.severity,
	}

	if ctx.Resources == 0 {
		r.Status = GateSkipped
		r.Message = "No resources to evaluate"
		return r, nil
	}

	orphans := len(ctx.OrphanResources)
	r.Score = 1.0 - float64(orphans)/float64(ctx.Resources)

	if orphans == 0 {
		r.Status = GatePassed
		r.Message = fmt.Sprintf("All %d resources match a simulation entity", ctx.Resources)
	} else {
		r.Status = GateWarning
		r.Message = fmt.Sprintf("%d of %d resources match no entity: %s",
			orphans, ctx.Resources, strings.Join(ctx.OrphanResources, ", "))
		r.Details = ctx.OrphanResources
	}
	return r, nil
}
