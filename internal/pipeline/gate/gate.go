package gate

import (
	"context"
	"fmt"

	"github.com/simforge/simforge/internal/pipeline"
	"github.com/simforge/simforge/internal/qualitygate"
)

// Gate evaluates the configured quality gates against the compiled model.
// A critical or required gate failure marks the stage failed so drivers can
// stop before persisting; advisory findings stay warnings.
type Gate struct{}

func New() *Gate { return &Gate{} }

func (g *Gate) Name() string { return "gate" }

func (g *Gate) Run(ctx context.Context, sc *pipeline.StageContext) (*pipeline.StageResult, error) {
	result := pipeline.NewStageResult()

	if sc.Index == nil || sc.Doc == nil {
		result.Status = pipeline.StatusFailed
		result.AddError("gate: nothing compiled to evaluate")
		result.Finalize()
		return result, fmt.Errorf("gate: nothing compiled to evaluate")
	}

	gates := sc.Gates
	if gates == nil {
		gates = qualitygate.BuildPipeline(qualitygate.DefaultConfig())
	}

	ec := qualitygate.NewEvalContext(sc.Index, sc.Doc)
	ec.Warnings = findingsAsWarnings(sc)
	pr := gates.Run(ec)
	sc.GateReport = pr

	result.Metrics.InputItems = len(pr.Gates)
	result.Metrics.OutputItems = pr.PassedCount
	result.Metrics.SkippedItems = pr.SkippedCount
	result.Metadata["gate_status"] = string(pr.Status)
	result.Metadata["gate_summary"] = pr.Summary

	for _, gr := range pr.Gates {
		switch gr.Status {
		case qualitygate.GateFailed:
			if gr.Severity == qualitygate.SeverityAdvisory {
				result.AddWarning(fmt.Sprintf("%s: %s", gr.Name, gr.Message))
			} else {
				result.AddError(fmt.Sprintf("%s: %s", gr.Name, gr.Message))
			}
		case qualitygate.GateWarning:
			result.AddWarning(fmt.Sprintf("%s: %s", gr.Name, gr.Message))
		}
	}

	if evaluated := pr.PassedCount + pr.FailedCount + pr.WarningCount; evaluated > 0 {
		result.Score = float64(pr.PassedCount+pr.WarningCount) / float64(evaluated)
	}

	if pr.Status == qualitygate.GateFailed {
		result.Status = pipeline.StatusFailed
	}

	result.Finalize()
	return result, nil
}

func findingsAsWarnings(sc *pipeline.StageContext) []string {
	out := make([]string, 0, len(sc.Findings))
	for _, f := range sc.Findings {
		out = append(out, f.String())
	}
	return out
}
