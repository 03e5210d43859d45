package regress

import (
	"context"
	"time"

	"github.com/simforge/simforge/internal/compiler"
	"github.com/simforge/simforge/internal/formats"
)

// Runner replays fixtures through the in-process compiler.
type Runner struct {
	registry *formats.Registry
	// DefaultRules apply to fixtures that carry no rules of their own.
	DefaultRules *NormalizeRules
}

// NewRunner creates a Runner. A nil registry uses the default decoders.
func NewRunner(registry *formats.Registry) *Runner {
	if registry == nil {
		registry = formats.Default()
	}
	return &Runner{registry: registry}
}

// RunCase replays a single fixture: decode, compile, compare.
func (r *Runner) RunCase(f Fixture) CaseResult {
	start := time.Now()

	format := f.Format
	if format == "" {
		format = "json"
	}
	dec, err := r.registry.Decoder(format)
	if err != nil {
		return timed(CaseResult{Name: f.Name, Pass: false, Reason: "decoder: " + err.Error()}, start)
	}

	env, err := dec.Decode(f.Name, f.Diagram)
	if err != nil {
		return timed(CaseResult{Name: f.Name, Pass: false, Reason: "decode: " + err.Error()}, start)
	}

	doc, err := compiler.CompileEnvelope(env)
	if err != nil {
		return timed(CaseResult{Name: f.Name, Pass: false, Reason: "compile: " + err.Error()}, start)
	}

	actual, err := doc.Canonical()
	if err != nil {
		return timed(CaseResult{Name: f.Name, Pass: false, Reason: "encode: " + err.Error()}, start)
	}

	rules := f.Normalize
	if rules == nil {
		rules = r.DefaultRules
	}
	return timed(CompareModel(f.Name, f.Expected, actual, rules), start)
}

// Run replays all fixtures and collects the results into a report pack.
// Replay stops early when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, fixtures []Fixture) (*ReportPack, error) {
	pack := NewReportPack()
	for _, f := range fixtures {
		if err := ctx.Err(); err != nil {
			pack.Finish()
			return pack, err
		}
		pack.AddResult(r.RunCase(f))
	}
	pack.Finish()
	return pack, nil
}

func timed(res CaseResult, start time.Time) CaseResult {
	res.Duration = time.Since(start)
	return res
}
