package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/simforge/simforge/internal/diagram"
	"github.com/simforge/simforge/internal/pipeline"
	"github.com/simforge/simforge/internal/validate"
)

// Ingest decodes a diagram file into the envelope, validates it, and builds
// the node/edge index the compiler works from. When the context already
// carries a decoded envelope (the HTTP service decodes request bodies
// itself), the file load is skipped and only validation and indexing run.
type Ingest struct{}

func New() *Ingest { return &Ingest{} }

func (i *Ingest) Name() string { return "ingest" }

func (i *Ingest) Run(ctx context.Context, sc *pipeline.StageContext) (*pipeline.StageResult, error) {
	result := pipeline.NewStageResult()

	if sc.Envelope == nil {
		inputPath := sc.Params["input"]
		result.Metadata["input_path"] = inputPath

		dec, err := sc.Registry.ForPath(inputPath)
		if err != nil {
			result.Status = pipeline.StatusFailed
			result.AddError(fmt.Sprintf("format lookup: %v", err))
			result.Finalize()
			return result, err
		}
		result.Metadata["format"] = dec.Format()

		data, err := os.ReadFile(inputPath)
		if err != nil {
			result.Status = pipeline.StatusFailed
			result.AddError(fmt.Sprintf("reading diagram: %v", err))
			result.Finalize()
			return result, fmt.Errorf("reading diagram: %w", err)
		}

		env, err := dec.Decode(inputPath, data)
		if err != nil {
			result.Status = pipeline.StatusFailed
			result.AddError(fmt.Sprintf("decoding diagram: %v", err))
			result.Finalize()
			return result, fmt.Errorf("decoding diagram: %w", err)
		}
		sc.Raw = data
		sc.Envelope = env
		sc.Source = inputPath
		sc.Format = dec.Format()
	}

	if err := validate.Envelope(sc.Envelope); err != nil {
		result.Status = pipeline.StatusFailed
		result.AddError(fmt.Sprintf("validating diagram: %v", err))
		result.Finalize()
		return result, fmt.Errorf("validating diagram: %w", err)
	}

	findings := validate.Graph(&sc.Envelope.JSON)
	for _, f := range findings {
		result.AddWarning(f.String())
	}
	sc.Findings = findings
	sc.Index = diagram.NewIndex(&sc.Envelope.JSON)

	result.Metrics.InputItems = len(sc.Envelope.JSON.Nodes) + len(sc.Envelope.JSON.Edges)
	result.Metrics.OutputItems = len(sc.Envelope.JSON.Nodes) + len(sc.Envelope.JSON.Edges) - len(sc.Index.SkippedEdges())
	result.Metrics.SkippedItems = len(sc.Index.SkippedEdges())
	result.Metadata["nodes"] = fmt.Sprintf("%d", len(sc.Envelope.JSON.Nodes))
	result.Metadata["edges"] = fmt.Sprintf("%d", len(sc.Envelope.JSON.Edges))

	result.Finalize()
	return result, nil
}
