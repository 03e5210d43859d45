package index

import (
	"context"
	"fmt"
	"time"

	"github.com/simforge/simforge/internal/pipeline"
	"github.com/simforge/simforge/internal/session"
)

// Index embeds the compiled model and upserts it into the vector store for
// similarity search. The stage passes through when no vector store is
// configured so the rest of the pipeline never depends on one.
type Index struct{}

func New() *Index { return &Index{} }

func (i *Index) Name() string { return "index" }

func (i *Index) Run(ctx context.Context, sc *pipeline.StageContext) (*pipeline.StageResult, error) {
	result := pipeline.NewStageResult()

	if sc.Vectors == nil {
		result.SetPassthrough("vector store not configured")
		result.Finalize()
		return result, nil
	}
	if sc.Doc == nil {
		result.Status = pipeline.StatusFailed
		result.AddError("index: no compiled model")
		result.Finalize()
		return result, fmt.Errorf("index: no compiled model")
	}

	modelID := sc.Params["session_id"]
	if modelID == "" {
		canonical, err := sc.Doc.Canonical()
		if err != nil {
			result.Status = pipeline.StatusFailed
			result.AddError(fmt.Sprintf("encoding model: %v", err))
			result.Finalize()
			return result, fmt.Errorf("encoding model: %w", err)
		}
		modelID = session.ContentHash(canonical)
	}
	result.Metadata["model_id"] = modelID

	result.Metrics.InputItems = 1
	start := time.Now()
	err := sc.Vectors.IndexModel(ctx, modelID, sc.Source, sc.Doc)
	result.RecordStoreCall(time.Since(start))
	if err != nil {
		result.Status = pipeline.StatusFailed
		result.AddError(fmt.Sprintf("indexing model: %v", err))
		result.Finalize()
		return result, fmt.Errorf("indexing model: %w", err)
	}
	result.Metrics.OutputItems = 1

	result.Finalize()
	return result, nil
}
