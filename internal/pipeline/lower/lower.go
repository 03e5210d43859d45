package lower

import (
	"context"
	"fmt"

	"github.com/simforge/simforge/internal/compiler"
	"github.com/simforge/simforge/internal/pipeline"
)

// Lower runs the compiler over the indexed diagram and attaches the
// resulting model document to the context.
type Lower struct{}

func New() *Lower { return &Lower{} }

func (l *Lower) Name() string { return "lower" }

func (l *Lower) Run(ctx context.Context, sc *pipeline.StageContext) (*pipeline.StageResult, error) {
	result := pipeline.NewStageResult()

	if sc.Index == nil {
		result.Status = pipeline.StatusFailed
		result.AddError("lower: no diagram index")
		result.Finalize()
		return result, fmt.Errorf("lower: no diagram index")
	}

	result.Metrics.InputItems = len(sc.Index.Nodes()) + len(sc.Index.Edges())

	doc := compiler.CompileIndex(sc.Index)
	sc.Doc = doc
	result.Doc = doc

	m := doc.Model
	result.Metrics.OutputItems = len(m.Activities) + len(m.Connections) +
		len(m.EntityRelationships) + len(m.Resources)
	result.Metadata["activities"] = fmt.Sprintf("%d", len(m.Activities))
	result.Metadata["connections"] = fmt.Sprintf("%d", len(m.Connections))
	result.Metadata["relationships"] = fmt.Sprintf("%d", len(m.EntityRelationships))
	result.Metadata["resources"] = fmt.Sprintf("%d", len(m.Resources))

	if n := m.UnknownHandlerCount(); n > 0 {
		result.AddWarning(fmt.Sprintf("%d activities have no reachable generator and keep the Unknown handler", n))
		result.Metadata["unknown_handlers"] = fmt.Sprintf("%d", n)
	}

	result.Finalize()
	return result, nil
}
