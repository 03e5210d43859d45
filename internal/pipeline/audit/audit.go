package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/simforge/simforge/internal/diagram"
	"github.com/simforge/simforge/internal/pipeline"
)

// Audit counts the diagnostics a compile run should surface without ever
// failing it: dangling edges the index dropped, duplicate node ids, node
// types the canvas cannot author, edge conditions the lowering could not
// parse, and activities left with the Unknown handler.
type Audit struct{}

func New() *Audit { return &Audit{} }

func (a *Audit) Name() string { return "audit" }

func (a *Audit) Run(ctx context.Context, sc *pipeline.StageContext) (*pipeline.StageResult, error) {
	result := pipeline.NewStageResult()

	if sc.Index == nil {
		result.SetPassthrough("no diagram index to audit")
		result.Finalize()
		return result, nil
	}

	idx := sc.Index
	result.Metrics.InputItems = len(idx.Nodes()) + len(idx.Edges())

	diagnostics := 0

	if n := len(idx.SkippedEdges()); n > 0 {
		diagnostics += n
		result.AddWarning(fmt.Sprintf("%d edges reference missing nodes and were dropped", n))
		result.Metadata["dangling_edges"] = fmt.Sprintf("%d", n)
	}

	if n := len(idx.DuplicateNodes()); n > 0 {
		diagnostics += n
		result.AddWarning(fmt.Sprintf("%d node ids appear more than once; later occurrences ignored", n))
		result.Metadata["duplicate_nodes"] = fmt.Sprintf("%d", n)
	}

	unknownTypes := 0
	for _, n := range idx.Nodes() {
		if !diagram.KnownType(n.Type) {
			unknownTypes++
		}
	}
	if unknownTypes > 0 {
		diagnostics += unknownTypes
		result.AddWarning(fmt.Sprintf("%d nodes have unrecognized types and take no part in lowering", unknownTypes))
		result.Metadata["unrecognized_types"] = fmt.Sprintf("%d", unknownTypes)
	}

	badConditions := 0
	for _, e := range idx.Edges() {
		if unparseableCondition(e.Data.Condition) {
			badConditions++
		}
	}
	if badConditions > 0 {
		diagnostics += badConditions
		result.AddWarning(fmt.Sprintf("%d edge conditions are not attribute=value and carry no condition", badConditions))
		result.Metadata["unparseable_conditions"] = fmt.Sprintf("%d", badConditions)
	}

	if sc.Doc != nil {
		if n := sc.Doc.Model.UnknownHandlerCount(); n > 0 {
			diagnostics += n
			result.Metadata["unknown_handlers"] = fmt.Sprintf("%d", n)
		}
	}

	result.Metrics.OutputItems = diagnostics
	result.Metadata["diagnostics"] = fmt.Sprintf("%d", diagnostics)

	result.Finalize()
	return result, nil
}

// unparseableCondition mirrors the lowering rule: empty text and the
// unconditional default are fine, anything else needs an '='.
func unparseableCondition(text string) bool {
	if text == "" || text == diagram.Unconditional {
		return false
	}
	return !strings.Contains(text, "=")
}
