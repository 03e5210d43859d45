// Package compiler lowers diagram graphs into structured simulation models.
//
// The lowering is a fixed sequence of pure passes over an indexed graph
// snapshot: reachability analysis, handler assignment, entity relationship
// extraction, resource collection, activity lowering and connection
// classification. Each pass is stateless and side-effect free, so compiles
// may run concurrently over shared inputs without coordination.
package compiler

import (
	"errors"

	"github.com/simforge/simforge/internal/diagram"
	"github.com/simforge/simforge/internal/simmodel"
)

// ErrNoGraph reports input that is not graph-shaped at all. Per-item
// anomalies (dangling edges, unknown node types, unparseable conditions)
// are recovered locally and never surface here.
var ErrNoGraph = errors.New("compiler: no graph to compile")

// Compile lowers a diagram graph into a simulation model document. The
// input is never mutated and equal inputs produce byte-identical documents.
func Compile(g *diagram.Graph) (*simmodel.Document, error) {
	if g == nil {
		return nil, ErrNoGraph
	}
	return CompileIndex(diagram.NewIndex(g)), nil
}

// CompileEnvelope unwraps the editor export envelope and compiles the graph
// inside it.
func CompileEnvelope(env *diagram.Envelope) (*simmodel.Document, error) {
	if env == nil {
		return nil, ErrNoGraph
	}
	return Compile(&env.JSON)
}

// CompileIndex runs the lowering passes over an already-built index. Useful
// when the caller also wants the index diagnostics (skipped edges, duplicate
// node ids) that building the index produces.
func CompileIndex(idx *diagram.Index) *simmodel.Document {
	handlers := AssignHandlers(idx)

	doc := simmodel.NewDocument()
	doc.Model.EntityRelationships = ExtractRelationships(idx, handlers)
	doc.Model.Resources = CollectResources(idx)
	doc.Model.Activities = LowerActivities(idx, handlers)
	doc.Model.Connections = ClassifyConnections(idx)
	return doc
}
