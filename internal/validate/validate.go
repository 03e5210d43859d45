// Package validate checks decoded diagrams at the ingest boundary. Only
// input that is not graph-shaped at all is rejected outright; per-item
// anomalies become findings that compilation skips over, so one broken node
// never blocks the rest of a diagram.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/simforge/simforge/internal/diagram"
)

var structCheck = validator.New()

// ErrNoDiagram reports input with no graph in it at all.
var ErrNoDiagram = errors.New("validate: input carries no diagram")

// Kind labels one class of per-item finding.
type Kind string

const (
	KindBadNode           Kind = "bad_node"
	KindUnknownNodeType   Kind = "unknown_node_type"
	KindDuplicateNode     Kind = "duplicate_node"
	KindBadEdge           Kind = "bad_edge"
	KindDanglingEdge      Kind = "dangling_edge"
	KindUnparsedCondition Kind = "unparsed_condition"
)

// Finding is one recoverable anomaly tied to a node or edge.
type Finding struct {
	Kind   Kind   `json:"kind"`
	Ref    string `json:"ref"`
	Detail string `json:"detail"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s %s: %s", f.Kind, f.Ref, f.Detail)
}

// Envelope rejects input that is not an export envelope. An empty canvas
// still exports node and edge lists, so a graph with neither present means
// the payload was something else entirely.
func Envelope(env *diagram.Envelope) error {
	if env == nil {
		return ErrNoDiagram
	}
	if env.JSON.Nodes == nil && env.JSON.Edges == nil {
		return ErrNoDiagram
	}
	return nil
}

// Graph reports the per-item anomalies in a decoded diagram. The returned
// findings mirror exactly what compilation will skip: malformed or
// duplicate nodes, unresolvable or malformed edges, and condition text that
// parses to no predicate.
func Graph(g *diagram.Graph) []Finding {
	if g == nil {
		return nil
	}

	var findings []Finding
	ids := make(map[string]bool)

	for i := range g.Nodes {
		n := &g.Nodes[i]
		if err := structCheck.Struct(n); err != nil {
			findings = append(findings, Finding{
				Kind:   KindBadNode,
				Ref:    itemRef("nodes", i, n.ID),
				Detail: fieldErrors(err),
			})
			continue
		}
		if ids[n.ID] {
			findings = append(findings, Finding{
				Kind:   KindDuplicateNode,
				Ref:    n.ID,
				Detail: "node id appears more than once, keeping the first",
			})
			continue
		}
		ids[n.ID] = true
		if !diagram.KnownType(n.Type) {
			findings = append(findings, Finding{
				Kind:   KindUnknownNodeType,
				Ref:    n.ID,
				Detail: fmt.Sprintf("type %q takes no part in compilation", n.Type),
			})
		}
	}

	for i := range g.Edges {
		e := &g.Edges[i]
		if err := structCheck.Struct(e); err != nil {
			findings = append(findings, Finding{
				Kind:   KindBadEdge,
				Ref:    itemRef("edges", i, e.ID),
				Detail: fieldErrors(err),
			})
			continue
		}
		if !ids[e.Source] || !ids[e.Target] {
			findings = append(findings, Finding{
				Kind:   KindDanglingEdge,
				Ref:    e.ID,
				Detail: fmt.Sprintf("endpoint %s -> %s does not resolve", e.Source, e.Target),
			})
			continue
		}
		if c := e.Data.Condition; c != "" && c != diagram.Unconditional && !strings.Contains(c, "=") {
			findings = append(findings, Finding{
				Kind:   KindUnparsedCondition,
				Ref:    e.ID,
				Detail: fmt.Sprintf("condition %q has no attribute=value shape", c),
			})
		}
	}

	return findings
}

// Count buckets findings by kind for audit reporting.
func Count(findings []Finding) map[Kind]int {
	counts := make(map[Kind]int)
	for _, f := range findings {
		counts[f.Kind]++
	}
	return counts
}

// itemRef names an item by id when it has one, by list position otherwise.
func itemRef(list string, i int, id string) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("%s[%d]", list, i)
}

// fieldErrors flattens validator output into one line per failed field.
func fieldErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
