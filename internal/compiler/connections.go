package compiler

import (
	"strings"

	"github.com/simforge/simforge/internal/diagram"
	"github.com/simforge/simforge/internal/simmodel"
)

// ClassifyConnections turns the surviving graph edges into typed
// connections between activities, named by display name. Edges touching a
// terminator on either end never classify, and a direct generator→activity
// edge is consumed by the StartToInflow pattern instead of appearing as a
// generic flow.
//
// Classification runs pattern-first: StartToInflow detection walks
// activity→generator edges and follows the generator one non-dependency hop
// to a second activity, deduplicating on the (from,to) name pair. Remaining
// activity→activity edges split on the dependency flag: dependency edges
// become StartToStart when both ends attach on a left handle, FinishToFinish
// when both attach on a right handle, and FinishToFinish otherwise; plain
// edges become Flow.
func ClassifyConnections(idx *diagram.Index) []simmodel.Connection {
	conns := []simmodel.Connection{}
	seenInflow := make(map[string]bool)

	for _, e := range idx.Edges() {
		src, _ := idx.Node(e.Source)
		tgt, _ := idx.Node(e.Target)

		if src.Type == diagram.NodeTerminator || tgt.Type == diagram.NodeTerminator {
			continue
		}

		if src.Type == diagram.NodeActivity && tgt.Type == diagram.NodeGenerator {
			for _, out := range idx.Outgoing(tgt.ID) {
				if out.Data.IsDependency {
					continue
				}
				next, ok := idx.Node(out.Target)
				if !ok || next.Type != diagram.NodeActivity {
					continue
				}
				key := src.Name + "\x00" + next.Name
				if seenInflow[key] {
					continue
				}
				seenInflow[key] = true
				conns = append(conns, simmodel.Connection{
					Type: simmodel.ConnStartToInflow,
					From: src.Name,
					To:   next.Name,
				})
			}
			continue
		}

		if src.Type != diagram.NodeActivity || tgt.Type != diagram.NodeActivity {
			continue
		}

		if e.Data.IsDependency {
			conns = append(conns, simmodel.Connection{
				Type: dependencyType(e),
				From: src.Name,
				To:   tgt.Name,
			})
			continue
		}

		conns = append(conns, simmodel.Connection{
			Type: simmodel.ConnFlow,
			From: src.Name,
			To:   tgt.Name,
		})
	}

	return conns
}

// dependencyType reads the attachment side of both endpoints. Start-to-start
// coupling shows as both ends on the left edge of their nodes, finish-to-
// finish as both on the right; mixed or unlabeled attachments fall back to
// FinishToFinish.
func dependencyType(e *diagram.Edge) simmodel.ConnectionType {
	if sideOf(e.SourceHandle) == "left" && sideOf(e.TargetHandle) == "left" {
		return simmodel.ConnStartToStart
	}
	if sideOf(e.SourceHandle) == "right" && sideOf(e.TargetHandle) == "right" {
		return simmodel.ConnFinishToFinish
	}
	return simmodel.ConnFinishToFinish
}

// sideOf extracts the left/right side from a handle id such as "left",
// "right-2" or "source-right". Handles that name neither side report "".
func sideOf(handle string) string {
	h := strings.ToLower(handle)
	switch {
	case strings.Contains(h, "left"):
		return "left"
	case strings.Contains(h, "right"):
		return "right"
	}
	return ""
}
