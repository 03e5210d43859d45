package compiler

import "github.com/simforge/simforge/internal/diagram"

// Reachable returns the set of activity node ids reachable from the given
// generator by breadth-first traversal of non-dependency edges. Activities
// encountered are collected and traversed through, so chains of activities
// are fully covered; terminators are collected into nothing and their
// outgoing edges are never enqueued. The visited set keeps cycles from
// looping the traversal.
func Reachable(idx *diagram.Index, generatorID string) map[string]bool {
	reached := make(map[string]bool)
	if _, ok := idx.Node(generatorID); !ok {
		return reached
	}

	visited := map[string]bool{generatorID: true}
	queue := []string{generatorID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, e := range idx.Outgoing(current) {
			if e.Data.IsDependency {
				continue
			}
			next, ok := idx.Node(e.Target)
			if !ok || visited[next.ID] {
				continue
			}
			visited[next.ID] = true

			if next.Type == diagram.NodeActivity {
				reached[next.ID] = true
			}
			// Flow stops at terminators; every other node type is passed
			// through so downstream activities are still discovered.
			if next.Type == diagram.NodeTerminator {
				continue
			}
			queue = append(queue, next.ID)
		}
	}

	return reached
}
