package compiler

import (
	"github.com/simforge/simforge/internal/diagram"
	"github.com/simforge/simforge/internal/simmodel"
)

// AssignHandlers maps activity node ids to the name of the generator that
// drives them. Assignment runs as two explicit passes so the precedence
// stays auditable:
//
//  1. every generator, in authoring order, claims the activities one
//     non-dependency hop away;
//  2. every generator, in authoring order, claims the still-unassigned
//     activities in its reachability set.
//
// The first writer always wins, so a direct edge beats any transitive
// claim and earlier generators beat later ones. Activities no generator
// reaches are absent from the map.
func AssignHandlers(idx *diagram.Index) map[string]string {
	handlers := make(map[string]string)
	generators := idx.Generators()

	for _, gen := range generators {
		for _, e := range idx.Outgoing(gen.ID) {
			if e.Data.IsDependency {
				continue
			}
			if !idx.IsType(e.Target, diagram.NodeActivity) {
				continue
			}
			if _, claimed := handlers[e.Target]; claimed {
				continue
			}
			handlers[e.Target] = gen.Name
		}
	}

	for _, gen := range generators {
		reach := Reachable(idx, gen.ID)
		for _, act := range idx.Activities() {
			if _, claimed := handlers[act.ID]; claimed {
				continue
			}
			if reach[act.ID] {
				handlers[act.ID] = gen.Name
			}
		}
	}

	return handlers
}

// handlerFor resolves an activity id through the assignment map, falling
// back to the Unknown sentinel.
func handlerFor(handlers map[string]string, activityID string) string {
	if h, ok := handlers[activityID]; ok {
		return h
	}
	return simmodel.UnknownHandler
}

// activeHandlers returns the names resolved as some activity's handler, as
// a membership set plus a first-resolved ordering. Names never assigned
// anywhere (including the Unknown sentinel) are not active; rules use the
// set to tell real simulation entities from incidental labels. The ordered
// slice makes tie-breaking in name matching deterministic.
func activeHandlers(idx *diagram.Index, handlers map[string]string) (map[string]bool, []string) {
	active := make(map[string]bool)
	var ordered []string
	for _, act := range idx.Activities() {
		h, ok := handlers[act.ID]
		if !ok || active[h] {
			continue
		}
		active[h] = true
		ordered = append(ordered, h)
	}
	return active, ordered
}
