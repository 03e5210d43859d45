package compiler

import (
	"strings"

	"github.com/simforge/simforge/internal/diagram"
	"github.com/simforge/simforge/internal/simmodel"
)

// ExtractRelationships derives the deduplicated owner→component pairs
// between simulation entities. Three independent rules contribute, each
// gated on the active-handler set so that names which never drive an
// activity cannot appear as entities:
//
//   - a dependency edge from an activity to a generator makes the
//     activity's handler own that generator;
//   - a non-dependency edge from a generator to an activity whose handler
//     is a different entity makes the generator own that handler;
//   - an activity resource whose normalized name matches an active handler
//     makes the activity's handler own the matched entity.
func ExtractRelationships(idx *diagram.Index, handlers map[string]string) []simmodel.EntityRelationship {
	active, orderedActive := activeHandlers(idx, handlers)

	rels := []simmodel.EntityRelationship{}
	seen := make(map[string]bool)
	emit := func(owner, component string) {
		key := owner + "\x00" + component
		if seen[key] {
			return
		}
		seen[key] = true
		rels = append(rels, simmodel.EntityRelationship{Owner: owner, Component: component})
	}

	for _, e := range idx.Edges() {
		src, _ := idx.Node(e.Source)
		tgt, _ := idx.Node(e.Target)

		if e.Data.IsDependency && src.Type == diagram.NodeActivity && tgt.Type == diagram.NodeGenerator {
			h := handlerFor(handlers, src.ID)
			if h != tgt.Name && active[h] && active[tgt.Name] {
				emit(h, tgt.Name)
			}
		}

		if !e.Data.IsDependency && src.Type == diagram.NodeGenerator && tgt.Type == diagram.NodeActivity {
			h := handlerFor(handlers, tgt.ID)
			if h != src.Name && active[src.Name] && active[h] {
				emit(src.Name, h)
			}
		}
	}

	for _, act := range idx.Activities() {
		h := handlerFor(handlers, act.ID)
		for _, res := range act.Data.Resources {
			match, ok := matchEntityName(res, orderedActive)
			if ok && match != h {
				emit(h, match)
			}
		}
	}

	return rels
}

// matchEntityName finds the first active handler name equal to the resource
// name under normalization. Candidates are checked in first-resolved order
// so the match is stable between runs.
func matchEntityName(resource string, candidates []string) (string, bool) {
	want := NormalizeEntityName(resource)
	for _, c := range candidates {
		if NormalizeEntityName(c) == want {
			return c, true
		}
	}
	return "", false
}

// NormalizeEntityName strips spaces and parentheses so display variants of
// the same entity compare equal, e.g. "RS (BA)" and "RS(BA)". Only these
// characters are stripped; other punctuation still distinguishes names.
func NormalizeEntityName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '(', ')':
			return -1
		}
		return r
	}, name)
}
