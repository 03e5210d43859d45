package compiler

import (
	"strings"

	"github.com/simforge/simforge/internal/diagram"
	"github.com/simforge/simforge/internal/simmodel"
)

// LowerActivities builds one structured activity record per activity node,
// in authoring order. The record id carries the node's display name rather
// than its graph id; the simulation loader addresses activities by name.
func LowerActivities(idx *diagram.Index, handlers map[string]string) []simmodel.Activity {
	activities := []simmodel.Activity{}

	for _, act := range idx.Activities() {
		a := simmodel.Activity{
			ID:           act.Name,
			HandlerType:  handlerFor(handlers, act.ID),
			Conditions:   []simmodel.Condition{},
			Requirements: []simmodel.Requirement{},
			Duration:     simmodel.Duration{},
		}

		for _, e := range idx.Incoming(act.ID) {
			if idx.IsType(e.Source, diagram.NodeGenerator) {
				a.Attributes.Initial = true
			}
			if cond, ok := parseCondition(e.Data.Condition); ok {
				a.Conditions = append(a.Conditions, cond)
			}
		}

		seen := make(map[string]bool)
		for _, res := range act.Data.Resources {
			if seen[res] {
				continue
			}
			seen[res] = true
			a.Requirements = append(a.Requirements, simmodel.Requirement{
				ResourceGroups: []string{res},
				Quantity:       1,
			})
		}

		activities = append(activities, a)
	}

	return activities
}

// parseCondition splits edge condition text on the first '=' into an
// attribute/value pair. Empty text and the unconditional default carry no
// condition, as does text without an '='; parsing never fails hard because
// condition text is free-form user input.
func parseCondition(text string) (simmodel.Condition, bool) {
	if text == "" || text == diagram.Unconditional {
		return simmodel.Condition{}, false
	}

	i := strings.Index(text, "=")
	if i < 0 {
		return simmodel.Condition{}, false
	}

	attr := strings.TrimSpace(text[:i])
	raw := strings.TrimSpace(text[i+1:])

	var value any
	switch raw {
	case "True":
		value = true
	case "False":
		value = false
	default:
		value = raw
	}

	return simmodel.Condition{Attribute: attr, Value: value}, true
}
