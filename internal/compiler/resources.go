package compiler

import (
	"github.com/simforge/simforge/internal/diagram"
	"github.com/simforge/simforge/internal/simmodel"
)

// CollectResources gathers the distinct resource-type names declared across
// all activity nodes, in first-seen order. Quantity stays 0; real inventory
// levels are a simulator-side concern.
func CollectResources(idx *diagram.Index) []simmodel.Resource {
	resources := []simmodel.Resource{}
	seen := make(map[string]bool)

	for _, act := range idx.Activities() {
		for _, name := range act.Data.Resources {
			if seen[name] {
				continue
			}
			seen[name] = true
			resources = append(resources, simmodel.Resource{
				Type:     name,
				Group:    name,
				Quantity: 0,
			})
		}
	}

	return resources
}
