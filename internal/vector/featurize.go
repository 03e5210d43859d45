package vector

import (
	"fmt"

	"github.com/simforge/simforge/internal/simmodel"
)

// Dim is the fixed length of model feature vectors.
const Dim = 16

// Featurize maps a compiled model to a fixed-length feature vector. Every
// component lies in [0,1] and depends only on the model, so identical models
// always produce identical vectors and cosine similarity compares model
// structure. Counts are squashed with n/(n+8) so small models still spread
// across the range.
func Featurize(doc *simmodel.Document) []float32 {
	m := &doc.Model
	v := make([]float32, Dim)

	activities := len(m.Activities)
	connections := len(m.Connections)

	v[0] = squash(activities)
	v[1] = squash(countEntities(m))
	v[2] = squash(len(m.Resources))
	v[3] = squash(connections)

	counts := m.ConnectionCounts()
	if connections > 0 {
		v[4] = ratio(counts[simmodel.ConnStartToInflow], connections)
		v[5] = ratio(counts[simmodel.ConnStartToStart], connections)
		v[6] = ratio(counts[simmodel.ConnFinishToFinish], connections)
		v[7] = ratio(counts[simmodel.ConnFlow], connections)
	}

	if activities > 0 {
		v[8] = ratio(m.UnknownHandlerCount(), activities)

		var initial, conditioned, requiring int
		for _, a := range m.Activities {
			if a.Attributes.Initial {
				initial++
			}
			if len(a.Conditions) > 0 {
				conditioned++
			}
			if len(a.Requirements) > 0 {
				requiring++
			}
		}
		v[9] = ratio(initial, activities)
		v[10] = ratio(conditioned, activities)
		v[11] = ratio(requiring, activities)

		v[13] = ratio(maxHandlerLoad(m), activities)
		v[14] = clamp(ratio(connections, activities*activities))
		v[15] = ratio(countSources(m), activities)
	}

	v[12] = squash(len(m.EntityRelationships))

	return v
}

// Summarize renders a one-line description of a model's shape for use as
// search result content.
func Summarize(doc *simmodel.Document) string {
	m := &doc.Model
	return fmt.Sprintf("activities=%d connections=%d entities=%d resources=%d relationships=%d unknown=%d",
		len(m.Activities), len(m.Connections), countEntities(m),
		len(m.Resources), len(m.EntityRelationships), m.UnknownHandlerCount())
}

// countEntities counts the distinct known handlers driving activities.
func countEntities(m *simmodel.Model) int {
	seen := make(map[string]bool)
	for _, a := range m.Activities {
		if a.HandlerType != "" && a.HandlerType != simmodel.UnknownHandler {
			seen[a.HandlerType] = true
		}
	}
	return len(seen)
}

// maxHandlerLoad returns the activity count of the busiest handler.
func maxHandlerLoad(m *simmodel.Model) int {
	loads := make(map[string]int)
	max := 0
	for _, a := range m.Activities {
		loads[a.HandlerType]++
		if loads[a.HandlerType] > max {
			max = loads[a.HandlerType]
		}
	}
	return max
}

// countSources counts the distinct activities that originate connections.
func countSources(m *simmodel.Model) int {
	seen := make(map[string]bool)
	for _, c := range m.Connections {
		seen[c.From] = true
	}
	return len(seen)
}

func squash(n int) float32 {
	return float32(n) / float32(n+8)
}

func ratio(n, total int) float32 {
	if total == 0 {
		return 0
	}
	return float32(n) / float32(total)
}

func clamp(f float32) float32 {
	if f > 1 {
		return 1
	}
	return f
}
