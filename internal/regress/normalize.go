package regress

import (
	"encoding/json"
	"sort"
	"strings"
)

// NormalizeRules defines deterministic normalization applied to both the
// expected and the actual model before comparison.
//
// IgnoreFields drops top-level document fields (e.g. scenario, description)
// so fixtures survive cosmetic edits. SortSlices makes the comparison
// order-insensitive for the four model lists, for fixtures recorded from
// servers that ordered output differently.
type NormalizeRules struct {
	IgnoreFields []string `json:"ignore_fields,omitempty"`
	SortSlices   bool     `json:"sort_slices,omitempty"`
}

func (r *NormalizeRules) ignoreSet() map[string]bool {
	out := make(map[string]bool)
	for _, f := range r.IgnoreFields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		out[f] = true
	}
	return out
}

var modelLists = []string{"entityRelationships", "resources", "activities", "connections"}

// normalizeDocument parses a document and applies rules, returning the
// generic JSON tree ready for canonical comparison.
func normalizeDocument(b json.RawMessage, rules *NormalizeRules) (any, error) {
	var tree any
	if err := json.Unmarshal(b, &tree); err != nil {
		return nil, err
	}
	if rules == nil {
		return tree, nil
	}

	obj, ok := tree.(map[string]any)
	if !ok {
		return tree, nil
	}

	ignore := rules.ignoreSet()
	for k := range obj {
		if ignore[k] {
			delete(obj, k)
		}
	}

	if rules.SortSlices {
		if model, ok := obj["model"].(map[string]any); ok {
			for _, key := range modelLists {
				if list, ok := model[key].([]any); ok {
					sort.Slice(list, func(i, j int) bool {
						return canonicalJSON(list[i]) < canonicalJSON(list[j])
					})
				}
			}
		}
	}

	return obj, nil
}
