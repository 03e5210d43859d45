package regress

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// CaseResult is the outcome of replaying one fixture.
type CaseResult struct {
	Name     string        `json:"name"`
	Pass     bool          `json:"pass"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration_ms"`
}

// CompareModel checks an actual compiled model against the expected one
// after normalization. On mismatch the reason points at the first differing
// path.
func CompareModel(name string, expected, actual json.RawMessage, rules *NormalizeRules) CaseResult {
	want, err := normalizeDocument(expected, rules)
	if err != nil {
		return CaseResult{Name: name, Pass: false, Reason: "expected model invalid: " + err.Error()}
	}
	got, err := normalizeDocument(actual, rules)
	if err != nil {
		return CaseResult{Name: name, Pass: false, Reason: "actual model invalid: " + err.Error()}
	}

	if canonicalJSON(want) == canonicalJSON(got) {
		return CaseResult{Name: name, Pass: true}
	}

	reason := firstDifference(want, got, "$")
	if reason == "" {
		reason = "model mismatch"
	}
	return CaseResult{Name: name, Pass: false, Reason: reason}
}

// canonicalJSON renders a generic JSON tree deterministically by sorting
// object keys.
func canonicalJSON(v any) string {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(",")
			}
			kk, _ := json.Marshal(k)
			b.Write(kk)
			b.WriteString(":")
			b.WriteString(canonicalJSON(t[k]))
		}
		b.WriteString("}")
		return b.String()
	case []any:
		var b strings.Builder
		b.WriteString("[")
		for i, it := range t {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(canonicalJSON(it))
		}
		b.WriteString("]")
		return b.String()
	default:
		enc, _ := json.Marshal(t)
		return string(enc)
	}
}

// firstDifference walks both trees and describes the first point where they
// disagree, as a JSONPath-flavored location.
func firstDifference(want, got any, path string) string {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return fmt.Sprintf("%s: expected object, got %s", path, typeName(got))
		}
		keys := make([]string, 0, len(w))
		for k := range w {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			gv, ok := g[k]
			if !ok {
				return fmt.Sprintf("%s.%s: missing in actual", path, k)
			}
			if d := firstDifference(w[k], gv, path+"."+k); d != "" {
				return d
			}
		}
		extras := make([]string, 0)
		for k := range g {
			if _, ok := w[k]; !ok {
				extras = append(extras, k)
			}
		}
		if len(extras) > 0 {
			sort.Strings(extras)
			return fmt.Sprintf("%s.%s: unexpected in actual", path, extras[0])
		}
		return ""
	case []any:
		g, ok := got.([]any)
		if !ok {
			return fmt.Sprintf("%s: expected array, got %s", path, typeName(got))
		}
		if len(w) != len(g) {
			return fmt.Sprintf("%s: length mismatch: expected %d, got %d", path, len(w), len(g))
		}
		for i := range w {
			if d := firstDifference(w[i], g[i], fmt.Sprintf("%s[%d]", path, i)); d != "" {
				return d
			}
		}
		return ""
	default:
		if canonicalJSON(want) != canonicalJSON(got) {
			return fmt.Sprintf("%s: expected %s, got %s", path, canonicalJSON(want), canonicalJSON(got))
		}
		return ""
	}
}

func typeName(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
