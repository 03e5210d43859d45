package session

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/simforge/simforge/internal/simmodel"
)

// DiffType indicates the kind of change.
type DiffType string

const (
	DiffAdded    DiffType = "added"
	DiffRemoved  DiffType = "removed"
	DiffModified DiffType = "modified"
)

// ModelDiff represents the differences between two compiled models.
type ModelDiff struct {
	OldID                string                        `json:"old_id,omitempty"`
	NewID                string                        `json:"new_id,omitempty"`
	OldTag               string                        `json:"old_tag,omitempty"`
	NewTag               string                        `json:"new_tag,omitempty"`
	Activities           []ActivityDiff                `json:"activities"`
	ConnectionDeltas     map[string]int                `json:"connection_deltas,omitempty"`
	RelationshipsAdded   []simmodel.EntityRelationship `json:"relationships_added,omitempty"`
	RelationshipsRemoved []simmodel.EntityRelationship `json:"relationships_removed,omitempty"`
	ResourcesAdded       []string                      `json:"resources_added,omitempty"`
	ResourcesRemoved     []string                      `json:"resources_removed,omitempty"`
	Hunks                []DiffHunk                    `json:"hunks,omitempty"`
	Summary              DiffSummary                   `json:"summary"`
}

// ActivityDiff represents a change to a single activity record.
type ActivityDiff struct {
	ID                  string   `json:"id"`
	Type                DiffType `json:"type"`
	OldHandler          string   `json:"old_handler,omitempty"`
	NewHandler          string   `json:"new_handler,omitempty"`
	HandlerChanged      bool     `json:"handler_changed,omitempty"`
	InitialChanged      bool     `json:"initial_changed,omitempty"`
	ConditionsChanged   bool     `json:"conditions_changed,omitempty"`
	RequirementsChanged bool     `json:"requirements_changed,omitempty"`
}

// DiffHunk represents a contiguous block of changes in the rendered model.
type DiffHunk struct {
	OldStart int        `json:"old_start"`
	OldCount int        `json:"old_count"`
	NewStart int        `json:"new_start"`
	NewCount int        `json:"new_count"`
	Lines    []DiffLine `json:"lines"`
}

// DiffLine is a single line in a diff hunk.
type DiffLine struct {
	Type    string `json:"type"` // "context", "add", "remove"
	Content string `json:"content"`
	OldNum  int    `json:"old_num,omitempty"`
	NewNum  int    `json:"new_num,omitempty"`
}

// DiffSummary provides aggregate stats about the diff.
type DiffSummary struct {
	ActivitiesAdded    int  `json:"activities_added"`
	ActivitiesRemoved  int  `json:"activities_removed"`
	ActivitiesModified int  `json:"activities_modified"`
	Rehandled          int  `json:"rehandled"`
	LinesAdded         int  `json:"lines_added"`
	LinesRemoved       int  `json:"lines_removed"`
	Identical          bool `json:"identical"`
}

// DiffDocuments computes the differences between two compiled documents:
// per-activity changes, connection count deltas, relationship and resource
// set changes, and a line diff of the rendered model.
func DiffDocuments(old, new *simmodel.Document) *ModelDiff {
	d := &ModelDiff{}

	d.Activities = diffActivities(old.Model.Activities, new.Model.Activities)
	d.ConnectionDeltas = diffConnections(&old.Model, &new.Model)
	d.RelationshipsAdded, d.RelationshipsRemoved = diffRelationships(
		old.Model.EntityRelationships, new.Model.EntityRelationships)
	d.ResourcesAdded, d.ResourcesRemoved = diffResources(
		old.Model.Resources, new.Model.Resources)

	oldText, _ := old.Pretty()
	newText, _ := new.Pretty()
	d.Hunks = computeHunks(string(oldText), string(newText))

	d.Summary = computeSummary(d)

	return d
}

// DiffSessions loads the model artifacts of two stored sessions and diffs
// them.
func DiffSessions(store *Store, old, new *Session) (*ModelDiff, error) {
	oldDoc, err := loadModel(store, old)
	if err != nil {
		return nil, fmt.Errorf("load old model: %w", err)
	}
	newDoc, err := loadModel(store, new)
	if err != nil {
		return nil, fmt.Errorf("load new model: %w", err)
	}

	d := DiffDocuments(oldDoc, newDoc)
	d.OldID = old.ID
	d.NewID = new.ID
	d.OldTag = old.Tag
	d.NewTag = new.Tag

	return d, nil
}

func loadModel(store *Store, sess *Session) (*simmodel.Document, error) {
	data, err := store.LoadArtifact(sess, ArtifactModel)
	if err != nil {
		return nil, err
	}
	var doc simmodel.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal model: %w", err)
	}
	return &doc, nil
}

func diffActivities(oldActs, newActs []simmodel.Activity) []ActivityDiff {
	oldMap := make(map[string]simmodel.Activity, len(oldActs))
	for _, a := range oldActs {
		oldMap[a.ID] = a
	}
	newMap := make(map[string]simmodel.Activity, len(newActs))
	for _, a := range newActs {
		newMap[a.ID] = a
	}

	var diffs []ActivityDiff

	for id, oldAct := range oldMap {
		newAct, ok := newMap[id]
		if !ok {
			diffs = append(diffs, ActivityDiff{
				ID:         id,
				Type:       DiffRemoved,
				OldHandler: oldAct.HandlerType,
			})
			continue
		}

		ad := ActivityDiff{ID: id, Type: DiffModified}
		if oldAct.HandlerType != newAct.HandlerType {
			ad.HandlerChanged = true
			ad.OldHandler = oldAct.HandlerType
			ad.NewHandler = newAct.HandlerType
		}
		if oldAct.Attributes.Initial != newAct.Attributes.Initial {
			ad.InitialChanged = true
		}
		if !jsonEqual(oldAct.Conditions, newAct.Conditions) {
			ad.ConditionsChanged = true
		}
		if !jsonEqual(oldAct.Requirements, newAct.Requirements) {
			ad.RequirementsChanged = true
		}

		if ad.HandlerChanged || ad.InitialChanged || ad.ConditionsChanged || ad.RequirementsChanged {
			diffs = append(diffs, ad)
		}
	}

	for id, newAct := range newMap {
		if _, ok := oldMap[id]; !ok {
			diffs = append(diffs, ActivityDiff{
				ID:         id,
				Type:       DiffAdded,
				NewHandler: newAct.HandlerType,
			})
		}
	}

	sort.Slice(diffs, func(i, j int) bool {
		return diffs[i].ID < diffs[j].ID
	})

	return diffs
}

func diffConnections(old, new *simmodel.Model) map[string]int {
	deltas := make(map[string]int)
	for t, n := range new.ConnectionCounts() {
		deltas[string(t)] += n
	}
	for t, n := range old.ConnectionCounts() {
		deltas[string(t)] -= n
	}
	for t, n := range deltas {
		if n == 0 {
			delete(deltas, t)
		}
	}
	if len(deltas) == 0 {
		return nil
	}
	return deltas
}

func diffRelationships(old, new []simmodel.EntityRelationship) (added, removed []simmodel.EntityRelationship) {
	key := func(r simmodel.EntityRelationship) string {
		return r.Owner + "\x00" + r.Component
	}
	oldSet := make(map[string]bool, len(old))
	for _, r := range old {
		oldSet[key(r)] = true
	}
	newSet := make(map[string]bool, len(new))
	for _, r := range new {
		newSet[key(r)] = true
	}
	for _, r := range new {
		if !oldSet[key(r)] {
			added = append(added, r)
		}
	}
	for _, r := range old {
		if !newSet[key(r)] {
			removed = append(removed, r)
		}
	}
	return added, removed
}

func diffResources(old, new []simmodel.Resource) (added, removed []string) {
	oldSet := make(map[string]bool, len(old))
	for _, r := range old {
		oldSet[r.Type] = true
	}
	newSet := make(map[string]bool, len(new))
	for _, r := range new {
		newSet[r.Type] = true
	}
	for _, r := range new {
		if !oldSet[r.Type] {
			added = append(added, r.Type)
		}
	}
	for _, r := range old {
		if !newSet[r.Type] {
			removed = append(removed, r.Type)
		}
	}
	return added, removed
}

func jsonEqual(a, b any) bool {
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	return string(aj) == string(bj)
}

// computeHunks produces grouped diff hunks between two rendered models.
func computeHunks(oldText, newText string) []DiffHunk {
	if oldText == newText {
		return nil
	}

	oldLines := strings.Split(oldText, "\n")
	newLines := strings.Split(newText, "\n")

	// Use LCS-based diff
	lcs := longestCommonSubsequence(oldLines, newLines)
	rawDiff := buildRawDiff(oldLines, newLines, lcs)

	// Group into hunks with context
	return groupIntoHunks(rawDiff, 3)
}

type rawDiffLine struct {
	typ     string // "context", "add", "remove"
	content string
	oldNum  int
	newNum  int
}

func longestCommonSubsequence(a, b []string) [][]int {
	m, n := len(a), len(b)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else if dp[i-1][j] > dp[i][j-1] {
				dp[i][j] = dp[i-1][j]
			} else {
				dp[i][j] = dp[i][j-1]
			}
		}
	}
	return dp
}

func buildRawDiff(oldLines, newLines []string, dp [][]int) []rawDiffLine {
	var result []rawDiffLine
	i, j := len(oldLines), len(newLines)

	for i > 0 || j > 0 {
		if i > 0 && j > 0 && oldLines[i-1] == newLines[j-1] {
			result = append(result, rawDiffLine{
				typ: "context", content: oldLines[i-1],
				oldNum: i, newNum: j,
			})
			i--
			j--
		} else if j > 0 && (i == 0 || dp[i][j-1] >= dp[i-1][j]) {
			result = append(result, rawDiffLine{
				typ: "add", content: newLines[j-1],
				newNum: j,
			})
			j--
		} else {
			result = append(result, rawDiffLine{
				typ: "remove", content: oldLines[i-1],
				oldNum: i,
			})
			i--
		}
	}

	// Reverse (we built it backwards)
	for left, right := 0, len(result)-1; left < right; left, right = left+1, right-1 {
		result[left], result[right] = result[right], result[left]
	}

	return result
}

func groupIntoHunks(rawDiff []rawDiffLine, contextLines int) []DiffHunk {
	if len(rawDiff) == 0 {
		return nil
	}

	// Find change regions
	type region struct{ start, end int }
	var regions []region

	for i, line := range rawDiff {
		if line.typ != "context" {
			if len(regions) == 0 || i > regions[len(regions)-1].end+contextLines*2 {
				regions = append(regions, region{start: i, end: i})
			} else {
				regions[len(regions)-1].end = i
			}
		}
	}

	var hunks []DiffHunk
	for _, r := range regions {
		start := r.start - contextLines
		if start < 0 {
			start = 0
		}
		end := r.end + contextLines + 1
		if end > len(rawDiff) {
			end = len(rawDiff)
		}

		hunk := DiffHunk{}
		for k := start; k < end; k++ {
			line := rawDiff[k]
			dl := DiffLine{
				Type:    line.typ,
				Content: line.content,
				OldNum:  line.oldNum,
				NewNum:  line.newNum,
			}
			hunk.Lines = append(hunk.Lines, dl)
		}

		if len(hunk.Lines) > 0 {
			// Set hunk ranges
			for _, l := range hunk.Lines {
				if l.OldNum > 0 {
					if hunk.OldStart == 0 || l.OldNum < hunk.OldStart {
						hunk.OldStart = l.OldNum
					}
					hunk.OldCount++
				}
				if l.NewNum > 0 {
					if hunk.NewStart == 0 || l.NewNum < hunk.NewStart {
						hunk.NewStart = l.NewNum
					}
					hunk.NewCount++
				}
			}
			hunks = append(hunks, hunk)
		}
	}

	return hunks
}

func computeSummary(d *ModelDiff) DiffSummary {
	s := DiffSummary{}
	for _, ad := range d.Activities {
		switch ad.Type {
		case DiffAdded:
			s.ActivitiesAdded++
		case DiffRemoved:
			s.ActivitiesRemoved++
		case DiffModified:
			s.ActivitiesModified++
		}
		if ad.HandlerChanged {
			s.Rehandled++
		}
	}
	for _, h := range d.Hunks {
		for _, l := range h.Lines {
			switch l.Type {
			case "add":
				s.LinesAdded++
			case "remove":
				s.LinesRemoved++
			}
		}
	}
	s.Identical = len(d.Activities) == 0 && len(d.ConnectionDeltas) == 0 &&
		len(d.RelationshipsAdded) == 0 && len(d.RelationshipsRemoved) == 0 &&
		len(d.ResourcesAdded) == 0 && len(d.ResourcesRemoved) == 0 &&
		len(d.Hunks) == 0
	return s
}

// FormatDiff returns a human-readable string representation of the diff.
func FormatDiff(d *ModelDiff) string {
	var sb strings.Builder

	if d.OldID != "" || d.NewID != "" {
		sb.WriteString(fmt.Sprintf("Diff: %s -> %s\n", d.OldID, d.NewID))
	}
	if d.OldTag != "" || d.NewTag != "" {
		sb.WriteString(fmt.Sprintf("Tags: %s -> %s\n", d.OldTag, d.NewTag))
	}

	if d.Summary.Identical {
		sb.WriteString("Models are identical\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("Activities: +%d -%d ~%d (%d rehandled)\n",
		d.Summary.ActivitiesAdded, d.Summary.ActivitiesRemoved,
		d.Summary.ActivitiesModified, d.Summary.Rehandled))
	sb.WriteString(fmt.Sprintf("Lines: +%d -%d\n\n",
		d.Summary.LinesAdded, d.Summary.LinesRemoved))

	for _, ad := range d.Activities {
		icon := "~"
		switch ad.Type {
		case DiffAdded:
			icon = "+"
		case DiffRemoved:
			icon = "-"
		}
		sb.WriteString(fmt.Sprintf("  %s %s", icon, ad.ID))
		if ad.HandlerChanged {
			sb.WriteString(fmt.Sprintf(" [handler %s -> %s]", ad.OldHandler, ad.NewHandler))
		}
		if ad.InitialChanged {
			sb.WriteString(" [initial flag]")
		}
		if ad.ConditionsChanged {
			sb.WriteString(" [conditions]")
		}
		if ad.RequirementsChanged {
			sb.WriteString(" [requirements]")
		}
		sb.WriteString("\n")
	}

	if len(d.ConnectionDeltas) > 0 {
		sb.WriteString("\nConnections:\n")
		types := make([]string, 0, len(d.ConnectionDeltas))
		for t := range d.ConnectionDeltas {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			sb.WriteString(fmt.Sprintf("  %s: %+d\n", t, d.ConnectionDeltas[t]))
		}
	}

	if len(d.RelationshipsAdded) > 0 || len(d.RelationshipsRemoved) > 0 {
		sb.WriteString("\nRelationships:\n")
		for _, r := range d.RelationshipsAdded {
			sb.WriteString(fmt.Sprintf("  + %s -> %s\n", r.Owner, r.Component))
		}
		for _, r := range d.RelationshipsRemoved {
			sb.WriteString(fmt.Sprintf("  - %s -> %s\n", r.Owner, r.Component))
		}
	}

	if len(d.ResourcesAdded) > 0 || len(d.ResourcesRemoved) > 0 {
		sb.WriteString("\nResources:\n")
		for _, r := range d.ResourcesAdded {
			sb.WriteString(fmt.Sprintf("  + %s\n", r))
		}
		for _, r := range d.ResourcesRemoved {
			sb.WriteString(fmt.Sprintf("  - %s\n", r))
		}
	}

	return sb.String()
}
