package migration

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	cacheFileName = ".simforge-cache.json"
	cacheVersion  = "1.0.0"
)

// IncrementalConfig configures the incremental batch runner.
type IncrementalConfig struct {
	OutputDir string // directory for state, cache and converted models
	InputDir  string // directory diagrams were collected from
	ForceAll  bool   // re-convert every diagram
	DryRun    bool   // only report what would change
}

// IncrementalResult captures the result of an incremental analysis.
type IncrementalResult struct {
	TotalFiles     int           `json:"total_files"`
	ChangedFiles   []string      `json:"changed_files"`
	UnchangedFiles []string      `json:"unchanged_files"`
	NewFiles       []string      `json:"new_files"`
	DeletedFiles   []string      `json:"deleted_files"`
	Skipped        int           `json:"skipped"`
	Duration       time.Duration `json:"duration"`
	IsFirstRun     bool          `json:"is_first_run"`
	ForcedFull     bool          `json:"forced_full"`
}

// IncrementalRunner decides which diagrams need re-conversion based on
// content fingerprints from the previous run.
type IncrementalRunner struct {
	config *IncrementalConfig
	logger *slog.Logger
}

func NewIncrementalRunner(cfg *IncrementalConfig) *IncrementalRunner {
	return &IncrementalRunner{
		config: cfg,
		logger: slog.Default(),
	}
}

// Analyze classifies files into changed, new, unchanged and deleted
// against the stored batch state.
func (r *IncrementalRunner) Analyze(files []DiagramFile) (*IncrementalResult, error) {
	start := time.Now()
	result := &IncrementalResult{TotalFiles: len(files)}

	prevState, err := LoadState(r.config.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	result.IsFirstRun = prevState == nil

	if r.config.ForceAll {
		result.ForcedFull = true
		for _, f := range files {
			result.ChangedFiles = append(result.ChangedFiles, f.Path)
		}
		sort.Strings(result.ChangedFiles)
		result.Duration = time.Since(start)
		return result, nil
	}

	r.classify(files, prevState, result)
	result.Duration = time.Since(start)

	r.logger.Info("incremental analysis complete",
		"total", result.TotalFiles,
		"changed", len(result.ChangedFiles),
		"new", len(result.NewFiles),
		"unchanged", len(result.UnchangedFiles),
		"deleted", len(result.DeletedFiles),
		"first_run", result.IsFirstRun,
	)
	return result, nil
}

func (r *IncrementalRunner) classify(files []DiagramFile, prevState *BatchState, result *IncrementalResult) {
	changedSet := make(map[string]bool)
	for _, p := range ChangedFiles(ComputeFingerprints(files), prevState) {
		changedSet[p] = true
	}

	currentPaths := make(map[string]bool, len(files))
	for _, f := range files {
		currentPaths[f.Path] = true
		switch {
		case result.IsFirstRun:
			result.NewFiles = append(result.NewFiles, f.Path)
		case changedSet[f.Path]:
			// A changed path that the previous state never saw is new.
			if _, existed := prevState.Fingerprints[f.Path]; existed {
				result.ChangedFiles = append(result.ChangedFiles, f.Path)
			} else {
				result.NewFiles = append(result.NewFiles, f.Path)
			}
		default:
			result.UnchangedFiles = append(result.UnchangedFiles, f.Path)
			result.Skipped++
		}
	}

	if prevState != nil {
		for path := range prevState.Fingerprints {
			if !currentPaths[path] {
				result.DeletedFiles = append(result.DeletedFiles, path)
			}
		}
	}

	sort.Strings(result.ChangedFiles)
	sort.Strings(result.UnchangedFiles)
	sort.Strings(result.NewFiles)
	sort.Strings(result.DeletedFiles)
}

// FilesToConvert returns the sorted union of changed and new diagrams.
func (r *IncrementalRunner) FilesToConvert(result *IncrementalResult) []string {
	all := make([]string, 0, len(result.ChangedFiles)+len(result.NewFiles))
	all = append(all, result.ChangedFiles...)
	all = append(all, result.NewFiles...)
	sort.Strings(all)
	return all
}

// FilterFiles keeps only the diagrams that need conversion.
func (r *IncrementalRunner) FilterFiles(files []DiagramFile, result *IncrementalResult) []DiagramFile {
	needed := make(map[string]bool)
	for _, p := range r.FilesToConvert(result) {
		needed[p] = true
	}

	filtered := make([]DiagramFile, 0, len(needed))
	for _, f := range files {
		if needed[f.Path] {
			filtered = append(filtered, f)
		}
	}
	return filtered
}

// SaveState records the current fingerprints as the new baseline.
func (r *IncrementalRunner) SaveState(files []DiagramFile) error {
	state := NewBatchState(r.config.InputDir)
	state.Fingerprints = ComputeFingerprints(files)
	return state.Save(r.config.OutputDir)
}

// ResultCache stores previously compiled model outputs for reuse.
type ResultCache struct {
	Version   string                 `json:"version"`
	Entries   map[string]*CacheEntry `json:"entries"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// CacheEntry is one diagram's cached conversion result.
type CacheEntry struct {
	SourcePath      string    `json:"source_path"`
	ContentHash     string    `json:"content_hash"`
	OutputPath      string    `json:"output_path"`
	ConvertedAt     time.Time `json:"converted_at"`
	Activities      int       `json:"activities"`
	Connections     int       `json:"connections"`
	UnknownHandlers int       `json:"unknown_handlers"`
	GateStatus      string    `json:"gate_status,omitempty"`
	Success         bool      `json:"success"`
}

// LoadCache reads the result cache from outputDir. A missing cache file
// yields a fresh empty cache.
func LoadCache(outputDir string) (*ResultCache, error) {
	data, err := os.ReadFile(filepath.Join(outputDir, cacheFileName))
	if os.IsNotExist(err) {
		now := time.Now()
		return &ResultCache{
			Version:   cacheVersion,
			Entries:   make(map[string]*CacheEntry),
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	var cache ResultCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

// Save writes the cache into outputDir.
func (c *ResultCache) Save(outputDir string) error {
	c.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, cacheFileName), data, 0o644)
}

// Get returns the cached entry for path, but only while the content hash
// still matches.
func (c *ResultCache) Get(path, contentHash string) (*CacheEntry, bool) {
	entry, ok := c.Entries[path]
	if !ok || entry.ContentHash != contentHash {
		return nil, false
	}
	return entry, true
}

// Put stores a conversion result keyed by its source path.
func (c *ResultCache) Put(entry *CacheEntry) {
	c.Entries[entry.SourcePath] = entry
}

// Remove deletes a cache entry.
func (c *ResultCache) Remove(path string) {
	delete(c.Entries, path)
}

// Prune drops entries for diagrams that no longer exist and returns how
// many were removed.
func (c *ResultCache) Prune(currentFiles map[string]bool) int {
	pruned := 0
	for path := range c.Entries {
		if !currentFiles[path] {
			delete(c.Entries, path)
			pruned++
		}
	}
	return pruned
}

// CacheStats summarizes the cache contents.
type CacheStats struct {
	TotalEntries    int `json:"total_entries"`
	SuccessEntries  int `json:"success_entries"`
	FailedEntries   int `json:"failed_entries"`
	TotalActivities int `json:"total_activities"`
}

// Stats tallies the cache.
func (c *ResultCache) Stats() CacheStats {
	stats := CacheStats{TotalEntries: len(c.Entries)}
	for _, e := range c.Entries {
		if e.Success {
			stats.SuccessEntries++
		} else {
			stats.FailedEntries++
		}
		stats.TotalActivities += e.Activities
	}
	return stats
}

// FormatIncrementalReport renders the analysis report box for terminal
// output.
func FormatIncrementalReport(result *IncrementalResult) string {
	var b strings.Builder
	b.WriteString("╔══════════════════════════════════════════╗\n")
	b.WriteString("║     Incremental Conversion Report        ║\n")
	b.WriteString("╠══════════════════════════════════════════╣\n")

	switch {
	case result.IsFirstRun:
		b.WriteString("║ Mode: First Run (full conversion)        \n")
	case result.ForcedFull:
		b.WriteString("║ Mode: Forced Full Re-conversion          \n")
	default:
		b.WriteString("║ Mode: Incremental                        \n")
	}

	fmt.Fprintf(&b, "║ Total Diagrams:  %d\n", result.TotalFiles)
	fmt.Fprintf(&b, "║ Changed:         %d\n", len(result.ChangedFiles))
	fmt.Fprintf(&b, "║ New:             %d\n", len(result.NewFiles))
	fmt.Fprintf(&b, "║ Unchanged:       %d (skipped)\n", len(result.UnchangedFiles))
	fmt.Fprintf(&b, "║ Deleted:         %d\n", len(result.DeletedFiles))
	fmt.Fprintf(&b, "║ Analysis Time:   %s\n", result.Duration.Round(time.Millisecond))

	if result.TotalFiles > 0 {
		skipRate := float64(result.Skipped) / float64(result.TotalFiles) * 100
		fmt.Fprintf(&b, "║ Skip Rate:       %.1f%%\n", skipRate)
	}
	fmt.Fprintf(&b, "║ To Convert:      %d\n", len(result.ChangedFiles)+len(result.NewFiles))

	section := func(title, marker string, paths []string) {
		if len(paths) == 0 {
			return
		}
		b.WriteString("╠══════════════════════════════════════════╣\n")
		fmt.Fprintf(&b, "║ %s\n", title)
		for _, f := range paths {
			fmt.Fprintf(&b, "║   %s %s\n", marker, f)
		}
	}
	section("Changed Diagrams:", "~", result.ChangedFiles)
	section("New Diagrams:", "+", result.NewFiles)
	section("Deleted Diagrams:", "-", result.DeletedFiles)

	b.WriteString("╚══════════════════════════════════════════╝\n")
	return b.String()
}
