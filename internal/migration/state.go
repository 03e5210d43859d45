package migration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	stateVersion  = "1.0.0"
	stateFileName = ".simforge-state.json"
)

// BatchState records the fingerprints of the last successful batch run so
// the next run can skip unchanged diagrams.
type BatchState struct {
	Version  string    `json:"version"`
	LastRun  time.Time `json:"last_run"`
	InputDir string    `json:"input_dir"`
	// Fingerprints maps diagram path to its content hash.
	Fingerprints map[string]string `json:"fingerprints"`
}

// NewBatchState creates an empty state for inputDir.
func NewBatchState(inputDir string) *BatchState {
	return &BatchState{
		Version:      stateVersion,
		LastRun:      time.Now(),
		InputDir:     inputDir,
		Fingerprints: make(map[string]string),
	}
}

// LoadState reads the batch state from outputDir. A missing state file is
// a first run and returns nil, nil.
func LoadState(outputDir string) (*BatchState, error) {
	data, err := os.ReadFile(filepath.Join(outputDir, stateFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state BatchState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Save writes the state into outputDir, stamping the run time.
func (s *BatchState) Save(outputDir string) error {
	s.LastRun = time.Now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, stateFileName), data, 0o644)
}

// ChangedFiles returns the paths whose content hash differs from the
// previous state, sorted. With no previous state every path is changed.
func ChangedFiles(current map[string]string, previousState *BatchState) []string {
	var changed []string
	for path, hash := range current {
		if previousState == nil {
			changed = append(changed, path)
			continue
		}
		if prev, ok := previousState.Fingerprints[path]; !ok || prev != hash {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed
}
