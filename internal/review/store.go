package review

import (
	"sort"
	"sync"
	"time"
)

const (
	maxRuns      = 100
	maxTotalLogs = 10000
)

// Store is the in-memory buffer behind the live review screen. Durable
// history lives in the session store; this only holds what the browser
// needs right now.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*CompileRun
	logs []LogEntry
}

func NewStore() *Store {
	return &Store{
		runs: make(map[string]*CompileRun),
		logs: make([]LogEntry, 0, maxTotalLogs),
	}
}

// CreateRun records a new compile run, evicting the oldest finished runs
// past the cap.
func (s *Store) CreateRun(run *CompileRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	s.evictOldRuns()
}

// GetRun looks up a compile run by ID.
func (s *Store) GetRun(id string) (*CompileRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok
}

// ListRuns returns every run, newest first.
func (s *Store) ListRuns() []*CompileRun {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*CompileRun, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs
}

// UpdateRun applies fn to the run under the write lock. Unknown IDs are
// ignored.
func (s *Store) UpdateRun(id string, fn func(*CompileRun)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		fn(run)
	}
}

// DeleteRun removes a run.
func (s *Store) DeleteRun(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, id)
}

// GetStats aggregates run counts, success rate and average completed-run
// duration in seconds.
func (s *Store) GetStats() *ReviewStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &ReviewStats{TotalRuns: len(s.runs)}
	var totalDuration time.Duration

	for _, run := range s.runs {
		switch run.Status {
		case StatusRunning, StatusPending:
			stats.ActiveRuns++
		case StatusCompleted:
			stats.CompletedRuns++
			if run.CompletedAt != nil {
				totalDuration += run.CompletedAt.Sub(run.StartedAt)
			}
		case StatusFailed:
			stats.FailedRuns++
		}
		stats.TotalActivities += run.Activities
		stats.TotalUnknownHandlers += run.UnknownHandlers
	}

	if stats.CompletedRuns > 0 {
		stats.AvgDuration = totalDuration.Seconds() / float64(stats.CompletedRuns)
	}
	if stats.TotalRuns > 0 {
		stats.SuccessRate = float64(stats.CompletedRuns) / float64(stats.TotalRuns)
	}
	return stats
}

// AddLog appends a log entry, dropping the oldest entries past the cap.
func (s *Store) AddLog(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxTotalLogs {
		s.logs = s.logs[len(s.logs)-maxTotalLogs:]
	}
}

// GetLogs returns up to limit entries for a run, most recent first. A
// limit of zero or less returns all of them.
func (s *Store) GetLogs(runID string, limit int) []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []LogEntry
	for i := len(s.logs) - 1; i >= 0; i-- {
		if s.logs[i].RunID != runID {
			continue
		}
		filtered = append(filtered, s.logs[i])
		if limit > 0 && len(filtered) >= limit {
			break
		}
	}
	return filtered
}

// finishedAt is the eviction timestamp for a run: completion time when
// known, start time otherwise.
func finishedAt(run *CompileRun) time.Time {
	if run.CompletedAt != nil {
		return *run.CompletedAt
	}
	return run.StartedAt
}

// evictOldRuns drops the oldest finished runs until the cap is met.
// Caller holds the write lock. Active runs are never evicted.
func (s *Store) evictOldRuns() {
	excess := len(s.runs) - maxRuns
	if excess <= 0 {
		return
	}

	type candidate struct {
		id string
		at time.Time
	}
	var finished []candidate
	for id, run := range s.runs {
		if run.Status == StatusCompleted || run.Status == StatusFailed {
			finished = append(finished, candidate{id: id, at: finishedAt(run)})
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].at.Before(finished[j].at)
	})

	for i := 0; i < excess && i < len(finished); i++ {
		delete(s.runs, finished[i].id)
	}
}
