package review

import "time"

// RunStatus represents the state of a compile run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// StageKind identifies a pipeline stage.
type StageKind string

const (
	StageIngest  StageKind = "ingest"
	StageLower   StageKind = "lower"
	StageAudit   StageKind = "audit"
	StageGate    StageKind = "gate"
	StagePersist StageKind = "persist"
	StageIndex   StageKind = "index"
)

// CompileRun represents a single end-to-end diagram compile.
type CompileRun struct {
	ID              string        `json:"id"`
	Source          string        `json:"source"`
	Format          string        `json:"format"`
	Status          RunStatus     `json:"status"`
	Stages          []StageUpdate `json:"stages"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	Error           string        `json:"error,omitempty"`
	SessionID       string        `json:"session_id,omitempty"`
	Nodes           int           `json:"nodes"`
	Edges           int           `json:"edges"`
	Activities      int           `json:"activities"`
	Connections     int           `json:"connections"`
	UnknownHandlers int           `json:"unknown_handlers"`
	GateStatus      string        `json:"gate_status,omitempty"`
	Warnings        int           `json:"warnings"`
}

// StageUpdate represents a single pipeline stage execution.
type StageUpdate struct {
	Stage       StageKind     `json:"stage"`
	Status      RunStatus     `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration_ms"`
	Error       string        `json:"error,omitempty"`
	Counts      StageCounts   `json:"counts"`
}

// StageCounts holds per-stage item counts.
type StageCounts struct {
	InputItems   int `json:"input_items"`
	OutputItems  int `json:"output_items"`
	SkippedItems int `json:"skipped_items"`
	StoreCalls   int `json:"store_calls"`
	Warnings     int `json:"warnings"`
}

// ReviewStats holds aggregate statistics over the retained runs.
type ReviewStats struct {
	TotalRuns            int     `json:"total_runs"`
	ActiveRuns           int     `json:"active_runs"`
	CompletedRuns        int     `json:"completed_runs"`
	FailedRuns           int     `json:"failed_runs"`
	TotalActivities      int     `json:"total_activities"`
	TotalUnknownHandlers int     `json:"total_unknown_handlers"`
	AvgDuration          float64 `json:"avg_duration_seconds"`
	SuccessRate          float64 `json:"success_rate"`
}

// Event represents a real-time review event.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	RunID     string      `json:"run_id,omitempty"`
	Stage     StageKind   `json:"stage,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// LogEntry represents a log line for a compile run.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage,omitempty"`
}
