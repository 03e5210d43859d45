// Package pipeline defines the staged conversion flow shared by the CLI,
// the HTTP service and the Temporal worker. Each stage consumes and enriches
// a StageContext and reports a StageResult with status and metrics.
package pipeline

import (
	"context"
	"time"

	"github.com/simforge/simforge/internal/diagram"
	"github.com/simforge/simforge/internal/formats"
	"github.com/simforge/simforge/internal/graphstore"
	"github.com/simforge/simforge/internal/qualitygate"
	"github.com/simforge/simforge/internal/session"
	"github.com/simforge/simforge/internal/simmodel"
	"github.com/simforge/simforge/internal/validate"
	"github.com/simforge/simforge/internal/vector"
)

// ResultVersion is the schema version of StageResult.
const ResultVersion = "1.0.0"

// Stage is the interface for all pipeline stages.
type Stage interface {
	// Name returns the stage identifier.
	Name() string
	// Run executes the stage's task.
	Run(ctx context.Context, sc *StageContext) (*StageResult, error)
}

// StageContext provides shared resources to stages. Earlier stages fill in
// fields later stages read: ingest sets Raw, Envelope, Index, Findings,
// Source and Format; lower sets Doc; gate sets GateReport.
type StageContext struct {
	Raw      []byte
	Envelope *diagram.Envelope
	Index    *diagram.Index
	Findings []validate.Finding
	Doc      *simmodel.Document

	Source     string
	Format     string
	GateReport *qualitygate.PipelineResult

	Registry *formats.Registry
	Sessions *session.Store
	GraphDB  graphstore.Repository
	Vectors  *vector.Indexer
	Gates    *qualitygate.Pipeline

	Params map[string]string
}

// StageStatus describes how a stage run ended.
type StageStatus string

const (
	// StatusSuccess means the stage completed all of its work.
	StatusSuccess StageStatus = "success"
	// StatusPartial means the stage completed with recoverable errors.
	StatusPartial StageStatus = "partial"
	// StatusFailed means the stage could not produce output.
	StatusFailed StageStatus = "failed"
	// StatusPassthrough means the stage skipped its work and handed the
	// context through unchanged.
	StatusPassthrough StageStatus = "passthrough"
)

// StageMetrics records timing and item counts for one stage run.
type StageMetrics struct {
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	Duration      time.Duration `json:"duration"`
	InputItems    int           `json:"input_items"`
	OutputItems   int           `json:"output_items"`
	SkippedItems  int           `json:"skipped_items"`
	StoreCalls    int           `json:"store_calls"`
	StoreDuration time.Duration `json:"store_duration"`
}

// StageResult captures stage output.
type StageResult struct {
	Version  string             `json:"version"`
	Status   StageStatus        `json:"status"`
	Doc      *simmodel.Document `json:"-"`
	Score    float64            `json:"score"`
	Errors   []string           `json:"errors"`
	Warnings []string           `json:"warnings"`
	Metrics  *StageMetrics      `json:"metrics"`
	Metadata map[string]string  `json:"metadata"`
}

// NewStageResult returns a result initialized for a run starting now.
func NewStageResult() *StageResult {
	return &StageResult{
		Version:  ResultVersion,
		Status:   StatusSuccess,
		Score:    1.0,
		Errors:   []string{},
		Warnings: []string{},
		Metrics:  &StageMetrics{StartTime: time.Now()},
		Metadata: map[string]string{},
	}
}

// Finalize stamps the end time, computes the duration, and downgrades a
// success status to partial when errors were collected.
func (r *StageResult) Finalize() {
	r.Metrics.EndTime = time.Now()
	r.Metrics.Duration = r.Metrics.EndTime.Sub(r.Metrics.StartTime)
	if len(r.Errors) > 0 && r.Status == StatusSuccess {
		r.Status = StatusPartial
	}
}

// AddError appends an error message. A success status becomes partial;
// failed and passthrough stay as they are.
func (r *StageResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	if r.Status == StatusSuccess {
		r.Status = StatusPartial
	}
}

// AddWarning appends a warning message without touching the status.
func (r *StageResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// SetPassthrough marks the stage as skipped and records why.
func (r *StageResult) SetPassthrough(reason string) {
	r.Status = StatusPassthrough
	r.Metadata["mode"] = "passthrough"
	r.Metadata["passthrough_reason"] = reason
}

// RecordStoreCall accumulates one round-trip to an external store
// (session, graph or vector) into the metrics.
func (r *StageResult) RecordStoreCall(d time.Duration) {
	r.Metrics.StoreCalls++
	r.Metrics.StoreDuration += d
}
