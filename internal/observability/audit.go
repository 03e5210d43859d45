package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventDecode         AuditEventType = "decode"
	AuditEventCompile        AuditEventType = "compile"
	AuditEventCompileError   AuditEventType = "compile.error"
	AuditEventGateEvaluate   AuditEventType = "gate.evaluate"
	AuditEventPersist        AuditEventType = "persist.graph"
	AuditEventIndex          AuditEventType = "index.vector"
	AuditEventSessionSave    AuditEventType = "session.save"
	AuditEventSessionPrune   AuditEventType = "session.prune"
	AuditEventBatchStart     AuditEventType = "batch.start"
	AuditEventBatchEnd       AuditEventType = "batch.end"
	AuditEventRegressRun     AuditEventType = "regress.run"
	AuditEventReviewDecision AuditEventType = "review.decision"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	EventType   AuditEventType         `json:"event_type"`
	SessionID   string                 `json:"session_id"`
	WorkflowID  string                 `json:"workflow_id,omitempty"`
	Stage       string                 `json:"stage,omitempty"`
	UserID      string                 `json:"user_id,omitempty"`
	Success     bool                   `json:"success"`
	Duration    time.Duration          `json:"duration_ms,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	ErrorCode   string                 `json:"error_code,omitempty"`
	ErrorDetail string                 `json:"error_detail,omitempty"`
}

// AuditLogger handles audit event logging.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	userID    string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // File path or "stdout"/"stderr"
	SessionID  string
	UserID     string
}

// DefaultAuditConfig returns default audit configuration.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Enabled:    true,
		OutputPath: "stdout",
	}
}

// openAuditWriter resolves the configured output path to a writer.
func openAuditWriter(path string) (io.Writer, error) {
	switch path {
	case "stdout", "":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		return f, nil
	}
}

// NewAuditLogger builds a logger writing JSONL events to the configured
// destination. A missing session ID gets generated.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil {
		config = DefaultAuditConfig()
	}

	writer, err := openAuditWriter(config.OutputPath)
	if err != nil {
		return nil, err
	}

	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}

	return &AuditLogger{
		writer:    writer,
		sessionID: sessionID,
		userID:    config.UserID,
		enabled:   config.Enabled,
	}, nil
}

// stamp fills the event's timestamp and identity fields when the caller
// left them empty.
func (l *AuditLogger) stamp(event *AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}
	if event.UserID == "" {
		event.UserID = l.userID
	}
}

// Log writes one event as a JSON line. Disabled loggers drop events
// silently.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.stamp(event)
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogDecode logs a diagram decode event.
func (l *AuditLogger) LogDecode(ctx context.Context, format, source string, nodes, edges, findings int) {
	l.Log(&AuditEvent{
		EventType: AuditEventDecode,
		Stage:     "decode",
		Success:   true,
		Message:   fmt.Sprintf("Decoded %s diagram: %d nodes, %d edges", format, nodes, edges),
		Details: map[string]interface{}{
			"format":   format,
			"source":   source,
			"nodes":    nodes,
			"edges":    edges,
			"findings": findings,
		},
	})
}

// LogCompile logs a model lowering event.
func (l *AuditLogger) LogCompile(ctx context.Context, source string, activities, connections, unknown int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventCompile,
		Stage:     "lower",
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("Compiled %s: %d activities, %d connections", source, activities, connections),
		Details: map[string]interface{}{
			"source":           source,
			"activities":       activities,
			"connections":      connections,
			"unknown_handlers": unknown,
		},
	})
}

// LogCompileError logs a failed lowering attempt.
func (l *AuditLogger) LogCompileError(ctx context.Context, source string, err error) {
	l.Log(&AuditEvent{
		EventType:   AuditEventCompileError,
		Stage:       "lower",
		Success:     false,
		Message:     fmt.Sprintf("Compile failed: %s", source),
		ErrorDetail: err.Error(),
	})
}

// LogGateResult logs a quality gate evaluation event.
func (l *AuditLogger) LogGateResult(ctx context.Context, status string, passed, failed, warnings int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventGateEvaluate,
		Stage:     "gate",
		Success:   failed == 0,
		Duration:  duration,
		Message:   fmt.Sprintf("Quality gates %s: %d passed, %d failed", status, passed, failed),
		Details: map[string]interface{}{
			"status":   status,
			"passed":   passed,
			"failed":   failed,
			"warnings": warnings,
		},
	})
}

// LogPersist logs a graph store write event.
func (l *AuditLogger) LogPersist(ctx context.Context, backend string, entities, activities, relationships int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventPersist,
		Stage:     "persist",
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("Persisted model to %s: %d entities, %d activities", backend, entities, activities),
		Details: map[string]interface{}{
			"backend":       backend,
			"entities":      entities,
			"activities":    activities,
			"relationships": relationships,
		},
	})
}

// LogIndex logs a vector index event.
func (l *AuditLogger) LogIndex(ctx context.Context, collection, modelID string, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventIndex,
		Stage:     "index",
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("Indexed model %s into %s", modelID, collection),
		Details: map[string]interface{}{
			"collection": collection,
			"model_id":   modelID,
		},
	})
}

// LogSessionSave logs a compile session snapshot event.
func (l *AuditLogger) LogSessionSave(ctx context.Context, sessionID, contentHash string) {
	l.Log(&AuditEvent{
		EventType: AuditEventSessionSave,
		Stage:     "session",
		Success:   true,
		Message:   fmt.Sprintf("Saved session %s", sessionID),
		Details: map[string]interface{}{
			"session":      sessionID,
			"content_hash": contentHash,
		},
	})
}

// LogSessionPrune logs a session prune event.
func (l *AuditLogger) LogSessionPrune(ctx context.Context, removed, kept int) {
	l.Log(&AuditEvent{
		EventType: AuditEventSessionPrune,
		Stage:     "session",
		Success:   true,
		Message:   fmt.Sprintf("Pruned %d sessions, kept %d", removed, kept),
		Details: map[string]interface{}{
			"removed": removed,
			"kept":    kept,
		},
	})
}

// LogBatchStart logs a batch conversion start event.
func (l *AuditLogger) LogBatchStart(ctx context.Context, workflowID, inputDir string, count int) {
	l.Log(&AuditEvent{
		EventType:  AuditEventBatchStart,
		WorkflowID: workflowID,
		Success:    true,
		Message:    fmt.Sprintf("Batch conversion started: %d diagrams from %s", count, inputDir),
		Details: map[string]interface{}{
			"input_dir": inputDir,
			"count":     count,
		},
	})
}

// LogBatchEnd logs a batch conversion completion event.
func (l *AuditLogger) LogBatchEnd(ctx context.Context, workflowID string, success bool, converted, failed int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType:  AuditEventBatchEnd,
		WorkflowID: workflowID,
		Success:    success,
		Duration:   duration,
		Message:    fmt.Sprintf("Batch conversion completed: %d converted, %d failed", converted, failed),
		Details: map[string]interface{}{
			"converted": converted,
			"failed":    failed,
		},
	})
}

// LogRegressRun logs a regression suite run event.
func (l *AuditLogger) LogRegressRun(ctx context.Context, suite string, passed, failed int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventRegressRun,
		Stage:     "regress",
		Success:   failed == 0,
		Duration:  duration,
		Message:   fmt.Sprintf("Regression suite %s: %d passed, %d failed", suite, passed, failed),
		Details: map[string]interface{}{
			"suite":  suite,
			"passed": passed,
			"failed": failed,
		},
	})
}

// LogReviewDecision logs a human review decision event.
func (l *AuditLogger) LogReviewDecision(ctx context.Context, modelID, decision, note string) {
	l.Log(&AuditEvent{
		EventType: AuditEventReviewDecision,
		Stage:     "review",
		Success:   true,
		Message:   fmt.Sprintf("Model %s reviewed: %s", modelID, decision),
		Details: map[string]interface{}{
			"model_id": modelID,
			"decision": decision,
			"note":     note,
		},
	})
}

// Close releases the underlying file, if any. Process streams are left
// open.
func (l *AuditLogger) Close() error {
	closer, ok := l.writer.(io.Closer)
	if !ok || closer == os.Stdout || closer == os.Stderr {
		return nil
	}
	return closer.Close()
}

var (
	globalAuditLogger *AuditLogger
	auditOnce         sync.Once
)

// InitGlobalAuditLogger sets up the process-wide audit logger. Only the
// first call takes effect.
func InitGlobalAuditLogger(config *AuditConfig) error {
	var err error
	auditOnce.Do(func() {
		globalAuditLogger, err = NewAuditLogger(config)
	})
	return err
}

// Audit returns the process-wide audit logger, or a disabled one when
// InitGlobalAuditLogger has not run.
func Audit() *AuditLogger {
	if globalAuditLogger == nil {
		return &AuditLogger{}
	}
	return globalAuditLogger
}
