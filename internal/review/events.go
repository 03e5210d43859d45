package review

import (
	"time"
)

// Emitter turns pipeline progress into store updates plus SSE broadcasts.
// Store and Hub carry their own locks, so an Emitter is safe to share
// across goroutines.
type Emitter struct {
	store *Store
	hub   *Hub
}

func NewEmitter(store *Store, hub *Hub) *Emitter {
	return &Emitter{store: store, hub: hub}
}

func (e *Emitter) emit(eventType, runID string, stage StageKind, data any) {
	e.hub.Broadcast(&Event{
		Type:      eventType,
		Timestamp: time.Now(),
		RunID:     runID,
		Stage:     stage,
		Data:      data,
	})
}

// CompileStarted records a new running compile and announces it.
func (e *Emitter) CompileStarted(id, source, format string, nodes, edges int) {
	run := &CompileRun{
		ID:        id,
		Source:    source,
		Format:    format,
		Status:    StatusRunning,
		Stages:    make([]StageUpdate, 0),
		StartedAt: time.Now(),
		Nodes:     nodes,
		Edges:     edges,
	}
	e.store.CreateRun(run)
	e.emit("compile.started", id, "", run)
}

// StageStarted appends a running stage to the run and announces it.
func (e *Emitter) StageStarted(runID string, stage StageKind) {
	update := StageUpdate{
		Stage:     stage,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	e.store.UpdateRun(runID, func(run *CompileRun) {
		run.Stages = append(run.Stages, update)
	})
	e.emit("stage.started", runID, stage, update)
}

// closeStage marks the run's stage finished via fn and returns the final
// StageUpdate for broadcasting.
func (e *Emitter) closeStage(runID string, stage StageKind, fn func(run *CompileRun, u *StageUpdate)) StageUpdate {
	var update StageUpdate
	e.store.UpdateRun(runID, func(run *CompileRun) {
		for i := range run.Stages {
			if run.Stages[i].Stage != stage {
				continue
			}
			now := time.Now()
			run.Stages[i].CompletedAt = &now
			run.Stages[i].Duration = now.Sub(run.Stages[i].StartedAt)
			fn(run, &run.Stages[i])
			update = run.Stages[i]
			break
		}
	})
	return update
}

// StageCompleted marks the stage completed with its counts and announces
// it. Stage warnings roll up into the run.
func (e *Emitter) StageCompleted(runID string, stage StageKind, counts StageCounts) {
	update := e.closeStage(runID, stage, func(run *CompileRun, u *StageUpdate) {
		u.Status = StatusCompleted
		u.Counts = counts
		run.Warnings += counts.Warnings
	})
	e.emit("stage.completed", runID, stage, update)
}

// StageFailed marks the stage failed with err and announces it.
func (e *Emitter) StageFailed(runID string, stage StageKind, err error) {
	update := e.closeStage(runID, stage, func(run *CompileRun, u *StageUpdate) {
		u.Status = StatusFailed
		if err != nil {
			u.Error = err.Error()
		}
	})
	e.emit("stage.failed", runID, stage, update)
}

// CompileCompleted records the finished run's model shape and announces
// it.
func (e *Emitter) CompileCompleted(runID, sessionID string, activities, connections, unknownHandlers int, gateStatus string) {
	var completed *CompileRun
	e.store.UpdateRun(runID, func(run *CompileRun) {
		now := time.Now()
		run.Status = StatusCompleted
		run.CompletedAt = &now
		run.SessionID = sessionID
		run.Activities = activities
		run.Connections = connections
		run.UnknownHandlers = unknownHandlers
		run.GateStatus = gateStatus
		completed = run
	})
	e.emit("compile.completed", runID, "", completed)
}

// CompileFailed marks the whole run failed and announces it.
func (e *Emitter) CompileFailed(runID string, err error) {
	var failed *CompileRun
	e.store.UpdateRun(runID, func(run *CompileRun) {
		now := time.Now()
		run.Status = StatusFailed
		run.CompletedAt = &now
		if err != nil {
			run.Error = err.Error()
		}
		failed = run
	})
	e.emit("compile.failed", runID, "", failed)
}

// Log buffers a log line for the run and streams it out.
func (e *Emitter) Log(runID, stage, level, message string) {
	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		RunID:     runID,
		Stage:     stage,
	}
	e.store.AddLog(entry)
	e.emit("log", runID, "", entry)
}
