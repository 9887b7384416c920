package service

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/raphaelgruber/diligence/internal/models"
)

const (
	initialStatus = "Not started"

	// runningCeiling bounds progress while the job is still running;
	// only a terminal transition may reach 1.0.
	runningCeiling = 0.99
)

// StatusRecord is the shared state of one job. The worker is its only
// writer; pollers read it through Snapshot. Every mutation is guarded, so a
// reader never observes a half-applied update.
//
// Progress never decreases, stages are set once, and after Complete or Fail
// every further mutation is ignored.
type StatusRecord struct {
	mu         sync.RWMutex
	jobID      string
	progress   float64
	statusText string
	stages     []string
	report     *string
	fileData   models.FileData
	errMsg     *string
	updatedAt  time.Time

	updates chan struct{}
}

// NewStatusRecord creates a fresh record for a new job.
func NewStatusRecord(jobID string) *StatusRecord {
	return &StatusRecord{
		jobID:      jobID,
		statusText: initialStatus,
		updatedAt:  time.Now(),
		updates:    make(chan struct{}, 1),
	}
}

// JobID returns the identifier of the job that owns this record.
func (r *StatusRecord) JobID() string {
	return r.jobID
}

// Updates signals after every accepted mutation. The channel holds at most
// one pending signal, so a slow reader sees the latest state on its next
// Snapshot rather than a backlog.
func (r *StatusRecord) Updates() <-chan struct{} {
	return r.updates
}

// Advance sets the status text and moves progress forward.
// Lower progress values keep the current one; values at or above 1.0
// are held below completion.
func (r *StatusRecord) Advance(statusText string, progress float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.terminal() {
		return false
	}
	if statusText != "" {
		r.statusText = statusText
	}
	progress = min(max(progress, 0), runningCeiling)
	if progress > r.progress {
		r.progress = progress
	}
	r.touch()
	return true
}

// SetStages records the ordered stage labels. Only the first call wins.
func (r *StatusRecord) SetStages(stages []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.terminal() || r.stages != nil {
		return false
	}
	r.stages = slices.Clone(stages)
	if r.stages == nil {
		r.stages = []string{}
	}
	r.touch()
	return true
}

// Complete stores the report and file data and finishes the job.
func (r *StatusRecord) Complete(report string, data models.FileData) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.terminal() {
		return false
	}
	r.progress = 1.0
	r.statusText = "Analysis complete"
	r.report = &report
	r.fileData = maps.Clone(data)
	if r.fileData == nil {
		r.fileData = models.FileData{}
	}
	r.touch()
	return true
}

// Fail records the error message and finishes the job without a report.
func (r *StatusRecord) Fail(msg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.terminal() {
		return false
	}
	if msg == "" {
		msg = "unknown error"
	}
	r.progress = 1.0
	r.statusText = "Error"
	r.errMsg = &msg
	r.touch()
	return true
}

// Snapshot returns an immutable copy of the current state.
func (r *StatusRecord) Snapshot() models.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := models.Snapshot{
		JobID:      r.jobID,
		Progress:   r.progress,
		StatusText: r.statusText,
		Stages:     slices.Clone(r.stages),
		FileData:   maps.Clone(r.fileData),
		UpdatedAt:  r.updatedAt,
	}
	if r.report != nil {
		report := *r.report
		snap.Report = &report
	}
	if r.errMsg != nil {
		msg := *r.errMsg
		snap.Error = &msg
	}
	return snap
}

// terminal must be called with the lock held.
func (r *StatusRecord) terminal() bool {
	return r.report != nil || r.errMsg != nil
}

// touch must be called with the write lock held.
func (r *StatusRecord) touch() {
	r.updatedAt = time.Now()
	select {
	case r.updates <- struct{}{}:
	default:
	}
}
