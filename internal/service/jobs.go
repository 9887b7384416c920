// Package service runs analysis jobs in the background and tracks their progress.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/diligence/internal/models"
)

var (
	// ErrJobAlreadyRunning is returned when starting a second active job.
	ErrJobAlreadyRunning = errors.New("job already running")

	// ErrNoFiles is returned when a job is started without any staged files.
	ErrNoFiles = errors.New("no files to analyze")

	// ErrNoRunningJob is returned when finishing while idle.
	ErrNoRunningJob = errors.New("no running job")

	// ErrJobNotTerminal is returned when finishing a job that is still running.
	ErrJobNotTerminal = errors.New("job has not finished")
)

// Session allows at most one job in flight. A job stays active until the
// observer that saw it reach a terminal state calls Finish.
type Session struct {
	worker *Worker

	mu         sync.Mutex
	processing bool
	current    *StatusRecord
	startedAt  time.Time
}

// NewSession creates an idle session.
func NewSession(worker *Worker) *Session {
	return &Session{worker: worker}
}

// Start launches a job on its own goroutine with a fresh status record.
// The returned channel yields the report, or nil if the job failed.
func (s *Session) Start(ctx context.Context, paths []string, kind models.AnalysisKind) (*StatusRecord, <-chan *string, error) {
	if len(paths) == 0 {
		return nil, nil, ErrNoFiles
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processing {
		return nil, nil, ErrJobAlreadyRunning
	}

	record := NewStatusRecord(uuid.New().String()[:8])
	done := make(chan *string, 1)

	s.processing = true
	s.current = record
	s.startedAt = time.Now()

	// The job outlives the request that started it; there is no cancel.
	go s.worker.Run(context.WithoutCancel(ctx), paths, record, kind, done)

	slog.Info("job submitted", "job_id", record.JobID(), "kind", kind, "files", len(paths))
	return record, done, nil
}

// Processing reports whether a job is active.
func (s *Session) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// Current returns the record of the active or last job, or nil.
func (s *Session) Current() *StatusRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Finish marks the active job inactive so a new one may start.
// The job must have reached a terminal state.
func (s *Session) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.processing {
		return ErrNoRunningJob
	}
	if !s.current.Snapshot().Terminal() {
		return ErrJobNotTerminal
	}

	s.processing = false
	slog.Debug("job finished", "job_id", s.current.JobID(), "elapsed", time.Since(s.startedAt).Round(time.Millisecond))
	return nil
}

// Observe polls the active job until it is terminal, then finishes it.
func (s *Session) Observe(ctx context.Context, interval time.Duration, render func(models.Snapshot)) (models.Snapshot, error) {
	record := s.Current()
	if record == nil || !s.Processing() {
		return models.Snapshot{}, ErrNoRunningJob
	}

	snap, err := Poll(ctx, record, interval, render)
	if err != nil {
		return snap, err
	}
	if err := s.Finish(); err != nil {
		return snap, err
	}
	return snap, nil
}
