package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/diligence/internal/metrics"
	"github.com/raphaelgruber/diligence/internal/models"
)

const startingStatus = "Starting analysis pipeline..."

// ErrAnalysisTimeout is returned when the analyzer exceeds the configured timeout.
var ErrAnalysisTimeout = errors.New("analysis timed out")

// Result is what an analyzer produces for one job.
type Result struct {
	Report   string
	FileData models.FileData
	// Stages lists the agents that ran, in execution order. The list is
	// only known once the analysis has returned.
	Stages []string
}

// Analyzer runs the document analysis. Analyze blocks until the whole
// pipeline has finished and must be safe to call from any goroutine.
type Analyzer interface {
	Analyze(ctx context.Context, paths []string, kind models.AnalysisKind) (*Result, error)
}

// WorkerConfig tunes a Worker.
type WorkerConfig struct {
	// StageDelay pauses between replayed stages so a poller can see each one.
	StageDelay time.Duration
	// Timeout bounds the analyzer call. Zero means no limit.
	Timeout time.Duration
	// Metrics is optional.
	Metrics *metrics.Collector
}

// Worker runs one analysis and reports progress into a StatusRecord.
type Worker struct {
	analyzer Analyzer
	cfg      WorkerConfig
	sleep    func(time.Duration)
}

// NewWorker creates a worker around the given analyzer.
func NewWorker(analyzer Analyzer, cfg WorkerConfig) *Worker {
	return &Worker{analyzer: analyzer, cfg: cfg, sleep: time.Sleep}
}

// Run executes the job and must be called on its own goroutine. It never
// panics and never returns an error: every failure ends up in record as a
// terminal error. done receives the report on success and nil on failure;
// it should have room for one value, a full channel is skipped.
func (w *Worker) Run(ctx context.Context, paths []string, record *StatusRecord, kind models.AnalysisKind, done chan<- *string) {
	jobID := record.JobID()
	var report *string

	defer func() {
		if r := recover(); r != nil {
			slog.Error("job worker panicked", "job_id", jobID, "panic", r)
			if record.Fail(fmt.Sprintf("internal error: %v", r)) {
				report = nil
			}
		}
		notify(done, report, jobID)
	}()

	slog.Info("job started", "job_id", jobID, "kind", kind, "files", len(paths))
	record.Advance(startingStatus, 0.02)

	start := time.Now()
	result, err := w.analyze(ctx, paths, kind)
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.RecordTiming(metrics.OpAnalysis, time.Since(start))
	}
	if err != nil {
		slog.Error("job failed", "job_id", jobID, "error", err)
		record.Fail(err.Error())
		return
	}

	labels := StageLabels(NormalizeStages(result.Stages))
	record.SetStages(labels)
	for i, label := range labels {
		record.Advance(label, StageProgress(i, len(labels)))
		if w.cfg.StageDelay > 0 {
			w.sleep(w.cfg.StageDelay)
		}
	}

	record.Complete(result.Report, result.FileData)
	report = &result.Report
	slog.Info("job completed", "job_id", jobID, "stages", len(labels), "files", len(result.FileData), "duration", time.Since(start).Round(time.Millisecond))
}

// analyze calls the analyzer, enforcing the timeout when one is set.
// The analyzer runs on a separate goroutine so a call that ignores its
// context still cannot hold the worker past the deadline.
func (w *Worker) analyze(ctx context.Context, paths []string, kind models.AnalysisKind) (*Result, error) {
	if w.cfg.Timeout <= 0 {
		return w.callAnalyzer(ctx, paths, kind)
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	type outcome struct {
		result *Result
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		result, err := w.callAnalyzer(ctx, paths, kind)
		ch <- outcome{result, err}
	}()

	select {
	case out := <-ch:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrAnalysisTimeout, w.cfg.Timeout)
		}
		return out.result, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w after %s", ErrAnalysisTimeout, w.cfg.Timeout)
	}
}

func (w *Worker) callAnalyzer(ctx context.Context, paths []string, kind models.AnalysisKind) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analyzer panicked: %v", r)
		}
	}()

	result, err = w.analyzer.Analyze(ctx, paths, kind)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("analyzer returned no result")
	}
	return result, nil
}

func notify(done chan<- *string, report *string, jobID string) {
	if done == nil {
		return
	}
	select {
	case done <- report:
	default:
		slog.Warn("completion channel full, dropping result", "job_id", jobID)
	}
}
