package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/raphaelgruber/diligence/internal/models"
)

// fakeAnalyzer returns a canned result or error.
type fakeAnalyzer struct {
	result  *Result
	err     error
	panics  any
	release chan struct{} // when set, Analyze waits for it to close

	mu    sync.Mutex
	calls int
	kinds []models.AnalysisKind
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, paths []string, kind models.AnalysisKind) (*Result, error) {
	f.mu.Lock()
	f.calls++
	f.kinds = append(f.kinds, kind)
	f.mu.Unlock()

	if f.release != nil {
		<-f.release
	}
	if f.panics != nil {
		panic(f.panics)
	}
	return f.result, f.err
}

// ctxAnalyzer blocks until its context ends.
type ctxAnalyzer struct{}

func (ctxAnalyzer) Analyze(ctx context.Context, _ []string, _ models.AnalysisKind) (*Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// stuckAnalyzer ignores its context entirely.
type stuckAnalyzer struct {
	release chan struct{}
}

func (s stuckAnalyzer) Analyze(context.Context, []string, models.AnalysisKind) (*Result, error) {
	<-s.release
	return &Result{Report: "late"}, nil
}

func okResult(stages ...string) *Result {
	return &Result{
		Report: "# Investment Opportunity Analysis",
		FileData: models.FileData{
			"/tmp/a.pdf": {Content: "deck text", Kind: "pdf"},
		},
		Stages: stages,
	}
}

var errBackend = errors.New("backend exploded")

// waitTerminal polls until the record is terminal or the deadline passes.
func waitTerminal(record *StatusRecord, timeout time.Duration) models.Snapshot {
	deadline := time.Now().Add(timeout)
	for {
		snap := record.Snapshot()
		if snap.Terminal() || time.Now().After(deadline) {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
}
