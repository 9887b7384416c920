package service

import (
	"context"
	"time"

	"github.com/raphaelgruber/diligence/internal/models"
)

// DefaultPollInterval is the refresh cadence of the progress view.
const DefaultPollInterval = time.Second

// Poll reads record once per interval, passes each snapshot to render, and
// returns the first terminal snapshot. It never modifies the record.
// A canceled context stops observing; the job itself keeps running.
func Poll(ctx context.Context, record *StatusRecord, interval time.Duration, render func(models.Snapshot)) (models.Snapshot, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		snap := record.Snapshot()
		if render != nil {
			render(snap)
		}
		if snap.Terminal() {
			return snap, nil
		}

		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}
