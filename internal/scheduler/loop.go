package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// MinSweepInterval is the shortest cadence Loop accepts.
const MinSweepInterval = time.Hour

// RunFunc performs one scheduled run at now.
type RunFunc func(ctx context.Context, now time.Time) (Summary, error)

// Loop calls run immediately and then once per interval until ctx ends.
// Intervals shorter than MinSweepInterval are raised to it. Run errors are
// logged; the next tick tries again.
func Loop(ctx context.Context, run RunFunc, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval < MinSweepInterval {
		interval = MinSweepInterval
	}
	loop(ctx, run, interval, time.Now, logger)
}

func loop(ctx context.Context, run RunFunc, interval time.Duration, clock func() time.Time, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.InfoContext(ctx, "sweep loop started", "interval", interval.String())

	tick := func() {
		summary, err := run(ctx, clock().UTC())
		if err != nil {
			logger.ErrorContext(ctx, "scheduled sweep failed", "error", err)
			return
		}
		logger.InfoContext(ctx, "scheduled sweep finished", "summary", summary.String())
	}

	tick()
	for {
		select {
		case <-ticker.C:
			tick()
		case <-ctx.Done():
			logger.InfoContext(ctx, "sweep loop stopped")
			return
		}
	}
}
