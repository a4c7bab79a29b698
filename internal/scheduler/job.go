package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultLockTTL bounds how long a crashed worker can block later sweeps.
const DefaultLockTTL = 30 * time.Minute

// Job history statuses.
const (
	JobStatusSuccess = "success"
	JobStatusFailed  = "failed"
)

// JobLocker abstracts the distributed lock in the job_locks table.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID string, workerID string) error
}

// JobHistorian abstracts the job history recording.
type JobHistorian interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, err error) error
}

// Sweeper runs one billing sweep. Implemented by *BillingSweeper.
type Sweeper interface {
	RunBillingCycleSweep(ctx context.Context, now time.Time) (Summary, error)
}

// SweepJob runs a sweep under the cross-process job lock and records it in
// job history. The in-process guard in BillingSweeper does not cover other
// Lambda instances or CLI runs; the lock does.
type SweepJob struct {
	Sweeper    Sweeper
	JobLock    JobLocker
	JobHistory JobHistorian
	WorkerID   string
	LockTTL    time.Duration
	Logger     *slog.Logger
}

// Run acquires the lock, sweeps, records history and releases the lock.
// When another worker holds the lock it returns a skipped Summary and no error.
func (j *SweepJob) Run(ctx context.Context, now time.Time) (Summary, error) {
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := j.LockTTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	now = now.UTC()
	lockID := string(TaskBillingSweep)

	acquired, err := j.JobLock.Acquire(ctx, lockID, j.WorkerID, ttl)
	if err != nil {
		logger.ErrorContext(ctx, "failed to acquire job lock",
			"lock_id", lockID,
			"error", err,
		)
		return Summary{ReferenceTime: now}, fmt.Errorf("acquiring job lock %s: %w", lockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock not acquired, another worker is sweeping",
			"lock_id", lockID,
		)
		return skippedSummary(now), nil
	}
	defer func() {
		// Release on a fresh context so a canceled sweep still frees the lock.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := j.JobLock.Release(releaseCtx, lockID, j.WorkerID); err != nil {
			logger.ErrorContext(ctx, "failed to release job lock",
				"lock_id", lockID,
				"error", err,
			)
		}
	}()

	jobID, err := j.JobHistory.Start(ctx, string(TaskBillingSweep))
	if err != nil {
		logger.ErrorContext(ctx, "failed to start job history",
			"task", string(TaskBillingSweep),
			"error", err,
		)
		// Non-fatal: jobID=0 skips Finish.
		jobID = 0
	}

	summary, execErr := j.Sweeper.RunBillingCycleSweep(ctx, now)

	status := JobStatusSuccess
	if execErr != nil {
		status = JobStatusFailed
	}
	if jobID != 0 {
		if finishErr := j.JobHistory.Finish(ctx, jobID, status, summary.Evaluated(), execErr); finishErr != nil {
			logger.ErrorContext(ctx, "failed to finish job history",
				"job_id", jobID,
				"error", finishErr,
			)
		}
	}

	if execErr != nil {
		return summary, fmt.Errorf("billing sweep failed: %w", execErr)
	}
	return summary, nil
}
