package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tuition/internal/billing"
	"tuition/internal/types"
)

// Defaults applied when SweepOptions leaves a field zero.
const (
	DefaultSweepConcurrency = 4
	DefaultStudentTimeout   = 10 * time.Second
)

// PopulationReader loads every student with subjects and obligations.
type PopulationReader interface {
	ListStudentsWithEnrollmentAndPayments(ctx context.Context) ([]types.Student, error)
}

// StudentReconciler evaluates one student. Implemented by *billing.Reconciler.
type StudentReconciler interface {
	Reconcile(ctx context.Context, student *types.Student, now time.Time) (billing.Result, error)
}

// SweepOptions tunes a BillingSweeper.
type SweepOptions struct {
	// Concurrency bounds how many students are evaluated at once.
	Concurrency int
	// StudentTimeout bounds each student's evaluation.
	StudentTimeout time.Duration
}

// BillingSweeper runs the reconciler over the full student population.
// Concurrent calls to RunBillingCycleSweep on the same sweeper do not
// overlap: a call made while a sweep is in flight returns immediately.
type BillingSweeper struct {
	population PopulationReader
	reconciler StudentReconciler
	metrics    SweepMetrics
	opts       SweepOptions
	logger     *slog.Logger

	running atomic.Bool
}

// NewBillingSweeper creates a BillingSweeper. metrics may be nil.
func NewBillingSweeper(population PopulationReader, reconciler StudentReconciler, metrics SweepMetrics, opts SweepOptions, logger *slog.Logger) *BillingSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NoopSweepMetrics{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultSweepConcurrency
	}
	if opts.StudentTimeout <= 0 {
		opts.StudentTimeout = DefaultStudentTimeout
	}
	return &BillingSweeper{
		population: population,
		reconciler: reconciler,
		metrics:    metrics,
		opts:       opts,
		logger:     logger,
	}
}

// RunBillingCycleSweep evaluates every student against now.
//
// Per-student failures are logged and counted in the Summary; they never
// abort the sweep. The returned error is non-nil only when the population
// could not be loaded.
func (s *BillingSweeper) RunBillingCycleSweep(ctx context.Context, now time.Time) (Summary, error) {
	now = now.UTC()

	if !s.running.CompareAndSwap(false, true) {
		s.logger.WarnContext(ctx, "billing sweep already running, skipping",
			"reference_time", now.Format(time.RFC3339),
		)
		return skippedSummary(now), nil
	}
	defer s.running.Store(false)

	start := time.Now()

	students, err := s.population.ListStudentsWithEnrollmentAndPayments(ctx)
	if err != nil {
		return Summary{ReferenceTime: now}, fmt.Errorf("loading student population: %w", err)
	}

	s.logger.InfoContext(ctx, "billing sweep started",
		"reference_time", now.Format(time.RFC3339),
		"students", len(students),
		"concurrency", s.opts.Concurrency,
	)

	summary := Summary{ReferenceTime: now, Students: len(students)}
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for i := range students {
		student := &students[i]
		g.Go(func() error {
			res, err := s.reconcileOne(gCtx, student, now)

			mu.Lock()
			defer mu.Unlock()
			summary.record(student.ID, res, err)

			// Errors stay with the student; the group never cancels.
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].StudentID < summary.Failures[j].StudentID
	})

	elapsed := time.Since(start)
	s.metrics.RecordSweep(ctx, summary, elapsed)

	s.logger.InfoContext(ctx, "billing sweep complete",
		"students", summary.Students,
		"created", summary.Created,
		"satisfied", summary.Satisfied,
		"skipped_open", summary.SkippedOpen,
		"errored", summary.Errored,
		"duration_ms", elapsed.Milliseconds(),
	)

	return summary, nil
}

// reconcileOne evaluates a single student under its own deadline.
func (s *BillingSweeper) reconcileOne(ctx context.Context, student *types.Student, now time.Time) (billing.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StudentTimeout)
	defer cancel()

	res, err := s.reconciler.Reconcile(ctx, student, now)
	if err != nil {
		level, msg := slog.LevelError, "failed to reconcile student"
		if types.IsStorageUnavailable(err) {
			// Transient; the next sweep evaluates the student again.
			level, msg = slog.LevelWarn, "storage unavailable, student deferred to next sweep"
		}
		s.logger.Log(ctx, level, msg,
			"student_id", student.ID,
			"code", string(types.CodeOf(err)),
			"error", err,
		)
		return res, err
	}

	s.logger.DebugContext(ctx, "student reconciled",
		"student_id", student.ID,
		"outcome", string(res.Outcome),
		"resolution", res.Resolution.String(),
	)
	return res, nil
}

func (sum *Summary) record(studentID int64, res billing.Result, err error) {
	if err != nil {
		sum.Errored++
		sum.Failures = append(sum.Failures, Failure{
			StudentID: studentID,
			Code:      types.CodeOf(err),
			Message:   err.Error(),
		})
		return
	}
	switch res.Outcome {
	case billing.OutcomeCreated:
		sum.Created++
	case billing.OutcomeSatisfied:
		sum.Satisfied++
	case billing.OutcomeSkippedOpen:
		sum.SkippedOpen++
	}
}
