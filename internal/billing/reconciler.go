package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tuition/internal/types"
)

// Outcome is the result of evaluating one student.
type Outcome string

const (
	OutcomeCreated     Outcome = "created"
	OutcomeSatisfied   Outcome = "satisfied"
	OutcomeSkippedOpen Outcome = "skipped_open"
)

// Result describes what the reconciler did for one student.
type Result struct {
	StudentID  int64
	Outcome    Outcome
	Resolution Resolution

	// Obligation is the record written when Outcome is OutcomeCreated.
	Obligation *types.Obligation
}

// Reconciler decides, per student, whether the next obligation must be
// materialized and writes it at most once per period label.
type Reconciler struct {
	store    Store
	resolver Resolver
	locks    *StudentLocks
	logger   *slog.Logger
	newID    func() string
}

// NewReconciler creates a Reconciler. locks may be shared with other
// reconcilers in the process; nil allocates a private table.
func NewReconciler(store Store, key PeriodKey, locks *StudentLocks, logger *slog.Logger) *Reconciler {
	if locks == nil {
		locks = NewStudentLocks()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:    store,
		resolver: NewResolver(key),
		locks:    locks,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Reconcile evaluates one student snapshot (subjects and obligations loaded)
// against now.
//
// The snapshot may be stale. When it calls for a new obligation the student is
// re-read under the per-student lock and resolved again, and the charge is
// computed from that fresh enrollment; a uniqueness conflict from the store
// counts as already satisfied.
func (r *Reconciler) Reconcile(ctx context.Context, student *types.Student, now time.Time) (Result, error) {
	if err := validateSnapshot(student); err != nil {
		return Result{StudentID: student.ID}, err
	}

	res, err := r.resolver.Resolve(student.Obligations, student.RegistrationDate, now)
	if err != nil {
		return Result{StudentID: student.ID}, withStudent(err, student.ID)
	}

	switch res.Decision {
	case DecisionNone:
		return Result{StudentID: student.ID, Outcome: OutcomeSkippedOpen, Resolution: res}, nil
	case DecisionAlreadySatisfied:
		return Result{StudentID: student.ID, Outcome: OutcomeSatisfied, Resolution: res}, nil
	}

	return r.createNext(ctx, student.ID, now, false)
}

// createNext loads the student under the lock, resolves the fresh history and
// inserts the candidate obligation priced from the current enrollment. With
// initialOnly set, any existing history means the initial obligation is
// already in place.
func (r *Reconciler) createNext(ctx context.Context, studentID int64, now time.Time, initialOnly bool) (Result, error) {
	result := Result{StudentID: studentID}

	unlock, err := r.locks.Lock(ctx, studentID)
	if err != nil {
		return result, types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("waiting for billing lock on student %d", studentID), err)
	}
	defer unlock()

	student, err := r.store.GetStudent(ctx, studentID)
	if err != nil {
		return result, err
	}
	if err := validateSnapshot(student); err != nil {
		return result, err
	}

	res, err := r.resolver.Resolve(student.Obligations, student.RegistrationDate, now)
	if err != nil {
		return result, withStudent(err, studentID)
	}
	result.Resolution = res

	if initialOnly && res.State != StateNoHistory {
		result.Outcome = OutcomeSatisfied
		return result, nil
	}

	switch res.Decision {
	case DecisionNone:
		result.Outcome = OutcomeSkippedOpen
		return result, nil
	case DecisionAlreadySatisfied:
		result.Outcome = OutcomeSatisfied
		return result, nil
	}

	charge := CalculateCharge(student.Subjects)
	ob := &types.Obligation{
		ID:          r.newID(),
		StudentID:   student.ID,
		PeriodLabel: res.Label,
		TotalAmount: charge.Final,
		AmountPaid:  decimal.Zero,
		AmountDue:   charge.Final,
		Discount:    charge.Discount,
		DueDate:     res.NextDueDate,
		CreatedAt:   now.UTC(),
	}

	id, err := r.store.CreateObligation(ctx, ob)
	if err != nil {
		if types.IsConflict(err) {
			r.logger.InfoContext(ctx, "obligation already exists for period",
				"student_id", student.ID,
				"period", res.Label,
			)
			result.Outcome = OutcomeSatisfied
			return result, nil
		}
		return result, err
	}
	ob.ID = id

	r.logger.InfoContext(ctx, "obligation created",
		"student_id", student.ID,
		"obligation_id", ob.ID,
		"period", ob.PeriodLabel,
		"due_date", ob.DueDate.Format("2006-01-02"),
		"amount", ob.TotalAmount.String(),
		"discount", ob.Discount.String(),
	)

	result.Outcome = OutcomeCreated
	result.Obligation = ob
	return result, nil
}

// withStudent attaches the student id to malformed-data errors.
func withStudent(err error, studentID int64) error {
	if appErr, ok := err.(*types.AppError); ok {
		return appErr.WithDetails(map[string]any{"student_id": studentID})
	}
	return err
}
