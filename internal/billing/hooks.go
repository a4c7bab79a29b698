package billing

import (
	"context"
	"fmt"
	"time"

	"tuition/internal/types"
)

// HookOutcome is the result of an enrollment-change hook.
type HookOutcome string

const (
	HookCreated         HookOutcome = "created"
	HookAlreadyBilled   HookOutcome = "already_billed"
	HookRecomputed      HookOutcome = "recomputed"
	HookNoCurrentPeriod HookOutcome = "no_current_period"
)

// HookResult describes the write performed by a hook.
type HookResult struct {
	StudentID  int64
	Outcome    HookOutcome
	Obligation *types.Obligation
}

// Hooks are invoked synchronously by the student-management write path after
// its own enrollment writes commit. Errors propagate to that caller.
type Hooks struct {
	rec *Reconciler
}

// NewHooks creates hooks sharing rec's store, lock table and period key.
func NewHooks(rec *Reconciler) *Hooks {
	return &Hooks{rec: rec}
}

// OnStudentEnrolled creates the student's initial obligation, due
// FirstCycleOffsetDays after registration. A second call, or a call after the
// periodic sweep already billed the student, writes nothing.
func (h *Hooks) OnStudentEnrolled(ctx context.Context, studentID int64, now time.Time) (HookResult, error) {
	res, err := h.rec.createNext(ctx, studentID, now, true)
	if err != nil {
		return HookResult{StudentID: studentID}, err
	}
	if res.Outcome == OutcomeCreated {
		return HookResult{StudentID: studentID, Outcome: HookCreated, Obligation: res.Obligation}, nil
	}
	return HookResult{StudentID: studentID, Outcome: HookAlreadyBilled}, nil
}

// OnStudentEnrollmentChanged recomputes the obligation for the period that
// contains now, after the student's subject set was edited.
//
// The obligation is located by the period label of now, not by recency. Its
// total and discount are rewritten from the new enrollment and the amount due
// becomes the new total minus what was already paid. When no obligation
// carries the current label nothing is written; a missing current-period
// charge is left for the periodic sweep.
func (h *Hooks) OnStudentEnrollmentChanged(ctx context.Context, studentID int64, now time.Time) (HookResult, error) {
	logger := h.rec.logger.With("student_id", studentID)

	unlock, err := h.rec.locks.Lock(ctx, studentID)
	if err != nil {
		return HookResult{StudentID: studentID}, types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("waiting for billing lock on student %d", studentID), err)
	}
	defer unlock()

	// Subjects and history are read under the lock so back-to-back edits
	// apply in commit order.
	student, err := h.rec.store.GetStudent(ctx, studentID)
	if err != nil {
		return HookResult{StudentID: studentID}, err
	}
	if err := validateSnapshot(student); err != nil {
		return HookResult{StudentID: studentID}, err
	}
	fresh := student.Obligations

	label := h.rec.resolver.Key.Label(now)
	var current *types.Obligation
	for i := range fresh {
		if fresh[i].PeriodLabel == label {
			current = &fresh[i]
			break
		}
	}
	if current == nil {
		logger.InfoContext(ctx, "no obligation for current period, enrollment edit not billed",
			"period", label,
		)
		return HookResult{StudentID: studentID, Outcome: HookNoCurrentPeriod}, nil
	}

	charge := CalculateCharge(student.Subjects)
	amounts := types.ObligationAmounts{
		TotalAmount: charge.Final,
		Discount:    charge.Discount,
		AmountDue:   charge.Final.Sub(current.AmountPaid),
	}
	if err := h.rec.store.UpdateObligationAmounts(ctx, current.ID, amounts); err != nil {
		return HookResult{StudentID: studentID}, err
	}

	updated := *current
	updated.TotalAmount = amounts.TotalAmount
	updated.Discount = amounts.Discount
	updated.AmountDue = amounts.AmountDue

	logger.InfoContext(ctx, "obligation recomputed after enrollment change",
		"obligation_id", updated.ID,
		"period", label,
		"amount", updated.TotalAmount.String(),
		"discount", updated.Discount.String(),
		"amount_due", updated.AmountDue.String(),
	)

	return HookResult{StudentID: studentID, Outcome: HookRecomputed, Obligation: &updated}, nil
}
