package billing

import (
	"fmt"
	"time"

	"tuition/internal/types"
)

// Due-date offsets. The first cycle is measured from the registration date,
// later cycles from the previous due date; the two offsets differ.
const (
	FirstCycleOffsetDays = 30
	NextCycleOffsetDays  = 31
)

// CycleState is where a student sits in the billing cycle.
type CycleState string

const (
	StateNoHistory    CycleState = "no_history"
	StateCycleOpen    CycleState = "cycle_open"
	StateCycleElapsed CycleState = "cycle_elapsed"
)

// Decision is what the resolver asks the reconciler to do.
type Decision string

const (
	DecisionNone             Decision = "none"
	DecisionCreateRequired   Decision = "create_required"
	DecisionAlreadySatisfied Decision = "already_satisfied"
)

// Resolution is the output of Resolver.Resolve.
type Resolution struct {
	State    CycleState
	Decision Decision

	// LatestDueDate is the due date of the most recent obligation.
	// Zero when State is StateNoHistory.
	LatestDueDate time.Time

	// NextDueDate and Label describe the candidate obligation. They are zero
	// when the cycle is still open.
	NextDueDate time.Time
	Label       string

	// ExistingID is the obligation that already carries Label, when the
	// duplicate guard fired.
	ExistingID string
}

// Resolver determines a student's cycle state from payment history.
// It never reads the wall clock; callers pass now.
type Resolver struct {
	Key PeriodKey
}

// NewResolver creates a Resolver labelling periods with key.
func NewResolver(key PeriodKey) Resolver {
	return Resolver{Key: key}
}

// Resolve evaluates history (most recent first) against now.
//
// A cycle is open while today (UTC date of now) is on or before the latest
// due date. Once elapsed, the candidate due date is the latest due date plus
// NextCycleOffsetDays. With no history the candidate is the registration date
// plus FirstCycleOffsetDays. The candidate is reported as already satisfied
// when any existing obligation's due date maps to the same period label.
func (r Resolver) Resolve(history []types.Obligation, registration, now time.Time) (Resolution, error) {
	for i := range history {
		if history[i].DueDate.IsZero() {
			return Resolution{}, types.NewAppErrorWithDetails(
				types.ErrCodeValidationMalformed,
				"obligation has no due date",
				nil,
				map[string]any{"obligation_id": history[i].ID},
			)
		}
	}

	if len(history) == 0 {
		if registration.IsZero() {
			return Resolution{}, types.NewAppError(types.ErrCodeValidationMalformed, "student has no registration date", nil)
		}
		due := types.DateOf(registration).AddDate(0, 0, FirstCycleOffsetDays)
		return Resolution{
			State:       StateNoHistory,
			Decision:    DecisionCreateRequired,
			NextDueDate: due,
			Label:       r.Key.Label(due),
		}, nil
	}

	latest := types.DateOf(history[0].DueDate)
	today := types.DateOf(now)
	if !latest.Before(today) {
		return Resolution{
			State:         StateCycleOpen,
			Decision:      DecisionNone,
			LatestDueDate: latest,
		}, nil
	}

	next := latest.AddDate(0, 0, NextCycleOffsetDays)
	res := Resolution{
		State:         StateCycleElapsed,
		Decision:      DecisionCreateRequired,
		LatestDueDate: latest,
		NextDueDate:   next,
		Label:         r.Key.Label(next),
	}
	if id, ok := r.findLabel(history, res.Label); ok {
		res.Decision = DecisionAlreadySatisfied
		res.ExistingID = id
	}
	return res, nil
}

// findLabel returns the first obligation whose due date maps to label.
func (r Resolver) findLabel(history []types.Obligation, label string) (string, bool) {
	for _, ob := range history {
		if r.Key.Label(ob.DueDate) == label {
			return ob.ID, true
		}
	}
	return "", false
}

// String implements fmt.Stringer for log output.
func (res Resolution) String() string {
	if res.NextDueDate.IsZero() {
		return fmt.Sprintf("%s/%s", res.State, res.Decision)
	}
	return fmt.Sprintf("%s/%s next=%s label=%s", res.State, res.Decision, res.NextDueDate.Format("2006-01-02"), res.Label)
}
