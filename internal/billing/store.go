package billing

import (
	"context"

	"tuition/internal/types"
)

// Store is the data-access collaborator the engine reads enrollment snapshots
// and payment history from, and writes obligations to. The caller owns its
// lifecycle.
//
// Implementations must return *types.AppError values:
//   - not_found_student when GetStudent misses,
//   - conflict_duplicate_period when CreateObligation hits the
//     (student_id, period_label) uniqueness constraint,
//   - internal_database_error / upstream_storage_unavailable on transport failure.
type Store interface {
	// ListStudentsWithEnrollmentAndPayments returns the full population with
	// subjects and obligations (obligations newest first).
	ListStudentsWithEnrollmentAndPayments(ctx context.Context) ([]types.Student, error)

	// GetStudent returns one student with subjects and obligations (newest
	// first). Writers call it under the per-student lock to re-check history
	// and price from the current enrollment.
	GetStudent(ctx context.Context, id int64) (*types.Student, error)

	// CreateObligation inserts ob and returns its id.
	CreateObligation(ctx context.Context, ob *types.Obligation) (string, error)

	// UpdateObligationAmounts rewrites the amount fields of an obligation.
	UpdateObligationAmounts(ctx context.Context, id string, amounts types.ObligationAmounts) error
}

// validateSnapshot rejects enrollment data the engine cannot bill safely.
func validateSnapshot(s *types.Student) error {
	if s.RegistrationDate.IsZero() {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationMalformed,
			"student has no registration date", nil,
			map[string]any{"student_id": s.ID})
	}
	for _, sub := range s.Subjects {
		if sub.MonthlyPrice.IsNegative() {
			return types.NewAppErrorWithDetails(types.ErrCodeValidationMalformed,
				"subject has a negative monthly price", nil,
				map[string]any{"student_id": s.ID, "subject_id": sub.ID, "price": sub.MonthlyPrice.String()})
		}
	}
	return nil
}
