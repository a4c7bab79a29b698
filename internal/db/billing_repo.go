package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"tuition/internal/billing"
	"tuition/internal/types"
)

var _ billing.Store = (*BillingRepository)(nil)

// BillingRepository reads enrollment snapshots and payment history and writes
// obligations. It implements billing.Store.
//
// Money columns are NUMERIC. They are read as text and parsed with
// shopspring/decimal, and written as decimal strings cast back to NUMERIC, so
// no value passes through float64.
type BillingRepository struct {
	db DBTX
}

// NewBillingRepository creates a new BillingRepository backed by the given
// database connection (pool or transaction).
func NewBillingRepository(db DBTX) *BillingRepository {
	return &BillingRepository{db: db}
}

const (
	studentSelect = `SELECT id, registration_date, COALESCE(center_id, 0), COALESCE(level_id, 0)
		 FROM students`

	subjectSelect = `SELECT ss.student_id, s.id, s.name, s.monthly_price::text
		 FROM student_subjects ss
		 JOIN subjects s ON s.id = ss.subject_id`

	obligationSelect = `SELECT id::text, student_id, period_label,
		        total_amount::text, amount_paid::text, amount_due::text, discount::text,
		        due_date, created_at
		 FROM payments`

	// Most recent first; due_date breaks ties between rows created together.
	obligationOrder = ` ORDER BY student_id, created_at DESC, due_date DESC NULLS LAST`
)

// ListStudentsWithEnrollmentAndPayments loads the full population in three
// queries and assembles each student's subjects and obligations in memory.
func (r *BillingRepository) ListStudentsWithEnrollmentAndPayments(ctx context.Context) ([]types.Student, error) {
	students, err := r.queryStudents(ctx, studentSelect+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	if len(students) == 0 {
		return students, nil
	}

	index := make(map[int64]int, len(students))
	for i := range students {
		index[students[i].ID] = i
	}

	subjects, err := r.querySubjects(ctx, subjectSelect+` ORDER BY ss.student_id, s.id`)
	if err != nil {
		return nil, err
	}
	for studentID, list := range subjects {
		if i, ok := index[studentID]; ok {
			students[i].Subjects = list
		}
	}

	obligations, err := r.queryObligations(ctx, obligationSelect+obligationOrder)
	if err != nil {
		return nil, err
	}
	for _, ob := range obligations {
		if i, ok := index[ob.StudentID]; ok {
			students[i].Obligations = append(students[i].Obligations, ob)
		}
	}

	return students, nil
}

// GetStudent returns one student with subjects and obligations. Returns
// not_found_student when no such student exists.
func (r *BillingRepository) GetStudent(ctx context.Context, id int64) (*types.Student, error) {
	students, err := r.queryStudents(ctx, studentSelect+` WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(students) == 0 {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeNotFoundStudent,
			fmt.Sprintf("student %d not found", id), nil,
			map[string]any{"student_id": id})
	}
	s := &students[0]

	subjects, err := r.querySubjects(ctx, subjectSelect+` WHERE ss.student_id = $1 ORDER BY ss.student_id, s.id`, id)
	if err != nil {
		return nil, err
	}
	s.Subjects = subjects[id]

	s.Obligations, err = r.ListObligations(ctx, id)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListObligations returns a student's obligations, most recent first.
func (r *BillingRepository) ListObligations(ctx context.Context, studentID int64) ([]types.Obligation, error) {
	return r.queryObligations(ctx, obligationSelect+` WHERE student_id = $1`+obligationOrder, studentID)
}

// CreateObligation inserts ob and returns its id. A second obligation with the
// same (student_id, period_label) returns conflict_duplicate_period; a missing
// student returns not_found_student.
func (r *BillingRepository) CreateObligation(ctx context.Context, ob *types.Obligation) (string, error) {
	var id string
	err := r.db.QueryRow(ctx,
		`INSERT INTO payments
		 (id, student_id, period_label, total_amount, amount_paid, amount_due, discount, due_date, created_at)
		 VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8, COALESCE($9, NOW()))
		 RETURNING id::text`,
		ob.ID,
		ob.StudentID,
		ob.PeriodLabel,
		ob.TotalAmount.String(),
		ob.AmountPaid.String(),
		ob.AmountDue.String(),
		ob.Discount.String(),
		ob.DueDate,
		nilIfZeroTime(ob.CreatedAt),
	).Scan(&id)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return "", types.NewAppErrorWithDetails(types.ErrCodeConflictDuplicatePeriod,
				"obligation already exists for period", err,
				map[string]any{"student_id": ob.StudentID, "period": ob.PeriodLabel})
		case isForeignKeyViolation(err):
			return "", types.NewAppErrorWithDetails(types.ErrCodeNotFoundStudent,
				fmt.Sprintf("student %d not found", ob.StudentID), err,
				map[string]any{"student_id": ob.StudentID})
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to create obligation", err)
	}
	return id, nil
}

// UpdateObligationAmounts rewrites total, discount and amount due. The amount
// paid is never touched.
func (r *BillingRepository) UpdateObligationAmounts(ctx context.Context, id string, amounts types.ObligationAmounts) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE payments
		 SET total_amount = $2::numeric, discount = $3::numeric, amount_due = $4::numeric
		 WHERE id = $1`,
		id,
		amounts.TotalAmount.String(),
		amounts.Discount.String(),
		amounts.AmountDue.String(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update obligation amounts", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppErrorWithDetails(types.ErrCodeNotFoundObligation,
			"obligation not found", nil,
			map[string]any{"obligation_id": id})
	}
	return nil
}

func (r *BillingRepository) queryStudents(ctx context.Context, sql string, args ...any) ([]types.Student, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query students", err)
	}
	defer rows.Close()

	students := []types.Student{}
	for rows.Next() {
		var (
			s            types.Student
			registration *time.Time
		)
		if err := rows.Scan(&s.ID, &registration, &s.CenterID, &s.LevelID); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan student", err)
		}
		// A NULL registration date stays zero and is rejected per student.
		if registration != nil {
			s.RegistrationDate = types.DateOf(*registration)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating students", err)
	}
	return students, nil
}

// querySubjects returns subjects grouped by student id.
func (r *BillingRepository) querySubjects(ctx context.Context, sql string, args ...any) (map[int64][]types.Subject, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query enrolled subjects", err)
	}
	defer rows.Close()

	result := make(map[int64][]types.Subject)
	for rows.Next() {
		var (
			studentID int64
			sub       types.Subject
			price     string
		)
		if err := rows.Scan(&studentID, &sub.ID, &sub.Name, &price); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan enrolled subject", err)
		}
		sub.MonthlyPrice, err = decimal.NewFromString(price)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB,
				fmt.Sprintf("invalid monthly price %q for subject %d", price, sub.ID), err)
		}
		result[studentID] = append(result[studentID], sub)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating enrolled subjects", err)
	}
	return result, nil
}

func (r *BillingRepository) queryObligations(ctx context.Context, sql string, args ...any) ([]types.Obligation, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query obligations", err)
	}
	defer rows.Close()

	obligations := []types.Obligation{}
	for rows.Next() {
		ob, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		obligations = append(obligations, ob)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating obligations", err)
	}
	return obligations, nil
}

func scanObligation(row pgx.Row) (types.Obligation, error) {
	var (
		ob                         types.Obligation
		total, paid, due, discount string
		dueDate                    *time.Time
	)
	if err := row.Scan(
		&ob.ID,
		&ob.StudentID,
		&ob.PeriodLabel,
		&total,
		&paid,
		&due,
		&discount,
		&dueDate,
		&ob.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ob, types.NewAppError(types.ErrCodeNotFoundObligation, "obligation not found", err)
		}
		return ob, types.NewAppError(types.ErrCodeInternalDB, "failed to scan obligation", err)
	}

	amounts := []struct {
		raw  string
		dest *decimal.Decimal
	}{
		{total, &ob.TotalAmount},
		{paid, &ob.AmountPaid},
		{due, &ob.AmountDue},
		{discount, &ob.Discount},
	}
	for _, a := range amounts {
		d, err := decimal.NewFromString(a.raw)
		if err != nil {
			return ob, types.NewAppError(types.ErrCodeInternalDB,
				fmt.Sprintf("invalid amount %q on obligation %s", a.raw, ob.ID), err)
		}
		*a.dest = d
	}

	// A NULL due date stays zero; the resolver reports it as malformed.
	if dueDate != nil {
		ob.DueDate = types.DateOf(*dueDate)
	}
	return ob, nil
}

// nilIfZeroTime returns nil if the time is zero, otherwise returns a pointer
// to the time. Used to let the DB default (NOW()) apply when no time is set.
func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
