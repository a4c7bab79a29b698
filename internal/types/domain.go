// Package types holds the domain model and error taxonomy shared by the
// billing engine, its storage layer and its entry points.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Subject is a course a student can enroll in, billed monthly.
type Subject struct {
	ID           int64
	Name         string
	MonthlyPrice decimal.Decimal
}

// Student is the billing view of an enrolled student. CenterID and LevelID are
// carried for callers; the engine does not use them.
type Student struct {
	ID               int64
	RegistrationDate time.Time
	CenterID         int64
	LevelID          int64
	Subjects         []Subject

	// Obligations are ordered by creation time, most recent first.
	Obligations []Obligation
}

// Obligation is one billing period's tuition charge for a student (the
// "payment" record).
//
// TotalAmount holds the charged amount net of discount. AmountDue equals
// TotalAmount minus AmountPaid whenever the engine last wrote the record.
type Obligation struct {
	ID          string
	StudentID   int64
	PeriodLabel string
	TotalAmount decimal.Decimal
	AmountPaid  decimal.Decimal
	AmountDue   decimal.Decimal
	Discount    decimal.Decimal
	DueDate     time.Time
	CreatedAt   time.Time
}

// ObligationAmounts is the set of fields the enrollment-change hook rewrites.
type ObligationAmounts struct {
	TotalAmount decimal.Decimal
	Discount    decimal.Decimal
	AmountDue   decimal.Decimal
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
