package billing

import (
	"github.com/shopspring/decimal"

	"tuition/internal/types"
)

// PaymentStatus classifies an obligation by how much of it has been settled.
type PaymentStatus string

const (
	StatusPaid    PaymentStatus = "paid"
	StatusPartial PaymentStatus = "partial"
	StatusUnpaid  PaymentStatus = "unpaid"
)

// StatusOf reports whether ob is fully paid, underpaid or untouched.
// A zero-amount obligation counts as paid.
func StatusOf(ob types.Obligation) PaymentStatus {
	switch {
	case !ob.AmountDue.IsPositive():
		return StatusPaid
	case ob.AmountPaid.IsPositive():
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

// StatementLine is one obligation in a Statement.
type StatementLine struct {
	Obligation types.Obligation
	Status     PaymentStatus
}

// Statement is a student's billing history with its outstanding balance.
type Statement struct {
	StudentID   int64
	Lines       []StatementLine
	Outstanding decimal.Decimal
	Counts      map[PaymentStatus]int
}

// BuildStatement classifies every obligation of s, newest first, and sums the
// positive amounts still due.
func BuildStatement(s *types.Student) Statement {
	st := Statement{
		StudentID:   s.ID,
		Lines:       make([]StatementLine, 0, len(s.Obligations)),
		Outstanding: decimal.Zero,
		Counts:      make(map[PaymentStatus]int, 3),
	}
	for _, ob := range s.Obligations {
		status := StatusOf(ob)
		st.Lines = append(st.Lines, StatementLine{Obligation: ob, Status: status})
		st.Counts[status]++
		if ob.AmountDue.IsPositive() {
			st.Outstanding = st.Outstanding.Add(ob.AmountDue)
		}
	}
	return st
}
