// Package billing implements the recurring tuition billing-cycle engine: the
// charge calculator, the cycle state resolver, the per-student reconciler and
// the enrollment-change hooks.
//
// The package owns no storage. All reads and writes go through the Store
// interface, which the caller constructs and closes.
package billing

import (
	"github.com/shopspring/decimal"

	"tuition/internal/types"
)

// DiscountPerSubject is the flat discount applied per enrolled subject once a
// student takes two or more subjects.
var DiscountPerSubject = decimal.NewFromInt(50)

// Charge is the monthly amount owed for a subject set.
type Charge struct {
	Total    decimal.Decimal // sum of monthly prices
	Discount decimal.Decimal
	Final    decimal.Decimal // Total - Discount, never clamped
}

// CalculateCharge maps a subject set to its monthly charge.
//
// One subject carries no discount; n >= 2 subjects carry 50 * n. An empty set
// yields an all-zero charge, since enrollment edits may transiently clear
// every subject. The result is not clamped at zero.
func CalculateCharge(subjects []types.Subject) Charge {
	total := decimal.Zero
	for _, s := range subjects {
		total = total.Add(s.MonthlyPrice)
	}

	discount := decimal.Zero
	if len(subjects) > 1 {
		discount = DiscountPerSubject.Mul(decimal.NewFromInt(int64(len(subjects))))
	}

	return Charge{
		Total:    total,
		Discount: discount,
		Final:    total.Sub(discount),
	}
}
