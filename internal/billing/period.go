package billing

import (
	"fmt"
	"time"
)

// PeriodKey selects how a due date is turned into a period label, the
// de-duplication key for obligations.
type PeriodKey string

const (
	// PeriodKeyMonth labels a period by English month name ("March").
	// Two obligations twelve months apart share a label.
	PeriodKeyMonth PeriodKey = "month"

	// PeriodKeyYearMonth labels a period as "2024-03".
	PeriodKeyYearMonth PeriodKey = "year_month"
)

// ParsePeriodKey validates a configured key. The empty string selects
// PeriodKeyMonth.
func ParsePeriodKey(s string) (PeriodKey, error) {
	switch PeriodKey(s) {
	case "", PeriodKeyMonth:
		return PeriodKeyMonth, nil
	case PeriodKeyYearMonth:
		return PeriodKeyYearMonth, nil
	}
	return "", fmt.Errorf("unknown period key %q (want %q or %q)", s, PeriodKeyMonth, PeriodKeyYearMonth)
}

// Label returns the period label for a due date.
func (k PeriodKey) Label(due time.Time) string {
	u := due.UTC()
	if k == PeriodKeyYearMonth {
		return u.Format("2006-01")
	}
	return u.Month().String()
}
