package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"tuition/internal/types"
)

func TestCalculateCharge(t *testing.T) {
	tests := []struct {
		name     string
		subjects []types.Subject
		total    string
		discount string
		final    string
	}{
		{
			name:     "no subjects",
			subjects: nil,
			total:    "0",
			discount: "0",
			final:    "0",
		},
		{
			name:     "single subject has no discount",
			subjects: []types.Subject{subject(1, 100)},
			total:    "100",
			discount: "0",
			final:    "100",
		},
		{
			name:     "two subjects",
			subjects: []types.Subject{subject(1, 100), subject(2, 80)},
			total:    "180",
			discount: "100",
			final:    "80",
		},
		{
			name:     "three subjects",
			subjects: []types.Subject{subject(1, 100), subject(2, 80), subject(3, 60)},
			total:    "240",
			discount: "150",
			final:    "90",
		},
		{
			name:     "discount larger than total is not clamped",
			subjects: []types.Subject{subject(1, 10), subject(2, 20)},
			total:    "30",
			discount: "100",
			final:    "-70",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := CalculateCharge(tt.subjects)
			assertDecimal(t, tt.total, c.Total, "total")
			assertDecimal(t, tt.discount, c.Discount, "discount")
			assertDecimal(t, tt.final, c.Final, "final")
		})
	}
}

func TestCalculateCharge_DiscountShape(t *testing.T) {
	for n := 1; n <= 8; n++ {
		subjects := make([]types.Subject, n)
		for i := range subjects {
			subjects[i] = subject(int64(i+1), 75)
		}

		c := CalculateCharge(subjects)

		want := decimal.Zero
		if n > 1 {
			want = decimal.NewFromInt(int64(50 * n))
		}
		assert.Truef(t, want.Equal(c.Discount), "n=%d: discount %s", n, c.Discount)
		assert.Truef(t, c.Total.Sub(c.Discount).Equal(c.Final), "n=%d: final %s", n, c.Final)
	}
}

func TestCalculateCharge_FractionalPrices(t *testing.T) {
	subjects := []types.Subject{
		{ID: 1, MonthlyPrice: decimal.RequireFromString("99.99")},
		{ID: 2, MonthlyPrice: decimal.RequireFromString("0.02")},
	}

	c := CalculateCharge(subjects)

	assertDecimal(t, "100.01", c.Total)
	assertDecimal(t, "0.01", c.Final)
}
