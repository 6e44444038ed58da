package billing

import (
	"math"
	"testing"

	"github.com/darasahq/darasa/core"
)

func testCalculator() *Calculator {
	conf := &core.Config{
		Billing: core.BillingConfig{
			TaxRate:  0.18,
			Currency: "INR",
			DiscountTiers: []core.DiscountTier{
				{MinSeats: 50, Percent: 10},
				{MinSeats: 500, Percent: 30},
				{MinSeats: 100, Percent: 20},
			},
		},
	}
	return NewCalculator(conf)
}

func TestCalculator_DiscountPercentage_tierBoundaries(t *testing.T) {
	calc := testCalculator()

	tests := []struct {
		seats int
		want  int
	}{
		{0, 0},
		{1, 0},
		{49, 0},
		{50, 10},
		{99, 10},
		{100, 20},
		{499, 20},
		{500, 30},
		{501, 30},
		{10000, 30},
	}
	for _, tt := range tests {
		if got := calc.DiscountPercentage(tt.seats); got != tt.want {
			t.Errorf("DiscountPercentage(%d) = %d, want %d", tt.seats, got, tt.want)
		}
	}
}

func TestCalculator_Quote(t *testing.T) {
	calc := testCalculator()

	tests := []struct {
		name      string
		basePrice float64
		seats     int
		want      Quote
	}{
		{
			name:      "no discount",
			basePrice: 100,
			seats:     10,
			want: Quote{
				BasePrice: 100, SeatCount: 10,
				Subtotal: 1000, DiscountPercentage: 0, DiscountAmount: 0,
				TaxAmount: 180, FinalAmount: 1180, PricePerSeat: 118,
			},
		},
		{
			name:      "10% tier",
			basePrice: 100,
			seats:     60,
			want: Quote{
				BasePrice: 100, SeatCount: 60,
				Subtotal: 6000, DiscountPercentage: 10, DiscountAmount: 600,
				TaxAmount: 972, FinalAmount: 6372, PricePerSeat: 106.2,
			},
		},
		{
			name:      "30% tier",
			basePrice: 50,
			seats:     500,
			want: Quote{
				BasePrice: 50, SeatCount: 500,
				Subtotal: 25000, DiscountPercentage: 30, DiscountAmount: 7500,
				TaxAmount: 3150, FinalAmount: 20650, PricePerSeat: 41.3,
			},
		},
		{
			name:      "zero seats",
			basePrice: 100,
			seats:     0,
			want: Quote{
				BasePrice: 100, SeatCount: 0,
				Subtotal: 0, DiscountPercentage: 0, DiscountAmount: 0,
				TaxAmount: 0, FinalAmount: 0, PricePerSeat: 0,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calc.Quote(tt.basePrice, tt.seats); got != tt.want {
				t.Errorf("Quote(%v, %d) = %+v, want %+v", tt.basePrice, tt.seats, got, tt.want)
			}
		})
	}
}

func TestCalculator_Quote_deterministic(t *testing.T) {
	calc := testCalculator()
	q1 := calc.Quote(199.99, 137)
	q2 := calc.Quote(199.99, 137)
	if q1 != q2 {
		t.Errorf("identical inputs produced different quotes: %+v != %+v", q1, q2)
	}
}

func TestCalculator_Quote_invariants(t *testing.T) {
	calc := testCalculator()

	prices := []float64{0, 1, 49.5, 100, 199.99, 16100}
	seats := []int{0, 1, 49, 50, 99, 100, 250, 499, 500, 501, 10000}

	for _, p := range prices {
		for _, n := range seats {
			q := calc.Quote(p, n)

			// tax is computed on the post-discount subtotal
			wantTax := RoundMoney((q.Subtotal - q.DiscountAmount) * 0.18)
			if q.TaxAmount != wantTax {
				t.Errorf("Quote(%v, %d): TaxAmount = %v, want %v", p, n, q.TaxAmount, wantTax)
			}

			// final amount identity
			wantFinal := RoundMoney(q.Subtotal - q.DiscountAmount + q.TaxAmount)
			if q.FinalAmount != wantFinal {
				t.Errorf("Quote(%v, %d): FinalAmount = %v, want %v", p, n, q.FinalAmount, wantFinal)
			}

			// per-seat price consistency
			if n > 0 {
				if diff := math.Abs(q.PricePerSeat*float64(n) - q.FinalAmount); diff > 0.01*float64(n) {
					t.Errorf("Quote(%v, %d): PricePerSeat*n = %v, FinalAmount = %v", p, n, q.PricePerSeat*float64(n), q.FinalAmount)
				}
			} else if q.PricePerSeat != 0 || q.FinalAmount != 0 {
				t.Errorf("Quote(%v, 0): want all-zero amounts, got %+v", p, q)
			}
		}
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		part, whole, want int
	}{
		{0, 0, 0},
		{5, 0, 0},
		{0, 10, 0},
		{1, 3, 33},
		{2, 3, 67},
		{10, 10, 100},
		{25, 50, 50},
	}
	for _, tt := range tests {
		if got := Percent(tt.part, tt.whole); got != tt.want {
			t.Errorf("Percent(%d, %d) = %d, want %d", tt.part, tt.whole, got, tt.want)
		}
	}
}
