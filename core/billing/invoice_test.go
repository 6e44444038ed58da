package billing

import (
	"testing"

	"github.com/darasahq/darasa/core"
)

func TestCalculator_InvoiceLines(t *testing.T) {
	calc := testCalculator()

	lines := calc.InvoiceLines("Campus Plan", 60, 100, 10)
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}

	plan, discount, gst := lines[0], lines[1], lines[2]

	if plan.Description != "Campus Plan - 60 seats" || plan.Quantity != 60 || plan.Amount != 6000 {
		t.Errorf("plan line = %+v", plan)
	}
	if discount.Description != "Volume Discount (10%)" || discount.Amount != -600 {
		t.Errorf("discount line = %+v", discount)
	}
	if gst.Description != "GST (18%)" || gst.Amount != 972 || gst.TaxRate != 18 || gst.TaxAmount != 972 {
		t.Errorf("gst line = %+v", gst)
	}
}

func TestCalculator_InvoiceLines_noDiscount(t *testing.T) {
	calc := testCalculator()

	lines := calc.InvoiceLines("Starter", 10, 100, 0)
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2 (no discount line)", len(lines))
	}
	if lines[1].Amount != 180 {
		t.Errorf("gst line = %+v", lines[1])
	}
}

func TestCalculator_TaxRatePercent(t *testing.T) {
	tests := []struct {
		rate float64
		want int
	}{
		{0.18, 18},
		{0.29, 29}, // 0.29*100 is 28.999... in float64; must not truncate
		{0.05, 5},
		{0, 0},
	}
	for _, tt := range tests {
		calc := NewCalculator(&core.Config{Billing: core.BillingConfig{TaxRate: tt.rate}})
		if got := calc.TaxRatePercent(); got != tt.want {
			t.Errorf("TaxRatePercent() with rate %v = %d, want %d", tt.rate, got, tt.want)
		}
	}
}

func TestCalculator_ExtractInclusiveTax(t *testing.T) {
	calc := testCalculator()

	base, tax := calc.ExtractInclusiveTax(1180)
	if base != 1000 || tax != 180 {
		t.Errorf("ExtractInclusiveTax(1180) = (%v, %v), want (1000, 180)", base, tax)
	}

	base, tax = calc.ExtractInclusiveTax(0)
	if base != 0 || tax != 0 {
		t.Errorf("ExtractInclusiveTax(0) = (%v, %v), want (0, 0)", base, tax)
	}
}
