package billing

import (
	"fmt"
	"math"
)

// InvoiceLine is a single line of an invoice preview.
// Discount lines carry negative amounts.
type InvoiceLine struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
	TaxRate     int     `json:"tax_rate"`
	TaxAmount   float64 `json:"tax_amount"`
}

// InvoiceLines builds the invoice lines for a seat subscription:
// the plan line, a negative volume-discount line when a discount applies,
// and the GST line computed on the post-discount amount.
func (c *Calculator) InvoiceLines(planName string, seatCount int, pricePerSeat float64, discountPct int) []InvoiceLine {
	baseAmount := RoundMoney(pricePerSeat * float64(seatCount))
	discountAmount := RoundMoney(baseAmount * float64(discountPct) / 100)
	afterDiscount := RoundMoney(baseAmount - discountAmount)
	taxAmount := RoundMoney(afterDiscount * c.taxRate)

	lines := []InvoiceLine{
		{
			Description: fmt.Sprintf("%s - %d seats", planName, seatCount),
			Quantity:    seatCount,
			UnitPrice:   pricePerSeat,
			Amount:      baseAmount,
		},
	}
	if discountAmount > 0 {
		lines = append(lines, InvoiceLine{
			Description: fmt.Sprintf("Volume Discount (%d%%)", discountPct),
			Quantity:    1,
			UnitPrice:   -discountAmount,
			Amount:      -discountAmount,
		})
	}
	lines = append(lines, InvoiceLine{
		Description: fmt.Sprintf("GST (%d%%)", c.TaxRatePercent()),
		Quantity:    1,
		UnitPrice:   taxAmount,
		Amount:      taxAmount,
		TaxRate:     c.TaxRatePercent(),
		TaxAmount:   taxAmount,
	})
	return lines
}

// ExtractInclusiveTax splits a tax-inclusive total (e.g. an amount captured
// by a payment gateway) into its base amount and tax portion.
func (c *Calculator) ExtractInclusiveTax(amount float64) (base, tax float64) {
	tax = RoundMoney(amount * c.taxRate / (1 + c.taxRate))
	base = RoundMoney(amount - tax)
	return base, tax
}

func (c *Calculator) TaxRatePercent() int {
	// truncation would mislabel rates like 0.29 (0.29*100 is 28.999... in float64)
	return int(math.Round(c.taxRate * 100))
}
