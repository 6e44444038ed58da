package billing

import (
	"math"
	"sort"

	"github.com/darasahq/darasa/core"
)

// Quote is a full pricing breakdown for a seat purchase.
// It is a pure function of (BasePrice, SeatCount) given a Calculator's tiers and tax rate.
type Quote struct {
	BasePrice          float64 `json:"base_price"`
	SeatCount          int     `json:"seat_count"`
	Subtotal           float64 `json:"subtotal"`
	DiscountPercentage int     `json:"discount_percentage"`
	DiscountAmount     float64 `json:"discount_amount"`
	TaxAmount          float64 `json:"tax_amount"`
	FinalAmount        float64 `json:"final_amount"`
	PricePerSeat       float64 `json:"price_per_seat"`
}

// Calculator computes volume-discounted, taxed seat pricing.
// Tiers and tax rate come from configuration; defaults are
// 50/100/500 seats => 10/20/30% and 18% GST.
type Calculator struct {
	tiers   []core.DiscountTier
	taxRate float64
}

func NewCalculator(conf *core.Config) *Calculator {
	tiers := make([]core.DiscountTier, len(conf.Billing.DiscountTiers))
	copy(tiers, conf.Billing.DiscountTiers)
	// evaluated high to low; tiers are exclusive
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinSeats > tiers[j].MinSeats })
	return &Calculator{
		tiers:   tiers,
		taxRate: conf.Billing.TaxRate,
	}
}

// DiscountPercentage returns the volume discount tier for the given seat count.
func (c *Calculator) DiscountPercentage(seatCount int) int {
	for _, tier := range c.tiers {
		if seatCount >= tier.MinSeats {
			return tier.Percent
		}
	}
	return 0
}

// Quote computes the pricing breakdown for seatCount seats at basePrice per seat.
// Tax applies to the post-discount subtotal. A zero seat count yields zero amounts;
// PricePerSeat is defined as 0 to avoid a division by zero.
func (c *Calculator) Quote(basePrice float64, seatCount int) Quote {
	subtotal := RoundMoney(basePrice * float64(seatCount))
	discountPct := c.DiscountPercentage(seatCount)
	discountAmount := RoundMoney(subtotal * float64(discountPct) / 100)
	taxAmount := RoundMoney((subtotal - discountAmount) * c.taxRate)
	finalAmount := RoundMoney(subtotal - discountAmount + taxAmount)

	var pricePerSeat float64
	if seatCount > 0 {
		pricePerSeat = RoundMoney(finalAmount / float64(seatCount))
	}

	return Quote{
		BasePrice:          basePrice,
		SeatCount:          seatCount,
		Subtotal:           subtotal,
		DiscountPercentage: discountPct,
		DiscountAmount:     discountAmount,
		TaxAmount:          taxAmount,
		FinalAmount:        finalAmount,
		PricePerSeat:       pricePerSeat,
	}
}

// RoundMoney rounds a monetary amount to 2 decimal places.
// All currency rounding in the app goes through here so every caller
// observes identical behavior.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// Percent returns round(part/whole*100), or 0 when whole is 0.
func Percent(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}
