package organization

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/billing"
)

// Subscription statuses
const (
	StatusPending     = "pending"
	StatusActive      = "active"
	StatusGracePeriod = "grace_period"
	StatusExpired     = "expired"
	StatusCancelled   = "cancelled"
)

var Statuses = []string{StatusPending, StatusActive, StatusGracePeriod, StatusExpired, StatusCancelled}

// validTransitions defines the allowed subscription status transitions.
var validTransitions = map[[2]string]bool{
	{StatusPending, StatusActive}:         true, // payment completed
	{StatusPending, StatusCancelled}:      true, // abandoned checkout
	{StatusActive, StatusGracePeriod}:     true, // expired, still usable
	{StatusActive, StatusCancelled}:       true,
	{StatusGracePeriod, StatusActive}:     true, // renewed
	{StatusGracePeriod, StatusExpired}:    true, // grace window ended
	{StatusExpired, StatusActive}:         true, // re-subscription
	{StatusCancelled, StatusActive}:       true,
}

func CanTransition(from, to string) bool {
	return validTransitions[[2]string{from, to}]
}

type Subscription struct {
	ID                 string    `json:"id" db:"id"`
	OrganizationID     string    `json:"organization_id" db:"organization_id"`
	OrganizationType   string    `json:"organization_type" db:"organization_type"` // school | college | university
	PlanName           string    `json:"plan_name" db:"plan_name"`
	Status             string    `json:"status" db:"status"`
	TotalSeats         int       `json:"total_seats" db:"total_seats"`
	AssignedSeats      int       `json:"assigned_seats" db:"assigned_seats"`
	PricePerSeat       float64   `json:"price_per_seat" db:"price_per_seat"`
	DiscountPercentage int       `json:"discount_percentage" db:"discount_percentage"`
	StartsAt           time.Time `json:"starts_at" db:"starts_at"`
	ExpiresAt          time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// CountsForSeats reports whether this subscription's seats count towards
// organization totals. Grace-period subscriptions are still usable and
// count as active.
func (s Subscription) CountsForSeats() bool {
	return s.Status == StatusActive || s.Status == StatusGracePeriod
}

func (s Subscription) AvailableSeats() int {
	return s.TotalSeats - s.AssignedSeats
}

// SeatTotals is the organization-wide seat aggregate over subscriptions.
type SeatTotals struct {
	TotalSeats     int `json:"total_seats"`
	AssignedSeats  int `json:"assigned_seats"`
	AvailableSeats int `json:"available_seats"`
	Utilization    int `json:"utilization"` // percentage
}

// ComputeSeatTotals reduces a subscription list into organization seat totals.
// Only active and grace-period subscriptions count. Empty input yields zeros.
func ComputeSeatTotals(subs []Subscription) SeatTotals {
	var totals SeatTotals
	for _, sub := range subs {
		if !sub.CountsForSeats() {
			continue
		}
		totals.TotalSeats += sub.TotalSeats
		totals.AssignedSeats += sub.AssignedSeats
	}
	totals.AvailableSeats = totals.TotalSeats - totals.AssignedSeats
	totals.Utilization = billing.Percent(totals.AssignedSeats, totals.TotalSeats)
	return totals
}

// NewSubscription contains information needed to record a completed seat purchase.
type NewSubscription struct {
	OrganizationID     string  `json:"organization_id" validate:"required,uuid4"`
	OrganizationType   string  `json:"organization_type" validate:"required,oneof=school college university"`
	PlanName           string  `json:"plan_name" validate:"required,min=3"`
	TotalSeats         int     `json:"total_seats" validate:"required,min=1,max=10000"`
	PricePerSeat       float64 `json:"price_per_seat" validate:"gte=0"`
	DiscountPercentage int     `json:"discount_percentage" validate:"gte=0,lte=100"`
	DurationDays       int     `json:"duration_days" validate:"required,min=1"`
}

func (ns *NewSubscription) Validate(validate *validator.Validate) error {
	ns.PlanName = core.CleanString(ns.PlanName)
	return validate.Struct(ns)
}
