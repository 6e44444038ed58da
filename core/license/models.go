package license

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/billing"
	"github.com/darasahq/darasa/core/organization"
)

// Member types a pool may be scoped to.
const (
	MemberTypeEducator = "educator"
	MemberTypeStudent  = "student"
)

// Assignment statuses
const (
	AssignmentActive  = "active"
	AssignmentRevoked = "revoked"
	AssignmentExpired = "expired"
)

// Pool is a named sub-allocation of an organization's purchased seats.
// Version is an optimistic-concurrency stamp: every write bumps it, and
// writers must present the version they read or the write is rejected.
type Pool struct {
	ID             string    `json:"id" db:"id"`
	SubscriptionID string    `json:"subscription_id" db:"subscription_id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	MemberType     string    `json:"member_type" db:"member_type"`
	AllocatedSeats int       `json:"allocated_seats" db:"allocated_seats"`
	AssignedSeats  int       `json:"assigned_seats" db:"assigned_seats"`
	AutoAssign     bool      `json:"auto_assign" db:"auto_assign"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	Version        int       `json:"version" db:"version"`
	CreatedBy      string    `json:"created_by" db:"created_by"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"` // UTC
}

func (p Pool) AvailableSeats() int {
	return p.AllocatedSeats - p.AssignedSeats
}

// Assignment is one seat granted to one member from a pool.
type Assignment struct {
	ID              string    `json:"id" db:"id"`
	PoolID          string    `json:"pool_id" db:"pool_id"`
	SubscriptionID  string    `json:"subscription_id" db:"subscription_id"`
	UserID          string    `json:"user_id" db:"user_id"`
	MemberType      string    `json:"member_type" db:"member_type"`
	Status          string    `json:"status" db:"status"`
	AssignedBy      string    `json:"assigned_by" db:"assigned_by"`
	AssignedAt      time.Time `json:"assigned_at" db:"assigned_at"` // UTC
	RevokedBy       string    `json:"revoked_by,omitempty" db:"revoked_by"`
	RevokedAt       time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	RevocationReason string   `json:"revocation_reason,omitempty" db:"revocation_reason"`
	TransferredFrom string    `json:"transferred_from,omitempty" db:"transferred_from"`
	TransferredTo   string    `json:"transferred_to,omitempty" db:"transferred_to"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// SeatUsage is the organization-wide seat picture joining subscriptions and pools.
type SeatUsage struct {
	TotalSeats       int `json:"total_seats"`
	AssignedSeats    int `json:"assigned_seats"`
	AvailableSeats   int `json:"available_seats"`
	UnallocatedSeats int `json:"unallocated_seats"` // seats not yet sub-allocated to any pool
	Utilization      int `json:"utilization"`       // percentage
}

// ComputeSeatUsage reduces subscriptions and pools into the org seat picture.
// Only active and grace-period subscriptions count. Empty inputs yield zeros.
func ComputeSeatUsage(subs []organization.Subscription, pools []Pool) SeatUsage {
	totals := organization.ComputeSeatTotals(subs)

	var pooledAvailable int
	for _, p := range pools {
		pooledAvailable += p.AvailableSeats()
	}

	return SeatUsage{
		TotalSeats:       totals.TotalSeats,
		AssignedSeats:    totals.AssignedSeats,
		AvailableSeats:   totals.AvailableSeats,
		UnallocatedSeats: totals.AvailableSeats - pooledAvailable,
		Utilization:      billing.Percent(totals.AssignedSeats, totals.TotalSeats),
	}
}

// NewPool contains information needed to create a license pool.
type NewPool struct {
	SubscriptionID string `json:"subscription_id" validate:"required,uuid4"`
	OrganizationID string `json:"organization_id" validate:"required,uuid4"`
	Name           string `json:"name" validate:"required,min=3,alphanum_"`
	MemberType     string `json:"member_type" validate:"required,oneof=educator student"`
	AllocatedSeats int    `json:"allocated_seats" validate:"required,min=1,max=10000"`
	AutoAssign     bool   `json:"auto_assign"`
}

func (np *NewPool) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	return validate.Struct(np)
}

// UpdatePool defines what may be modified on an existing pool.
// Version must be the version the client last read.
type UpdatePool struct {
	Name           string `json:"name" validate:"omitempty,min=3,alphanum_"`
	AllocatedSeats *int   `json:"allocated_seats" validate:"omitempty,min=1,max=10000"`
	AutoAssign     *bool  `json:"auto_assign"`
	IsActive       *bool  `json:"is_active"`
	Version        int    `json:"version" validate:"required,min=1"`
}

func (up *UpdatePool) Validate(validate *validator.Validate) error {
	up.Name = core.CleanString(up.Name)
	return validate.Struct(up)
}

// CheckSeatBounds validates a reallocation against the pool's current state:
// the new allocation may not drop below already-assigned seats nor grow by
// more than the organization's unallocated seats. Repositories re-check the
// same bounds inside the updating transaction; this pre-check only exists to
// produce friendly field errors.
func (up UpdatePool) CheckSeatBounds(p Pool, maxAdditionalSeats int) error {
	if up.AllocatedSeats == nil {
		return nil
	}
	n := *up.AllocatedSeats
	if n < p.AssignedSeats {
		return core.NewValidationError(nil, core.FieldError{
			Field: "allocated_seats",
			Error: fmt.Sprintf("cannot reduce allocation below assigned seats (%d)", p.AssignedSeats),
		})
	}
	if max := p.AllocatedSeats + maxAdditionalSeats; n > max {
		return core.NewValidationError(nil, core.FieldError{
			Field: "allocated_seats",
			Error: fmt.Sprintf("allocation exceeds available seats (max %d)", max),
		})
	}
	return nil
}

// NewAssignment contains information needed to assign a seat to a member.
type NewAssignment struct {
	UserID string `json:"user_id" validate:"required,uuid4"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	return validate.Struct(na)
}

// BulkAssignmentResult reports per-user outcomes of a bulk assignment.
type BulkAssignmentResult struct {
	Successful []Assignment            `json:"successful"`
	Failed     []BulkAssignmentFailure `json:"failed"`
}

type BulkAssignmentFailure struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}
