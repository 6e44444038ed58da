package invite

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/darasahq/darasa/core"
)

// Invitation statuses
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// Invitation invites an email address to join an organization as a member.
// Token is an opaque single-use credential embedded in the invitation link.
type Invitation struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	PoolID         string    `json:"pool_id,omitempty" db:"pool_id"` // optional; pins seat assignment to a pool
	Email          string    `json:"email" db:"email"`
	MemberType     string    `json:"member_type" db:"member_type"`
	Status         string    `json:"status" db:"status"`
	Token          string    `json:"-" db:"token"`
	InvitedBy      string    `json:"invited_by" db:"invited_by"`
	AcceptedBy     string    `json:"accepted_by,omitempty" db:"accepted_by"`
	AcceptedAt     time.Time `json:"accepted_at,omitempty" db:"accepted_at"`
	ExpiresAt      time.Time `json:"expires_at" db:"expires_at"` // UTC
	CreatedAt      time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"` // UTC
}

func (inv Invitation) IsPending() bool {
	return inv.Status == StatusPending
}

func (inv Invitation) IsExpired(now time.Time) bool {
	return now.After(inv.ExpiresAt)
}

// NewInvitation contains information needed to invite a member.
type NewInvitation struct {
	OrganizationID string `json:"organization_id" validate:"required,uuid4"`
	PoolID         string `json:"pool_id" validate:"omitempty,uuid4"`
	Email          string `json:"email" validate:"required,email"`
	MemberType     string `json:"member_type" validate:"required,oneof=educator student"`
}

func (ni *NewInvitation) Validate(validate *validator.Validate) error {
	ni.Email = core.CleanString(ni.Email, true /* lower */)
	return validate.Struct(ni)
}

// BulkInvitation invites several email addresses with the same settings.
type BulkInvitation struct {
	OrganizationID string   `json:"organization_id" validate:"required,uuid4"`
	PoolID         string   `json:"pool_id" validate:"omitempty,uuid4"`
	Emails         []string `json:"emails" validate:"required,min=1,dive,email"`
	MemberType     string   `json:"member_type" validate:"required,oneof=educator student"`
}

func (bi *BulkInvitation) Validate(validate *validator.Validate) error {
	for i, email := range bi.Emails {
		bi.Emails[i] = core.CleanString(email, true /* lower */)
	}
	return validate.Struct(bi)
}

// BulkInvitationResult reports per-email outcomes of a bulk invitation.
type BulkInvitationResult struct {
	Successful []Invitation            `json:"successful"`
	Failed     []BulkInvitationFailure `json:"failed"`
}

type BulkInvitationFailure struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// AcceptInvitation contains information needed to redeem an invitation.
type AcceptInvitation struct {
	Token  string `json:"token" validate:"required"`
	UserID string `json:"user_id" validate:"required,uuid4"`
}

func (ai AcceptInvitation) Validate(validate *validator.Validate) error {
	return validate.Struct(ai)
}

// Stats aggregates an organization's invitations by status.
type Stats struct {
	Pending   int `json:"pending"`
	Accepted  int `json:"accepted"`
	Cancelled int `json:"cancelled"`
	Expired   int `json:"expired"`
}

// ComputeStats reduces invitations into per-status counts.
func ComputeStats(invs []Invitation) Stats {
	var stats Stats
	for _, inv := range invs {
		switch inv.Status {
		case StatusPending:
			stats.Pending++
		case StatusAccepted:
			stats.Accepted++
		case StatusCancelled:
			stats.Cancelled++
		case StatusExpired:
			stats.Expired++
		}
	}
	return stats
}

// makeToken generates an opaque url-safe invitation token.
func makeToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand failure is unrecoverable
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
