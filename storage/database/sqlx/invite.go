package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/invite"
)

type invitationRepository struct {
	db *sqlx.DB
}

var _ invite.Repository = (*invitationRepository)(nil) // interface compliance check

func NewInvitationRepository(db *sqlx.DB) invite.Repository {
	return &invitationRepository{db: db}
}

type dbInvitation struct {
	ID             string      `db:"id"`
	OrganizationID string      `db:"organization_id"`
	PoolID         null.String `db:"pool_id"`
	Email          string      `db:"email"`
	MemberType     string      `db:"member_type"`
	Status         string      `db:"status"`
	Token          string      `db:"token"`
	InvitedBy      null.String `db:"invited_by"`
	AcceptedBy     null.String `db:"accepted_by"`
	AcceptedAt     null.Time   `db:"accepted_at"`
	ExpiresAt      time.Time   `db:"expires_at"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

func newDBInvitation(inv invite.Invitation) dbInvitation {
	return dbInvitation{
		ID:             inv.ID,
		OrganizationID: inv.OrganizationID,
		PoolID:         null.NewString(inv.PoolID, inv.PoolID != ""),
		Email:          inv.Email,
		MemberType:     inv.MemberType,
		Status:         inv.Status,
		Token:          inv.Token,
		InvitedBy:      null.NewString(inv.InvitedBy, inv.InvitedBy != ""),
		AcceptedBy:     null.NewString(inv.AcceptedBy, inv.AcceptedBy != ""),
		AcceptedAt:     null.NewTime(inv.AcceptedAt, !inv.AcceptedAt.IsZero()),
		ExpiresAt:      inv.ExpiresAt,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
}

func (di dbInvitation) toInvitation() invite.Invitation {
	return invite.Invitation{
		ID:             di.ID,
		OrganizationID: di.OrganizationID,
		PoolID:         di.PoolID.String,
		Email:          di.Email,
		MemberType:     di.MemberType,
		Status:         di.Status,
		Token:          di.Token,
		InvitedBy:      di.InvitedBy.String,
		AcceptedBy:     di.AcceptedBy.String,
		AcceptedAt:     di.AcceptedAt.Time,
		ExpiresAt:      di.ExpiresAt,
		CreatedAt:      di.CreatedAt,
		UpdatedAt:      di.UpdatedAt,
	}
}

const invitationColumns = `id, organization_id, pool_id, email, member_type, status, token,
	invited_by, accepted_by, accepted_at, expires_at, created_at, updated_at`

func (repo *invitationRepository) CreateInvitation(ctx context.Context, inv invite.Invitation) (invite.Invitation, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO organization_invitations (`+invitationColumns+`)
		VALUES (:id, :organization_id, :pool_id, :email, :member_type, :status, :token,
			:invited_by, :accepted_by, :accepted_at, :expires_at, :created_at, :updated_at)`,
		newDBInvitation(inv),
	)
	if err != nil {
		return invite.Invitation{}, errors.Wrap(err, "creating invitation")
	}
	return inv, nil
}

func (repo *invitationRepository) GetInvitation(ctx context.Context, id string) (invite.Invitation, error) {
	return repo.getInvitation(ctx, `SELECT `+invitationColumns+` FROM organization_invitations WHERE id = $1`, id)
}

func (repo *invitationRepository) GetInvitationByToken(ctx context.Context, token string) (invite.Invitation, error) {
	return repo.getInvitation(ctx, `SELECT `+invitationColumns+` FROM organization_invitations WHERE token = $1`, token)
}

func (repo *invitationRepository) GetPendingInvitation(ctx context.Context, orgID, email string) (invite.Invitation, error) {
	return repo.getInvitation(ctx, `
		SELECT `+invitationColumns+` FROM organization_invitations
		WHERE organization_id = $1 AND email = $2 AND status = $3`,
		orgID, email, invite.StatusPending,
	)
}

func (repo *invitationRepository) getInvitation(ctx context.Context, query string, args ...interface{}) (invite.Invitation, error) {
	var di dbInvitation
	if err := repo.db.GetContext(ctx, &di, query, args...); err != nil {
		return invite.Invitation{}, trapNoRowsErr(err, invite.ErrNotFound, "getting invitation")
	}
	return di.toInvitation(), nil
}

func (repo *invitationRepository) QueryOrgInvitations(ctx context.Context, orgID string, ordering ...core.DBOrdering) ([]invite.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM organization_invitations WHERE organization_id = $1` +
		orderClause(ordering, "created_at DESC")

	var dis []dbInvitation
	if err := repo.db.SelectContext(ctx, &dis, query, orgID); err != nil {
		return nil, errors.Wrap(err, "querying invitations")
	}
	invs := make([]invite.Invitation, 0, len(dis))
	for _, di := range dis {
		invs = append(invs, di.toInvitation())
	}
	return invs, nil
}

func (repo *invitationRepository) UpdateInvitation(ctx context.Context, inv invite.Invitation) (invite.Invitation, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE organization_invitations SET
			status = :status, token = :token, accepted_by = :accepted_by, accepted_at = :accepted_at,
			expires_at = :expires_at, updated_at = :updated_at
		WHERE id = :id`,
		newDBInvitation(inv),
	)
	if err != nil {
		return invite.Invitation{}, errors.Wrap(err, "updating invitation")
	}
	if n, err := res.RowsAffected(); err != nil {
		return invite.Invitation{}, errors.Wrap(err, "updating invitation")
	} else if n == 0 {
		return invite.Invitation{}, invite.ErrNotFound
	}
	return inv, nil
}

func (repo *invitationRepository) ExpireOldInvitations(ctx context.Context, now time.Time) (int, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE organization_invitations SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at < $2`,
		invite.StatusExpired, now, invite.StatusPending,
	)
	if err != nil {
		return 0, errors.Wrap(err, "expiring invitations")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "expiring invitations")
	}
	return int(n), nil
}
