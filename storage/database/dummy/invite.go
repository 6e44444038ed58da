package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/invite"
)

type invitationRepository struct {
	db *DB
}

var _ invite.Repository = (*invitationRepository)(nil) // interface compliance check

func NewInvitationRepository(db *DB) invite.Repository {
	return &invitationRepository{db: db}
}

func (repo *invitationRepository) CreateInvitation(ctx context.Context, inv invite.Invitation) (invite.Invitation, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.invitations[inv.ID] = &inv
	return inv, nil
}

func (repo *invitationRepository) GetInvitation(ctx context.Context, id string) (invite.Invitation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if inv, ok := repo.db.invitations[id]; ok {
		return *inv, nil
	}
	return invite.Invitation{}, invite.ErrNotFound
}

func (repo *invitationRepository) GetInvitationByToken(ctx context.Context, token string) (invite.Invitation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, inv := range repo.db.invitations {
		if inv.Token == token {
			return *inv, nil
		}
	}
	return invite.Invitation{}, invite.ErrNotFound
}

func (repo *invitationRepository) GetPendingInvitation(ctx context.Context, orgID, email string) (invite.Invitation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, inv := range repo.db.invitations {
		if inv.OrganizationID == orgID && inv.Email == email && inv.Status == invite.StatusPending {
			return *inv, nil
		}
	}
	return invite.Invitation{}, invite.ErrNotFound
}

func (repo *invitationRepository) QueryOrgInvitations(ctx context.Context, orgID string, ordering ...core.DBOrdering) ([]invite.Invitation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	invs := make([]invite.Invitation, 0)
	for _, inv := range repo.db.invitations {
		if inv.OrganizationID == orgID {
			invs = append(invs, *inv)
		}
	}
	sort.Slice(invs, func(i, j int) bool { return invs[i].CreatedAt.After(invs[j].CreatedAt) })
	return invs, nil
}

func (repo *invitationRepository) UpdateInvitation(ctx context.Context, inv invite.Invitation) (invite.Invitation, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.invitations[inv.ID]; !ok {
		return invite.Invitation{}, invite.ErrNotFound
	}
	repo.db.invitations[inv.ID] = &inv
	return inv, nil
}

func (repo *invitationRepository) ExpireOldInvitations(ctx context.Context, now time.Time) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var n int
	for _, inv := range repo.db.invitations {
		if inv.Status == invite.StatusPending && inv.ExpiresAt.Before(now) {
			inv.Status = invite.StatusExpired
			inv.UpdatedAt = now
			n++
		}
	}
	return n, nil
}
