package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/organization"
)

type subscriptionRepository struct {
	db *DB
}

var _ organization.Repository = (*subscriptionRepository)(nil) // interface compliance check

func NewSubscriptionRepository(db *DB) organization.Repository {
	return &subscriptionRepository{db: db}
}

// querySubscriptions must be called with the db lock held.
func (repo *subscriptionRepository) querySubscriptions(orgID string) []organization.Subscription {
	subs := make([]organization.Subscription, 0)
	for _, sub := range repo.db.subscriptions {
		if sub.OrganizationID == orgID {
			subs = append(subs, *sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.After(subs[j].CreatedAt) })
	return subs
}

func (repo *subscriptionRepository) CreateSubscription(ctx context.Context, sub organization.Subscription) (organization.Subscription, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.subscriptions[sub.ID] = &sub
	return sub, nil
}

func (repo *subscriptionRepository) GetSubscription(ctx context.Context, id string) (organization.Subscription, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sub, ok := repo.db.subscriptions[id]; ok {
		return *sub, nil
	}
	return organization.Subscription{}, organization.ErrNotFound
}

func (repo *subscriptionRepository) QuerySubscriptions(ctx context.Context, orgID string, ordering ...core.DBOrdering) ([]organization.Subscription, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.querySubscriptions(orgID), nil
}

func (repo *subscriptionRepository) UpdateSubscriptionStatus(ctx context.Context, id, status string) (organization.Subscription, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sub, ok := repo.db.subscriptions[id]
	if !ok {
		return organization.Subscription{}, organization.ErrNotFound
	}
	sub.Status = status
	sub.UpdatedAt = time.Now().UTC()
	return *sub, nil
}

func (repo *subscriptionRepository) ExpireGraceSubscriptions(ctx context.Context, cutoff time.Time) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var n int
	now := time.Now().UTC()
	for _, sub := range repo.db.subscriptions {
		if sub.Status == organization.StatusGracePeriod && sub.ExpiresAt.Before(cutoff) {
			sub.Status = organization.StatusExpired
			sub.UpdatedAt = now
			n++
		}
	}
	return n, nil
}
