package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/organization"
)

type subscriptionRepository struct {
	db *sqlx.DB
}

var _ organization.Repository = (*subscriptionRepository)(nil) // interface compliance check

func NewSubscriptionRepository(db *sqlx.DB) organization.Repository {
	return &subscriptionRepository{db: db}
}

const subscriptionColumns = `id, organization_id, organization_type, plan_name, status, total_seats,
	assigned_seats, price_per_seat, discount_percentage, starts_at, expires_at, created_at, updated_at`

func (repo *subscriptionRepository) CreateSubscription(ctx context.Context, sub organization.Subscription) (organization.Subscription, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO organization_subscriptions (`+subscriptionColumns+`)
		VALUES (:id, :organization_id, :organization_type, :plan_name, :status, :total_seats,
			:assigned_seats, :price_per_seat, :discount_percentage, :starts_at, :expires_at, :created_at, :updated_at)`,
		sub,
	)
	if err != nil {
		return organization.Subscription{}, errors.Wrap(err, "creating subscription")
	}
	return sub, nil
}

func (repo *subscriptionRepository) GetSubscription(ctx context.Context, id string) (organization.Subscription, error) {
	var sub organization.Subscription
	err := repo.db.GetContext(ctx, &sub, `SELECT `+subscriptionColumns+` FROM organization_subscriptions WHERE id = $1`, id)
	if err != nil {
		return organization.Subscription{}, trapNoRowsErr(err, organization.ErrNotFound, "getting subscription")
	}
	return sub, nil
}

func (repo *subscriptionRepository) QuerySubscriptions(ctx context.Context, orgID string, ordering ...core.DBOrdering) ([]organization.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM organization_subscriptions WHERE organization_id = $1` +
		orderClause(ordering, "created_at DESC")

	subs := make([]organization.Subscription, 0)
	if err := repo.db.SelectContext(ctx, &subs, query, orgID); err != nil {
		return nil, errors.Wrap(err, "querying subscriptions")
	}
	return subs, nil
}

func (repo *subscriptionRepository) UpdateSubscriptionStatus(ctx context.Context, id, status string) (organization.Subscription, error) {
	var sub organization.Subscription
	err := repo.db.GetContext(ctx, &sub, `
		UPDATE organization_subscriptions SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+subscriptionColumns,
		id, status, time.Now().UTC(),
	)
	if err != nil {
		return organization.Subscription{}, trapNoRowsErr(err, organization.ErrNotFound, "updating subscription status")
	}
	return sub, nil
}

func (repo *subscriptionRepository) ExpireGraceSubscriptions(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE organization_subscriptions SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at < $4`,
		organization.StatusExpired, time.Now().UTC(), organization.StatusGracePeriod, cutoff,
	)
	if err != nil {
		return 0, errors.Wrap(err, "expiring subscriptions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "expiring subscriptions")
	}
	return int(n), nil
}
