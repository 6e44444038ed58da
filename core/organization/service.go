package organization

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/darasahq/darasa/core"
)

var (
	// errors
	ErrNotFound          = errors.New("subscription not found")
	ErrInvalidTransition = errors.New("invalid subscription status transition")
)

type (
	Repository interface {
		CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error)
		GetSubscription(ctx context.Context, id string) (Subscription, error)
		QuerySubscriptions(ctx context.Context, orgID string, ordering ...core.DBOrdering) ([]Subscription, error)
		// UpdateSubscriptionStatus persists a status change; the service validates the transition.
		UpdateSubscriptionStatus(ctx context.Context, id, status string) (Subscription, error)
		// ExpireGraceSubscriptions moves grace_period subscriptions whose grace window
		// ended before the cutoff to expired; returns the number affected.
		ExpireGraceSubscriptions(ctx context.Context, cutoff time.Time) (int, error)
	}

	Service interface {
		Create(ctx context.Context, ns NewSubscription) (Subscription, error)
		GetByID(ctx context.Context, id string) (Subscription, error)
		QueryByOrg(ctx context.Context, orgID string, ordering ...core.DBOrdering) ([]Subscription, error)
		SeatTotals(ctx context.Context, orgID string) (SeatTotals, error)
		ChangeStatus(ctx context.Context, id, status string) (Subscription, error)
		ExpireLapsed(ctx context.Context) (int, error)
	}

	service struct {
		repo     Repository
		validate *validator.Validate
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, validate *validator.Validate, logger core.Logger) Service {
	return &service{
		repo:     repo,
		validate: validate,
		logger:   logger,
	}
}

func (svc *service) Create(ctx context.Context, ns NewSubscription) (Subscription, error) {
	if err := ns.Validate(svc.validate); err != nil {
		return Subscription{}, err
	}

	now := time.Now().UTC()
	sub := Subscription{
		ID:                 uuid.New().String(),
		OrganizationID:     ns.OrganizationID,
		OrganizationType:   ns.OrganizationType,
		PlanName:           ns.PlanName,
		Status:             StatusActive,
		TotalSeats:         ns.TotalSeats,
		PricePerSeat:       ns.PricePerSeat,
		DiscountPercentage: ns.DiscountPercentage,
		StartsAt:           now,
		ExpiresAt:          now.AddDate(0, 0, ns.DurationDays),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return svc.repo.CreateSubscription(ctx, sub)
}

func (svc *service) GetByID(ctx context.Context, id string) (Subscription, error) {
	return svc.repo.GetSubscription(ctx, id)
}

func (svc *service) QueryByOrg(ctx context.Context, orgID string, ordering ...core.DBOrdering) ([]Subscription, error) {
	return svc.repo.QuerySubscriptions(ctx, orgID, ordering...)
}

func (svc *service) SeatTotals(ctx context.Context, orgID string) (SeatTotals, error) {
	subs, err := svc.repo.QuerySubscriptions(ctx, orgID)
	if err != nil {
		return SeatTotals{}, err
	}
	return ComputeSeatTotals(subs), nil
}

func (svc *service) ChangeStatus(ctx context.Context, id, status string) (Subscription, error) {
	sub, err := svc.repo.GetSubscription(ctx, id)
	if err != nil {
		return Subscription{}, err
	}
	if !CanTransition(sub.Status, status) {
		return Subscription{}, core.NewValidationError(ErrInvalidTransition, core.FieldError{
			Field: "status",
			Error: "cannot transition from " + sub.Status + " to " + status,
		})
	}
	return svc.repo.UpdateSubscriptionStatus(ctx, id, status)
}

func (svc *service) ExpireLapsed(ctx context.Context) (int, error) {
	n, err := svc.repo.ExpireGraceSubscriptions(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		svc.logger.Info("expired lapsed subscriptions", map[string]interface{}{"count": n})
	}
	return n, nil
}
