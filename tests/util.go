package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core/invite"
	"github.com/darasahq/darasa/core/license"
	"github.com/darasahq/darasa/core/organization"
	"github.com/darasahq/darasa/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateSubscription(
	t *testing.T,
	repo organization.Repository,
	orgID, status string,
	totalSeats int,
) organization.Subscription {
	t.Helper()

	now := time.Now().UTC()
	sub := organization.Subscription{
		ID:               uuid.New().String(),
		OrganizationID:   orgID,
		OrganizationType: "school",
		PlanName:         "Campus Plan",
		Status:           status,
		TotalSeats:       totalSeats,
		PricePerSeat:     100,
		StartsAt:         now,
		ExpiresAt:        now.AddDate(1, 0, 0),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	sub, err := repo.CreateSubscription(context.Background(), sub)
	if err != nil {
		t.Fatalf("CreateSubscription() failed: %v", err)
	}
	return sub
}

func CreatePool(
	t *testing.T,
	repo license.Repository,
	sub organization.Subscription,
	name, memberType string,
	allocatedSeats int,
	autoAssign bool,
) license.Pool {
	t.Helper()

	now := time.Now().UTC()
	pool := license.Pool{
		ID:             uuid.New().String(),
		SubscriptionID: sub.ID,
		OrganizationID: sub.OrganizationID,
		Name:           name,
		MemberType:     memberType,
		AllocatedSeats: allocatedSeats,
		AutoAssign:     autoAssign,
		IsActive:       true,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	pool, err := repo.CreatePool(context.Background(), pool)
	if err != nil {
		t.Fatalf("CreatePool() failed: %v", err)
	}
	return pool
}

func CreateAssignment(
	t *testing.T,
	repo license.Repository,
	pool license.Pool,
	userID string,
) license.Assignment {
	t.Helper()

	now := time.Now().UTC()
	asg := license.Assignment{
		ID:             uuid.New().String(),
		PoolID:         pool.ID,
		SubscriptionID: pool.SubscriptionID,
		UserID:         userID,
		MemberType:     pool.MemberType,
		Status:         license.AssignmentActive,
		AssignedAt:     now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	asg, err := repo.AssignSeat(context.Background(), asg)
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	return asg
}

func CreateInvitation(
	t *testing.T,
	repo invite.Repository,
	orgID, email, memberType, token string,
	expiresAt time.Time,
) invite.Invitation {
	t.Helper()

	now := time.Now().UTC()
	inv := invite.Invitation{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Email:          email,
		MemberType:     memberType,
		Status:         invite.StatusPending,
		Token:          token,
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	inv, err := repo.CreateInvitation(context.Background(), inv)
	if err != nil {
		t.Fatalf("CreateInvitation() failed: %v", err)
	}
	return inv
}
