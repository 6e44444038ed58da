package dummydb

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core/license"
	"github.com/darasahq/darasa/core/organization"
)

func TestLicenseRepository_RevokeSeat_driftedCounters(t *testing.T) {
	db, err := Open()
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	ctx := context.Background()
	subRepo := NewSubscriptionRepository(db)
	repo := NewLicenseRepository(db)

	now := time.Now().UTC()
	sub, err := subRepo.CreateSubscription(ctx, organization.Subscription{
		ID:             uuid.New().String(),
		OrganizationID: uuid.New().String(),
		PlanName:       "Campus Plan",
		Status:         organization.StatusActive,
		TotalSeats:     10,
		StartsAt:       now,
		ExpiresAt:      now.AddDate(1, 0, 0),
	})
	if err != nil {
		t.Fatalf("CreateSubscription() failed: %v", err)
	}
	pool, err := repo.CreatePool(ctx, license.Pool{
		ID:             uuid.New().String(),
		SubscriptionID: sub.ID,
		OrganizationID: sub.OrganizationID,
		Name:           "Drifted Pool",
		MemberType:     license.MemberTypeStudent,
		AllocatedSeats: 5,
		IsActive:       true,
		Version:        1,
	})
	if err != nil {
		t.Fatalf("CreatePool() failed: %v", err)
	}
	asg, err := repo.AssignSeat(ctx, license.Assignment{
		ID:             uuid.New().String(),
		PoolID:         pool.ID,
		SubscriptionID: sub.ID,
		UserID:         uuid.New().String(),
		MemberType:     pool.MemberType,
		Status:         license.AssignmentActive,
		AssignedAt:     now,
	})
	if err != nil {
		t.Fatalf("AssignSeat() failed: %v", err)
	}

	// zero the pool counter behind the repository's back
	db.Lock()
	db.pools[pool.ID].AssignedSeats = 0
	db.Unlock()

	if _, err := repo.RevokeSeat(ctx, asg.ID, "", ""); err == nil || !strings.Contains(err.Error(), "already at zero") {
		t.Errorf("RevokeSeat() error = %v, want seat-count anomaly", err)
	}

	// the failed revocation must not have touched the assignment
	got, err := repo.GetAssignment(ctx, asg.ID)
	if err != nil {
		t.Fatalf("GetAssignment() failed: %v", err)
	}
	if got.Status != license.AssignmentActive {
		t.Errorf("assignment status = %s, want %s", got.Status, license.AssignmentActive)
	}
}
