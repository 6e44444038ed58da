package license_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/license"
	"github.com/darasahq/darasa/core/organization"
	dummydb "github.com/darasahq/darasa/storage/database/dummy"
	testutil "github.com/darasahq/darasa/tests"
)

type testLogger struct {
	t *testing.T
}

func (l testLogger) Enable(enabled bool)                   {}
func (l testLogger) Debug(msg string, args ...interface{}) { l.t.Log(msg, args) }
func (l testLogger) Info(msg string, args ...interface{})  { l.t.Log(msg, args) }
func (l testLogger) Warn(msg string, args ...interface{})  { l.t.Log(msg, args) }
func (l testLogger) Error(msg string, args ...interface{}) { l.t.Log(msg, args) }
func (l testLogger) Fatal(msg string, args ...interface{}) { l.t.Fatal(msg, args) }

type testEnv struct {
	svc     license.Service
	repo    license.Repository
	subRepo organization.Repository
	sub     organization.Subscription
	orgID   string
}

func setup(t *testing.T, totalSeats int) testEnv {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	validate, _ := core.NewValidator()
	subRepo := dummydb.NewSubscriptionRepository(db)
	repo := dummydb.NewLicenseRepository(db)
	svc := license.NewService(repo, subRepo, validate, testLogger{t})

	orgID := uuid.New().String()
	sub := testutil.CreateSubscription(t, subRepo, orgID, organization.StatusActive, totalSeats)
	return testEnv{svc: svc, repo: repo, subRepo: subRepo, sub: sub, orgID: orgID}
}

func TestService_CreatePool(t *testing.T) {
	env := setup(t, 100)
	ctx := context.Background()

	pool, err := env.svc.CreatePool(ctx, license.NewPool{
		SubscriptionID: env.sub.ID,
		OrganizationID: env.orgID,
		Name:           "Engineering Students",
		MemberType:     license.MemberTypeStudent,
		AllocatedSeats: 60,
	}, "")
	if err != nil {
		t.Fatalf("CreatePool() failed: %v", err)
	}
	if pool.Version != 1 {
		t.Errorf("CreatePool() version = %d, want 1", pool.Version)
	}
	if !pool.IsActive {
		t.Error("CreatePool() pool is not active")
	}

	t.Run("allocation exceeding unallocated seats is rejected", func(t *testing.T) {
		_, err := env.svc.CreatePool(ctx, license.NewPool{
			SubscriptionID: env.sub.ID,
			OrganizationID: env.orgID,
			Name:           "Overflow Pool",
			MemberType:     license.MemberTypeStudent,
			AllocatedSeats: 50, // only 40 left
		}, "")
		if err != license.ErrInsufficientSeats {
			t.Errorf("CreatePool() error = %v, want %v", err, license.ErrInsufficientSeats)
		}
		if !core.IsConflict(err) {
			t.Errorf("CreatePool() error %v is not a conflict", err)
		}
	})

	t.Run("short name is rejected", func(t *testing.T) {
		_, err := env.svc.CreatePool(ctx, license.NewPool{
			SubscriptionID: env.sub.ID,
			OrganizationID: env.orgID,
			Name:           "ab",
			MemberType:     license.MemberTypeStudent,
			AllocatedSeats: 10,
		}, "")
		if err == nil {
			t.Error("CreatePool() expected validation error, got nil")
		}
	})
}

func TestService_UpdatePool(t *testing.T) {
	env := setup(t, 100)
	ctx := context.Background()

	pool := testutil.CreatePool(t, env.repo, env.sub, "Science Educators", license.MemberTypeEducator, 30, false)

	t.Run("stale version is rejected", func(t *testing.T) {
		_, err := env.svc.UpdatePool(ctx, pool.ID, license.UpdatePool{Version: 99})
		if err != license.ErrStalePool {
			t.Errorf("UpdatePool() error = %v, want %v", err, license.ErrStalePool)
		}
		if !core.IsConflict(err) {
			t.Errorf("UpdatePool() error %v is not a conflict", err)
		}
	})

	t.Run("valid update bumps version", func(t *testing.T) {
		seats := 40
		updated, err := env.svc.UpdatePool(ctx, pool.ID, license.UpdatePool{
			AllocatedSeats: &seats,
			Version:        pool.Version,
		})
		if err != nil {
			t.Fatalf("UpdatePool() failed: %v", err)
		}
		if updated.AllocatedSeats != 40 {
			t.Errorf("UpdatePool() allocated = %d, want 40", updated.AllocatedSeats)
		}
		if updated.Version != pool.Version+1 {
			t.Errorf("UpdatePool() version = %d, want %d", updated.Version, pool.Version+1)
		}
	})

	t.Run("allocation exceeding unallocated seats is rejected", func(t *testing.T) {
		curr, err := env.svc.GetPool(ctx, pool.ID)
		if err != nil {
			t.Fatalf("GetPool() failed: %v", err)
		}
		seats := 1000
		if _, err = env.svc.UpdatePool(ctx, pool.ID, license.UpdatePool{
			AllocatedSeats: &seats,
			Version:        curr.Version,
		}); err == nil {
			t.Error("UpdatePool() expected error, got nil")
		}
	})
}

func TestService_Assign(t *testing.T) {
	env := setup(t, 100)
	ctx := context.Background()

	pool := testutil.CreatePool(t, env.repo, env.sub, "Math Students", license.MemberTypeStudent, 2, false)

	alice, bob, carol := uuid.New().String(), uuid.New().String(), uuid.New().String()

	asg, err := env.svc.Assign(ctx, pool.ID, alice, "")
	if err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}
	if asg.Status != license.AssignmentActive {
		t.Errorf("Assign() status = %s, want %s", asg.Status, license.AssignmentActive)
	}
	if asg.MemberType != pool.MemberType {
		t.Errorf("Assign() member type = %s, want %s", asg.MemberType, pool.MemberType)
	}

	t.Run("double assignment is rejected", func(t *testing.T) {
		if _, err := env.svc.Assign(ctx, pool.ID, alice, ""); err != license.ErrAlreadyAssigned {
			t.Errorf("Assign() error = %v, want %v", err, license.ErrAlreadyAssigned)
		}
	})

	t.Run("exhausted pool is rejected", func(t *testing.T) {
		if _, err := env.svc.Assign(ctx, pool.ID, bob, ""); err != nil {
			t.Fatalf("Assign() failed: %v", err)
		}
		if _, err := env.svc.Assign(ctx, pool.ID, carol, ""); err != license.ErrNoSeatsAvailable {
			t.Errorf("Assign() error = %v, want %v", err, license.ErrNoSeatsAvailable)
		}
	})

	t.Run("seat counts are in sync", func(t *testing.T) {
		curr, err := env.svc.GetPool(ctx, pool.ID)
		if err != nil {
			t.Fatalf("GetPool() failed: %v", err)
		}
		if curr.AssignedSeats != 2 {
			t.Errorf("pool assigned = %d, want 2", curr.AssignedSeats)
		}
		sub, err := env.subRepo.GetSubscription(ctx, env.sub.ID)
		if err != nil {
			t.Fatalf("GetSubscription() failed: %v", err)
		}
		if sub.AssignedSeats != 2 {
			t.Errorf("subscription assigned = %d, want 2", sub.AssignedSeats)
		}
	})
}

func TestService_Assign_concurrent(t *testing.T) {
	env := setup(t, 100)
	ctx := context.Background()

	pool := testutil.CreatePool(t, env.repo, env.sub, "Night School", license.MemberTypeStudent, 5, false)

	const attempts = 20
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Assign(ctx, pool.ID, uuid.New().String(), "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded int
	for err := range errs {
		switch err {
		case nil:
			succeeded++
		case license.ErrNoSeatsAvailable:
		default:
			t.Errorf("Assign() error = %v, want nil or %v", err, license.ErrNoSeatsAvailable)
		}
	}
	if succeeded != pool.AllocatedSeats {
		t.Errorf("successful assigns = %d, want %d", succeeded, pool.AllocatedSeats)
	}

	curr, err := env.svc.GetPool(ctx, pool.ID)
	if err != nil {
		t.Fatalf("GetPool() failed: %v", err)
	}
	if curr.AssignedSeats != curr.AllocatedSeats {
		t.Errorf("pool assigned = %d, want %d", curr.AssignedSeats, curr.AllocatedSeats)
	}
	if curr.AssignedSeats > curr.AllocatedSeats {
		t.Errorf("pool oversubscribed: %d/%d", curr.AssignedSeats, curr.AllocatedSeats)
	}
}

func TestService_Revoke(t *testing.T) {
	env := setup(t, 100)
	ctx := context.Background()

	pool := testutil.CreatePool(t, env.repo, env.sub, "History Students", license.MemberTypeStudent, 1, false)
	alice, bob := uuid.New().String(), uuid.New().String()

	asg, err := env.svc.Assign(ctx, pool.ID, alice, "")
	if err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}

	revoked, err := env.svc.Revoke(ctx, asg.ID, "", "graduated")
	if err != nil {
		t.Fatalf("Revoke() failed: %v", err)
	}
	if revoked.Status != license.AssignmentRevoked {
		t.Errorf("Revoke() status = %s, want %s", revoked.Status, license.AssignmentRevoked)
	}
	if revoked.RevocationReason != "graduated" {
		t.Errorf("Revoke() reason = %s, want graduated", revoked.RevocationReason)
	}

	t.Run("revoking twice fails", func(t *testing.T) {
		if _, err := env.svc.Revoke(ctx, asg.ID, "", ""); err != license.ErrAssignmentNotActive {
			t.Errorf("Revoke() error = %v, want %v", err, license.ErrAssignmentNotActive)
		}
	})

	t.Run("released seat can be reassigned", func(t *testing.T) {
		if _, err := env.svc.Assign(ctx, pool.ID, bob, ""); err != nil {
			t.Errorf("Assign() failed: %v", err)
		}
	})
}

func TestService_Transfer(t *testing.T) {
	env := setup(t, 100)
	ctx := context.Background()

	pool := testutil.CreatePool(t, env.repo, env.sub, "Physics Students", license.MemberTypeStudent, 1, false)
	alice, bob := uuid.New().String(), uuid.New().String()

	asg, err := env.svc.Assign(ctx, pool.ID, alice, "")
	if err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}

	next, err := env.svc.Transfer(ctx, asg.ID, bob, "")
	if err != nil {
		t.Fatalf("Transfer() failed: %v", err)
	}
	if next.UserID != bob {
		t.Errorf("Transfer() user = %s, want %s", next.UserID, bob)
	}
	if next.TransferredFrom != alice {
		t.Errorf("Transfer() transferred from = %s, want %s", next.TransferredFrom, alice)
	}

	// pool counts unchanged: seat moved with the transfer
	curr, err := env.svc.GetPool(ctx, pool.ID)
	if err != nil {
		t.Fatalf("GetPool() failed: %v", err)
	}
	if curr.AssignedSeats != 1 {
		t.Errorf("pool assigned = %d, want 1", curr.AssignedSeats)
	}

	old, err := env.svc.GetAssignment(ctx, asg.ID)
	if err != nil {
		t.Fatalf("GetAssignment() failed: %v", err)
	}
	if old.Status != license.AssignmentRevoked {
		t.Errorf("old assignment status = %s, want %s", old.Status, license.AssignmentRevoked)
	}
	if old.TransferredTo != bob {
		t.Errorf("old assignment transferred to = %s, want %s", old.TransferredTo, bob)
	}
}

func TestService_AutoAssign(t *testing.T) {
	env := setup(t, 100)
	ctx := context.Background()

	testutil.CreatePool(t, env.repo, env.sub, "Educators Pool", license.MemberTypeEducator, 5, true)
	studentPool := testutil.CreatePool(t, env.repo, env.sub, "Students Pool", license.MemberTypeStudent, 1, true)
	testutil.CreatePool(t, env.repo, env.sub, "Manual Students", license.MemberTypeStudent, 5, false)

	alice, bob := uuid.New().String(), uuid.New().String()

	asg, err := env.svc.AutoAssign(ctx, env.orgID, alice, license.MemberTypeStudent, "")
	if err != nil {
		t.Fatalf("AutoAssign() failed: %v", err)
	}
	if asg.PoolID != studentPool.ID {
		t.Errorf("AutoAssign() pool = %s, want %s", asg.PoolID, studentPool.ID)
	}

	t.Run("exhausted auto-assign pools", func(t *testing.T) {
		if _, err := env.svc.AutoAssign(ctx, env.orgID, bob, license.MemberTypeStudent, ""); err != license.ErrNoAutoAssignPool {
			t.Errorf("AutoAssign() error = %v, want %v", err, license.ErrNoAutoAssignPool)
		}
	})
}

func TestService_DeletePool(t *testing.T) {
	env := setup(t, 100)
	ctx := context.Background()

	pool := testutil.CreatePool(t, env.repo, env.sub, "Chemistry Students", license.MemberTypeStudent, 5, false)
	alice := uuid.New().String()

	asg, err := env.svc.Assign(ctx, pool.ID, alice, "")
	if err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}

	if err := env.svc.DeletePool(ctx, pool.ID); err != license.ErrPoolHasAssignments {
		t.Errorf("DeletePool() error = %v, want %v", err, license.ErrPoolHasAssignments)
	}

	if _, err := env.svc.Revoke(ctx, asg.ID, "", ""); err != nil {
		t.Fatalf("Revoke() failed: %v", err)
	}
	if err := env.svc.DeletePool(ctx, pool.ID); err != nil {
		t.Errorf("DeletePool() failed: %v", err)
	}
	if _, err := env.svc.GetPool(ctx, pool.ID); err != license.ErrPoolNotFound {
		t.Errorf("GetPool() error = %v, want %v", err, license.ErrPoolNotFound)
	}
}

func TestService_SeatUsage(t *testing.T) {
	env := setup(t, 100)
	ctx := context.Background()

	pool := testutil.CreatePool(t, env.repo, env.sub, "Biology Students", license.MemberTypeStudent, 40, false)
	testutil.CreateAssignment(t, env.repo, pool, uuid.New().String())
	testutil.CreateAssignment(t, env.repo, pool, uuid.New().String())

	usage, err := env.svc.SeatUsage(ctx, env.orgID)
	if err != nil {
		t.Fatalf("SeatUsage() failed: %v", err)
	}
	want := license.SeatUsage{
		TotalSeats:       100,
		AssignedSeats:    2,
		AvailableSeats:   98,
		UnallocatedSeats: 60, // 98 available - 38 free in the pool
		Utilization:      2,
	}
	if usage != want {
		t.Errorf("SeatUsage() = %+v, want %+v", usage, want)
	}
}
