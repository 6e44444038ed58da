package invite_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/invite"
	"github.com/darasahq/darasa/core/license"
	"github.com/darasahq/darasa/core/organization"
	emailsvc "github.com/darasahq/darasa/services/email"
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
	conf    *core.Config
	svc     invite.Service
	licSvc  license.Service
	repo    invite.Repository
	licRepo license.Repository
	sub     organization.Subscription
	orgID   string
}

func setup(t *testing.T) testEnv {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	conf := &core.Config{
		TestMode:                  true,
		AppName:                   "Darasa",
		FrontendBaseURL:           "http://localhost:3000",
		InvitationExpirationDelta: 7 * 24 * time.Hour,
		WorkDir:                   core.Getwd(),
	}
	validate, _ := core.NewValidator()
	logger := testLogger{t}

	subRepo := dummydb.NewSubscriptionRepository(db)
	licRepo := dummydb.NewLicenseRepository(db)
	repo := dummydb.NewInvitationRepository(db)
	licSvc := license.NewService(licRepo, subRepo, validate, logger)
	svc := invite.NewService(conf, repo, licSvc, emailsvc.NewConsoleServiceMock(conf), validate, logger)

	orgID := uuid.New().String()
	sub := testutil.CreateSubscription(t, subRepo, orgID, organization.StatusActive, 50)
	return testEnv{conf: conf, svc: svc, licSvc: licSvc, repo: repo, licRepo: licRepo, sub: sub, orgID: orgID}
}

func TestService_Invite(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	inv, err := env.svc.Invite(ctx, invite.NewInvitation{
		OrganizationID: env.orgID,
		Email:          "alice@test.test",
		MemberType:     license.MemberTypeStudent,
	}, "")
	if err != nil {
		t.Fatalf("Invite() failed: %v", err)
	}
	if inv.Status != invite.StatusPending {
		t.Errorf("Invite() status = %s, want %s", inv.Status, invite.StatusPending)
	}
	if inv.Token == "" {
		t.Error("Invite() token is empty")
	}
	if inv.ExpiresAt.Before(time.Now().Add(6 * 24 * time.Hour)) {
		t.Errorf("Invite() expires too soon: %s", inv.ExpiresAt)
	}

	t.Run("duplicate pending invitation is rejected", func(t *testing.T) {
		_, err := env.svc.Invite(ctx, invite.NewInvitation{
			OrganizationID: env.orgID,
			Email:          "alice@test.test",
			MemberType:     license.MemberTypeStudent,
		}, "")
		if err == nil {
			t.Fatal("Invite() expected error, got nil")
		}
		if _, ok := err.(*core.ValidationError); !ok {
			t.Errorf("Invite() error type = %T, want *core.ValidationError", err)
		}
	})
}

func TestService_BulkInvite(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	// bob is already invited
	if _, err := env.svc.Invite(ctx, invite.NewInvitation{
		OrganizationID: env.orgID,
		Email:          "bob@test.test",
		MemberType:     license.MemberTypeStudent,
	}, ""); err != nil {
		t.Fatalf("Invite() failed: %v", err)
	}

	result, err := env.svc.BulkInvite(ctx, invite.BulkInvitation{
		OrganizationID: env.orgID,
		Emails:         []string{"alice@test.test", "bob@test.test", "carol@test.test"},
		MemberType:     license.MemberTypeStudent,
	}, "")
	if err != nil {
		t.Fatalf("BulkInvite() failed: %v", err)
	}
	if len(result.Successful) != 2 {
		t.Errorf("BulkInvite() successful = %d, want 2", len(result.Successful))
	}
	if len(result.Failed) != 1 {
		t.Fatalf("BulkInvite() failed = %d, want 1", len(result.Failed))
	}
	if result.Failed[0].Email != "bob@test.test" {
		t.Errorf("BulkInvite() failed email = %s, want bob@test.test", result.Failed[0].Email)
	}
}

func TestService_Accept(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	testutil.CreatePool(t, env.licRepo, env.sub, "Default Students", license.MemberTypeStudent, 10, true)

	inv, err := env.svc.Invite(ctx, invite.NewInvitation{
		OrganizationID: env.orgID,
		Email:          "alice@test.test",
		MemberType:     license.MemberTypeStudent,
	}, "")
	if err != nil {
		t.Fatalf("Invite() failed: %v", err)
	}

	userID := uuid.New().String()
	accepted, err := env.svc.Accept(ctx, invite.AcceptInvitation{Token: inv.Token, UserID: userID})
	if err != nil {
		t.Fatalf("Accept() failed: %v", err)
	}
	if accepted.Status != invite.StatusAccepted {
		t.Errorf("Accept() status = %s, want %s", accepted.Status, invite.StatusAccepted)
	}
	if accepted.AcceptedBy != userID {
		t.Errorf("Accept() accepted by = %s, want %s", accepted.AcceptedBy, userID)
	}

	// the user got a seat
	asgs, err := env.licSvc.UserAssignments(ctx, userID)
	if err != nil {
		t.Fatalf("UserAssignments() failed: %v", err)
	}
	if len(asgs) != 1 || asgs[0].Status != license.AssignmentActive {
		t.Errorf("UserAssignments() = %+v, want one active assignment", asgs)
	}

	t.Run("accepting twice fails", func(t *testing.T) {
		_, err := env.svc.Accept(ctx, invite.AcceptInvitation{Token: inv.Token, UserID: uuid.New().String()})
		if err != invite.ErrInviteNotPending {
			t.Errorf("Accept() error = %v, want %v", err, invite.ErrInviteNotPending)
		}
	})

	t.Run("unknown token fails", func(t *testing.T) {
		_, err := env.svc.Accept(ctx, invite.AcceptInvitation{Token: "nope", UserID: uuid.New().String()})
		if err != invite.ErrNotFound {
			t.Errorf("Accept() error = %v, want %v", err, invite.ErrNotFound)
		}
	})
}

func TestService_Accept_noSeats(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	// no auto-assign pool at all
	inv, err := env.svc.Invite(ctx, invite.NewInvitation{
		OrganizationID: env.orgID,
		Email:          "alice@test.test",
		MemberType:     license.MemberTypeStudent,
	}, "")
	if err != nil {
		t.Fatalf("Invite() failed: %v", err)
	}

	_, err = env.svc.Accept(ctx, invite.AcceptInvitation{Token: inv.Token, UserID: uuid.New().String()})
	if err != license.ErrNoAutoAssignPool {
		t.Errorf("Accept() error = %v, want %v", err, license.ErrNoAutoAssignPool)
	}

	// the invitation stays pending so a retry can succeed once seats exist
	curr, err := env.svc.GetByID(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if curr.Status != invite.StatusPending {
		t.Errorf("invitation status = %s, want %s", curr.Status, invite.StatusPending)
	}
}

func TestService_Accept_expired(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	inv := testutil.CreateInvitation(t, env.repo, env.orgID, "late@test.test",
		license.MemberTypeStudent, "expired-token", time.Now().UTC().Add(-time.Hour))

	_, err := env.svc.Accept(ctx, invite.AcceptInvitation{Token: inv.Token, UserID: uuid.New().String()})
	if err != invite.ErrInviteExpired {
		t.Errorf("Accept() error = %v, want %v", err, invite.ErrInviteExpired)
	}

	curr, err := env.svc.GetByID(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if curr.Status != invite.StatusExpired {
		t.Errorf("invitation status = %s, want %s", curr.Status, invite.StatusExpired)
	}
}

func TestService_Resend(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	inv, err := env.svc.Invite(ctx, invite.NewInvitation{
		OrganizationID: env.orgID,
		Email:          "alice@test.test",
		MemberType:     license.MemberTypeEducator,
	}, "")
	if err != nil {
		t.Fatalf("Invite() failed: %v", err)
	}

	resent, err := env.svc.Resend(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Resend() failed: %v", err)
	}
	if resent.Token == inv.Token {
		t.Error("Resend() token was not rotated")
	}
	if !resent.ExpiresAt.After(inv.ExpiresAt.Add(-time.Second)) {
		t.Errorf("Resend() expiry was not refreshed: %s", resent.ExpiresAt)
	}
}

func TestService_Cancel(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	inv, err := env.svc.Invite(ctx, invite.NewInvitation{
		OrganizationID: env.orgID,
		Email:          "alice@test.test",
		MemberType:     license.MemberTypeStudent,
	}, "")
	if err != nil {
		t.Fatalf("Invite() failed: %v", err)
	}

	cancelled, err := env.svc.Cancel(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Cancel() failed: %v", err)
	}
	if cancelled.Status != invite.StatusCancelled {
		t.Errorf("Cancel() status = %s, want %s", cancelled.Status, invite.StatusCancelled)
	}

	if _, err := env.svc.Cancel(ctx, inv.ID); err != invite.ErrInviteNotPending {
		t.Errorf("Cancel() error = %v, want %v", err, invite.ErrInviteNotPending)
	}
}

func TestService_ExpireOldAndStats(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)
	testutil.CreateInvitation(t, env.repo, env.orgID, "a@test.test", license.MemberTypeStudent, "tok-a", past)
	testutil.CreateInvitation(t, env.repo, env.orgID, "b@test.test", license.MemberTypeStudent, "tok-b", past)
	testutil.CreateInvitation(t, env.repo, env.orgID, "c@test.test", license.MemberTypeStudent, "tok-c", future)

	n, err := env.svc.ExpireOld(ctx)
	if err != nil {
		t.Fatalf("ExpireOld() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("ExpireOld() = %d, want 2", n)
	}

	stats, err := env.svc.Stats(ctx, env.orgID)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	want := invite.Stats{Pending: 1, Expired: 2}
	if stats != want {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}
}
