package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core/invite"
	"github.com/darasahq/darasa/core/license"
	"github.com/darasahq/darasa/core/organization"
	"github.com/darasahq/darasa/core/user"
	testutil "github.com/darasahq/darasa/tests"
)

func TestInvitationAPI_flow(t *testing.T) {
	env := setup(t)

	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@test.test", "s3cr3tssss", user.AllRoles, true)
	adminTok := getToken(t, env, admin)

	orgID := uuid.New().String()
	sub := testutil.CreateSubscription(t, env.subRepo, orgID, organization.StatusActive, 50)
	testutil.CreatePool(t, env.licRepo, sub, "DefaultStudents", license.MemberTypeStudent, 10, true)

	invitationsPath := "/v1/orgs/" + orgID + "/invitations"

	var inv invite.Invitation
	t.Run("admin invites a member", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, invitationsPath, adminTok,
			[]byte(`{"email": "alice@test.test", "member_type": "student"}`))
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &inv); err != nil {
			t.Fatalf("unmarshalling invitation failed: %v", err)
		}
		if inv.Status != invite.StatusPending {
			t.Errorf("invitation status = %s, want %s", inv.Status, invite.StatusPending)
		}
		if inv.InvitedBy != admin.ID {
			t.Errorf("invited by = %s, want %s", inv.InvitedBy, admin.ID)
		}
	})

	t.Run("duplicate pending invitation is rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, invitationsPath, adminTok,
			[]byte(`{"email": "alice@test.test", "member_type": "student"}`))
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("bulk invite reports per-email outcomes", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, invitationsPath+"/bulk", adminTok,
			[]byte(`{"emails": ["alice@test.test", "bob@test.test"], "member_type": "student"}`))
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var result invite.BulkInvitationResult
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("unmarshalling result failed: %v", err)
		}
		if len(result.Successful) != 1 || len(result.Failed) != 1 {
			t.Errorf("result = %d successful / %d failed, want 1 / 1", len(result.Successful), len(result.Failed))
		}
	})

	userID := uuid.New().String()
	t.Run("invitee accepts with their emailed token", func(t *testing.T) {
		// the token is never serialized; fetch it as the mailer would have
		pending, err := env.invRepo.GetPendingInvitation(context.Background(), orgID, "alice@test.test")
		if err != nil {
			t.Fatalf("GetPendingInvitation() failed: %v", err)
		}

		req, rec := newRequest(http.MethodPost, "/v1/invitations/accept",
			[]byte(fmt.Sprintf(`{"token": %q, "user_id": %q}`, pending.Token, userID)))
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var accepted invite.Invitation
		if err := json.Unmarshal(rec.Body.Bytes(), &accepted); err != nil {
			t.Fatalf("unmarshalling invitation failed: %v", err)
		}
		if accepted.Status != invite.StatusAccepted {
			t.Errorf("invitation status = %s, want %s", accepted.Status, invite.StatusAccepted)
		}

		// a seat was granted from the auto-assign pool
		asgs, err := env.licSvc.UserAssignments(context.Background(), userID)
		if err != nil {
			t.Fatalf("UserAssignments() failed: %v", err)
		}
		if len(asgs) != 1 || asgs[0].Status != license.AssignmentActive {
			t.Errorf("assignments = %+v, want one active assignment", asgs)
		}

		t.Run("accepting twice fails", func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/invitations/accept",
				[]byte(fmt.Sprintf(`{"token": %q, "user_id": %q}`, pending.Token, uuid.New().String())))
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, httpTest{
				wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, httpErr{Error: "invitation is no longer pending"}),
			}, rec)
		})
	})

	t.Run("unknown token is not found", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/invitations/accept",
			[]byte(fmt.Sprintf(`{"token": "nope", "user_id": %q}`, uuid.New().String())))
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("resend rotates a pending token", func(t *testing.T) {
		pending, err := env.invRepo.GetPendingInvitation(context.Background(), orgID, "bob@test.test")
		if err != nil {
			t.Fatalf("GetPendingInvitation() failed: %v", err)
		}

		req, rec := newAuthRequest(http.MethodPost, "/v1/invitations/"+pending.ID+"/resend", adminTok)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		refreshed, err := env.invRepo.GetInvitation(context.Background(), pending.ID)
		if err != nil {
			t.Fatalf("GetInvitation() failed: %v", err)
		}
		if refreshed.Token == pending.Token {
			t.Error("token was not rotated")
		}
	})

	t.Run("cancel a pending invitation", func(t *testing.T) {
		pending, err := env.invRepo.GetPendingInvitation(context.Background(), orgID, "bob@test.test")
		if err != nil {
			t.Fatalf("GetPendingInvitation() failed: %v", err)
		}

		req, rec := newAuthRequest(http.MethodPost, "/v1/invitations/"+pending.ID+"/cancel", adminTok)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
	})

	t.Run("stats aggregate by status", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, invitationsPath+"/stats", adminTok)
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: []byte(`{"pending": 0, "accepted": 1, "cancelled": 1, "expired": 0}`),
		}, rec)
	})
}
