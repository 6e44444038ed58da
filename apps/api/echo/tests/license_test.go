package tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core/license"
	"github.com/darasahq/darasa/core/organization"
	"github.com/darasahq/darasa/core/user"
	testutil "github.com/darasahq/darasa/tests"
)

func TestLicenseAPI_poolLifecycle(t *testing.T) {
	env := setup(t)

	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@test.test", "s3cr3tssss", user.AllRoles, true)
	student := testutil.CreateUser(t, env.usrRepo, "Student", "stud", "stud@test.test", "s3cr3tssss", user.StudentRoles, true)
	other := testutil.CreateUser(t, env.usrRepo, "Other", "other", "other@test.test", "s3cr3tssss", user.StudentRoles, true)
	adminTok := getToken(t, env, admin)
	studTok := getToken(t, env, student)

	orgID := uuid.New().String()
	sub := testutil.CreateSubscription(t, env.subRepo, orgID, organization.StatusActive, 100)

	newPoolBody := []byte(fmt.Sprintf(
		`{"subscription_id": %q, "name": "ScienceDept", "member_type": "student", "allocated_seats": 40, "auto_assign": true}`,
		sub.ID,
	))
	poolsPath := "/v1/orgs/" + orgID + "/pools"

	t.Run("pool create requires auth", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, poolsPath, newPoolBody)
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	t.Run("pool create requires admin", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, poolsPath, studTok, newPoolBody)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	var pool license.Pool
	t.Run("admin creates a pool", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, poolsPath, adminTok, newPoolBody)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &pool); err != nil {
			t.Fatalf("unmarshalling pool failed: %v", err)
		}
		if pool.Version != 1 {
			t.Errorf("pool version = %d, want 1", pool.Version)
		}
		if pool.CreatedBy != admin.ID {
			t.Errorf("pool created by = %s, want %s", pool.CreatedBy, admin.ID)
		}
	})

	t.Run("pool create beyond unallocated seats conflicts", func(t *testing.T) {
		body := []byte(fmt.Sprintf(
			`{"subscription_id": %q, "name": "TooBig", "member_type": "student", "allocated_seats": 70}`,
			sub.ID,
		))
		req, rec := newAuthRequest(http.MethodPost, poolsPath, adminTok, body)
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "insufficient unallocated seats in organization"}),
		}, rec)
	})

	t.Run("pool update with a stale version conflicts", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/pools/"+pool.ID, adminTok,
			[]byte(`{"allocated_seats": 50, "version": 1}`))
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var updated license.Pool
		if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
			t.Fatalf("unmarshalling pool failed: %v", err)
		}
		if updated.Version != 2 {
			t.Errorf("pool version = %d, want 2", updated.Version)
		}

		// re-submitting the stale stamp loses
		req, rec = newAuthRequest(http.MethodPut, "/v1/pools/"+pool.ID, adminTok,
			[]byte(`{"allocated_seats": 45, "version": 1}`))
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "pool was modified concurrently; reload and retry"}),
		}, rec)
	})

	var asg license.Assignment
	t.Run("admin assigns a seat", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/pools/"+pool.ID+"/assignments", adminTok,
			[]byte(fmt.Sprintf(`{"user_id": %q}`, student.ID)))
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &asg); err != nil {
			t.Fatalf("unmarshalling assignment failed: %v", err)
		}
		if asg.Status != license.AssignmentActive {
			t.Errorf("assignment status = %s, want %s", asg.Status, license.AssignmentActive)
		}
	})

	t.Run("assigning the same user twice fails", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/pools/"+pool.ID+"/assignments", adminTok,
			[]byte(fmt.Sprintf(`{"user_id": %q}`, student.ID)))
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "user already has an active license assignment"}),
		}, rec)
	})

	t.Run("seat usage reflects the assignment", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/orgs/"+orgID+"/seat-usage", studTok)
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: []byte(`{"total_seats": 100, "assigned_seats": 1, "available_seats": 99, "unallocated_seats": 50, "utilization": 1}`),
		}, rec)
	})

	t.Run("a user sees their own assignments", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+student.ID+"/assignments", studTok)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v", rec.Code, http.StatusOK)
		}
		var asgs []license.Assignment
		if err := json.Unmarshal(rec.Body.Bytes(), &asgs); err != nil {
			t.Fatalf("unmarshalling assignments failed: %v", err)
		}
		if len(asgs) != 1 {
			t.Errorf("assignments = %d, want 1", len(asgs))
		}
	})

	t.Run("a user cannot see another user's assignments", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+other.ID+"/assignments", studTok)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("admin transfers the seat", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/assignments/"+asg.ID+"/transfer", adminTok,
			[]byte(fmt.Sprintf(`{"to_user_id": %q}`, other.ID)))
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var next license.Assignment
		if err := json.Unmarshal(rec.Body.Bytes(), &next); err != nil {
			t.Fatalf("unmarshalling assignment failed: %v", err)
		}
		if next.TransferredFrom != student.ID {
			t.Errorf("transferred from = %s, want %s", next.TransferredFrom, student.ID)
		}
		asg = next
	})

	t.Run("deleting a pool with active seats fails", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/pools/"+pool.ID, adminTok)
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "pool still has assigned seats"}),
		}, rec)
	})

	t.Run("admin revokes the seat", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/assignments/"+asg.ID+"?reason=graduated", adminTok)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var revoked license.Assignment
		if err := json.Unmarshal(rec.Body.Bytes(), &revoked); err != nil {
			t.Fatalf("unmarshalling assignment failed: %v", err)
		}
		if revoked.Status != license.AssignmentRevoked {
			t.Errorf("assignment status = %s, want %s", revoked.Status, license.AssignmentRevoked)
		}
		if revoked.RevocationReason != "graduated" {
			t.Errorf("revocation reason = %s, want graduated", revoked.RevocationReason)
		}
	})

	t.Run("empty pool can be deleted", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/pools/"+pool.ID, adminTok)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusNoContent)
		}

		req, rec = newAuthRequest(http.MethodGet, "/v1/pools/"+pool.ID, adminTok)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusNotFound)
		}
	})
}
