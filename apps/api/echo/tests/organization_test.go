package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core/organization"
	"github.com/darasahq/darasa/core/user"
	testutil "github.com/darasahq/darasa/tests"
)

func TestOrganizationAPI_subscriptions(t *testing.T) {
	env := setup(t)

	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@test.test", "s3cr3tssss", user.AllRoles, true)
	adminTok := getToken(t, env, admin)

	orgID := uuid.New().String()
	subsPath := "/v1/orgs/" + orgID + "/subscriptions"

	var sub organization.Subscription
	t.Run("admin records a completed purchase", func(t *testing.T) {
		body := []byte(`{
			"organization_type": "school", "plan_name": "Campus Plan",
			"total_seats": 100, "price_per_seat": 100, "discount_percentage": 20,
			"duration_days": 365
		}`)
		req, rec := newAuthRequest(http.MethodPost, subsPath, adminTok, body)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &sub); err != nil {
			t.Fatalf("unmarshalling subscription failed: %v", err)
		}
		if sub.Status != organization.StatusActive {
			t.Errorf("subscription status = %s, want %s", sub.Status, organization.StatusActive)
		}
	})

	t.Run("query returns the org's subscriptions", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, subsPath+"?ordering=-created_at", adminTok)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v", rec.Code, http.StatusOK)
		}
		var subs []organization.Subscription
		if err := json.Unmarshal(rec.Body.Bytes(), &subs); err != nil {
			t.Fatalf("unmarshalling subscriptions failed: %v", err)
		}
		if len(subs) != 1 {
			t.Errorf("subscriptions = %d, want 1", len(subs))
		}
	})

	t.Run("invalid status transition is rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/subscriptions/"+sub.ID+"/status", adminTok,
			[]byte(`{"status": "pending"}`))
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("code = %v; want %v; body %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})

	t.Run("valid status transition succeeds", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/subscriptions/"+sub.ID+"/status", adminTok,
			[]byte(`{"status": "grace_period"}`))
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var updated organization.Subscription
		if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
			t.Fatalf("unmarshalling subscription failed: %v", err)
		}
		if updated.Status != organization.StatusGracePeriod {
			t.Errorf("subscription status = %s, want %s", updated.Status, organization.StatusGracePeriod)
		}
	})

	t.Run("invoice preview itemizes plan, discount and tax", func(t *testing.T) {
		// 100 seats x 100 = 10000; -20% = -2000; GST 18% on 8000 = 1440
		req, rec := newAuthRequest(http.MethodGet, "/v1/orgs/"+orgID+"/invoice-preview", adminTok)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}

		var preview struct {
			Lines []struct {
				Description string  `json:"description"`
				Amount      float64 `json:"amount"`
			} `json:"lines"`
			Total        float64 `json:"total"`
			TotalDisplay string  `json:"total_display"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &preview); err != nil {
			t.Fatalf("unmarshalling preview failed: %v", err)
		}
		if len(preview.Lines) != 3 {
			t.Fatalf("lines = %d, want 3", len(preview.Lines))
		}
		if preview.Lines[1].Amount != -2000 {
			t.Errorf("discount line amount = %v, want -2000", preview.Lines[1].Amount)
		}
		if preview.Total != 9440 {
			t.Errorf("total = %v, want 9440", preview.Total)
		}
		if preview.TotalDisplay != "₹9,440" {
			t.Errorf("total display = %s, want ₹9,440", preview.TotalDisplay)
		}
	})

	t.Run("unknown subscription is not found", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/subscriptions/"+uuid.New().String(), adminTok)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusNotFound)
		}
	})
}
