package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/darasahq/darasa/apps/api/echo"
	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/billing"
	"github.com/darasahq/darasa/core/invite"
	"github.com/darasahq/darasa/core/license"
	"github.com/darasahq/darasa/core/organization"
	"github.com/darasahq/darasa/core/user"
	emailsvc "github.com/darasahq/darasa/services/email"
	dummydb "github.com/darasahq/darasa/storage/database/dummy"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testLogger struct {
	t *testing.T
}

func (l testLogger) Enable(enabled bool)                   {}
func (l testLogger) Debug(msg string, args ...interface{}) { l.t.Log(msg, args) }
func (l testLogger) Info(msg string, args ...interface{})  { l.t.Log(msg, args) }
func (l testLogger) Warn(msg string, args ...interface{})  { l.t.Log(msg, args) }
func (l testLogger) Error(msg string, args ...interface{}) { l.t.Log(msg, args) }
func (l testLogger) Fatal(msg string, args ...interface{}) { l.t.Fatal(msg, args) }

type env struct {
	conf *core.Config
	app  Server

	usrRepo user.Repository
	subRepo organization.Repository
	licRepo license.Repository
	invRepo invite.Repository

	licSvc license.Service
	invSvc invite.Service
}

func setup(t *testing.T) *env {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	conf := &core.Config{
		TestMode:                  true,
		AppName:                   "Darasa",
		SecretKey:                 "s3cr3t-t3st-k3y",
		FrontendBaseURL:           "http://localhost:3000",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		InvitationExpirationDelta: 7 * 24 * time.Hour,
		WorkDir:                   core.Getwd(),
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Billing: core.BillingConfig{
			TaxRate:  0.18,
			Currency: "INR",
			DiscountTiers: []core.DiscountTier{
				{MinSeats: 500, Percent: 30},
				{MinSeats: 100, Percent: 20},
				{MinSeats: 50, Percent: 10},
			},
		},
	}
	validate, translator := core.NewValidator()
	user.RegisterValidators(conf, validate, translator)
	logger := testLogger{t}

	// set up repos & services
	usrRepo := dummydb.NewUserRepository(db)
	subRepo := dummydb.NewSubscriptionRepository(db)
	licRepo := dummydb.NewLicenseRepository(db)
	invRepo := dummydb.NewInvitationRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewServiceMock(conf, usrRepo, mailSvc, logger)
	orgSvc := organization.NewService(subRepo, validate, logger)
	licSvc := license.NewService(licRepo, subRepo, validate, logger)
	invSvc := invite.NewService(conf, invRepo, licSvc, mailSvc, validate, logger)

	// set up server
	app := NewServer(
		&Options{
			Conf:           conf,
			Logger:         logger,
			DisableReqLogs: true,
			UserSvc:        usrSvc,
			OrgSvc:         orgSvc,
			LicenseSvc:     licSvc,
			InviteSvc:      invSvc,
			Calculator:     billing.NewCalculator(conf),
			Validate:       validate,
			Translator:     translator,
		},
	)

	return &env{
		conf:    conf,
		app:     app,
		usrRepo: usrRepo,
		subRepo: subRepo,
		licRepo: licRepo,
		invRepo: invRepo,
		licSvc:  licSvc,
		invSvc:  invSvc,
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, env *env, usr user.User) string {
	claims := GetUserClaims(usr, env.conf)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ObjectsAreEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
