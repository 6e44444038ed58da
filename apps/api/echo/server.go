package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/billing"
	"github.com/darasahq/darasa/core/invite"
	"github.com/darasahq/darasa/core/license"
	"github.com/darasahq/darasa/core/organization"
	"github.com/darasahq/darasa/core/user"
)

type (
	Options struct {
		Address        string
		Conf           *core.Config
		Logger         core.Logger
		DisableReqLogs bool

		UserSvc    user.Service
		OrgSvc     organization.Service
		LicenseSvc license.Service
		InviteSvc  invite.Service
		Calculator *billing.Calculator

		Validate   *validator.Validate
		Translator ut.Translator

		// SignalShutdown is called whenever an unrecoverable error is caught
		// so main can shut the process down gracefully.
		SignalShutdown func()
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	appJWTConfig.SigningKey = []byte(opts.Conf.SecretKey)

	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	signalShutdown := s.opts.SignalShutdown
	if signalShutdown == nil {
		signalShutdown = func() {}
	}
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(appJWTConfig)

	registerUserAPI(v1, jwt, s.opts.UserSvc, s.opts.Validate, conf)
	registerBillingAPI(v1, s.opts.Calculator, s.opts.Validate)
	registerOrganizationAPI(v1, jwt, s.opts.OrgSvc, s.opts.LicenseSvc, s.opts.Calculator, s.opts.Validate)
	registerLicenseAPI(v1, jwt, s.opts.LicenseSvc, s.opts.Validate)
	registerInvitationAPI(v1, jwt, s.opts.InviteSvc, s.opts.Validate)
}

func (s *server) Start() {
	if err := s.app.Start(s.opts.Address); err != nil && err != http.ErrServerClosed {
		s.app.Logger.Fatal(err)
	}
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Darasa API!")
}
