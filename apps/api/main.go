package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	echoapi "github.com/darasahq/darasa/apps/api/echo"
	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/billing"
	"github.com/darasahq/darasa/core/invite"
	"github.com/darasahq/darasa/core/license"
	"github.com/darasahq/darasa/core/organization"
	"github.com/darasahq/darasa/core/user"
	emailsvc "github.com/darasahq/darasa/services/email"
	logsvc "github.com/darasahq/darasa/services/logger"
	"github.com/darasahq/darasa/storage/database"
	sqlxrepos "github.com/darasahq/darasa/storage/database/sqlx"
)

func main() {
	conf, err := core.NewConfig()
	errAndDie(err)

	std := log.New(os.Stdout, conf.AppName+" - ", log.LstdFlags|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(std, conf)
	logger.Enable(!conf.Debug)

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(database.Migrate(db.DB))

	validate, translator := core.NewValidator()
	user.RegisterValidators(conf, validate, translator)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	usrSvc := user.NewService(conf, sqlxrepos.NewUserRepository(db), mailSvc, logger)
	subRepo := sqlxrepos.NewSubscriptionRepository(db)
	orgSvc := organization.NewService(subRepo, validate, logger)
	licSvc := license.NewService(sqlxrepos.NewLicenseRepository(db), subRepo, validate, logger)
	invSvc := invite.NewService(conf, sqlxrepos.NewInvitationRepository(db), licSvc, mailSvc, validate, logger)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// start API server
	app := echoapi.NewServer(
		&echoapi.Options{
			Address:    conf.ServerAddress(),
			Conf:       conf,
			Logger:     logger,
			UserSvc:    usrSvc,
			OrgSvc:     orgSvc,
			LicenseSvc: licSvc,
			InviteSvc:  invSvc,
			Calculator: billing.NewCalculator(conf),
			Validate:   validate,
			Translator: translator,
			SignalShutdown: func() {
				shutdown <- syscall.SIGTERM
			},
		},
	)
	go app.Start()

	<-shutdown
	logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		logger.Error("graceful shutdown failed", err)
	}
}

func errAndDie(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
