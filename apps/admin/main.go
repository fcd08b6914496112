package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/reconcile"
	emailsvc "github.com/trezcool/carematrix/services/email"
	logsvc "github.com/trezcool/carematrix/services/logger"
	"github.com/trezcool/carematrix/storage/database"
	sqlxrepos "github.com/trezcool/carematrix/storage/database/sqlx"
)

func main() {
	os.Exit(start())
}

func start() int {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("admin"), conf)
	logger.Enable(!conf.Debug)
	defer func() { _ = logger.Sync() }()

	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	if err = core.ValidateConfig(validate, conf); err != nil {
		logger.Error("invalid configuration", err)
		return 1
	}

	// set up DB
	if err = database.CreateIfNotExist(conf); err != nil {
		logger.Error("creating database", err)
		return 1
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Error("opening database", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	// digests go to stderr in DEV so they don't mix with command output
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, os.Stderr)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	// start CLI
	cli := commandLine{
		db:       db,
		store:    sqlxrepos.NewStore(db),
		validate: validate,
		logger:   logger,
		notifier: reconcile.NewReviewNotifier(mailSvc, conf),
		conf:     conf.Reconcile,
		out:      os.Stdout,
	}
	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		return 1
	}
	return 0
}
