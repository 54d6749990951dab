package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/safiri/apps/api/echo"
	"github.com/trezcool/safiri/core"
	"github.com/trezcool/safiri/core/admin"
	"github.com/trezcool/safiri/core/driver"
	"github.com/trezcool/safiri/core/fleet"
	"github.com/trezcool/safiri/core/session"
	"github.com/trezcool/safiri/core/user"
	emailsvc "github.com/trezcool/safiri/services/email"
	identitysvc "github.com/trezcool/safiri/services/identity"
	logsvc "github.com/trezcool/safiri/services/logger"
	"github.com/trezcool/safiri/storage/clientstore"
	"github.com/trezcool/safiri/storage/database"
	sqlxrepos "github.com/trezcool/safiri/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(logger, conf)
	}

	validate := validator.New()
	translator := newTranslator()

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db))
	drvSvc := driver.NewService(db, sqlxrepos.NewDriverRepository(db), sqlxrepos.NewUserRepository(db), driver.NewBcryptHasher(), mailSvc, conf)
	admSvc := admin.NewService(sqlxrepos.NewAdminRepository(db))
	fltSvc := fleet.NewService(sqlxrepos.NewFleetRepository(db))
	idSvc := identitysvc.NewService(sqlxrepos.NewAccountRepository(db), mailSvc, logger, conf)

	store, err := clientstore.NewRedisStore(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("connecting to credential store: %v", err), err)
	}

	sessions := session.NewManager(session.ManagerDeps{
		Users:   usrSvc,
		Drivers: drvSvc,
		Admins:  admSvc,
		Store:   store,
		NewProvider: func(clientID string) session.Provider {
			return identitysvc.NewClientProvider(idSvc)
		},
		Validate: validate,
		Logger:   logger,
	})
	defer sessions.Close()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	driver.InitValidators(validate, translator)
	fleet.InitValidators(validate, translator)
	session.InitValidators(validate, translator, conf.WorkDir)

	core.ParseEmailTemplates(conf, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err = http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		&echoapi.Options{
			Addr:        conf.Server.Host,
			Conf:        conf,
			Logger:      logger,
			Sessions:    sessions,
			UserSvc:     usrSvc,
			DriverSvc:   drvSvc,
			AdminSvc:    admSvc,
			FleetSvc:    fltSvc,
			IdentitySvc: idSvc,
			Validate:    validate,
			Translator:  translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (database.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return database.DB{}, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return database.DB{}, err
	}

	if err = database.Migrate(db.DB.DB); err != nil {
		return database.DB{}, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
