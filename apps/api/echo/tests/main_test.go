package tests

import (
	"context"
	"log"
	"net/mail"
	"os"
	"testing"
	"time"

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
	inmemdb "github.com/trezcool/safiri/storage/database/inmem"
)

var (
	ctx = context.Background()

	app echoapi.Server

	db       *inmemdb.DB
	usrSvc   user.Service
	drvSvc   driver.Service
	admSvc   admin.Service
	fltSvc   fleet.Service
	idSvc    *identitysvc.Service
	sessions *session.Manager

	errMissingToken    = httpErr{Error: "missing or malformed jwt"}
	errMissingClientID = httpErr{Error: "missing X-Client-ID header"}
)

const strongPwd = "s3cur3-Pass!"

func TestMain(m *testing.M) {
	conf := &core.Config{
		TestMode:                  true,
		AppName:                   "Safiri",
		SecretKey:                 []byte("secret"),
		DefaultFromEmail:          mail.Address{Name: "Safiri", Address: "noreply@safiri.test"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
	}
	conf.Auth.MaxLoginAttempts = 3
	conf.Auth.LockoutPeriod = 10 * time.Minute
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = 4 * time.Hour

	enLoc := en.New()
	uni := ut.New(enLoc, enLoc)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	driver.InitValidators(validate, translator)
	fleet.InitValidators(validate, translator)
	session.InitValidators(validate, translator, conf.WorkDir)

	logger := logsvc.NewConsoleLogger(log.New(os.Stdout, "TEST : ", 0))
	mailSvc := emailsvc.NewConsoleServiceMock(conf)

	// set up repos & services
	db = inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(db)
	usrSvc = user.NewService(usrRepo)
	drvSvc = driver.NewService(inmemdb.NewFakeDB(), inmemdb.NewDriverRepository(db), usrRepo, driver.NewBcryptHasher(), mailSvc, conf)
	admSvc = admin.NewService(inmemdb.NewAdminRepository(db))
	fltSvc = fleet.NewService(inmemdb.NewFleetRepository(db))
	idSvc = identitysvc.NewService(inmemdb.NewAccountRepository(db), mailSvc, logger, conf)

	sessions = session.NewManager(session.ManagerDeps{
		Users:   usrSvc,
		Drivers: drvSvc,
		Admins:  admSvc,
		Store:   clientstore.NewInmemStore(),
		NewProvider: func(clientID string) session.Provider {
			return identitysvc.NewClientProvider(idSvc)
		},
		Validate: validate,
		Logger:   logger,
	})

	// set up server
	app = echoapi.NewServer(
		&echoapi.Options{
			DisableReqLogs: true,
			Conf:           conf,
			Logger:         logger,
			Sessions:       sessions,
			UserSvc:        usrSvc,
			DriverSvc:      drvSvc,
			AdminSvc:       admSvc,
			FleetSvc:       fltSvc,
			IdentitySvc:    idSvc,
			Validate:       validate,
			Translator:     translator,
		},
	)

	code := m.Run()

	sessions.Close()
	os.Exit(code)
}

func createDriver(t *testing.T, driverID, email, password string) driver.Driver {
	t.Helper()
	drv, err := drvSvc.Create(ctx, driver.NewDriver{
		DriverID: driverID,
		Name:     "Test Driver",
		Email:    email,
		Phone:    "+254700000000",
		Password: password,
	})
	if err != nil {
		t.Fatalf("drvSvc.Create(): %v", err)
	}
	return drv
}

func createAdmin(t *testing.T, name, email, password string) {
	t.Helper()
	if _, err := idSvc.CreateAccount(ctx, email, password, name); err != nil {
		t.Fatalf("CreateAccount(): %v", err)
	}
	if _, err := inmemdb.NewAdminRepository(db).CreateAdmin(ctx, admin.Admin{
		Email:     email,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("CreateAdmin(): %v", err)
	}
}
