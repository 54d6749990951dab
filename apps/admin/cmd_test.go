package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"strconv"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/safiri/core"
	"github.com/trezcool/safiri/core/admin"
	"github.com/trezcool/safiri/core/driver"
	"github.com/trezcool/safiri/core/user"
	emailsvc "github.com/trezcool/safiri/services/email"
	"github.com/trezcool/safiri/storage/database"
	inmemdb "github.com/trezcool/safiri/storage/database/inmem"
)

var (
	drvRepo driver.Repository
	admRepo admin.Repository
)

func setup(t *testing.T) *commandLine {
	t.Helper()

	conf := &core.Config{
		TestMode:         true,
		AppName:          "Safiri",
		DefaultFromEmail: mail.Address{Name: "Safiri", Address: "noreply@safiri.test"},
	}

	enLoc := en.New()
	uni := ut.New(enLoc, enLoc)
	trans, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, trans)
	user.InitValidators(validate, trans)
	driver.InitValidators(validate, trans)

	db := inmemdb.NewDB()
	drvRepo = inmemdb.NewDriverRepository(db)
	admRepo = inmemdb.NewAdminRepository(db)
	hasher := driver.NewBcryptHasher()

	return &commandLine{
		db:       database.DB{},
		drvSvc:   driver.NewService(inmemdb.NewFakeDB(), drvRepo, inmemdb.NewUserRepository(db), hasher, emailsvc.NewConsoleServiceMock(conf), conf),
		drvRepo:  drvRepo,
		admRepo:  admRepo,
		hasher:   hasher,
		validate: validate,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	migrateFunc = func(command string, db *sql.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "fleet", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_addAdmin(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"addadmin"}, wantErr: errHelp},
		{name: "email but no name", args: []string{"addadmin", "-email", "ops@safiri.test"}, wantErr: errHelp},
		{name: "add admin", args: []string{"addadmin", "-email", "ops@safiri.test", "-name", "Ops Person"}},
		{name: "add admin twice is a no-op", args: []string{"addadmin", "-email", "ops@safiri.test", "-name", "Ops Person"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				if _, err = admRepo.GetAdminByEmail(context.Background(), "ops@safiri.test"); err != nil {
					t.Errorf("GetAdminByEmail() failed, %v", err)
				}
			} else if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_addDriver(t *testing.T) {
	cli := setup(t)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adddriver"}, wantErr: errHelp},
		{name: "id but no name nor email", args: []string{"adddriver", "-id", "drv-1"}, wantErr: errHelp},
		{name: "no password", args: []string{"adddriver", "-id", "drv-1", "-name", "Awe Mose", "-email", "awe@safiri.test"}, wantErr: errHelp},
		{
			name:  "add driver",
			args:  []string{"adddriver", "-id", "drv-1", "-name", "Awe Mose", "-email", "awe@safiri.test", "-phone", "+243 999"},
			extra: extra{pwd: "s3cr3t!"},
		},
		{
			name:       "duplicate driver ID",
			args:       []string{"adddriver", "-id", "drv-1", "-name", "Imposter", "-email", "imposter@safiri.test"},
			extra:      extra{pwd: "s3cr3t!"},
			wantErrStr: "a driver with this driver ID already exists",
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				drv, err := drvRepo.GetDriver(context.Background(), driver.GetFilter{DriverID: "drv-1"})
				if err != nil {
					t.Fatalf("GetDriver() failed, %v", err)
				}
				if drv.IsProvisioned() {
					t.Error("freshly created driver should carry a pending ID")
				}
				if !drv.Active() {
					t.Error("freshly created driver should be active")
				}
			} else if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
			} else if tt.wantErrStr != "" {
				vErr, ok := err.(*core.ValidationError)
				if !ok {
					t.Fatalf("cli.run() error = %v, want validation error", err)
				}
				if len(vErr.Fields) == 0 || vErr.Fields[0].Error != tt.wantErrStr {
					t.Errorf("cli.run() validation error = %v, wantErrStr %s", vErr.Fields, tt.wantErrStr)
				}
			} else {
				t.Errorf("cli.run() unexpected error = %v", err)
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	nd := driver.NewDriver{DriverID: "drv-9", Name: "Awe Mose", Email: "awe@safiri.test", Password: "oldpwd!"}
	drv, err := cli.drvSvc.Create(context.Background(), nd)
	if err != nil {
		t.Fatalf("creating fixture driver: %v", err)
	}

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "driver but no password", args: []string{"resetpassword", "-driver", "drv-9"}, wantErr: errHelp},
		{name: "driver not found", args: []string{"resetpassword", "-driver", "ghost"}, extra: extra{pwd: "lol"}, wantErr: driver.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-driver", "drv-9"}, extra: extra{pwd: "newpwd!"}},
		{name: "reset with mixed-case ID", args: []string{"resetpassword", "-driver", "DRV-9"}, extra: extra{pwd: "anotha1!"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshed, err := drvRepo.GetDriver(context.Background(), driver.GetFilter{ID: drv.ID})
				if err != nil {
					t.Fatalf("GetDriver() failed, %v", err)
				}
				if bytes.Equal(refreshed.PasswordHash, drv.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
