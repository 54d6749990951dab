package main

import (
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/safiri/core"
	"github.com/trezcool/safiri/core/driver"
	"github.com/trezcool/safiri/core/user"
	emailsvc "github.com/trezcool/safiri/services/email"
	"github.com/trezcool/safiri/storage/database"
	sqlxrepos "github.com/trezcool/safiri/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	driver.InitValidators(validate, translator)

	drvRepo := sqlxrepos.NewDriverRepository(db)
	hasher := driver.NewBcryptHasher()

	// start CLI
	cli := commandLine{
		db:       db,
		drvSvc:   driver.NewService(db, drvRepo, sqlxrepos.NewUserRepository(db), hasher, emailsvc.NewConsoleService(conf), conf),
		drvRepo:  drvRepo,
		admRepo:  sqlxrepos.NewAdminRepository(db),
		hasher:   hasher,
		validate: validate,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
