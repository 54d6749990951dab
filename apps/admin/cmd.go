package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/safiri/core/admin"
	"github.com/trezcool/safiri/core/driver"
	"github.com/trezcool/safiri/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       database.DB
	drvSvc   driver.Service
	drvRepo  driver.Repository
	admRepo  admin.Repository
	hasher   driver.Hasher
	validate *validator.Validate
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a migration command (up, down, status, ...)")
	fmt.Println("  addadmin -email EMAIL -name NAME - register a back-office admin account")
	fmt.Println("  adddriver -id DRIVER_ID -name NAME -email EMAIL [-phone PHONE] - create a driver account; the password will be prompted")
	fmt.Println("  resetpassword -driver DRIVER_ID - reset a driver's password; the new password will be prompted")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addAdminCmd := flag.NewFlagSet("addadmin", flag.ExitOnError)
	addAdminEmail := addAdminCmd.String("email", "", "The admin's email.")
	addAdminName := addAdminCmd.String("name", "", "The admin's full name.")

	addDriverCmd := flag.NewFlagSet("adddriver", flag.ExitOnError)
	addDriverID := addDriverCmd.String("id", "", "The driver's human-chosen ID. Alphanumerics, dashes and underscores only.")
	addDriverName := addDriverCmd.String("name", "", "The driver's full name.")
	addDriverEmail := addDriverCmd.String("email", "", "The driver's email.")
	addDriverPhone := addDriverCmd.String("phone", "", "The driver's phone number (optional).")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordDrvID := resetPasswordCmd.String("driver", "", "The driver's ID. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "addadmin":
		if err := addAdminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addAdminEmail == "" || *addAdminName == "" {
			addAdminCmd.Usage()
			return errHelp
		}
		return cli.addAdmin(*addAdminEmail, *addAdminName)
	case "adddriver":
		if err := addDriverCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addDriverID == "" || *addDriverName == "" || *addDriverEmail == "" {
			addDriverCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			addDriverCmd.Usage()
			return errHelp
		}
		return cli.addDriver(*addDriverID, *addDriverName, *addDriverEmail, *addDriverPhone, string(pwd))
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordDrvID == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordDrvID, string(pwd))
	default:
		cli.printUsage()
		return errHelp
	}
}

func promptPassword() ([]byte, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	return pwd, err
}
