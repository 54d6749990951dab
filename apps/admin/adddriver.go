package main

import (
	"context"

	"github.com/trezcool/safiri/core/driver"
)

func (cli *commandLine) addDriver(driverID, name, email, phone, pwd string) error {
	nd := driver.NewDriver{
		DriverID: driverID,
		Name:     name,
		Email:    email,
		Phone:    phone,
		Password: pwd,
	}
	if err := nd.Validate(cli.validate, cli.drvSvc); err != nil {
		return err
	}
	_, err := cli.drvSvc.Create(context.Background(), nd)
	return err
}
