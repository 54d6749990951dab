package main

import (
	"context"

	"github.com/trezcool/safiri/core"
	"github.com/trezcool/safiri/core/driver"
)

// resetPassword overwrites a driver's password without requiring the current
// one. Ops tooling only.
func (cli *commandLine) resetPassword(driverID, pwd string) error {
	ctx := context.Background()
	drv, err := cli.drvRepo.GetDriver(ctx, driver.GetFilter{DriverID: core.CleanString(driverID, true /* lower */)})
	if err != nil {
		return err
	}
	hash, err := cli.hasher.Hash(pwd)
	if err != nil {
		return err
	}
	return cli.drvRepo.UpdatePassword(ctx, drv.ID, hash)
}
