package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/safiri/core"
	"github.com/trezcool/safiri/core/admin"
)

// addAdmin registers a back-office admin account. Admin accounts carry no
// password; they are gated by the identity provider at sign-in.
func (cli *commandLine) addAdmin(email, name string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)

	if _, err := cli.admRepo.GetAdminByEmail(ctx, email); err == nil {
		return nil // already registered
	} else if errors.Cause(err) != admin.ErrNotFound {
		return err
	}

	_, err := cli.admRepo.CreateAdmin(ctx, admin.Admin{
		Email:     email,
		Name:      core.CleanString(name),
		CreatedAt: time.Now().UTC(),
	})
	return err
}
