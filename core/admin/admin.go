// Package admin exposes read-only access to the pre-provisioned back-office
// accounts. Admin accounts are created out-of-band (ops tooling), never by the
// application, and are consulted to gate admin sign-in.
package admin

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/safiri/core"
)

var ErrNotFound = errors.New("admin not found")

type (
	// Admin is an AdminAccount keyed by email.
	Admin struct {
		Email     string    `json:"email"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"created_at"` // UTC
	}

	Repository interface {
		GetAdminByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (Admin, error)
		QueryAllAdmins(ctx context.Context, exec ...core.DBExecutor) ([]Admin, error)
		// CreateAdmin exists for ops tooling (back-office CLI) only.
		CreateAdmin(ctx context.Context, adm Admin, exec ...core.DBExecutor) (Admin, error)
	}

	Service interface {
		GetByEmail(ctx context.Context, email string) (Admin, error)
		QueryAll(ctx context.Context) ([]Admin, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) GetByEmail(ctx context.Context, email string) (Admin, error) {
	return svc.repo.GetAdminByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *service) QueryAll(ctx context.Context) ([]Admin, error) {
	return svc.repo.QueryAllAdmins(ctx)
}
