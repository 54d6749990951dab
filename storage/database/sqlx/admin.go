package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/safiri/core"
	"github.com/trezcool/safiri/core/admin"
)

const adminColumns = "email, name, created_at"

type adminRow struct {
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

type adminRepository struct {
	db sqlx.ExtContext
}

var _ admin.Repository = (*adminRepository)(nil) // interface compliance check

func NewAdminRepository(db sqlx.ExtContext) *adminRepository {
	return &adminRepository{db: db}
}

func (repo adminRepository) unrow(row adminRow) admin.Admin {
	return admin.Admin{
		Email:     row.Email,
		Name:      row.Name,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

func (repo adminRepository) GetAdminByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (admin.Admin, error) {
	exe := getExec(repo.db, exec)

	var row adminRow
	q := exe.Rebind(`SELECT ` + adminColumns + ` FROM admin_account WHERE email = ?`)
	if err := sqlx.GetContext(ctx, exe, &row, q, email); err != nil {
		if err == sql.ErrNoRows {
			return admin.Admin{}, admin.ErrNotFound
		}
		return admin.Admin{}, errors.Wrap(err, "finding admin")
	}
	return repo.unrow(row), nil
}

func (repo adminRepository) QueryAllAdmins(ctx context.Context, exec ...core.DBExecutor) ([]admin.Admin, error) {
	exe := getExec(repo.db, exec)

	var rows []adminRow
	q := `SELECT ` + adminColumns + ` FROM admin_account ORDER BY created_at ASC`
	if err := sqlx.SelectContext(ctx, exe, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying admins")
	}

	admins := make([]admin.Admin, 0, len(rows))
	for _, row := range rows {
		admins = append(admins, repo.unrow(row))
	}
	return admins, nil
}

func (repo adminRepository) CreateAdmin(ctx context.Context, adm admin.Admin, exec ...core.DBExecutor) (admin.Admin, error) {
	exe := getExec(repo.db, exec)

	q := exe.Rebind(`INSERT INTO admin_account (` + adminColumns + `) VALUES (?, ?, ?)`)
	if _, err := exe.ExecContext(ctx, q, adm.Email, adm.Name, adm.CreatedAt.UTC()); err != nil {
		return admin.Admin{}, errors.Wrap(err, "inserting admin")
	}
	return adm, nil
}
