package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/safiri/core"
	identitysvc "github.com/trezcool/safiri/services/identity"
)

const accountColumns = "id, email, display_name, password_hash, is_disabled, failed_attempts, locked_until, created_at, updated_at, last_login"

type accountRow struct {
	ID             string    `db:"id"`
	Email          string    `db:"email"`
	DisplayName    string    `db:"display_name"`
	PasswordHash   []byte    `db:"password_hash"`
	IsDisabled     bool      `db:"is_disabled"`
	FailedAttempts int       `db:"failed_attempts"`
	LockedUntil    null.Time `db:"locked_until"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
	LastLogin      null.Time `db:"last_login"`
}

type accountRepository struct {
	db sqlx.ExtContext
}

var _ identitysvc.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db sqlx.ExtContext) *accountRepository {
	return &accountRepository{db: db}
}

func (repo accountRepository) unrow(row accountRow) identitysvc.Account {
	return identitysvc.Account{
		ID:             row.ID,
		Email:          row.Email,
		DisplayName:    row.DisplayName,
		PasswordHash:   row.PasswordHash,
		IsDisabled:     row.IsDisabled,
		FailedAttempts: row.FailedAttempts,
		LockedUntil:    row.LockedUntil.Time.UTC(),
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
		LastLogin:      row.LastLogin.Time.UTC(),
	}
}

func (repo accountRepository) CreateAccount(ctx context.Context, acct identitysvc.Account, exec ...core.DBExecutor) (identitysvc.Account, error) {
	exe := getExec(repo.db, exec)

	q := exe.Rebind(`
		INSERT INTO identity_account (` + accountColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := exe.ExecContext(ctx, q,
		acct.ID, acct.Email, acct.DisplayName, acct.PasswordHash,
		acct.IsDisabled, acct.FailedAttempts,
		null.NewTime(acct.LockedUntil.UTC(), !acct.LockedUntil.IsZero()),
		acct.CreatedAt.UTC(), acct.UpdatedAt.UTC(),
		null.NewTime(acct.LastLogin.UTC(), !acct.LastLogin.IsZero()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return identitysvc.Account{}, identitysvc.ErrEmailTaken
		}
		return identitysvc.Account{}, errors.Wrap(err, "inserting account")
	}
	return acct, nil
}

func (repo accountRepository) GetAccount(ctx context.Context, filter identitysvc.GetFilter, exec ...core.DBExecutor) (identitysvc.Account, error) {
	exe := getExec(repo.db, exec)

	q := `SELECT ` + accountColumns + ` FROM identity_account WHERE `
	var arg interface{}
	if filter.ID != "" {
		q += `id = ?`
		arg = filter.ID
	} else {
		q += `email = ?`
		arg = filter.Email
	}

	var row accountRow
	if err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(q), arg); err != nil {
		if err == sql.ErrNoRows {
			return identitysvc.Account{}, identitysvc.ErrAccountNotFound
		}
		return identitysvc.Account{}, errors.Wrap(err, "finding account")
	}
	return repo.unrow(row), nil
}

func (repo accountRepository) UpdateDisplayName(ctx context.Context, id, name string, exec ...core.DBExecutor) error {
	exe := getExec(repo.db, exec)

	q := exe.Rebind(`UPDATE identity_account SET display_name = ?, updated_at = ? WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q, name, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "updating account display name")
	}
	return repo.checkAffected(res, "updating account display name")
}

func (repo accountRepository) UpdatePassword(ctx context.Context, id string, hash []byte, exec ...core.DBExecutor) error {
	exe := getExec(repo.db, exec)

	q := exe.Rebind(`UPDATE identity_account SET password_hash = ?, updated_at = ? WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q, hash, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "updating account password")
	}
	return repo.checkAffected(res, "updating account password")
}

func (repo accountRepository) SetDisabled(ctx context.Context, id string, disabled bool, exec ...core.DBExecutor) error {
	exe := getExec(repo.db, exec)

	q := exe.Rebind(`UPDATE identity_account SET is_disabled = ?, updated_at = ? WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q, disabled, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "setting account disabled flag")
	}
	return repo.checkAffected(res, "setting account disabled flag")
}

func (repo accountRepository) SetLockout(ctx context.Context, id string, attempts int, lockedUntil time.Time, exec ...core.DBExecutor) error {
	exe := getExec(repo.db, exec)

	q := exe.Rebind(`UPDATE identity_account SET failed_attempts = ?, locked_until = ? WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q, attempts, null.NewTime(lockedUntil.UTC(), !lockedUntil.IsZero()), id)
	if err != nil {
		return errors.Wrap(err, "setting account lockout")
	}
	return repo.checkAffected(res, "setting account lockout")
}

func (repo accountRepository) SetLastLogin(ctx context.Context, id string, t time.Time, exec ...core.DBExecutor) error {
	exe := getExec(repo.db, exec)

	q := exe.Rebind(`UPDATE identity_account SET last_login = ? WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q, t.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "setting account lastLogin")
	}
	return repo.checkAffected(res, "setting account lastLogin")
}

func (repo accountRepository) checkAffected(res sql.Result, msg string) error {
	cnt, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if cnt == 0 {
		return identitysvc.ErrAccountNotFound
	}
	return nil
}
