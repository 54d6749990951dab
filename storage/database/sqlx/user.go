package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/safiri/core"
	"github.com/trezcool/safiri/core/user"
)

const userColumns = "id, name, email, role, student_id, department, level, is_active, created_at, updated_at"

type userRow struct {
	ID         string      `db:"id"`
	Name       string      `db:"name"`
	Email      string      `db:"email"`
	Role       string      `db:"role"`
	StudentID  null.String `db:"student_id"`
	Department null.String `db:"department"`
	Level      null.String `db:"level"`
	IsActive   null.Bool   `db:"is_active"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

type userRepository struct {
	db sqlx.ExtContext
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db sqlx.ExtContext) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) unrow(row userRow) user.User {
	return user.User{
		ID:         row.ID,
		Name:       row.Name,
		Email:      row.Email,
		Role:       row.Role,
		StudentID:  row.StudentID.String,
		Department: row.Department.String,
		Level:      row.Level.String,
		IsActive:   row.IsActive.Ptr(),
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

func (repo userRepository) unrowSlice(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.unrow(row))
	}
	return users
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	exe := getExec(repo.db, exec)

	q := `SELECT EXISTS (SELECT 1 FROM user_profile WHERE email = ?)`
	args := []interface{}{email}

	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		var err error
		q, args, err = sqlx.In(`SELECT EXISTS (SELECT 1 FROM user_profile WHERE email = ? AND id NOT IN (?))`, email, ids)
		if err != nil {
			return errors.Wrap(err, "building user uniqueness query")
		}
	}

	var exists bool
	if err := sqlx.GetContext(ctx, exe, &exists, exe.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := getExec(repo.db, exec)

	q := exe.Rebind(`
		INSERT INTO user_profile (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := exe.ExecContext(ctx, q,
		usr.ID, usr.Name, usr.Email, usr.Role,
		null.NewString(usr.StudentID, usr.StudentID != ""),
		null.NewString(usr.Department, usr.Department != ""),
		null.NewString(usr.Level, usr.Level != ""),
		usr.Active(), usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	exe := getExec(repo.db, exec)

	q := `SELECT ` + userColumns + ` FROM user_profile WHERE `
	var arg interface{}
	if filter.ID != "" {
		q += `id = ?`
		arg = filter.ID
	} else {
		q += `email = ?`
		arg = filter.Email
	}

	var row userRow
	if err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(q), arg); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user")
	}
	return repo.unrow(row), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	exe := getExec(repo.db, exec)

	var conds []string
	var args []interface{}

	if filter != nil {
		// users with Name, Email or StudentID matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			conds = append(conds, `(name ILIKE ? OR email ILIKE ? OR student_id ILIKE ?)`)
			args = append(args, val, val, val)
		}
		if filter.Role != "" {
			conds = append(conds, `role = ?`)
			args = append(args, filter.Role)
		}
		if filter.IsActive != nil {
			conds = append(conds, `is_active = ?`)
			args = append(args, *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			conds = append(conds, `created_at >= ?`)
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			conds = append(conds, `created_at <= ?`)
			args = append(args, filter.CreatedTo.UTC())
		}
	}

	q := `SELECT ` + userColumns + ` FROM user_profile`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += orderBy(ordering, "created_at ASC")

	var rows []userRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.unrowSlice(rows), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := getExec(repo.db, exec)

	// only save set fields
	sets := []string{`updated_at = ?`}
	args := []interface{}{usr.UpdatedAt.UTC()}
	if usr.Name != "" {
		sets = append(sets, `name = ?`)
		args = append(args, usr.Name)
	}
	if usr.Email != "" {
		sets = append(sets, `email = ?`)
		args = append(args, usr.Email)
	}
	if usr.StudentID != "" {
		sets = append(sets, `student_id = ?`)
		args = append(args, usr.StudentID)
	}
	if usr.Department != "" {
		sets = append(sets, `department = ?`)
		args = append(args, usr.Department)
	}
	if usr.Level != "" {
		sets = append(sets, `level = ?`)
		args = append(args, usr.Level)
	}
	if usr.IsActive != nil {
		sets = append(sets, `is_active = ?`)
		args = append(args, *usr.IsActive)
	}
	args = append(args, usr.ID)

	q := `UPDATE user_profile SET ` + strings.Join(sets, ", ") + ` WHERE id = ? RETURNING ` + userColumns

	var row userRow
	if err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(q), args...); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, repo.trapNoRowsErr(err, "updating user")
	}
	return repo.unrow(row), nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	exe := getExec(repo.db, exec)

	q, args, err := sqlx.In(`DELETE FROM user_profile WHERE id IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "building user delete query")
	}
	res, err := exe.ExecContext(ctx, exe.Rebind(q), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(cnt), nil
}
