package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/safiri/core"
	"github.com/trezcool/safiri/core/driver"
)

const driverColumns = "id, driver_id, name, email, phone, password_hash, is_active, status, shuttle_id, route_id, created_at, updated_at, last_login"

type driverRow struct {
	ID           string      `db:"id"`
	DriverID     string      `db:"driver_id"`
	Name         string      `db:"name"`
	Email        string      `db:"email"`
	Phone        null.String `db:"phone"`
	PasswordHash []byte      `db:"password_hash"`
	IsActive     null.Bool   `db:"is_active"`
	Status       string      `db:"status"`
	ShuttleID    null.String `db:"shuttle_id"`
	RouteID      null.String `db:"route_id"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

type driverRepository struct {
	db sqlx.ExtContext
}

var _ driver.Repository = (*driverRepository)(nil) // interface compliance check

func NewDriverRepository(db sqlx.ExtContext) *driverRepository {
	return &driverRepository{db: db}
}

func (repo driverRepository) unrow(row driverRow) driver.Driver {
	return driver.Driver{
		ID:           row.ID,
		DriverID:     row.DriverID,
		Name:         row.Name,
		Email:        row.Email,
		Phone:        row.Phone.String,
		PasswordHash: row.PasswordHash,
		IsActive:     row.IsActive.Ptr(),
		Status:       row.Status,
		ShuttleID:    row.ShuttleID.String,
		RouteID:      row.RouteID.String,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		LastLogin:    row.LastLogin.Time.UTC(),
	}
}

func (repo driverRepository) unrowSlice(rows []driverRow) []driver.Driver {
	drivers := make([]driver.Driver, 0, len(rows))
	for _, row := range rows {
		drivers = append(drivers, repo.unrow(row))
	}
	return drivers
}

// trapNoRowsErr maps psql "no rows" err to driver.ErrNotFound
func (repo driverRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return driver.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo driverRepository) CheckUniqueness(ctx context.Context, driverID, email string, excludedDrivers []driver.Driver, exec ...core.DBExecutor) error {
	exe := getExec(repo.db, exec)

	q := `SELECT driver_id = ? AS id_taken FROM driver_account WHERE (driver_id = ? OR email = ?)`
	args := []interface{}{driverID, driverID, email}

	if len(excludedDrivers) > 0 {
		ids := make([]string, 0, len(excludedDrivers))
		for _, d := range excludedDrivers {
			ids = append(ids, d.ID)
		}
		var err error
		q, args, err = sqlx.In(q+` AND id NOT IN (?)`, driverID, driverID, email, ids)
		if err != nil {
			return errors.Wrap(err, "building driver uniqueness query")
		}
	}

	var idTaken bool
	err := sqlx.GetContext(ctx, exe, &idTaken, exe.Rebind(q+` LIMIT 1`), args...)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "checking driver uniqueness")
	}
	if idTaken {
		return driver.ErrDriverIDExists
	}
	return driver.ErrEmailExists
}

func (repo driverRepository) CreateDriver(ctx context.Context, drv driver.Driver, exec ...core.DBExecutor) (driver.Driver, error) {
	exe := getExec(repo.db, exec)

	q := exe.Rebind(`
		INSERT INTO driver_account (` + driverColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := exe.ExecContext(ctx, q,
		drv.ID, drv.DriverID, drv.Name, drv.Email,
		null.NewString(drv.Phone, drv.Phone != ""),
		drv.PasswordHash, drv.Active(), drv.Status,
		null.NewString(drv.ShuttleID, drv.ShuttleID != ""),
		null.NewString(drv.RouteID, drv.RouteID != ""),
		drv.CreatedAt.UTC(), drv.UpdatedAt.UTC(),
		null.NewTime(drv.LastLogin.UTC(), !drv.LastLogin.IsZero()),
	)
	if err != nil {
		if uniqueErr := repo.trapUniqueErr(err); uniqueErr != nil {
			return driver.Driver{}, uniqueErr
		}
		return driver.Driver{}, errors.Wrap(err, "inserting driver")
	}
	return drv, nil
}

// trapUniqueErr maps a psql unique violation to the colliding-column error.
func (repo driverRepository) trapUniqueErr(err error) error {
	if !isUniqueViolation(err) {
		return nil
	}
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && strings.Contains(pqErr.Constraint, "email") {
		return driver.ErrEmailExists
	}
	return driver.ErrDriverIDExists
}

func (repo driverRepository) GetDriver(ctx context.Context, filter driver.GetFilter, exec ...core.DBExecutor) (driver.Driver, error) {
	exe := getExec(repo.db, exec)

	q := `SELECT ` + driverColumns + ` FROM driver_account WHERE `
	var arg interface{}
	switch {
	case filter.ID != "":
		q += `id = ?`
		arg = filter.ID
	case filter.DriverID != "":
		q += `driver_id = ?`
		arg = filter.DriverID
	default:
		q += `email = ?`
		arg = filter.Email
	}

	var row driverRow
	if err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(q), arg); err != nil {
		return driver.Driver{}, repo.trapNoRowsErr(err, "finding driver")
	}
	return repo.unrow(row), nil
}

func (repo driverRepository) QueryDrivers(ctx context.Context, filter *driver.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]driver.Driver, error) {
	exe := getExec(repo.db, exec)

	var conds []string
	var args []interface{}

	if filter != nil {
		// drivers with Name, DriverID or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			conds = append(conds, `(name ILIKE ? OR driver_id ILIKE ? OR email ILIKE ?)`)
			args = append(args, val, val, val)
		}
		if filter.Status != "" {
			conds = append(conds, `status = ?`)
			args = append(args, filter.Status)
		}
		if filter.IsActive != nil {
			conds = append(conds, `is_active = ?`)
			args = append(args, *filter.IsActive)
		}
		if filter.RouteID != "" {
			conds = append(conds, `route_id = ?`)
			args = append(args, filter.RouteID)
		}
	}

	q := `SELECT ` + driverColumns + ` FROM driver_account`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += orderBy(ordering, "created_at ASC")

	var rows []driverRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying drivers")
	}
	return repo.unrowSlice(rows), nil
}

func (repo driverRepository) UpdateDriver(ctx context.Context, drv driver.Driver, exec ...core.DBExecutor) (driver.Driver, error) {
	exe := getExec(repo.db, exec)

	// only save set fields
	sets := []string{`updated_at = ?`}
	args := []interface{}{drv.UpdatedAt.UTC()}
	if drv.Name != "" {
		sets = append(sets, `name = ?`)
		args = append(args, drv.Name)
	}
	if drv.Email != "" {
		sets = append(sets, `email = ?`)
		args = append(args, drv.Email)
	}
	if drv.Phone != "" {
		sets = append(sets, `phone = ?`)
		args = append(args, drv.Phone)
	}
	if drv.Status != "" {
		sets = append(sets, `status = ?`)
		args = append(args, drv.Status)
	}
	if drv.IsActive != nil {
		sets = append(sets, `is_active = ?`)
		args = append(args, *drv.IsActive)
	}
	args = append(args, drv.ID)

	q := `UPDATE driver_account SET ` + strings.Join(sets, ", ") + ` WHERE id = ? RETURNING ` + driverColumns

	var row driverRow
	if err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(q), args...); err != nil {
		if uniqueErr := repo.trapUniqueErr(err); uniqueErr != nil {
			return driver.Driver{}, uniqueErr
		}
		return driver.Driver{}, repo.trapNoRowsErr(err, "updating driver")
	}
	return repo.unrow(row), nil
}

func (repo driverRepository) MigrateDriverPK(ctx context.Context, oldID, newID string, exec ...core.DBExecutor) error {
	exe := getExec(repo.db, exec)

	q := exe.Rebind(`UPDATE driver_account SET id = ?, updated_at = ? WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q, newID, time.Now().UTC(), oldID)
	if err != nil {
		return errors.Wrap(err, "migrating driver ID")
	}
	return repo.checkAffected(res, "migrating driver ID")
}

func (repo driverRepository) UpdatePassword(ctx context.Context, id string, hash []byte, exec ...core.DBExecutor) error {
	exe := getExec(repo.db, exec)

	q := exe.Rebind(`UPDATE driver_account SET password_hash = ?, updated_at = ? WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q, hash, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "updating driver password")
	}
	return repo.checkAffected(res, "updating driver password")
}

func (repo driverRepository) AssignDriver(ctx context.Context, id, shuttleID, routeID string, exec ...core.DBExecutor) (driver.Driver, error) {
	exe := getExec(repo.db, exec)

	q := `UPDATE driver_account SET shuttle_id = ?, route_id = ?, updated_at = ? WHERE id = ? RETURNING ` + driverColumns

	var row driverRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(q),
		null.NewString(shuttleID, shuttleID != ""),
		null.NewString(routeID, routeID != ""),
		time.Now().UTC(), id,
	)
	if err != nil {
		return driver.Driver{}, repo.trapNoRowsErr(err, "assigning driver")
	}
	return repo.unrow(row), nil
}

func (repo driverRepository) SetLastLogin(ctx context.Context, id string, t time.Time, exec ...core.DBExecutor) error {
	exe := getExec(repo.db, exec)

	q := exe.Rebind(`UPDATE driver_account SET last_login = ? WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q, t.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "setting driver lastLogin")
	}
	return repo.checkAffected(res, "setting driver lastLogin")
}

func (repo driverRepository) DeleteDriversByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	exe := getExec(repo.db, exec)

	q, args, err := sqlx.In(`DELETE FROM driver_account WHERE id IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "building driver delete query")
	}
	res, err := exe.ExecContext(ctx, exe.Rebind(q), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting drivers")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting drivers")
	}
	return int(cnt), nil
}

func (repo driverRepository) checkAffected(res sql.Result, msg string) error {
	cnt, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if cnt == 0 {
		return driver.ErrNotFound
	}
	return nil
}
