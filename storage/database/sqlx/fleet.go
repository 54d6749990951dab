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
	"github.com/trezcool/safiri/core/fleet"
)

const (
	shuttleColumns  = "id, name, plate, capacity, is_active, route_id, created_at, updated_at"
	stopColumns     = "id, name, latitude, longitude, created_at"
	routeColumns    = "id, name, description, is_active, created_at, updated_at"
	scheduleColumns = "id, route_id, weekdays, departure, is_active, created_at, updated_at"
)

type (
	shuttleRow struct {
		ID        string      `db:"id"`
		Name      string      `db:"name"`
		Plate     string      `db:"plate"`
		Capacity  int         `db:"capacity"`
		IsActive  null.Bool   `db:"is_active"`
		RouteID   null.String `db:"route_id"`
		CreatedAt time.Time   `db:"created_at"`
		UpdatedAt time.Time   `db:"updated_at"`
	}

	stopRow struct {
		ID        string    `db:"id"`
		Name      string    `db:"name"`
		Latitude  float64   `db:"latitude"`
		Longitude float64   `db:"longitude"`
		CreatedAt time.Time `db:"created_at"`
	}

	routeRow struct {
		ID          string      `db:"id"`
		Name        string      `db:"name"`
		Description null.String `db:"description"`
		IsActive    null.Bool   `db:"is_active"`
		CreatedAt   time.Time   `db:"created_at"`
		UpdatedAt   time.Time   `db:"updated_at"`
	}

	scheduleRow struct {
		ID        string         `db:"id"`
		RouteID   string         `db:"route_id"`
		Weekdays  pq.StringArray `db:"weekdays"`
		Departure string         `db:"departure"`
		IsActive  null.Bool      `db:"is_active"`
		CreatedAt time.Time      `db:"created_at"`
		UpdatedAt time.Time      `db:"updated_at"`
	}
)

type fleetRepository struct {
	db sqlx.ExtContext
}

var _ fleet.Repository = (*fleetRepository)(nil) // interface compliance check

func NewFleetRepository(db sqlx.ExtContext) *fleetRepository {
	return &fleetRepository{db: db}
}

func (repo fleetRepository) unrowShuttle(row shuttleRow) fleet.Shuttle {
	return fleet.Shuttle{
		ID:        row.ID,
		Name:      row.Name,
		Plate:     row.Plate,
		Capacity:  row.Capacity,
		IsActive:  row.IsActive.Ptr(),
		RouteID:   row.RouteID.String,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

func (repo fleetRepository) unrowStop(row stopRow) fleet.Stop {
	return fleet.Stop{
		ID:        row.ID,
		Name:      row.Name,
		Latitude:  row.Latitude,
		Longitude: row.Longitude,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

func (repo fleetRepository) unrowRoute(row routeRow) fleet.Route {
	return fleet.Route{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description.String,
		IsActive:    row.IsActive.Ptr(),
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

func (repo fleetRepository) unrowSchedule(row scheduleRow) fleet.Schedule {
	return fleet.Schedule{
		ID:        row.ID,
		RouteID:   row.RouteID,
		Weekdays:  row.Weekdays,
		Departure: row.Departure,
		IsActive:  row.IsActive.Ptr(),
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

// trapNoRowsErr maps psql "no rows" err to notFound
func (repo fleetRepository) trapNoRowsErr(err error, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo fleetRepository) deleteByID(ctx context.Context, exe sqlx.ExtContext, table string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In(`DELETE FROM `+table+` WHERE id IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrapf(err, "building %s delete query", table)
	}
	res, err := exe.ExecContext(ctx, exe.Rebind(q), args...)
	if err != nil {
		return 0, errors.Wrapf(err, "deleting %ss", table)
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrapf(err, "deleting %ss", table)
	}
	return int(cnt), nil
}

// Shuttles

func (repo fleetRepository) CreateShuttle(ctx context.Context, sh fleet.Shuttle, exec ...core.DBExecutor) (fleet.Shuttle, error) {
	exe := getExec(repo.db, exec)

	q := exe.Rebind(`
		INSERT INTO shuttle (` + shuttleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := exe.ExecContext(ctx, q,
		sh.ID, sh.Name, sh.Plate, sh.Capacity,
		sh.IsActive != nil && *sh.IsActive,
		null.NewString(sh.RouteID, sh.RouteID != ""),
		sh.CreatedAt.UTC(), sh.UpdatedAt.UTC(),
	)
	if err != nil {
		return fleet.Shuttle{}, errors.Wrap(err, "inserting shuttle")
	}
	return sh, nil
}

func (repo fleetRepository) GetShuttle(ctx context.Context, id string, exec ...core.DBExecutor) (fleet.Shuttle, error) {
	exe := getExec(repo.db, exec)

	var row shuttleRow
	q := exe.Rebind(`SELECT ` + shuttleColumns + ` FROM shuttle WHERE id = ?`)
	if err := sqlx.GetContext(ctx, exe, &row, q, id); err != nil {
		return fleet.Shuttle{}, repo.trapNoRowsErr(err, fleet.ErrShuttleNotFound, "finding shuttle")
	}
	return repo.unrowShuttle(row), nil
}

func (repo fleetRepository) QueryAllShuttles(ctx context.Context, exec ...core.DBExecutor) ([]fleet.Shuttle, error) {
	exe := getExec(repo.db, exec)

	var rows []shuttleRow
	q := `SELECT ` + shuttleColumns + ` FROM shuttle ORDER BY created_at ASC`
	if err := sqlx.SelectContext(ctx, exe, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying shuttles")
	}

	shuttles := make([]fleet.Shuttle, 0, len(rows))
	for _, row := range rows {
		shuttles = append(shuttles, repo.unrowShuttle(row))
	}
	return shuttles, nil
}

func (repo fleetRepository) UpdateShuttle(ctx context.Context, sh fleet.Shuttle, exec ...core.DBExecutor) (fleet.Shuttle, error) {
	exe := getExec(repo.db, exec)

	// only save set fields
	sets := []string{`updated_at = ?`}
	args := []interface{}{sh.UpdatedAt.UTC()}
	if sh.Name != "" {
		sets = append(sets, `name = ?`)
		args = append(args, sh.Name)
	}
	if sh.Plate != "" {
		sets = append(sets, `plate = ?`)
		args = append(args, sh.Plate)
	}
	if sh.Capacity != 0 {
		sets = append(sets, `capacity = ?`)
		args = append(args, sh.Capacity)
	}
	if sh.RouteID != "" {
		sets = append(sets, `route_id = ?`)
		args = append(args, sh.RouteID)
	}
	if sh.IsActive != nil {
		sets = append(sets, `is_active = ?`)
		args = append(args, *sh.IsActive)
	}
	args = append(args, sh.ID)

	q := `UPDATE shuttle SET ` + strings.Join(sets, ", ") + ` WHERE id = ? RETURNING ` + shuttleColumns

	var row shuttleRow
	if err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(q), args...); err != nil {
		return fleet.Shuttle{}, repo.trapNoRowsErr(err, fleet.ErrShuttleNotFound, "updating shuttle")
	}
	return repo.unrowShuttle(row), nil
}

func (repo fleetRepository) DeleteShuttlesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	return repo.deleteByID(ctx, getExec(repo.db, exec), "shuttle", ids)
}

// Stops

func (repo fleetRepository) CreateStop(ctx context.Context, st fleet.Stop, exec ...core.DBExecutor) (fleet.Stop, error) {
	exe := getExec(repo.db, exec)

	q := exe.Rebind(`INSERT INTO stop (` + stopColumns + `) VALUES (?, ?, ?, ?, ?)`)
	if _, err := exe.ExecContext(ctx, q, st.ID, st.Name, st.Latitude, st.Longitude, st.CreatedAt.UTC()); err != nil {
		return fleet.Stop{}, errors.Wrap(err, "inserting stop")
	}
	return st, nil
}

func (repo fleetRepository) GetStop(ctx context.Context, id string, exec ...core.DBExecutor) (fleet.Stop, error) {
	exe := getExec(repo.db, exec)

	var row stopRow
	q := exe.Rebind(`SELECT ` + stopColumns + ` FROM stop WHERE id = ?`)
	if err := sqlx.GetContext(ctx, exe, &row, q, id); err != nil {
		return fleet.Stop{}, repo.trapNoRowsErr(err, fleet.ErrStopNotFound, "finding stop")
	}
	return repo.unrowStop(row), nil
}

func (repo fleetRepository) QueryAllStops(ctx context.Context, exec ...core.DBExecutor) ([]fleet.Stop, error) {
	exe := getExec(repo.db, exec)

	var rows []stopRow
	q := `SELECT ` + stopColumns + ` FROM stop ORDER BY name ASC`
	if err := sqlx.SelectContext(ctx, exe, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying stops")
	}

	stops := make([]fleet.Stop, 0, len(rows))
	for _, row := range rows {
		stops = append(stops, repo.unrowStop(row))
	}
	return stops, nil
}

func (repo fleetRepository) DeleteStopsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	return repo.deleteByID(ctx, getExec(repo.db, exec), "stop", ids)
}

// Routes

func (repo fleetRepository) replaceRouteStops(ctx context.Context, exe sqlx.ExtContext, routeID string, stopIDs []string) error {
	q := exe.Rebind(`DELETE FROM route_stop WHERE route_id = ?`)
	if _, err := exe.ExecContext(ctx, q, routeID); err != nil {
		return errors.Wrap(err, "clearing route stops")
	}

	q = exe.Rebind(`INSERT INTO route_stop (route_id, stop_id, seq) VALUES (?, ?, ?)`)
	for i, stopID := range stopIDs {
		if _, err := exe.ExecContext(ctx, q, routeID, stopID, i); err != nil {
			return errors.Wrap(err, "inserting route stop")
		}
	}
	return nil
}

func (repo fleetRepository) CreateRoute(ctx context.Context, rt fleet.Route, stopIDs []string, exec ...core.DBExecutor) (fleet.Route, error) {
	exe := getExec(repo.db, exec)

	q := exe.Rebind(`INSERT INTO route (` + routeColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := exe.ExecContext(ctx, q,
		rt.ID, rt.Name,
		null.NewString(rt.Description, rt.Description != ""),
		rt.IsActive != nil && *rt.IsActive,
		rt.CreatedAt.UTC(), rt.UpdatedAt.UTC(),
	)
	if err != nil {
		return fleet.Route{}, errors.Wrap(err, "inserting route")
	}

	if err = repo.replaceRouteStops(ctx, exe, rt.ID, stopIDs); err != nil {
		return fleet.Route{}, err
	}
	return rt, nil
}

func (repo fleetRepository) GetRoute(ctx context.Context, id string, exec ...core.DBExecutor) (fleet.Route, error) {
	exe := getExec(repo.db, exec)

	var row routeRow
	q := exe.Rebind(`SELECT ` + routeColumns + ` FROM route WHERE id = ?`)
	if err := sqlx.GetContext(ctx, exe, &row, q, id); err != nil {
		return fleet.Route{}, repo.trapNoRowsErr(err, fleet.ErrRouteNotFound, "finding route")
	}
	return repo.unrowRoute(row), nil
}

func (repo fleetRepository) QueryRouteStops(ctx context.Context, routeID string, exec ...core.DBExecutor) ([]fleet.Stop, error) {
	exe := getExec(repo.db, exec)

	if _, err := repo.GetRoute(ctx, routeID, exec...); err != nil {
		return nil, err
	}

	var rows []stopRow
	q := exe.Rebind(`
		SELECT s.id, s.name, s.latitude, s.longitude, s.created_at
		FROM stop s
		JOIN route_stop rs ON rs.stop_id = s.id
		WHERE rs.route_id = ?
		ORDER BY rs.seq ASC`)
	if err := sqlx.SelectContext(ctx, exe, &rows, q, routeID); err != nil {
		return nil, errors.Wrap(err, "querying route stops")
	}

	stops := make([]fleet.Stop, 0, len(rows))
	for _, row := range rows {
		stops = append(stops, repo.unrowStop(row))
	}
	return stops, nil
}

func (repo fleetRepository) QueryAllRoutes(ctx context.Context, exec ...core.DBExecutor) ([]fleet.Route, error) {
	exe := getExec(repo.db, exec)

	var rows []routeRow
	q := `SELECT ` + routeColumns + ` FROM route ORDER BY created_at ASC`
	if err := sqlx.SelectContext(ctx, exe, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying routes")
	}

	routes := make([]fleet.Route, 0, len(rows))
	for _, row := range rows {
		routes = append(routes, repo.unrowRoute(row))
	}
	return routes, nil
}

func (repo fleetRepository) UpdateRoute(ctx context.Context, rt fleet.Route, stopIDs []string, exec ...core.DBExecutor) (fleet.Route, error) {
	exe := getExec(repo.db, exec)

	// only save set fields
	sets := []string{`updated_at = ?`}
	args := []interface{}{rt.UpdatedAt.UTC()}
	if rt.Name != "" {
		sets = append(sets, `name = ?`)
		args = append(args, rt.Name)
	}
	if rt.Description != "" {
		sets = append(sets, `description = ?`)
		args = append(args, rt.Description)
	}
	if rt.IsActive != nil {
		sets = append(sets, `is_active = ?`)
		args = append(args, *rt.IsActive)
	}
	args = append(args, rt.ID)

	q := `UPDATE route SET ` + strings.Join(sets, ", ") + ` WHERE id = ? RETURNING ` + routeColumns

	var row routeRow
	if err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(q), args...); err != nil {
		return fleet.Route{}, repo.trapNoRowsErr(err, fleet.ErrRouteNotFound, "updating route")
	}

	if stopIDs != nil {
		if err := repo.replaceRouteStops(ctx, exe, rt.ID, stopIDs); err != nil {
			return fleet.Route{}, err
		}
	}
	return repo.unrowRoute(row), nil
}

func (repo fleetRepository) DeleteRoutesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	return repo.deleteByID(ctx, getExec(repo.db, exec), "route", ids)
}

// Schedules

func (repo fleetRepository) CreateSchedule(ctx context.Context, sc fleet.Schedule, exec ...core.DBExecutor) (fleet.Schedule, error) {
	exe := getExec(repo.db, exec)

	q := exe.Rebind(`INSERT INTO schedule (` + scheduleColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := exe.ExecContext(ctx, q,
		sc.ID, sc.RouteID, pq.StringArray(sc.Weekdays), sc.Departure,
		sc.IsActive != nil && *sc.IsActive,
		sc.CreatedAt.UTC(), sc.UpdatedAt.UTC(),
	)
	if err != nil {
		return fleet.Schedule{}, errors.Wrap(err, "inserting schedule")
	}
	return sc, nil
}

func (repo fleetRepository) GetSchedule(ctx context.Context, id string, exec ...core.DBExecutor) (fleet.Schedule, error) {
	exe := getExec(repo.db, exec)

	var row scheduleRow
	q := exe.Rebind(`SELECT ` + scheduleColumns + ` FROM schedule WHERE id = ?`)
	if err := sqlx.GetContext(ctx, exe, &row, q, id); err != nil {
		return fleet.Schedule{}, repo.trapNoRowsErr(err, fleet.ErrScheduleNotFound, "finding schedule")
	}
	return repo.unrowSchedule(row), nil
}

func (repo fleetRepository) QuerySchedules(ctx context.Context, routeID string, activeOnly bool, exec ...core.DBExecutor) ([]fleet.Schedule, error) {
	exe := getExec(repo.db, exec)

	var conds []string
	var args []interface{}
	if routeID != "" {
		conds = append(conds, `route_id = ?`)
		args = append(args, routeID)
	}
	if activeOnly {
		conds = append(conds, `is_active = TRUE`)
	}

	q := `SELECT ` + scheduleColumns + ` FROM schedule`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY departure ASC`

	var rows []scheduleRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying schedules")
	}

	schedules := make([]fleet.Schedule, 0, len(rows))
	for _, row := range rows {
		schedules = append(schedules, repo.unrowSchedule(row))
	}
	return schedules, nil
}

func (repo fleetRepository) UpdateSchedule(ctx context.Context, sc fleet.Schedule, exec ...core.DBExecutor) (fleet.Schedule, error) {
	exe := getExec(repo.db, exec)

	// only save set fields
	sets := []string{`updated_at = ?`}
	args := []interface{}{sc.UpdatedAt.UTC()}
	if sc.Weekdays != nil {
		sets = append(sets, `weekdays = ?`)
		args = append(args, pq.StringArray(sc.Weekdays))
	}
	if sc.Departure != "" {
		sets = append(sets, `departure = ?`)
		args = append(args, sc.Departure)
	}
	if sc.IsActive != nil {
		sets = append(sets, `is_active = ?`)
		args = append(args, *sc.IsActive)
	}
	args = append(args, sc.ID)

	q := `UPDATE schedule SET ` + strings.Join(sets, ", ") + ` WHERE id = ? RETURNING ` + scheduleColumns

	var row scheduleRow
	if err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(q), args...); err != nil {
		return fleet.Schedule{}, repo.trapNoRowsErr(err, fleet.ErrScheduleNotFound, "updating schedule")
	}
	return repo.unrowSchedule(row), nil
}

func (repo fleetRepository) DeleteSchedulesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	return repo.deleteByID(ctx, getExec(repo.db, exec), "schedule", ids)
}
