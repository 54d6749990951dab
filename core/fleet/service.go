package fleet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/safiri/core"
)

var (
	// errors
	ErrShuttleNotFound  = errors.New("shuttle not found")
	ErrStopNotFound     = errors.New("stop not found")
	ErrRouteNotFound    = errors.New("route not found")
	ErrScheduleNotFound = errors.New("schedule not found")
)

type (
	Repository interface {
		CreateShuttle(ctx context.Context, sh Shuttle, exec ...core.DBExecutor) (Shuttle, error)
		GetShuttle(ctx context.Context, id string, exec ...core.DBExecutor) (Shuttle, error)
		QueryAllShuttles(ctx context.Context, exec ...core.DBExecutor) ([]Shuttle, error)
		UpdateShuttle(ctx context.Context, sh Shuttle, exec ...core.DBExecutor) (Shuttle, error)
		DeleteShuttlesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)

		CreateStop(ctx context.Context, st Stop, exec ...core.DBExecutor) (Stop, error)
		GetStop(ctx context.Context, id string, exec ...core.DBExecutor) (Stop, error)
		QueryAllStops(ctx context.Context, exec ...core.DBExecutor) ([]Stop, error)
		DeleteStopsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)

		CreateRoute(ctx context.Context, rt Route, stopIDs []string, exec ...core.DBExecutor) (Route, error)
		GetRoute(ctx context.Context, id string, exec ...core.DBExecutor) (Route, error)
		// QueryRouteStops returns a route's stops in sequence order.
		QueryRouteStops(ctx context.Context, routeID string, exec ...core.DBExecutor) ([]Stop, error)
		QueryAllRoutes(ctx context.Context, exec ...core.DBExecutor) ([]Route, error)
		UpdateRoute(ctx context.Context, rt Route, stopIDs []string, exec ...core.DBExecutor) (Route, error)
		DeleteRoutesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)

		CreateSchedule(ctx context.Context, sc Schedule, exec ...core.DBExecutor) (Schedule, error)
		GetSchedule(ctx context.Context, id string, exec ...core.DBExecutor) (Schedule, error)
		QuerySchedules(ctx context.Context, routeID string, activeOnly bool, exec ...core.DBExecutor) ([]Schedule, error)
		UpdateSchedule(ctx context.Context, sc Schedule, exec ...core.DBExecutor) (Schedule, error)
		DeleteSchedulesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		CreateShuttle(ctx context.Context, ns NewShuttle) (Shuttle, error)
		GetShuttle(ctx context.Context, id string) (Shuttle, error)
		QueryShuttles(ctx context.Context) ([]Shuttle, error)
		UpdateShuttle(ctx context.Context, id string, us UpdateShuttle) (Shuttle, error)
		DeleteShuttles(ctx context.Context, ids ...string) error

		CreateStop(ctx context.Context, ns NewStop) (Stop, error)
		GetStop(ctx context.Context, id string) (Stop, error)
		QueryStops(ctx context.Context) ([]Stop, error)
		DeleteStops(ctx context.Context, ids ...string) error

		CreateRoute(ctx context.Context, nr NewRoute) (Route, error)
		GetRoute(ctx context.Context, id string) (Route, error)
		QueryRoutes(ctx context.Context) ([]Route, error)
		UpdateRoute(ctx context.Context, id string, ur UpdateRoute) (Route, error)
		DeleteRoutes(ctx context.Context, ids ...string) error

		CreateSchedule(ctx context.Context, ns NewSchedule) (Schedule, error)
		GetSchedule(ctx context.Context, id string) (Schedule, error)
		QuerySchedules(ctx context.Context, routeID string) ([]Schedule, error)
		UpdateSchedule(ctx context.Context, id string, us UpdateSchedule) (Schedule, error)
		DeleteSchedules(ctx context.Context, ids ...string) error

		// Timetable returns the public view: active schedules joined with their
		// routes (stops populated, in sequence order).
		Timetable(ctx context.Context) ([]TimetableEntry, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Shuttles

func (svc *service) CreateShuttle(ctx context.Context, ns NewShuttle) (Shuttle, error) {
	now := time.Now().UTC()
	sh := Shuttle{
		ID:        uuid.New().String(),
		Name:      ns.Name,
		Plate:     ns.Plate,
		Capacity:  ns.Capacity,
		RouteID:   ns.RouteID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sh.SetActive(true)
	return svc.repo.CreateShuttle(ctx, sh)
}

func (svc *service) GetShuttle(ctx context.Context, id string) (Shuttle, error) {
	return svc.repo.GetShuttle(ctx, id)
}

func (svc *service) QueryShuttles(ctx context.Context) ([]Shuttle, error) {
	return svc.repo.QueryAllShuttles(ctx)
}

func (svc *service) UpdateShuttle(ctx context.Context, id string, us UpdateShuttle) (Shuttle, error) {
	return svc.repo.UpdateShuttle(ctx, Shuttle{
		ID:        id,
		Name:      us.Name,
		Plate:     us.Plate,
		Capacity:  us.Capacity,
		RouteID:   us.RouteID,
		IsActive:  us.IsActive,
		UpdatedAt: time.Now().UTC(),
	})
}

func (svc *service) DeleteShuttles(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteShuttlesByID(ctx, ids)
	return err
}

// Stops

func (svc *service) CreateStop(ctx context.Context, ns NewStop) (Stop, error) {
	return svc.repo.CreateStop(ctx, Stop{
		ID:        uuid.New().String(),
		Name:      ns.Name,
		Latitude:  ns.Latitude,
		Longitude: ns.Longitude,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *service) GetStop(ctx context.Context, id string) (Stop, error) {
	return svc.repo.GetStop(ctx, id)
}

func (svc *service) QueryStops(ctx context.Context) ([]Stop, error) {
	return svc.repo.QueryAllStops(ctx)
}

func (svc *service) DeleteStops(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteStopsByID(ctx, ids)
	return err
}

// Routes

func (svc *service) CreateRoute(ctx context.Context, nr NewRoute) (Route, error) {
	now := time.Now().UTC()
	rt := Route{
		ID:          uuid.New().String(),
		Name:        nr.Name,
		Description: nr.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	rt.SetActive(true)
	return svc.repo.CreateRoute(ctx, rt, nr.StopIDs)
}

func (svc *service) GetRoute(ctx context.Context, id string) (Route, error) {
	rt, err := svc.repo.GetRoute(ctx, id)
	if err != nil {
		return Route{}, err
	}
	if rt.Stops, err = svc.repo.QueryRouteStops(ctx, rt.ID); err != nil {
		return Route{}, err
	}
	return rt, nil
}

func (svc *service) QueryRoutes(ctx context.Context) ([]Route, error) {
	return svc.repo.QueryAllRoutes(ctx)
}

func (svc *service) UpdateRoute(ctx context.Context, id string, ur UpdateRoute) (Route, error) {
	rt := Route{
		ID:          id,
		Name:        ur.Name,
		Description: ur.Description,
		IsActive:    ur.IsActive,
		UpdatedAt:   time.Now().UTC(),
	}
	return svc.repo.UpdateRoute(ctx, rt, ur.StopIDs)
}

func (svc *service) DeleteRoutes(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteRoutesByID(ctx, ids)
	return err
}

// Schedules

func (svc *service) CreateSchedule(ctx context.Context, ns NewSchedule) (Schedule, error) {
	if _, err := svc.repo.GetRoute(ctx, ns.RouteID); err != nil {
		return Schedule{}, err
	}
	now := time.Now().UTC()
	sc := Schedule{
		ID:        uuid.New().String(),
		RouteID:   ns.RouteID,
		Weekdays:  ns.Weekdays,
		Departure: ns.Departure,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sc.SetActive(true)
	return svc.repo.CreateSchedule(ctx, sc)
}

func (svc *service) GetSchedule(ctx context.Context, id string) (Schedule, error) {
	return svc.repo.GetSchedule(ctx, id)
}

func (svc *service) QuerySchedules(ctx context.Context, routeID string) ([]Schedule, error) {
	return svc.repo.QuerySchedules(ctx, routeID, false)
}

func (svc *service) UpdateSchedule(ctx context.Context, id string, us UpdateSchedule) (Schedule, error) {
	return svc.repo.UpdateSchedule(ctx, Schedule{
		ID:        id,
		Weekdays:  us.Weekdays,
		Departure: us.Departure,
		IsActive:  us.IsActive,
		UpdatedAt: time.Now().UTC(),
	})
}

func (svc *service) DeleteSchedules(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteSchedulesByID(ctx, ids)
	return err
}

// Timetable

func (svc *service) Timetable(ctx context.Context) ([]TimetableEntry, error) {
	schedules, err := svc.repo.QuerySchedules(ctx, "", true /* activeOnly */)
	if err != nil {
		return nil, err
	}

	routes := make(map[string]Route)
	entries := make([]TimetableEntry, 0, len(schedules))
	for _, sc := range schedules {
		rt, ok := routes[sc.RouteID]
		if !ok {
			if rt, err = svc.GetRoute(ctx, sc.RouteID); err != nil {
				if errors.Cause(err) == ErrRouteNotFound {
					continue // dangling schedule; skip rather than fail the whole view
				}
				return nil, err
			}
			routes[sc.RouteID] = rt
		}
		if rt.IsActive != nil && !*rt.IsActive {
			continue
		}
		entries = append(entries, TimetableEntry{Schedule: sc, Route: rt})
	}
	return entries, nil
}
