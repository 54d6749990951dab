package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/safiri/core"
	"github.com/trezcool/safiri/core/fleet"
)

type fleetRepository struct {
	db *DB
}

func NewFleetRepository(db *DB) fleet.Repository {
	return &fleetRepository{db: db}
}

// Shuttles

func (repo *fleetRepository) CreateShuttle(_ context.Context, sh fleet.Shuttle, _ ...core.DBExecutor) (fleet.Shuttle, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.shuttles[sh.ID] = &sh
	return sh, nil
}

func (repo *fleetRepository) GetShuttle(_ context.Context, id string, _ ...core.DBExecutor) (fleet.Shuttle, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sh, ok := repo.db.shuttles[id]; ok {
		return *sh, nil
	}
	return fleet.Shuttle{}, fleet.ErrShuttleNotFound
}

func (repo *fleetRepository) QueryAllShuttles(_ context.Context, _ ...core.DBExecutor) ([]fleet.Shuttle, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	shuttles := make([]fleet.Shuttle, 0, len(repo.db.shuttles))
	for _, sh := range repo.db.shuttles {
		shuttles = append(shuttles, *sh)
	}
	sort.Slice(shuttles, func(i, j int) bool { return shuttles[i].CreatedAt.Before(shuttles[j].CreatedAt) })
	return shuttles, nil
}

func (repo *fleetRepository) UpdateShuttle(_ context.Context, sh fleet.Shuttle, _ ...core.DBExecutor) (fleet.Shuttle, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// only save set fields
	orig, ok := repo.db.shuttles[sh.ID]
	if !ok {
		return fleet.Shuttle{}, fleet.ErrShuttleNotFound
	}
	if sh.Name != "" {
		orig.Name = sh.Name
	}
	if sh.Plate != "" {
		orig.Plate = sh.Plate
	}
	if sh.Capacity != 0 {
		orig.Capacity = sh.Capacity
	}
	if sh.RouteID != "" {
		orig.RouteID = sh.RouteID
	}
	if sh.IsActive != nil {
		orig.IsActive = sh.IsActive
	}
	orig.UpdatedAt = sh.UpdatedAt
	return *orig, nil
}

func (repo *fleetRepository) DeleteShuttlesByID(_ context.Context, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.shuttles[id]; ok {
			delete(repo.db.shuttles, id)
			n++
		}
	}
	return n, nil
}

// Stops

func (repo *fleetRepository) CreateStop(_ context.Context, st fleet.Stop, _ ...core.DBExecutor) (fleet.Stop, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.stops[st.ID] = &st
	return st, nil
}

func (repo *fleetRepository) GetStop(_ context.Context, id string, _ ...core.DBExecutor) (fleet.Stop, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if st, ok := repo.db.stops[id]; ok {
		return *st, nil
	}
	return fleet.Stop{}, fleet.ErrStopNotFound
}

func (repo *fleetRepository) QueryAllStops(_ context.Context, _ ...core.DBExecutor) ([]fleet.Stop, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	stops := make([]fleet.Stop, 0, len(repo.db.stops))
	for _, st := range repo.db.stops {
		stops = append(stops, *st)
	}
	sort.Slice(stops, func(i, j int) bool { return stops[i].Name < stops[j].Name })
	return stops, nil
}

func (repo *fleetRepository) DeleteStopsByID(_ context.Context, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.stops[id]; ok {
			delete(repo.db.stops, id)
			n++
		}
	}
	return n, nil
}

// Routes

func (repo *fleetRepository) CreateRoute(_ context.Context, rt fleet.Route, stopIDs []string, _ ...core.DBExecutor) (fleet.Route, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.routes[rt.ID] = &rt
	repo.db.routeStops[rt.ID] = append([]string(nil), stopIDs...)
	return rt, nil
}

func (repo *fleetRepository) GetRoute(_ context.Context, id string, _ ...core.DBExecutor) (fleet.Route, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if rt, ok := repo.db.routes[id]; ok {
		return *rt, nil
	}
	return fleet.Route{}, fleet.ErrRouteNotFound
}

func (repo *fleetRepository) QueryRouteStops(_ context.Context, routeID string, _ ...core.DBExecutor) ([]fleet.Stop, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if _, ok := repo.db.routes[routeID]; !ok {
		return nil, fleet.ErrRouteNotFound
	}
	ids := repo.db.routeStops[routeID]
	stops := make([]fleet.Stop, 0, len(ids))
	for _, id := range ids {
		if st, ok := repo.db.stops[id]; ok {
			stops = append(stops, *st)
		}
	}
	return stops, nil
}

func (repo *fleetRepository) QueryAllRoutes(_ context.Context, _ ...core.DBExecutor) ([]fleet.Route, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	routes := make([]fleet.Route, 0, len(repo.db.routes))
	for _, rt := range repo.db.routes {
		routes = append(routes, *rt)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].CreatedAt.Before(routes[j].CreatedAt) })
	return routes, nil
}

func (repo *fleetRepository) UpdateRoute(_ context.Context, rt fleet.Route, stopIDs []string, _ ...core.DBExecutor) (fleet.Route, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// only save set fields
	orig, ok := repo.db.routes[rt.ID]
	if !ok {
		return fleet.Route{}, fleet.ErrRouteNotFound
	}
	if rt.Name != "" {
		orig.Name = rt.Name
	}
	if rt.Description != "" {
		orig.Description = rt.Description
	}
	if rt.IsActive != nil {
		orig.IsActive = rt.IsActive
	}
	orig.UpdatedAt = rt.UpdatedAt
	if stopIDs != nil {
		repo.db.routeStops[rt.ID] = append([]string(nil), stopIDs...)
	}
	return *orig, nil
}

func (repo *fleetRepository) DeleteRoutesByID(_ context.Context, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.routes[id]; ok {
			delete(repo.db.routes, id)
			delete(repo.db.routeStops, id)
			n++
		}
	}
	return n, nil
}

// Schedules

func (repo *fleetRepository) CreateSchedule(_ context.Context, sc fleet.Schedule, _ ...core.DBExecutor) (fleet.Schedule, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.schedules[sc.ID] = &sc
	return sc, nil
}

func (repo *fleetRepository) GetSchedule(_ context.Context, id string, _ ...core.DBExecutor) (fleet.Schedule, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sc, ok := repo.db.schedules[id]; ok {
		return *sc, nil
	}
	return fleet.Schedule{}, fleet.ErrScheduleNotFound
}

func (repo *fleetRepository) QuerySchedules(_ context.Context, routeID string, activeOnly bool, _ ...core.DBExecutor) ([]fleet.Schedule, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	schedules := make([]fleet.Schedule, 0, len(repo.db.schedules))
	for _, sc := range repo.db.schedules {
		if routeID != "" && sc.RouteID != routeID {
			continue
		}
		if activeOnly && (sc.IsActive == nil || !*sc.IsActive) {
			continue
		}
		schedules = append(schedules, *sc)
	}
	sort.Slice(schedules, func(i, j int) bool { return schedules[i].Departure < schedules[j].Departure })
	return schedules, nil
}

func (repo *fleetRepository) UpdateSchedule(_ context.Context, sc fleet.Schedule, _ ...core.DBExecutor) (fleet.Schedule, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// only save set fields
	orig, ok := repo.db.schedules[sc.ID]
	if !ok {
		return fleet.Schedule{}, fleet.ErrScheduleNotFound
	}
	if sc.Weekdays != nil {
		orig.Weekdays = sc.Weekdays
	}
	if sc.Departure != "" {
		orig.Departure = sc.Departure
	}
	if sc.IsActive != nil {
		orig.IsActive = sc.IsActive
	}
	orig.UpdatedAt = sc.UpdatedAt
	return *orig, nil
}

func (repo *fleetRepository) DeleteSchedulesByID(_ context.Context, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.schedules[id]; ok {
			delete(repo.db.schedules, id)
			n++
		}
	}
	return n, nil
}
