package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/safiri/core"
	"github.com/trezcool/safiri/core/driver"
)

type driverRepository struct {
	db *DB
}

func NewDriverRepository(db *DB) driver.Repository {
	return &driverRepository{db: db}
}

func (repo *driverRepository) query() []driver.Driver {
	drivers := make([]driver.Driver, 0, len(repo.db.drivers))
	for _, d := range repo.db.drivers {
		drivers = append(drivers, *d)
	}
	sort.Slice(drivers, func(i, j int) bool { return drivers[i].CreatedAt.Before(drivers[j].CreatedAt) })
	return drivers
}

func (repo *driverRepository) CheckUniqueness(_ context.Context, driverID, email string, excludedDrivers []driver.Driver, _ ...core.DBExecutor) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, drv := range repo.query() {
		if isExcludedDriver(drv.ID, excludedDrivers) {
			continue
		}
		if drv.DriverID == driverID {
			return driver.ErrDriverIDExists
		}
		if drv.Email == email {
			return driver.ErrEmailExists
		}
	}
	return nil
}

func (repo *driverRepository) CreateDriver(_ context.Context, drv driver.Driver, _ ...core.DBExecutor) (driver.Driver, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.drivers[drv.ID] = &drv
	return drv, nil
}

func (repo *driverRepository) GetDriver(_ context.Context, filter driver.GetFilter, _ ...core.DBExecutor) (driver.Driver, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if drv, ok := repo.db.drivers[filter.ID]; ok {
			return *drv, nil
		}
		return driver.Driver{}, driver.ErrNotFound
	}
	for _, drv := range repo.query() {
		if (filter.DriverID != "" && drv.DriverID == filter.DriverID) ||
			(filter.Email != "" && drv.Email == filter.Email) {
			return drv, nil
		}
	}
	return driver.Driver{}, driver.ErrNotFound
}

func (repo *driverRepository) QueryDrivers(_ context.Context, filter *driver.QueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]driver.Driver, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	drivers := repo.query()
	if filter == nil || filter.IsEmpty() {
		return drivers, nil
	}

	matches := make([]driver.Driver, 0, len(drivers))
	for _, drv := range drivers {
		if filter.Status != "" && drv.Status != filter.Status {
			continue
		}
		if filter.IsActive != nil && drv.Active() != *filter.IsActive {
			continue
		}
		if filter.RouteID != "" && drv.RouteID != filter.RouteID {
			continue
		}
		if filter.Search != "" {
			s := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(drv.Name), s) &&
				!strings.Contains(strings.ToLower(drv.DriverID), s) &&
				!strings.Contains(strings.ToLower(drv.Email), s) {
				continue
			}
		}
		matches = append(matches, drv)
	}
	return matches, nil
}

func (repo *driverRepository) UpdateDriver(_ context.Context, drv driver.Driver, _ ...core.DBExecutor) (driver.Driver, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// only save set fields
	orig, ok := repo.db.drivers[drv.ID]
	if !ok {
		return driver.Driver{}, driver.ErrNotFound
	}
	if drv.Name != "" {
		orig.Name = drv.Name
	}
	if drv.Email != "" {
		orig.Email = drv.Email
	}
	if drv.Phone != "" {
		orig.Phone = drv.Phone
	}
	if drv.Status != "" {
		orig.Status = drv.Status
	}
	if drv.IsActive != nil {
		orig.IsActive = drv.IsActive
	}
	orig.UpdatedAt = drv.UpdatedAt
	return *orig, nil
}

func (repo *driverRepository) MigrateDriverPK(_ context.Context, oldID, newID string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	drv, ok := repo.db.drivers[oldID]
	if !ok {
		return driver.ErrNotFound
	}
	drv.ID = newID
	delete(repo.db.drivers, oldID)
	repo.db.drivers[newID] = drv
	return nil
}

func (repo *driverRepository) UpdatePassword(_ context.Context, id string, hash []byte, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	drv, ok := repo.db.drivers[id]
	if !ok {
		return driver.ErrNotFound
	}
	drv.PasswordHash = hash
	return nil
}

func (repo *driverRepository) AssignDriver(_ context.Context, id, shuttleID, routeID string, _ ...core.DBExecutor) (driver.Driver, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	drv, ok := repo.db.drivers[id]
	if !ok {
		return driver.Driver{}, driver.ErrNotFound
	}
	drv.ShuttleID = shuttleID
	drv.RouteID = routeID
	drv.UpdatedAt = time.Now().UTC()
	return *drv, nil
}

func (repo *driverRepository) SetLastLogin(_ context.Context, id string, t time.Time, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	drv, ok := repo.db.drivers[id]
	if !ok {
		return driver.ErrNotFound
	}
	drv.LastLogin = t
	return nil
}

func (repo *driverRepository) DeleteDriversByID(_ context.Context, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.drivers[id]; ok {
			delete(repo.db.drivers, id)
			n++
		}
	}
	return n, nil
}

func isExcludedDriver(id string, excludedDrivers []driver.Driver) bool {
	for _, drv := range excludedDrivers {
		if drv.ID == id {
			return true
		}
	}
	return false
}
