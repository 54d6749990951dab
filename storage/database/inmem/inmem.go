// Package inmemdb provides in-memory repository implementations, used by
// tests and local development.
package inmemdb

import (
	"sync"

	"github.com/trezcool/safiri/core/admin"
	"github.com/trezcool/safiri/core/driver"
	"github.com/trezcool/safiri/core/fleet"
	"github.com/trezcool/safiri/core/user"
	identitysvc "github.com/trezcool/safiri/services/identity"
)

type DB struct {
	mutex sync.RWMutex

	users     map[string]*user.User
	drivers   map[string]*driver.Driver
	admins    map[string]*admin.Admin // keyed by email
	accounts  map[string]*identitysvc.Account
	shuttles  map[string]*fleet.Shuttle
	stops     map[string]*fleet.Stop
	routes    map[string]*fleet.Route
	schedules map[string]*fleet.Schedule

	routeStops map[string][]string // routeID -> stopIDs in sequence order
}

func NewDB() *DB {
	return &DB{
		users:      make(map[string]*user.User),
		drivers:    make(map[string]*driver.Driver),
		admins:     make(map[string]*admin.Admin),
		accounts:   make(map[string]*identitysvc.Account),
		shuttles:   make(map[string]*fleet.Shuttle),
		stops:      make(map[string]*fleet.Stop),
		routes:     make(map[string]*fleet.Route),
		schedules:  make(map[string]*fleet.Schedule),
		routeStops: make(map[string][]string),
	}
}
