package session

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/safiri/core"
	"github.com/trezcool/safiri/core/admin"
	"github.com/trezcool/safiri/core/driver"
	"github.com/trezcool/safiri/core/user"
)

type (
	// ManagerDeps carries the shared services a Manager hands to every
	// Resolver it creates. NewProvider is called once per client so each
	// Resolver observes its own provider session.
	ManagerDeps struct {
		Users       user.Service
		Drivers     driver.Service
		Admins      admin.Service
		Store       ClientStore
		NewProvider func(clientID string) Provider
		Validate    *validator.Validate
		Logger      core.Logger
	}

	// Manager hands out one started Resolver per client ID.
	Manager struct {
		deps ManagerDeps

		mu        sync.Mutex
		resolvers map[string]Resolver
	}
)

func NewManager(deps ManagerDeps) *Manager {
	return &Manager{
		deps:      deps,
		resolvers: make(map[string]Resolver),
	}
}

func (m *Manager) Resolver(ctx context.Context, clientID string) (Resolver, error) {
	if clientID == "" {
		return nil, errors.New("missing client ID")
	}

	m.mu.Lock()
	if res, ok := m.resolvers[clientID]; ok {
		m.mu.Unlock()
		return res, nil
	}
	res := NewResolver(clientID, Deps{
		Users:    m.deps.Users,
		Drivers:  m.deps.Drivers,
		Admins:   m.deps.Admins,
		Store:    m.deps.Store,
		Provider: m.deps.NewProvider(clientID),
		Validate: m.deps.Validate,
		Logger:   m.deps.Logger,
	})
	m.resolvers[clientID] = res
	m.mu.Unlock()

	if err := res.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.resolvers, clientID)
		m.mu.Unlock()
		res.Close()
		return nil, errors.Wrap(err, "starting session resolver")
	}
	return res, nil
}

func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, res := range m.resolvers {
		res.Close()
		delete(m.resolvers, id)
	}
}
