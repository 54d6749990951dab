// Package clientstore provides session.ClientStore implementations: a Redis
// backed store for production and an in-memory one for tests and local
// development.
package clientstore

import (
	"context"
	"sync"

	"github.com/trezcool/safiri/core/session"
)

type inmemStore struct {
	mutex sync.RWMutex
	data  map[string]map[string][]byte // clientID -> key -> value
}

func NewInmemStore() session.ClientStore {
	return &inmemStore{data: make(map[string]map[string][]byte)}
}

func (s *inmemStore) Get(_ context.Context, clientID, key string) ([]byte, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if val, ok := s.data[clientID][key]; ok {
		cp := make([]byte, len(val))
		copy(cp, val)
		return cp, nil
	}
	return nil, session.ErrKeyNotFound
}

func (s *inmemStore) Set(_ context.Context, clientID, key string, value []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.data[clientID]; !ok {
		s.data[clientID] = make(map[string][]byte)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[clientID][key] = cp
	return nil
}

func (s *inmemStore) Delete(_ context.Context, clientID, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.data[clientID], key)
	return nil
}
