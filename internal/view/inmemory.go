package view

import (
	"context"
	"sync"
)

// InMemory implements Store with in-process concurrency safety. Used by
// unit tests and by cmd/api when no database DSN is configured.
type InMemory struct {
	mu    sync.RWMutex
	views map[string]View
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{views: make(map[string]View)}
}

func (s *InMemory) Insert(ctx context.Context, v View) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[v.ID] = v
	return v, nil
}

func (s *InMemory) Get(ctx context.Context, id string) (View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[id]
	if !ok {
		return View{}, ErrNotFound
	}
	return v, nil
}

func (s *InMemory) Update(ctx context.Context, v View) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.views[v.ID]; !ok {
		return View{}, ErrNotFound
	}
	s.views[v.ID] = v
	return v, nil
}

func (s *InMemory) ListByOrg(ctx context.Context, orgID string) ([]View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []View
	for _, v := range s.views {
		if v.OrganizationID == orgID {
			out = append(out, v)
		}
	}
	return out, nil
}
