package autofill

import (
	"context"
	"slices"
	"sync"
)

// InMemory implements DecisionStore. Inserts only; the single-resolution
// rule is enforced the same way the Postgres store's unique index does.
type InMemory struct {
	mu          sync.RWMutex
	decisions   map[string]Decision
	resolutions map[string]string // parent decision id -> resolution id
}

var _ DecisionStore = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		decisions:   make(map[string]Decision),
		resolutions: make(map[string]string),
	}
}

func (s *InMemory) Insert(ctx context.Context, d Decision) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ResolvesID != "" {
		if _, taken := s.resolutions[d.ResolvesID]; taken {
			return Decision{}, ErrNotPending
		}
		s.resolutions[d.ResolvesID] = d.ID
	}
	s.decisions[d.ID] = d
	return d, nil
}

func (s *InMemory) Get(ctx context.Context, id string) (Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisions[id]
	if !ok {
		return Decision{}, ErrNotFound
	}
	return d, nil
}

func (s *InMemory) ResolutionFor(ctx context.Context, decisionID string) (Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.resolutions[decisionID]
	if !ok {
		return Decision{}, ErrNotFound
	}
	return s.decisions[id], nil
}

func (s *InMemory) ListByAsset(ctx context.Context, assetID string) ([]Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Decision
	for _, d := range s.decisions {
		if d.AssetID == assetID {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b Decision) int {
		switch {
		case a.CreatedAt.Before(b.CreatedAt):
			return -1
		case a.CreatedAt.After(b.CreatedAt):
			return 1
		default:
			return 0
		}
	})
	return out, nil
}
