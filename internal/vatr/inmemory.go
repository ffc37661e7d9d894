package vatr

import (
	"context"
	"slices"
	"sync"

	"veridex.org/internal/ids"
)

// InMemory implements Store with per-asset sequential appends.
type InMemory struct {
	mu      sync.Mutex
	entries map[string][]Entry
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[string][]Entry)}
}

func (s *InMemory) Append(ctx context.Context, e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = ids.New()
	e.Seq = uint64(len(s.entries[e.AssetID])) + 1
	s.entries[e.AssetID] = append(s.entries[e.AssetID], e)
	return e, nil
}

func (s *InMemory) Trail(ctx context.Context, assetID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trail := slices.Clone(s.entries[assetID])
	slices.Reverse(trail)
	return trail, nil
}
