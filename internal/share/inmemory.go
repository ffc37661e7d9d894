package share

import (
	"context"
	"sync"
	"time"
)

// InMemory implements Store; the mutex gives revocation the same
// linearizability the postgres store gets from conditional updates.
type InMemory struct {
	mu     sync.Mutex
	shares map[string]Share
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{shares: make(map[string]Share)}
}

func (s *InMemory) Insert(ctx context.Context, sh Share) (Share, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shares[sh.ID] = sh
	return sh, nil
}

func (s *InMemory) Get(ctx context.Context, id string) (Share, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shares[id]
	if !ok {
		return Share{}, ErrNotFound
	}
	return sh, nil
}

func (s *InMemory) Revoke(ctx context.Context, id, revokedBy, reason string, at time.Time) (Share, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shares[id]
	if !ok {
		return Share{}, ErrNotFound
	}
	if sh.Status != StatusActive {
		return Share{}, ErrTerminal
	}
	sh.Status = StatusRevoked
	sh.RevokedAt = &at
	sh.RevokedBy = revokedBy
	sh.RevokeReason = reason
	s.shares[id] = sh
	return sh, nil
}

func (s *InMemory) MarkExpired(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shares[id]
	if !ok {
		return ErrNotFound
	}
	if sh.Status != StatusActive {
		return nil
	}
	sh.Status = StatusExpired
	s.shares[id] = sh
	return nil
}

func (s *InMemory) IncrementAccess(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shares[id]
	if !ok {
		return 0, ErrNotFound
	}
	if sh.Status != StatusActive {
		return 0, ErrNotFound
	}
	if sh.MaxAccesses > 0 && sh.AccessCount >= sh.MaxAccesses {
		return 0, ErrCapReached
	}
	sh.AccessCount++
	s.shares[id] = sh
	return sh.AccessCount, nil
}

func (s *InMemory) ListByView(ctx context.Context, viewID string) ([]Share, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Share
	for _, sh := range s.shares {
		if sh.ViewID == viewID {
			out = append(out, sh)
		}
	}
	return out, nil
}

func (s *InMemory) ListBySourceOrg(ctx context.Context, orgID string) ([]Share, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Share
	for _, sh := range s.shares {
		if sh.SourceOrgID == orgID {
			out = append(out, sh)
		}
	}
	return out, nil
}

func (s *InMemory) ListForTarget(ctx context.Context, orgID, userID string) ([]Share, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Share
	for _, sh := range s.shares {
		if (sh.TargetOrgID != "" && sh.TargetOrgID == orgID) ||
			(sh.TargetUserID != "" && sh.TargetUserID == userID) {
			out = append(out, sh)
		}
	}
	return out, nil
}
