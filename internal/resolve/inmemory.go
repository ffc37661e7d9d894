package resolve

import (
	"context"
	"sync"

	"veridex.org/internal/view"
)

type prefKey struct {
	userID string
	key    string
}

// InMemoryPreferences implements PreferenceStore.
type InMemoryPreferences struct {
	mu    sync.RWMutex
	prefs map[prefKey]Preference
}

var _ PreferenceStore = (*InMemoryPreferences)(nil)

// NewInMemoryPreferences creates an empty store.
func NewInMemoryPreferences() *InMemoryPreferences {
	return &InMemoryPreferences{prefs: make(map[prefKey]Preference)}
}

func (s *InMemoryPreferences) Get(ctx context.Context, userID string, key view.ResourceKey) (*Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[prefKey{userID: userID, key: key.String()}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *InMemoryPreferences) Set(ctx context.Context, p Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[prefKey{userID: p.UserID, key: p.ResourceKey.String()}] = p
	return nil
}

func (s *InMemoryPreferences) Clear(ctx context.Context, userID string, key view.ResourceKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prefs, prefKey{userID: userID, key: key.String()})
	return nil
}
