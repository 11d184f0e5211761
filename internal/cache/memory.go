package cache

import (
	"context"
	"sync"
	"time"

	"github.com/quickvisa/intake-backend/internal/models"
)

// MemoryStore is a process-local SessionStore. Sessions are lost on restart
// and are not shared between instances.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.IntakeSession
	now      func() time.Time
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]models.IntakeSession),
		now:      time.Now,
	}
}

// Save implements SessionStore
func (s *MemoryStore) Save(ctx context.Context, session *models.IntakeSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = *session
	return nil
}

// Get implements SessionStore
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.IntakeSession, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || !s.now().Before(session.ExpiresAt) {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

// Delete implements SessionStore
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Sweep drops expired sessions and returns how many were removed
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Ping implements SessionStore
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close implements SessionStore
func (s *MemoryStore) Close() error { return nil }
