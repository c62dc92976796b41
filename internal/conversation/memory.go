// Package conversation provides the conversation-state stores. The in-memory
// store is the default; the SQLite store survives restarts.
package conversation

import (
	"context"
	"sync"
	"time"

	"deskbot/internal/domain"
)

// MemoryStore keeps conversation state in a mutex-guarded map.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]domain.ConversationState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]domain.ConversationState)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	// Copy out so callers never share the stored slice.
	state.IntentHistory = append([]domain.Category(nil), state.IntentHistory...)
	return &state, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, state *domain.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *state
	stored.IntentHistory = append([]domain.Category(nil), state.IntentHistory...)
	s.states[state.ID] = stored
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[id]; !ok {
		return false, nil
	}
	delete(s.states, id)
	return true, nil
}

func (s *MemoryStore) ResetTenant(ctx context.Context, tenantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, state := range s.states {
		if state.TenantID == tenantID {
			delete(s.states, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, state := range s.states {
		if state.LastActivity.Before(cutoff) {
			delete(s.states, id)
			removed++
		}
	}
	return removed, nil
}
