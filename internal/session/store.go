// Package session keeps per-browser dashboard state between requests.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/unitdash/internal/domain"
)

// ErrNotFound is returned by a Store that holds no state for a session.
var ErrNotFound = errors.New("session not found")

// Store persists session state.
type Store interface {
	Load(ctx context.Context, id uuid.UUID) (domain.SessionState, error)
	Save(ctx context.Context, id uuid.UUID, state domain.SessionState) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// MemoryStore keeps state in process memory. State is stored encoded so callers
// never share maps with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[uuid.UUID][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: map[uuid.UUID][]byte{}}
}

func (s *MemoryStore) Load(_ context.Context, id uuid.UUID) (domain.SessionState, error) {
	s.mu.RLock()
	data, ok := s.states[id]
	s.mu.RUnlock()
	if !ok {
		return domain.SessionState{}, ErrNotFound
	}
	return domain.UnmarshalState(data)
}

func (s *MemoryStore) Save(_ context.Context, id uuid.UUID, state domain.SessionState) error {
	data, err := domain.MarshalState(state)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}
	s.mu.Lock()
	s.states[id] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	delete(s.states, id)
	s.mu.Unlock()
	return nil
}

// Manager loads and saves the state of the session carried by a request context.
type Manager struct {
	store Store
	now   func() time.Time
}

// NewManager wraps a store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Load returns the state of the context's session, or a fresh state when the
// store has none.
func (m *Manager) Load(ctx context.Context) (domain.SessionState, error) {
	id, err := RequireID(ctx)
	if err != nil {
		return domain.SessionState{}, err
	}
	state, err := m.store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return domain.NewSessionState(), nil
	}
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return state, nil
}

// Save stamps and stores the state of the context's session.
func (m *Manager) Save(ctx context.Context, state domain.SessionState) error {
	id, err := RequireID(ctx)
	if err != nil {
		return err
	}
	state.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, id, state); err != nil {
		return fmt.Errorf("failed to save session %s: %w", id, err)
	}
	return nil
}

// Update loads, mutates and saves the context's session state.
func (m *Manager) Update(ctx context.Context, mutate func(*domain.SessionState) error) (domain.SessionState, error) {
	state, err := m.Load(ctx)
	if err != nil {
		return domain.SessionState{}, err
	}
	if err := mutate(&state); err != nil {
		return domain.SessionState{}, err
	}
	if err := m.Save(ctx, state); err != nil {
		return domain.SessionState{}, err
	}
	return state, nil
}

// Prune drops sessions last updated before the cutoff.
func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for id, data := range s.states {
		state, err := domain.UnmarshalState(data)
		if err == nil && !state.UpdatedAt.Before(before) {
			continue
		}
		delete(s.states, id)
		pruned++
	}
	return pruned, nil
}
