package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/unitdash/internal/domain"
)

func TestContextID(t *testing.T) {
	_, ok := IDFromContext(context.Background())
	assert.False(t, ok)

	_, err := RequireID(context.Background())
	assert.Error(t, err)

	id := uuid.New()
	got, err := RequireID(ContextWithID(context.Background(), id))
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, ok = IDFromContext(ContextWithID(context.Background(), uuid.Nil))
	assert.False(t, ok)
}

func TestMemoryStoreDoesNotShareState(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	id := uuid.New()

	_, err := store.Load(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	state := domain.NewSessionState()
	state.Filter.SetSelection("area_of_interest", []string{"ALM"})
	require.NoError(t, store.Save(ctx, id, state))

	state.Filter.Selections["area_of_interest"][0] = "changed"

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"ALM"}, loaded.Filter.Selections["area_of_interest"])

	require.NoError(t, store.Delete(ctx, id))
	_, err = store.Load(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerLoadsDefaultsAndUpdates(t *testing.T) {
	store := NewMemoryStore()
	manager := NewManager(store)
	fixed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	manager.now = func() time.Time { return fixed }

	ctx := ContextWithID(context.Background(), uuid.New())

	state, err := manager.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.NewSessionState(), state)

	key := domain.UnitKey{SubjectID: 3, Unit: 9}
	_, err = manager.Update(ctx, func(s *domain.SessionState) error {
		s.Select(domain.SelectSourceTable, []domain.UnitKey{key})
		return nil
	})
	require.NoError(t, err)

	state, err = manager.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.UnitKey{key}, state.Selection(domain.SelectSourceTable))
	assert.True(t, fixed.Equal(state.UpdatedAt))

	boom := errors.New("boom")
	_, err = manager.Update(ctx, func(s *domain.SessionState) error {
		s.ClearSelection(domain.SelectSourceTable)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	state, err = manager.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, state.Selection(domain.SelectSourceTable), 1, "failed update is not saved")

	_, err = manager.Load(context.Background())
	assert.Error(t, err)
}

func TestMemoryStorePrune(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	stale, fresh := uuid.New(), uuid.New()
	old := domain.NewSessionState()
	old.UpdatedAt = now.Add(-2 * time.Hour)
	recent := domain.NewSessionState()
	recent.UpdatedAt = now
	require.NoError(t, store.Save(ctx, stale, old))
	require.NoError(t, store.Save(ctx, fresh, recent))

	n, err := store.Prune(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Load(ctx, stale)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Load(ctx, fresh)
	assert.NoError(t, err)
}

type countingPruner struct {
	calls chan time.Time
}

func (p *countingPruner) Prune(_ context.Context, before time.Time) (int, error) {
	select {
	case p.calls <- before:
	default:
	}
	return 0, nil
}

func TestRunPrunerStopsWithContext(t *testing.T) {
	pruner := &countingPruner{calls: make(chan time.Time, 16)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunPruner(ctx, pruner, time.Hour, time.Millisecond, nil)
		close(done)
	}()

	select {
	case before := <-pruner.calls:
		assert.True(t, before.Before(time.Now().Add(-59*time.Minute)))
	case <-time.After(2 * time.Second):
		t.Fatal("pruner never ran")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pruner did not stop")
	}
}
