package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rpattn/unitdash/internal/domain"
	"github.com/rpattn/unitdash/internal/session"

	"github.com/google/uuid"
)

func openTestRepository(t *testing.T) *PebbleSessionRepository {
	t.Helper()
	repo, err := OpenPebbleSessionRepository(t.TempDir())
	if err != nil {
		t.Fatalf("open pebble repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestPebbleSessionRepositoryRoundTrip(t *testing.T) {
	var _ SessionRepository = (*PebbleSessionRepository)(nil)

	repo := openTestRepository(t)
	ctx := context.Background()
	id := uuid.New()

	if _, err := repo.Load(ctx, id); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown session, got %v", err)
	}

	state := domain.NewSessionState()
	state.Filter.SetColumns([]string{"area_of_interest", "firing_rate"})
	state.Filter.SetRange("firing_rate", domain.Range{Low: 1, High: 4})
	state.Gallery.NumCols = 5
	if err := repo.Save(ctx, id, state); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := repo.Load(ctx, id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Filter.Columns) != 2 || loaded.Filter.Ranges["firing_rate"].High != 4 || loaded.Gallery.NumCols != 5 {
		t.Fatalf("unexpected state after round trip: %+v", loaded)
	}

	if err := repo.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Load(ctx, id); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestPebbleSessionRepositoryPrune(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	ages := []time.Duration{3 * time.Hour, 2 * time.Hour, 0}
	for i, id := range ids {
		state := domain.NewSessionState()
		state.UpdatedAt = now.Add(-ages[i])
		if err := repo.Save(ctx, id, state); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	pruned, err := repo.Prune(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 2 {
		t.Fatalf("expected 2 pruned sessions, got %d", pruned)
	}
	if _, err := repo.Load(ctx, ids[2]); err != nil {
		t.Fatalf("fresh session was pruned: %v", err)
	}
	for _, id := range ids[:2] {
		if _, err := repo.Load(ctx, id); !errors.Is(err, session.ErrNotFound) {
			t.Fatalf("expected stale session %s to be pruned, got %v", id, err)
		}
	}
}

func TestSessionRepositoryRequiresPool(t *testing.T) {
	repo := NewSessionRepository(nil)
	if _, err := repo.Load(context.Background(), uuid.New()); err == nil {
		t.Fatalf("expected error without a pool")
	}
}
