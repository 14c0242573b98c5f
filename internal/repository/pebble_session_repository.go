package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/unitdash/internal/domain"
	"github.com/rpattn/unitdash/internal/session"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
)

var sessionKeyPrefix = []byte("session/")

func sessionKey(id uuid.UUID) []byte {
	return append(append([]byte{}, sessionKeyPrefix...), id.String()...)
}

// PebbleSessionRepository keeps session state in an embedded pebble store.
type PebbleSessionRepository struct {
	db *pebble.DB
}

// OpenPebbleSessionRepository opens or creates the store at dir.
func OpenPebbleSessionRepository(dir string) (*PebbleSessionRepository, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store at %s: %w", dir, err)
	}
	return &PebbleSessionRepository{db: db}, nil
}

// Close flushes and closes the store.
func (r *PebbleSessionRepository) Close() error {
	return r.db.Close()
}

func (r *PebbleSessionRepository) Load(_ context.Context, id uuid.UUID) (domain.SessionState, error) {
	value, closer, err := r.db.Get(sessionKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return domain.SessionState{}, session.ErrNotFound
		}
		return domain.SessionState{}, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()

	state, err := domain.UnmarshalState(value)
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("failed to decode session state: %w", err)
	}
	return state, nil
}

func (r *PebbleSessionRepository) Save(_ context.Context, id uuid.UUID, state domain.SessionState) error {
	data, err := domain.MarshalState(state)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}
	if err := r.db.Set(sessionKey(id), data, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

func (r *PebbleSessionRepository) Delete(_ context.Context, id uuid.UUID) error {
	if err := r.db.Delete(sessionKey(id), pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete: %w", err)
	}
	return nil
}

func (r *PebbleSessionRepository) Prune(ctx context.Context, before time.Time) (int, error) {
	upper := append(append([]byte{}, sessionKeyPrefix[:len(sessionKeyPrefix)-1]...), sessionKeyPrefix[len(sessionKeyPrefix)-1]+1)
	iter, err := r.db.NewIter(&pebble.IterOptions{LowerBound: sessionKeyPrefix, UpperBound: upper})
	if err != nil {
		return 0, fmt.Errorf("pebble iterator: %w", err)
	}

	batch := r.db.NewBatch()
	defer batch.Close()

	pruned := 0
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			iter.Close()
			return 0, err
		}
		state, err := domain.UnmarshalState(iter.Value())
		if err == nil && !state.UpdatedAt.Before(before) {
			continue
		}
		if err := batch.Delete(append([]byte{}, iter.Key()...), nil); err != nil {
			iter.Close()
			return 0, fmt.Errorf("pebble batch delete: %w", err)
		}
		pruned++
	}
	if err := iter.Close(); err != nil {
		return 0, fmt.Errorf("pebble iterator: %w", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("pebble commit: %w", err)
	}
	return pruned, nil
}
