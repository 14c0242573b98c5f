package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/unitdash/internal/domain"
	"github.com/rpattn/unitdash/internal/session"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository wires a repository backed by pgxpool.
func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

func (r *sessionRepository) Load(ctx context.Context, id uuid.UUID) (domain.SessionState, error) {
	if r.pool == nil {
		return domain.SessionState{}, fmt.Errorf("session repository not initialized")
	}

	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT state FROM session_state WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SessionState{}, session.ErrNotFound
		}
		return domain.SessionState{}, fmt.Errorf("failed to load session state: %w", err)
	}

	state, err := domain.UnmarshalState(data)
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("failed to decode session state: %w", err)
	}
	return state, nil
}

func (r *sessionRepository) Save(ctx context.Context, id uuid.UUID, state domain.SessionState) error {
	if r.pool == nil {
		return fmt.Errorf("session repository not initialized")
	}

	data, err := domain.MarshalState(state)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}

	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO session_state (id, state, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		id,
		data,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}
	return nil
}

func (r *sessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if r.pool == nil {
		return fmt.Errorf("session repository not initialized")
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM session_state WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session state: %w", err)
	}
	return nil
}

func (r *sessionRepository) Prune(ctx context.Context, before time.Time) (int, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("session repository not initialized")
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM session_state WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune session state: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
