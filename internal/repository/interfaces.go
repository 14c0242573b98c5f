package repository

import (
	"context"
	"time"

	"github.com/rpattn/unitdash/internal/domain"

	"github.com/google/uuid"
)

// SessionRepository defines the interface for persisted session state
type SessionRepository interface {
	Load(ctx context.Context, id uuid.UUID) (domain.SessionState, error)
	Save(ctx context.Context, id uuid.UUID, state domain.SessionState) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Prune removes sessions last updated before the cutoff and reports how many.
	Prune(ctx context.Context, before time.Time) (int, error)
}
