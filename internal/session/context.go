package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type contextKey string

const sessionIDKey contextKey = "sessionID"

// ContextWithID returns a new context that carries the browser session id.
func ContextWithID(ctx context.Context, id uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// IDFromContext retrieves the session id from the context, if any.
func IDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(sessionIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// RequireID is IDFromContext for handlers that cannot work without a session.
func RequireID(ctx context.Context) (uuid.UUID, error) {
	id, ok := IDFromContext(ctx)
	if !ok {
		return uuid.Nil, fmt.Errorf("no session in request context")
	}
	return id, nil
}
