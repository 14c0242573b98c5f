package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/rpattn/unitdash/internal/session"
)

// SessionCookieName names the cookie carrying the session id.
const SessionCookieName = "unitdash_session"

// SessionMiddleware reads the session cookie, issuing a new id when it is
// missing or malformed, and puts the id in the request context.
func SessionMiddleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id uuid.UUID
			if c, err := r.Cookie(SessionCookieName); err == nil {
				if parsed, err := uuid.Parse(c.Value); err == nil {
					id = parsed
				}
			}
			if id == uuid.Nil {
				id = uuid.New()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    id.String(),
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(session.ContextWithID(r.Context(), id)))
		})
	}
}
