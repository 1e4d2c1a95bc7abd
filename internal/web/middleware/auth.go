package middleware

import (
	"context"
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/config"
)

type contextKey string

const sessionContextKey contextKey = "session"

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}

// RequireAuth is middleware that requires a valid session
func RequireAuth(sm *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sm.GetSessionFromRequest(r)
			if session == nil {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetSessionInContext(r.Context(), session)))
		})
	}
}

// RequireAdmin guards the API when an admin password hash is configured. The
// session must belong to the configured admin, so renaming the admin logs
// everyone out. Without a hash every request passes.
func RequireAdmin(sm *SessionManager, admin *config.AdminConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !admin.AuthEnabled() {
			return next
		}
		return RequireAuth(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s := GetSessionFromContext(r.Context()); s == nil || s.Username != admin.Username {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// GetSessionFromContext retrieves the session from the request context
func GetSessionFromContext(ctx context.Context) *Session {
	session, ok := ctx.Value(sessionContextKey).(*Session)
	if !ok {
		return nil
	}
	return session
}

// SetSessionInContext adds a session to the context.
func SetSessionInContext(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
