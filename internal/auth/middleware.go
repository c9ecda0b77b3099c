package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/daily-diet/internal/apperror"
	"github.com/sakif/daily-diet/internal/model"
)

// CookieName carries the session token between client and server.
const CookieName = "daily-diet.user_session_id"

// contextKey is unexported so no other package can read or shadow the
// session stored by these middlewares.
type contextKey string

const sessionKey contextKey = "session"

// SessionValidator resolves a token to an active session. Implementations
// return an apperror.ErrUnauthorized error for unknown and expired tokens
// alike; any other error is a lookup failure.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*model.Session, error)
}

// RequireSession rejects requests that do not carry an active session with
// 401 and stores the session in the request context otherwise. A failed
// lookup is a 500, never a 401.
func RequireSession(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := resolve(r, sessions)
			if err != nil {
				writeLookupFailure(w, r, err)
				return
			}
			if session == nil {
				writeErrorJSON(w, http.StatusUnauthorized, "unauthorized", "login to access meals")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// OptionalSession attaches the session when the cookie holds an active one
// and lets the request through without one when the cookie is missing,
// unknown or expired. Handlers that can mint a session themselves (meal
// creation) sit behind it. A failed lookup stops the request with 500 so
// the handler never replaces a session it could not check.
func OptionalSession(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := resolve(r, sessions)
			if err != nil {
				writeLookupFailure(w, r, err)
				return
			}
			if session != nil {
				r = r.WithContext(WithSession(r.Context(), session))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithSession returns a copy of ctx carrying session.
func WithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// SessionFromContext returns the session put there by RequireSession or
// OptionalSession.
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*model.Session)
	return s, ok && s != nil
}

// TokenFromRequest returns the raw cookie value without validating it.
func TokenFromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// SetSessionCookie issues the session cookie with a max-age of ttl.
//
//	Set-Cookie: daily-diet.user_session_id=<token>; Path=/; Max-Age=86400; HttpOnly; SameSite=Lax
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// resolve returns (nil, nil) when there is no usable session and an error
// only when the lookup itself failed.
func resolve(r *http.Request, sessions SessionValidator) (*model.Session, error) {
	token, ok := TokenFromRequest(r)
	if !ok {
		return nil, nil
	}
	session, err := sessions.ValidateSession(r.Context(), token)
	if err != nil {
		if errors.Is(err, apperror.ErrUnauthorized) {
			return nil, nil
		}
		return nil, err
	}
	return session, nil
}

func writeLookupFailure(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "session lookup failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeErrorJSON(w, http.StatusInternalServerError, "internal_error", "An internal error occurred")
}

// writeErrorJSON matches handler.ErrorResponse; handler imports this
// package, so the shape is repeated here.
func writeErrorJSON(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errorType,
		"message": message,
	})
}
