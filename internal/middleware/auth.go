package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/microblog/internal/apperror"
	"github.com/sakif/microblog/internal/model"
)

// SessionCookie carries the signed session token issued at login.
const SessionCookie = "session"

// contextKey is unexported so no other package can read or overwrite the
// values stored here.
type contextKey string

const userKey contextKey = "user"

// SessionResolver resolves a session token; *service.Gate implements it.
type SessionResolver interface {
	RequireLogin(ctx context.Context, sessionToken string) (*model.User, error)
}

// TokenResolver resolves an Authorization header; *service.Gate implements it.
type TokenResolver interface {
	Authorize(ctx context.Context, authorizationHeader string) (*model.User, error)
}

// ActivityRecorder notes that a user was active; *service.IdentityService
// implements it.
type ActivityRecorder interface {
	TouchLastSeen(ctx context.Context, userID string) error
}

// RequireLogin protects web routes. It reads the session cookie, resolves
// the user, records last_seen and stores the user in the request context.
// Anything else gets 401.
func RequireLogin(gate SessionResolver, activity ActivityRecorder, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if c, err := r.Cookie(SessionCookie); err == nil {
				token = c.Value
			}

			user, err := gate.RequireLogin(r.Context(), token)
			if err != nil {
				deny(w, logger, err)
				return
			}

			if err := activity.TouchLastSeen(r.Context(), user.ID); err != nil {
				// Not worth failing the request over.
				logger.Warn("touching last seen",
					slog.String("userID", user.ID),
					slog.String("error", err.Error()),
				)
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireToken protects API routes with "Authorization: Bearer <token>".
func RequireToken(gate TokenResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := gate.Authorize(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				deny(w, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// WithUser returns ctx carrying user.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user, or (nil, false) when the
// request did not pass through an auth middleware.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// deny writes 401 for authentication failures and 500 for anything else,
// in the same {error, message} shape the handlers use.
func deny(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, kind, msg := http.StatusUnauthorized, "unauthorized", "valid authentication required"

	var appErr *apperror.AppError
	switch {
	case errors.Is(err, apperror.ErrUnauthorized) && errors.As(err, &appErr):
		msg = appErr.Message
	case !errors.Is(err, apperror.ErrUnauthorized):
		logger.Error("authenticating request", slog.String("error", err.Error()))
		status, kind, msg = http.StatusInternalServerError, "internal_error", "An internal error occurred"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": msg})
}
