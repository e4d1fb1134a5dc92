package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/microblog/internal/apperror"
	"github.com/sakif/microblog/internal/middleware"
	"github.com/sakif/microblog/internal/service"
)

// AuthHandler manages registration and the login session cookie.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → create an account
//   - HandleLogin    → verify credentials, set the session cookie
//   - HandleLogout   → clear the session cookie
type AuthHandler struct {
	identity     *service.IdentityService
	gate         *service.Gate
	secureCookie bool
	logger       *slog.Logger
}

// NewAuthHandler creates an AuthHandler. secureCookie should be true when
// the server is reached over HTTPS.
func NewAuthHandler(
	identity *service.IdentityService,
	gate *service.Gate,
	secureCookie bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		identity:     identity,
		gate:         gate,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// HandleRegister creates an account.
//
// HTTP: POST /auth/register
// REQUEST BODY: username, email, password, password2
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	f, err := readFields(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if f.get("password") != f.get("password2") {
		writeError(w, h.logger, apperror.ValidationFailed("password2", "Passwords must match"))
		return
	}

	user, err := h.identity.Register(r.Context(), f.get("username"), f.get("email"), f.get("password"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Message string `json:"message"`
		ID      string `json:"id"`
	}{
		Message: "Congratulations, you are now a registered user!",
		ID:      user.ID,
	})
}

// HandleLogin verifies credentials and stores the signed session token in
// an HttpOnly cookie.
//
// HTTP: POST /auth/login
// REQUEST BODY: username, password
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	f, err := readFields(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	sess, err := h.gate.Login(r.Context(), f.get("username"), f.get("password"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	// HttpOnly keeps the token away from scripts; SameSite=Lax keeps it off
	// cross-site POSTs.
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Info("user logged in",
		slog.String("userID", sess.User.ID),
		slog.String("username", sess.User.Username),
	)
	writeMessage(w, http.StatusOK, fmt.Sprintf("Welcome back, %s!", sess.User.Username))
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Sessions are stateless, so the token stays valid until it expires; the
// browser just stops sending it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeMessage(w, http.StatusOK, "You have been logged out.")
}
