package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/microblog/internal/apperror"
	"github.com/sakif/microblog/internal/auth"
	"github.com/sakif/microblog/internal/model"
)

const msgLoginRequired = "Please log in to access this page."

// Session is a successful login: the user plus the signed session token the
// web client sends back on every request.
type Session struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
}

// Gate decides who is making a request. Web pages use login sessions; the
// JSON API uses bearer tokens. No request state is kept between calls.
type Gate struct {
	identity *IdentityService
	sessions *auth.SessionService
}

func NewGate(identity *IdentityService, sessions *auth.SessionService) *Gate {
	return &Gate{identity: identity, sessions: sessions}
}

// Login verifies credentials and issues a session token.
func (g *Gate) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := g.identity.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := g.sessions.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service: issuing session for %s: %w", user.ID, err)
	}
	return &Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// RequireLogin resolves a session token to its user. A missing, expired or
// forged token, or one whose user no longer exists, is Unauthorized.
func (g *Gate) RequireLogin(ctx context.Context, sessionToken string) (*model.User, error) {
	if sessionToken == "" {
		return nil, apperror.Unauthorized(msgLoginRequired)
	}
	userID, err := g.sessions.Validate(sessionToken)
	if err != nil {
		return nil, apperror.Unauthorized(msgLoginRequired)
	}
	user, err := g.identity.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(msgLoginRequired)
		}
		return nil, err
	}
	return user, nil
}

// Authorize resolves an Authorization header of the form "Bearer <token>".
func (g *Gate) Authorize(ctx context.Context, header string) (*model.User, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, apperror.Unauthorized("Bearer token required")
	}
	return g.identity.ResolveToken(ctx, strings.TrimSpace(token))
}

// BasicLogin verifies an Authorization header of the form "Basic <b64>".
// The token endpoint uses it to exchange a password for an API token.
func (g *Gate) BasicLogin(ctx context.Context, header string) (*model.User, error) {
	username, password, ok := parseBasic(header)
	if !ok {
		return nil, apperror.Unauthorized("Basic credentials required")
	}
	return g.identity.Authenticate(ctx, username, password)
}

func parseBasic(header string) (username, password string, ok bool) {
	scheme, encoded, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Basic") {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", "", false
	}
	return strings.Cut(string(raw), ":")
}
