package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionIssuer = "microblog"

	// DefaultSessionTTL applies when NewSessionService gets a zero ttl.
	DefaultSessionTTL = 24 * time.Hour
)

// ErrSessionExpired is returned by Validate for a well-formed but stale token.
var ErrSessionExpired = errors.New("auth: session expired")

// SessionService signs and validates login session tokens.
//
// A session token is an HS256 JWT whose subject is the user id. Nothing is
// stored server-side; a token stays valid until its exp claim passes.
type SessionService struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionService creates a SessionService. The secret must be at least
// 16 characters; generate one with `openssl rand -hex 32`.
func NewSessionService(secret string, ttl time.Duration) (*SessionService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionService{secret: []byte(secret), ttl: ttl}, nil
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// Issue signs a session token for userID using the configured TTL.
func (s *SessionService) Issue(userID string) (string, time.Time, error) {
	return s.IssueWithDuration(userID, s.ttl)
}

// IssueWithDuration signs a token that expires after d. Tests use a negative
// d to mint already-expired tokens.
func (s *SessionService) IssueWithDuration(userID string, d time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(d)

	c := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    sessionIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing session: %w", err)
	}

	return signed, expiresAt, nil
}

// Validate verifies signature, issuer, algorithm and expiry, and returns the
// user id carried in the subject claim.
func (s *SessionService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&sessionClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrSessionExpired
		}
		return "", fmt.Errorf("auth: invalid session: %w", err)
	}

	c, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid session claims")
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: session has no subject")
	}

	return c.Subject, nil
}
