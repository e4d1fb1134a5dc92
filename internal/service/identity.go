// Package service holds the business rules of the microblog: who a user is,
// who they follow, what they post and who they message.
//
// Services validate input, call the repositories and return apperror values.
// They know nothing about HTTP; handlers translate their errors to status
// codes. Every successful change is announced on the activity Publisher.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/microblog/internal/activity"
	"github.com/sakif/microblog/internal/apperror"
	"github.com/sakif/microblog/internal/auth"
	"github.com/sakif/microblog/internal/model"
	"github.com/sakif/microblog/internal/repository"
)

const (
	// DefaultTokenTTL is how long a new API token lives.
	DefaultTokenTTL = time.Hour

	// tokenReuseMargin: a stored token is handed out again only if it stays
	// valid for at least this long.
	tokenReuseMargin = 60 * time.Second
)

// msgBadCredentials is shared by unknown-user and wrong-password failures so
// the response does not reveal which one happened.
const msgBadCredentials = "Invalid username or password"

// IdentityService owns accounts: registration, credentials, profile and
// API tokens.
type IdentityService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	events    activity.Publisher
	tokenTTL  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewIdentityService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	events activity.Publisher,
	tokenTTL time.Duration,
	logger *slog.Logger,
) *IdentityService {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &IdentityService{
		users:     users,
		passwords: passwords,
		events:    events,
		tokenTTL:  tokenTTL,
		logger:    logger,
		now:       time.Now,
	}
}

// =========================================================================
// REGISTRATION & CREDENTIALS
// =========================================================================

// Register creates an account. Username and email must be unused; the
// pre-checks give friendly errors and the UNIQUE constraints catch races.
func (s *IdentityService) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "Password is required")
	}

	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return nil, apperror.Conflict("username", "Please use a different username.")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service: checking username: %w", err)
	}
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, apperror.Conflict("email", "Please use a different email address.")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service: checking email: %w", err)
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{Username: username, Email: email, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service: registering %q: %w", username, err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	s.events.Publish(ctx, activity.NewEvent(activity.UserRegistered, user.ID, ""))
	return user, nil
}

// hashPassword reports over-long input as a validation error; anything else
// bcrypt returns is an internal failure.
func (s *IdentityService) hashPassword(password string) (string, error) {
	hash, err := s.passwords.Hash(password)
	switch {
	case errors.Is(err, auth.ErrPasswordTooLong):
		return "", apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be %d bytes or fewer", auth.MaxPasswordBytes))
	case err != nil:
		return "", fmt.Errorf("service: hashing password: %w", err)
	}
	return hash, nil
}

func validateUsername(username string) error {
	if username == "" {
		return apperror.ValidationFailed("username", "Username is required")
	}
	if len([]rune(username)) > model.MaxUsernameLen {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("Username must be %d characters or less", model.MaxUsernameLen))
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "Email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || len(email) > model.MaxEmailLen {
		return apperror.ValidationFailed("email", "Invalid email address.")
	}
	return nil
}

// Authenticate checks a username/password pair. Unknown users and wrong
// passwords fail identically.
func (s *IdentityService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(msgBadCredentials)
		}
		return nil, fmt.Errorf("service: looking up %q: %w", username, err)
	}
	if !s.passwords.Matches(user.PasswordHash, password) {
		s.logger.Info("failed login", slog.String("username", user.Username))
		return nil, apperror.Unauthorized(msgBadCredentials)
	}
	return user, nil
}

// SetPassword replaces the user's password hash.
func (s *IdentityService) SetPassword(ctx context.Context, userID, password string) error {
	if password == "" {
		return apperror.ValidationFailed("password", "Password is required")
	}
	hash, err := s.hashPassword(password)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("service: setting password for %s: %w", userID, err)
	}
	return nil
}

// =========================================================================
// LOOKUP & PROFILE
// =========================================================================

func (s *IdentityService) GetUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service: fetching user %s: %w", id, err)
	}
	return user, nil
}

func (s *IdentityService) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service: fetching user %q: %w", username, err)
	}
	return user, nil
}

func (s *IdentityService) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: listing users: %w", err)
	}
	return users, nil
}

// UpdateProfile changes the username and about-me text. Renaming to a name
// someone else holds is a Conflict.
func (s *IdentityService) UpdateProfile(ctx context.Context, userID, username, aboutMe string) (*model.User, error) {
	username = strings.TrimSpace(username)
	aboutMe = strings.TrimSpace(aboutMe)

	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if len([]rune(aboutMe)) > model.MaxAboutMeLen {
		return nil, apperror.ValidationFailed("about_me",
			fmt.Sprintf("About me must be %d characters or less", model.MaxAboutMeLen))
	}

	if err := s.users.UpdateProfile(ctx, userID, username, aboutMe); err != nil {
		return nil, fmt.Errorf("service: updating profile of %s: %w", userID, err)
	}
	return s.GetUser(ctx, userID)
}

// TouchLastSeen records that the user was just active.
func (s *IdentityService) TouchLastSeen(ctx context.Context, userID string) error {
	if err := s.users.TouchLastSeen(ctx, userID, s.now()); err != nil {
		return fmt.Errorf("service: touching last seen of %s: %w", userID, err)
	}
	return nil
}

// =========================================================================
// API TOKENS
// =========================================================================

// GetOrCreateToken returns the user's API token, minting a new one only
// when the current one is missing or expires within tokenReuseMargin.
// Concurrent callers converge on one token through the repository's
// compare-and-set.
func (s *IdentityService) GetOrCreateToken(ctx context.Context, userID string) (*model.APIToken, error) {
	candidate, err := newTokenString()
	if err != nil {
		return nil, err
	}

	now := s.now()
	user, err := s.users.IssueToken(ctx, userID, candidate, now.Add(s.tokenTTL), now.Add(tokenReuseMargin))
	if err != nil {
		return nil, fmt.Errorf("service: issuing token for %s: %w", userID, err)
	}
	if !user.HasValidToken(now) {
		return nil, fmt.Errorf("service: token for %s not stored", userID)
	}

	if user.Token == candidate {
		s.logger.Info("api token issued", slog.String("userID", userID))
	}
	return &model.APIToken{Token: user.Token, ExpiresAt: *user.TokenExpiresAt}, nil
}

// newTokenString returns 32 lowercase hex characters from a random UUID.
func newTokenString() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("service: generating token: %w", err)
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

// ResolveToken returns the user owning a live API token.
func (s *IdentityService) ResolveToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.Unauthorized("Missing API token")
	}
	user, err := s.users.GetUserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("Invalid API token")
		}
		return nil, fmt.Errorf("service: resolving token: %w", err)
	}
	if !user.HasValidToken(s.now()) {
		return nil, apperror.Unauthorized("API token expired")
	}
	return user, nil
}

// RevokeToken expires the user's current token immediately.
func (s *IdentityService) RevokeToken(ctx context.Context, userID string) error {
	if err := s.users.RevokeToken(ctx, userID, s.now()); err != nil {
		return fmt.Errorf("service: revoking token of %s: %w", userID, err)
	}
	s.logger.Info("api token revoked", slog.String("userID", userID))
	return nil
}

// SweepExpiredTokens clears stale tokens. The scheduler runs it periodically.
func (s *IdentityService) SweepExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.users.ClearExpiredTokens(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("service: sweeping tokens: %w", err)
	}
	if n > 0 {
		s.logger.Info("expired api tokens cleared", slog.Int64("count", n))
	}
	return n, nil
}
