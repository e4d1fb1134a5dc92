// Package model defines the data structures used throughout the application.
package model

import "time"

// Field limits shared by validation and the schema.
const (
	MaxUsernameLen = 64
	MaxEmailLen    = 120
	MaxAboutMeLen  = 140
)

// User represents a registered account.
//
// PasswordHash is a bcrypt string; empty means no password has been set and
// no plaintext will ever match it. Token is the current API bearer token and
// is only meaningful while TokenExpiresAt lies in the future.
type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	AboutMe        string     `json:"about_me"`
	LastSeen       time.Time  `json:"last_seen"`
	Token          string     `json:"-"`
	TokenExpiresAt *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
}

// HasValidToken reports whether the stored API token is still usable at now.
func (u *User) HasValidToken(now time.Time) bool {
	return u.Token != "" && u.TokenExpiresAt != nil && u.TokenExpiresAt.After(now)
}

// APIToken is an issued bearer token and its expiry.
type APIToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
