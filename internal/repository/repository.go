// Package repository declares the storage contracts the services depend on.
//
// Two implementations exist: repository/sqlite for the running server and
// repository/memory for tests. Both report missing rows as
// apperror.ErrNotFound and uniqueness violations as apperror.ErrConflict.
package repository

import (
	"context"
	"time"

	"github.com/sakif/microblog/internal/model"
)

// UserRepository stores accounts and their API tokens.
type UserRepository interface {
	// CreateUser assigns ID, CreatedAt and LastSeen and inserts the row.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// GetUserByToken matches the stored token only; expiry is the caller's call.
	GetUserByToken(ctx context.Context, token string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)

	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateProfile(ctx context.Context, id, username, aboutMe string) error
	TouchLastSeen(ctx context.Context, id string, at time.Time) error

	// IssueToken stores token for the user unless the current token expires
	// after staleBefore, and returns the user as stored afterwards. Concurrent
	// callers therefore all observe the same surviving token.
	IssueToken(ctx context.Context, id, token string, expiresAt, staleBefore time.Time) (*model.User, error)
	// RevokeToken makes the current token expire at the given instant.
	RevokeToken(ctx context.Context, id string, at time.Time) error
	// ClearExpiredTokens drops tokens that expired before now.
	ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// FollowRepository stores directed follow edges.
type FollowRepository interface {
	// Follow inserts the edge if absent; created is false for a re-follow.
	Follow(ctx context.Context, followerID, followedID string, at time.Time) (created bool, err error)
	// Unfollow removes the edge if present.
	Unfollow(ctx context.Context, followerID, followedID string) (removed bool, err error)
	IsFollowing(ctx context.Context, followerID, followedID string) (bool, error)
	CountFollowers(ctx context.Context, userID string) (int, error)
	CountFollowing(ctx context.Context, userID string) (int, error)
	ListFollowers(ctx context.Context, userID string) ([]model.User, error)
	ListFollowing(ctx context.Context, userID string) ([]model.User, error)
}

// PostRepository stores posts. Lists are newest first, id breaking ties,
// and return at most limit rows.
type PostRepository interface {
	CreatePost(ctx context.Context, post *model.Post) error
	ListPostsByAuthor(ctx context.Context, authorID string, limit int) ([]model.Post, error)
	// ListTimeline returns posts by userID and by everyone userID follows.
	ListTimeline(ctx context.Context, userID string, limit int) ([]model.Post, error)
	ListRecentPosts(ctx context.Context, limit int) ([]model.Post, error)
	CountPostsByAuthor(ctx context.Context, authorID string) (int, error)
}

// MessageRepository stores private messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *model.Message) error
	// ListInbox returns every message addressed to recipientID, newest first.
	ListInbox(ctx context.Context, recipientID string) ([]model.Message, error)
	// ReadInbox lists the inbox as ListInbox does, then marks the returned
	// unread messages read at the given instant, atomically.
	ReadInbox(ctx context.Context, recipientID string, at time.Time) ([]model.Message, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
}

// Store bundles every repository; both backends implement it.
type Store interface {
	UserRepository
	FollowRepository
	PostRepository
	MessageRepository
}
