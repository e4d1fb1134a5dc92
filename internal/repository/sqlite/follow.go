package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/microblog/internal/apperror"
	"github.com/sakif/microblog/internal/model"
)

// Follow inserts the edge. The composite primary key plus ON CONFLICT DO
// NOTHING makes a repeated follow a no-op, even under concurrent requests.
func (db *DB) Follow(ctx context.Context, followerID, followedID string, at time.Time) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO followers (follower_id, followed_id, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (follower_id, followed_id) DO NOTHING`,
		followerID, followedID, at.UTC(),
	)
	if err != nil {
		switch {
		case isCheckViolation(err):
			return false, apperror.Conflict("username", "You cannot follow yourself!")
		case isForeignKeyViolation(err):
			return false, apperror.NotFound("User", followedID)
		}
		return false, fmt.Errorf("sqlite: following %s -> %s: %w", followerID, followedID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n == 1, nil
}

func (db *DB) Unfollow(ctx context.Context, followerID, followedID string) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM followers WHERE follower_id = ? AND followed_id = ?`,
		followerID, followedID,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: unfollowing %s -> %s: %w", followerID, followedID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n == 1, nil
}

func (db *DB) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM followers WHERE follower_id = ? AND followed_id = ?`,
		followerID, followedID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking follow %s -> %s: %w", followerID, followedID, err)
	}
	return n > 0, nil
}

func (db *DB) CountFollowers(ctx context.Context, userID string) (int, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM followers WHERE followed_id = ?`, userID)
}

func (db *DB) CountFollowing(ctx context.Context, userID string) (int, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM followers WHERE follower_id = ?`, userID)
}

func (db *DB) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting: %w", err)
	}
	return n, nil
}

// ListFollowers returns the users following userID, ordered by username.
func (db *DB) ListFollowers(ctx context.Context, userID string) ([]model.User, error) {
	return db.queryUsers(ctx, db.conn,
		`SELECT `+prefixed("u", userColumns)+`
		 FROM users u JOIN followers f ON f.follower_id = u.id
		 WHERE f.followed_id = ?
		 ORDER BY u.username`, userID)
}

// ListFollowing returns the users userID follows, ordered by username.
func (db *DB) ListFollowing(ctx context.Context, userID string) ([]model.User, error) {
	return db.queryUsers(ctx, db.conn,
		`SELECT `+prefixed("u", userColumns)+`
		 FROM users u JOIN followers f ON f.followed_id = u.id
		 WHERE f.follower_id = ?
		 ORDER BY u.username`, userID)
}
