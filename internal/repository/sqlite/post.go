package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/microblog/internal/apperror"
	"github.com/sakif/microblog/internal/model"
)

const postSelect = `SELECT p.id, p.author_id, u.username, p.body, p.created_at
	FROM posts p JOIN users u ON u.id = p.author_id`

// CreatePost inserts a post. ID and CreatedAt are set here.
func (db *DB) CreatePost(ctx context.Context, post *model.Post) error {
	post.ID = xid.New().String()
	post.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO posts (id, author_id, body, created_at) VALUES (?, ?, ?, ?)`,
		post.ID, post.AuthorID, post.Body, post.CreatedAt,
	)
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return apperror.NotFound("User", post.AuthorID)
		case isCheckViolation(err):
			return apperror.ValidationFailed("post", "Post body is required")
		}
		return fmt.Errorf("sqlite: inserting post: %w", err)
	}
	return nil
}

func (db *DB) ListPostsByAuthor(ctx context.Context, authorID string, limit int) ([]model.Post, error) {
	return db.queryPosts(ctx,
		postSelect+` WHERE p.author_id = ?
		 ORDER BY p.created_at DESC, p.id DESC LIMIT ?`, authorID, limit)
}

// ListTimeline is the home feed: the user's own posts plus posts by every
// account they follow.
func (db *DB) ListTimeline(ctx context.Context, userID string, limit int) ([]model.Post, error) {
	return db.queryPosts(ctx,
		postSelect+` WHERE p.author_id = ?
		    OR p.author_id IN (SELECT followed_id FROM followers WHERE follower_id = ?)
		 ORDER BY p.created_at DESC, p.id DESC LIMIT ?`, userID, userID, limit)
}

func (db *DB) ListRecentPosts(ctx context.Context, limit int) ([]model.Post, error) {
	return db.queryPosts(ctx,
		postSelect+` ORDER BY p.created_at DESC, p.id DESC LIMIT ?`, limit)
}

func (db *DB) CountPostsByAuthor(ctx context.Context, authorID string) (int, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM posts WHERE author_id = ?`, authorID)
}

func (db *DB) queryPosts(ctx context.Context, query string, args ...any) ([]model.Post, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing posts: %w", err)
	}
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		var p model.Post
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.AuthorUsername, &p.Body, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating posts: %w", err)
	}
	return posts, nil
}
