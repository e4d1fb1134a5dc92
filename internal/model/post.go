package model

import "time"

// MaxBodyLen bounds post and message bodies.
const MaxBodyLen = 140

// Post is an immutable short text authored by one user.
// AuthorUsername is filled by queries that join the author.
type Post struct {
	ID             string    `json:"id"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// Follow is a directed edge: FollowerID follows FollowedID.
type Follow struct {
	FollowerID string
	FollowedID string
	CreatedAt  time.Time
}
