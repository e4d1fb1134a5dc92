package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/sakif/microblog/internal/apperror"
	"github.com/sakif/microblog/internal/middleware"
	"github.com/sakif/microblog/internal/model"
	"github.com/sakif/microblog/internal/service"
)

// UserDocument is the public view of a user. Email is present only when
// the viewer is the user.
type UserDocument struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email,omitempty"`
	AboutMe        string    `json:"about_me"`
	LastSeen       time.Time `json:"last_seen"`
	PostCount      int       `json:"post_count"`
	FollowerCount  int       `json:"follower_count"`
	FollowingCount int       `json:"following_count"`
	Links          UserLinks `json:"_links"`
}

type UserLinks struct {
	Self      string `json:"self"`
	Followers string `json:"followers"`
	Following string `json:"following"`
}

// documents builds UserDocuments; the counts are computed at call time.
type documents struct {
	graph   *service.GraphService
	content *service.ContentService
}

func (d documents) user(ctx context.Context, u *model.User, viewer *model.User) (*UserDocument, error) {
	posts, err := d.content.PostCount(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	followers, err := d.graph.FollowersCount(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	following, err := d.graph.FollowingCount(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	doc := &UserDocument{
		ID:             u.ID,
		Username:       u.Username,
		AboutMe:        u.AboutMe,
		LastSeen:       u.LastSeen,
		PostCount:      posts,
		FollowerCount:  followers,
		FollowingCount: following,
		Links: UserLinks{
			Self:      "/api/users/" + u.ID,
			Followers: "/api/users/" + u.ID + "/followers",
			Following: "/api/users/" + u.ID + "/following",
		},
	}
	if viewer != nil && viewer.ID == u.ID {
		doc.Email = u.Email
	}
	return doc, nil
}

func (d documents) users(ctx context.Context, us []model.User, viewer *model.User) ([]UserDocument, error) {
	out := make([]UserDocument, 0, len(us))
	for i := range us {
		doc, err := d.user(ctx, &us[i], viewer)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, nil
}

// currentUser returns the user the auth middleware stored. Routes reaching
// a handler without one were mounted outside the middleware.
func currentUser(r *http.Request) (*model.User, error) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		return nil, apperror.Unauthorized("Please log in to access this page.")
	}
	return u, nil
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
