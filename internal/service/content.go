package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/microblog/internal/activity"
	"github.com/sakif/microblog/internal/apperror"
	"github.com/sakif/microblog/internal/model"
	"github.com/sakif/microblog/internal/repository"
)

// FeedLimit caps every post list. Lists are not paginated.
const FeedLimit = 50

// validateBody trims body and enforces the shared post/message rules.
func validateBody(field, label, body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", apperror.ValidationFailed(field, label+" body is required")
	}
	if len([]rune(body)) > model.MaxBodyLen {
		return "", apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be %d characters or less", label, model.MaxBodyLen))
	}
	return body, nil
}

// ContentService manages posts and the feeds built from them.
type ContentService struct {
	posts  repository.PostRepository
	events activity.Publisher
	logger *slog.Logger
}

func NewContentService(posts repository.PostRepository, events activity.Publisher, logger *slog.Logger) *ContentService {
	return &ContentService{posts: posts, events: events, logger: logger}
}

// CreatePost publishes a post by author. Empty or whitespace-only bodies are
// rejected before anything is stored.
func (s *ContentService) CreatePost(ctx context.Context, author *model.User, body string) (*model.Post, error) {
	body, err := validateBody("post", "Post", body)
	if err != nil {
		return nil, err
	}

	post := &model.Post{AuthorID: author.ID, AuthorUsername: author.Username, Body: body}
	if err := s.posts.CreatePost(ctx, post); err != nil {
		s.logger.Error("failed to create post",
			slog.String("author", author.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service: creating post: %w", err)
	}
	post.AuthorUsername = author.Username

	s.logger.Info("post created", slog.String("id", post.ID), slog.String("author", author.Username))
	s.events.Publish(ctx, activity.NewEvent(activity.PostCreated, author.ID, post.ID))
	return post, nil
}

// Timeline is the home feed: the user's posts and those of followed users.
func (s *ContentService) Timeline(ctx context.Context, userID string) ([]model.Post, error) {
	posts, err := s.posts.ListTimeline(ctx, userID, FeedLimit)
	if err != nil {
		return nil, fmt.Errorf("service: timeline of %s: %w", userID, err)
	}
	return posts, nil
}

func (s *ContentService) UserPosts(ctx context.Context, authorID string) ([]model.Post, error) {
	posts, err := s.posts.ListPostsByAuthor(ctx, authorID, FeedLimit)
	if err != nil {
		return nil, fmt.Errorf("service: posts of %s: %w", authorID, err)
	}
	return posts, nil
}

// Explore lists recent posts from everyone.
func (s *ContentService) Explore(ctx context.Context) ([]model.Post, error) {
	posts, err := s.posts.ListRecentPosts(ctx, FeedLimit)
	if err != nil {
		return nil, fmt.Errorf("service: explore: %w", err)
	}
	return posts, nil
}

func (s *ContentService) PostCount(ctx context.Context, authorID string) (int, error) {
	n, err := s.posts.CountPostsByAuthor(ctx, authorID)
	if err != nil {
		return 0, fmt.Errorf("service: counting posts of %s: %w", authorID, err)
	}
	return n, nil
}
