package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/microblog/internal/activity"
	"github.com/sakif/microblog/internal/apperror"
	"github.com/sakif/microblog/internal/model"
	"github.com/sakif/microblog/internal/repository"
)

// GraphService manages the directed follow graph.
type GraphService struct {
	users   repository.UserRepository
	follows repository.FollowRepository
	events  activity.Publisher
	logger  *slog.Logger
}

func NewGraphService(
	users repository.UserRepository,
	follows repository.FollowRepository,
	events activity.Publisher,
	logger *slog.Logger,
) *GraphService {
	return &GraphService{users: users, follows: follows, events: events, logger: logger}
}

func (s *GraphService) target(ctx context.Context, username string) (*model.User, error) {
	u, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service: resolving %q: %w", username, err)
	}
	return u, nil
}

// Follow makes actor follow the user named targetUsername. Following
// someone already followed is a silent no-op; following yourself is a
// Conflict and never reaches storage.
func (s *GraphService) Follow(ctx context.Context, actor *model.User, targetUsername string) (*model.User, error) {
	target, err := s.target(ctx, targetUsername)
	if err != nil {
		return nil, err
	}
	if target.ID == actor.ID {
		return nil, apperror.Conflict("username", "You cannot follow yourself!")
	}

	created, err := s.follows.Follow(ctx, actor.ID, target.ID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("service: %s following %s: %w", actor.ID, target.ID, err)
	}
	if created {
		s.logger.Info("user followed",
			slog.String("follower", actor.Username),
			slog.String("followed", target.Username),
		)
		s.events.Publish(ctx, activity.NewEvent(activity.UserFollowed, actor.ID, target.ID))
	}
	return target, nil
}

// Unfollow removes the edge if it exists.
func (s *GraphService) Unfollow(ctx context.Context, actor *model.User, targetUsername string) (*model.User, error) {
	target, err := s.target(ctx, targetUsername)
	if err != nil {
		return nil, err
	}
	if target.ID == actor.ID {
		return nil, apperror.Conflict("username", "You cannot unfollow yourself!")
	}

	removed, err := s.follows.Unfollow(ctx, actor.ID, target.ID)
	if err != nil {
		return nil, fmt.Errorf("service: %s unfollowing %s: %w", actor.ID, target.ID, err)
	}
	if removed {
		s.logger.Info("user unfollowed",
			slog.String("follower", actor.Username),
			slog.String("followed", target.Username),
		)
		s.events.Publish(ctx, activity.NewEvent(activity.UserUnfollowed, actor.ID, target.ID))
	}
	return target, nil
}

func (s *GraphService) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	ok, err := s.follows.IsFollowing(ctx, followerID, followedID)
	if err != nil {
		return false, fmt.Errorf("service: checking follow: %w", err)
	}
	return ok, nil
}

func (s *GraphService) FollowersCount(ctx context.Context, userID string) (int, error) {
	n, err := s.follows.CountFollowers(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("service: counting followers of %s: %w", userID, err)
	}
	return n, nil
}

func (s *GraphService) FollowingCount(ctx context.Context, userID string) (int, error) {
	n, err := s.follows.CountFollowing(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("service: counting following of %s: %w", userID, err)
	}
	return n, nil
}

func (s *GraphService) Followers(ctx context.Context, userID string) ([]model.User, error) {
	users, err := s.follows.ListFollowers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: listing followers of %s: %w", userID, err)
	}
	return users, nil
}

func (s *GraphService) Following(ctx context.Context, userID string) ([]model.User, error) {
	users, err := s.follows.ListFollowing(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: listing following of %s: %w", userID, err)
	}
	return users, nil
}
