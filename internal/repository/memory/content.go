package memory

import (
	"context"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/microblog/internal/apperror"
	"github.com/sakif/microblog/internal/model"
)

// Posts and messages are appended in creation order, so walking the slices
// backwards yields newest first.

func (s *Store) CreatePost(_ context.Context, post *model.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(post.Body) == "" {
		return apperror.ValidationFailed("post", "Post body is required")
	}
	author, ok := s.users[post.AuthorID]
	if !ok {
		return apperror.NotFound("User", post.AuthorID)
	}
	post.ID = xid.New().String()
	post.CreatedAt = time.Now().UTC()
	post.AuthorUsername = author.Username
	s.posts = append(s.posts, *post)
	return nil
}

func (s *Store) listPosts(limit int, keep func(p model.Post) bool) []model.Post {
	out := []model.Post{}
	for i := len(s.posts) - 1; i >= 0 && len(out) < limit; i-- {
		p := s.posts[i]
		if !keep(p) {
			continue
		}
		if u, ok := s.users[p.AuthorID]; ok {
			p.AuthorUsername = u.Username
		}
		out = append(out, p)
	}
	return out
}

func (s *Store) ListPostsByAuthor(_ context.Context, authorID string, limit int) ([]model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listPosts(limit, func(p model.Post) bool { return p.AuthorID == authorID }), nil
}

func (s *Store) ListTimeline(_ context.Context, userID string, limit int) ([]model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listPosts(limit, func(p model.Post) bool {
		if p.AuthorID == userID {
			return true
		}
		_, ok := s.follows[edge{userID, p.AuthorID}]
		return ok
	}), nil
}

func (s *Store) ListRecentPosts(_ context.Context, limit int) ([]model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listPosts(limit, func(model.Post) bool { return true }), nil
}

func (s *Store) CountPostsByAuthor(_ context.Context, authorID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.posts {
		if p.AuthorID == authorID {
			n++
		}
	}
	return n, nil
}

// =========================================================================
// MESSAGES
// =========================================================================

func (s *Store) CreateMessage(_ context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(msg.Body) == "" {
		return apperror.ValidationFailed("message", "Message body is required")
	}
	sender, ok := s.users[msg.SenderID]
	if !ok {
		return apperror.NotFound("User", msg.SenderID)
	}
	if _, ok := s.users[msg.RecipientID]; !ok {
		return apperror.NotFound("User", msg.RecipientID)
	}
	msg.ID = xid.New().String()
	msg.CreatedAt = time.Now().UTC()
	msg.ReadAt = nil
	msg.SenderUsername = sender.Username
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *Store) inbox(recipientID string) []model.Message {
	out := []model.Message{}
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.RecipientID != recipientID {
			continue
		}
		if u, ok := s.users[m.SenderID]; ok {
			m.SenderUsername = u.Username
		}
		if m.ReadAt != nil {
			t := *m.ReadAt
			m.ReadAt = &t
		}
		out = append(out, m)
	}
	return out
}

func (s *Store) ListInbox(_ context.Context, recipientID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inbox(recipientID), nil
}

func (s *Store) ReadInbox(_ context.Context, recipientID string, at time.Time) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.inbox(recipientID)
	returned := make(map[string]bool, len(out))
	for _, m := range out {
		returned[m.ID] = true
	}

	readAt := at.UTC()
	for i := range s.messages {
		if returned[s.messages[i].ID] && s.messages[i].ReadAt == nil {
			t := readAt
			s.messages[i].ReadAt = &t
		}
	}
	return out, nil
}

func (s *Store) CountUnread(_ context.Context, recipientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.RecipientID == recipientID && m.ReadAt == nil {
			n++
		}
	}
	return n, nil
}
