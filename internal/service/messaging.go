package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/microblog/internal/activity"
	"github.com/sakif/microblog/internal/model"
	"github.com/sakif/microblog/internal/repository"
)

// MessagingService handles private messages between users.
type MessagingService struct {
	users    repository.UserRepository
	messages repository.MessageRepository
	events   activity.Publisher
	logger   *slog.Logger
}

func NewMessagingService(
	users repository.UserRepository,
	messages repository.MessageRepository,
	events activity.Publisher,
	logger *slog.Logger,
) *MessagingService {
	return &MessagingService{users: users, messages: messages, events: events, logger: logger}
}

// SendMessage delivers body from sender to the user named recipientUsername.
// The body is validated before the recipient lookup, so an empty message
// never touches storage.
func (s *MessagingService) SendMessage(ctx context.Context, sender *model.User, recipientUsername, body string) (*model.Message, error) {
	body, err := validateBody("message", "Message", body)
	if err != nil {
		return nil, err
	}

	recipient, err := s.users.GetUserByUsername(ctx, recipientUsername)
	if err != nil {
		return nil, fmt.Errorf("service: resolving recipient %q: %w", recipientUsername, err)
	}

	msg := &model.Message{SenderID: sender.ID, RecipientID: recipient.ID, Body: body}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("service: sending message: %w", err)
	}
	msg.SenderUsername = sender.Username

	s.logger.Info("message sent",
		slog.String("id", msg.ID),
		slog.String("sender", sender.Username),
		slog.String("recipient", recipient.Username),
	)
	s.events.Publish(ctx, activity.NewEvent(activity.MessageSent, sender.ID, recipient.ID))
	return msg, nil
}

// Inbox lists every message received by userID, newest first, without
// marking them.
func (s *MessagingService) Inbox(ctx context.Context, userID string) ([]model.Message, error) {
	msgs, err := s.messages.ListInbox(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: inbox of %s: %w", userID, err)
	}
	return msgs, nil
}

// ReadInbox lists the inbox and marks everything in it read. The returned
// messages carry their state from before the call.
func (s *MessagingService) ReadInbox(ctx context.Context, userID string) ([]model.Message, error) {
	msgs, err := s.messages.ReadInbox(ctx, userID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("service: reading inbox of %s: %w", userID, err)
	}
	return msgs, nil
}

func (s *MessagingService) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := s.messages.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("service: unread count of %s: %w", userID, err)
	}
	return n, nil
}
