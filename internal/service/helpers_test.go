package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/microblog/internal/activity"
	"github.com/sakif/microblog/internal/apperror"
	"github.com/sakif/microblog/internal/auth"
	"github.com/sakif/microblog/internal/model"
	"github.com/sakif/microblog/internal/repository/memory"
)

// recorder is an activity.Publisher that keeps what it was given.
type recorder struct {
	mu     sync.Mutex
	events []activity.Event
}

func (r *recorder) Publish(_ context.Context, ev activity.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []activity.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]activity.Type, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// fixture wires every service over one in-memory store.
type fixture struct {
	store     *memory.Store
	events    *recorder
	identity  *IdentityService
	graph     *GraphService
	content   *ContentService
	messaging *MessagingService
	gate      *Gate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store := memory.New()
	events := &recorder{}
	passwords := auth.NewPasswordServiceForTest(bcrypt.MinCost)

	sessions, err := auth.NewSessionService("test-secret-at-least-16-chars!!", 0)
	if err != nil {
		t.Fatalf("NewSessionService() error = %v", err)
	}

	identity := NewIdentityService(store, passwords, events, DefaultTokenTTL, logger)
	return &fixture{
		store:     store,
		events:    events,
		identity:  identity,
		graph:     NewGraphService(store, store, events, logger),
		content:   NewContentService(store, events, logger),
		messaging: NewMessagingService(store, store, events, logger),
		gate:      NewGate(identity, sessions),
	}
}

// register creates username with email username@test.com and password "pw".
func (f *fixture) register(t *testing.T, username string) *model.User {
	t.Helper()
	u, err := f.identity.Register(context.Background(), username, username+"@test.com", "pw")
	if err != nil {
		t.Fatalf("Register(%q) error = %v", username, err)
	}
	return u
}

// userMessage returns the user-facing text of err, as handlers render it.
func userMessage(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error %v is not an *apperror.AppError", err)
	}
	return appErr.Message
}
