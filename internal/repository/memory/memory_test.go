package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/microblog/internal/apperror"
	"github.com/sakif/microblog/internal/model"
)

// These tests pin the behaviours the services rely on so the in-memory
// store stays interchangeable with the SQLite one.

func mustUser(t *testing.T, s *Store, name string) *model.User {
	t.Helper()
	u := &model.User{Username: name, Email: name + "@example.com"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestStore_UserUniqueness(t *testing.T) {
	s := New()
	mustUser(t, s, "nowy")

	err := s.CreateUser(context.Background(), &model.User{Username: "nowy", Email: "x@example.com"})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	err = s.CreateUser(context.Background(), &model.User{Username: "other", Email: "nowy@example.com"})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	users, _ := s.ListUsers(context.Background())
	assert.Len(t, users, 1)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	u := mustUser(t, s, "alice")

	got, err := s.GetUserByID(context.Background(), u.ID)
	require.NoError(t, err)
	got.Username = "mallory"

	again, _ := s.GetUserByID(context.Background(), u.ID)
	assert.Equal(t, "alice", again.Username)
}

func TestStore_FollowRules(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := mustUser(t, s, "a")
	b := mustUser(t, s, "b")

	_, err := s.Follow(ctx, a.ID, a.ID, time.Now())
	assert.ErrorIs(t, err, apperror.ErrConflict)

	created, err := s.Follow(ctx, a.ID, b.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Follow(ctx, a.ID, b.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, created)

	n, _ := s.CountFollowers(ctx, b.ID)
	assert.Equal(t, 1, n)

	_, err = s.Follow(ctx, a.ID, "ghost", time.Now())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestStore_TimelineAndInboxOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := mustUser(t, s, "a")
	b := mustUser(t, s, "b")
	c := mustUser(t, s, "c")
	s.Follow(ctx, a.ID, b.ID, time.Now())

	for _, p := range []struct{ author, body string }{{a.ID, "a1"}, {b.ID, "b1"}, {c.ID, "c1"}, {a.ID, "a2"}} {
		require.NoError(t, s.CreatePost(ctx, &model.Post{AuthorID: p.author, Body: p.body}))
	}

	timeline, _ := s.ListTimeline(ctx, a.ID, 10)
	var got []string
	for _, p := range timeline {
		got = append(got, p.Body)
	}
	assert.Equal(t, []string{"a2", "b1", "a1"}, got)

	require.NoError(t, s.CreateMessage(ctx, &model.Message{SenderID: b.ID, RecipientID: a.ID, Body: "one"}))
	require.NoError(t, s.CreateMessage(ctx, &model.Message{SenderID: c.ID, RecipientID: a.ID, Body: "two"}))

	msgs, _ := s.ReadInbox(ctx, a.ID, time.Now())
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Body)
	assert.True(t, msgs[0].Unread())

	unread, _ := s.CountUnread(ctx, a.ID)
	assert.Zero(t, unread)
}

func TestStore_IssueTokenCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := mustUser(t, s, "a")
	now := time.Now()

	first, err := s.IssueToken(ctx, u.ID, "t1", now.Add(time.Hour), now.Add(time.Minute))
	require.NoError(t, err)
	second, err := s.IssueToken(ctx, u.ID, "t2", now.Add(time.Hour), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first.Token, second.Token)

	require.NoError(t, s.RevokeToken(ctx, u.ID, now))
	n, _ := s.ClearExpiredTokens(ctx, now)
	assert.EqualValues(t, 1, n)

	_, err = s.GetUserByToken(ctx, "t1")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestStore_ReadInboxReturnsEveryMessage(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := mustUser(t, s, "a")
	b := mustUser(t, s, "b")

	for i := range 51 {
		require.NoError(t, s.CreateMessage(ctx, &model.Message{SenderID: b.ID, RecipientID: a.ID, Body: fmt.Sprintf("m%d", i)}))
	}

	msgs, err := s.ReadInbox(ctx, a.ID, time.Now())
	require.NoError(t, err)
	require.Len(t, msgs, 51)
	assert.Equal(t, "m0", msgs[50].Body)

	require.NoError(t, s.CreateMessage(ctx, &model.Message{SenderID: b.ID, RecipientID: a.ID, Body: "later"}))
	unread, _ := s.CountUnread(ctx, a.ID)
	assert.Equal(t, 1, unread)
}
