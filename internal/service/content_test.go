package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/microblog/internal/apperror"
	"github.com/sakif/microblog/internal/model"
)

func postBodies(posts []model.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.Body
	}
	return out
}

func TestCreatePost(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")

	p, err := f.content.CreatePost(context.Background(), alice, "  hello world  ")
	require.NoError(t, err)
	assert.Equal(t, "hello world", p.Body)
	assert.Equal(t, "alice", p.AuthorUsername)
	assert.NotEmpty(t, p.ID)
}

func TestCreatePost_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	tests := []struct {
		name, body, wantMsg string
	}{
		{"empty", "", "Post body is required"},
		{"whitespace", " \t\n ", "Post body is required"},
		{"too long", strings.Repeat("x", 141), "Post must be 140 characters or less"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.content.CreatePost(ctx, alice, tt.body)
			require.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.wantMsg, userMessage(t, err))
		})
	}

	n, _ := f.content.PostCount(ctx, alice.ID)
	assert.Zero(t, n, "rejected posts must not be stored")
}

func TestTimelineExploreAndUserPosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	carol := f.register(t, "carol")

	for _, p := range []struct {
		author *model.User
		body   string
	}{{alice, "a1"}, {bob, "b1"}, {carol, "c1"}, {alice, "a2"}} {
		_, err := f.content.CreatePost(ctx, p.author, p.body)
		require.NoError(t, err)
	}
	_, err := f.graph.Follow(ctx, alice, "bob")
	require.NoError(t, err)

	timeline, err := f.content.Timeline(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "b1", "a1"}, postBodies(timeline))

	explore, err := f.content.Explore(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "c1", "b1", "a1"}, postBodies(explore))

	mine, err := f.content.UserPosts(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "a1"}, postBodies(mine))

	n, _ := f.content.PostCount(ctx, alice.ID)
	assert.Equal(t, 2, n)
}
