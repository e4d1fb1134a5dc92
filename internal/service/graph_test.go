package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/microblog/internal/activity"
	"github.com/sakif/microblog/internal/apperror"
)

func TestFollow_SelfIsRejected(t *testing.T) {
	f := newFixture(t)
	ja := f.register(t, "ja")

	_, err := f.graph.Follow(context.Background(), ja, "ja")
	require.ErrorIs(t, err, apperror.ErrConflict)
	assert.Equal(t, "You cannot follow yourself!", userMessage(t, err))

	n, _ := f.graph.FollowersCount(context.Background(), ja.ID)
	assert.Zero(t, n)
}

func TestFollow_ThenUnfollowToggles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	target, err := f.graph.Follow(ctx, alice, "bob")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, target.ID)

	following, _ := f.graph.IsFollowing(ctx, alice.ID, bob.ID)
	assert.True(t, following)
	followers, _ := f.graph.FollowersCount(ctx, bob.ID)
	assert.Equal(t, 1, followers)
	followingN, _ := f.graph.FollowingCount(ctx, alice.ID)
	assert.Equal(t, 1, followingN)

	_, err = f.graph.Unfollow(ctx, alice, "bob")
	require.NoError(t, err)

	following, _ = f.graph.IsFollowing(ctx, alice.ID, bob.ID)
	assert.False(t, following)
	followers, _ = f.graph.FollowersCount(ctx, bob.ID)
	assert.Zero(t, followers)
}

func TestFollow_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	for i := 0; i < 3; i++ {
		_, err := f.graph.Follow(ctx, alice, "bob")
		require.NoError(t, err)
	}

	n, _ := f.graph.FollowersCount(ctx, bob.ID)
	assert.Equal(t, 1, n)

	followEvents := 0
	for _, typ := range f.events.types() {
		if typ == activity.UserFollowed {
			followEvents++
		}
	}
	assert.Equal(t, 1, followEvents, "only the first follow changes anything")
}

func TestFollow_UnknownTarget(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")

	_, err := f.graph.Follow(context.Background(), alice, "ghost")
	require.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, "User ghost not found.", userMessage(t, err))

	_, err = f.graph.Unfollow(context.Background(), alice, "ghost")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUnfollow_NotFollowingIsNoop(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	f.register(t, "bob")

	_, err := f.graph.Unfollow(context.Background(), alice, "bob")
	assert.NoError(t, err)
	assert.NotContains(t, f.events.types(), activity.UserUnfollowed)
}

func TestFollowersAndFollowingLists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	carol := f.register(t, "carol")

	f.graph.Follow(ctx, bob, "alice")
	f.graph.Follow(ctx, carol, "alice")
	f.graph.Follow(ctx, alice, "carol")

	followers, err := f.graph.Followers(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, followers, 2)
	assert.Equal(t, "bob", followers[0].Username)
	assert.Equal(t, "carol", followers[1].Username)

	following, err := f.graph.Following(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, carol.ID, following[0].ID)
}
