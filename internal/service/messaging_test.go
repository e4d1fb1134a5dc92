package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/microblog/internal/activity"
	"github.com/sakif/microblog/internal/apperror"
)

func TestSendMessage_AppearsOnceInInbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s1 := f.register(t, "s1")
	r1 := f.register(t, "r1")

	msg, err := f.messaging.SendMessage(ctx, s1, "r1", "hi")
	require.NoError(t, err)
	assert.Equal(t, r1.ID, msg.RecipientID)

	inbox, err := f.messaging.Inbox(ctx, r1.ID)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "hi", inbox[0].Body)
	assert.Equal(t, "s1", inbox[0].SenderUsername)

	unread, _ := f.messaging.UnreadCount(ctx, r1.ID)
	assert.Equal(t, 1, unread)

	last := f.events.events[len(f.events.events)-1]
	assert.Equal(t, activity.MessageSent, last.Type)
	assert.Equal(t, r1.ID, last.SubjectID)
}

func TestSendMessage_EmptyBodyStoresNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s1 := f.register(t, "s1")
	r1 := f.register(t, "r1")

	_, err := f.messaging.SendMessage(ctx, s1, "r1", "   ")
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "Message body is required", userMessage(t, err))

	inbox, _ := f.messaging.Inbox(ctx, r1.ID)
	assert.Empty(t, inbox)
}

func TestSendMessage_UnknownRecipient(t *testing.T) {
	f := newFixture(t)
	s1 := f.register(t, "s1")

	_, err := f.messaging.SendMessage(context.Background(), s1, "ghost", "hi")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestReadInbox_MarksReadNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s1 := f.register(t, "s1")
	r1 := f.register(t, "r1")

	for _, body := range []string{"first", "second"} {
		_, err := f.messaging.SendMessage(ctx, s1, "r1", body)
		require.NoError(t, err)
	}

	msgs, err := f.messaging.ReadInbox(ctx, r1.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "second", msgs[0].Body)
	assert.True(t, msgs[0].Unread())

	unread, _ := f.messaging.UnreadCount(ctx, r1.ID)
	assert.Zero(t, unread)
}

func TestInbox_HasNoCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s1 := f.register(t, "s1")
	r1 := f.register(t, "r1")

	for i := range 60 {
		_, err := f.messaging.SendMessage(ctx, s1, "r1", fmt.Sprintf("note %d", i))
		require.NoError(t, err)
	}

	inbox, err := f.messaging.Inbox(ctx, r1.ID)
	require.NoError(t, err)
	assert.Len(t, inbox, 60)

	read, err := f.messaging.ReadInbox(ctx, r1.ID)
	require.NoError(t, err)
	assert.Len(t, read, 60)
	assert.Equal(t, "note 0", read[59].Body)
}
