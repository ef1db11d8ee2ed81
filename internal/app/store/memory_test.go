package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func seedMessage(t *testing.T, m *Memory, id, chatID string, at time.Time) {
	t.Helper()

	require.NoError(t, m.CreateMessage(context.Background(), &Message{
		ID:          id,
		ChatID:      chatID,
		SenderID:    "alice",
		RecipientID: "bob",
		Content:     "content-" + id,
		CreatedAt:   at,
	}))
}

func TestMemory_ListMessagesOrderedOldestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	seedMessage(t, m, "m2", "chat-1", base.Add(time.Minute))
	seedMessage(t, m, "m1", "chat-1", base)
	seedMessage(t, m, "m3", "chat-1", base.Add(2*time.Minute))
	seedMessage(t, m, "other", "chat-2", base)

	msgs, err := m.ListMessagesForChat(ctx, "chat-1", "bob", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "m1", msgs[0].ID)
	require.Equal(t, "m2", msgs[1].ID)
	require.Equal(t, "m3", msgs[2].ID)

	limited, err := m.ListMessagesForChat(ctx, "chat-1", "bob", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	require.Equal(t, "m1", limited[0].ID)
}

func TestMemory_SoftDeleteHidesForOneUserOnly(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	seedMessage(t, m, "m1", "chat-1", time.Now())
	require.NoError(t, m.SoftDeleteForUser(ctx, "m1", "alice"))

	forAlice, err := m.ListMessagesForChat(ctx, "chat-1", "alice", 50)
	require.NoError(t, err)
	require.Empty(t, forAlice)

	forBob, err := m.ListMessagesForChat(ctx, "chat-1", "bob", 50)
	require.NoError(t, err)
	require.Len(t, forBob, 1)
	require.Equal(t, "content-m1", forBob[0].Content)

	require.ErrorIs(t, m.SoftDeleteForUser(ctx, "ghost", "alice"), ErrNotFound)
}

func TestMemory_HardDeleteTombstonesForEveryone(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	seedMessage(t, m, "m1", "chat-1", time.Now())
	require.NoError(t, m.HardDeleteForEveryone(ctx, "m1"))

	for _, viewer := range []string{"alice", "bob"} {
		msgs, err := m.ListMessagesForChat(ctx, "chat-1", viewer, 50)
		require.NoError(t, err)
		require.Len(t, msgs, 1, "the row survives so clients can tombstone")
		require.True(t, msgs[0].DeletedForEveryone)
		require.Empty(t, msgs[0].Content)
	}

	require.ErrorIs(t, m.HardDeleteForEveryone(ctx, "ghost"), ErrNotFound)
}

func TestMemory_ReactionToggleRemovesOnRepeat(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	seedMessage(t, m, "m1", "chat-1", time.Now())

	first, outcome, err := m.CreateOrUpdateReaction(ctx, "m1", "bob", "👍")
	require.NoError(t, err)
	require.Equal(t, ReactionAdded, outcome)
	require.Equal(t, "👍", first.Emoji)

	// Same (user, emoji) again toggles the reaction off.
	removed, outcome, err := m.CreateOrUpdateReaction(ctx, "m1", "bob", "👍")
	require.NoError(t, err)
	require.Equal(t, ReactionRemoved, outcome)
	require.Equal(t, first.ID, removed.ID)

	msgs, err := m.ListMessagesForChat(ctx, "chat-1", "alice", 50)
	require.NoError(t, err)
	require.Empty(t, msgs[0].Reactions)
}

func TestMemory_ReactionReplaceKeepsOnePerUser(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	seedMessage(t, m, "m1", "chat-1", time.Now())

	first, _, err := m.CreateOrUpdateReaction(ctx, "m1", "bob", "👍")
	require.NoError(t, err)

	replaced, outcome, err := m.CreateOrUpdateReaction(ctx, "m1", "bob", "❤️")
	require.NoError(t, err)
	require.Equal(t, ReactionReplaced, outcome)
	require.Equal(t, first.ID, replaced.ID, "replace updates the row in place")
	require.Equal(t, "❤️", replaced.Emoji)

	msgs, err := m.ListMessagesForChat(ctx, "chat-1", "alice", 50)
	require.NoError(t, err)
	require.Len(t, msgs[0].Reactions, 1)
	require.Equal(t, "❤️", msgs[0].Reactions[0].Emoji)
}

func TestMemory_ReactionsIndependentAcrossUsers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	seedMessage(t, m, "m1", "chat-1", time.Now())

	_, _, err := m.CreateOrUpdateReaction(ctx, "m1", "bob", "👍")
	require.NoError(t, err)
	_, outcome, err := m.CreateOrUpdateReaction(ctx, "m1", "carol", "👍")
	require.NoError(t, err)
	require.Equal(t, ReactionAdded, outcome, "another user's same emoji is a fresh reaction")

	msgs, err := m.ListMessagesForChat(ctx, "chat-1", "alice", 50)
	require.NoError(t, err)
	require.Len(t, msgs[0].Reactions, 2)
}

func TestMemory_ReactionOnUnknownMessage(t *testing.T) {
	m := NewMemory()

	_, _, err := m.CreateOrUpdateReaction(context.Background(), "ghost", "bob", "👍")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_DeleteReaction(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	seedMessage(t, m, "m1", "chat-1", time.Now())
	rx, _, err := m.CreateOrUpdateReaction(ctx, "m1", "bob", "👍")
	require.NoError(t, err)

	require.NoError(t, m.DeleteReaction(ctx, rx.ID))
	require.ErrorIs(t, m.DeleteReaction(ctx, rx.ID), ErrNotFound)
}

func TestMemory_MarkReadIsIdempotentAndChatScoped(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	seedMessage(t, m, "m1", "chat-1", time.Now())
	seedMessage(t, m, "m2", "chat-2", time.Now())

	// m2 belongs to another chat and unknown ids are skipped.
	require.NoError(t, m.MarkRead(ctx, "chat-1", "bob", []string{"m1", "m2", "ghost"}))
	require.NoError(t, m.MarkRead(ctx, "chat-1", "bob", []string{"m1"}))

	msgs, err := m.ListMessagesForChat(ctx, "chat-1", "alice", 50)
	require.NoError(t, err)
	require.Equal(t, []string{"bob"}, msgs[0].ReadBy)

	other, err := m.ListMessagesForChat(ctx, "chat-2", "alice", 50)
	require.NoError(t, err)
	require.Empty(t, other[0].ReadBy)
}

func TestMemory_UnreadCounterLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	count, err := m.UnreadCount(ctx, "chat-1", "bob")
	require.NoError(t, err)
	require.Zero(t, count)

	require.NoError(t, m.IncrementUnread(ctx, "chat-1", "bob"))
	require.NoError(t, m.IncrementUnread(ctx, "chat-1", "bob"))
	require.NoError(t, m.IncrementUnread(ctx, "chat-1", "alice"))

	count, err = m.UnreadCount(ctx, "chat-1", "bob")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	require.NoError(t, m.ResetUnread(ctx, "chat-1", "bob"))
	count, err = m.UnreadCount(ctx, "chat-1", "bob")
	require.NoError(t, err)
	require.Zero(t, count)

	// Other users' counters are untouched by the reset.
	count, err = m.UnreadCount(ctx, "chat-1", "alice")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
