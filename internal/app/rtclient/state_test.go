package rtclient

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ripplechat/internal/app/realtime"
	"ripplechat/internal/app/store"
)

// applyEvent encodes and applies an event the way the read loop would.
func applyEvent(t *testing.T, s *ChatState, event string, payload any) {
	t.Helper()

	frame, err := realtime.EncodeEvent(event, payload)
	require.NoError(t, err)

	var env realtime.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	s.ApplyEvent(env)
}

func TestChatState_DuplicateDeliveryAppliesOnce(t *testing.T) {
	s := NewChatState()

	msg := store.Message{ID: "m1", ChatID: "chat-1", SenderID: "alice", Content: "hi"}
	payload := realtime.MessageReceivedPayload{ChatID: "chat-1", Message: msg}

	applyEvent(t, s, realtime.EventMessageReceived, payload)
	applyEvent(t, s, realtime.EventMessageReceived, payload)

	require.Len(t, s.Messages("chat-1"), 1)
}

func TestChatState_SenderDoesNotDuplicateOptimisticCopy(t *testing.T) {
	s := NewChatState()

	msg := store.Message{ID: "m1", ChatID: "chat-1", SenderID: "alice", Content: "hi"}
	s.ApplyOptimistic(msg)
	s.ConfirmOptimistic("m1", msg)

	// Redundant re-delivery of the sender's own message after reconnect.
	applyEvent(t, s, realtime.EventMessageReceived, realtime.MessageReceivedPayload{ChatID: "chat-1", Message: msg})

	require.Len(t, s.Messages("chat-1"), 1)
}

func TestChatState_OptimisticConfirmSwapsTemporaryID(t *testing.T) {
	s := NewChatState()

	temp := store.Message{ID: "temp-1", ChatID: "chat-1", SenderID: "alice", Content: "hi"}
	s.ApplyOptimistic(temp)
	require.True(t, s.IsPending("temp-1"))

	confirmed := temp
	confirmed.ID = "m1"
	confirmed.CreatedAt = time.Now()
	s.ConfirmOptimistic("temp-1", confirmed)

	require.False(t, s.IsPending("temp-1"))
	msgs := s.Messages("chat-1")
	require.Len(t, msgs, 1)
	require.Equal(t, "m1", msgs[0].ID)
}

func TestChatState_OptimisticRollbackRemovesMessage(t *testing.T) {
	s := NewChatState()

	s.ApplyOptimistic(store.Message{ID: "temp-1", ChatID: "chat-1", Content: "doomed"})
	s.RollbackOptimistic("temp-1")

	require.Empty(t, s.Messages("chat-1"))
	require.False(t, s.IsPending("temp-1"))
}

func TestChatState_ReactionAddReplacesSameUserInPlace(t *testing.T) {
	s := NewChatState()

	applyEvent(t, s, realtime.EventMessageReceived, realtime.MessageReceivedPayload{
		ChatID:  "chat-1",
		Message: store.Message{ID: "m1", ChatID: "chat-1"},
	})

	applyEvent(t, s, realtime.EventReactionAdded, realtime.AddReactionPayload{
		ChatID:    "chat-1",
		MessageID: "m1",
		Reaction:  store.Reaction{ID: "rx-1", MessageID: "m1", UserID: "alice", Emoji: "👍"},
	})
	applyEvent(t, s, realtime.EventReactionAdded, realtime.AddReactionPayload{
		ChatID:    "chat-1",
		MessageID: "m1",
		Reaction:  store.Reaction{ID: "rx-2", MessageID: "m1", UserID: "bob", Emoji: "🎉"},
	})

	// Alice switches emoji: her reaction is updated in place, not appended.
	applyEvent(t, s, realtime.EventReactionAdded, realtime.AddReactionPayload{
		ChatID:    "chat-1",
		MessageID: "m1",
		Reaction:  store.Reaction{ID: "rx-1", MessageID: "m1", UserID: "alice", Emoji: "❤️"},
	})

	msgs := s.Messages("chat-1")
	require.Len(t, msgs[0].Reactions, 2)
	require.Equal(t, "❤️", msgs[0].Reactions[0].Emoji)
	require.Equal(t, "alice", msgs[0].Reactions[0].UserID)
}

func TestChatState_ReactionRemovedFiltersByID(t *testing.T) {
	s := NewChatState()

	applyEvent(t, s, realtime.EventMessageReceived, realtime.MessageReceivedPayload{
		ChatID:  "chat-1",
		Message: store.Message{ID: "m1", ChatID: "chat-1"},
	})
	applyEvent(t, s, realtime.EventReactionAdded, realtime.AddReactionPayload{
		ChatID:    "chat-1",
		MessageID: "m1",
		Reaction:  store.Reaction{ID: "rx-1", MessageID: "m1", UserID: "alice", Emoji: "👍"},
	})

	applyEvent(t, s, realtime.EventReactionRemoved, realtime.RemoveReactionPayload{
		ChatID:     "chat-1",
		MessageID:  "m1",
		ReactionID: "rx-1",
		UserID:     "alice",
	})

	require.Empty(t, s.Messages("chat-1")[0].Reactions)
}

func TestChatState_TypingKeyedByUserID(t *testing.T) {
	s := NewChatState()

	// Start and stop carry different display names; user id still matches.
	applyEvent(t, s, realtime.EventUserTyping, realtime.TypingPayload{
		ChatID: "chat-1", UserID: "u1", Username: "Alice",
	})
	require.Equal(t, []string{"Alice"}, s.TypingUsernames("chat-1"))

	applyEvent(t, s, realtime.EventUserStoppedTyping, realtime.TypingPayload{
		ChatID: "chat-1", UserID: "u1", Username: "alice@renamed",
	})
	require.Empty(t, s.TypingUsernames("chat-1"))
}

func TestChatState_DeleteForEveryoneTombstones(t *testing.T) {
	s := NewChatState()

	applyEvent(t, s, realtime.EventMessageReceived, realtime.MessageReceivedPayload{
		ChatID:  "chat-1",
		Message: store.Message{ID: "m1", ChatID: "chat-1", Content: "secret"},
	})

	// A delete-for-sender on someone else's device changes nothing here.
	applyEvent(t, s, realtime.EventMessageDeleted, realtime.DeleteMessagePayload{
		ChatID: "chat-1", MessageID: "m1", DeleteForEveryone: false,
	})
	require.Equal(t, "secret", s.Messages("chat-1")[0].Content)

	applyEvent(t, s, realtime.EventMessageDeleted, realtime.DeleteMessagePayload{
		ChatID: "chat-1", MessageID: "m1", DeleteForEveryone: true,
	})

	msgs := s.Messages("chat-1")
	require.Len(t, msgs, 1, "tombstone keeps the row")
	require.True(t, msgs[0].DeletedForEveryone)
	require.Empty(t, msgs[0].Content)
}

func TestChatState_ReadReceiptsAndUnreadNudges(t *testing.T) {
	s := NewChatState()

	applyEvent(t, s, realtime.EventMessageReceived, realtime.MessageReceivedPayload{
		ChatID:  "chat-1",
		Message: store.Message{ID: "m1", ChatID: "chat-1"},
	})

	applyEvent(t, s, realtime.EventUnreadCountUpdated, realtime.UnreadCountUpdatedPayload{ChatID: "chat-1"})
	applyEvent(t, s, realtime.EventUnreadCountUpdated, realtime.UnreadCountUpdatedPayload{ChatID: "chat-1"})
	require.Equal(t, 2, s.UnreadCount("chat-1"))

	// The authoritative fetch wins over provisional nudges.
	s.SetUnreadCount("chat-1", 0)
	require.Zero(t, s.UnreadCount("chat-1"))

	applyEvent(t, s, realtime.EventMessagesMarkedRead, realtime.MessagesReadPayload{
		ChatID: "chat-1", UserID: "bob", MessageIDs: []string{"m1"},
	})
	applyEvent(t, s, realtime.EventMessagesMarkedRead, realtime.MessagesReadPayload{
		ChatID: "chat-1", UserID: "bob", MessageIDs: []string{"m1"},
	})
	require.Equal(t, []string{"bob"}, s.Messages("chat-1")[0].ReadBy)
}

func TestChatState_PresenceSnapshotsMerge(t *testing.T) {
	s := NewChatState()

	seen := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	applyEvent(t, s, realtime.EventUserStatusChanged, realtime.UserStatusChangedPayload{
		UserID: "alice", IsOnline: false, LastSeen: &seen,
	})

	applyEvent(t, s, realtime.EventUserStatuses, realtime.UserStatusesPayload{
		Statuses: map[string]realtime.UserStatus{
			"alice": {UserID: "alice", Online: true},
			"bob":   {UserID: "bob", Online: false},
		},
	})

	alice, ok := s.Status("alice")
	require.True(t, ok)
	require.True(t, alice.Online)
	require.Nil(t, alice.LastSeen)

	bob, ok := s.Status("bob")
	require.True(t, ok)
	require.False(t, bob.Online)
}

func TestChatState_MalformedPayloadIsDropped(t *testing.T) {
	s := NewChatState()

	s.ApplyEvent(realtime.Envelope{
		Type:    realtime.EventMessageReceived,
		Payload: []byte(`"not an object"`),
	})

	require.Empty(t, s.Messages("chat-1"))
}
