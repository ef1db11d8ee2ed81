/*
Package rtclient is the client-side counterpart of the realtime core: it owns
the socket connection lifecycle, per-chat subscription bookkeeping, optimistic
local state, and reconciliation with server-confirmed state.

This file defines ChatState, the local view of chats a client renders from.
Inbound broadcasts are reconciled with duplicate suppression (a message id
seen twice is applied once) and reactions mirror the store's toggle/replace
rule, so client and server state cannot diverge on redundant re-delivery.
*/
package rtclient

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"ripplechat/internal/app/realtime"
	"ripplechat/internal/app/store"
	"ripplechat/internal/pkg/logx"
)

// ChatState is the client-local chat view. Safe for concurrent use: the socket
// read loop applies events while UI code reads snapshots.
type ChatState struct {
	mu sync.Mutex

	// messages holds the ordered message list per chat id.
	messages map[string][]store.Message

	// pending tracks optimistic sends by temporary id, awaiting confirmation.
	pending map[string]string // temp message id -> chat id

	// typing maps chat id to the users currently typing, keyed by user id.
	// The username is display-only; user id is the sole key, so a stop event
	// always clears the right entry.
	typing map[string]map[string]string

	// unread holds provisional unread counters per chat, reconciled on fetch.
	unread map[string]int

	// statuses caches the last known presence per user id.
	statuses map[string]realtime.UserStatus

	logger zerolog.Logger
}

// NewChatState returns an empty client-side chat state.
func NewChatState() *ChatState {
	return &ChatState{
		messages: make(map[string][]store.Message),
		pending:  make(map[string]string),
		typing:   make(map[string]map[string]string),
		unread:   make(map[string]int),
		statuses: make(map[string]realtime.UserStatus),
		logger:   logx.Logger().With().Str("component", "ChatState").Logger(),
	}
}

// Messages returns a snapshot of the chat's message list.
func (s *ChatState) Messages(chatID string) []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.Message, len(s.messages[chatID]))
	copy(out, s.messages[chatID])
	return out
}

// TypingUsernames returns the display names currently typing in the chat, sorted.
func (s *ChatState) TypingUsernames(chatID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := lo.Values(s.typing[chatID])
	sort.Strings(names)
	return names
}

// UnreadCount returns the provisional unread counter for the chat.
func (s *ChatState) UnreadCount(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.unread[chatID]
}

// SetUnreadCount overwrites the counter with an authoritative value from the store.
func (s *ChatState) SetUnreadCount(chatID string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unread[chatID] = count
}

// Status returns the last known presence for the user, if any.
func (s *ChatState) Status(userID string) (realtime.UserStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.statuses[userID]
	return status, ok
}

// IsPending reports whether the message id is an unconfirmed optimistic send.
func (s *ChatState) IsPending(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.pending[messageID]
	return ok
}

// ReplaceMessages swaps in an authoritative list fetched from the store,
// used after reconnect: the client may have missed events and reconciles by
// re-fetching full chat state.
func (s *ChatState) ReplaceMessages(chatID string, msgs []store.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[chatID] = append([]store.Message(nil), msgs...)
}

// ApplyOptimistic renders a sent message immediately under its temporary id,
// before the persistence call returns.
func (s *ChatState) ApplyOptimistic(msg store.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[msg.ID] = msg.ChatID
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], msg)
}

// ConfirmOptimistic replaces the temporary id with the server-assigned message
// once persistence succeeds.
func (s *ChatState) ConfirmOptimistic(tempID string, confirmed store.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chatID, ok := s.pending[tempID]
	if !ok {
		return
	}
	delete(s.pending, tempID)

	msgs := s.messages[chatID]
	for i := range msgs {
		if msgs[i].ID == tempID {
			msgs[i] = confirmed
			return
		}
	}
}

// RollbackOptimistic removes a failed optimistic send.
func (s *ChatState) RollbackOptimistic(tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chatID, ok := s.pending[tempID]
	if !ok {
		return
	}
	delete(s.pending, tempID)

	s.messages[chatID] = lo.Filter(s.messages[chatID], func(m store.Message, _ int) bool {
		return m.ID != tempID
	})
}

// ApplyEvent reconciles one inbound server event against local state.
// Unknown event types are ignored so old clients tolerate protocol growth.
func (s *ChatState) ApplyEvent(env realtime.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch env.Type {
	case realtime.EventMessageReceived:
		var p realtime.MessageReceivedPayload
		if !s.decode(env, &p) {
			return
		}
		s.applyMessageReceived(p)

	case realtime.EventMessageDeleted:
		var p realtime.DeleteMessagePayload
		if !s.decode(env, &p) {
			return
		}
		s.applyMessageDeleted(p)

	case realtime.EventUserTyping:
		var p realtime.TypingPayload
		if !s.decode(env, &p) {
			return
		}
		users, ok := s.typing[p.ChatID]
		if !ok {
			users = make(map[string]string)
			s.typing[p.ChatID] = users
		}
		users[p.UserID] = p.Username

	case realtime.EventUserStoppedTyping:
		var p realtime.TypingPayload
		if !s.decode(env, &p) {
			return
		}
		delete(s.typing[p.ChatID], p.UserID)

	case realtime.EventMessagesMarkedRead:
		var p realtime.MessagesReadPayload
		if !s.decode(env, &p) {
			return
		}
		s.applyMessagesRead(p)

	case realtime.EventUnreadCountUpdated:
		var p realtime.UnreadCountUpdatedPayload
		if !s.decode(env, &p) {
			return
		}
		s.unread[p.ChatID]++

	case realtime.EventReactionAdded:
		var p realtime.AddReactionPayload
		if !s.decode(env, &p) {
			return
		}
		s.applyReactionAdded(p)

	case realtime.EventReactionRemoved:
		var p realtime.RemoveReactionPayload
		if !s.decode(env, &p) {
			return
		}
		s.applyReactionRemoved(p)

	case realtime.EventUserStatusChanged:
		var p realtime.UserStatusChangedPayload
		if !s.decode(env, &p) {
			return
		}
		s.statuses[p.UserID] = realtime.UserStatus{
			UserID:   p.UserID,
			Online:   p.IsOnline,
			LastSeen: p.LastSeen,
		}

	case realtime.EventUserStatuses:
		var p realtime.UserStatusesPayload
		if !s.decode(env, &p) {
			return
		}
		for id, status := range p.Statuses {
			s.statuses[id] = status
		}
	}
}

// decode unmarshals the payload, logging and dropping malformed events.
func (s *ChatState) decode(env realtime.Envelope, dst any) bool {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		s.logger.Warn().Err(err).Str("event", env.Type).Msg("Dropping malformed event payload")
		return false
	}
	return true
}

// applyMessageReceived appends the message unless its id is already present.
// Duplicate suppression guards against the sender's own optimistic copy and
// redundant re-delivery after reconnect.
func (s *ChatState) applyMessageReceived(p realtime.MessageReceivedPayload) {
	for _, m := range s.messages[p.ChatID] {
		if m.ID == p.Message.ID {
			return
		}
	}
	s.messages[p.ChatID] = append(s.messages[p.ChatID], p.Message)
}

// applyMessageDeleted tombstones a delete-for-everyone. A delete-for-sender
// only changes the deleter's own view, so other clients ignore it.
func (s *ChatState) applyMessageDeleted(p realtime.DeleteMessagePayload) {
	if !p.DeleteForEveryone {
		return
	}

	msgs := s.messages[p.ChatID]
	for i := range msgs {
		if msgs[i].ID == p.MessageID {
			msgs[i].DeletedForEveryone = true
			msgs[i].Content = ""
			msgs[i].Reactions = nil
			return
		}
	}
}

// applyMessagesRead records the reader on each named message.
func (s *ChatState) applyMessagesRead(p realtime.MessagesReadPayload) {
	msgs := s.messages[p.ChatID]
	wanted := make(map[string]struct{}, len(p.MessageIDs))
	for _, id := range p.MessageIDs {
		wanted[id] = struct{}{}
	}

	for i := range msgs {
		if _, ok := wanted[msgs[i].ID]; !ok {
			continue
		}
		if !lo.Contains(msgs[i].ReadBy, p.UserID) {
			msgs[i].ReadBy = append(msgs[i].ReadBy, p.UserID)
		}
	}
}

// applyReactionAdded mirrors the store's per-user uniqueness: an existing
// reaction from the same user is updated in place, otherwise the reaction is
// appended.
func (s *ChatState) applyReactionAdded(p realtime.AddReactionPayload) {
	msgs := s.messages[p.ChatID]
	for i := range msgs {
		if msgs[i].ID != p.MessageID {
			continue
		}

		for j := range msgs[i].Reactions {
			if msgs[i].Reactions[j].UserID == p.Reaction.UserID {
				msgs[i].Reactions[j] = p.Reaction
				return
			}
		}
		msgs[i].Reactions = append(msgs[i].Reactions, p.Reaction)
		return
	}
}

// applyReactionRemoved filters the reaction out by id.
func (s *ChatState) applyReactionRemoved(p realtime.RemoveReactionPayload) {
	msgs := s.messages[p.ChatID]
	for i := range msgs {
		if msgs[i].ID != p.MessageID {
			continue
		}
		msgs[i].Reactions = lo.Filter(msgs[i].Reactions, func(rx store.Reaction, _ int) bool {
			return rx.ID != p.ReactionID
		})
		return
	}
}
