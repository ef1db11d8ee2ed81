package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"ripplechat/internal/pkg/randx"
)

// Memory is an in-memory Store implementation. It backs unit tests and the
// client adapter's degraded fetch-on-demand mode; semantics mirror Postgres.
type Memory struct {
	mu        sync.Mutex
	messages  map[string]*Message
	reactions map[string]*Reaction
	hidden    map[string][]string // message id -> user ids the message is soft-deleted for
	unread    map[string]int      // chat id + "/" + user id -> counter
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		messages:  make(map[string]*Message),
		reactions: make(map[string]*Reaction),
		hidden:    make(map[string][]string),
		unread:    make(map[string]int),
	}
}

// CreateMessage persists a new message.
func (m *Memory) CreateMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *msg
	m.messages[msg.ID] = &stored
	return nil
}

// GetMessage returns a single message by id.
func (m *Memory) GetMessage(ctx context.Context, messageID string) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[messageID]
	if !ok {
		return Message{}, ErrNotFound
	}
	return *msg, nil
}

// ListMessagesForChat returns the chat's messages visible to the viewer, oldest first.
func (m *Memory) ListMessagesForChat(ctx context.Context, chatID, viewerID string, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Message
	for _, msg := range m.messages {
		if msg.ChatID != chatID {
			continue
		}
		if slices.Contains(m.hidden[msg.ID], viewerID) {
			continue
		}

		out := *msg
		if out.DeletedForEveryone {
			out.Content = ""
		}
		for _, rx := range m.reactions {
			if rx.MessageID == msg.ID {
				out.Reactions = append(out.Reactions, *rx)
			}
		}
		result = append(result, out)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MarkRead records that the user has read the given messages of the chat.
func (m *Memory) MarkRead(ctx context.Context, chatID, userID string, messageIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range messageIDs {
		msg, ok := m.messages[id]
		if !ok || msg.ChatID != chatID {
			continue
		}
		if !slices.Contains(msg.ReadBy, userID) {
			msg.ReadBy = append(msg.ReadBy, userID)
		}
	}
	return nil
}

// SoftDeleteForUser hides the message from one user only.
func (m *Memory) SoftDeleteForUser(ctx context.Context, messageID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.messages[messageID]; !ok {
		return ErrNotFound
	}
	if !slices.Contains(m.hidden[messageID], userID) {
		m.hidden[messageID] = append(m.hidden[messageID], userID)
	}
	return nil
}

// HardDeleteForEveryone clears the message content for all participants.
func (m *Memory) HardDeleteForEveryone(ctx context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[messageID]
	if !ok {
		return ErrNotFound
	}
	msg.DeletedForEveryone = true
	msg.Content = ""
	return nil
}

// CreateOrUpdateReaction applies the toggle/replace rule.
func (m *Memory) CreateOrUpdateReaction(ctx context.Context, messageID, userID, emoji string) (Reaction, ReactionOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.messages[messageID]; !ok {
		return Reaction{}, 0, ErrNotFound
	}

	for id, rx := range m.reactions {
		if rx.MessageID != messageID || rx.UserID != userID {
			continue
		}
		if rx.Emoji == emoji {
			removed := *rx
			delete(m.reactions, id)
			return removed, ReactionRemoved, nil
		}
		rx.Emoji = emoji
		return *rx, ReactionReplaced, nil
	}

	created := Reaction{
		ID:        randx.ReactionID(),
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
	}
	m.reactions[created.ID] = &created
	return created, ReactionAdded, nil
}

// DeleteReaction removes a reaction by id.
func (m *Memory) DeleteReaction(ctx context.Context, reactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reactions[reactionID]; !ok {
		return ErrNotFound
	}
	delete(m.reactions, reactionID)
	return nil
}

// IncrementUnread bumps the unread counter for the user in the chat.
func (m *Memory) IncrementUnread(ctx context.Context, chatID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unread[chatID+"/"+userID]++
	return nil
}

// ResetUnread zeroes the unread counter for the user in the chat.
func (m *Memory) ResetUnread(ctx context.Context, chatID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unread[chatID+"/"+userID] = 0
	return nil
}

// UnreadCount returns the user's current unread counter for the chat.
func (m *Memory) UnreadCount(ctx context.Context, chatID, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.unread[chatID+"/"+userID], nil
}
