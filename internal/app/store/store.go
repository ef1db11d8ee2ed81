/*
Package store provides persistent storage for chat messages, reactions, and
per-user unread counters.

The realtime layer treats the store as an already-committed source of truth:
message persistence happens here before any realtime event is emitted, so the
dispatcher never carries transactional responsibility. Two implementations
exist: Postgres (production) and Memory (tests and degraded client fetches).
*/
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the referenced message or reaction does not exist.
var ErrNotFound = errors.New("store: not found")

// Message is a chat message row.
type Message struct {
	ID          string    `json:"id"`
	ChatID      string    `json:"chatId"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`

	// DeletedForEveryone marks a hard delete; content is cleared but the row
	// survives so clients holding the id can reconcile.
	DeletedForEveryone bool `json:"deletedForEveryone"`

	// ReadBy lists the user ids that have marked this message read.
	ReadBy []string `json:"readBy,omitempty"`

	// Reactions holds the message's reactions, at most one per user.
	Reactions []Reaction `json:"reactions,omitempty"`
}

// Reaction is an emoji reaction, unique per (message, user).
type Reaction struct {
	ID        string `json:"id"`
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	Emoji     string `json:"emoji"`
}

// ReactionOutcome describes what CreateOrUpdateReaction did with an incoming reaction.
type ReactionOutcome int

const (
	// ReactionAdded means no prior reaction existed for the user; a new row was inserted.
	ReactionAdded ReactionOutcome = iota

	// ReactionReplaced means the user's existing reaction was updated to a different emoji.
	ReactionReplaced

	// ReactionRemoved means the same emoji was sent again and the existing reaction was toggled off.
	ReactionRemoved
)

// Store is the message-store contract consumed by the HTTP handlers and, in
// degraded (non-realtime) mode, by the client adapter's fetch-on-demand path.
type Store interface {
	// CreateMessage persists a new message. The caller supplies the id.
	CreateMessage(ctx context.Context, msg *Message) error

	// GetMessage returns a single message by id, without reactions attached.
	// Ownership checks before deletion go through this.
	GetMessage(ctx context.Context, messageID string) (Message, error)

	// ListMessagesForChat returns up to limit messages for the chat, oldest
	// first, excluding messages soft-deleted for the viewer. Hard-deleted
	// messages are returned with cleared content so clients can tombstone them.
	ListMessagesForChat(ctx context.Context, chatID, viewerID string, limit int) ([]Message, error)

	// MarkRead records that the user has read the given messages of the chat.
	MarkRead(ctx context.Context, chatID, userID string, messageIDs []string) error

	// SoftDeleteForUser hides the message from one user only.
	SoftDeleteForUser(ctx context.Context, messageID, userID string) error

	// HardDeleteForEveryone clears the message content for all participants.
	HardDeleteForEveryone(ctx context.Context, messageID string) error

	// CreateOrUpdateReaction applies the toggle/replace rule: a repeat of the
	// same (user, emoji) removes the existing reaction; a different emoji from
	// the same user replaces it; otherwise a new reaction is inserted. The
	// returned Reaction is the affected row (the removed one for ReactionRemoved).
	CreateOrUpdateReaction(ctx context.Context, messageID, userID, emoji string) (Reaction, ReactionOutcome, error)

	// DeleteReaction removes a reaction by id.
	DeleteReaction(ctx context.Context, reactionID string) error

	// IncrementUnread bumps the unread counter for the user in the chat.
	IncrementUnread(ctx context.Context, chatID, userID string) error

	// ResetUnread zeroes the unread counter for the user in the chat.
	ResetUnread(ctx context.Context, chatID, userID string) error

	// UnreadCount returns the user's current unread counter for the chat.
	UnreadCount(ctx context.Context, chatID, userID string) (int, error)
}
