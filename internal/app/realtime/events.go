/*
Package realtime contains the core logic for presence tracking, chat-room
routing, and realtime event fan-out.

This file defines the wire vocabulary: the envelope shared by both directions,
the inbound client event names with their payloads, and the outbound server
event names with theirs. Payload shapes are part of the protocol contract and
are mirrored by the client adapter in internal/app/rtclient.
*/
package realtime

import (
	"encoding/json"
	"time"

	"ripplechat/internal/app/store"
)

// Inbound client event names.
const (
	EventJoin              = "join"
	EventJoinChat          = "join_chat"
	EventLeaveChat         = "leave_chat"
	EventNewMessage        = "new_message"
	EventDeleteMessage     = "delete_message"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventMessagesRead      = "messages_read"
	EventAddReaction       = "add_reaction"
	EventRemoveReaction    = "remove_reaction"
	EventRequestUserStatus = "request_user_status"
)

// Outbound server event names.
const (
	EventUserStatusChanged  = "user_status_changed"
	EventUserStatuses       = "user_statuses"
	EventMessageReceived    = "message_received"
	EventMessageDeleted     = "message_deleted"
	EventUserTyping         = "user_typing"
	EventUserStoppedTyping  = "user_stopped_typing"
	EventMessagesMarkedRead = "messages_marked_read"
	EventUnreadCountUpdated = "unread_count_updated"
	EventReactionAdded      = "reaction_added"
	EventReactionRemoved    = "reaction_removed"
)

// Envelope is the frame exchanged over the websocket in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeEvent marshals an event name and payload into a wire-ready frame.
// Fan-out paths encode once and hand the same bytes to every connection.
func EncodeEvent(event string, payload any) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{
		Type:    event,
		Payload: payloadBytes,
	})
}

// JoinPayload identifies the connection's user. The id must match the
// authenticated identity of the connection; mismatches are dropped.
type JoinPayload struct {
	UserID string `json:"userId"`
}

// JoinChatPayload subscribes the connection to a chat room.
type JoinChatPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// LeaveChatPayload unsubscribes the connection from a chat room. Older clients
// send the chat id as a bare JSON string instead of an object; both are accepted.
type LeaveChatPayload struct {
	ChatID string `json:"chatId"`
}

// UnmarshalJSON accepts either {"chatId": "..."} or a bare "..." string.
func (p *LeaveChatPayload) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		p.ChatID = bare
		return nil
	}

	type alias LeaveChatPayload
	var obj alias
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	p.ChatID = obj.ChatID
	return nil
}

// NewMessagePayload announces an already-persisted message. The sender has
// stored the message through the data-access layer before emitting this event;
// the dispatcher only fans out the committed fact.
type NewMessagePayload struct {
	ChatID      string        `json:"chatId"`
	Message     store.Message `json:"message"`
	RecipientID string        `json:"recipientId"`
}

// DeleteMessagePayload announces a message deletion.
type DeleteMessagePayload struct {
	ChatID            string `json:"chatId"`
	MessageID         string `json:"messageId"`
	DeleteForEveryone bool   `json:"deleteForEveryone"`
}

// TypingPayload carries a typing start/stop indicator. Typing state is keyed
// by user id throughout; the username rides along purely for display.
type TypingPayload struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// MessagesReadPayload announces read receipts for a batch of messages.
type MessagesReadPayload struct {
	ChatID     string   `json:"chatId"`
	UserID     string   `json:"userId"`
	MessageIDs []string `json:"messageIds"`
}

// AddReactionPayload announces an already-persisted reaction add or replace.
type AddReactionPayload struct {
	ChatID    string         `json:"chatId"`
	MessageID string         `json:"messageId"`
	Reaction  store.Reaction `json:"reaction"`
}

// RemoveReactionPayload announces an already-persisted reaction removal.
type RemoveReactionPayload struct {
	ChatID     string `json:"chatId"`
	MessageID  string `json:"messageId"`
	ReactionID string `json:"reactionId"`
	UserID     string `json:"userId"`
}

// RequestUserStatusPayload asks for a point-in-time presence snapshot.
type RequestUserStatusPayload struct {
	UserIDs []string `json:"userIds"`
}

// UserStatus is the presence snapshot for one user.
// LastSeen is non-nil exactly when the user is offline.
type UserStatus struct {
	UserID   string     `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen"`
}

// UserStatusChangedPayload is broadcast globally on online/offline transitions.
type UserStatusChangedPayload struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen"`
}

// UserStatusesPayload is the direct reply to request_user_status.
type UserStatusesPayload struct {
	Statuses map[string]UserStatus `json:"statuses"`
}

// MessageReceivedPayload delivers a new message to room members and to the
// recipient's personal channel.
type MessageReceivedPayload struct {
	ChatID  string        `json:"chatId"`
	Message store.Message `json:"message"`
}

// UnreadCountUpdatedPayload nudges a client to refresh the unread badge for a chat.
type UnreadCountUpdatedPayload struct {
	ChatID string `json:"chatId"`
}
