/*
Package realtime contains the core logic for presence tracking, chat-room
routing, and realtime event fan-out.

This file defines the Dispatcher struct, the single-threaded event loop at the
center of the realtime core. Every inbound client event, transport disconnect,
and presence query flows through one command channel and is handled to
completion before the next, so the Registry and Router need no locking: the
correctness argument is "no two handlers interleave", not fine-grained
synchronization. Within a room, delivery order equals the dispatcher's
processing order.
*/
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"ripplechat/internal/pkg/logx"
)

// commandQueueSize bounds the dispatcher inbox. Inbound client events beyond
// this are dropped (fire-and-forget semantics); disconnects never are.
const commandQueueSize = 1024

type cmdKind int

const (
	cmdFrame cmdKind = iota
	cmdDisconnect
	cmdStatusQuery
)

// command is one unit of work for the dispatcher loop.
type command struct {
	kind cmdKind
	conn *Conn

	// raw is the inbound wire frame for cmdFrame.
	raw []byte

	// userIDs and reply serve cmdStatusQuery.
	userIDs []string
	reply   chan []UserStatus
}

// Dispatcher routes typed client events to room and personal channels,
// mutating the presence Registry and room Router as side effects.
type Dispatcher struct {
	registry *Registry
	router   *Router

	commands chan command
	done     chan struct{}
	wg       sync.WaitGroup

	logger zerolog.Logger
}

// NewDispatcher constructs a Dispatcher and starts its event loop.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		registry: NewRegistry(),
		router:   NewRouter(),
		commands: make(chan command, commandQueueSize),
		done:     make(chan struct{}),
		logger:   logx.Logger().With().Str("component", "Dispatcher").Logger(),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// run is the single-threaded event loop. All shared state mutation happens here.
func (d *Dispatcher) run() {
	defer d.wg.Done()

	d.logger.Info().Msg("Dispatcher loop started.")

	for {
		select {
		case cmd := <-d.commands:
			switch cmd.kind {
			case cmdFrame:
				d.handleFrame(cmd.conn, cmd.raw)
			case cmdDisconnect:
				d.handleDisconnect(cmd.conn)
			case cmdStatusQuery:
				cmd.reply <- d.registry.Status(cmd.userIDs)
			}

		case <-d.done:
			d.logger.Info().Msg("Dispatcher loop stopped.")
			return
		}
	}
}

// HandleFrame queues an inbound wire frame for processing. Frames arriving
// while the inbox is full are dropped with a warning; clients do not wait for
// acknowledgement of fire-and-forget events.
func (d *Dispatcher) HandleFrame(c *Conn, raw []byte) {
	select {
	case d.commands <- command{kind: cmdFrame, conn: c, raw: raw}:
	case <-d.done:
	default:
		d.logger.Warn().Str("conn_id", c.ID).Msg("Dispatcher inbox full, dropping inbound frame")
	}
}

// HandleDisconnect queues transport-level disconnect cleanup for the
// connection. Unlike frames, disconnects block rather than drop: losing one
// would leak presence and room membership.
func (d *Dispatcher) HandleDisconnect(c *Conn) {
	select {
	case d.commands <- command{kind: cmdDisconnect, conn: c}:
	case <-d.done:
	}
}

// Status returns a point-in-time presence snapshot for the requested user ids.
// This is the read side used by the HTTP polling fallback; it goes through the
// event loop so it observes a consistent state.
func (d *Dispatcher) Status(ctx context.Context, userIDs []string) ([]UserStatus, error) {
	reply := make(chan []UserStatus, 1)

	select {
	case d.commands <- command{kind: cmdStatusQuery, userIDs: userIDs, reply: reply}:
	case <-d.done:
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case statuses := <-reply:
		return statuses, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops the event loop and waits for it to exit. In-memory presence
// and room state is discarded; clients reconcile by reconnecting.
func (d *Dispatcher) Shutdown() {
	close(d.done)
	d.wg.Wait()
	d.logger.Info().Msg("Dispatcher shutdown complete.")
}

// handleFrame decodes the envelope and routes to the per-event handler.
// Malformed frames are dropped with a warning, never echoed back.
func (d *Dispatcher) handleFrame(c *Conn, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON frame")
		return
	}

	switch env.Type {
	case EventJoin:
		d.handleJoin(c, env.Payload)
	case EventJoinChat:
		d.handleJoinChat(c, env.Payload)
	case EventLeaveChat:
		d.handleLeaveChat(c, env.Payload)
	case EventNewMessage:
		d.handleNewMessage(c, env.Payload)
	case EventDeleteMessage:
		d.handleDeleteMessage(c, env.Payload)
	case EventTypingStart, EventTypingStop:
		d.handleTyping(c, env.Type, env.Payload)
	case EventMessagesRead:
		d.handleMessagesRead(c, env.Payload)
	case EventAddReaction:
		d.handleAddReaction(c, env.Payload)
	case EventRemoveReaction:
		d.handleRemoveReaction(c, env.Payload)
	case EventRequestUserStatus:
		d.handleRequestUserStatus(c, env.Payload)
	default:
		c.logger.Warn().Str("event", env.Type).Msg("Client sent unsupported event type")
	}
}

// handleJoin completes the connection's identity handshake: the connection is
// registered under its user in the presence registry and attached to the
// user's personal channel. A first connection transitions the user online,
// broadcast to all parties since presence is global, not room-scoped.
func (d *Dispatcher) handleJoin(c *Conn, raw json.RawMessage) {
	var payload JoinPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid join payload")
		return
	}

	if payload.UserID == "" || payload.UserID != c.user.ID {
		// Identities are normalized at the HTTP boundary; a mismatch here
		// means a stale or confused client. Drop rather than trust it.
		c.logger.Warn().
			Str("claimed_user_id", payload.UserID).
			Msg("Join user id does not match authenticated identity")
		return
	}

	if c.userID != "" {
		c.logger.Warn().Msg("Duplicate join on connection, ignoring")
		return
	}

	c.userID = payload.UserID
	cameOnline := d.registry.Join(c.userID, c)
	d.router.RegisterPersonal(c.userID, c)

	c.logger.Info().
		Int("open_connections", d.registry.OpenConnections(c.userID)).
		Msg("Connection joined")

	if cameOnline {
		d.broadcastPresence(UserStatusChangedPayload{
			UserID:   c.userID,
			IsOnline: true,
		})
	}
}

// handleJoinChat subscribes the connection to a chat room. Silent on success.
func (d *Dispatcher) handleJoinChat(c *Conn, raw json.RawMessage) {
	var payload JoinChatPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid join_chat payload")
		return
	}

	if payload.ChatID == "" || c.userID == "" {
		return
	}

	d.router.JoinRoom(payload.ChatID, c, c.userID)
}

// handleLeaveChat unsubscribes the connection from a chat room.
func (d *Dispatcher) handleLeaveChat(c *Conn, raw json.RawMessage) {
	var payload LeaveChatPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid leave_chat payload")
		return
	}

	if payload.ChatID == "" {
		return
	}

	d.router.LeaveRoom(payload.ChatID, c)
}

// handleNewMessage fans out an already-persisted message: to the room
// (excluding the sender, which rendered it optimistically) and to the named
// recipient's personal channel together with an unread-count nudge, so a
// sidebar badge updates even when the recipient does not have the chat open.
func (d *Dispatcher) handleNewMessage(c *Conn, raw json.RawMessage) {
	var payload NewMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid new_message payload")
		return
	}

	if payload.ChatID == "" || payload.Message.ID == "" {
		c.logger.Warn().Msg("new_message missing chat or message id")
		return
	}

	received := MessageReceivedPayload{
		ChatID:  payload.ChatID,
		Message: payload.Message,
	}

	d.router.BroadcastToRoom(payload.ChatID, EventMessageReceived, received, c)

	if payload.RecipientID != "" {
		d.router.DeliverToUser(payload.RecipientID, EventMessageReceived, received)
		d.router.DeliverToUser(payload.RecipientID, EventUnreadCountUpdated, UnreadCountUpdatedPayload{
			ChatID: payload.ChatID,
		})
	}
}

// handleDeleteMessage fans out a message deletion to the room.
func (d *Dispatcher) handleDeleteMessage(c *Conn, raw json.RawMessage) {
	var payload DeleteMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid delete_message payload")
		return
	}

	if payload.ChatID == "" || payload.MessageID == "" {
		return
	}

	d.router.BroadcastToRoom(payload.ChatID, EventMessageDeleted, payload, c)
}

// handleTyping fans a typing indicator out to the room, excluding the typist.
// Typing state lives only on clients; the server holds nothing.
func (d *Dispatcher) handleTyping(c *Conn, event string, raw json.RawMessage) {
	var payload TypingPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn().Err(err).Str("event", event).Msg("Invalid typing payload")
		return
	}

	if payload.ChatID == "" || payload.UserID == "" {
		return
	}

	outbound := EventUserTyping
	if event == EventTypingStop {
		outbound = EventUserStoppedTyping
	}

	d.router.BroadcastToRoom(payload.ChatID, outbound, payload, c)
}

// handleMessagesRead fans read receipts out to the whole room and nudges the
// reader's own personal channel so their other tabs clear the unread badge.
func (d *Dispatcher) handleMessagesRead(c *Conn, raw json.RawMessage) {
	var payload MessagesReadPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid messages_read payload")
		return
	}

	if payload.ChatID == "" || payload.UserID == "" {
		return
	}

	d.router.BroadcastToRoom(payload.ChatID, EventMessagesMarkedRead, payload, nil)
	d.router.DeliverToUser(payload.UserID, EventUnreadCountUpdated, UnreadCountUpdatedPayload{
		ChatID: payload.ChatID,
	})
}

// handleAddReaction fans out an already-persisted reaction add or replace.
func (d *Dispatcher) handleAddReaction(c *Conn, raw json.RawMessage) {
	var payload AddReactionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid add_reaction payload")
		return
	}

	if payload.ChatID == "" || payload.MessageID == "" {
		return
	}

	d.router.BroadcastToRoom(payload.ChatID, EventReactionAdded, payload, c)
}

// handleRemoveReaction fans out an already-persisted reaction removal.
func (d *Dispatcher) handleRemoveReaction(c *Conn, raw json.RawMessage) {
	var payload RemoveReactionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid remove_reaction payload")
		return
	}

	if payload.ChatID == "" || payload.MessageID == "" {
		return
	}

	d.router.BroadcastToRoom(payload.ChatID, EventReactionRemoved, payload, c)
}

// handleRequestUserStatus replies directly, and only, to the requester with a
// point-in-time snapshot. Callers re-query or listen for change broadcasts to
// stay current.
func (d *Dispatcher) handleRequestUserStatus(c *Conn, raw json.RawMessage) {
	var payload RequestUserStatusPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid request_user_status payload")
		return
	}

	statuses := make(map[string]UserStatus, len(payload.UserIDs))
	for _, status := range d.registry.Status(payload.UserIDs) {
		statuses[status.UserID] = status
	}

	c.sendEvent(EventUserStatuses, UserStatusesPayload{Statuses: statuses})
}

// handleDisconnect tears down everything that indexed the connection: room
// memberships, the personal channel, and the presence registry. If this was
// the user's last connection, the offline transition is broadcast globally
// with the recorded last-seen.
func (d *Dispatcher) handleDisconnect(c *Conn) {
	d.router.DropConn(c)

	userID, wentOffline, at := d.registry.Disconnect(c)

	c.closeSend()

	if userID == "" {
		// Connection never completed the join handshake.
		return
	}

	c.logger.Info().
		Int("open_connections", d.registry.OpenConnections(userID)).
		Msg("Connection disconnected")

	if wentOffline {
		lastSeen := at
		d.broadcastPresence(UserStatusChangedPayload{
			UserID:   userID,
			IsOnline: false,
			LastSeen: &lastSeen,
		})
	}
}

// broadcastPresence sends a presence transition to every joined connection.
// Presence is global: all parties see online/offline changes, not just room members.
func (d *Dispatcher) broadcastPresence(payload UserStatusChangedPayload) {
	frame, err := EncodeEvent(EventUserStatusChanged, payload)
	if err != nil {
		d.logger.Error().Err(err).Msg("Failed to encode presence broadcast")
		return
	}

	d.registry.EachConn(func(c *Conn) {
		c.deliver(frame)
	})
}
