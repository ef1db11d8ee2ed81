/*
This file implements the Adapter, the client's connection manager: it dials
the realtime socket, runs the identity handshake, replays chat subscriptions
after every reconnect, and routes inbound events into ChatState. Sending a
message is optimistic: the message renders locally first, is persisted through
the message writer, and only then announced over the socket.
*/
package rtclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ripplechat/internal/app/realtime"
	"ripplechat/internal/app/store"
	"ripplechat/internal/pkg/logx"
	"ripplechat/internal/pkg/randx"
)

const (
	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultBackoffMin   = time.Second
	defaultBackoffMax   = 30 * time.Second
)

// ErrNotConnected is returned by emits while the socket is down. Persisted
// state is unaffected; the caller may retry after reconnect.
var ErrNotConnected = errors.New("rtclient: socket not connected")

// MessageWriter is the persistence dependency of the send path. The full
// store satisfies it; tests use the in-memory implementation.
type MessageWriter interface {
	CreateMessage(ctx context.Context, msg *store.Message) error
}

// Config holds the adapter's connection settings.
type Config struct {
	// SocketURL is the websocket endpoint, e.g. "ws://localhost:8080/ws".
	SocketURL string

	// HTTPBaseURL is the REST root used by the degraded presence transport.
	HTTPBaseURL string

	// Token is the identity token, passed as a query parameter on dial.
	Token string

	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration

	// BackoffMin and BackoffMax bound the reconnect delay.
	BackoffMin time.Duration
	BackoffMax time.Duration

	// WriteTimeout bounds each outbound socket write.
	WriteTimeout time.Duration
}

func (c *Config) withDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = defaultBackoffMin
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = defaultBackoffMax
	}
}

// Adapter manages the client side of the realtime protocol for one user.
type Adapter struct {
	cfg    Config
	userID string
	state  *ChatState
	writer MessageWriter
	logger zerolog.Logger

	fallback PresenceTransport

	mu        sync.Mutex
	conn      *websocket.Conn
	subs      map[string]struct{}
	connected bool

	// statusCh receives the next user_statuses reply; one query in flight.
	statusCh chan map[string]realtime.UserStatus
}

// NewAdapter builds an adapter for the user. The writer persists outbound
// messages before they are announced on the socket.
func NewAdapter(cfg Config, userID string, state *ChatState, writer MessageWriter) *Adapter {
	cfg.withDefaults()

	return &Adapter{
		cfg:    cfg,
		userID: userID,
		state:  state,
		writer: writer,
		logger: logx.Logger().With().Str("component", "Adapter").Str("user_id", userID).Logger(),
		fallback: &HTTPPresence{
			BaseURL: cfg.HTTPBaseURL,
			Token:   cfg.Token,
		},
		subs:     make(map[string]struct{}),
		statusCh: make(chan map[string]realtime.UserStatus, 1),
	}
}

// Run dials and serves the socket until the context is canceled, reconnecting
// with exponential backoff. Subscriptions are replayed after every reconnect.
func (a *Adapter) Run(ctx context.Context) {
	attempt := 0

	for {
		if err := a.connectAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn().Err(err).Int("attempt", attempt).Msg("Socket connection lost")
		}

		if ctx.Err() != nil {
			return
		}

		delay := backoffDelay(attempt, a.cfg.BackoffMin, a.cfg.BackoffMax)
		attempt++

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// connectAndServe performs one dial, handshake, and read loop.
func (a *Adapter) connectAndServe(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: a.cfg.DialTimeout}

	endpoint := a.cfg.SocketURL
	if a.cfg.Token != "" {
		endpoint = fmt.Sprintf("%s?token=%s", endpoint, url.QueryEscape(a.cfg.Token))
	}

	conn, res, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if res != nil {
			res.Body.Close()
		}
		return fmt.Errorf("dial %s: %w", a.cfg.SocketURL, err)
	}
	if res != nil {
		res.Body.Close()
	}

	a.mu.Lock()
	a.conn = conn
	a.connected = true
	subs := make([]string, 0, len(a.subs))
	for chatID := range a.subs {
		subs = append(subs, chatID)
	}
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.connected = false
		a.conn = nil
		a.mu.Unlock()
		conn.Close()
	}()

	// Identity first, then replay every chat subscription the UI holds open.
	if err := a.emit(realtime.EventJoin, realtime.JoinPayload{UserID: a.userID}); err != nil {
		return err
	}
	for _, chatID := range subs {
		if err := a.emit(realtime.EventJoinChat, realtime.JoinChatPayload{ChatID: chatID, UserID: a.userID}); err != nil {
			return err
		}
	}

	a.logger.Info().Str("endpoint", a.cfg.SocketURL).Msg("Socket connected")

	return a.readLoop(ctx, conn)
}

// readLoop applies inbound events to local state until the socket fails.
func (a *Adapter) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		var env realtime.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			a.logger.Warn().Err(err).Msg("Dropping undecodable frame")
			continue
		}

		if env.Type == realtime.EventUserStatuses {
			a.deliverStatusReply(env)
		}
		a.state.ApplyEvent(env)
	}
}

// deliverStatusReply hands the presence snapshot to a waiting RequestStatus call.
func (a *Adapter) deliverStatusReply(env realtime.Envelope) {
	var payload realtime.UserStatusesPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return
	}

	select {
	case a.statusCh <- payload.Statuses:
	default:
	}
}

// Connected reports whether the socket is currently up.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// JoinChat subscribes to a chat's room events. Joining an already-subscribed
// chat is a no-op.
func (a *Adapter) JoinChat(chatID string) error {
	a.mu.Lock()
	if _, ok := a.subs[chatID]; ok {
		a.mu.Unlock()
		return nil
	}
	a.subs[chatID] = struct{}{}
	connected := a.connected
	a.mu.Unlock()

	if !connected {
		// Recorded for replay on reconnect.
		return nil
	}
	return a.emit(realtime.EventJoinChat, realtime.JoinChatPayload{ChatID: chatID, UserID: a.userID})
}

// LeaveChat unsubscribes from a chat's room events.
func (a *Adapter) LeaveChat(chatID string) error {
	a.mu.Lock()
	if _, ok := a.subs[chatID]; !ok {
		a.mu.Unlock()
		return nil
	}
	delete(a.subs, chatID)
	connected := a.connected
	a.mu.Unlock()

	if !connected {
		return nil
	}
	return a.emit(realtime.EventLeaveChat, realtime.LeaveChatPayload{ChatID: chatID})
}

// SubscribedChats returns the chats currently subscribed, for UI bookkeeping.
func (a *Adapter) SubscribedChats() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, 0, len(a.subs))
	for chatID := range a.subs {
		out = append(out, chatID)
	}
	return out
}

// SendMessage renders the message optimistically, persists it, then announces
// it on the socket. Persistence failure rolls the optimistic copy back; a
// socket failure after persistence does not, since the message is committed
// and other clients reconcile by fetching.
func (a *Adapter) SendMessage(ctx context.Context, chatID, recipientID, content string) (store.Message, error) {
	msg := store.Message{
		ID:          randx.MessageID(),
		ChatID:      chatID,
		SenderID:    a.userID,
		RecipientID: recipientID,
		Content:     content,
		CreatedAt:   time.Now(),
	}

	a.state.ApplyOptimistic(msg)

	if err := a.writer.CreateMessage(ctx, &msg); err != nil {
		a.state.RollbackOptimistic(msg.ID)
		return store.Message{}, fmt.Errorf("persist message: %w", err)
	}
	a.state.ConfirmOptimistic(msg.ID, msg)

	if err := a.emit(realtime.EventNewMessage, realtime.NewMessagePayload{
		ChatID:      chatID,
		Message:     msg,
		RecipientID: recipientID,
	}); err != nil {
		a.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Message persisted but not announced")
	}

	return msg, nil
}

// StartTyping announces a typing indicator for the chat.
func (a *Adapter) StartTyping(chatID, username string) error {
	return a.emit(realtime.EventTypingStart, realtime.TypingPayload{
		ChatID:   chatID,
		UserID:   a.userID,
		Username: username,
	})
}

// StopTyping clears the typing indicator for the chat.
func (a *Adapter) StopTyping(chatID, username string) error {
	return a.emit(realtime.EventTypingStop, realtime.TypingPayload{
		ChatID:   chatID,
		UserID:   a.userID,
		Username: username,
	})
}

// AnnounceMessagesRead broadcasts read receipts for already-persisted reads.
func (a *Adapter) AnnounceMessagesRead(chatID string, messageIDs []string) error {
	return a.emit(realtime.EventMessagesRead, realtime.MessagesReadPayload{
		ChatID:     chatID,
		UserID:     a.userID,
		MessageIDs: messageIDs,
	})
}

// AnnounceReaction broadcasts an already-persisted reaction add or replace.
func (a *Adapter) AnnounceReaction(chatID, messageID string, reaction store.Reaction) error {
	return a.emit(realtime.EventAddReaction, realtime.AddReactionPayload{
		ChatID:    chatID,
		MessageID: messageID,
		Reaction:  reaction,
	})
}

// AnnounceReactionRemoved broadcasts an already-persisted reaction removal.
func (a *Adapter) AnnounceReactionRemoved(chatID, messageID, reactionID string) error {
	return a.emit(realtime.EventRemoveReaction, realtime.RemoveReactionPayload{
		ChatID:     chatID,
		MessageID:  messageID,
		ReactionID: reactionID,
		UserID:     a.userID,
	})
}

// AnnounceMessageDeleted broadcasts an already-persisted deletion.
func (a *Adapter) AnnounceMessageDeleted(chatID, messageID string, forEveryone bool) error {
	return a.emit(realtime.EventDeleteMessage, realtime.DeleteMessagePayload{
		ChatID:            chatID,
		MessageID:         messageID,
		DeleteForEveryone: forEveryone,
	})
}

// RequestStatus queries presence over the socket, or over HTTP while the
// socket is down. Results are also merged into ChatState.
func (a *Adapter) RequestStatus(ctx context.Context, userIDs []string) (map[string]realtime.UserStatus, error) {
	if !a.Connected() {
		statuses, err := a.fallback.RequestStatus(ctx, userIDs)
		if err != nil {
			return nil, err
		}
		a.mergeStatuses(statuses)
		return statuses, nil
	}

	// Drain a stale reply left by a timed-out earlier query.
	select {
	case <-a.statusCh:
	default:
	}

	if err := a.emit(realtime.EventRequestUserStatus, realtime.RequestUserStatusPayload{UserIDs: userIDs}); err != nil {
		return nil, err
	}

	select {
	case statuses := <-a.statusCh:
		return statuses, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Adapter) mergeStatuses(statuses map[string]realtime.UserStatus) {
	for _, status := range statuses {
		payload, err := json.Marshal(realtime.UserStatusChangedPayload{
			UserID:   status.UserID,
			IsOnline: status.Online,
			LastSeen: status.LastSeen,
		})
		if err != nil {
			continue
		}
		a.state.ApplyEvent(realtime.Envelope{Type: realtime.EventUserStatusChanged, Payload: payload})
	}
}

// emit writes one event frame to the socket.
func (a *Adapter) emit(event string, payload any) error {
	frame, err := realtime.EncodeEvent(event, payload)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.connected || a.conn == nil {
		return ErrNotConnected
	}

	if err := a.conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout)); err != nil {
		return err
	}
	return a.conn.WriteMessage(websocket.TextMessage, frame)
}
