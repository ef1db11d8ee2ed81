/*
Package realtime contains the core logic for presence tracking, chat-room
routing, and realtime event fan-out.

This file defines the Conn struct, one live websocket transport session. It
owns the read/write pumps and the buffered outbound queue; all protocol
decisions are delegated to the Dispatcher, which is the sole mutator of
connection membership state.
*/
package realtime

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ripplechat/internal/app/directory"
	"ripplechat/internal/pkg/logx"
	"ripplechat/internal/pkg/randx"
)

const (
	// timeout duration for writing to the websocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 16384

	// sendQueueSize is the per-connection outbound buffer. A client that
	// cannot drain this many frames is considered dead and dropped.
	sendQueueSize = 256
)

// Conn represents one live websocket transport session.
//
// The user field is the authenticated identity established before the upgrade;
// userID stays empty until the join handshake and is written only by the
// Dispatcher goroutine, which is also the only reader.
type Conn struct {
	// ID uniquely identifies this transport session.
	ID string

	// underlying websocket connection; nil for test connections.
	ws *websocket.Conn

	// user is the identity resolved by the directory at upgrade time.
	user directory.User

	// userID is set when the join handshake completes. Dispatcher-owned.
	userID string

	// send is the buffered channel of frames waiting to go out.
	send chan []byte

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewConn constructs a Conn for an upgraded websocket with a resolved identity.
func NewConn(ws *websocket.Conn, user directory.User) *Conn {
	id := randx.ConnectionID()

	connLogger := logx.Logger().With().
		Str("conn_id", id).
		Str("user_id", user.ID).
		Logger()

	return &Conn{
		ID:     id,
		ws:     ws,
		user:   user,
		send:   make(chan []byte, sendQueueSize),
		logger: connLogger,
	}
}

// ReadPump reads frames from the websocket and hands them to the dispatcher.
// It handles heartbeats (Pong) and triggers disconnect cleanup when the
// connection closes for any reason.
func (c *Conn) ReadPump(d *Dispatcher) {
	defer d.HandleDisconnect(c)

	c.ws.SetReadLimit(maxMessageSize)

	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			break
		}

		d.HandleFrame(c, frame)
	}
}

// WritePump drains the send channel onto the websocket and keeps the
// heartbeat alive with periodic pings.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.ws.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline")
				return
			}

			if !ok {
				if err := c.ws.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug().Err(err).Msg("Error writing close message")
				}
				return
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Error().Err(err).Msg("Error writing frame")
				return
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
				return
			}

			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error().Err(err).Msg("Error writing ping")
				return
			}
		}
	}
}

// deliver queues pre-encoded frame bytes for this connection.
// A full queue means the client is not draining; the frame is dropped since
// realtime delivery is an optimization, not the source of truth.
func (c *Conn) deliver(frame []byte) {
	select {
	case c.send <- frame:
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Connection send queue full, dropping frame")
	}
}

// sendEvent encodes and queues a single event for this connection only.
func (c *Conn) sendEvent(event string, payload any) {
	frame, err := EncodeEvent(event, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Failed to encode event")
		return
	}
	c.deliver(frame)
}

// closeSend closes the outbound queue, letting WritePump send a close frame.
// The Dispatcher calls this exactly once per connection, guarded by registry
// membership, so a plain close is safe.
func (c *Conn) closeSend() {
	close(c.send)
}
