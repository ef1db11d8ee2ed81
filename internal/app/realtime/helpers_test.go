package realtime

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"ripplechat/internal/app/directory"
	"ripplechat/internal/pkg/randx"
)

// newTestConn builds a connection without a websocket; delivered frames pile
// up in the send channel where tests can inspect them.
func newTestConn(userID string) *Conn {
	return &Conn{
		ID:     randx.ConnectionID(),
		user:   directory.User{ID: userID, Username: "user-" + userID},
		send:   make(chan []byte, 64),
		logger: zerolog.Nop(),
	}
}

// encodeFrame builds an inbound wire frame for the given event.
func encodeFrame(t *testing.T, event string, payload any) []byte {
	t.Helper()

	frame, err := EncodeEvent(event, payload)
	require.NoError(t, err)
	return frame
}

// join runs the identity handshake for the connection.
func join(t *testing.T, d *Dispatcher, c *Conn) {
	t.Helper()

	d.handleFrame(c, encodeFrame(t, EventJoin, JoinPayload{UserID: c.user.ID}))
	require.Equal(t, c.user.ID, c.userID)
}

// receivedEvents drains and decodes every frame queued on the connection.
func receivedEvents(t *testing.T, c *Conn) []Envelope {
	t.Helper()

	var events []Envelope
	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return events
			}
			var env Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			events = append(events, env)
		default:
			return events
		}
	}
}

// eventNames maps drained envelopes to their type names.
func eventNames(t *testing.T, c *Conn) []string {
	t.Helper()

	events := receivedEvents(t, c)
	names := make([]string, 0, len(events))
	for _, env := range events {
		names = append(names, env.Type)
	}
	return names
}

// decodePayload unmarshals an envelope payload into dst.
func decodePayload(t *testing.T, env Envelope, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Payload, dst))
}
