package rtclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ripplechat/internal/app/realtime"
	"ripplechat/internal/app/store"
)

func TestBackoffDelay_DoublesAndCaps(t *testing.T) {
	min, max := time.Second, 30*time.Second

	require.Equal(t, time.Second, backoffDelay(0, min, max))
	require.Equal(t, 2*time.Second, backoffDelay(1, min, max))
	require.Equal(t, 8*time.Second, backoffDelay(3, min, max))
	require.Equal(t, 30*time.Second, backoffDelay(5, min, max))
	require.Equal(t, 30*time.Second, backoffDelay(40, min, max), "large attempts stay capped")
	require.Equal(t, time.Second, backoffDelay(-1, min, max))
}

func TestAdapter_JoinChatIsIdempotent(t *testing.T) {
	a := NewAdapter(Config{SocketURL: "ws://unused"}, "alice", NewChatState(), store.NewMemory())

	require.NoError(t, a.JoinChat("chat-1"))
	require.NoError(t, a.JoinChat("chat-1"))
	require.Equal(t, []string{"chat-1"}, a.SubscribedChats())

	require.NoError(t, a.LeaveChat("chat-1"))
	require.NoError(t, a.LeaveChat("chat-1"))
	require.Empty(t, a.SubscribedChats())
}

func TestAdapter_EmitWhileDisconnectedFails(t *testing.T) {
	a := NewAdapter(Config{SocketURL: "ws://unused"}, "alice", NewChatState(), store.NewMemory())

	err := a.StartTyping("chat-1", "Alice")
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestAdapter_SendMessagePersistsBeforeAnnouncing(t *testing.T) {
	st := store.NewMemory()
	state := NewChatState()
	a := NewAdapter(Config{SocketURL: "ws://unused"}, "alice", state, st)

	// The socket is down: the send still persists and stays rendered locally.
	msg, err := a.SendMessage(context.Background(), "chat-1", "bob", "hello")
	require.NoError(t, err)

	stored, err := st.ListMessagesForChat(context.Background(), "chat-1", "alice", 50)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, msg.ID, stored[0].ID)

	local := state.Messages("chat-1")
	require.Len(t, local, 1)
	require.Equal(t, msg.ID, local[0].ID)
	require.False(t, state.IsPending(msg.ID))
}

type failingWriter struct{}

func (failingWriter) CreateMessage(context.Context, *store.Message) error {
	return errors.New("store down")
}

func TestAdapter_SendMessageRollsBackOnPersistFailure(t *testing.T) {
	state := NewChatState()
	a := NewAdapter(Config{SocketURL: "ws://unused"}, "alice", state, failingWriter{})

	_, err := a.SendMessage(context.Background(), "chat-1", "bob", "hello")
	require.Error(t, err)
	require.Empty(t, state.Messages("chat-1"), "failed send must not linger locally")
}

func TestAdapter_RequestStatusFallsBackToHTTP(t *testing.T) {
	seen := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/presence/status", r.URL.Path)
		require.Equal(t, "alice,bob", r.URL.Query().Get("ids"))
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(statusResponse{
			Code: 0,
			Data: []realtime.UserStatus{
				{UserID: "alice", Online: true},
				{UserID: "bob", Online: false, LastSeen: &seen},
			},
		})
	}))
	defer srv.Close()

	state := NewChatState()
	a := NewAdapter(Config{
		SocketURL:   "ws://unused",
		HTTPBaseURL: srv.URL,
		Token:       "tok",
	}, "alice", state, store.NewMemory())

	statuses, err := a.RequestStatus(context.Background(), []string{"alice", "bob"})
	require.NoError(t, err)
	require.True(t, statuses["alice"].Online)
	require.False(t, statuses["bob"].Online)
	require.Equal(t, seen, *statuses["bob"].LastSeen)

	// The fallback result is merged into local state too.
	cached, ok := state.Status("bob")
	require.True(t, ok)
	require.False(t, cached.Online)
}

func TestHTTPPresence_NonOKStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := &HTTPPresence{BaseURL: srv.URL}
	_, err := p.RequestStatus(context.Background(), []string{"alice"})
	require.Error(t, err)
}
