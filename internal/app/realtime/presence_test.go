package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistry_OnlineMatchesOpenConnections(t *testing.T) {
	r := NewRegistry()
	c1 := newTestConn("alice")
	c2 := newTestConn("alice")

	require.False(t, r.IsOnline("alice"))

	cameOnline := r.Join("alice", c1)
	c1.userID = "alice"
	require.True(t, cameOnline)
	require.True(t, r.IsOnline("alice"))
	require.Equal(t, 1, r.OpenConnections("alice"))

	cameOnline = r.Join("alice", c2)
	c2.userID = "alice"
	require.False(t, cameOnline, "second connection is not an offline-to-online transition")
	require.Equal(t, 2, r.OpenConnections("alice"))

	_, wentOffline, _ := r.Disconnect(c1)
	require.False(t, wentOffline, "one connection still open")
	require.True(t, r.IsOnline("alice"))

	_, wentOffline, _ = r.Disconnect(c2)
	require.True(t, wentOffline)
	require.False(t, r.IsOnline("alice"))
}

func TestRegistry_LastSeenDefinedOnlyWhileOffline(t *testing.T) {
	r := NewRegistry()

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(42 * time.Second)
	clock := first
	r.now = func() time.Time { return clock }

	c1 := newTestConn("bob")
	c2 := newTestConn("bob")

	r.Join("bob", c1)
	c1.userID = "bob"
	r.Join("bob", c2)
	c2.userID = "bob"

	// Two tabs: closing one records nothing.
	r.Disconnect(c1)
	status := r.Status([]string{"bob"})[0]
	require.True(t, status.Online)
	require.Nil(t, status.LastSeen)

	// Closing the second stamps its close time, not the first one's.
	clock = second
	_, wentOffline, at := r.Disconnect(c2)
	require.True(t, wentOffline)
	require.Equal(t, second, at)

	status = r.Status([]string{"bob"})[0]
	require.False(t, status.Online)
	require.NotNil(t, status.LastSeen)
	require.Equal(t, second, *status.LastSeen)

	// Reconnecting clears last-seen.
	c3 := newTestConn("bob")
	r.Join("bob", c3)
	c3.userID = "bob"
	status = r.Status([]string{"bob"})[0]
	require.True(t, status.Online)
	require.Nil(t, status.LastSeen)
}

func TestRegistry_StatusUnknownUserReadsOffline(t *testing.T) {
	r := NewRegistry()

	statuses := r.Status([]string{"nobody"})
	require.Len(t, statuses, 1)
	require.Equal(t, "nobody", statuses[0].UserID)
	require.False(t, statuses[0].Online)
	require.Nil(t, statuses[0].LastSeen)
}

func TestRegistry_DisconnectUnknownConnIsNoop(t *testing.T) {
	r := NewRegistry()
	c := newTestConn("carol")

	userID, wentOffline, _ := r.Disconnect(c)
	require.Empty(t, userID)
	require.False(t, wentOffline)
}
