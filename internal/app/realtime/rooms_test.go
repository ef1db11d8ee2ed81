package realtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRouter_BroadcastExcludesSender(t *testing.T) {
	rt := NewRouter()

	sender := newTestConn("alice")
	sender.userID = "alice"
	member1 := newTestConn("bob")
	member1.userID = "bob"
	member2 := newTestConn("carol")
	member2.userID = "carol"

	rt.JoinRoom("chat-1", sender, "alice")
	rt.JoinRoom("chat-1", member1, "bob")
	rt.JoinRoom("chat-1", member2, "carol")

	rt.BroadcastToRoom("chat-1", EventUserTyping, TypingPayload{ChatID: "chat-1", UserID: "alice"}, sender)

	require.Empty(t, eventNames(t, sender), "sender must never receive its own broadcast")
	require.Equal(t, []string{EventUserTyping}, eventNames(t, member1))
	require.Equal(t, []string{EventUserTyping}, eventNames(t, member2))
}

func TestRouter_JoinRoomIsIdempotent(t *testing.T) {
	rt := NewRouter()

	c := newTestConn("alice")
	c.userID = "alice"

	rt.JoinRoom("chat-1", c, "alice")
	rt.JoinRoom("chat-1", c, "alice")

	require.Len(t, rt.RoomMembers("chat-1"), 1)
	require.Equal(t, []string{"chat-1"}, rt.ViewingChats("alice"))

	// A single leave fully removes the membership recorded by double join.
	rt.LeaveRoom("chat-1", c)
	require.Empty(t, rt.RoomMembers("chat-1"))
	require.Empty(t, rt.ViewingChats("alice"))
}

func TestRouter_LeaveRoomOnlyAffectsThatConnection(t *testing.T) {
	rt := NewRouter()

	tab1 := newTestConn("alice")
	tab1.userID = "alice"
	tab2 := newTestConn("alice")
	tab2.userID = "alice"

	rt.JoinRoom("chat-1", tab1, "alice")
	rt.JoinRoom("chat-1", tab2, "alice")
	require.Len(t, rt.RoomMembers("chat-1"), 2)

	rt.LeaveRoom("chat-1", tab1)
	require.Len(t, rt.RoomMembers("chat-1"), 1)
	// The user still views the chat through the second tab.
	require.Equal(t, []string{"chat-1"}, rt.ViewingChats("alice"))

	rt.BroadcastToRoom("chat-1", EventUserTyping, TypingPayload{ChatID: "chat-1", UserID: "bob"}, nil)
	require.Empty(t, eventNames(t, tab1))
	require.Equal(t, []string{EventUserTyping}, eventNames(t, tab2))
}

func TestRouter_DeliverToUserReachesAllTabsRegardlessOfRooms(t *testing.T) {
	rt := NewRouter()

	tab1 := newTestConn("bob")
	tab1.userID = "bob"
	tab2 := newTestConn("bob")
	tab2.userID = "bob"

	rt.RegisterPersonal("bob", tab1)
	rt.RegisterPersonal("bob", tab2)
	// Only one tab has a room open; personal delivery ignores that.
	rt.JoinRoom("chat-9", tab1, "bob")

	rt.DeliverToUser("bob", EventUnreadCountUpdated, UnreadCountUpdatedPayload{ChatID: "chat-1"})

	require.Equal(t, []string{EventUnreadCountUpdated}, eventNames(t, tab1))
	require.Equal(t, []string{EventUnreadCountUpdated}, eventNames(t, tab2))
}

func TestRouter_BroadcastToEmptyRoomIsNoop(t *testing.T) {
	rt := NewRouter()

	// No members, no error: stale clients may reference unknown chats.
	rt.BroadcastToRoom("ghost-chat", EventUserTyping, TypingPayload{ChatID: "ghost-chat"}, nil)

	rt.DeliverToUser("nobody", EventUnreadCountUpdated, UnreadCountUpdatedPayload{ChatID: "x"})
}

func TestRouter_DropConnRemovesEveryIndex(t *testing.T) {
	rt := NewRouter()

	c := newTestConn("alice")
	c.userID = "alice"
	other := newTestConn("bob")
	other.userID = "bob"

	rt.RegisterPersonal("alice", c)
	rt.RegisterPersonal("bob", other)
	rt.JoinRoom("chat-1", c, "alice")
	rt.JoinRoom("chat-2", c, "alice")
	rt.JoinRoom("chat-1", other, "bob")

	rt.DropConn(c)

	require.Equal(t, []string{other.ID}, rt.RoomMembers("chat-1"))
	require.Empty(t, rt.RoomMembers("chat-2"))
	require.Empty(t, rt.ViewingChats("alice"))

	rt.DeliverToUser("alice", EventUnreadCountUpdated, UnreadCountUpdatedPayload{ChatID: "chat-1"})
	require.Empty(t, eventNames(t, c))
}
