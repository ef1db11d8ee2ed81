/*
Package realtime contains the core logic for presence tracking, chat-room
routing, and realtime event fan-out.

This file defines the Router struct, which manages per-chat subscription
membership and per-user personal channels. Rooms are sets of connections
currently viewing a chat; personal channels reach every connection a user has
open, independent of room membership, and carry cross-cutting notifications
like unread-count bumps.

Like the Registry, the Router is owned by the Dispatcher goroutine and is not
self-locking.
*/
package realtime

import (
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"ripplechat/internal/pkg/logx"
)

// Router manages chat-room membership and per-user personal channels.
type Router struct {
	// rooms maps chat id to the set of member connections, by connection id.
	rooms map[string]map[string]*Conn

	// personal maps user id to every open connection of that user.
	personal map[string]map[string]*Conn

	// viewing maps user id to the chat ids that user is currently viewing,
	// with a per-chat count of viewing connections (two tabs on the same chat
	// count twice).
	viewing map[string]map[string]int

	// connRooms maps connection id to the chats that connection has joined,
	// so disconnect cleanup does not scan every room.
	connRooms map[string]map[string]struct{}

	logger zerolog.Logger
}

// NewRouter returns an empty room router.
func NewRouter() *Router {
	return &Router{
		rooms:     make(map[string]map[string]*Conn),
		personal:  make(map[string]map[string]*Conn),
		viewing:   make(map[string]map[string]int),
		connRooms: make(map[string]map[string]struct{}),
		logger:    logx.Logger().With().Str("component", "Router").Logger(),
	}
}

// JoinRoom adds the connection to the chat's member set and records that the
// user is viewing the chat. Joining a room twice is a no-op, not an error.
func (rt *Router) JoinRoom(chatID string, c *Conn, userID string) {
	room, ok := rt.rooms[chatID]
	if !ok {
		room = make(map[string]*Conn)
		rt.rooms[chatID] = room
	}

	if _, already := room[c.ID]; already {
		return
	}
	room[c.ID] = c

	joined, ok := rt.connRooms[c.ID]
	if !ok {
		joined = make(map[string]struct{})
		rt.connRooms[c.ID] = joined
	}
	joined[chatID] = struct{}{}

	chats, ok := rt.viewing[userID]
	if !ok {
		chats = make(map[string]int)
		rt.viewing[userID] = chats
	}
	chats[chatID]++
}

// LeaveRoom removes the connection from the chat's member set.
func (rt *Router) LeaveRoom(chatID string, c *Conn) {
	room, ok := rt.rooms[chatID]
	if !ok {
		return
	}
	if _, member := room[c.ID]; !member {
		return
	}

	delete(room, c.ID)
	if len(room) == 0 {
		delete(rt.rooms, chatID)
	}

	if joined, ok := rt.connRooms[c.ID]; ok {
		delete(joined, chatID)
		if len(joined) == 0 {
			delete(rt.connRooms, c.ID)
		}
	}

	rt.dropViewing(c.userID, chatID)
}

// dropViewing decrements the user's viewing count for the chat.
func (rt *Router) dropViewing(userID, chatID string) {
	chats, ok := rt.viewing[userID]
	if !ok {
		return
	}
	chats[chatID]--
	if chats[chatID] <= 0 {
		delete(chats, chatID)
	}
	if len(chats) == 0 {
		delete(rt.viewing, userID)
	}
}

// RegisterPersonal attaches the connection to the user's personal channel.
// Happens once, at the join handshake; personal membership is permanent for
// the life of the connection.
func (rt *Router) RegisterPersonal(userID string, c *Conn) {
	chans, ok := rt.personal[userID]
	if !ok {
		chans = make(map[string]*Conn)
		rt.personal[userID] = chans
	}
	chans[c.ID] = c
}

// DropConn removes the connection from every room and its personal channel.
// Called during disconnect cleanup.
func (rt *Router) DropConn(c *Conn) {
	for chatID := range rt.connRooms[c.ID] {
		if room, ok := rt.rooms[chatID]; ok {
			delete(room, c.ID)
			if len(room) == 0 {
				delete(rt.rooms, chatID)
			}
		}
		rt.dropViewing(c.userID, chatID)
	}
	delete(rt.connRooms, c.ID)

	if chans, ok := rt.personal[c.userID]; ok {
		delete(chans, c.ID)
		if len(chans) == 0 {
			delete(rt.personal, c.userID)
		}
	}
}

// BroadcastToRoom delivers the event to every connection currently joined to
// the chat, except the optionally excluded sender (which already applied the
// action optimistically). An empty room is a no-op, not an error.
func (rt *Router) BroadcastToRoom(chatID string, event string, payload any, exclude *Conn) {
	room, ok := rt.rooms[chatID]
	if !ok || len(room) == 0 {
		return
	}

	frame, err := EncodeEvent(event, payload)
	if err != nil {
		rt.logger.Error().Err(err).Str("event", event).Msg("Failed to encode room broadcast")
		return
	}

	for _, c := range room {
		if exclude != nil && c.ID == exclude.ID {
			continue
		}
		c.deliver(frame)
	}
}

// DeliverToUser delivers the event on the user's personal channel, reaching
// every open tab or device regardless of room membership. Used for
// notifications that must arrive even when the relevant chat is not open.
func (rt *Router) DeliverToUser(userID string, event string, payload any) {
	chans, ok := rt.personal[userID]
	if !ok || len(chans) == 0 {
		return
	}

	frame, err := EncodeEvent(event, payload)
	if err != nil {
		rt.logger.Error().Err(err).Str("event", event).Msg("Failed to encode personal delivery")
		return
	}

	for _, c := range chans {
		c.deliver(frame)
	}
}

// RoomMembers returns the connection ids currently joined to the chat.
func (rt *Router) RoomMembers(chatID string) []string {
	return lo.Keys(rt.rooms[chatID])
}

// ViewingChats returns the chat ids the user currently has open.
func (rt *Router) ViewingChats(userID string) []string {
	return lo.Keys(rt.viewing[userID])
}
