/*
Package realtime contains the core logic for presence tracking, chat-room
routing, and realtime event fan-out.

This file defines the Registry struct, the source of truth for online/offline
state. A user is online iff at least one connection is registered under their
id; last-seen exists exactly while the user has zero open connections.

The Registry is not self-locking: the Dispatcher goroutine is its single owner
and all mutation and reads go through the dispatcher's event loop.
*/
package realtime

import (
	"time"
)

// Registry maps user identity to active connections and tracks last-seen.
type Registry struct {
	// conns indexes every joined connection by connection id.
	conns map[string]*Conn

	// users maps user id to that user's open connections, by connection id.
	users map[string]map[string]*Conn

	// lastSeen records the close time of a user's final connection.
	// An entry exists iff the user currently has zero open connections.
	lastSeen map[string]time.Time

	// now is the clock, injectable for tests.
	now func() time.Time
}

// NewRegistry returns an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[string]*Conn),
		users:    make(map[string]map[string]*Conn),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Join registers the connection under the user id and reports whether this
// was the user's first open connection (an offline-to-online transition).
// Any recorded last-seen is cleared: the invariant is last-seen exists iff
// the user has zero open connections.
func (r *Registry) Join(userID string, c *Conn) (cameOnline bool) {
	set, ok := r.users[userID]
	if !ok {
		set = make(map[string]*Conn)
		r.users[userID] = set
	}

	cameOnline = len(set) == 0

	set[c.ID] = c
	r.conns[c.ID] = c
	delete(r.lastSeen, userID)

	return cameOnline
}

// Disconnect removes the connection from its owning user's set. When the set
// becomes empty the user transitions offline and last-seen is stamped with the
// close time of this, their final, connection.
func (r *Registry) Disconnect(c *Conn) (userID string, wentOffline bool, at time.Time) {
	if _, ok := r.conns[c.ID]; !ok {
		return "", false, time.Time{}
	}
	delete(r.conns, c.ID)

	userID = c.userID
	set, ok := r.users[userID]
	if !ok {
		return userID, false, time.Time{}
	}

	delete(set, c.ID)

	if len(set) == 0 {
		delete(r.users, userID)
		at = r.now()
		r.lastSeen[userID] = at
		return userID, true, at
	}

	return userID, false, time.Time{}
}

// IsOnline reports whether the user has at least one open connection.
func (r *Registry) IsOnline(userID string) bool {
	return len(r.users[userID]) > 0
}

// OpenConnections returns the number of open connections for the user.
func (r *Registry) OpenConnections(userID string) int {
	return len(r.users[userID])
}

// Status returns a point-in-time presence snapshot for each requested user id.
// Unknown ids read as offline with no last-seen rather than erroring.
func (r *Registry) Status(userIDs []string) []UserStatus {
	statuses := make([]UserStatus, 0, len(userIDs))

	for _, id := range userIDs {
		status := UserStatus{UserID: id}

		if len(r.users[id]) > 0 {
			status.Online = true
		} else if at, ok := r.lastSeen[id]; ok {
			ts := at
			status.LastSeen = &ts
		}

		statuses = append(statuses, status)
	}

	return statuses
}

// EachConn calls fn for every joined connection. Used for global broadcasts
// such as presence transitions, which reach all parties rather than one room.
func (r *Registry) EachConn(fn func(*Conn)) {
	for _, c := range r.conns {
		fn(c)
	}
}
