/*
Package directory resolves external auth identities to internal user records.

The realtime layer keys presence and room membership by internal user id only;
translation from the opaque external identity happens here, once, at the HTTP
boundary. Resolved records are cached in memory since the mapping is immutable.
*/
package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"ripplechat/internal/app/db"
)

// ErrUnknownIdentity is returned when an external identity has no user record.
var ErrUnknownIdentity = fmt.Errorf("directory: unknown identity")

// User is the internal representation of a chat participant.
type User struct {
	// ID is the internal user id; the only identity the realtime core sees.
	ID string `json:"id"`

	// ExternalID is the opaque identity assigned by the auth provider.
	ExternalID string `json:"-"`

	// Username is the display name shown in chats and typing indicators.
	Username string `json:"username"`
}

// Directory resolves external identities to internal users.
type Directory interface {
	Resolve(ctx context.Context, externalID string) (User, error)
}

// Postgres is the pgx-backed Directory with an in-memory cache.
type Postgres struct {
	pool *pgxpool.Pool

	mu    sync.RWMutex
	cache map[string]User
}

// NewPostgres constructs a Directory backed by the given pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		pool:  pool,
		cache: make(map[string]User),
	}
}

// Resolve returns the user record for the given external identity.
// The external-to-internal mapping never changes, so hits are served from cache.
func (d *Postgres) Resolve(ctx context.Context, externalID string) (User, error) {
	d.mu.RLock()
	cached, ok := d.cache[externalID]
	d.mu.RUnlock()
	if ok {
		return cached, nil
	}

	var u User
	err := d.pool.QueryRow(ctx,
		`SELECT id, external_id, username FROM users WHERE external_id = $1`,
		externalID,
	).Scan(&u.ID, &u.ExternalID, &u.Username)
	if db.IsNoRows(err) {
		return User{}, ErrUnknownIdentity
	}
	if err != nil {
		return User{}, fmt.Errorf("resolve identity: %w", err)
	}

	d.mu.Lock()
	d.cache[externalID] = u
	d.mu.Unlock()

	return u, nil
}

// Static is a fixed-map Directory used in tests.
type Static struct {
	Users map[string]User // keyed by external id
}

// Resolve looks the identity up in the fixed map.
func (s Static) Resolve(ctx context.Context, externalID string) (User, error) {
	u, ok := s.Users[externalID]
	if !ok {
		return User{}, ErrUnknownIdentity
	}
	return u, nil
}
