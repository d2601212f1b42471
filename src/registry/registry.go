// Package registry tracks every live client connection, keyed by user id.
// It is the single piece of mutable shared state in the gateway; all
// mutation happens under one mutex, and reads hand out point-in-time
// copies so no caller ever iterates the map under the lock.
package registry

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Registry maps user ids to their live connection. At most one connection
// per user: registering again replaces the previous entry.
type Registry struct {
	mu      sync.RWMutex
	entries map[int64]*Connection
	logger  zerolog.Logger
}

// New creates an empty registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		entries: make(map[int64]*Connection),
		logger:  logger.With().Str("component", "registry").Logger(),
	}
}

// Register inserts or replaces the entry for the connection's user and
// returns the superseded connection, if any. The superseded transport is
// not closed here; that is the caller's responsibility.
func (r *Registry) Register(c *Connection) *Connection {
	r.mu.Lock()
	prev := r.entries[c.UserID]
	r.entries[c.UserID] = c
	total := len(r.entries)
	r.mu.Unlock()

	r.logger.Info().
		Int64("user_id", c.UserID).
		Str("username", c.Username).
		Int("total", total).
		Msg("connection registered")
	return prev
}

// Unregister removes the entry for a user. Idempotent: removing an absent
// user is a no-op.
func (r *Registry) Unregister(userID int64) bool {
	r.mu.Lock()
	_, ok := r.entries[userID]
	if ok {
		delete(r.entries, userID)
	}
	total := len(r.entries)
	r.mu.Unlock()

	if ok {
		r.logger.Info().Int64("user_id", userID).Int("total", total).Msg("connection unregistered")
	}
	return ok
}

// Drop removes the entry for the connection's user only if that exact
// connection is still the registered one. A session that was superseded by
// a newer connection must not evict its successor.
func (r *Registry) Drop(c *Connection) bool {
	r.mu.Lock()
	cur, ok := r.entries[c.UserID]
	if !ok || cur != c {
		r.mu.Unlock()
		return false
	}
	delete(r.entries, c.UserID)
	total := len(r.entries)
	r.mu.Unlock()

	r.logger.Info().Int64("user_id", c.UserID).Int("total", total).Msg("connection unregistered")
	return true
}

// Get returns the live connection for a user, if present.
func (r *Registry) Get(userID int64) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.entries[userID]
	return c, ok
}

// Snapshot returns the user ids with a live connection, point-in-time.
func (r *Registry) Snapshot() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// Connections returns a copy of all live connections for iteration outside
// the lock.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Connection, 0, len(r.entries))
	for _, c := range r.entries {
		conns = append(conns, c)
	}
	return conns
}

// Stale returns the connections whose last successful liveness check is
// before the cutoff.
func (r *Registry) Stale(cutoff time.Time) []*Connection {
	var stale []*Connection
	for _, c := range r.Connections() {
		if c.LastSeen().Before(cutoff) {
			stale = append(stale, c)
		}
	}
	return stale
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
