// internal/presence/registry.go
// In-process connection registry: maps an authenticated identity to at most
// one live realtime connection. Source of truth for "who is online now".

package presence

import (
	"sync"
)

// Connection is the handle the registry tracks per identity. The realtime
// layer provides the concrete type; the registry never inspects beyond this.
type Connection interface {
	ID() string
	UserID() int64
}

// Registry maps identity to current connection. The identity->connection and
// connection->identity maps are updated atomically as a pair under one lock.
type Registry struct {
	mu     sync.RWMutex
	byUser map[int64]Connection
	byConn map[string]int64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[int64]Connection),
		byConn: make(map[string]int64),
	}
}

// Register records conn as the identity's current connection. If an older
// connection was registered for the same identity it is returned so the
// caller can close it.
func (r *Registry) Register(conn Connection) Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	var replaced Connection
	if old, ok := r.byUser[conn.UserID()]; ok && old.ID() != conn.ID() {
		replaced = old
		delete(r.byConn, old.ID())
	}

	r.byUser[conn.UserID()] = conn
	r.byConn[conn.ID()] = conn.UserID()
	return replaced
}

// Unregister removes conn only if it is still the identity's current
// connection. A disconnect racing with a newer connect for the same identity
// must not clobber the newer entry, so the stored handle is compared first.
func (r *Registry) Unregister(conn Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byUser[conn.UserID()]
	if !ok || current.ID() != conn.ID() {
		// Stale disconnect: a newer connection owns this identity now.
		delete(r.byConn, conn.ID())
		return false
	}

	delete(r.byUser, conn.UserID())
	delete(r.byConn, conn.ID())
	return true
}

// Lookup returns the identity's current connection, if any
func (r *Registry) Lookup(userID int64) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.byUser[userID]
	return conn, ok
}

// IsOnline reports whether the identity has a live connection
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byUser[userID]
	return ok
}

// OnlineUserIDs returns a snapshot of all identities with a live connection
func (r *Registry) OnlineUserIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	return ids
}

// Connections returns a snapshot of all live connections
func (r *Registry) Connections() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Connection, 0, len(r.byUser))
	for _, c := range r.byUser {
		conns = append(conns, c)
	}
	return conns
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
