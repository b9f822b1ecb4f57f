// Package realtime tracks live connections and routes events to them. It is
// the only part of the system that knows which users are reachable right now;
// durable state stays in the storage collaborator.
package realtime

import (
	"sort"
	"sync"
)

// Conn is a live transport connection capable of receiving named events.
// Implementations must not block indefinitely; a failed send only affects the
// one connection.
type Conn interface {
	SendEvent(event string, payload interface{}) error
}

type registryEntry struct {
	conn       Conn
	privileged bool
}

// Registry maps a user id to its single live connection. Registering the same
// user twice overwrites the earlier entry, and unregistering deletes whatever
// entry is present, even one belonging to a newer connection. That reconnect
// race is intentional and documented behavior.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
}

// NewRegistry initializes an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// Register binds userID to conn, replacing any existing entry.
func (r *Registry) Register(userID string, conn Conn, privileged bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[userID] = registryEntry{conn: conn, privileged: privileged}
}

// Unregister removes the entry for userID if present.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, userID)
}

// Resolve returns the live connection for userID. Absence is a normal outcome
// meaning the user is offline.
func (r *Registry) Resolve(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	return entry.conn, true
}

// VisibleUserIDs returns every registered id except privileged ones, sorted
// for stable presence snapshots. Privileged users stay resolvable for direct
// delivery; they are only hidden from this list.
func (r *Registry) VisibleUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id, entry := range r.entries {
		if entry.privileged {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// connections snapshots every live connection, privileged included.
func (r *Registry) connections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]Conn, 0, len(r.entries))
	for _, entry := range r.entries {
		conns = append(conns, entry.conn)
	}
	return conns
}
