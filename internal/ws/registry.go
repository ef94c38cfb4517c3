package ws

import (
	"sort"
	"sync"
)

// Conn is one live transport session owned by the registry.
type Conn interface {
	UserID() string
	// Send queues msg without blocking. It reports false when the
	// connection could not take it (closed or evicted as slow).
	Send(msg OutgoingMessage) bool
	Close()
	// Closed reports whether Close has run. A closed Conn is never registered.
	Closed() bool
}

// Registry maps a user id to the set of its live connections. A user with
// no connections has no key, so the online set is always the key set.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[Conn]struct{}
	owner map[Conn]string
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]map[Conn]struct{}),
		owner: make(map[Conn]string),
	}
}

// Register adds c to userID's set. It reports whether the registry changed;
// a repeated add, or an add of a connection already owned by another user,
// is a no-op.
func (r *Registry) Register(userID string, c Conn) bool {
	if userID == "" || c == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owner[c]; ok {
		return false
	}
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[Conn]struct{})
		r.conns[userID] = set
	}
	set[c] = struct{}{}
	r.owner[c] = userID
	return true
}

// Unregister removes c from userID's set and drops the key once the set is
// empty. Removing an unknown connection is a no-op.
func (r *Registry) Unregister(userID string, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.owner[c]; !ok || owner != userID {
		return false
	}
	delete(r.owner, c)
	set := r.conns[userID]
	delete(set, c)
	if len(set) == 0 {
		delete(r.conns, userID)
	}
	return true
}

// Resolve returns a snapshot of userID's connections; empty when offline.
func (r *Registry) Resolve(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.conns[userID]
	out := make([]Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// OnlineUserIDs returns the sorted key set.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsOnline reports whether userID has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

// All returns a snapshot of every registered connection.
func (r *Registry) All() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.owner))
	for c := range r.owner {
		out = append(out, c)
	}
	return out
}

// Len is the total number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owner)
}

// reset empties the registry and returns what it held.
func (r *Registry) reset() []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Conn, 0, len(r.owner))
	for c := range r.owner {
		out = append(out, c)
	}
	r.conns = make(map[string]map[Conn]struct{})
	r.owner = make(map[Conn]string)
	return out
}
