package session

import (
	"sync"

	"github.com/marmos91/cachefsd/internal/store"
)

// Registry tracks every connected session, keyed by its server-assigned
// connection identity, and performs teardown on disconnect.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	peak     int
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a freshly created session and updates the
// max_simultaneous_clients high-water mark (spec.md §6).
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	if len(r.sessions) > r.peak {
		r.peak = len(r.sessions)
	}
}

// Get looks up a session by connection identity.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// PeakConcurrentClients returns the highest simultaneous connection count
// observed, for the shutdown summary.
func (r *Registry) PeakConcurrentClients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peak
}

// Count returns the number of currently connected sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Teardown releases every lock and open reference the session holds, scrubs
// any waiter-queue entry it left behind, and removes it from the registry.
// This is spec.md §4.4/§4.6's disconnect cleanup: "release locks, remove
// from waiter queues, drop from openers".
func (r *Registry) Teardown(id string, st *store.Store) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	for _, pathname := range s.OpenedPaths() {
		st.Close(id, pathname)
	}
	// Locks taken by a bare lockFile have no open reference for Close to
	// release.
	s.mu.Lock()
	locked := make([]string, 0, len(s.locked))
	for pathname := range s.locked {
		locked = append(locked, pathname)
	}
	s.mu.Unlock()
	for _, pathname := range locked {
		st.Unlock(id, pathname)
	}
	if pathname, waiting := s.Waiting(); waiting {
		st.CancelWaiter(pathname, id)
	}
}
