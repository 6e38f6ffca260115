package callsession

import (
	"sync"

	"github.com/osa030/exitcall/internal/domain/call"
)

// ringing holds the resources owned by a session while it is incoming.
type ringing struct {
	sessionID string
	ref       call.RingtoneRef
	ringtone  Ringtone
	task      *Task
}

// Registry tracks the resources of incoming sessions with thread-safe access.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*ringing
}

// NewRegistry creates a new registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*ringing),
	}
}

func (r *Registry) add(e *ringing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.sessionID] = e
}

func (r *Registry) get(sessionID string) (*ringing, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	return e, ok
}

// take removes and returns the entry. Only one caller can take an entry,
// which is what makes the release happen exactly once.
func (r *Registry) take(sessionID string) (*ringing, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if ok {
		delete(r.entries, sessionID)
	}
	return e, ok
}

func (r *Registry) takeAll() []*ringing {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*ringing, 0, len(r.entries))
	for id, e := range r.entries {
		result = append(result, e)
		delete(r.entries, id)
	}
	return result
}

// Count returns the number of incoming sessions holding resources.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
