package progress

import (
	"sync"

	"github.com/google/uuid"
)

// Registry maps operation identifiers to their trackers so that observers
// can cancel a running lock or unlock operation. It is the only global
// mutable state in the system; the mutex guards insert, remove, and lookup
// only and is never held during I/O.
type Registry struct {
	mu  sync.Mutex
	ops map[string]*Tracker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]*Tracker)}
}

// Register assigns the tracker a fresh operation id and records it.
func (r *Registry) Register(t *Tracker) string {
	id := uuid.New().String()
	r.mu.Lock()
	r.ops[id] = t
	r.mu.Unlock()
	return id
}

// Get returns the tracker for an operation id.
func (r *Registry) Get(id string) (*Tracker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.ops[id]
	return t, ok
}

// Cancel requests cancellation of the given operation. Returns false if the
// operation is unknown (already finished or never existed).
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	t, ok := r.ops[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	t.Cancel()
	return true
}

// Remove forgets a finished operation.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.ops, id)
	r.mu.Unlock()
}

// Active returns the number of registered operations.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}
