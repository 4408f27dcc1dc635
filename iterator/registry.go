package iterator

import "sync"

// Registry tracks every open LeafEntryIterator for a session so the
// enclosing system can close them all at once at commit time. The tagged
// (txId, modCount) check inside each iterator already rejects further use
// after a commit, but proactively closing their leaf references frees
// memory promptly instead of waiting for the caller to notice on its next
// Next() call.
type Registry struct {
	mu   sync.Mutex
	next uint64
	open map[uint64]*LeafEntryIterator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{open: make(map[uint64]*LeafEntryIterator)}
}

// Track registers it and returns a handle that can later be passed to
// Untrack.
func (r *Registry) Track(it *LeafEntryIterator) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	r.open[id] = it
	return id
}

// Untrack removes a handle, e.g. after the caller closes its iterator
// normally.
func (r *Registry) Untrack(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.open, id)
}

// CloseAll closes every tracked iterator and empties the registry. Call
// this right after a commit.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, it := range r.open {
		it.Close()
		delete(r.open, id)
	}
}

// Len reports the number of currently tracked iterators.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}
