package irccore

import (
	"sort"
	"sync"

	irc "gopkg.in/irc.v3"
)

// Listener consumes parsed protocol messages delivered by the wire library.
type Listener interface {
	Handle(client *irc.Client, msg *irc.Message)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(client *irc.Client, msg *irc.Message)

func (f ListenerFunc) Handle(client *irc.Client, msg *irc.Message) {
	f(client, msg)
}

// Registry fans the wire library's single handler out to any number of
// registered listeners: the stack's server-scope listener, one listener per
// joined channel, and transient collectors. Dispatch is synchronous on the
// library's read goroutine, which keeps per-channel mutations strictly
// ordered.
type Registry struct {
	mu sync.Mutex

	seq       int
	listeners map[int]Listener
}

func NewRegistry() *Registry {
	return &Registry{
		listeners: make(map[int]Listener),
	}
}

// Add registers a listener and returns the handle used to remove it again.
func (r *Registry) Add(l Listener) *ListenerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.listeners[r.seq] = l

	return &ListenerHandle{registry: r, id: r.seq}
}

// RemoveAll drops every registered listener. Used at session teardown so no
// subscription dangles past a disconnect.
func (r *Registry) RemoveAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listeners = make(map[int]Listener)
}

func (r *Registry) dispatch(client *irc.Client, msg *irc.Message) {
	r.mu.Lock()
	ids := make([]int, 0, len(r.listeners))
	for id := range r.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	snapshot := make([]Listener, 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, r.listeners[id])
	}
	r.mu.Unlock()

	// Listeners run outside the lock so they can remove themselves.
	for _, l := range snapshot {
		l.Handle(client, msg)
	}
}

func (r *Registry) remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.listeners, id)
}

func (r *Registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.listeners)
}

// ListenerHandle identifies one registration.
type ListenerHandle struct {
	registry *Registry
	id       int
}

// Remove deregisters the listener. Safe to call more than once and safe to
// call during teardown.
func (h *ListenerHandle) Remove() {
	h.registry.remove(h.id)
}
