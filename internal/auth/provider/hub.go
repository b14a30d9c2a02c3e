package provider

import "sync"

// Hub fans auth events out to subscribers. Emit delivers events
// synchronously in subscription order, so observers see provider
// events in the order they occurred. Providers embed it to satisfy
// OnAuthStateChange.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

func (h *Hub) OnAuthStateChange(fn func(Event)) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs == nil {
		h.subs = make(map[int]func(Event))
	}
	id := h.next
	h.next++
	h.subs[id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

func (h *Hub) Emit(ev Event) {
	h.mu.Lock()
	fns := make([]func(Event), 0, len(h.subs))
	for i := 0; i < h.next; i++ {
		if fn, ok := h.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
