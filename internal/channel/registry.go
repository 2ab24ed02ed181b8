package channel

import "sync"

// Registry fans inbound messages out to registered handlers.
// Transports embed it to implement OnMessage.
type Registry struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
	order    []int
}

// OnMessage registers h. The returned func removes it again.
func (r *Registry) OnMessage(h Handler) func() {
	r.mu.Lock()
	if r.handlers == nil {
		r.handlers = make(map[int]Handler)
	}
	id := r.nextID
	r.nextID++
	r.handlers[id] = h
	r.order = append(r.order, id)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.handlers, id)
			for i, v := range r.order {
				if v == id {
					r.order = append(r.order[:i], r.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Dispatch delivers msg to every handler in registration order.
func (r *Registry) Dispatch(msg Message) {
	r.mu.RLock()
	hs := make([]Handler, 0, len(r.order))
	for _, id := range r.order {
		hs = append(hs, r.handlers[id])
	}
	r.mu.RUnlock()

	for _, h := range hs {
		h(msg)
	}
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
