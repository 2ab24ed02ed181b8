package watcher

import (
	"sync"
	"time"
)

// debouncer coalesces bursts of events per key and fires once the key has
// been quiet for delay. Editors often write a file in several steps; only
// the settled state is interesting.
type debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

func newDebouncer(delay time.Duration) *debouncer {
	if delay <= 0 {
		delay = defaultDebounceDelay
	}
	return &debouncer{
		delay:   delay,
		pending: make(map[string]*time.Timer),
	}
}

// Trigger schedules fn for key, replacing anything scheduled before.
func (d *debouncer) Trigger(key string, fn func()) {
	if d == nil {
		fn()
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if t, ok := d.pending[key]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// A newer Trigger replaced this timer.
		if d.pending[key] != t || d.stopped {
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		d.mu.Unlock()
		fn()
	})
	d.pending[key] = t
}

// Pending returns the number of keys waiting to fire.
func (d *debouncer) Pending() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop cancels everything scheduled. Later Triggers are ignored.
func (d *debouncer) Stop() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, t := range d.pending {
		t.Stop()
		delete(d.pending, key)
	}
}
