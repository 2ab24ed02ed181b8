package coordinator

import (
	"sync"
	"time"
)

// DefaultTimeout bounds a login attempt when no terminal signal arrives.
const DefaultTimeout = 180 * time.Second

// Stopper is the part of *time.Timer the guard needs.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it once wrapped.
type AfterFunc func(d time.Duration, f func()) Stopper

func realAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// TimeoutGuard is a single-shot timer bound to one attempt.
type TimeoutGuard struct {
	mu        sync.Mutex
	timeout   time.Duration
	fire      func()
	after     AfterFunc
	timer     Stopper
	started   bool
	cancelled bool
	fired     bool
}

// NewTimeoutGuard returns an unarmed guard that calls fire once timeout
// elapses after Start. A non-positive timeout uses DefaultTimeout.
func NewTimeoutGuard(timeout time.Duration, fire func()) *TimeoutGuard {
	return newTimeoutGuard(timeout, fire, nil)
}

func newTimeoutGuard(timeout time.Duration, fire func(), after AfterFunc) *TimeoutGuard {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if after == nil {
		after = realAfterFunc
	}
	return &TimeoutGuard{
		timeout: timeout,
		fire:    fire,
		after:   after,
	}
}

// Start arms the guard. Only the first call has an effect, and a cancelled
// guard cannot be armed.
func (g *TimeoutGuard) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started || g.cancelled {
		return
	}
	g.started = true
	g.timer = g.after(g.timeout, g.expire)
}

func (g *TimeoutGuard) expire() {
	g.mu.Lock()
	if g.cancelled || g.fired {
		g.mu.Unlock()
		return
	}
	g.fired = true
	g.mu.Unlock()

	if g.fire != nil {
		g.fire()
	}
}

// Cancel disarms the guard. It is idempotent; a fire racing with Cancel is
// dropped unless it already started running.
func (g *TimeoutGuard) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelled {
		return
	}
	g.cancelled = true
	if g.timer != nil {
		g.timer.Stop()
	}
}

// Fired reports whether the guard expired.
func (g *TimeoutGuard) Fired() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fired
}

// Timeout returns the configured bound.
func (g *TimeoutGuard) Timeout() time.Duration {
	return g.timeout
}
