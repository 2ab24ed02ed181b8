package coordinator

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeTimers records scheduled callbacks so tests can fire them on demand.
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool {
	return !t.stopped.Swap(true)
}

func (ft *fakeTimers) AfterFunc(d time.Duration, f func()) Stopper {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	ft.timers = append(ft.timers, t)
	return t
}

// fire runs the i-th timer, ignoring Stop like a timer that already started.
func (ft *fakeTimers) fire(i int) {
	ft.mu.Lock()
	t := ft.timers[i]
	ft.mu.Unlock()
	t.f()
}

func (ft *fakeTimers) count() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.timers)
}

func (ft *fakeTimers) duration(i int) time.Duration {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.timers[i].d
}

func TestTimeoutGuard_DefaultTimeout(t *testing.T) {
	g := NewTimeoutGuard(0, nil)
	if g.Timeout() != 180*time.Second {
		t.Errorf("Timeout() = %v, want 180s", g.Timeout())
	}
}

func TestTimeoutGuard_Fires(t *testing.T) {
	var fired atomic.Int32
	g := NewTimeoutGuard(10*time.Millisecond, func() { fired.Add(1) })
	g.Start()
	g.Start()

	deadline := time.Now().Add(time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fired.Load() != 1 {
		t.Fatalf("fired %d times, want 1", fired.Load())
	}
	if !g.Fired() {
		t.Error("Fired() = false after expiry")
	}
}

func TestTimeoutGuard_CancelBeforeFire(t *testing.T) {
	timers := &fakeTimers{}
	var fired atomic.Int32
	g := newTimeoutGuard(time.Minute, func() { fired.Add(1) }, timers.AfterFunc)

	g.Start()
	g.Cancel()
	g.Cancel()

	// A fire that was already in flight when Cancel ran must be a no-op.
	timers.fire(0)

	if fired.Load() != 0 {
		t.Errorf("fired %d times after cancel, want 0", fired.Load())
	}
	if g.Fired() {
		t.Error("Fired() = true after cancel")
	}
	if !timers.timers[0].stopped.Load() {
		t.Error("timer should be stopped")
	}
}

func TestTimeoutGuard_CancelledGuardCannotStart(t *testing.T) {
	timers := &fakeTimers{}
	g := newTimeoutGuard(time.Minute, func() {}, timers.AfterFunc)

	g.Cancel()
	g.Start()

	if timers.count() != 0 {
		t.Errorf("scheduled %d timers, want 0", timers.count())
	}
}

func TestTimeoutGuard_FiresOnce(t *testing.T) {
	timers := &fakeTimers{}
	var fired atomic.Int32
	g := newTimeoutGuard(time.Minute, func() { fired.Add(1) }, timers.AfterFunc)
	g.Start()

	timers.fire(0)
	timers.fire(0)

	if fired.Load() != 1 {
		t.Errorf("fired %d times, want 1", fired.Load())
	}
}
