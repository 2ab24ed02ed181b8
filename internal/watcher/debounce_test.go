package watcher

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_CoalescesBurst(t *testing.T) {
	d := newDebouncer(30 * time.Millisecond)
	var fired atomic.Int32

	for i := 0; i < 5; i++ {
		d.Trigger("config.yaml", func() { fired.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("fired = %d, want 1", got)
	}
	if d.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", d.Pending())
	}
}

// Test newDebouncer with zero delay - should use default
func TestNewDebouncer_ZeroDelay(t *testing.T) {
	d := newDebouncer(0)
	if d.delay != 100*time.Millisecond {
		t.Errorf("delay = %v, want 100ms default", d.delay)
	}
}

func TestNewDebouncer_NegativeDelay(t *testing.T) {
	d := newDebouncer(-50 * time.Millisecond)
	if d.delay != 100*time.Millisecond {
		t.Errorf("delay = %v, want 100ms default", d.delay)
	}
}

// A nil debouncer fires immediately.
func TestDebouncer_Trigger_Nil(t *testing.T) {
	var d *debouncer
	fired := false
	d.Trigger("k", func() { fired = true })
	if !fired {
		t.Error("nil debouncer did not fire")
	}
}

func TestDebouncer_MultipleKeys(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	var a, b atomic.Int32

	d.Trigger("a", func() { a.Add(1) })
	d.Trigger("b", func() { b.Add(1) })
	if d.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", d.Pending())
	}

	time.Sleep(80 * time.Millisecond)
	if a.Load() != 1 || b.Load() != 1 {
		t.Errorf("fired a=%d b=%d, want 1 each", a.Load(), b.Load())
	}
}

func TestDebouncer_Stop(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	var fired atomic.Int32

	d.Trigger("k", func() { fired.Add(1) })
	d.Stop()
	d.Trigger("k", func() { fired.Add(1) })

	time.Sleep(60 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("fired = %d after Stop, want 0", got)
	}
	if d.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", d.Pending())
	}
}
