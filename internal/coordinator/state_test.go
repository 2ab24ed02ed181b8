package coordinator

import (
	"testing"
	"time"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StatePending, "PENDING"},
		{StateCompleted, "COMPLETED"},
		{StateCancelled, "CANCELLED"},
		{StateTimedOut, "TIMED_OUT"},
		{State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestStateTerminal(t *testing.T) {
	if StatePending.Terminal() {
		t.Error("StatePending should not be terminal")
	}
	for _, s := range []State{StateCompleted, StateCancelled, StateTimedOut} {
		if !s.Terminal() {
			t.Errorf("%v should be terminal", s)
		}
	}
}

func TestAttemptApply(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name       string
		sig        signal
		wantState  State
		wantError  string
		wantClosed bool
	}{
		{
			name:      "complete",
			sig:       signal{kind: signalComplete, redirectURL: "https://cb/x", consentCode: "abc"},
			wantState: StateCompleted,
		},
		{
			name:       "cancel",
			sig:        signal{kind: signalCancel},
			wantState:  StateCancelled,
			wantError:  ErrorPopupClosed,
			wantClosed: true,
		},
		{
			name:      "remote timeout",
			sig:       signal{kind: signalRemoteTimeout},
			wantState: StateTimedOut,
			wantError: ErrorPopupTimedOut,
		},
		{
			name:      "guard expired",
			sig:       signal{kind: signalGuardExpired},
			wantState: StateTimedOut,
			wantError: ErrorPopupTimedOut,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAttempt("id", "stream", now.Add(-time.Minute))

			from, changed := a.apply(tt.sig, now)
			if !changed || from != StatePending {
				t.Fatalf("apply() = (%v, %v), want (PENDING, true)", from, changed)
			}
			if a.State() != tt.wantState {
				t.Errorf("State() = %v, want %v", a.State(), tt.wantState)
			}
			if a.result.Error != tt.wantError {
				t.Errorf("result.Error = %q, want %q", a.result.Error, tt.wantError)
			}
			if a.closed != tt.wantClosed {
				t.Errorf("closed = %v, want %v", a.closed, tt.wantClosed)
			}

			select {
			case <-a.done:
			default:
				t.Error("done should be closed after a terminal transition")
			}

			info := a.Info()
			if info.Duration() != time.Minute {
				t.Errorf("Duration() = %v, want 1m", info.Duration())
			}
		})
	}
}

func TestAttemptApply_FirstWriteWins(t *testing.T) {
	a := newAttempt("id", "stream", time.Now())

	if _, changed := a.apply(signal{kind: signalComplete, redirectURL: "https://cb/x"}, time.Now()); !changed {
		t.Fatal("first signal should transition")
	}
	for _, k := range []signalKind{signalCancel, signalRemoteTimeout, signalGuardExpired, signalComplete} {
		from, changed := a.apply(signal{kind: k, redirectURL: "https://other"}, time.Now())
		if changed {
			t.Errorf("signal %v after terminal should be ignored", k)
		}
		if from != StateCompleted {
			t.Errorf("from = %v, want COMPLETED", from)
		}
	}
	if a.redirectURL != "https://cb/x" {
		t.Errorf("redirectURL = %q, want first value", a.redirectURL)
	}
	if !a.result.OK() {
		t.Errorf("result = %+v, want success", a.result)
	}
}

func TestAttemptSetTarget(t *testing.T) {
	a := newAttempt("id", "stream", time.Now())

	if !a.setTarget("https://idp/one") || !a.setTarget("https://idp/two") {
		t.Fatal("setTarget should succeed while pending")
	}
	if a.targetURL != "https://idp/two" {
		t.Errorf("targetURL = %q", a.targetURL)
	}

	a.apply(signal{kind: signalCancel}, time.Now())
	if a.setTarget("https://idp/three") {
		t.Error("setTarget should fail once terminal")
	}
	if a.targetURL != "https://idp/two" {
		t.Errorf("targetURL changed after terminal: %q", a.targetURL)
	}
}

func TestResultOK(t *testing.T) {
	if !(Result{}).OK() {
		t.Error("empty result should be OK")
	}
	if (Result{Error: ErrorPopupClosed}).OK() {
		t.Error("result with error should not be OK")
	}
}
