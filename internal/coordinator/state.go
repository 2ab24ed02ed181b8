package coordinator

import (
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// State is the lifecycle state of a login attempt.
type State int

const (
	// StatePending - popup requested, waiting for a terminal signal.
	StatePending State = iota
	// StateCompleted - remote reported successful authorization.
	StateCompleted
	// StateCancelled - remote declined, or the channel closed underneath us.
	StateCancelled
	// StateTimedOut - explicit remote timeout notice, or the guard expired.
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateCompleted:
		return "COMPLETED"
	case StateCancelled:
		return "CANCELLED"
	case StateTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateTimedOut
}

// Error strings carried by Result. Declination and timeout are expected
// outcomes, so they are values rather than Go errors.
const (
	ErrorPopupClosed   = "The popup is closed."
	ErrorPopupTimedOut = "The popup has timed out."
)

// Result is the single resolution of a login attempt. An empty Error means
// the authorization completed.
type Result struct {
	Error string `json:"error,omitempty"`
}

// OK reports whether the attempt completed successfully.
func (r Result) OK() bool {
	return r.Error == ""
}

type signalKind int

const (
	signalComplete signalKind = iota
	signalCancel
	signalRemoteTimeout
	signalGuardExpired
)

func (k signalKind) String() string {
	switch k {
	case signalComplete:
		return "complete"
	case signalCancel:
		return "cancel"
	case signalRemoteTimeout:
		return "remote_timeout"
	case signalGuardExpired:
		return "guard_expired"
	default:
		return "unknown"
	}
}

// signal is an input to the attempt transition function.
type signal struct {
	kind        signalKind
	redirectURL string
	consentCode string
}

// Attempt is one in-flight login. All state changes go through apply and
// setTarget; nothing else writes the fields below.
type Attempt struct {
	mu sync.RWMutex

	id          string
	transport   string
	state       State
	targetURL   string
	redirectURL string
	consentCode string
	closed      bool
	createdAt   time.Time
	finishedAt  time.Time

	result Result
	done   chan struct{}

	guard *TimeoutGuard
	span  trace.Span
}

func newAttempt(id, transport string, now time.Time) *Attempt {
	return &Attempt{
		id:        id,
		transport: transport,
		state:     StatePending,
		createdAt: now,
		done:      make(chan struct{}),
	}
}

// apply runs the transition function. It returns the state before the
// signal and whether a transition happened. Signals received in a terminal
// state are ignored, so the result settles exactly once.
func (a *Attempt) apply(sig signal, now time.Time) (from State, changed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	from = a.state
	if from.Terminal() {
		return from, false
	}

	switch sig.kind {
	case signalComplete:
		a.state = StateCompleted
		a.redirectURL = sig.redirectURL
		a.consentCode = sig.consentCode
		a.result = Result{}
	case signalCancel:
		a.state = StateCancelled
		a.closed = true
		a.result = Result{Error: ErrorPopupClosed}
	case signalRemoteTimeout, signalGuardExpired:
		a.state = StateTimedOut
		a.result = Result{Error: ErrorPopupTimedOut}
	default:
		return from, false
	}

	a.finishedAt = now
	close(a.done)
	return from, true
}

// setTarget records a new target URL while the attempt is pending.
func (a *Attempt) setTarget(url string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Terminal() {
		return false
	}
	a.targetURL = url
	return true
}

func (a *Attempt) markClosed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}

// ID returns the correlation id.
func (a *Attempt) ID() string {
	return a.id
}

// State returns the current state.
func (a *Attempt) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Info returns a point-in-time snapshot of the attempt.
func (a *Attempt) Info() AttemptInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return AttemptInfo{
		ID:          a.id,
		Transport:   a.transport,
		State:       a.state,
		TargetURL:   a.targetURL,
		RedirectURL: a.redirectURL,
		Error:       a.result.Error,
		CreatedAt:   a.createdAt,
		FinishedAt:  a.finishedAt,
	}
}

// AttemptInfo is a snapshot used for status reporting and the audit log.
type AttemptInfo struct {
	ID          string
	Transport   string
	State       State
	TargetURL   string
	RedirectURL string
	Error       string
	CreatedAt   time.Time
	FinishedAt  time.Time
}

// Duration returns how long the attempt took, or zero while pending.
func (i AttemptInfo) Duration() time.Duration {
	if i.FinishedAt.IsZero() {
		return 0
	}
	return i.FinishedAt.Sub(i.CreatedAt)
}
