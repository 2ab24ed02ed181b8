// Package coordinator drives OAuth popup logins for an embedded designer UI.
//
// A Coordinator owns the pending login attempts for one correlation channel.
// StartLogin creates an Attempt and returns a PopupHandle; inbound terminal
// messages settle the matching attempt exactly once, and a TimeoutGuard
// times it out when the remote never answers.
package coordinator

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Dicklesworthstone/designer_auth_bridge/internal/channel"
)

const tracerName = "github.com/Dicklesworthstone/designer_auth_bridge/internal/coordinator"

// recentLimit bounds the finished attempts kept for status reporting.
const recentLimit = 50

// Config configures the coordinator.
type Config struct {
	// Timeout bounds each attempt. Default: 180s.
	Timeout time.Duration

	// Transport labels attempts in logs and the audit log ("stream", "listener").
	Transport string

	// Logger for structured logging.
	Logger *slog.Logger

	// Metrics records attempt outcomes. Nil disables metrics.
	Metrics *Metrics

	// Tracer opens one span per attempt. Nil uses the global provider.
	Tracer trace.Tracer

	// Now and AfterFunc replace the wall clock (useful for tests).
	Now       func() time.Time
	AfterFunc AfterFunc
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:   DefaultTimeout,
		Transport: "stream",
	}
}

// Coordinator creates login attempts and routes channel messages to them.
type Coordinator struct {
	config  Config
	ch      channel.Channel
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	now     func() time.Time
	runID   string

	mu       sync.RWMutex
	timeout  time.Duration
	attempts map[string]*Attempt // pending only
	recent   []AttemptInfo
	closed   bool

	unregister func()
	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once

	// Callbacks
	OnAttemptStarted  func(info AttemptInfo)
	OnAttemptFinished func(info AttemptInfo)
}

// New creates a coordinator bound to ch. It registers a single dispatcher
// on the channel and cancels every pending attempt when ch closes.
func New(ch channel.Channel, config Config) *Coordinator {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Transport == "" {
		config.Transport = "stream"
	}
	if config.Tracer == nil {
		config.Tracer = otel.Tracer(tracerName)
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	// Correlate all logs from this coordinator instance.
	runID := uuid.New().String()[:8]

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		config:   config,
		ch:       ch,
		logger:   config.Logger.With("run_id", runID, "transport", config.Transport),
		metrics:  config.Metrics,
		tracer:   config.Tracer,
		now:      config.Now,
		runID:    runID,
		timeout:  config.Timeout,
		attempts: make(map[string]*Attempt),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.unregister = ch.OnMessage(c.handleMessage)
	go c.watchChannel()
	return c
}

// RunID returns the correlation ID for this coordinator run.
func (c *Coordinator) RunID() string {
	return c.runID
}

// Transport returns the transport label.
func (c *Coordinator) Transport() string {
	return c.config.Transport
}

// SetTimeout changes the bound applied to attempts started afterwards.
func (c *Coordinator) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultTimeout
	}
	c.mu.Lock()
	old := c.timeout
	c.timeout = d
	c.mu.Unlock()

	if old != d {
		c.logger.Info("timeout updated", "from", old, "to", d)
	}
}

// Timeout returns the bound applied to new attempts.
func (c *Coordinator) Timeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timeout
}

// StartLogin creates a new pending attempt, arms its guard and returns the
// popup handle. Setting the handle's URL opens the popup remotely.
func (c *Coordinator) StartLogin(ctx context.Context) *PopupHandle {
	id := uuid.New().String()
	attempt := newAttempt(id, c.config.Transport, c.now())

	_, attempt.span = c.tracer.Start(ctx, "designer_auth.login",
		trace.WithAttributes(
			attribute.String("attempt.id", id),
			attribute.String("attempt.transport", c.config.Transport),
		))

	c.mu.Lock()
	timeout := c.timeout
	closed := c.closed
	attempt.guard = newTimeoutGuard(timeout, func() {
		c.settle(attempt, signal{kind: signalGuardExpired})
	}, c.config.AfterFunc)
	if !closed {
		c.attempts[id] = attempt
	}
	c.mu.Unlock()

	handle := &PopupHandle{attempt: attempt, coord: c}

	c.metrics.started()
	c.logger.Info("login attempt created",
		"attempt_id", id,
		"to_state", StatePending.String(),
		"timeout", timeout,
		"action", "attempt_created")

	if c.OnAttemptStarted != nil {
		c.OnAttemptStarted(attempt.Info())
	}

	if closed {
		// Nothing can ever answer on a closed coordinator.
		c.settle(attempt, signal{kind: signalCancel})
		return handle
	}

	attempt.guard.Start()
	return handle
}

func (c *Coordinator) sendOpen(a *Attempt, url string) {
	msg := channel.OpenPopup(a.id, url)
	if err := c.ch.Send(c.ctx, msg); err != nil {
		c.logger.Error("open popup failed",
			"attempt_id", a.id,
			"url_redacted", RedactURL(url),
			"error", err,
			"action", "send_failed")
		return
	}
	c.logger.Debug("open popup sent",
		"attempt_id", a.id,
		"url_redacted", RedactURL(url),
		"action", "send_open")
}

// handleMessage is the single dispatcher registered on the channel.
func (c *Coordinator) handleMessage(msg channel.Message) {
	if !msg.Command.Terminal() {
		c.logger.Debug("non-terminal message ignored",
			"command", string(msg.Command),
			"attempt_id", msg.ID,
			"action", "ignore")
		return
	}

	attempt, err := c.resolve(msg)
	if err != nil {
		if state, ok := c.settledState(msg.ID); ok {
			c.logger.Debug("signal ignored",
				"command", string(msg.Command),
				"attempt_id", msg.ID,
				"state", state.String(),
				"action", "ignore")
			return
		}
		c.metrics.dropped()
		c.logger.Warn("inbound message dropped",
			"command", string(msg.Command),
			"attempt_id", msg.ID,
			"error", err,
			"action", "correlation_drop")
		return
	}

	c.settle(attempt, signalFor(msg))
}

// resolve matches msg to a pending attempt. The correlation id wins when
// present. Without one, the message belongs to the single pending attempt
// if exactly one exists; the host wire format carries no id, so this is
// the only way to route it.
func (c *Coordinator) resolve(msg channel.Message) (*Attempt, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if msg.ID != "" {
		if a, ok := c.attempts[msg.ID]; ok {
			return a, nil
		}
		return nil, &CorrelationError{Command: msg.Command, ID: msg.ID, Pending: len(c.attempts)}
	}

	if len(c.attempts) != 1 {
		return nil, &CorrelationError{Command: msg.Command, Pending: len(c.attempts)}
	}
	for _, a := range c.attempts {
		return a, nil
	}
	return nil, &CorrelationError{Command: msg.Command}
}

// settledState reports the final state of a recently settled attempt.
func (c *Coordinator) settledState(id string) (State, bool) {
	if id == "" {
		return StatePending, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.recent) - 1; i >= 0; i-- {
		if c.recent[i].ID == id {
			return c.recent[i].State, true
		}
	}
	return StatePending, false
}

func signalFor(msg channel.Message) signal {
	switch msg.Command {
	case channel.CommandLoginComplete:
		return signal{
			kind:        signalComplete,
			redirectURL: msg.RedirectURL,
			consentCode: msg.ConsentServerCode,
		}
	case channel.CommandLoginTimeOut:
		return signal{kind: signalRemoteTimeout}
	default:
		return signal{kind: signalCancel}
	}
}

// settle applies sig to a and, on the first terminal transition, releases
// everything the attempt holds.
func (c *Coordinator) settle(a *Attempt, sig signal) {
	from, changed := a.apply(sig, c.now())
	if !changed {
		c.logger.Debug("signal ignored",
			"attempt_id", a.id,
			"state", from.String(),
			"signal", sig.kind.String(),
			"action", "ignore")
		return
	}

	a.guard.Cancel()
	info := a.Info()

	c.mu.Lock()
	delete(c.attempts, a.id)
	c.recent = append(c.recent, info)
	if len(c.recent) > recentLimit {
		c.recent = c.recent[len(c.recent)-recentLimit:]
	}
	c.mu.Unlock()

	if a.span != nil {
		a.span.SetAttributes(attribute.String("attempt.state", info.State.String()))
		if info.Error != "" {
			a.span.SetStatus(codes.Error, info.Error)
		}
		a.span.End()
	}
	c.metrics.finished(info.State, info.Duration())

	c.logger.Info("state transition",
		"attempt_id", a.id,
		"from_state", from.String(),
		"to_state", info.State.String(),
		"reason", sig.kind.String(),
		"redirect_redacted", RedactURL(info.RedirectURL),
		"duration", info.Duration(),
		"action", "attempt_settled")

	if c.OnAttemptFinished != nil {
		c.OnAttemptFinished(info)
	}
}

// watchChannel cancels pending attempts if the transport closes.
func (c *Coordinator) watchChannel() {
	select {
	case <-c.ch.Done():
		c.logger.Warn("channel closed", "pending", len(c.Pending()), "action", "cancel_pending")
		c.cancelPending()
	case <-c.ctx.Done():
	}
}

func (c *Coordinator) cancelPending() {
	c.mu.RLock()
	pending := make([]*Attempt, 0, len(c.attempts))
	for _, a := range c.attempts {
		pending = append(pending, a)
	}
	c.mu.RUnlock()

	for _, a := range pending {
		c.settle(a, signal{kind: signalCancel})
	}
}

// Close unregisters the dispatcher and cancels every pending attempt.
// The channel itself is left open; its owner closes it.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.unregister()
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.cancel()
		c.cancelPending()
	})
	return nil
}

// Pending returns snapshots of all pending attempts, oldest first.
func (c *Coordinator) Pending() []AttemptInfo {
	c.mu.RLock()
	infos := make([]AttemptInfo, 0, len(c.attempts))
	for _, a := range c.attempts {
		infos = append(infos, a.Info())
	}
	c.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Recent returns snapshots of recently settled attempts, oldest first.
func (c *Coordinator) Recent() []AttemptInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]AttemptInfo, len(c.recent))
	copy(out, c.recent)
	return out
}
