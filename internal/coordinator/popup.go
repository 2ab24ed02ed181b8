package coordinator

import (
	"context"
)

// PopupHandle is what callers get back from StartLogin. It looks like a
// popup window: set URL to show a page, observe Closed, wait for Result.
// None of its methods fail; missing data is reported as the empty string.
type PopupHandle struct {
	attempt *Attempt
	coord   *Coordinator
}

// ID returns the correlation id of the underlying attempt.
func (p *PopupHandle) ID() string {
	return p.attempt.id
}

// RunID returns the run id of the coordinator that owns the attempt.
func (p *PopupHandle) RunID() string {
	return p.coord.runID
}

// URL returns the last target URL set on the popup.
func (p *PopupHandle) URL() string {
	p.attempt.mu.RLock()
	defer p.attempt.mu.RUnlock()
	return p.attempt.targetURL
}

// SetURL navigates the popup to url. Each call while pending sends one
// OpenLoginPopup to the remote party. Calls after the attempt settled are
// ignored.
func (p *PopupHandle) SetURL(url string) {
	if !p.attempt.setTarget(url) {
		p.coord.logger.Debug("set url ignored",
			"attempt_id", p.attempt.id,
			"state", p.attempt.State().String(),
			"action", "ignore")
		return
	}
	p.coord.sendOpen(p.attempt, url)
}

// Closed reports whether the popup was closed, locally or by the remote.
func (p *PopupHandle) Closed() bool {
	p.attempt.mu.RLock()
	defer p.attempt.mu.RUnlock()
	return p.attempt.closed
}

// Close marks the popup closed. A host-proxied window cannot be forced
// shut, so this does not settle the result.
func (p *PopupHandle) Close() {
	p.attempt.markClosed()
}

// Done is closed once the attempt settles.
func (p *PopupHandle) Done() <-chan struct{} {
	return p.attempt.done
}

// Result blocks until the attempt settles and returns its result.
func (p *PopupHandle) Result() Result {
	<-p.attempt.done
	p.attempt.mu.RLock()
	defer p.attempt.mu.RUnlock()
	return p.attempt.result
}

// Wait is Result bounded by ctx. The error is ctx.Err() when ctx ends first.
func (p *PopupHandle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.attempt.done:
		return p.Result(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// RedirectURL returns the post-authorization redirect, set on completion.
func (p *PopupHandle) RedirectURL() string {
	p.attempt.mu.RLock()
	defer p.attempt.mu.RUnlock()
	return p.attempt.redirectURL
}

// ConsentCode returns the consent server code reported on completion, if any.
func (p *PopupHandle) ConsentCode() string {
	p.attempt.mu.RLock()
	defer p.attempt.mu.RUnlock()
	return p.attempt.consentCode
}

// State returns the attempt state.
func (p *PopupHandle) State() State {
	return p.attempt.State()
}

// Info returns a snapshot of the attempt.
func (p *PopupHandle) Info() AttemptInfo {
	return p.attempt.Info()
}
