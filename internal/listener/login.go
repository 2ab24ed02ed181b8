package listener

import (
	"context"
	"net/url"
	"strings"

	"github.com/Dicklesworthstone/designer_auth_bridge/internal/coordinator"
)

// CallbackPlaceholder in an authorization URL is replaced with the
// query-escaped base URL of the listener, so the identity provider can be
// pointed back at /ok, /cancel and /timeout.
const CallbackPlaceholder = "{callback}"

// LoginOptions configures Login.
type LoginOptions struct {
	Listener    Options
	Coordinator coordinator.Config

	// Started, when set, is called once the attempt exists and before the
	// browser is opened.
	Started func(s *Server, p *coordinator.PopupHandle)
}

// Login runs one login attempt over a fresh loopback listener. The
// listener and coordinator are released on every exit path. When ctx ends
// first the attempt is cancelled and ctx.Err() is returned with the handle.
func Login(ctx context.Context, opts LoginOptions, authURL string) (*coordinator.PopupHandle, error) {
	srv, err := Start(ctx, opts.Listener)
	if err != nil {
		return nil, err
	}
	defer srv.Close()

	cfg := opts.Coordinator
	if cfg.Transport == "" {
		cfg.Transport = "listener"
	}
	if cfg.Logger == nil {
		cfg.Logger = opts.Listener.Logger
	}
	coord := coordinator.New(srv, cfg)
	defer coord.Close()

	popup := coord.StartLogin(ctx)
	if opts.Started != nil {
		opts.Started(srv, popup)
	}
	popup.SetURL(ExpandURL(authURL, srv.BaseURL()))

	if _, err := popup.Wait(ctx); err != nil {
		coord.Close()
		return popup, err
	}
	return popup, nil
}

// ExpandURL substitutes CallbackPlaceholder in authURL with base.
func ExpandURL(authURL, base string) string {
	return strings.ReplaceAll(authURL, CallbackPlaceholder, url.QueryEscape(base))
}
