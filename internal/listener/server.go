// Package listener implements the loopback HTTP transport: the external
// browser is redirected to well-known paths on a local server, and each
// path maps to one of the terminal login messages.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Dicklesworthstone/designer_auth_bridge/internal/browser"
	"github.com/Dicklesworthstone/designer_auth_bridge/internal/channel"
)

// Paths served by the listener.
const (
	PathLanding = "/auth.html"
	PathOK      = "/ok"
	PathCancel  = "/cancel"
	PathTimeout = "/timeout"
)

// ListenFunc opens a listener. (*net.ListenConfig).Listen satisfies it.
type ListenFunc func(ctx context.Context, network, address string) (net.Listener, error)

// Options configures Start.
type Options struct {
	// Address to bind. Default: 127.0.0.1:0 (ephemeral port chosen by the OS).
	Address string

	// BindTimeout bounds the bind. Default: 5s.
	BindTimeout time.Duration

	// Launcher opens the authorization URL when an OpenLoginPopup is sent.
	// Default: the system browser.
	Launcher browser.Launcher

	Logger *slog.Logger

	// Listen replaces the socket primitive (useful for tests).
	Listen ListenFunc
}

// Server is a channel.Channel backed by a loopback HTTP listener.
type Server struct {
	channel.Registry

	opts     Options
	logger   *slog.Logger
	launcher browser.Launcher

	server   *http.Server
	listener net.Listener
	port     int
	baseURL  string

	dispatchMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
	serveDone chan struct{}
}

// Start binds the listener and serves the callback surface in the
// background. A bind that fails or takes longer than BindTimeout yields a
// *PortBindError.
func Start(ctx context.Context, opts Options) (*Server, error) {
	if opts.Address == "" {
		opts.Address = "127.0.0.1:0"
	}
	if opts.BindTimeout <= 0 {
		opts.BindTimeout = DefaultBindTimeout
	}
	if opts.Launcher == nil {
		opts.Launcher = browser.SystemLauncher{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Listen == nil {
		var lc net.ListenConfig
		opts.Listen = lc.Listen
	}

	if err := checkLoopback(opts.Address); err != nil {
		return nil, &PortBindError{Addr: opts.Address, Err: err}
	}

	bindCtx, cancel := context.WithTimeout(ctx, opts.BindTimeout)
	defer cancel()

	ln, err := bind(bindCtx, opts.Listen, opts.Address)
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:      opts,
		logger:    opts.Logger.With("transport", "listener"),
		launcher:  opts.Launcher,
		listener:  ln,
		done:      make(chan struct{}),
		serveDone: make(chan struct{}),
	}
	s.baseURL = "http://" + ln.Addr().String()
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
		s.baseURL = "http://" + net.JoinHostPort(tcpAddr.IP.String(), strconv.Itoa(tcpAddr.Port))
	}

	s.server = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go s.serve()

	s.logger.Info("listener started", "addr", ln.Addr().String())
	return s, nil
}

func checkLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if !browser.IsLoopbackHost(host) {
		return fmt.Errorf("%w: %q", ErrNotLoopback, host)
	}
	return nil
}

func bind(ctx context.Context, listen ListenFunc, addr string) (net.Listener, error) {
	type result struct {
		ln  net.Listener
		err error
	}
	ch := make(chan result, 1)
	go func() {
		ln, err := listen(ctx, "tcp", addr)
		ch <- result{ln: ln, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, &PortBindError{Addr: addr, Err: r.err}
		}
		return r.ln, nil
	case <-ctx.Done():
		// Release a socket that shows up after we gave up on it.
		go func() {
			if r := <-ch; r.ln != nil {
				_ = r.ln.Close()
			}
		}()
		return nil, &PortBindError{Addr: addr, Err: ctx.Err()}
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get(PathLanding, s.handleLanding)
	r.Get(PathOK, s.handleOK)
	r.Get(PathCancel, s.handleCancel)
	r.Get(PathTimeout, s.handleTimeout)
	r.NotFound(http.NotFound)
	r.MethodNotAllowed(http.NotFound)
	return r
}

func (s *Server) serve() {
	defer close(s.serveDone)
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("listener failed", "error", err, "action", "close")
	}
	// Whatever stopped the server, the channel is gone now.
	s.markDone()
}

func (s *Server) dispatch(msg channel.Message) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	s.Dispatch(msg)
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	renderPage(w, landingPage)
}

func (s *Server) handleOK(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.logger.Debug("callback received", "path", PathOK, "attempt_id", q.Get("id"))
	s.dispatch(channel.Complete(q.Get("id"), q.Get("redirectUrl"), q.Get("consentServerCode")))
	renderPage(w, completePage)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	s.logger.Debug("callback received", "path", PathCancel, "attempt_id", id)
	s.dispatch(channel.Cancelled(id))
	renderPage(w, cancelledPage)
}

func (s *Server) handleTimeout(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	s.logger.Debug("callback received", "path", PathTimeout, "attempt_id", id)
	s.dispatch(channel.TimedOut(id))
	renderPage(w, timedOutPage)
}

// Send launches the browser on OpenLoginPopup. There is no other outbound
// path for this transport, so other commands are ignored.
func (s *Server) Send(ctx context.Context, msg channel.Message) error {
	select {
	case <-s.done:
		return channel.ErrClosed
	default:
	}

	if msg.Command != channel.CommandOpenLoginPopup {
		s.logger.Debug("outbound message ignored", "command", string(msg.Command))
		return nil
	}
	if err := s.launcher.Open(ctx, msg.URL); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	return nil
}

// OnMessage registers h for callback-derived messages.
func (s *Server) OnMessage(h channel.Handler) func() {
	return s.Registry.OnMessage(h)
}

// Done is closed once the listener stops, including on external failure.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) markDone() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Close shuts the HTTP server down and waits for the serve loop.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(ctx)
	<-s.serveDone
	s.markDone()
	if err != nil {
		return fmt.Errorf("shutdown listener: %w", err)
	}
	return nil
}

// Port returns the bound port.
func (s *Server) Port() int {
	return s.port
}

// BaseURL returns the origin of the bound socket, e.g. http://[::1]:5000.
func (s *Server) BaseURL() string {
	return s.baseURL
}

// CallbackURL returns the absolute URL of path on this listener.
func (s *Server) CallbackURL(path string) string {
	return s.BaseURL() + path
}

var _ channel.Channel = (*Server)(nil)
