package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Dicklesworthstone/designer_auth_bridge/internal/browser"
	"github.com/Dicklesworthstone/designer_auth_bridge/internal/channel"
	"github.com/Dicklesworthstone/designer_auth_bridge/internal/config"
	"github.com/Dicklesworthstone/designer_auth_bridge/internal/coordinator"
	"github.com/Dicklesworthstone/designer_auth_bridge/internal/history"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Serve login popups for an embedded designer over stdin/stdout",
	Long: `Run the embedded-UI bridge.

The process that spawns the bridge plays the host. Newline-delimited JSON
envelopes flow in both directions:

  {"type":"designer.oauth","target":"<id>","data":{"command":"...", ...}}

The designer sends StartLogin{url}; the bridge answers with OpenLoginPopup
for the host to show, waits for LoginComplete, LoginCancelled or
LoginTimeOut, and reports LoginResult{id, error, redirectUrl} back.
Attempts with no answer time out after the configured bound (180s).

Examples:
  # Serve on stdio with the status API on :7895
  designer-auth bridge --status-addr 127.0.0.1:7895

  # Only accept envelopes for one designer instance
  designer-auth bridge --target designer-1`,
	Args: cobra.NoArgs,
	RunE: runBridge,
}

var (
	bridgeStatusAddr  string
	bridgeMetricsAddr string
	bridgeTarget      string
	bridgeEventType   string
	bridgeTimeout     time.Duration
	bridgeNoHistory   bool
	bridgeNoWatch     bool
)

func init() {
	rootCmd.AddCommand(bridgeCmd)

	bridgeCmd.Flags().StringVar(&bridgeStatusAddr, "status-addr", "", "Serve the status API on this address")
	bridgeCmd.Flags().StringVar(&bridgeMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (default: the status address)")
	bridgeCmd.Flags().StringVar(&bridgeTarget, "target", "", "Only accept envelopes addressed to this target")
	bridgeCmd.Flags().StringVar(&bridgeEventType, "event-type", "", "Envelope type to use (default designer.oauth)")
	bridgeCmd.Flags().DurationVar(&bridgeTimeout, "timeout", 0, "Login attempt timeout (default 3m)")
	bridgeCmd.Flags().BoolVar(&bridgeNoHistory, "no-history", false, "Do not record attempts in the audit log")
	bridgeCmd.Flags().BoolVar(&bridgeNoWatch, "no-watch", false, "Do not reload the config file on change")
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("status-addr") {
		cfg.StatusAddr = bridgeStatusAddr
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = bridgeMetricsAddr
	}
	if cmd.Flags().Changed("target") {
		cfg.Target = bridgeTarget
	}
	if cmd.Flags().Changed("event-type") {
		cfg.EventType = bridgeEventType
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = bridgeTimeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// stdout carries the protocol; logs go to stderr.
	logger := newLogger(cfg, cmd.ErrOrStderr())

	var store *history.Store
	if !bridgeNoHistory {
		path := cfg.HistoryPath
		if path == "" {
			path = history.DefaultPath()
		}
		store, err = history.OpenAt(path)
		if err != nil {
			logger.Warn("history disabled", "error", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer startTracing(ctx, cfg, logger)()

	opts := bridgeOptions{
		In:      cmd.InOrStdin(),
		Out:     cmd.OutOrStdout(),
		Config:  cfg,
		Logger:  logger,
		History: store,
	}
	if !bridgeNoWatch {
		opts.WatchPath = configPath
		if opts.WatchPath == "" {
			opts.WatchPath = config.ConfigPath()
		}
	}
	return serveBridge(ctx, opts)
}

type bridgeOptions struct {
	In     io.Reader
	Out    io.Writer
	Config *config.Config
	Logger *slog.Logger

	// Registry collects metrics. Nil uses a fresh registry.
	Registry *prometheus.Registry

	// History records finished attempts when set.
	History *history.Store

	// WatchPath enables config hot reload when set.
	WatchPath string

	// Ready, when set, is called with the coordinator once it is serving.
	Ready func(*coordinator.Coordinator)
}

// serveBridge runs the stream transport until in reaches EOF or ctx ends.
func serveBridge(ctx context.Context, opts bridgeOptions) error {
	cfg := opts.Config
	logger := opts.Logger
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream := channel.NewStream(opts.In, opts.Out, channel.StreamOptions{
		EventType: cfg.EventType,
		Target:    cfg.Target,
		Paused:    true,
		Logger:    logger,
	})
	defer stream.Close()

	coordCfg := coordinator.DefaultConfig()
	coordCfg.Timeout = cfg.Timeout
	coordCfg.Transport = "stream"
	coordCfg.Logger = logger
	coordCfg.Metrics = coordinator.NewMetrics(reg)
	coord := coordinator.New(stream, coordCfg)

	var (
		results   sync.WaitGroup
		acceptMu  sync.Mutex
		accepting = true
	)
	unregister := stream.OnMessage(func(msg channel.Message) {
		if msg.Command != channel.CommandStartLogin {
			return
		}
		if msg.URL == "" {
			logger.Warn("start login without url", "request_id", msg.ID, "action", "reject")
			sendResult(stream, logger, channel.LoginResult(msg.ID, "missing url", "", ""))
			return
		}
		if err := browser.ValidateURL(msg.URL, cfg.AllowedHosts); err != nil {
			logger.Warn("start login with refused url", "request_id", msg.ID, "error", err, "action", "reject")
			sendResult(stream, logger, channel.LoginResult(msg.ID, err.Error(), "", ""))
			return
		}

		acceptMu.Lock()
		if !accepting {
			acceptMu.Unlock()
			logger.Warn("start login after shutdown", "request_id", msg.ID, "action", "reject")
			return
		}
		results.Add(1)
		acceptMu.Unlock()

		popup := coord.StartLogin(ctx)
		replyID := msg.ID
		if replyID == "" {
			replyID = popup.ID()
		}
		go func() {
			defer results.Done()
			<-popup.Done()
			if opts.History != nil {
				recordAttempt(opts.History, popup, logger)
			}
			res := popup.Result()
			sendResult(stream, logger, channel.LoginResult(replyID, res.Error, popup.RedirectURL(), popup.ConsentCode()))
		}()
		popup.SetURL(msg.URL)
	})
	defer unregister()

	g, gctx := errgroup.WithContext(ctx)

	var servers []interface{ Shutdown(context.Context) error }
	metricsHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	if cfg.StatusAddr != "" {
		api := coordinator.NewAPIServer(coord, cfg.StatusAddr, logger)
		if cfg.MetricsAddr == "" || cfg.MetricsAddr == cfg.StatusAddr {
			api.Handle("GET /metrics", metricsHandler)
		}
		servers = append(servers, api)
		g.Go(func() error {
			if err := api.Start(); err != nil {
				return fmt.Errorf("status API: %w", err)
			}
			return nil
		})
		logger.Info("status API listening", "addr", cfg.StatusAddr)
	}
	if cfg.MetricsAddr != "" && cfg.MetricsAddr != cfg.StatusAddr {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", metricsHandler)
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		servers = append(servers, srv)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		logger.Info("metrics listening", "addr", cfg.MetricsAddr)
	}

	if opts.WatchPath != "" {
		g.Go(func() error {
			err := config.Watch(gctx, opts.WatchPath, func(next *config.Config) {
				coord.SetTimeout(next.Timeout)
			}, func(err error) {
				logger.Warn("config reload failed", "path", opts.WatchPath, "error", err)
			})
			if err != nil {
				// Hot reload is optional; keep serving without it.
				logger.Warn("config watch disabled", "path", opts.WatchPath, "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		select {
		case <-stream.Done():
			logger.Info("stream closed", "action", "shutdown")
		case <-gctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("server shutdown error", "error", err)
			}
		}
		return nil
	})

	stream.Start()
	logger.Info("bridge started",
		"run_id", coord.RunID(),
		"timeout", coord.Timeout(),
		"event_type", cfg.EventType,
		"target", cfg.Target)
	if opts.Ready != nil {
		opts.Ready(coord)
	}

	err := g.Wait()

	acceptMu.Lock()
	accepting = false
	acceptMu.Unlock()

	// Pending attempts end as cancelled. Their results still go out after
	// stdin EOF; the deferred stream.Close runs only once they are written.
	_ = coord.Close()
	results.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func recordAttempt(store *history.Store, popup *coordinator.PopupHandle, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Record(ctx, history.FromAttempt(popup.RunID(), popup.Info())); err != nil {
		logger.Warn("history record failed", "attempt_id", popup.ID(), "error", err)
	}
}

func sendResult(ch channel.Channel, logger *slog.Logger, msg channel.Message) {
	sendCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ch.Send(sendCtx, msg); err != nil {
		logger.Debug("login result not delivered", "request_id", msg.ID, "error", err)
		return
	}
	logger.Debug("login result sent", "request_id", msg.ID, "error_text", msg.Error)
}
