package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/designer_auth_bridge/internal/browser"
	"github.com/Dicklesworthstone/designer_auth_bridge/internal/coordinator"
	"github.com/Dicklesworthstone/designer_auth_bridge/internal/history"
	"github.com/Dicklesworthstone/designer_auth_bridge/internal/listener"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Run one login through a local browser and loopback listener",
	Long: `Open the authorization URL in a browser and wait on a loopback listener.

The identity provider (or consent page) finishes the attempt by sending the
browser to one of:

  /ok?redirectUrl=...&consentServerCode=...   completed
  /cancel                                     cancelled
  /timeout                                    timed out

Use {callback} in --url to pass the listener origin to the provider.

Examples:
  designer-auth login --url 'https://idp.example/authorize?redirect_uri={callback}%2Fok'
  designer-auth login --url https://idp.example/authorize --browser chrome --json`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var (
	loginURL       string
	loginBrowser   string
	loginListen    string
	loginTimeout   time.Duration
	loginJSON      bool
	loginNoHistory bool
)

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().StringVar(&loginURL, "url", "", "Authorization URL to open (required)")
	loginCmd.Flags().StringVar(&loginBrowser, "browser", "", "Browser launcher: system, chrome or none")
	loginCmd.Flags().StringVar(&loginListen, "listen", "", "Loopback address to bind (default 127.0.0.1:0)")
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 0, "Login attempt timeout (default 3m)")
	loginCmd.Flags().BoolVar(&loginJSON, "json", false, "Output result as JSON")
	loginCmd.Flags().BoolVar(&loginNoHistory, "no-history", false, "Do not record the attempt in the audit log")
	_ = loginCmd.MarkFlagRequired("url")
}

// LoginOutput is the JSON form of a finished login.
type LoginOutput struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	Error       string `json:"error,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
	ConsentCode string `json:"consent_server_code,omitempty"`
	Duration    string `json:"duration"`
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("browser") {
		cfg.Browser = loginBrowser
	}
	if cmd.Flags().Changed("listen") {
		cfg.ListenAddress = loginListen
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = loginTimeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// {callback} expands to a loopback origin, which the guard accepts.
	if err := browser.ValidateURL(listener.ExpandURL(loginURL, "http://127.0.0.1"), cfg.AllowedHosts); err != nil {
		return err
	}

	logger := newLogger(cfg, cmd.ErrOrStderr())

	kind, err := browser.ParseKind(cfg.Browser)
	if err != nil {
		return err
	}
	launcher, err := browser.New(browser.Options{
		Kind:          kind,
		ChromeProfile: cfg.ChromeProfile,
		Headless:      cfg.Headless,
	})
	if err != nil {
		return err
	}
	if c, ok := launcher.(io.Closer); ok {
		defer c.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer startTracing(ctx, cfg, logger)()

	out := cmd.OutOrStdout()
	styles := stylesFor(out)
	if loginJSON {
		styles = newOutputStyles(false)
	}

	coordCfg := coordinator.DefaultConfig()
	coordCfg.Timeout = cfg.Timeout
	coordCfg.Logger = logger

	popup, err := listener.Login(ctx, listener.LoginOptions{
		Listener: listener.Options{
			Address:     cfg.ListenAddr(),
			BindTimeout: cfg.BindTimeout,
			Launcher:    launcher,
			Logger:      logger,
		},
		Coordinator: coordCfg,
		Started: func(s *listener.Server, p *coordinator.PopupHandle) {
			if !loginJSON {
				fmt.Fprintf(out, "%s %s\n", styles.Muted("Waiting for sign-in on"), s.BaseURL())
			}
		},
	}, loginURL)
	if popup == nil {
		return err
	}

	if !loginNoHistory {
		recordLogin(cfg.HistoryPath, popup, logger)
	}

	if perr := printLogin(out, popup, loginJSON, styles); perr != nil {
		return perr
	}
	if err != nil {
		return err
	}
	if res := popup.Result(); !res.OK() {
		return fmt.Errorf("login %s: %s", popup.ID(), res.Error)
	}
	return nil
}

func recordLogin(path string, popup *coordinator.PopupHandle, logger *slog.Logger) {
	if path == "" {
		path = history.DefaultPath()
	}
	store, err := history.OpenAt(path)
	if err != nil {
		logger.Warn("history disabled", "error", err)
		return
	}
	defer store.Close()
	recordAttempt(store, popup, logger)
}

func printLogin(w io.Writer, popup *coordinator.PopupHandle, asJSON bool, styles outputStyles) error {
	info := popup.Info()

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(LoginOutput{
			ID:          info.ID,
			State:       info.State.String(),
			Error:       info.Error,
			RedirectURL: popup.RedirectURL(),
			ConsentCode: popup.ConsentCode(),
			Duration:    info.Duration().Round(time.Millisecond).String(),
		})
	}

	fmt.Fprintf(w, "%s %s\n", styles.Header("Login"), styles.State(info.State.String()))
	fmt.Fprintf(w, "  id:       %s\n", info.ID)
	fmt.Fprintf(w, "  duration: %s\n", info.Duration().Round(time.Millisecond))
	if info.Error != "" {
		fmt.Fprintf(w, "  error:    %s\n", info.Error)
	}
	if redirect := popup.RedirectURL(); redirect != "" {
		fmt.Fprintf(w, "  redirect: %s\n", truncate(redirect, 120))
	}
	return nil
}
