// Package config manages designer-auth configuration.
//
// Values come from, in increasing precedence: built-in defaults, the YAML
// file, DESIGNER_AUTH_* environment variables, and command-line flags
// (applied by the caller).
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/Dicklesworthstone/designer_auth_bridge/internal/browser"
	"github.com/Dicklesworthstone/designer_auth_bridge/internal/watcher"
)

// Config holds bridge settings.
type Config struct {
	// Timeout bounds each login attempt.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`

	// BindTimeout bounds acquiring the loopback socket.
	BindTimeout time.Duration `yaml:"bind_timeout" env:"BIND_TIMEOUT"`

	// ListenAddress is the loopback address for the listener transport.
	ListenAddress string `yaml:"listen_address" env:"LISTEN_ADDRESS"`

	// EventType and Target select stream envelopes addressed to the bridge.
	EventType string `yaml:"event_type" env:"EVENT_TYPE"`
	Target    string `yaml:"target" env:"TARGET"`

	// Browser selects the launcher: system, chrome or none.
	Browser       string `yaml:"browser" env:"BROWSER"`
	ChromeProfile string `yaml:"chrome_profile" env:"CHROME_PROFILE"`
	Headless      bool   `yaml:"headless" env:"HEADLESS"`

	// AllowedHosts restricts authorization URL hosts. Empty allows any https host.
	AllowedHosts []string `yaml:"allowed_hosts" env:"ALLOWED_HOSTS" envSeparator:","`

	// HistoryPath is the audit database. Empty uses the default location.
	HistoryPath string `yaml:"history_path" env:"HISTORY_PATH"`

	// StatusAddr and MetricsAddr enable the status API and /metrics when set.
	StatusAddr  string `yaml:"status_addr" env:"STATUS_ADDR"`
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`

	// OTelEndpoint is an OTLP/HTTP URL for attempt spans. Empty disables export.
	OTelEndpoint string `yaml:"otel_endpoint" env:"OTEL_ENDPOINT"`

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DESIGNER_AUTH_"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:       180 * time.Second,
		BindTimeout:   5 * time.Second,
		ListenAddress: "127.0.0.1",
		EventType:     "designer.oauth",
		Browser:       string(browser.KindSystem),
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// ConfigPath returns the path to the config file.
// Uses $XDG_CONFIG_HOME/designer-auth/config.yaml, falling back to
// ~/.config/designer-auth/config.yaml.
func ConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "designer-auth", "config.yaml")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "designer-auth", "config.yaml")
	}
	return filepath.Join(homeDir, ".config", "designer-auth", "config.yaml")
}

// Load reads the config file at path (ConfigPath when empty), then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.BindTimeout <= 0 {
		return fmt.Errorf("bind_timeout must be positive, got %s", c.BindTimeout)
	}
	if _, err := browser.ParseKind(c.Browser); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	host, _, err := net.SplitHostPort(c.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen_address %q: %w", c.ListenAddress, err)
	}
	if !browser.IsLoopbackHost(host) {
		return fmt.Errorf("listen_address must be a loopback host, got %q", c.ListenAddress)
	}
	return nil
}

// ListenAddr returns ListenAddress with an ephemeral port appended when
// none is given.
func (c *Config) ListenAddr() string {
	addr := c.ListenAddress
	if addr == "" {
		addr = "127.0.0.1"
	}
	if strings.Contains(addr, ":") && !strings.HasSuffix(addr, "]") {
		return addr
	}
	return addr + ":0"
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Watch reloads the config at path whenever it settles after a change and
// passes the result to fn. Invalid files are reported through onErr and
// skipped. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, fn func(*Config), onErr func(error)) error {
	if path == "" {
		path = ConfigPath()
	}
	w, err := watcher.New(path)
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-w.Events():
			cfg, err := Load(ev.Path)
			if err != nil {
				if onErr != nil {
					onErr(err)
				}
				continue
			}
			fn(cfg)
		case err := <-w.Errors():
			if onErr != nil {
				onErr(err)
			}
		}
	}
}
