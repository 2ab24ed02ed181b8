package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timeout != 180*time.Second {
		t.Errorf("Timeout = %v, want 180s", cfg.Timeout)
	}
	if cfg.BindTimeout != 5*time.Second {
		t.Errorf("BindTimeout = %v, want 5s", cfg.BindTimeout)
	}
	if cfg.EventType != "designer.oauth" {
		t.Errorf("EventType = %q", cfg.EventType)
	}
	if cfg.Browser != "system" {
		t.Errorf("Browser = %q, want system", cfg.Browser)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME set", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", tmpDir)

		expected := filepath.Join(tmpDir, "designer-auth", "config.yaml")
		if path := ConfigPath(); path != expected {
			t.Errorf("ConfigPath() = %q, want %q", path, expected)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, err := os.UserHomeDir()
		if err != nil {
			t.Skip("no home dir")
		}

		expected := filepath.Join(home, ".config", "designer-auth", "config.yaml")
		if path := ConfigPath(); path != expected {
			t.Errorf("ConfigPath() = %q, want %q", path, expected)
		}
	})
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timeout: 2m
browser: chrome
chrome_profile: /tmp/profile
target: designer-1
log_level: debug
`), 0600))

	t.Setenv("DESIGNER_AUTH_TIMEOUT", "45s")
	t.Setenv("DESIGNER_AUTH_HEADLESS", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Timeout, "env overrides file")
	assert.Equal(t, "chrome", cfg.Browser)
	assert.Equal(t, "/tmp/profile", cfg.ChromeProfile)
	assert.Equal(t, "designer-1", cfg.Target)
	assert.True(t, cfg.Headless)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched keys keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.BindTimeout)
	assert.Equal(t, "designer.oauth", cfg.EventType)
}

func TestLoad_AllowedHosts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("allowed_hosts: [idp.example]\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"idp.example"}, cfg.AllowedHosts)

	t.Setenv("DESIGNER_AUTH_ALLOWED_HOSTS", "a.example,b.example")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example", "b.example"}, cfg.AllowedHosts)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "timeout: [1, 2"},
		{"negative timeout", "timeout: -1s"},
		{"unknown browser", "browser: netscape"},
		{"unknown level", "log_level: loud"},
		{"unknown format", "log_format: xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("DESIGNER_AUTH_TIMEOUT", "soon")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_ListenAddressMustBeLoopback(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{"", false},
		{"127.0.0.1", false},
		{"localhost:8765", false},
		{"[::1]", false},
		{"0.0.0.0", true},
		{"[::]:0", true},
		{"192.168.1.10:8765", true},
		{":8765", true},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ListenAddress = tt.addr
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestListenAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "127.0.0.1:0"},
		{"127.0.0.1", "127.0.0.1:0"},
		{"127.0.0.1:8765", "127.0.0.1:8765"},
		{"[::1]", "[::1]:0"},
	}
	for _, tt := range tests {
		c := &Config{ListenAddress: tt.in}
		if got := c.ListenAddr(); got != tt.want {
			t.Errorf("ListenAddr(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseLevel("trace")
	assert.Error(t, err)
}

func TestWatch_Reloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	errs := make(chan error, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { got <- c }, func(err error) { errs <- err })
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("timeout: 30s\n"), 0600))

	select {
	case c := <-got:
		assert.Equal(t, 30*time.Second, c.Timeout)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
