// Package browser opens authorization pages in a window the user can see.
package browser

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// Launcher shows url to the user.
type Launcher interface {
	Open(ctx context.Context, url string) error
}

// Kind names a launcher implementation in configuration.
type Kind string

const (
	KindSystem Kind = "system"
	KindChrome Kind = "chrome"
	KindNone   Kind = "none"
)

// ParseKind parses a launcher name.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "system", "default":
		return KindSystem, nil
	case "chrome", "chromedp":
		return KindChrome, nil
	case "none", "off":
		return KindNone, nil
	default:
		return "", fmt.Errorf("invalid browser %q: use system, chrome, or none", value)
	}
}

// Options configures New.
type Options struct {
	Kind          Kind
	ChromeProfile string
	Headless      bool
}

// New returns the launcher for opts.Kind.
func New(opts Options) (Launcher, error) {
	switch opts.Kind {
	case KindSystem, "":
		return SystemLauncher{}, nil
	case KindChrome:
		return NewChromeLauncher(opts.ChromeProfile, opts.Headless), nil
	case KindNone:
		return NopLauncher{}, nil
	default:
		return nil, fmt.Errorf("unsupported browser kind: %s", opts.Kind)
	}
}

// SystemLauncher opens the OS default browser.
type SystemLauncher struct{}

// Open starts the platform opener and returns without waiting for it.
func (SystemLauncher) Open(ctx context.Context, url string) error {
	if url == "" {
		return fmt.Errorf("empty url")
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "linux", "freebsd", "openbsd", "netbsd":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	// Reap the opener; it exits as soon as it handed the URL off.
	go func() { _ = cmd.Wait() }()
	return nil
}

// NopLauncher opens nothing. The URL is expected to be shown by other means.
type NopLauncher struct{}

func (NopLauncher) Open(context.Context, string) error { return nil }

// RecordingLauncher remembers every URL it was asked to open.
type RecordingLauncher struct {
	mu   sync.Mutex
	urls []string
	Err  error
}

func (r *RecordingLauncher) Open(_ context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, url)
	return r.Err
}

// URLs returns the URLs opened so far.
func (r *RecordingLauncher) URLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.urls))
	copy(out, r.urls)
	return out
}
