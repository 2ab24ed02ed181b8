package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
)

// ChromeLauncher opens authorization pages in a dedicated Chrome window
// driven over the DevTools protocol. The same window is reused for every
// URL until Close.
type ChromeLauncher struct {
	userDataDir string
	headless    bool

	mu          sync.Mutex
	browserCtx  context.Context
	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
}

// NewChromeLauncher returns a launcher using the given Chrome profile
// directory. An empty dir uses a throwaway profile.
func NewChromeLauncher(userDataDir string, headless bool) *ChromeLauncher {
	return &ChromeLauncher{userDataDir: userDataDir, headless: headless}
}

func (l *ChromeLauncher) ensureBrowser() context.Context {
	if l.browserCtx != nil && l.browserCtx.Err() == nil {
		return l.browserCtx
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.headless),
		chromedp.Flag("new-window", true),
	)
	if l.userDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(l.userDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, tabCancel := chromedp.NewContext(allocCtx)

	l.browserCtx = browserCtx
	l.allocCancel = allocCancel
	l.tabCancel = tabCancel
	return browserCtx
}

// Open navigates the Chrome window to url, starting Chrome on first use.
func (l *ChromeLauncher) Open(ctx context.Context, url string) error {
	if url == "" {
		return fmt.Errorf("empty url")
	}

	l.mu.Lock()
	browserCtx := l.ensureBrowser()
	l.mu.Unlock()

	// Navigation runs on the browser context so that a caller giving up
	// does not tear the window down.
	errCh := make(chan error, 1)
	go func() {
		errCh <- chromedp.Run(browserCtx, chromedp.Navigate(url))
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("navigate chrome: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the Chrome window and process down.
func (l *ChromeLauncher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tabCancel != nil {
		l.tabCancel()
	}
	if l.allocCancel != nil {
		l.allocCancel()
	}
	l.browserCtx = nil
	l.tabCancel = nil
	l.allocCancel = nil
	return nil
}
