package listener

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/designer_auth_bridge/internal/browser"
	"github.com/Dicklesworthstone/designer_auth_bridge/internal/coordinator"
)

// callbackLauncher plays the identity provider: when the browser is asked
// to open a URL it hits the listener's /ok endpoint.
type callbackLauncher struct {
	base *string
	path string
}

func (l callbackLauncher) Open(ctx context.Context, u string) error {
	go func() {
		q := url.Values{}
		q.Set("redirectUrl", "https://app.example/done")
		q.Set("consentServerCode", "code-1")
		resp, err := http.Get(*l.base + l.path + "?" + q.Encode())
		if err == nil {
			resp.Body.Close()
		}
	}()
	return nil
}

func TestLogin_Completes(t *testing.T) {
	var base string
	opts := LoginOptions{
		Listener: Options{
			Launcher: callbackLauncher{base: &base, path: PathOK},
			Logger:   testLogger(),
		},
		Started: func(s *Server, _ *coordinator.PopupHandle) { base = s.BaseURL() },
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := Login(ctx, opts, "https://idp.example/auth?redirect_uri="+CallbackPlaceholder)
	require.NoError(t, err)
	assert.Equal(t, coordinator.StateCompleted, p.State())
	assert.True(t, p.Result().OK())
	assert.Equal(t, "https://app.example/done", p.RedirectURL())
	assert.Equal(t, "code-1", p.ConsentCode())
	assert.Contains(t, p.URL(), url.QueryEscape("http://127.0.0.1:"))
}

func TestLogin_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := LoginOptions{
		Listener: Options{Launcher: browser.NopLauncher{}, Logger: testLogger()},
		Started:  func(*Server, *coordinator.PopupHandle) { cancel() },
	}

	p, err := Login(ctx, opts, "https://idp.example/auth")
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, p)
	assert.Equal(t, coordinator.StateCancelled, p.State())
	assert.Equal(t, coordinator.ErrorPopupClosed, p.Result().Error)
}

func TestLogin_BindFailure(t *testing.T) {
	_, err := Login(context.Background(), LoginOptions{
		Listener: Options{Address: "256.0.0.1:0", Launcher: browser.NopLauncher{}, Logger: testLogger()},
	}, "https://idp.example/auth")

	var bindErr *PortBindError
	assert.ErrorAs(t, err, &bindErr)
}

func TestExpandURL(t *testing.T) {
	got := ExpandURL("https://idp/auth?cb={callback}&x=1", "http://127.0.0.1:5000")
	assert.Equal(t, "https://idp/auth?cb=http%3A%2F%2F127.0.0.1%3A5000&x=1", got)
	assert.Equal(t, "https://idp/auth", ExpandURL("https://idp/auth", "http://x"))
}
