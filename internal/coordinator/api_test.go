package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/designer_auth_bridge/internal/channel"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPIServer_Health(t *testing.T) {
	h := newHarness(t)
	api := NewAPIServer(h.coord, "127.0.0.1:0", testLogger())

	rec := get(t, api.Handler(), "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "stream", resp.Transport)
}

func TestAPIServer_StatusRedactsURLs(t *testing.T) {
	h := newHarness(t)
	api := NewAPIServer(h.coord, "127.0.0.1:0", testLogger())

	done := h.coord.StartLogin(context.Background())
	h.ch.deliver(channel.Complete(done.ID(), "https://cb/x?code=secret", ""))

	p := h.coord.StartLogin(context.Background())
	p.SetURL("https://idp.example/auth?state=secret")

	rec := get(t, api.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Running)
	assert.Equal(t, h.coord.RunID(), resp.RunID)
	assert.Equal(t, "3m0s", resp.Timeout)
	require.Equal(t, 1, resp.PendingCount)
	assert.Equal(t, p.ID(), resp.Pending[0].ID)
	assert.Equal(t, "https://idp.example/auth?[REDACTED]", resp.Pending[0].TargetURL)
	assert.Nil(t, resp.Pending[0].FinishedAt)

	require.Len(t, resp.Recent, 1)
	assert.Equal(t, "COMPLETED", resp.Recent[0].State)
	assert.Equal(t, "https://cb/x?[REDACTED]", resp.Recent[0].RedirectURL)
	assert.NotNil(t, resp.Recent[0].FinishedAt)
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestAPIServer_Pending(t *testing.T) {
	h := newHarness(t)
	api := NewAPIServer(h.coord, "127.0.0.1:0", testLogger())

	rec := get(t, api.Handler(), "/attempts/pending")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	h.coord.StartLogin(context.Background())
	h.coord.StartLogin(context.Background())

	rec = get(t, api.Handler(), "/attempts/pending")
	var out []AttemptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out, 2)
}

func TestAPIServer_ExtraHandler(t *testing.T) {
	h := newHarness(t)
	api := NewAPIServer(h.coord, "127.0.0.1:0", testLogger())
	api.Handle("GET /metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rec := get(t, api.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = get(t, api.Handler(), "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
