package coordinator

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// APIServer exposes the coordinator's status over HTTP.
type APIServer struct {
	coordinator *Coordinator
	mux         *http.ServeMux
	server      *http.Server
	logger      *slog.Logger
	startedAt   time.Time
}

// NewAPIServer creates a new API server listening on addr.
func NewAPIServer(coordinator *Coordinator, addr string, logger *slog.Logger) *APIServer {
	if logger == nil {
		logger = slog.Default()
	}

	api := &APIServer{
		coordinator: coordinator,
		mux:         http.NewServeMux(),
		logger:      logger,
		startedAt:   time.Now(),
	}

	api.mux.HandleFunc("GET /health", api.handleHealth)
	api.mux.HandleFunc("GET /status", api.handleStatus)
	api.mux.HandleFunc("GET /attempts/pending", api.handleGetPending)

	api.server = &http.Server{
		Addr:         addr,
		Handler:      api.withLogging(api.mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return api
}

// Handle mounts an extra handler, e.g. /metrics. Call before Start.
func (a *APIServer) Handle(pattern string, h http.Handler) {
	a.mux.Handle(pattern, h)
}

// Handler returns the HTTP handler (useful for tests).
func (a *APIServer) Handler() http.Handler {
	return a.server.Handler
}

// Start begins serving the API.
func (a *APIServer) Start() error {
	a.logger.Info("starting status API", "addr", a.server.Addr)
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (a *APIServer) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

func (a *APIServer) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

// HealthResponse is the response from /health endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Transport string    `json:"transport"`
	Uptime    string    `json:"uptime,omitempty"`
}

func (a *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Transport: a.coordinator.Transport(),
		Uptime:    time.Since(a.startedAt).Round(time.Second).String(),
	}
	writeJSON(w, resp)
}

// AttemptResponse is the public view of one attempt. URLs are redacted.
type AttemptResponse struct {
	ID          string     `json:"id"`
	State       string     `json:"state"`
	TargetURL   string     `json:"target_url,omitempty"`
	RedirectURL string     `json:"redirect_url,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

func newAttemptResponse(info AttemptInfo) AttemptResponse {
	resp := AttemptResponse{
		ID:          info.ID,
		State:       info.State.String(),
		TargetURL:   RedactURL(info.TargetURL),
		RedirectURL: RedactURL(info.RedirectURL),
		Error:       info.Error,
		CreatedAt:   info.CreatedAt,
	}
	if !info.FinishedAt.IsZero() {
		finished := info.FinishedAt
		resp.FinishedAt = &finished
	}
	return resp
}

// StatusResponse is the response from /status endpoint.
type StatusResponse struct {
	Running      bool              `json:"running"`
	RunID        string            `json:"run_id"`
	Transport    string            `json:"transport"`
	Timeout      string            `json:"timeout"`
	PendingCount int               `json:"pending_count"`
	Pending      []AttemptResponse `json:"pending"`
	Recent       []AttemptResponse `json:"recent"`
}

func (a *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	pending := a.coordinator.Pending()
	recent := a.coordinator.Recent()

	resp := StatusResponse{
		Running:      true,
		RunID:        a.coordinator.RunID(),
		Transport:    a.coordinator.Transport(),
		Timeout:      a.coordinator.Timeout().String(),
		PendingCount: len(pending),
		Pending:      make([]AttemptResponse, 0, len(pending)),
		Recent:       make([]AttemptResponse, 0, len(recent)),
	}
	for _, info := range pending {
		resp.Pending = append(resp.Pending, newAttemptResponse(info))
	}
	for _, info := range recent {
		resp.Recent = append(resp.Recent, newAttemptResponse(info))
	}
	writeJSON(w, resp)
}

func (a *APIServer) handleGetPending(w http.ResponseWriter, r *http.Request) {
	pending := a.coordinator.Pending()
	out := make([]AttemptResponse, 0, len(pending))
	for _, info := range pending {
		out = append(out, newAttemptResponse(info))
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
