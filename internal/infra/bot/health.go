package bot

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"lessonbot/internal/observability/tracing"
)

// LessonCounter is the slice of the lesson repository the health endpoint
// needs: counting lessons doubles as the database reachability probe.
type LessonCounter interface {
	Count(ctx context.Context) (int, error)
}

// HealthServer provides HTTP endpoints for health checks.
// It implements two endpoints:
//   - /health: overall health with lesson store state (200 or 503)
//   - /health/ready: readiness probe (200 once startup is complete)
//
// The server supports graceful shutdown via context cancellation.
type HealthServer struct {
	addr         string
	logger       *slog.Logger
	lessons      LessonCounter
	databaseType string
	isReady      *atomic.Bool
	server       *http.Server
}

// healthResponse is the JSON body of the /health endpoint.
type healthResponse struct {
	Healthy      bool   `json:"healthy"`
	LessonCount  int    `json:"lessonCount"`
	DatabaseType string `json:"databaseType"`
}

// readyResponse is the JSON body of the /health/ready endpoint.
type readyResponse struct {
	Status string `json:"status"`
}

// NewHealthServer creates a new health check server. The server is not
// started yet and reports not-ready until SetReady(true).
func NewHealthServer(addr string, lessons LessonCounter, databaseType string, logger *slog.Logger) *HealthServer {
	isReady := &atomic.Bool{}
	isReady.Store(false)

	return &HealthServer{
		addr:         addr,
		logger:       logger,
		lessons:      lessons,
		databaseType: databaseType,
		isReady:      isReady,
	}
}

// Start starts the health check HTTP server. This is a blocking call that
// runs until the context is cancelled or an error occurs. It supports
// graceful shutdown with a 5-second timeout and returns
// http.ErrServerClosed on clean shutdown.
func (h *HealthServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/health/ready", h.handleReadiness)

	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      tracing.Middleware(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		if err := h.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h.logger.Info("health server shutting down")
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		h.logger.Info("health server stopped")
		return http.ErrServerClosed

	case err := <-errChan:
		if err == http.ErrServerClosed {
			return err
		}
		h.logger.Error("health server failed", slog.Any("error", err))
		return err
	}
}

// SetReady sets the readiness state of the server. This affects both the
// /health/ready endpoint and the healthy flag of /health.
func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

// handleHealth handles the /health endpoint. It reports whether the bot
// is healthy together with the current lesson count and the backing
// database type. A failed lesson count means the database is unreachable,
// which makes the bot unhealthy (503).
func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Healthy:      h.isReady.Load(),
		DatabaseType: h.databaseType,
	}

	count, err := h.lessons.Count(r.Context())
	if err != nil {
		h.logger.Error("health check lesson count failed", slog.Any("error", err))
		resp.Healthy = false
	} else {
		resp.LessonCount = count
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}

// handleReadiness handles the /health/ready endpoint (readiness probe).
// Returns 200 OK once startup is complete, 503 before that and during
// shutdown.
func (h *HealthServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.isReady.Load() {
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(readyResponse{Status: "ok"}); err != nil {
			h.logger.Error("failed to encode readiness response", slog.Any("error", err))
		}
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		if err := json.NewEncoder(w).Encode(readyResponse{Status: "not ready"}); err != nil {
			h.logger.Error("failed to encode not ready response", slog.Any("error", err))
		}
	}
}
