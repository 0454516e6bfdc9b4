// Package api is the HTTP surface of the dashboard core: the webhook ingress
// the producer pushes announcements to, the long-lived notification streams
// the browser subscribes to, and the control endpoints that drive the
// producer lifecycle.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kolapsis/vigil/internal/archive"
	"github.com/kolapsis/vigil/internal/config"
	"github.com/kolapsis/vigil/internal/notify"
	"github.com/kolapsis/vigil/internal/store"
	"github.com/kolapsis/vigil/internal/supervisor"
)

// Supervisor is the producer-control surface the handlers delegate to.
// Defined at the consumer side per Go convention.
type Supervisor interface {
	Start(launch supervisor.LaunchConfig) (int, error)
	Stop(timeout time.Duration) (supervisor.StopResult, error)
	Status() supervisor.Status
}

// ArchiveReader resolves event references against the archive.
type ArchiveReader interface {
	GetByID(id string) (*archive.Record, error)
}

// Server holds the handler dependencies and builds the router.
type Server struct {
	broker      *notify.Broker
	sup         Supervisor
	store       store.Store
	archive     ArchiveReader
	stopTimeout time.Duration
	keepalive   time.Duration
	webhookURL  string
	rateLimit   config.RateLimitConfig
}

// NewServer wires the HTTP layer. archive may be nil when no archive
// directory is configured; webhook enrichment is then skipped.
func NewServer(cfg *config.Config, broker *notify.Broker, sup Supervisor, st store.Store, ar ArchiveReader) *Server {
	base := cfg.Server.PublicURL
	if base == "" {
		base = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}

	return &Server{
		broker:      broker,
		sup:         sup,
		store:       st,
		archive:     ar,
		stopTimeout: cfg.Producer.StopTimeout,
		keepalive:   cfg.Stream.Keepalive,
		webhookURL:  base + "/api/webhook/new-event",
		rateLimit:   cfg.RateLimit,
	}
}

// Routes builds the chi router for the whole API.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)

	// Streaming endpoints stay outside the rate limit group: one request
	// holds a connection for the lifetime of a browser tab.
	r.Get("/api/stream", s.handleStream)
	r.Get("/api/ws", s.handleWS)

	limiter := RateLimit(s.rateLimit)
	r.Group(func(r chi.Router) {
		r.Use(limiter)

		r.Post("/api/webhook/new-event", s.handleWebhook)

		r.Get("/api/notifications", s.handleNotifications)
		r.Post("/api/notifications/test", s.handleTestNotification)

		r.Get("/api/status", s.handleStatus)
		r.Post("/api/control/start", s.handleStart)
		r.Post("/api/control/stop", s.handleStop)

		r.Get("/api/config", s.handleGetSettings)
		r.Post("/api/config", s.handleUpdateSettings)

		r.Get("/api/runs", s.handleRuns)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return r
}
