// Package api provides HTTP API server components.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ganttforge/ganttforge/config"
	"github.com/ganttforge/ganttforge/pkg/api/handlers"
	"github.com/ganttforge/ganttforge/pkg/api/middleware"
	"github.com/ganttforge/ganttforge/pkg/logger"
)

// Handlers holds all HTTP handlers. Nil fields leave their routes
// unmounted, which the tests use to exercise surfaces in isolation.
type Handlers struct {
	// Schedule handles solve and schedule query endpoints
	Schedule *handlers.ScheduleHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// Events handles the websocket event stream
	Events *handlers.WebSocketHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, h *Handlers) chi.Router {
	r := chi.NewRouter()

	stack := []func(next http.Handler) http.Handler{
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
	}
	if h.Metrics != nil {
		stack = append(stack, middleware.Metrics(h.Metrics))
	}
	stack = append(stack,
		middleware.CORS(&cfg.Server.CORS),
		middleware.Timeout(cfg.Server.HTTP.RequestTimeout),
	)
	r.Use(stack...)

	RegisterRoutes(r, h)
	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, h *Handlers) {
	if h.Schedule != nil {
		r.Route("/api/v1/schedules", func(r chi.Router) {
			r.Post("/", h.Schedule.Solve)
			r.Get("/", h.Schedule.ListSchedules)
			r.Get("/{id}", h.Schedule.GetSchedule)
			r.Delete("/{id}", h.Schedule.DeleteSchedule)
		})
	}

	// Websocket event stream and health probes stay unversioned.
	if h.Events != nil {
		r.Get("/ws/events", h.Events.ServeHTTP)
	}
	if h.Health != nil {
		r.Get("/health", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Get("/status", h.Health.Status)
	}
}
