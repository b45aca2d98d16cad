// Package handlers provides HTTP request handlers.
package handlers

import (
	"net/http"
	"time"

	"github.com/ganttforge/ganttforge/pkg/api/response"
	"github.com/ganttforge/ganttforge/pkg/storage"
	"github.com/ganttforge/ganttforge/pkg/version"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store   storage.Storage
	started time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(store storage.Storage) *HealthHandler {
	return &HealthHandler{
		store:   store,
		started: time.Now(),
	}
}

// Health handles the /health endpoint (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Ready handles the /ready endpoint (readiness probe). The service is ready
// when the schedule store answers queries.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		response.JSON(w, http.StatusServiceUnavailable, map[string]bool{
			"ready": false,
		})
		return
	}

	_, _, err := h.store.ListSchedules(r.Context(), &storage.ScheduleFilter{Limit: 1})
	if err != nil {
		response.JSON(w, http.StatusServiceUnavailable, map[string]bool{
			"ready": false,
		})
		return
	}

	response.JSON(w, http.StatusOK, map[string]bool{
		"ready": true,
	})
}

// Status handles the /status endpoint (detailed status).
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"version":        version.Info(),
	}

	if h.store != nil {
		if _, total, err := h.store.ListSchedules(r.Context(), &storage.ScheduleFilter{Limit: 1}); err == nil {
			status["schedules"] = total
		}
	}

	response.JSON(w, http.StatusOK, status)
}
