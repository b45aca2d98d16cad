package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ganttforge/ganttforge/config"
	"github.com/ganttforge/ganttforge/pkg/api/events"
	"github.com/ganttforge/ganttforge/pkg/api/middleware"
	"github.com/ganttforge/ganttforge/pkg/api/models"
	"github.com/ganttforge/ganttforge/pkg/api/response"
	"github.com/ganttforge/ganttforge/pkg/logger"
	"github.com/ganttforge/ganttforge/pkg/metrics"
	"github.com/ganttforge/ganttforge/pkg/plan"
	"github.com/ganttforge/ganttforge/pkg/scheduler"
	"github.com/ganttforge/ganttforge/pkg/storage"
)

const defaultListLimit = 20

// ScheduleHandler handles schedule solve and query endpoints.
type ScheduleHandler struct {
	store       storage.Storage
	defaults    config.SolverConfig
	logger      logger.Logger
	validator   *validator.Validate
	metrics     *metrics.Manager
	broadcaster *events.Broadcaster
}

// NewScheduleHandler creates a new schedule handler. The metrics manager and
// broadcaster are optional.
func NewScheduleHandler(
	store storage.Storage,
	defaults config.SolverConfig,
	log logger.Logger,
	mgr *metrics.Manager,
	broadcaster *events.Broadcaster,
) *ScheduleHandler {
	if mgr == nil {
		mgr = metrics.NoOpManager()
	}
	return &ScheduleHandler{
		store:       store,
		defaults:    defaults,
		logger:      log,
		validator:   validator.New(),
		metrics:     mgr,
		broadcaster: broadcaster,
	}
}

// Solve handles POST /api/v1/schedules. It validates the submitted task
// graph, runs the solver, persists the result, and returns the schedule.
func (h *ScheduleHandler) Solve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode solve request", "error", err)
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		h.logger.Error("Solve request validation failed", "error", err)
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
		return
	}

	opts, allowNegativeLag := h.solveOptions(req.Options)

	pl := &plan.Plan{
		MaxResourcesInParallel: req.MaxResourcesInParallel,
		Projects:               req.Projects,
	}

	var graphOpts []plan.GraphOption
	if allowNegativeLag {
		graphOpts = append(graphOpts, plan.WithNegativeLag())
	}

	g, err := pl.Graph(graphOpts...)
	if err != nil {
		h.solveFailed(req.Name, err)
		details := graphErrorDetails(err)
		response.ErrorWithDetails(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), details, getRequestID(ctx))
		return
	}

	started := time.Now()
	result, err := scheduler.Schedule(ctx, g, req.MaxResourcesInParallel, opts)
	solveTime := time.Since(started)

	if err != nil {
		h.solveFailed(req.Name, err)

		var infeasible *scheduler.InfeasibleError
		switch {
		case errors.As(err, &infeasible):
			response.ErrorWithDetails(w, http.StatusUnprocessableEntity, response.ErrCodeInfeasible, err.Error(),
				map[string]any{"project_id": infeasible.ID, "demand": infeasible.Demand, "capacity": infeasible.Capacity},
				getRequestID(ctx))
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			response.Error(w, http.StatusGatewayTimeout, response.ErrCodeGatewayTimeout, "Solve cancelled", getRequestID(ctx))
		default:
			h.logger.Error("Solve failed", "name", req.Name, "error", err)
			response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Solve failed", getRequestID(ctx))
		}
		return
	}

	rec := &storage.ScheduleRecord{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Fingerprint: storage.Fingerprint(g, req.MaxResourcesInParallel, opts.Seed),
		Capacity:    req.MaxResourcesInParallel,
		Seed:        opts.Seed,
		Makespan:    result.Makespan(),
		Result:      result,
		CreatedAt:   time.Now().UTC(),
		SolveTime:   solveTime,
	}

	if err := h.store.SaveSchedule(ctx, rec); err != nil {
		h.logger.Error("Failed to persist schedule", "id", rec.ID, "error", err)
		h.metrics.RecordSolve("storage_error", solveTime)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to persist schedule", getRequestID(ctx))
		return
	}

	h.metrics.RecordSolve("success", solveTime)
	h.metrics.RecordRestarts(result.Stats().Attempts)
	h.metrics.RecordSchedule(result.Makespan(), result.Len())

	if h.broadcaster != nil {
		h.broadcaster.BroadcastSolveCompleted(rec.ID, rec.Name, rec.Fingerprint, rec.Makespan, result.Stats().Attempts, rec.CreatedAt)
	}

	h.logger.Info("Schedule solved",
		"id", rec.ID,
		"name", rec.Name,
		"makespan", rec.Makespan,
		"attempts", result.Stats().Attempts,
		"solve_time_ms", solveTime.Milliseconds(),
	)

	response.JSON(w, http.StatusCreated, models.SolveResponse{
		ID:              rec.ID,
		Name:            rec.Name,
		Fingerprint:     rec.Fingerprint,
		Capacity:        rec.Capacity,
		Makespan:        rec.Makespan,
		PeakUtilization: result.PeakUtilization(),
		Assignments:     result.Assignments(),
		CriticalChain:   result.CriticalChain(),
		Stats:           result.Stats(),
		SolveTimeMS:     solveTime.Milliseconds(),
		CreatedAt:       rec.CreatedAt,
	})
}

// GetSchedule handles GET /api/v1/schedules/{id}.
func (h *ScheduleHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scheduleID := chi.URLParam(r, "id")

	if scheduleID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Schedule ID is required", getRequestID(ctx))
		return
	}

	rec, err := h.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		var notFound *storage.NotFoundError
		if errors.As(err, &notFound) {
			response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "Schedule not found", getRequestID(ctx))
			return
		}
		h.logger.Error("Failed to get schedule", "id", scheduleID, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to get schedule", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, scheduleResponseFromRecord(rec))
}

// ListSchedules handles GET /api/v1/schedules.
func (h *ScheduleHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := &storage.ScheduleFilter{
		Fingerprint: r.URL.Query().Get("fingerprint"),
		Limit:       defaultListLimit,
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	records, total, err := h.store.ListSchedules(ctx, filter)
	if err != nil {
		h.logger.Error("Failed to list schedules", "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to list schedules", getRequestID(ctx))
		return
	}

	summaries := make([]models.ScheduleSummary, 0, len(records))
	for _, rec := range records {
		tasks := 0
		if rec.Result != nil {
			tasks = rec.Result.Len()
		}
		summaries = append(summaries, models.ScheduleSummary{
			ID:          rec.ID,
			Name:        rec.Name,
			Fingerprint: rec.Fingerprint,
			Capacity:    rec.Capacity,
			Makespan:    rec.Makespan,
			Tasks:       tasks,
			CreatedAt:   rec.CreatedAt,
		})
	}

	response.JSON(w, http.StatusOK, models.ScheduleListResponse{
		Schedules: summaries,
		Total:     total,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	})
}

// DeleteSchedule handles DELETE /api/v1/schedules/{id}.
func (h *ScheduleHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scheduleID := chi.URLParam(r, "id")

	if scheduleID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Schedule ID is required", getRequestID(ctx))
		return
	}

	if err := h.store.DeleteSchedule(ctx, scheduleID); err != nil {
		var notFound *storage.NotFoundError
		if errors.As(err, &notFound) {
			response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "Schedule not found", getRequestID(ctx))
			return
		}
		h.logger.Error("Failed to delete schedule", "id", scheduleID, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to delete schedule", getRequestID(ctx))
		return
	}

	if h.broadcaster != nil {
		h.broadcaster.BroadcastScheduleDeleted(scheduleID)
	}

	response.JSON(w, http.StatusOK, map[string]string{
		"message": "Schedule deleted",
	})
}

// solveOptions merges per-request overrides onto the configured defaults.
func (h *ScheduleHandler) solveOptions(overrides *models.SolveOptions) (scheduler.Options, bool) {
	opts := scheduler.Options{
		Restarts:    h.defaults.Restarts,
		Seed:        h.defaults.Seed,
		Parallelism: h.defaults.Parallelism,
	}
	allowNegativeLag := h.defaults.AllowNegativeLag

	if overrides == nil {
		return opts, allowNegativeLag
	}
	if overrides.Restarts != nil {
		opts.Restarts = *overrides.Restarts
	}
	if overrides.Seed != nil {
		opts.Seed = *overrides.Seed
	}
	if overrides.Parallelism != nil {
		opts.Parallelism = *overrides.Parallelism
	}
	if overrides.AllowNegativeLag != nil {
		allowNegativeLag = *overrides.AllowNegativeLag
	}
	return opts, allowNegativeLag
}

func (h *ScheduleHandler) solveFailed(name string, err error) {
	h.metrics.RecordSolve("failed", 0)
	if h.broadcaster != nil {
		h.broadcaster.BroadcastSolveFailed(name, err.Error())
	}
}

// graphErrorDetails extracts the offending project from a validation error.
func graphErrorDetails(err error) map[string]any {
	var graphErr plan.GraphError
	if errors.As(err, &graphErr) {
		return map[string]any{"project_id": graphErr.ProjectID()}
	}
	return nil
}

func scheduleResponseFromRecord(rec *storage.ScheduleRecord) models.ScheduleResponse {
	return models.ScheduleResponse{
		ID:          rec.ID,
		Name:        rec.Name,
		Fingerprint: rec.Fingerprint,
		Capacity:    rec.Capacity,
		Seed:        rec.Seed,
		Makespan:    rec.Makespan,
		Result:      rec.Result,
		CreatedAt:   rec.CreatedAt,
		SolveTimeMS: rec.SolveTime.Milliseconds(),
	}
}

// getRequestID extracts request ID from context.
func getRequestID(ctx context.Context) string {
	if reqID := middleware.GetRequestID(ctx); reqID != "" {
		return reqID
	}
	return "unknown"
}
