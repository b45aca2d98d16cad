package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ganttforge/ganttforge/config"
	"github.com/ganttforge/ganttforge/pkg/api/events"
	"github.com/ganttforge/ganttforge/pkg/api/models"
	"github.com/ganttforge/ganttforge/pkg/api/response"
	"github.com/ganttforge/ganttforge/pkg/logger"
	"github.com/ganttforge/ganttforge/pkg/plan"
	"github.com/ganttforge/ganttforge/pkg/storage/memory"
)

func newTestLogger() logger.Logger {
	return logger.New(&logger.Config{
		Level:  logger.InfoLevel,
		Format: "json",
		Output: "stdout",
	})
}

func newTestScheduleHandler() *ScheduleHandler {
	defaults := config.SolverConfig{Restarts: 8, Seed: 1}
	return NewScheduleHandler(memory.NewMemoryStorage(), defaults, newTestLogger(), nil, nil)
}

func solveRequestBody() models.SolveRequest {
	return models.SolveRequest{
		Name:                   "backyard",
		MaxResourcesInParallel: 3,
		Projects: map[string]plan.Project{
			"dig":   {Name: "Dig foundation", Duration: 3, NumResources: 2},
			"pour":  {Name: "Pour concrete", Duration: 2, NumResources: 2, Dependencies: []plan.Dependency{{ProjectID: "dig", LagTime: 1}}},
			"frame": {Name: "Frame walls", Duration: 4, NumResources: 1, Dependencies: []plan.Dependency{{ProjectID: "pour"}}},
		},
	}
}

func postSolve(t *testing.T, handler *ScheduleHandler, reqBody any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(reqBody)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedules", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Solve(w, req)
	return w
}

func requestWithID(method, target, id string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestScheduleHandler_Solve_Success(t *testing.T) {
	handler := newTestScheduleHandler()

	w := postSolve(t, handler, solveRequestBody())

	if w.Code != http.StatusCreated {
		t.Fatalf("Solve() status = %v, want %v, body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp models.SolveResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.ID == "" {
		t.Error("Expected schedule ID in response")
	}
	if resp.Fingerprint == "" {
		t.Error("Expected fingerprint in response")
	}
	if resp.Makespan != 10 {
		t.Errorf("Makespan = %d, want 10", resp.Makespan)
	}
	if len(resp.Assignments) != 3 {
		t.Errorf("Assignments = %d, want 3", len(resp.Assignments))
	}
	if resp.PeakUtilization > 3 {
		t.Errorf("PeakUtilization = %d exceeds capacity 3", resp.PeakUtilization)
	}
	if len(resp.CriticalChain) == 0 {
		t.Error("Expected non-empty critical chain")
	}
}

func TestScheduleHandler_Solve_Deterministic(t *testing.T) {
	handler := newTestScheduleHandler()

	first := postSolve(t, handler, solveRequestBody())
	second := postSolve(t, handler, solveRequestBody())

	var a, b models.SolveResponse
	if err := json.NewDecoder(first.Body).Decode(&a); err != nil {
		t.Fatalf("Failed to decode first response: %v", err)
	}
	if err := json.NewDecoder(second.Body).Decode(&b); err != nil {
		t.Fatalf("Failed to decode second response: %v", err)
	}

	if a.Fingerprint != b.Fingerprint {
		t.Errorf("Fingerprints differ: %s vs %s", a.Fingerprint, b.Fingerprint)
	}
	if a.Makespan != b.Makespan {
		t.Errorf("Makespans differ: %d vs %d", a.Makespan, b.Makespan)
	}
	for i := range a.Assignments {
		if a.Assignments[i] != b.Assignments[i] {
			t.Errorf("Assignment %d differs: %+v vs %+v", i, a.Assignments[i], b.Assignments[i])
		}
	}
}

func TestScheduleHandler_Solve_InvalidJSON(t *testing.T) {
	handler := newTestScheduleHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedules", bytes.NewReader([]byte("{invalid json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Solve(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Solve() with invalid JSON status = %v, want %v", w.Code, http.StatusBadRequest)
	}
}

func TestScheduleHandler_Solve_ValidationFailure(t *testing.T) {
	handler := newTestScheduleHandler()

	tests := []struct {
		name   string
		mutate func(*models.SolveRequest)
	}{
		{"missing name", func(r *models.SolveRequest) { r.Name = "" }},
		{"zero capacity", func(r *models.SolveRequest) { r.MaxResourcesInParallel = 0 }},
		{"no projects", func(r *models.SolveRequest) { r.Projects = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqBody := solveRequestBody()
			tt.mutate(&reqBody)

			w := postSolve(t, handler, reqBody)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Solve() status = %v, want %v", w.Code, http.StatusBadRequest)
			}

			var resp response.ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode error response: %v", err)
			}
			if resp.Error.Code != response.ErrCodeValidationFailed {
				t.Errorf("Error code = %v, want %v", resp.Error.Code, response.ErrCodeValidationFailed)
			}
		})
	}
}

func TestScheduleHandler_Solve_GraphErrors(t *testing.T) {
	handler := newTestScheduleHandler()

	tests := []struct {
		name      string
		mutate    func(*models.SolveRequest)
		wantField string
	}{
		{
			name: "unknown dependency",
			mutate: func(r *models.SolveRequest) {
				p := r.Projects["frame"]
				p.Dependencies = []plan.Dependency{{ProjectID: "missing"}}
				r.Projects["frame"] = p
			},
			wantField: "frame",
		},
		{
			name: "dependency cycle",
			mutate: func(r *models.SolveRequest) {
				p := r.Projects["dig"]
				p.Dependencies = []plan.Dependency{{ProjectID: "frame"}}
				r.Projects["dig"] = p
			},
		},
		{
			name: "negative lag rejected by default",
			mutate: func(r *models.SolveRequest) {
				p := r.Projects["pour"]
				p.Dependencies = []plan.Dependency{{ProjectID: "dig", LagTime: -1}}
				r.Projects["pour"] = p
			},
			wantField: "pour",
		},
		{
			name: "negative duration",
			mutate: func(r *models.SolveRequest) {
				p := r.Projects["dig"]
				p.Duration = -1
				r.Projects["dig"] = p
			},
			wantField: "dig",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqBody := solveRequestBody()
			tt.mutate(&reqBody)

			w := postSolve(t, handler, reqBody)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("Solve() status = %v, want %v, body: %s", w.Code, http.StatusBadRequest, w.Body.String())
			}

			var resp response.ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode error response: %v", err)
			}
			if resp.Error.Code != response.ErrCodeValidationFailed {
				t.Errorf("Error code = %v, want %v", resp.Error.Code, response.ErrCodeValidationFailed)
			}
			if tt.wantField != "" {
				if got, _ := resp.Error.Details["project_id"].(string); got != tt.wantField {
					t.Errorf("Details project_id = %q, want %q", got, tt.wantField)
				}
			}
		})
	}
}

func TestScheduleHandler_Solve_NegativeLagOptIn(t *testing.T) {
	handler := newTestScheduleHandler()

	allow := true
	reqBody := solveRequestBody()
	p := reqBody.Projects["pour"]
	p.Dependencies = []plan.Dependency{{ProjectID: "dig", LagTime: -2}}
	reqBody.Projects["pour"] = p
	reqBody.Options = &models.SolveOptions{AllowNegativeLag: &allow}

	w := postSolve(t, handler, reqBody)

	if w.Code != http.StatusCreated {
		t.Fatalf("Solve() status = %v, want %v, body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp models.SolveResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	// pour may start 2 units before dig finishes, pulling the makespan in.
	if resp.Makespan >= 10 {
		t.Errorf("Makespan = %d, want < 10 with lead time", resp.Makespan)
	}
}

func TestScheduleHandler_Solve_Infeasible(t *testing.T) {
	handler := newTestScheduleHandler()

	reqBody := solveRequestBody()
	p := reqBody.Projects["dig"]
	p.NumResources = 5 // exceeds capacity 3
	reqBody.Projects["dig"] = p

	w := postSolve(t, handler, reqBody)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Solve() status = %v, want %v, body: %s", w.Code, http.StatusUnprocessableEntity, w.Body.String())
	}

	var resp response.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if resp.Error.Code != response.ErrCodeInfeasible {
		t.Errorf("Error code = %v, want %v", resp.Error.Code, response.ErrCodeInfeasible)
	}
	if got, _ := resp.Error.Details["project_id"].(string); got != "dig" {
		t.Errorf("Details project_id = %q, want dig", got)
	}
}

func TestScheduleHandler_Solve_OptionOverrides(t *testing.T) {
	handler := newTestScheduleHandler()

	seed := int64(42)
	restarts := 0
	reqBody := solveRequestBody()
	reqBody.Options = &models.SolveOptions{Seed: &seed, Restarts: &restarts}

	w := postSolve(t, handler, reqBody)

	if w.Code != http.StatusCreated {
		t.Fatalf("Solve() status = %v, want %v, body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp models.SolveResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Stats.Seed != seed {
		t.Errorf("Stats.Seed = %d, want %d", resp.Stats.Seed, seed)
	}
	if resp.Stats.Attempts != 1 {
		t.Errorf("Stats.Attempts = %d, want 1 (baseline only)", resp.Stats.Attempts)
	}
}

func TestScheduleHandler_GetSchedule(t *testing.T) {
	handler := newTestScheduleHandler()

	w := postSolve(t, handler, solveRequestBody())
	var created models.SolveResponse
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode solve response: %v", err)
	}

	req := requestWithID(http.MethodGet, "/api/v1/schedules/"+created.ID, created.ID)
	w = httptest.NewRecorder()
	handler.GetSchedule(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("GetSchedule() status = %v, want %v, body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp models.ScheduleResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ID != created.ID {
		t.Errorf("ID = %v, want %v", resp.ID, created.ID)
	}
	if resp.Result == nil {
		t.Fatal("Expected full result in response")
	}
	if resp.Result.Makespan() != created.Makespan {
		t.Errorf("Result makespan = %d, want %d", resp.Result.Makespan(), created.Makespan)
	}
}

func TestScheduleHandler_GetSchedule_NotFound(t *testing.T) {
	handler := newTestScheduleHandler()

	req := requestWithID(http.MethodGet, "/api/v1/schedules/nope", "nope")
	w := httptest.NewRecorder()
	handler.GetSchedule(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("GetSchedule() status = %v, want %v", w.Code, http.StatusNotFound)
	}
}

func TestScheduleHandler_ListSchedules(t *testing.T) {
	handler := newTestScheduleHandler()

	for range 3 {
		postSolve(t, handler, solveRequestBody())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schedules?limit=2", nil)
	w := httptest.NewRecorder()
	handler.ListSchedules(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("ListSchedules() status = %v, want %v", w.Code, http.StatusOK)
	}

	var resp models.ScheduleListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Total != 3 {
		t.Errorf("Total = %d, want 3", resp.Total)
	}
	if len(resp.Schedules) != 2 {
		t.Errorf("Schedules = %d, want 2", len(resp.Schedules))
	}
	if resp.Limit != 2 {
		t.Errorf("Limit = %d, want 2", resp.Limit)
	}
	for _, s := range resp.Schedules {
		if s.Tasks != 3 {
			t.Errorf("Summary tasks = %d, want 3", s.Tasks)
		}
	}
}

func TestScheduleHandler_ListSchedules_FingerprintFilter(t *testing.T) {
	handler := newTestScheduleHandler()

	w := postSolve(t, handler, solveRequestBody())
	var created models.SolveResponse
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode solve response: %v", err)
	}

	other := solveRequestBody()
	other.MaxResourcesInParallel = 4
	postSolve(t, handler, other)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schedules?fingerprint="+created.Fingerprint, nil)
	w = httptest.NewRecorder()
	handler.ListSchedules(w, req)

	var resp models.ScheduleListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("Total = %d, want 1", resp.Total)
	}
	if len(resp.Schedules) != 1 || resp.Schedules[0].Fingerprint != created.Fingerprint {
		t.Errorf("Expected single schedule with fingerprint %s", created.Fingerprint)
	}
}

func TestScheduleHandler_DeleteSchedule(t *testing.T) {
	handler := newTestScheduleHandler()

	w := postSolve(t, handler, solveRequestBody())
	var created models.SolveResponse
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode solve response: %v", err)
	}

	req := requestWithID(http.MethodDelete, "/api/v1/schedules/"+created.ID, created.ID)
	w = httptest.NewRecorder()
	handler.DeleteSchedule(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("DeleteSchedule() status = %v, want %v", w.Code, http.StatusOK)
	}

	req = requestWithID(http.MethodGet, "/api/v1/schedules/"+created.ID, created.ID)
	w = httptest.NewRecorder()
	handler.GetSchedule(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("GetSchedule() after delete status = %v, want %v", w.Code, http.StatusNotFound)
	}
}

func TestScheduleHandler_DeleteSchedule_NotFound(t *testing.T) {
	handler := newTestScheduleHandler()

	req := requestWithID(http.MethodDelete, "/api/v1/schedules/nope", "nope")
	w := httptest.NewRecorder()
	handler.DeleteSchedule(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("DeleteSchedule() status = %v, want %v", w.Code, http.StatusNotFound)
	}
}

func TestScheduleHandler_SolveBroadcastsEvents(t *testing.T) {
	broadcaster := events.NewBroadcaster()
	ch := broadcaster.Subscribe(4)

	defaults := config.SolverConfig{Restarts: 4, Seed: 1}
	handler := NewScheduleHandler(memory.NewMemoryStorage(), defaults, newTestLogger(), nil, broadcaster)

	w := postSolve(t, handler, solveRequestBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("Solve() status = %v, want %v", w.Code, http.StatusCreated)
	}

	select {
	case event := <-ch:
		if event.Type != "solve.completed" {
			t.Errorf("Event type = %q, want solve.completed", event.Type)
		}
	default:
		t.Error("Expected solve.completed event")
	}
}
