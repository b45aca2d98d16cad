package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ganttforge/ganttforge/config"
	"github.com/ganttforge/ganttforge/pkg/api/events"
	"github.com/ganttforge/ganttforge/pkg/api/handlers"
	"github.com/ganttforge/ganttforge/pkg/api/models"
	"github.com/ganttforge/ganttforge/pkg/logger"
	"github.com/ganttforge/ganttforge/pkg/plan"
	"github.com/ganttforge/ganttforge/pkg/storage/memory"
)

// setupIntegrationTest creates a test server and returns the base URL and cleanup function
func setupIntegrationTest(t *testing.T) (string, func()) {
	cfg := &config.Config{
		App: config.AppConfig{
			Name:        "test",
			Environment: "test",
		},
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			Port: 18081, // Use different port to avoid conflicts
			HTTP: config.HTTPConfig{
				ReadTimeout:    30 * time.Second,
				WriteTimeout:   30 * time.Second,
				IdleTimeout:    60 * time.Second,
				RequestTimeout: 30 * time.Second,
			},
			CORS: config.CORSConfig{
				Enabled: false,
			},
		},
		Solver: config.SolverConfig{
			Restarts: 8,
			Seed:     1,
		},
	}

	log := logger.New(&logger.Config{
		Level:  logger.InfoLevel,
		Format: "json",
		Output: "stdout",
	})

	store := memory.NewMemoryStorage()
	broadcaster := events.NewBroadcaster()
	wsHandler := handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	go wsHandler.Run(ctx, broadcaster)

	testHandlers := &Handlers{
		Schedule: handlers.NewScheduleHandler(store, cfg.Solver, log, nil, broadcaster),
		Health:   handlers.NewHealthHandler(store),
		Events:   wsHandler,
	}

	server := NewHTTPServer(cfg, log, testHandlers)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			t.Logf("Server error: %v", err)
		}
	}()

	// Wait for server to start
	time.Sleep(100 * time.Millisecond)

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)

	cleanup := func() {
		cancel()
		wsHandler.Close()
		broadcaster.Close()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
		_ = store.Close()
	}

	return baseURL, cleanup
}

func integrationSolveRequest(name string) models.SolveRequest {
	return models.SolveRequest{
		Name:                   name,
		MaxResourcesInParallel: 3,
		Projects: map[string]plan.Project{
			"dig":   {Name: "Dig foundation", Duration: 3, NumResources: 2},
			"pour":  {Name: "Pour concrete", Duration: 2, NumResources: 2, Dependencies: []plan.Dependency{{ProjectID: "dig", LagTime: 1}}},
			"frame": {Name: "Frame walls", Duration: 4, NumResources: 1, Dependencies: []plan.Dependency{{ProjectID: "pour"}}},
		},
	}
}

func TestIntegration_SolveLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	baseURL, cleanup := setupIntegrationTest(t)
	defer cleanup()

	// Solve
	body, _ := json.Marshal(integrationSolveRequest("lifecycle"))
	resp, err := http.Post(baseURL+"/api/v1/schedules", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to post solve: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Solve status = %v, want %v", resp.StatusCode, http.StatusCreated)
	}

	var created models.SolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode solve response: %v", err)
	}
	if created.Makespan != 10 {
		t.Errorf("Makespan = %d, want 10", created.Makespan)
	}

	// Get
	resp, err = http.Get(baseURL + "/api/v1/schedules/" + created.ID)
	if err != nil {
		t.Fatalf("Failed to get schedule: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Get status = %v, want %v", resp.StatusCode, http.StatusOK)
	}

	var fetched models.ScheduleResponse
	if err := json.NewDecoder(resp.Body).Decode(&fetched); err != nil {
		t.Fatalf("Failed to decode schedule: %v", err)
	}
	if fetched.Result == nil || fetched.Result.Makespan() != created.Makespan {
		t.Errorf("Fetched result does not round-trip the makespan")
	}

	// List
	resp, err = http.Get(baseURL + "/api/v1/schedules")
	if err != nil {
		t.Fatalf("Failed to list schedules: %v", err)
	}
	defer resp.Body.Close()

	var list models.ScheduleListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("Failed to decode list: %v", err)
	}
	if list.Total != 1 {
		t.Errorf("Total = %d, want 1", list.Total)
	}

	// Delete
	req, _ := http.NewRequest(http.MethodDelete, baseURL+"/api/v1/schedules/"+created.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to delete schedule: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Delete status = %v, want %v", resp.StatusCode, http.StatusOK)
	}

	// Verify gone
	resp, err = http.Get(baseURL + "/api/v1/schedules/" + created.ID)
	if err != nil {
		t.Fatalf("Failed to get deleted schedule: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Get deleted status = %v, want %v", resp.StatusCode, http.StatusNotFound)
	}
}

func TestIntegration_ConcurrentSolves(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	baseURL, cleanup := setupIntegrationTest(t)
	defer cleanup()

	const workers = 8

	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := range workers {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			body, _ := json.Marshal(integrationSolveRequest(fmt.Sprintf("concurrent-%d", n)))
			resp, err := http.Post(baseURL+"/api/v1/schedules", "application/json", bytes.NewReader(body))
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusCreated {
				errs <- fmt.Errorf("solve %d status = %d", n, resp.StatusCode)
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	resp, err := http.Get(baseURL + "/api/v1/schedules")
	if err != nil {
		t.Fatalf("Failed to list schedules: %v", err)
	}
	defer resp.Body.Close()

	var list models.ScheduleListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("Failed to decode list: %v", err)
	}
	if list.Total != workers {
		t.Errorf("Total = %d, want %d", list.Total, workers)
	}
}

func TestIntegration_InvalidGraphRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	baseURL, cleanup := setupIntegrationTest(t)
	defer cleanup()

	req := integrationSolveRequest("cyclic")
	dig := req.Projects["dig"]
	dig.Dependencies = []plan.Dependency{{ProjectID: "frame"}}
	req.Projects["dig"] = dig

	body, _ := json.Marshal(req)
	resp, err := http.Post(baseURL+"/api/v1/schedules", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to post solve: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Solve status = %v, want %v", resp.StatusCode, http.StatusBadRequest)
	}
}
