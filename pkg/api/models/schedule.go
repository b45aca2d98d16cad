// Package models defines API request/response data structures.
package models

import (
	"time"

	"github.com/ganttforge/ganttforge/pkg/plan"
	"github.com/ganttforge/ganttforge/pkg/scheduler"
)

// SolveRequest represents a schedule solve submission.
type SolveRequest struct {
	// Name is a human-readable label for the resulting schedule.
	Name string `json:"name" validate:"required,min=1,max=100"`

	// MaxResourcesInParallel is the shared resource capacity.
	MaxResourcesInParallel int `json:"max_resources_in_parallel" validate:"required,min=1"`

	// Projects maps project ID to its definition. The map key is
	// authoritative; the ID field inside each record may be omitted.
	Projects map[string]plan.Project `json:"projects" validate:"required,min=1"`

	// Options overrides the server's default search options.
	Options *SolveOptions `json:"options,omitempty"`
}

// SolveOptions carries per-request overrides of the solver configuration.
type SolveOptions struct {
	// Restarts is the number of randomized attempts beyond the baseline.
	Restarts *int `json:"restarts,omitempty" validate:"omitempty,min=0,max=10000"`

	// Seed drives restart randomization; identical requests with the same
	// seed produce identical schedules.
	Seed *int64 `json:"seed,omitempty"`

	// Parallelism is the number of restarts simulated concurrently.
	Parallelism *int `json:"parallelism,omitempty" validate:"omitempty,min=0,max=256"`

	// AllowNegativeLag permits lead times (negative dependency lag).
	AllowNegativeLag *bool `json:"allow_negative_lag,omitempty"`
}

// SolveResponse represents a completed solve.
type SolveResponse struct {
	// ID is the stored schedule identifier.
	ID string `json:"id"`

	// Name is the schedule label from the request.
	Name string `json:"name"`

	// Fingerprint identifies the solved instance (graph, capacity, seed).
	Fingerprint string `json:"fingerprint"`

	// Capacity is the resource capacity the schedule was solved against.
	Capacity int `json:"capacity"`

	// Makespan is the latest end time across all assignments.
	Makespan int `json:"makespan"`

	// PeakUtilization is the highest concurrent resource usage.
	PeakUtilization int `json:"peak_utilization"`

	// Assignments lists per-project placements sorted by ID.
	Assignments []scheduler.Assignment `json:"assignments"`

	// CriticalChain is the dependency chain that pins the makespan.
	CriticalChain []string `json:"critical_chain"`

	// Stats describes the search effort behind the result.
	Stats scheduler.Stats `json:"stats"`

	// SolveTimeMS is the wall-clock solve duration in milliseconds.
	SolveTimeMS int64 `json:"solve_time_ms"`

	// CreatedAt is when the schedule was stored.
	CreatedAt time.Time `json:"created_at"`
}

// ScheduleResponse represents a stored schedule query response.
type ScheduleResponse struct {
	// ID is the schedule identifier.
	ID string `json:"id"`

	// Name is the schedule label.
	Name string `json:"name"`

	// Fingerprint identifies the solved instance.
	Fingerprint string `json:"fingerprint"`

	// Capacity is the resource capacity.
	Capacity int `json:"capacity"`

	// Seed is the seed the search ran with.
	Seed int64 `json:"seed"`

	// Makespan is the schedule makespan.
	Makespan int `json:"makespan"`

	// Result holds the full immutable schedule.
	Result *scheduler.Result `json:"result"`

	// CreatedAt is when the schedule was stored.
	CreatedAt time.Time `json:"created_at"`

	// SolveTimeMS is the wall-clock solve duration in milliseconds.
	SolveTimeMS int64 `json:"solve_time_ms"`
}

// ScheduleListResponse represents a paginated list of stored schedules.
type ScheduleListResponse struct {
	// Schedules is the list of schedule summaries.
	Schedules []ScheduleSummary `json:"schedules"`

	// Total is the total number of schedules matching the filter.
	Total int `json:"total"`

	// Limit is the maximum number of results returned.
	Limit int `json:"limit"`

	// Offset is the starting position in the result set.
	Offset int `json:"offset"`
}

// ScheduleSummary provides a brief overview of a stored schedule.
type ScheduleSummary struct {
	// ID is the schedule identifier.
	ID string `json:"id"`

	// Name is the schedule label.
	Name string `json:"name"`

	// Fingerprint identifies the solved instance.
	Fingerprint string `json:"fingerprint"`

	// Capacity is the resource capacity.
	Capacity int `json:"capacity"`

	// Makespan is the schedule makespan.
	Makespan int `json:"makespan"`

	// Tasks is the number of projects in the schedule.
	Tasks int `json:"tasks"`

	// CreatedAt is when the schedule was stored.
	CreatedAt time.Time `json:"created_at"`
}
