// Package storage provides persistent storage abstraction for computed schedules.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ganttforge/ganttforge/pkg/scheduler"
)

// Storage defines the interface for schedule persistence.
type Storage interface {
	// Schedule operations
	SaveSchedule(ctx context.Context, rec *ScheduleRecord) error
	GetSchedule(ctx context.Context, id string) (*ScheduleRecord, error)
	ListSchedules(ctx context.Context, filter *ScheduleFilter) ([]*ScheduleRecord, int, error)
	DeleteSchedule(ctx context.Context, id string) error

	// Lifecycle
	Close() error
}

// ScheduleRecord represents a persisted schedule together with the solve
// parameters that produced it.
type ScheduleRecord struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Fingerprint string            `json:"fingerprint"`
	Capacity    int               `json:"capacity"`
	Seed        int64             `json:"seed"`
	Makespan    int               `json:"makespan"`
	Result      *scheduler.Result `json:"result"`
	CreatedAt   time.Time         `json:"created_at"`
	SolveTime   time.Duration     `json:"solve_time"`
}

// ScheduleFilter defines filtering options for listing schedules.
type ScheduleFilter struct {
	// Fingerprint restricts results to schedules of one plan instance.
	Fingerprint string `json:"fingerprint,omitempty"`
	Limit       int    `json:"limit"`
	Offset      int    `json:"offset"`
}

// NotFoundError reports a lookup that matched nothing.
type NotFoundError struct {
	EntityType string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.EntityType, e.ID)
}

// StorageUnavailableError wraps a backend failure unrelated to the
// request itself, such as a closed or corrupted database.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Cause }

// SerializationError wraps an encode or decode failure for a record.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }
