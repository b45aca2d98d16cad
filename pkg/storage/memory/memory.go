// Package memory provides an in-memory implementation of the storage interface.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ganttforge/ganttforge/pkg/storage"
)

// MemoryStorage implements the Storage interface using in-memory maps.
type MemoryStorage struct {
	mu        sync.RWMutex
	schedules map[string]*storage.ScheduleRecord
}

// NewMemoryStorage creates a new in-memory storage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		schedules: make(map[string]*storage.ScheduleRecord),
	}
}

// SaveSchedule saves a schedule record to memory.
func (m *MemoryStorage) SaveSchedule(ctx context.Context, rec *storage.ScheduleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	copied := *rec
	m.schedules[rec.ID] = &copied
	return nil
}

// GetSchedule retrieves a schedule record by ID.
func (m *MemoryStorage) GetSchedule(ctx context.Context, id string) (*storage.ScheduleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.schedules[id]
	if !exists {
		return nil, &storage.NotFoundError{
			EntityType: "schedule",
			ID:         id,
		}
	}

	copied := *rec
	return &copied, nil
}

// ListSchedules lists schedule records with optional filtering and pagination.
// Results are ordered by creation time, newest first.
func (m *MemoryStorage) ListSchedules(ctx context.Context, filter *storage.ScheduleFilter) ([]*storage.ScheduleRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var filtered []*storage.ScheduleRecord
	for _, rec := range m.schedules {
		if filter != nil && filter.Fingerprint != "" && rec.Fingerprint != filter.Fingerprint {
			continue
		}
		filtered = append(filtered, rec)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].ID < filtered[j].ID
		}
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	total := len(filtered)

	if filter != nil && filter.Limit > 0 {
		start := filter.Offset
		end := filter.Offset + filter.Limit

		if start > len(filtered) {
			start = len(filtered)
		}
		if end > len(filtered) {
			end = len(filtered)
		}
		filtered = filtered[start:end]
	}

	result := make([]*storage.ScheduleRecord, len(filtered))
	for i, rec := range filtered {
		copied := *rec
		result[i] = &copied
	}

	return result, total, nil
}

// DeleteSchedule deletes a schedule record.
func (m *MemoryStorage) DeleteSchedule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.schedules[id]; !exists {
		return &storage.NotFoundError{
			EntityType: "schedule",
			ID:         id,
		}
	}

	delete(m.schedules, id)
	return nil
}

// Close closes the storage (no-op for memory storage).
func (m *MemoryStorage) Close() error {
	return nil
}
