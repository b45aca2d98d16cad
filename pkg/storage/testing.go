package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ganttforge/ganttforge/pkg/plan"
	"github.com/ganttforge/ganttforge/pkg/scheduler"
)

// StorageTestSuite defines a test suite that can be run against any Storage implementation.
type StorageTestSuite struct {
	NewStorage func(t *testing.T) Storage
}

// RunAllTests runs all storage tests against the provided storage implementation.
func (s *StorageTestSuite) RunAllTests(t *testing.T) {
	t.Run("ScheduleCRUD", s.TestScheduleCRUD)
	t.Run("ResultRoundTrip", s.TestResultRoundTrip)
	t.Run("ListWithFingerprintFilter", s.TestListWithFingerprintFilter)
	t.Run("ListWithPagination", s.TestListWithPagination)
	t.Run("ConcurrentAccess", s.TestConcurrentAccess)
	t.Run("ScheduleNotFound", s.TestScheduleNotFound)
	t.Run("DeleteNotFound", s.TestDeleteNotFound)
}

// solveFixture produces a real schedule result for storage tests.
func solveFixture(t *testing.T) (*plan.Graph, *scheduler.Result) {
	t.Helper()

	g := plan.NewGraph()
	projects := []*plan.Project{
		{ID: "dig", Name: "Dig foundation", Duration: 3, NumResources: 2},
		{ID: "pour", Name: "Pour concrete", Duration: 2, NumResources: 2,
			Dependencies: []plan.Dependency{{ProjectID: "dig", LagTime: 1}}},
		{ID: "frame", Name: "Frame walls", Duration: 4, NumResources: 1,
			Dependencies: []plan.Dependency{{ProjectID: "pour"}}},
	}
	for _, p := range projects {
		if err := g.AddProject(p); err != nil {
			t.Fatalf("AddProject(%s) failed: %v", p.ID, err)
		}
	}

	res, err := scheduler.Schedule(context.Background(), g, 3, scheduler.Options{Restarts: 4, Seed: 1})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	return g, res
}

func (s *StorageTestSuite) newRecord(t *testing.T, id string) *ScheduleRecord {
	t.Helper()

	g, res := solveFixture(t)
	return &ScheduleRecord{
		ID:          id,
		Name:        "construction",
		Fingerprint: Fingerprint(g, res.Capacity(), res.Stats().Seed),
		Capacity:    res.Capacity(),
		Seed:        res.Stats().Seed,
		Makespan:    res.Makespan(),
		Result:      res,
		CreatedAt:   time.Now(),
		SolveTime:   3 * time.Millisecond,
	}
}

// TestScheduleCRUD tests basic schedule CRUD operations.
func (s *StorageTestSuite) TestScheduleCRUD(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	rec := s.newRecord(t, "sched-1")

	if err := store.SaveSchedule(ctx, rec); err != nil {
		t.Fatalf("SaveSchedule failed: %v", err)
	}

	retrieved, err := store.GetSchedule(ctx, "sched-1")
	if err != nil {
		t.Fatalf("GetSchedule failed: %v", err)
	}

	if retrieved.ID != rec.ID {
		t.Errorf("expected ID %s, got %s", rec.ID, retrieved.ID)
	}
	if retrieved.Name != rec.Name {
		t.Errorf("expected Name %s, got %s", rec.Name, retrieved.Name)
	}
	if retrieved.Makespan != rec.Makespan {
		t.Errorf("expected Makespan %d, got %d", rec.Makespan, retrieved.Makespan)
	}
	if retrieved.Fingerprint != rec.Fingerprint {
		t.Errorf("expected Fingerprint %s, got %s", rec.Fingerprint, retrieved.Fingerprint)
	}

	// Overwrite with a new name
	retrieved.Name = "construction v2"
	if err := store.SaveSchedule(ctx, retrieved); err != nil {
		t.Fatalf("SaveSchedule (update) failed: %v", err)
	}

	updated, err := store.GetSchedule(ctx, "sched-1")
	if err != nil {
		t.Fatalf("GetSchedule (after update) failed: %v", err)
	}
	if updated.Name != "construction v2" {
		t.Errorf("expected updated name, got %s", updated.Name)
	}

	if err := store.DeleteSchedule(ctx, "sched-1"); err != nil {
		t.Fatalf("DeleteSchedule failed: %v", err)
	}

	if _, err := store.GetSchedule(ctx, "sched-1"); err == nil {
		t.Error("expected error when getting deleted schedule")
	}
}

// TestResultRoundTrip verifies the full schedule survives persistence.
func (s *StorageTestSuite) TestResultRoundTrip(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	rec := s.newRecord(t, "sched-rt")

	if err := store.SaveSchedule(ctx, rec); err != nil {
		t.Fatalf("SaveSchedule failed: %v", err)
	}

	retrieved, err := store.GetSchedule(ctx, "sched-rt")
	if err != nil {
		t.Fatalf("GetSchedule failed: %v", err)
	}

	if retrieved.Result == nil {
		t.Fatal("expected non-nil result after round trip")
	}
	if retrieved.Result.Makespan() != rec.Result.Makespan() {
		t.Errorf("expected makespan %d, got %d", rec.Result.Makespan(), retrieved.Result.Makespan())
	}
	if retrieved.Result.Len() != rec.Result.Len() {
		t.Errorf("expected %d assignments, got %d", rec.Result.Len(), retrieved.Result.Len())
	}

	want := rec.Result.Assignments()
	got := retrieved.Result.Assignments()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("assignment %d mismatch: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

// TestListWithFingerprintFilter tests fingerprint-scoped listing.
func (s *StorageTestSuite) TestListWithFingerprintFilter(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	base := s.newRecord(t, "fp-1")
	if err := store.SaveSchedule(ctx, base); err != nil {
		t.Fatalf("SaveSchedule failed: %v", err)
	}

	other := s.newRecord(t, "fp-2")
	other.Fingerprint = "deadbeefdeadbeef"
	if err := store.SaveSchedule(ctx, other); err != nil {
		t.Fatalf("SaveSchedule failed: %v", err)
	}

	records, total, err := store.ListSchedules(ctx, &ScheduleFilter{Fingerprint: base.Fingerprint})
	if err != nil {
		t.Fatalf("ListSchedules failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected total 1, got %d", total)
	}
	if len(records) != 1 || records[0].ID != "fp-1" {
		t.Errorf("expected only fp-1, got %v", records)
	}

	// No filter returns everything
	_, total, err = store.ListSchedules(ctx, nil)
	if err != nil {
		t.Fatalf("ListSchedules (no filter) failed: %v", err)
	}
	if total != 2 {
		t.Errorf("expected total 2, got %d", total)
	}
}

// TestListWithPagination tests limit/offset behavior and ordering.
func (s *StorageTestSuite) TestListWithPagination(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 5; i++ {
		rec := s.newRecord(t, fmt.Sprintf("page-%d", i))
		rec.CreatedAt = now.Add(time.Duration(i) * time.Second)
		if err := store.SaveSchedule(ctx, rec); err != nil {
			t.Fatalf("SaveSchedule failed: %v", err)
		}
	}

	records, total, err := store.ListSchedules(ctx, &ScheduleFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListSchedules failed: %v", err)
	}
	if total != 5 {
		t.Errorf("expected total 5, got %d", total)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	// Newest first: page-4 is skipped by offset, page-3 and page-2 follow
	if records[0].ID != "page-3" || records[1].ID != "page-2" {
		t.Errorf("unexpected page ordering: %s, %s", records[0].ID, records[1].ID)
	}

	// Offset beyond the end returns an empty page
	records, _, err = store.ListSchedules(ctx, &ScheduleFilter{Limit: 2, Offset: 10})
	if err != nil {
		t.Fatalf("ListSchedules (offset beyond end) failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty page, got %d records", len(records))
	}
}

// TestConcurrentAccess tests concurrent reads and writes.
func (s *StorageTestSuite) TestConcurrentAccess(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	seed := s.newRecord(t, "concurrent-0")
	if err := store.SaveSchedule(ctx, seed); err != nil {
		t.Fatalf("SaveSchedule failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := *seed
			rec.ID = fmt.Sprintf("concurrent-%d", i)
			if err := store.SaveSchedule(ctx, &rec); err != nil {
				t.Errorf("concurrent SaveSchedule failed: %v", err)
			}
		}(i)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.GetSchedule(ctx, "concurrent-0"); err != nil {
				t.Errorf("concurrent GetSchedule failed: %v", err)
			}
		}()
	}
	wg.Wait()

	_, total, err := store.ListSchedules(ctx, nil)
	if err != nil {
		t.Fatalf("ListSchedules failed: %v", err)
	}
	if total != 9 {
		t.Errorf("expected 9 schedules, got %d", total)
	}
}

// TestScheduleNotFound tests the typed not-found error on Get.
func (s *StorageTestSuite) TestScheduleNotFound(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	_, err := store.GetSchedule(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for missing schedule")
	}
	nf, ok := err.(*NotFoundError)
	if !ok {
		t.Fatalf("expected *NotFoundError, got %T", err)
	}
	if nf.ID != "missing" {
		t.Errorf("expected ID 'missing', got %s", nf.ID)
	}
}

// TestDeleteNotFound tests the typed not-found error on Delete.
func (s *StorageTestSuite) TestDeleteNotFound(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	err := store.DeleteSchedule(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for missing schedule")
	}
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("expected *NotFoundError, got %T", err)
	}
}
