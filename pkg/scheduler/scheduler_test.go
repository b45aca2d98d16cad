package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/ganttforge/ganttforge/pkg/plan"
)

func buildGraph(t *testing.T, projects []*plan.Project, opts ...plan.GraphOption) *plan.Graph {
	t.Helper()
	g := plan.NewGraph(opts...)
	for _, p := range projects {
		if err := g.AddProject(p); err != nil {
			t.Fatalf("failed to add %s: %v", p.ID, err)
		}
	}
	if _, err := g.Compile(); err != nil {
		t.Fatalf("failed to compile graph: %v", err)
	}
	return g
}

func mustSchedule(t *testing.T, g *plan.Graph, capacity int, opts Options) *Result {
	t.Helper()
	res, err := Schedule(context.Background(), g, capacity, opts)
	if err != nil {
		t.Fatalf("unexpected scheduling error: %v", err)
	}
	return res
}

func TestSchedule_SingleProject(t *testing.T) {
	g := buildGraph(t, []*plan.Project{
		{ID: "only", Name: "Only", Duration: 5, NumResources: 2},
	})

	res := mustSchedule(t, g, 2, Options{})
	a, ok := res.Assignment("only")
	if !ok {
		t.Fatal("expected assignment for only")
	}
	if a.Start != 0 || a.End != 5 {
		t.Errorf("expected [0,5), got [%d,%d)", a.Start, a.End)
	}
	if res.Makespan() != 5 {
		t.Errorf("expected makespan 5, got %d", res.Makespan())
	}
}

func TestSchedule_SerializedByCapacity(t *testing.T) {
	// Two independent projects that cannot overlap: 3+3 > 3.
	g := buildGraph(t, []*plan.Project{
		{ID: "aa", Name: "AA", Duration: 4, NumResources: 3},
		{ID: "bb", Name: "BB", Duration: 4, NumResources: 3},
	})

	res := mustSchedule(t, g, 3, Options{})
	aa, _ := res.Assignment("aa")
	bb, _ := res.Assignment("bb")
	// Smaller ID first by tie-break.
	if aa.Start != 0 || bb.Start != 4 {
		t.Errorf("expected aa at 0 and bb at 4, got %d and %d", aa.Start, bb.Start)
	}
	if res.Makespan() != 8 {
		t.Errorf("expected makespan 8, got %d", res.Makespan())
	}
}

func TestSchedule_ParallelWithinCapacity(t *testing.T) {
	g := buildGraph(t, []*plan.Project{
		{ID: "aa", Name: "AA", Duration: 4, NumResources: 1},
		{ID: "bb", Name: "BB", Duration: 4, NumResources: 1},
	})

	res := mustSchedule(t, g, 2, Options{})
	aa, _ := res.Assignment("aa")
	bb, _ := res.Assignment("bb")
	if aa.Start != 0 || bb.Start != 0 {
		t.Errorf("expected both at 0, got %d and %d", aa.Start, bb.Start)
	}
	if res.Makespan() != 4 {
		t.Errorf("expected makespan 4, got %d", res.Makespan())
	}
	if res.UtilizationAt(0) != 2 {
		t.Errorf("expected utilization 2 at t=0, got %d", res.UtilizationAt(0))
	}
}

func TestSchedule_LaggedPrecedence(t *testing.T) {
	g := buildGraph(t, []*plan.Project{
		{ID: "a", Name: "A", Duration: 3, NumResources: 1},
		{
			ID: "b", Name: "B", Duration: 2, NumResources: 1,
			Dependencies: []plan.Dependency{{ProjectID: "a", LagTime: 2}},
		},
	})

	res := mustSchedule(t, g, 2, Options{})
	a, _ := res.Assignment("a")
	b, _ := res.Assignment("b")
	if a.Start != 0 || a.End != 3 {
		t.Errorf("expected a at [0,3), got [%d,%d)", a.Start, a.End)
	}
	if b.Start != 5 || b.End != 7 {
		t.Errorf("expected b at [5,7), got [%d,%d)", b.Start, b.End)
	}
	if res.Makespan() != 7 {
		t.Errorf("expected makespan 7, got %d", res.Makespan())
	}
	// Nothing runs during the lag window.
	if res.UtilizationAt(4) != 0 {
		t.Errorf("expected idle lag window, got %d", res.UtilizationAt(4))
	}
}

func TestSchedule_NegativeLagOverlap(t *testing.T) {
	g := buildGraph(t, []*plan.Project{
		{ID: "a", Name: "A", Duration: 2, NumResources: 1},
		{
			ID: "b", Name: "B", Duration: 2, NumResources: 1,
			Dependencies: []plan.Dependency{{ProjectID: "a", LagTime: -1}},
		},
	}, plan.WithNegativeLag())

	res := mustSchedule(t, g, 2, Options{})
	a, _ := res.Assignment("a")
	b, _ := res.Assignment("b")
	if b.Start != a.End-1 {
		t.Errorf("expected b to overlap a's last unit: a ends %d, b starts %d", a.End, b.Start)
	}
	if res.Makespan() != 3 {
		t.Errorf("expected makespan 3, got %d", res.Makespan())
	}
}

func TestSchedule_Infeasible(t *testing.T) {
	g := buildGraph(t, []*plan.Project{
		{ID: "greedy", Name: "Greedy", Duration: 1, NumResources: 5},
	})

	_, err := Schedule(context.Background(), g, 3, Options{})
	var inf *InfeasibleError
	if !errors.As(err, &inf) {
		t.Fatalf("expected InfeasibleError, got %v", err)
	}
	if inf.ID != "greedy" || inf.Demand != 5 || inf.Capacity != 3 {
		t.Errorf("unexpected error detail: %+v", inf)
	}
}

func TestSchedule_ZeroDurationExemptFromCapacity(t *testing.T) {
	// A milestone-style project occupies no instant, so its demand can
	// exceed capacity without making the instance infeasible.
	g := buildGraph(t, []*plan.Project{
		{ID: "work", Name: "Work", Duration: 2, NumResources: 1},
		{
			ID: "milestone", Name: "Milestone", Duration: 0, NumResources: 9,
			Dependencies: []plan.Dependency{{ProjectID: "work"}},
		},
	})

	res := mustSchedule(t, g, 1, Options{})
	m, _ := res.Assignment("milestone")
	if m.Start != 2 || m.End != 2 {
		t.Errorf("expected milestone at [2,2), got [%d,%d)", m.Start, m.End)
	}
	if res.Makespan() != 2 {
		t.Errorf("expected makespan 2, got %d", res.Makespan())
	}
}

func TestSchedule_CyclePropagates(t *testing.T) {
	g := plan.NewGraph()
	_ = g.AddProject(&plan.Project{ID: "a", Name: "A", Duration: 1, Dependencies: []plan.Dependency{{ProjectID: "b"}}})
	_ = g.AddProject(&plan.Project{ID: "b", Name: "B", Duration: 1, Dependencies: []plan.Dependency{{ProjectID: "a"}}})

	_, err := Schedule(context.Background(), g, 2, Options{})
	var cyc *plan.CyclicDependencyError
	if !errors.As(err, &cyc) {
		t.Fatalf("expected CyclicDependencyError, got %v", err)
	}
}

func TestSchedule_EmptyGraph(t *testing.T) {
	g := buildGraph(t, nil)
	res := mustSchedule(t, g, 0, Options{})
	if res.Makespan() != 0 {
		t.Errorf("expected makespan 0, got %d", res.Makespan())
	}
	if res.Len() != 0 {
		t.Errorf("expected no assignments, got %d", res.Len())
	}
}

func TestSchedule_Deterministic(t *testing.T) {
	g := chainAndFanGraph(t)
	opts := Options{Restarts: 16, Seed: 42}

	first := mustSchedule(t, g, 3, opts)
	second := mustSchedule(t, g, 3, opts)

	a, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	b, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("identical inputs and seed produced different results")
	}
}

func TestSchedule_ParallelRestartsMatchSequential(t *testing.T) {
	g := chainAndFanGraph(t)

	seq := mustSchedule(t, g, 3, Options{Restarts: 12, Seed: 7})
	par := mustSchedule(t, g, 3, Options{Restarts: 12, Seed: 7, Parallelism: 4})

	a, _ := json.Marshal(seq)
	b, _ := json.Marshal(par)
	if !bytes.Equal(a, b) {
		t.Error("parallel restarts changed the outcome")
	}
}

func TestRunRestarts_ParallelWorkerFailureReturns(t *testing.T) {
	// A project demanding more than capacity makes every simulation
	// stall with an invariant error. Schedule rejects such graphs up
	// front, so drive runRestarts directly: with more restarts than
	// workers, every worker exits on the error while the feed loop
	// still has attempts to hand out, and the call must return the
	// error instead of blocking on the channel send.
	g := buildGraph(t, []*plan.Project{
		{ID: "greedy", Name: "Greedy", Duration: 2, NumResources: 5},
	})
	inst := buildInstance(g)

	done := make(chan error, 1)
	go func() {
		_, err := runRestarts(context.Background(), inst, 1, computeTails(inst),
			Options{Restarts: 64, Seed: 1, Parallelism: 2})
		done <- err
	}()

	select {
	case err := <-done:
		var inv *InvariantError
		if !errors.As(err, &inv) {
			t.Fatalf("expected invariant error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runRestarts did not return after worker failure")
	}
}

func TestSchedule_RestartsNeverWorsen(t *testing.T) {
	g := chainAndFanGraph(t)

	baseline := mustSchedule(t, g, 3, Options{})
	searched := mustSchedule(t, g, 3, Options{Restarts: 32, Seed: 3})
	if searched.Makespan() > baseline.Makespan() {
		t.Errorf("search worsened makespan: %d > %d", searched.Makespan(), baseline.Makespan())
	}
	if searched.Stats().Attempts != 33 {
		t.Errorf("expected 33 attempts, got %d", searched.Stats().Attempts)
	}
}

func TestSchedule_CancelledContextKeepsBaseline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := chainAndFanGraph(t)
	res, err := Schedule(ctx, g, 3, Options{Restarts: 100, Seed: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The baseline pass always completes; only restarts are skipped.
	if res.Stats().Attempts != 1 {
		t.Errorf("expected only the baseline attempt, got %d", res.Stats().Attempts)
	}
}

func TestSchedule_CriticalChain(t *testing.T) {
	g := buildGraph(t, []*plan.Project{
		{ID: "a", Name: "A", Duration: 3, NumResources: 1},
		{
			ID: "b", Name: "B", Duration: 4, NumResources: 1,
			Dependencies: []plan.Dependency{{ProjectID: "a", LagTime: 1}},
		},
		{ID: "c", Name: "C", Duration: 2, NumResources: 1},
	})

	res := mustSchedule(t, g, 3, Options{})
	chain := res.CriticalChain()
	if len(chain) != 2 || chain[0] != "a" || chain[1] != "b" {
		t.Errorf("expected chain [a b], got %v", chain)
	}
	// Chain length 3+1+4=8 bounds the makespan from below.
	if res.Makespan() < 8 {
		t.Errorf("makespan %d below critical chain bound", res.Makespan())
	}
}

// TestSchedule_RandomGraphsHoldInvariants is the property check: any valid
// graph with sufficient capacity yields a schedule satisfying both the
// precedence and the resource invariant.
func TestSchedule_RandomGraphsHoldInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(99))

	for trial := 0; trial < 50; trial++ {
		n := 2 + rng.Intn(12)
		projects := make([]*plan.Project, n)
		maxDemand := 1
		for i := 0; i < n; i++ {
			p := &plan.Project{
				ID:           fmt.Sprintf("p%02d", i),
				Name:         fmt.Sprintf("Project %d", i),
				Duration:     rng.Intn(6),
				NumResources: rng.Intn(5),
			}
			if p.Duration > 0 && p.NumResources > maxDemand {
				maxDemand = p.NumResources
			}
			// Edges only toward lower indices keep the graph acyclic.
			for j := 0; j < i; j++ {
				if rng.Intn(4) == 0 {
					p.Dependencies = append(p.Dependencies, plan.Dependency{
						ProjectID: fmt.Sprintf("p%02d", j),
						LagTime:   rng.Intn(3),
					})
				}
			}
			projects[i] = p
		}

		capacity := maxDemand + rng.Intn(3)
		g := buildGraph(t, projects)
		res := mustSchedule(t, g, capacity, Options{Restarts: 4, Seed: int64(trial)})

		assertInvariants(t, g, res, capacity)
	}
}

func assertInvariants(t *testing.T, g *plan.Graph, res *Result, capacity int) {
	t.Helper()

	for _, p := range g.Projects() {
		a, ok := res.Assignment(p.ID)
		if !ok {
			t.Fatalf("missing assignment for %s", p.ID)
		}
		if a.Start < 0 {
			t.Errorf("project %s starts at %d", p.ID, a.Start)
		}
		if a.End != a.Start+p.Duration {
			t.Errorf("project %s end mismatch: %d != %d+%d", p.ID, a.End, a.Start, p.Duration)
		}
		for _, dep := range p.Dependencies {
			d, _ := res.Assignment(dep.ProjectID)
			if a.Start < d.End+dep.LagTime {
				t.Errorf("precedence violated: %s starts %d before %s end %d + lag %d",
					p.ID, a.Start, dep.ProjectID, d.End, dep.LagTime)
			}
		}
	}

	for t0, used := range res.Utilization() {
		if used > capacity {
			t.Errorf("resource invariant violated at t=%d: %d > %d", t0, used, capacity)
		}
	}
}

// chainAndFanGraph builds a small instance with enough contention that
// restarts have room to explore.
func chainAndFanGraph(t *testing.T) *plan.Graph {
	t.Helper()
	return buildGraph(t, []*plan.Project{
		{ID: "prep", Name: "Prep", Duration: 2, NumResources: 2},
		{ID: "left", Name: "Left", Duration: 4, NumResources: 2,
			Dependencies: []plan.Dependency{{ProjectID: "prep"}}},
		{ID: "mid", Name: "Mid", Duration: 3, NumResources: 1,
			Dependencies: []plan.Dependency{{ProjectID: "prep", LagTime: 1}}},
		{ID: "right", Name: "Right", Duration: 5, NumResources: 3},
		{ID: "tail", Name: "Tail", Duration: 2, NumResources: 2,
			Dependencies: []plan.Dependency{
				{ProjectID: "left"},
				{ProjectID: "mid"},
			}},
	})
}
