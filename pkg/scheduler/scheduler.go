// Package scheduler implements resource-constrained project scheduling:
// priority-based list scheduling for feasibility, plus a bounded randomized
// restart search that keeps the best makespan found.
package scheduler

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/ganttforge/ganttforge/pkg/plan"
)

// Options bounds the search effort of a single Schedule invocation.
type Options struct {
	// Restarts is the number of randomized phase-2 attempts beyond the
	// deterministic baseline pass. Zero means baseline only.
	Restarts int

	// Seed drives the restart randomization. The same graph, capacity, and
	// options always produce the same schedule.
	Seed int64

	// Parallelism is the number of restarts simulated concurrently. Values
	// below 2 run sequentially. Each restart owns its simulation state, so
	// the outcome is independent of interleaving.
	Parallelism int
}

// DefaultOptions returns the options used when none are supplied.
func DefaultOptions() Options {
	return Options{Restarts: 32, Seed: 1}
}

// edge is one precedence relation viewed from either endpoint.
type edge struct {
	to  int
	lag int
}

// instance is the compact index-addressed form of a graph that simulations
// run against. Indices follow lexicographic ID order.
type instance struct {
	ids        []string
	names      []string
	duration   []int
	demand     []int
	deps       [][]edge
	dependents [][]edge
	order      []int // topological order
}

func buildInstance(g *plan.Graph) *instance {
	projects := g.Projects()
	n := len(projects)

	inst := &instance{
		ids:        make([]string, n),
		names:      make([]string, n),
		duration:   make([]int, n),
		demand:     make([]int, n),
		deps:       make([][]edge, n),
		dependents: make([][]edge, n),
		order:      make([]int, 0, n),
	}

	index := make(map[string]int, n)
	for i, p := range projects {
		inst.ids[i] = p.ID
		inst.names[i] = p.Name
		inst.duration[i] = p.Duration
		inst.demand[i] = p.NumResources
		index[p.ID] = i
	}
	for i, p := range projects {
		for _, dep := range p.Dependencies {
			j := index[dep.ProjectID]
			inst.deps[i] = append(inst.deps[i], edge{to: j, lag: dep.LagTime})
			inst.dependents[j] = append(inst.dependents[j], edge{to: i, lag: dep.LagTime})
		}
	}
	for _, id := range g.TopologicalOrder() {
		inst.order = append(inst.order, index[id])
	}
	return inst
}

// Schedule assigns a start time to every project in the graph such that all
// precedence and resource constraints hold, approximately minimizing
// makespan. The graph is compiled if it is not already; validation errors
// propagate unchanged. The engine keeps no state across calls.
func Schedule(ctx context.Context, g *plan.Graph, capacity int, opts Options) (*Result, error) {
	if _, err := g.Compile(); err != nil {
		return nil, err
	}
	if capacity < 0 {
		return nil, fmt.Errorf("capacity cannot be negative: %d", capacity)
	}

	// A project demanding more than the capacity can never run. Report it
	// up front instead of letting the search fail exhaustively.
	// Zero-duration projects occupy no instant and are exempt.
	for _, p := range g.Projects() {
		if p.Duration > 0 && p.NumResources > capacity {
			return nil, &InfeasibleError{ID: p.ID, Demand: p.NumResources, Capacity: capacity}
		}
	}

	inst := buildInstance(g)
	tails := computeTails(inst)
	chain := criticalChain(inst, tails)

	if len(inst.ids) == 0 {
		return newResult(inst, nil, capacity, chain, Stats{Attempts: 1, Seed: opts.Seed}), nil
	}

	// Phase 1: deterministic baseline driven by critical-chain tails.
	best, err := simulate(inst, capacity, tails)
	if err != nil {
		return nil, err
	}
	bestSpan := makespan(inst, best)
	bestAttempt := 0
	attempts := 1

	// Phase 2: bounded randomized restarts; ties keep the earliest attempt
	// so results stay deterministic under any Parallelism.
	restarts, err := runRestarts(ctx, inst, capacity, tails, opts)
	if err != nil {
		return nil, err
	}
	for _, r := range restarts {
		if r.starts == nil {
			continue // cancelled before this restart began
		}
		attempts++
		// Strict improvement only: ties keep the earliest attempt.
		if r.span < bestSpan {
			best, bestSpan, bestAttempt = r.starts, r.span, r.attempt
		}
	}

	if err := verify(inst, capacity, best); err != nil {
		return nil, err
	}

	return newResult(inst, best, capacity, chain, Stats{
		Attempts:    attempts,
		BestAttempt: bestAttempt,
		Seed:        opts.Seed,
	}), nil
}

// restartResult is one phase-2 attempt. starts is nil when the attempt was
// skipped due to cancellation.
type restartResult struct {
	attempt int
	starts  []int
	span    int
}

func runRestarts(ctx context.Context, inst *instance, capacity int, tails []int, opts Options) ([]restartResult, error) {
	if opts.Restarts <= 0 {
		return nil, nil
	}

	results := make([]restartResult, opts.Restarts)
	run := func(attempt int) error {
		// Each restart derives its RNG from the seed and its own index, so
		// attempt k is the same schedule whether it runs first or last.
		rng := rand.New(rand.NewSource(opts.Seed + int64(attempt)))
		starts, err := simulate(inst, capacity, jitterTails(tails, rng))
		if err != nil {
			return err
		}
		results[attempt-1] = restartResult{
			attempt: attempt,
			starts:  starts,
			span:    makespan(inst, starts),
		}
		return nil
	}

	if opts.Parallelism < 2 {
		for attempt := 1; attempt <= opts.Restarts; attempt++ {
			// Cancellation is observed between restarts only, so every
			// completed attempt is well-defined.
			if ctx.Err() != nil {
				break
			}
			if err := run(attempt); err != nil {
				return nil, err
			}
		}
		return results, nil
	}

	workers := opts.Parallelism
	if workers > opts.Restarts {
		workers = opts.Restarts
	}
	attemptCh := make(chan int)
	errCh := make(chan error, workers)
	failed := make(chan struct{})
	var failOnce sync.Once
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempt := range attemptCh {
				if err := run(attempt); err != nil {
					errCh <- err
					failOnce.Do(func() { close(failed) })
					return
				}
			}
		}()
	}
feed:
	for attempt := 1; attempt <= opts.Restarts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		// A failed worker stops consuming; without the failed arm the
		// send would block forever once every worker has exited.
		select {
		case attemptCh <- attempt:
		case <-failed:
			break feed
		}
	}
	close(attemptCh)
	wg.Wait()
	select {
	case err := <-errCh:
		return nil, err
	default:
	}
	return results, nil
}

// jitterTails perturbs the priority tails so each restart explores a
// different ordering while staying biased toward long chains.
func jitterTails(tails []int, rng *rand.Rand) []int {
	max := 0
	for _, t := range tails {
		if t > max {
			max = t
		}
	}
	amplitude := max/4 + 1

	jittered := make([]int, len(tails))
	for i, t := range tails {
		jittered[i] = t + rng.Intn(amplitude+1)
	}
	return jittered
}

// simulate runs one event-driven list-scheduling pass: advance time to each
// decision instant and greedily start every ready project that fits, in
// priority order. Started projects are never reconsidered and time only
// moves forward, so the pass always terminates with a feasible schedule.
func simulate(inst *instance, capacity int, prio []int) ([]int, error) {
	n := len(inst.ids)
	starts := make([]int, n)
	ends := make([]int, n)
	started := make([]bool, n)
	remaining := make([]int, n) // unscheduled dependency count
	earliest := make([]int, n)  // precedence-only earliest start, refined as deps start
	for i := 0; i < n; i++ {
		remaining[i] = len(inst.deps[i])
	}

	usedAt := func(t int) int {
		used := 0
		for i := 0; i < n; i++ {
			if started[i] && starts[i] <= t && t < ends[i] {
				used += inst.demand[i]
			}
		}
		return used
	}

	now := 0
	scheduled := 0
	for scheduled < n {
		// Start everything that can start at this instant. Starting a
		// project can ready its dependents (zero durations, negative lag),
		// so repeat until the instant is exhausted.
		for {
			var ready []int
			for i := 0; i < n; i++ {
				if !started[i] && remaining[i] == 0 && earliest[i] <= now {
					ready = append(ready, i)
				}
			}
			sort.Slice(ready, func(a, b int) bool {
				return higherPriority(inst, prio, ready[a], ready[b])
			})

			progressed := false
			for _, i := range ready {
				avail := capacity - usedAt(now)
				// Zero-duration projects occupy no instant and always fit.
				if inst.duration[i] > 0 && inst.demand[i] > avail {
					continue
				}
				started[i] = true
				starts[i] = now
				ends[i] = now + inst.duration[i]
				scheduled++
				progressed = true
				for _, e := range inst.dependents[i] {
					remaining[e.to]--
					if release := ends[i] + e.lag; release > earliest[e.to] {
						earliest[e.to] = release
					}
				}
			}
			if !progressed {
				break
			}
		}
		if scheduled == n {
			break
		}

		// Advance to the next decision point: a resource release or a
		// pending project's precedence becoming satisfiable.
		next := math.MaxInt
		for i := 0; i < n; i++ {
			if started[i] && ends[i] > now && ends[i] < next {
				next = ends[i]
			}
			if !started[i] && remaining[i] == 0 && earliest[i] > now && earliest[i] < next {
				next = earliest[i]
			}
		}
		if next == math.MaxInt {
			// Cannot happen on a validated graph with capacity >= max
			// demand; guard against looping forever on a bug.
			return nil, &InvariantError{Reason: "simulation stalled with unscheduled projects"}
		}
		now = next
	}

	return starts, nil
}

func makespan(inst *instance, starts []int) int {
	span := 0
	for i, s := range starts {
		if end := s + inst.duration[i]; end > span {
			span = end
		}
	}
	return span
}

// verify re-checks both invariants on the chosen schedule before it is
// returned. It is a post-condition, not input validation.
func verify(inst *instance, capacity int, starts []int) error {
	for i, s := range starts {
		if s < 0 {
			return &InvariantError{Reason: fmt.Sprintf("project %s starts at %d", inst.ids[i], s)}
		}
		for _, e := range inst.deps[i] {
			if s < starts[e.to]+inst.duration[e.to]+e.lag {
				return &InvariantError{Reason: fmt.Sprintf(
					"project %s starts at %d before dependency %s finishes (+lag)",
					inst.ids[i], s, inst.ids[e.to])}
			}
		}
	}
	for t := 0; t < makespan(inst, starts); t++ {
		used := 0
		for i, s := range starts {
			if s <= t && t < s+inst.duration[i] {
				used += inst.demand[i]
			}
		}
		if used > capacity {
			return &InvariantError{Reason: fmt.Sprintf(
				"resource use %d exceeds capacity %d at t=%d", used, capacity, t)}
		}
	}
	return nil
}
