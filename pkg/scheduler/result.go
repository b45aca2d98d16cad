package scheduler

import "encoding/json"

// Assignment is one project's placement on the timeline. End is always
// Start + duration.
type Assignment struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Start        int    `json:"start"`
	End          int    `json:"end"`
	NumResources int    `json:"num_resources"`
}

// Stats describes the search effort behind a result.
type Stats struct {
	// Attempts is the number of completed simulations (baseline included).
	Attempts int `json:"attempts"`
	// BestAttempt is the attempt that produced the returned schedule;
	// 0 is the deterministic baseline.
	BestAttempt int `json:"best_attempt"`
	// Seed is the seed the search ran with.
	Seed int64 `json:"seed"`
}

// Result is an immutable schedule: per-project start/end times plus derived
// metrics. It is safe to share across goroutines for reading; utilization is
// computed on demand rather than stored.
type Result struct {
	assignments   []Assignment // sorted by ID
	byID          map[string]int
	makespan      int
	capacity      int
	criticalChain []string
	stats         Stats
}

func newResult(inst *instance, starts []int, capacity int, chain []string, stats Stats) *Result {
	r := &Result{
		assignments:   make([]Assignment, len(inst.ids)),
		byID:          make(map[string]int, len(inst.ids)),
		capacity:      capacity,
		criticalChain: chain,
		stats:         stats,
	}
	for i, id := range inst.ids {
		start := 0
		if starts != nil {
			start = starts[i]
		}
		end := start + inst.duration[i]
		r.assignments[i] = Assignment{
			ID:           id,
			Name:         inst.names[i],
			Start:        start,
			End:          end,
			NumResources: inst.demand[i],
		}
		r.byID[id] = i
		if end > r.makespan {
			r.makespan = end
		}
	}
	return r
}

// Makespan returns the latest end time, or 0 for an empty schedule.
func (r *Result) Makespan() int {
	return r.makespan
}

// Capacity returns the resource capacity the schedule was computed for.
func (r *Result) Capacity() int {
	return r.capacity
}

// Len returns the number of scheduled projects.
func (r *Result) Len() int {
	return len(r.assignments)
}

// Assignments returns all assignments sorted by project ID.
func (r *Result) Assignments() []Assignment {
	out := make([]Assignment, len(r.assignments))
	copy(out, r.assignments)
	return out
}

// Assignment returns the placement of a single project.
func (r *Result) Assignment(id string) (Assignment, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Assignment{}, false
	}
	return r.assignments[i], true
}

// UtilizationAt returns the resource units in use at time instant t. A
// project is active at t when start <= t < end, so zero-duration projects
// never contribute.
func (r *Result) UtilizationAt(t int) int {
	used := 0
	for _, a := range r.assignments {
		if a.Start <= t && t < a.End {
			used += a.NumResources
		}
	}
	return used
}

// Utilization returns the per-instant resource profile over [0, makespan).
func (r *Result) Utilization() []int {
	profile := make([]int, r.makespan)
	for _, a := range r.assignments {
		for t := a.Start; t < a.End; t++ {
			profile[t] += a.NumResources
		}
	}
	return profile
}

// PeakUtilization returns the maximum of the utilization profile.
func (r *Result) PeakUtilization() int {
	peak := 0
	for _, u := range r.Utilization() {
		if u > peak {
			peak = u
		}
	}
	return peak
}

// CriticalChain returns the IDs of one longest duration+lag chain, in order.
// Its cumulative length is a lower bound on any makespan.
func (r *Result) CriticalChain() []string {
	out := make([]string, len(r.criticalChain))
	copy(out, r.criticalChain)
	return out
}

// Stats returns the search statistics for the result.
func (r *Result) Stats() Stats {
	return r.stats
}

// resultJSON is the wire form of Result.
type resultJSON struct {
	Assignments   []Assignment `json:"assignments"`
	Makespan      int          `json:"makespan"`
	Capacity      int          `json:"capacity"`
	CriticalChain []string     `json:"critical_chain,omitempty"`
	Stats         Stats        `json:"stats"`
}

// MarshalJSON implements json.Marshaler.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Assignments:   r.assignments,
		Makespan:      r.makespan,
		Capacity:      r.capacity,
		CriticalChain: r.criticalChain,
		Stats:         r.stats,
	})
}

// UnmarshalJSON implements json.Unmarshaler, rebuilding the lookup index.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw resultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.assignments = raw.Assignments
	r.makespan = raw.Makespan
	r.capacity = raw.Capacity
	r.criticalChain = raw.CriticalChain
	r.stats = raw.Stats
	r.byID = make(map[string]int, len(raw.Assignments))
	for i, a := range raw.Assignments {
		r.byID[a.ID] = i
	}
	return nil
}
