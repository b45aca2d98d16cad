package scheduler

// computeTails returns, for each project, the length of the longest
// finish-to-start chain (durations plus lags) that begins with it. The tail
// is a lower bound on the time between the project's start and the end of the
// schedule, so projects with long tails are started first to avoid delaying
// downstream work.
func computeTails(inst *instance) []int {
	tails := make([]int, len(inst.ids))
	// Reverse topological order: dependents are finalized before their
	// dependencies.
	for i := len(inst.order) - 1; i >= 0; i-- {
		node := inst.order[i]
		best := 0
		for _, e := range inst.dependents[node] {
			if chain := e.lag + tails[e.to]; chain > best {
				best = chain
			}
		}
		tails[node] = inst.duration[node] + best
	}
	return tails
}

// criticalChain reconstructs one longest chain from the tails: the sequence
// of project IDs whose cumulative duration+lag equals the makespan lower
// bound. Ties resolve to the lexicographically smallest ID (instance indices
// are in ID order).
func criticalChain(inst *instance, tails []int) []string {
	if len(inst.ids) == 0 {
		return nil
	}

	start, max := 0, tails[0]
	for i := 1; i < len(tails); i++ {
		if tails[i] > max {
			start, max = i, tails[i]
		}
	}

	chain := []string{inst.ids[start]}
	node := start
	for {
		want := tails[node] - inst.duration[node]
		next := -1
		for _, e := range inst.dependents[node] {
			if e.lag+tails[e.to] == want && (next == -1 || e.to < next) {
				next = e.to
			}
		}
		if next == -1 {
			break
		}
		chain = append(chain, inst.ids[next])
		node = next
	}
	return chain
}

// higherPriority orders ready projects for list scheduling: longer remaining
// chain first, then larger resource demand, then smaller ID. The final ID
// tie-break makes every simulation deterministic.
func higherPriority(inst *instance, tails []int, a, b int) bool {
	if tails[a] != tails[b] {
		return tails[a] > tails[b]
	}
	if inst.demand[a] != inst.demand[b] {
		return inst.demand[a] > inst.demand[b]
	}
	return a < b
}
