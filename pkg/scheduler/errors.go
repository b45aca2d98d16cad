package scheduler

import "fmt"

// InfeasibleError is returned before any search when a single project demands
// more resources than the capacity can ever provide.
type InfeasibleError struct {
	ID       string
	Demand   int
	Capacity int
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("project %s demands %d resources but capacity is %d: no schedule exists",
		e.ID, e.Demand, e.Capacity)
}

// ProjectID returns the project whose demand makes the instance infeasible.
func (e *InfeasibleError) ProjectID() string {
	return e.ID
}

// InvariantError reports a schedule that violates a precedence or resource
// constraint. It is produced only by the defensive post-condition check; a
// returned InvariantError indicates a scheduler bug, not bad input.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("schedule invariant violated: %s", e.Reason)
}
