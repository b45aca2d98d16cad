package plan

import (
	"fmt"
	"strings"
)

// GraphError is implemented by every validation error, exposing the
// project the problem was found on so callers can point at the input.
type GraphError interface {
	error
	ProjectID() string
}

// DuplicateIDError reports a project id that appears twice in the plan.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate project ID: %s", e.ID)
}

func (e *DuplicateIDError) ProjectID() string { return e.ID }

// UnknownDependencyError reports a dependency naming a project that
// does not exist.
type UnknownDependencyError struct {
	ID        string // the dependent project
	DependsOn string // the unresolved reference
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("project %s depends on unknown project: %s", e.ID, e.DependsOn)
}

func (e *UnknownDependencyError) ProjectID() string { return e.ID }

// InvalidFieldError reports a value outside its allowed domain:
// negative duration, resources, or (unless enabled) negative lag.
type InvalidFieldError struct {
	ID    string
	Field string
	Value int
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("project %s: invalid %s: %d", e.ID, e.Field, e.Value)
}

func (e *InvalidFieldError) ProjectID() string { return e.ID }

// CyclicDependencyError reports a dependency cycle. Path lists the
// participating ids with the first repeated at the end, e.g.
// ["a", "b", "a"].
type CyclicDependencyError struct {
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	if len(e.Path) == 0 {
		return "cyclic dependency detected"
	}
	return fmt.Sprintf("cyclic dependency detected: %s", strings.Join(e.Path, " -> "))
}

// ProjectID returns the first id on the cycle.
func (e *CyclicDependencyError) ProjectID() string {
	if len(e.Path) > 0 {
		return e.Path[0]
	}
	return ""
}

// SelfDependencyError reports a project that depends on itself, the
// one-node cycle worth its own message.
type SelfDependencyError struct {
	ID string
}

func (e *SelfDependencyError) Error() string {
	return fmt.Sprintf("project %s cannot depend on itself", e.ID)
}

func (e *SelfDependencyError) ProjectID() string { return e.ID }
