// Package plan provides the validated task-graph model for resource-constrained
// project scheduling.
package plan

import (
	"fmt"
	"sort"
)

// Dependency is a directed precedence edge owned by the dependent project.
// The dependent project may not start earlier than LagTime units after the
// project identified by ProjectID finishes (finish-to-start semantics).
type Dependency struct {
	// ProjectID is the ID of the project this edge depends on.
	ProjectID string `json:"project_id" yaml:"project_id" mapstructure:"project_id"`

	// LagTime is the minimum gap between the dependency's finish and the
	// dependent's start. Negative values (lead time) are rejected unless the
	// graph is built with AllowNegativeLag.
	LagTime int `json:"lag_time" yaml:"lag_time" mapstructure:"lag_time"`
}

// Project is a unit of work competing for shared resource capacity.
type Project struct {
	// ID is the unique identifier for the project.
	ID string `json:"id" yaml:"id" mapstructure:"id"`

	// Name is a human-readable name.
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// NumResources is the number of resource units the project occupies for
	// its entire duration.
	NumResources int `json:"num_resources" yaml:"num_resources" mapstructure:"num_resources"`

	// Duration is the number of discrete time units the project runs.
	// A zero-duration project occupies no time instant.
	Duration int `json:"duration" yaml:"duration" mapstructure:"duration"`

	// Dependencies lists the projects that must finish before this one starts.
	Dependencies []Dependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty" mapstructure:"dependencies"`
}

// Clone creates a deep copy of the project.
func (p *Project) Clone() *Project {
	cloned := &Project{
		ID:           p.ID,
		Name:         p.Name,
		NumResources: p.NumResources,
		Duration:     p.Duration,
	}
	if p.Dependencies != nil {
		cloned.Dependencies = make([]Dependency, len(p.Dependencies))
		copy(cloned.Dependencies, p.Dependencies)
	}
	return cloned
}

// DependsOn checks whether the project has an edge to the given project ID.
func (p *Project) DependsOn(id string) bool {
	for _, dep := range p.Dependencies {
		if dep.ProjectID == id {
			return true
		}
	}
	return false
}

// String returns a string representation of the project.
func (p *Project) String() string {
	return fmt.Sprintf("Project{ID: %s, Name: %s, Resources: %d, Duration: %d, Deps: %d}",
		p.ID, p.Name, p.NumResources, p.Duration, len(p.Dependencies))
}

// Plan is the raw input record: a resource capacity plus a set of projects
// keyed by ID, as produced by an external parser.
type Plan struct {
	// MaxResourcesInParallel is the resource capacity shared by all projects.
	MaxResourcesInParallel int `json:"max_resources_in_parallel" yaml:"max_resources_in_parallel" mapstructure:"max_resources_in_parallel"`

	// Projects maps project ID to its definition. The ID field inside each
	// record is optional in the input; the map key is authoritative.
	Projects map[string]Project `json:"projects" yaml:"projects" mapstructure:"projects"`
}

// ProjectIDs returns all project IDs in lexicographic order.
func (pl *Plan) ProjectIDs() []string {
	ids := make([]string, 0, len(pl.Projects))
	for id := range pl.Projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Graph builds and validates a Graph from the plan. The distinction from
// assembling a graph project-by-project is only ergonomic; validation is
// identical.
func (pl *Plan) Graph(opts ...GraphOption) (*Graph, error) {
	g := NewGraph(opts...)
	for _, id := range pl.ProjectIDs() {
		p := pl.Projects[id]
		p.ID = id
		if err := g.AddProject(&p); err != nil {
			return nil, err
		}
	}
	return g.Compile()
}
