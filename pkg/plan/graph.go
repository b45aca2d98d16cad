package plan

import (
	"fmt"
	"sort"
)

// Graph is a validated, immutable dependency graph of projects. Build it with
// AddProject calls followed by Compile, or from a Plan via Plan.Graph. After
// Compile succeeds the graph never changes; it is safe for concurrent reads.
type Graph struct {
	projects         map[string]*Project
	allowNegativeLag bool
	compiled         bool

	// Index arena, built by Compile. Projects are addressed by their position
	// in ids (lexicographic), so traversals work on int slices instead of
	// chasing map keys.
	ids        []string
	index      map[string]int
	deps       [][]int // deps[i] = indices project i depends on
	dependents [][]int // dependents[i] = indices that depend on project i
	order      []string
}

// GraphOption configures graph construction.
type GraphOption func(*Graph)

// WithNegativeLag permits negative lag times (lead time: the dependent may
// overlap the tail of its dependency). Off by default.
func WithNegativeLag() GraphOption {
	return func(g *Graph) {
		g.allowNegativeLag = true
	}
}

// NewGraph creates an empty graph.
func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{
		projects: make(map[string]*Project),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddProject adds a project to the graph.
// Returns DuplicateIDError if a project with the same ID already exists.
func (g *Graph) AddProject(p *Project) error {
	if p == nil {
		return fmt.Errorf("project cannot be nil")
	}
	if g.compiled {
		return fmt.Errorf("graph is compiled and immutable")
	}
	if p.ID == "" {
		return fmt.Errorf("project ID cannot be empty")
	}
	if _, exists := g.projects[p.ID]; exists {
		return &DuplicateIDError{ID: p.ID}
	}

	cloned := p.Clone()
	for _, dep := range cloned.Dependencies {
		if dep.ProjectID == cloned.ID {
			return &SelfDependencyError{ID: cloned.ID}
		}
	}

	g.projects[cloned.ID] = cloned
	return nil
}

// Compile validates the graph and freezes it. Checks run in order,
// short-circuiting on the first failure: unresolved dependency references,
// field domains, then acyclicity. Returns the graph itself on success so a
// compiled graph can be threaded directly into the scheduler.
func (g *Graph) Compile() (*Graph, error) {
	if g.compiled {
		return g, nil
	}

	g.ids = make([]string, 0, len(g.projects))
	for id := range g.projects {
		g.ids = append(g.ids, id)
	}
	sort.Strings(g.ids)

	g.index = make(map[string]int, len(g.ids))
	for i, id := range g.ids {
		g.index[id] = i
	}

	// Unresolved references.
	for _, id := range g.ids {
		for _, dep := range g.projects[id].Dependencies {
			if _, ok := g.projects[dep.ProjectID]; !ok {
				return nil, &UnknownDependencyError{ID: id, DependsOn: dep.ProjectID}
			}
		}
	}

	// Field domains.
	for _, id := range g.ids {
		p := g.projects[id]
		if p.NumResources < 0 {
			return nil, &InvalidFieldError{ID: id, Field: "num_resources", Value: p.NumResources}
		}
		if p.Duration < 0 {
			return nil, &InvalidFieldError{ID: id, Field: "duration", Value: p.Duration}
		}
		for _, dep := range p.Dependencies {
			if dep.LagTime < 0 && !g.allowNegativeLag {
				return nil, &InvalidFieldError{ID: id, Field: "lag_time", Value: dep.LagTime}
			}
		}
	}

	// Adjacency over indices.
	g.deps = make([][]int, len(g.ids))
	g.dependents = make([][]int, len(g.ids))
	for i, id := range g.ids {
		for _, dep := range g.projects[id].Dependencies {
			j := g.index[dep.ProjectID]
			g.deps[i] = append(g.deps[i], j)
			g.dependents[j] = append(g.dependents[j], i)
		}
	}
	for i := range g.deps {
		sort.Ints(g.deps[i])
		sort.Ints(g.dependents[i])
	}

	if cycle := g.detectCycle(); cycle != nil {
		return nil, cycle
	}

	g.order = g.topoSort()
	g.compiled = true
	return g, nil
}

// Three-color DFS states.
const (
	white = iota // not visited
	gray         // on the current DFS path
	black        // finished
)

// detectCycle runs an iterative three-color DFS over the index arena.
// A dependency edge back to a gray node is a "starts after" chain that loops
// onto itself, which no assignment of start times can satisfy.
func (g *Graph) detectCycle() *CyclicDependencyError {
	n := len(g.ids)
	color := make([]int, n)

	// frame is one level of the explicit DFS stack: the node and the offset
	// of the next dependency edge to follow.
	type frame struct {
		node int
		next int
	}

	for root := 0; root < n; root++ {
		if color[root] != white {
			continue
		}
		stack := []frame{{node: root}}
		color[root] = gray

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(g.deps[top.node]) {
				child := g.deps[top.node][top.next]
				top.next++
				switch color[child] {
				case white:
					color[child] = gray
					stack = append(stack, frame{node: child})
				case gray:
					// Back edge: the stack from child's frame down to the
					// top is the cycle.
					start := 0
					for i, f := range stack {
						if f.node == child {
							start = i
							break
						}
					}
					path := make([]string, 0, len(stack)-start+1)
					for _, f := range stack[start:] {
						path = append(path, g.ids[f.node])
					}
					path = append(path, g.ids[child])
					return &CyclicDependencyError{Path: path}
				}
			} else {
				color[top.node] = black
				stack = stack[:len(stack)-1]
			}
		}
	}
	return nil
}

// topoSort runs Kahn's algorithm with a lexicographic ready queue. Because
// ids is sorted, index order is ID order, so the smallest ready index is the
// lexicographically smallest ready project. Only called on acyclic graphs.
func (g *Graph) topoSort() []string {
	n := len(g.ids)
	inDegree := make([]int, n)
	for i := range g.deps {
		inDegree[i] = len(g.deps[i])
	}

	var ready []int
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]string, 0, n)
	for len(ready) > 0 {
		sort.Ints(ready)
		node := ready[0]
		ready = ready[1:]
		order = append(order, g.ids[node])

		for _, dep := range g.dependents[node] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	return order
}

// Project retrieves a project by ID.
func (g *Graph) Project(id string) (*Project, bool) {
	p, ok := g.projects[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Projects returns all projects sorted by ID.
func (g *Graph) Projects() []*Project {
	projects := make([]*Project, 0, len(g.projects))
	for _, p := range g.projects {
		projects = append(projects, p.Clone())
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].ID < projects[j].ID
	})
	return projects
}

// Len returns the number of projects in the graph.
func (g *Graph) Len() int {
	return len(g.projects)
}

// IsEmpty returns true if the graph has no projects.
func (g *Graph) IsEmpty() bool {
	return len(g.projects) == 0
}

// Compiled reports whether Compile has succeeded on this graph.
func (g *Graph) Compiled() bool {
	return g.compiled
}

// AllowsNegativeLag reports whether the graph accepts negative lag times.
func (g *Graph) AllowsNegativeLag() bool {
	return g.allowNegativeLag
}

// TopologicalOrder returns the deterministic topological order of project IDs
// (Kahn with lexicographic tie-break). Empty on an uncompiled graph.
func (g *Graph) TopologicalOrder() []string {
	order := make([]string, len(g.order))
	copy(order, g.order)
	return order
}

// MaxDemand returns the project with the largest NumResources and its demand.
// Ties resolve to the lexicographically smallest ID. Returns ("", 0) on an
// empty graph.
func (g *Graph) MaxDemand() (string, int) {
	maxID, maxDemand := "", 0
	for _, id := range g.ids {
		if p := g.projects[id]; p.NumResources > maxDemand {
			maxID, maxDemand = id, p.NumResources
		}
	}
	return maxID, maxDemand
}

// Horizon returns an upper bound on any reasonable schedule length: the sum
// of all durations plus all positive lags.
func (g *Graph) Horizon() int {
	horizon := 0
	for _, p := range g.projects {
		horizon += p.Duration
		for _, dep := range p.Dependencies {
			if dep.LagTime > 0 {
				horizon += dep.LagTime
			}
		}
	}
	return horizon
}

// Dependents returns the IDs of projects that depend on the given project,
// sorted. Returns nil for unknown IDs or uncompiled graphs.
func (g *Graph) Dependents(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.dependents[i]))
	for _, j := range g.dependents[i] {
		out = append(out, g.ids[j])
	}
	return out
}
