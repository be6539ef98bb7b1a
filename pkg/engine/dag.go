package engine

import (
	"fmt"
	"sort"
	"strings"
)

// DependencyKind labels an edge of a dependency graph.
type DependencyKind string

const (
	// DependencyEmbeds means the unit embeds the target service.
	DependencyEmbeds DependencyKind = "embeds"

	// DependencyExtends means the unit extends the target profile.
	DependencyExtends DependencyKind = "extends"
)

// Dependency is an edge from a unit to a unit it needs.
type Dependency struct {
	TargetID string
	Kind     DependencyKind
	Pos      Position
}

// Unit is a node of a dependency graph.
type Unit struct {
	ID           string
	Label        string
	Pos          Position
	Dependencies []Dependency
}

// Graph is a dependency graph split into levels. Every unit sits on a
// higher level than all of its dependencies, so walking the levels in
// order starts dependencies first.
type Graph struct {
	Nodes  map[string]*GraphNode `json:"nodes"`
	Edges  []GraphEdge           `json:"edges"`
	Roots  []string              `json:"roots"`
	Levels [][]string            `json:"levels"`
}

// GraphNode is one unit of a Graph.
type GraphNode struct {
	ID           string   `json:"id"`
	Label        string   `json:"label,omitempty"`
	Level        int      `json:"level"`
	Dependencies []string `json:"dependencies,omitempty"`
	Dependents   []string `json:"dependents,omitempty"`
}

// GraphEdge points from a dependency to the unit needing it.
type GraphEdge struct {
	From string         `json:"from"`
	To   string         `json:"to"`
	Kind DependencyKind `json:"kind"`
}

// Depth returns the number of levels.
func (g *Graph) Depth() int {
	return len(g.Levels)
}

// DAGBuilder builds a directed acyclic graph from units.
// It rejects cycles and assigns levels with a topological sort.
type DAGBuilder struct {
	units map[string]*Unit
	order []string

	// adjacencyList maps unit IDs to their dependents
	adjacencyList map[string][]string

	// reverseAdjacencyList maps unit IDs to their dependencies
	reverseAdjacencyList map[string][]string

	inDegree map[string]int
	levels   [][]string
}

// NewDAGBuilder creates a new DAG builder.
func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		units:                make(map[string]*Unit),
		adjacencyList:        make(map[string][]string),
		reverseAdjacencyList: make(map[string][]string),
		inDegree:             make(map[string]int),
	}
}

// BuildGraph validates the dependencies of units, rejects cycles, and
// computes levels. Units within a level are sorted by ID.
func (b *DAGBuilder) BuildGraph(units []Unit) (*Graph, error) {
	if len(units) == 0 {
		return &Graph{
			Nodes:  make(map[string]*GraphNode),
			Edges:  make([]GraphEdge, 0),
			Roots:  make([]string, 0),
			Levels: make([][]string, 0),
		}, nil
	}

	if err := b.initialize(units); err != nil {
		return nil, err
	}
	if err := b.detectCycles(); err != nil {
		return nil, err
	}
	b.computeLevels()

	return b.buildGraph(), nil
}

func (b *DAGBuilder) initialize(units []Unit) error {
	for i := range units {
		unit := &units[i]
		if unit.ID == "" {
			return NewInvariantError("graph unit has empty ID", nil).
				WithSource(unit.Pos).WithCode(ErrCodeValidation)
		}
		if prev, exists := b.units[unit.ID]; exists {
			return NewInvariantError(fmt.Sprintf("duplicate graph unit ID: %s", unit.ID), nil).
				WithSource(unit.Pos).WithRelated(prev.Pos).WithCode(ErrCodeDuplicateUnit)
		}

		b.units[unit.ID] = unit
		b.order = append(b.order, unit.ID)
		b.adjacencyList[unit.ID] = make([]string, 0)
		b.reverseAdjacencyList[unit.ID] = make([]string, 0)
		b.inDegree[unit.ID] = 0
	}

	for _, id := range b.order {
		unit := b.units[id]
		for _, dep := range unit.Dependencies {
			if _, exists := b.units[dep.TargetID]; !exists {
				return NewLookupError(
					fmt.Sprintf("%s depends on unknown unit %s", unit.ID, dep.TargetID), nil,
				).WithSource(dep.Pos).WithCode(ErrCodeUnknownDependency)
			}

			// The dependency comes before the unit.
			b.adjacencyList[dep.TargetID] = append(b.adjacencyList[dep.TargetID], unit.ID)
			b.reverseAdjacencyList[unit.ID] = append(b.reverseAdjacencyList[unit.ID], dep.TargetID)
			b.inDegree[unit.ID]++
		}
	}

	return nil
}

// detectCycles reports the first cycle found by depth-first search.
func (b *DAGBuilder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, id := range b.order {
		if visited[id] {
			continue
		}
		if cycle := b.detectCyclesUtil(id, visited, recStack, nil); cycle != nil {
			return NewPolicyError(fmt.Sprintf("dependency cycle: %s", formatCycle(cycle)), nil).
				WithSource(b.units[cycle[0]].Pos).
				WithCode(ErrCodeDependencyCycle).
				WithDetail("cycle", cycle)
		}
	}
	return nil
}

func (b *DAGBuilder) detectCyclesUtil(
	nodeID string,
	visited map[string]bool,
	recStack map[string]bool,
	path []string,
) []string {
	visited[nodeID] = true
	recStack[nodeID] = true
	path = append(path, nodeID)

	for _, dependent := range b.adjacencyList[nodeID] {
		if !visited[dependent] {
			if cycle := b.detectCyclesUtil(dependent, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dependent] {
			for i, id := range path {
				if id == dependent {
					cycle := append([]string{}, path[i:]...)
					return append(cycle, dependent)
				}
			}
		}
	}

	recStack[nodeID] = false
	return nil
}

// computeLevels runs Kahn's algorithm level by level. It must only run
// on an acyclic graph.
func (b *DAGBuilder) computeLevels() {
	inDegree := make(map[string]int, len(b.inDegree))
	for id, degree := range b.inDegree {
		inDegree[id] = degree
	}

	var current []string
	for _, id := range b.order {
		if inDegree[id] == 0 {
			current = append(current, id)
		}
	}

	for len(current) > 0 {
		sort.Strings(current)
		b.levels = append(b.levels, current)

		var next []string
		for _, id := range current {
			for _, dependent := range b.adjacencyList[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}
}

func (b *DAGBuilder) buildGraph() *Graph {
	graph := &Graph{
		Nodes:  make(map[string]*GraphNode, len(b.units)),
		Edges:  make([]GraphEdge, 0),
		Roots:  make([]string, 0),
		Levels: b.levels,
	}

	for level, ids := range b.levels {
		for _, id := range ids {
			graph.Nodes[id] = &GraphNode{
				ID:           id,
				Label:        b.units[id].Label,
				Level:        level,
				Dependencies: b.reverseAdjacencyList[id],
				Dependents:   b.adjacencyList[id],
			}
			if level == 0 {
				graph.Roots = append(graph.Roots, id)
			}
		}
	}

	for _, id := range b.order {
		for _, dep := range b.units[id].Dependencies {
			graph.Edges = append(graph.Edges, GraphEdge{From: dep.TargetID, To: id, Kind: dep.Kind})
		}
	}

	return graph
}

// GetLevels returns the computed levels.
func (b *DAGBuilder) GetLevels() [][]string {
	return b.levels
}

// ToDOT renders the graph in Graphviz DOT format, one cluster per level.
func (g *Graph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Embeddings {\n")
	sb.WriteString("  rankdir=BT;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range g.Levels {
		fmt.Fprintf(&sb, "  subgraph cluster_level_%d {\n", level)
		fmt.Fprintf(&sb, "    label=\"Level %d\";\n", level)
		sb.WriteString("    style=dashed;\n")
		for _, id := range ids {
			label := id
			if l := g.Nodes[id].Label; l != "" {
				label = l
			}
			fmt.Fprintf(&sb, "    %q [label=%q];\n", id, label)
		}
		sb.WriteString("  }\n\n")
	}

	for _, edge := range g.Edges {
		fmt.Fprintf(&sb, "  %q -> %q [%s];\n", edge.From, edge.To, edgeStyle(edge.Kind))
	}

	sb.WriteString("}\n")
	return sb.String()
}

func formatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}

func edgeStyle(kind DependencyKind) string {
	switch kind {
	case DependencyExtends:
		return "style=dashed, color=blue, label=\"extends\""
	default:
		return "style=solid, color=black, label=\"embeds\""
	}
}
