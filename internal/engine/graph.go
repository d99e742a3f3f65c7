package engine

import (
	"fmt"
	"slices"
)

// Stage is one reconciliation step of a deployment.
type Stage struct {
	// Name is unique within a deployment, e.g. "api/function".
	Name string
	// DependsOn names the stages whose results this stage reads.
	DependsOn  []string
	Reconciler Reconciler
}

// Kind returns the reconciler kind, or "" when none is set.
func (s *Stage) Kind() string {
	if s.Reconciler == nil {
		return ""
	}
	return s.Reconciler.Kind()
}

// DAG orders stages so every stage runs after its dependencies. Ties keep
// declaration order, which makes the execution order and the logs stable.
type DAG struct {
	nodes map[string]*dagNode
	order []string
}

type dagNode struct {
	name     string
	index    int
	edges    []string // stages this node depends on
	revEdges []string // stages that depend on this node
}

// BuildDAG constructs the stage graph. Unknown dependencies and cycles are
// programming errors in the deployment layout and are reported as such.
func BuildDAG(stages []*Stage) (*DAG, error) {
	dag := &DAG{nodes: make(map[string]*dagNode)}

	for i, s := range stages {
		if _, dup := dag.nodes[s.Name]; dup {
			return nil, fmt.Errorf("duplicate stage %q", s.Name)
		}
		dag.nodes[s.Name] = &dagNode{name: s.Name, index: i}
	}

	for _, s := range stages {
		node := dag.nodes[s.Name]
		for _, dep := range s.DependsOn {
			if _, ok := dag.nodes[dep]; !ok {
				return nil, fmt.Errorf("stage %q depends on unknown stage %q", s.Name, dep)
			}
			node.edges = append(node.edges, dep)
			dag.nodes[dep].revEdges = append(dag.nodes[dep].revEdges, s.Name)
		}
	}

	order, err := dag.topoSort(stages)
	if err != nil {
		return nil, err
	}
	dag.order = order
	return dag, nil
}

// Order returns stage names in execution order.
func (d *DAG) Order() []string {
	return d.order
}

// Dependencies returns the direct dependencies of a stage.
func (d *DAG) Dependencies(name string) []string {
	if node, ok := d.nodes[name]; ok {
		return node.edges
	}
	return nil
}

// TransitiveDependents returns every stage that depends on name, directly
// or not.
func (d *DAG) TransitiveDependents(name string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		node, ok := d.nodes[n]
		if !ok {
			return
		}
		for _, dep := range node.revEdges {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(name)

	var out []string
	for _, n := range d.order {
		if seen[n] {
			out = append(out, n)
		}
	}
	return out
}

// topoSort performs Kahn's algorithm, always picking the ready stage that
// was declared first.
func (d *DAG) topoSort(stages []*Stage) ([]string, error) {
	inDegree := make(map[string]int, len(d.nodes))
	for name, node := range d.nodes {
		inDegree[name] = len(node.edges)
	}

	var ready []*dagNode
	for _, s := range stages {
		if inDegree[s.Name] == 0 {
			ready = append(ready, d.nodes[s.Name])
		}
	}

	var sorted []string
	for len(ready) > 0 {
		slices.SortFunc(ready, func(a, b *dagNode) int { return a.index - b.index })
		node := ready[0]
		ready = ready[1:]
		sorted = append(sorted, node.name)

		for _, dependent := range node.revEdges {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, d.nodes[dependent])
			}
		}
	}

	if len(sorted) != len(d.nodes) {
		return nil, fmt.Errorf("dependency cycle detected in stage graph")
	}
	return sorted, nil
}
