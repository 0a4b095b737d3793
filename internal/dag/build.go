package dag

import (
	"context"
	"fmt"

	"github.com/vk/elgrid/internal/config"
	"github.com/vk/elgrid/internal/ctxlog"
	"github.com/vk/elgrid/internal/registry"
)

// Build constructs a complete, validated dependency graph from a config model.
func Build(ctx context.Context, model *config.Model, r *registry.Registry, scope *Scope) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.")
	graph := &Graph{
		Nodes:  make(map[string]*Node),
		Groups: make(map[string][]*Node),
		Scope:  scope,
	}

	// First pass: create all nodes, expanding for_each steps.
	if err := createNodes(ctx, model.Grid, graph, r); err != nil {
		return nil, err
	}
	logger.Debug("Build: Node creation complete.", "node_count", len(graph.Nodes))

	// Second pass: link dependencies.
	if err := linkNodes(ctx, graph, r); err != nil {
		return nil, err
	}
	logger.Debug("Build: Node linking complete.")

	if err := graph.detectCycles(); err != nil {
		return nil, fmt.Errorf("error validating dependency graph: %w", err)
	}
	logger.Debug("Build: Cycle detection passed.")

	// Third pass: levels and counters.
	graph.assignLevels()
	for _, node := range graph.Nodes {
		node.resetCounters()
	}

	logger.Debug("Build: Graph construction successful.")
	return graph, nil
}

// detectCycles checks the graph for cycles with a depth-first search over
// dependents, using the classic temporary/permanent marking.
func (g *Graph) detectCycles() error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *Node, path []string) error
	visit = func(n *Node, path []string) error {
		if permanent[n.ID] {
			return nil
		}
		path = append(path, n.ID)
		if temporary[n.ID] {
			return fmt.Errorf("%w involving node '%s': %v", ErrCycle, n.ID, path)
		}
		temporary[n.ID] = true
		for _, id := range sortedKeys(n.Dependents) {
			if err := visit(n.Dependents[id], path); err != nil {
				return err
			}
		}
		delete(temporary, n.ID)
		permanent[n.ID] = true
		return nil
	}

	for _, id := range sortedKeys(g.Nodes) {
		if err := visit(g.Nodes[id], nil); err != nil {
			return err
		}
	}
	return nil
}

// assignLevels sets each node's Level. The graph must be acyclic.
func (g *Graph) assignLevels() {
	memo := make(map[string]int, len(g.Nodes))
	var level func(n *Node) int
	level = func(n *Node) int {
		if l, ok := memo[n.ID]; ok {
			return l
		}
		l := 0
		for _, dep := range n.Deps {
			if dl := level(dep) + 1; dl > l {
				l = dl
			}
		}
		memo[n.ID] = l
		return l
	}
	for _, n := range g.Nodes {
		n.Level = level(n)
	}
}
