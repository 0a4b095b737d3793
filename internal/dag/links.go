package dag

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/elgrid/internal/ctxlog"
	"github.com/vk/elgrid/internal/nodeid"
	"github.com/vk/elgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// linkNodes performs the second pass, establishing dependency links.
func linkNodes(ctx context.Context, graph *Graph, r *registry.Registry) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Starting node linking pass.")

	for _, id := range sortedKeys(graph.Nodes) {
		node := graph.Nodes[id]
		var dependsOn []string
		var expressions []hcl.Expression

		if node.Type == StepNode {
			dependsOn = node.StepConfig.DependsOn
			for _, name := range sortedKeys(node.StepConfig.Arguments) {
				expressions = append(expressions, node.StepConfig.Arguments[name])
			}
			if err := linkUses(ctx, node, graph, r); err != nil {
				return err
			}
		} else {
			dependsOn = node.ResourceConfig.DependsOn
			for _, name := range sortedKeys(node.ResourceConfig.Arguments) {
				expressions = append(expressions, node.ResourceConfig.Arguments[name])
			}
		}

		if err := linkExplicitDeps(ctx, node, dependsOn, graph); err != nil {
			return err
		}
		for _, expr := range expressions {
			if err := linkImplicitDeps(ctx, node, expr, graph, r); err != nil {
				return err
			}
		}
	}
	logger.Debug("Finished node linking pass.")
	return nil
}

// linkExplicitDeps resolves dependencies from a `depends_on` list. A
// reference to a for_each step without a key waits for every instance.
func linkExplicitDeps(ctx context.Context, node *Node, dependsOn []string, graph *Graph) error {
	logger := ctxlog.FromContext(ctx)
	for _, raw := range dependsOn {
		ref, err := nodeid.ParseRef(raw)
		if err != nil {
			return fmt.Errorf("node '%s': depends_on: %w", node.ID, err)
		}

		var targets []*Node
		if ref.Keyed {
			ref.Kind = nodeid.KindStep
			if dep, ok := graph.Nodes[ref.String()]; ok {
				targets = []*Node{dep}
			}
		} else {
			for _, kind := range []string{nodeid.KindStep, nodeid.KindResource} {
				ref.Kind = kind
				if group, ok := graph.Groups[ref.String()]; ok {
					targets = group
					break
				}
			}
		}
		if targets == nil {
			return fmt.Errorf("node '%s' depends on non-existent identifier '%s'", node.ID, raw)
		}
		for _, dep := range targets {
			if dep == node {
				return fmt.Errorf("%w: node '%s' depends on itself", ErrCycle, node.ID)
			}
			logger.Debug("Linking explicit dependency.", "from", node.ID, "to", dep.ID)
			graph.link(node, dep)
		}
	}
	return nil
}

// stepRef is a parsed `step.<type>.<name>[...]` traversal.
type stepRef struct {
	base      *nodeid.Address
	keyed     bool
	key       string
	outputPos int // index of the "output" attribute in the traversal, or -1
}

func parseStepTraversal(tr hcl.Traversal) (*stepRef, bool) {
	if len(tr) < 3 || tr.RootName() != nodeid.KindStep {
		return nil, false
	}
	typeAttr, ok1 := tr[1].(hcl.TraverseAttr)
	nameAttr, ok2 := tr[2].(hcl.TraverseAttr)
	if !ok1 || !ok2 {
		return nil, false
	}
	ref := &stepRef{base: nodeid.New(nodeid.KindStep, typeAttr.Name, nameAttr.Name), outputPos: -1}
	next := 3
	if len(tr) > 3 {
		if idx, ok := tr[3].(hcl.TraverseIndex); ok && idx.Key.Type() == cty.String && idx.Key.IsKnown() && !idx.Key.IsNull() {
			ref.keyed = true
			ref.key = idx.Key.AsString()
			next = 4
		}
	}
	if len(tr) > next {
		if attr, ok := tr[next].(hcl.TraverseAttr); ok && attr.Name == "output" {
			ref.outputPos = next
		}
	}
	return ref, true
}

// linkImplicitDeps parses an expression for variable traversals to create dependency links.
func linkImplicitDeps(ctx context.Context, node *Node, expr hcl.Expression, graph *Graph, r *registry.Registry) error {
	logger := ctxlog.FromContext(ctx)
	for _, traversal := range expr.Variables() {
		switch traversal.RootName() {
		case nodeid.KindStep:
			ref, ok := parseStepTraversal(traversal)
			if !ok {
				return fmt.Errorf("node '%s': malformed step reference", node.ID)
			}
			group, ok := graph.Groups[ref.base.String()]
			if !ok {
				return fmt.Errorf("node '%s' references undeclared step '%s'", node.ID, ref.base)
			}
			targets := group
			if ref.keyed {
				dep, ok := graph.Nodes[ref.base.WithKey(ref.key).String()]
				if !ok {
					return fmt.Errorf("node '%s' references missing instance '%s'", node.ID, ref.base.WithKey(ref.key))
				}
				targets = []*Node{dep}
			}
			if err := validateOutputReference(traversal, ref, r); err != nil {
				return fmt.Errorf("node '%s': %w", node.ID, err)
			}
			for _, dep := range targets {
				if dep == node {
					return fmt.Errorf("%w: node '%s' references its own output", ErrCycle, node.ID)
				}
				logger.Debug("Linking implicit dependency.", "from", node.ID, "to", dep.ID)
				graph.link(node, dep)
			}

		case nodeid.KindResource:
			id, err := traversableToID(traversal)
			if err != nil {
				return fmt.Errorf("node '%s': %w", node.ID, err)
			}
			dep, ok := graph.Nodes[id]
			if !ok {
				return fmt.Errorf("node '%s' references undeclared resource '%s'", node.ID, id)
			}
			logger.Debug("Linking implicit dependency.", "from", node.ID, "to", dep.ID)
			graph.link(node, dep)

		case "each":
			if node.Each == nil {
				return fmt.Errorf("node '%s': 'each' is only available in steps with for_each", node.ID)
			}
		}
	}
	return nil
}

// linkUses validates a step's `uses` block against its runner manifest and
// links each referenced resource.
func linkUses(ctx context.Context, node *Node, graph *Graph, r *registry.Registry) error {
	runnerDef := r.DefinitionRegistry[node.StepConfig.RunnerType]
	uses := node.StepConfig.Uses

	names := make([]string, 0, len(uses))
	for name := range uses {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		useDef, ok := runnerDef.Uses[name]
		if !ok {
			return fmt.Errorf("step '%s': runner '%s' does not declare a uses slot named '%s'", node.ID, runnerDef.Type, name)
		}
		vars := uses[name].Variables()
		if len(vars) != 1 {
			return fmt.Errorf("step '%s': uses '%s' must be a direct reference to one resource", node.ID, name)
		}
		id, err := traversableToID(vars[0])
		if err != nil {
			return fmt.Errorf("step '%s': uses '%s': %w", node.ID, name, err)
		}
		dep, ok := graph.Nodes[id]
		if !ok {
			return fmt.Errorf("step '%s': uses '%s' references undeclared resource '%s'", node.ID, name, id)
		}
		if dep.ResourceConfig.AssetType != useDef.AssetType {
			return fmt.Errorf("step '%s': uses '%s' expects asset type '%s', got '%s'", node.ID, name, useDef.AssetType, dep.ResourceConfig.AssetType)
		}
		graph.link(node, dep)
	}
	for name := range runnerDef.Uses {
		if _, ok := uses[name]; !ok {
			return fmt.Errorf("step '%s': runner '%s' requires uses slot '%s'", node.ID, runnerDef.Type, name)
		}
	}
	return nil
}

// validateOutputReference checks that a reference to a step's output names
// an output declared in the runner's manifest.
func validateOutputReference(traversal hcl.Traversal, ref *stepRef, r *registry.Registry) error {
	if ref.outputPos < 0 || len(traversal) <= ref.outputPos+1 {
		return nil
	}
	outputNameAttr, ok := traversal[ref.outputPos+1].(hcl.TraverseAttr)
	if !ok {
		return nil
	}
	runnerDef, ok := r.DefinitionRegistry[ref.base.Type]
	if !ok {
		return fmt.Errorf("internal error: could not find definition for runner type %s", ref.base.Type)
	}
	if _, ok := runnerDef.Outputs[outputNameAttr.Name]; ok {
		return nil
	}
	return fmt.Errorf("reference to undeclared output %q on step %q", outputNameAttr.Name, ref.base)
}

// traversableToID converts an HCL traversal for a resource into its canonical string ID.
func traversableToID(v hcl.Traversal) (string, error) {
	if len(v) < 3 {
		return "", fmt.Errorf("invalid resource traversal")
	}
	if v.RootName() != nodeid.KindResource {
		return "", fmt.Errorf("expected a 'resource' traversal, got '%s'", v.RootName())
	}
	typeAttr, ok1 := v[1].(hcl.TraverseAttr)
	nameAttr, ok2 := v[2].(hcl.TraverseAttr)
	if !ok1 || !ok2 {
		return "", fmt.Errorf("invalid resource traversal")
	}
	return nodeid.New(nodeid.KindResource, typeAttr.Name, nameAttr.Name).String(), nil
}
