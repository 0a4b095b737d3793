package dag

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/elgrid/internal/config"
	"github.com/vk/elgrid/internal/ctxlog"
	"github.com/vk/elgrid/internal/nodeid"
	"github.com/vk/elgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// createNodes performs the first pass of graph creation.
func createNodes(ctx context.Context, grid *config.Grid, graph *Graph, r *registry.Registry) error {
	logger := ctxlog.FromContext(ctx)

	for _, res := range grid.Resources {
		if _, ok := r.AssetDefinitionRegistry[res.AssetType]; !ok {
			return fmt.Errorf("resource %s.%s: unknown asset type '%s'", res.AssetType, res.Name, res.AssetType)
		}
		node := newNode(nodeid.New(nodeid.KindResource, res.AssetType, res.Name), ResourceNode)
		node.ResourceConfig = res
		graph.Nodes[node.ID] = node
		graph.Groups[node.ID] = []*Node{node}
	}

	for _, s := range grid.Steps {
		if _, ok := r.DefinitionRegistry[s.RunnerType]; !ok {
			return fmt.Errorf("step %s.%s: unknown runner type '%s'", s.RunnerType, s.Name, s.RunnerType)
		}
		base := nodeid.New(nodeid.KindStep, s.RunnerType, s.Name)

		if s.ForEach == nil {
			node := newNode(base, StepNode)
			node.StepConfig = s
			graph.Nodes[node.ID] = node
			graph.Groups[node.ID] = []*Node{node}
			continue
		}

		instances, err := expandForEach(graph.Scope, s)
		if err != nil {
			return fmt.Errorf("step %s: %w", base, err)
		}
		group := make([]*Node, 0, len(instances))
		for _, each := range instances {
			node := newNode(base.WithKey(each.Key), StepNode)
			node.StepConfig = s
			node.Each = each
			graph.Nodes[node.ID] = node
			group = append(group, node)
		}
		graph.Groups[base.String()] = group
		logger.Debug("Expanded for_each step.", "step", base.String(), "instances", len(group))
	}
	return nil
}

// expandForEach evaluates a step's for_each expression against the static
// scope. Objects and maps expand to one instance per key; sets of strings
// expand to one instance per element, with the element as both key and value.
func expandForEach(scope *Scope, s *config.Step) ([]*Each, error) {
	for _, tr := range s.ForEach.Variables() {
		switch tr.RootName() {
		case "var", "local", "path":
		default:
			return nil, fmt.Errorf("for_each may only reference variables, locals and functions, found %q", tr.RootName())
		}
	}

	var evalCtx *hcl.EvalContext
	if scope != nil {
		evalCtx = scope.EvalContext()
	}
	val, diags := s.ForEach.Value(evalCtx)
	if diags.HasErrors() {
		return nil, fmt.Errorf("evaluating for_each: %w", diags)
	}
	if val.IsNull() {
		return nil, fmt.Errorf("for_each value must not be null")
	}
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("for_each value must be known before the run starts")
	}

	ty := val.Type()
	var out []*Each
	switch {
	case ty.IsObjectType() || ty.IsMapType():
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			out = append(out, &Each{Key: k.AsString(), Value: v})
		}
	case ty.IsSetType() && ty.ElementType() == cty.String:
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			out = append(out, &Each{Key: v.AsString(), Value: v})
		}
	default:
		return nil, fmt.Errorf("for_each must be a map, an object or a set of strings, got %s", ty.FriendlyName())
	}
	return out, nil
}
