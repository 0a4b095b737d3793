package dag

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// buildEvalContext creates the HCL evaluation context for a node: the
// static scope plus the outputs of its finished step dependencies and, for
// for_each instances, `each`.
//
// Outputs appear under step.<type>.<name>.output, or
// step.<type>.<name>["key"].output for for_each instances.
func (e *Executor) buildEvalContext(node *Node) *hcl.EvalContext {
	var evalCtx *hcl.EvalContext
	if e.graph.Scope != nil {
		evalCtx = e.graph.Scope.EvalContext()
	} else {
		evalCtx = &hcl.EvalContext{Variables: map[string]cty.Value{}}
	}

	// runner type -> instance name -> value
	steps := make(map[string]map[string]cty.Value)
	// runner type -> instance name -> key -> value, for keyed instances
	keyed := make(map[string]map[string]map[string]cty.Value)

	for _, dep := range node.Deps {
		if dep.Type != StepNode || dep.State() != Done {
			continue
		}
		out := cty.ObjectVal(map[string]cty.Value{"output": outputValue(dep)})
		typ, name := dep.Addr.Type, dep.Addr.Name
		if dep.Addr.Keyed {
			if keyed[typ] == nil {
				keyed[typ] = make(map[string]map[string]cty.Value)
			}
			if keyed[typ][name] == nil {
				keyed[typ][name] = make(map[string]cty.Value)
			}
			keyed[typ][name][dep.Addr.Key] = out
			continue
		}
		if steps[typ] == nil {
			steps[typ] = make(map[string]cty.Value)
		}
		steps[typ][name] = out
	}
	for typ, byName := range keyed {
		if steps[typ] == nil {
			steps[typ] = make(map[string]cty.Value)
		}
		for name, byKey := range byName {
			steps[typ][name] = cty.ObjectVal(byKey)
		}
	}

	stepObjs := make(map[string]cty.Value, len(steps))
	for typ, byName := range steps {
		stepObjs[typ] = cty.ObjectVal(byName)
	}
	evalCtx.Variables["step"] = objectOrEmpty(stepObjs)

	if node.Each != nil {
		evalCtx.Variables["each"] = cty.ObjectVal(map[string]cty.Value{
			"key":   cty.StringVal(node.Each.Key),
			"value": node.Each.Value,
		})
	}
	return evalCtx
}

func outputValue(n *Node) cty.Value {
	v, ok := n.Output.(cty.Value)
	if !ok || v.IsNull() {
		return cty.NullVal(cty.DynamicPseudoType)
	}
	return v
}
