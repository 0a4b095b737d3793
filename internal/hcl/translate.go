// This file translates the HCL schema structs into the format-agnostic
// configuration model defined in the config package.

package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/elgrid/internal/config"
	"github.com/vk/elgrid/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// translateInputDefinition processes a single HCL input block, handling its
// default value and type parsing.
func translateInputDefinition(ctx context.Context, in *schema.InputDefinition, ownerKind, ownerName string) (*config.InputDefinition, error) {
	defaultVal, err := staticDefault(in.Default)
	if err != nil {
		return nil, fmt.Errorf("invalid default value for input '%s' in %s '%s': %w", in.Name, ownerKind, ownerName, err)
	}

	parsedType, err := typeExprToCtyType(ctx, in.Type)
	if err != nil {
		return nil, fmt.Errorf("in %s '%s', input '%s': %w", ownerKind, ownerName, in.Name, err)
	}

	return &config.InputDefinition{
		Name:        in.Name,
		Type:        parsedType,
		Description: in.Description,
		Default:     defaultVal,
		Optional:    defaultVal != nil,
	}, nil
}

// staticDefault evaluates a `default` attribute without any scope. An absent
// attribute or a literal null yields nil.
func staticDefault(expr hcl.Expression) (*cty.Value, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}
	return &val, nil
}

// translateStep converts the HCL-specific step schema into the agnostic model.
func (l *Loader) translateStep(s *schema.Step) (*config.Step, error) {
	args, err := bodyAttributes(s.Arguments)
	if err != nil {
		return nil, fmt.Errorf("step %s.%s arguments: %w", s.RunnerType, s.Name, err)
	}
	uses, err := bodyAttributes(s.Uses)
	if err != nil {
		return nil, fmt.Errorf("step %s.%s uses: %w", s.RunnerType, s.Name, err)
	}
	step := &config.Step{
		RunnerType:   s.RunnerType,
		Name:         s.Name,
		Arguments:    args,
		Uses:         uses,
		DependsOn:    s.DependsOn,
		Stage:        s.Stage,
		RunningStage: s.RunningStage,
	}
	// gohcl fills absent optional expressions with a synthetic null; only a
	// parsed expression means the attribute was written.
	if _, written := s.ForEach.(hclsyntax.Expression); written {
		step.ForEach = s.ForEach
	}
	return step, nil
}

// translateResource converts the HCL-specific resource schema into the agnostic model.
func (l *Loader) translateResource(s *schema.Resource) (*config.Resource, error) {
	args, err := bodyAttributes(s.Arguments)
	if err != nil {
		return nil, fmt.Errorf("resource %s.%s arguments: %w", s.AssetType, s.Name, err)
	}
	return &config.Resource{
		AssetType: s.AssetType,
		Name:      s.Name,
		Arguments: args,
		DependsOn: s.DependsOn,
	}, nil
}

func (l *Loader) translateVariable(s *schema.Variable) (*config.Variable, error) {
	def, err := staticDefault(s.Default)
	if err != nil {
		return nil, fmt.Errorf("variable %q: default must be a literal: %w", s.Name, err)
	}
	return &config.Variable{
		Name:        s.Name,
		Description: s.Description,
		JSON:        s.JSON,
		Default:     def,
	}, nil
}

// translateRunnerDefinition converts the HCL-specific runner schema into the agnostic model.
func (l *Loader) translateRunnerDefinition(ctx context.Context, s *schema.RunnerDefinition) (*config.RunnerDefinition, error) {
	r := &config.RunnerDefinition{
		Type:        s.Type,
		Description: s.Description,
		Inputs:      make(map[string]*config.InputDefinition),
		Outputs:     make(map[string]*config.OutputDefinition),
		Uses:        make(map[string]*config.UsesDefinition),
	}
	if s.Lifecycle != nil {
		r.Lifecycle = &config.Lifecycle{OnRun: s.Lifecycle.OnRun}
	}
	for _, in := range s.Inputs {
		def, err := translateInputDefinition(ctx, in, "runner", s.Type)
		if err != nil {
			return nil, err
		}
		r.Inputs[in.Name] = def
	}
	for _, out := range s.Outputs {
		def, err := translateOutputDefinition(ctx, out, "runner", s.Type)
		if err != nil {
			return nil, err
		}
		r.Outputs[out.Name] = def
	}
	for _, use := range s.Uses {
		r.Uses[use.LocalName] = &config.UsesDefinition{
			LocalName: use.LocalName,
			AssetType: use.AssetType,
		}
	}
	return r, nil
}

// translateAssetDefinition converts the HCL-specific asset schema into the agnostic model.
func (l *Loader) translateAssetDefinition(ctx context.Context, s *schema.AssetDefinition) (*config.AssetDefinition, error) {
	a := &config.AssetDefinition{
		Type:        s.Type,
		Description: s.Description,
		Inputs:      make(map[string]*config.InputDefinition),
		Outputs:     make(map[string]*config.OutputDefinition),
	}
	if s.Lifecycle != nil {
		a.Lifecycle = &config.AssetLifecycle{Create: s.Lifecycle.Create, Destroy: s.Lifecycle.Destroy}
	}
	for _, in := range s.Inputs {
		def, err := translateInputDefinition(ctx, in, "asset", s.Type)
		if err != nil {
			return nil, err
		}
		a.Inputs[in.Name] = def
	}
	for _, out := range s.Outputs {
		def, err := translateOutputDefinition(ctx, out, "asset", s.Type)
		if err != nil {
			return nil, err
		}
		a.Outputs[out.Name] = def
	}
	return a, nil
}

func translateOutputDefinition(ctx context.Context, out *schema.OutputDefinition, ownerKind, ownerName string) (*config.OutputDefinition, error) {
	parsedType, err := typeExprToCtyType(ctx, out.Type)
	if err != nil {
		return nil, fmt.Errorf("in %s '%s', output '%s': %w", ownerKind, ownerName, out.Name, err)
	}
	return &config.OutputDefinition{
		Name:        out.Name,
		Type:        parsedType,
		Description: out.Description,
	}, nil
}

// bodyAttributes flattens an `arguments` or `uses` block into its attribute
// expressions. A missing block yields an empty map.
func bodyAttributes(block interface{}) (map[string]hcl.Expression, error) {
	var body hcl.Body
	switch b := block.(type) {
	case *schema.StepArgs:
		if b != nil {
			body = b.Body
		}
	case *schema.UsesBlock:
		if b != nil {
			body = b.Body
		}
	case *schema.Locals:
		if b != nil {
			body = b.Body
		}
	}
	exprMap := make(map[string]hcl.Expression)
	if body == nil {
		return exprMap, nil
	}
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	for name, attr := range attrs {
		exprMap[name] = attr.Expr
	}
	return exprMap, nil
}
