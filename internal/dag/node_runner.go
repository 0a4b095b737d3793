package dag

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/vk/elgrid/internal/ctxlog"
	"github.com/vk/elgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// formatValueForLogs converts a value to its loggable representation.
// For cty.Value, it's converted to a Go interface. Other types are passed through.
func formatValueForLogs(v any) any {
	if ctyVal, ok := v.(cty.Value); ok {
		converted, err := ctyValueToInterface(ctyVal)
		if err != nil {
			return fmt.Sprintf("[unloggable cty.Value: %v]", err)
		}
		return converted
	}
	return v
}

// executeResourceNode handles the creation of a stateful resource.
func (e *Executor) executeResourceNode(ctx context.Context, node *Node) error {
	ctx, logger := ctxlog.With(ctx, "resource", node.ID)
	logger.Info("▶️ Creating resource")

	assetDef, createHandler, destroyHandler, err := e.registry.Asset(node.ResourceConfig.AssetType)
	if err != nil {
		return err
	}

	logger.Debug("Decoding resource arguments.")
	var input any
	if createHandler.NewInput != nil {
		input = createHandler.NewInput()
	}
	if err := e.converter.DecodeBody(ctx, input, node.ResourceConfig.Arguments, assetDef.Inputs, e.buildEvalContext(node)); err != nil {
		return fmt.Errorf("decoding arguments: %w", err)
	}

	logger.Debug("Calling resource create handler.", "handler", assetDef.Lifecycle.Create)
	createFn := reflect.ValueOf(createHandler.CreateFn)
	results := createFn.Call([]reflect.Value{reflect.ValueOf(ctx), argValue(input, createFn.Type().In(1))})
	if errResult := results[1].Interface(); errResult != nil {
		return errResult.(error)
	}
	instance := results[0].Interface()
	node.Output = instance

	destroyFn := reflect.ValueOf(destroyHandler.DestroyFn)
	node.destroy = func(ctx context.Context) {
		logger.Info("🔥 Destroying resource")
		res := destroyFn.Call([]reflect.Value{reflect.ValueOf(ctx), argValue(instance, destroyFn.Type().In(1))})
		if errResult := res[0].Interface(); errResult != nil {
			logger.Error("Resource destroy failed.", "error", errResult)
		}
	}
	e.pushCleanup(node)

	logger.Info("✅ Resource created")
	return nil
}

// executeStepNode handles the execution of a stateless step.
func (e *Executor) executeStepNode(ctx context.Context, node *Node) error {
	ctx, logger := ctxlog.With(ctx, "step", node.ID)
	logger.Info("▶️ Starting step")

	runnerDef, handler, err := e.registry.Runner(node.StepConfig.RunnerType)
	if err != nil {
		return err
	}

	logger.Debug("Decoding step arguments.")
	var input any
	if handler.NewInput != nil {
		input = handler.NewInput()
	}
	if err := e.converter.DecodeBody(ctx, input, node.StepConfig.Arguments, runnerDef.Inputs, e.buildEvalContext(node)); err != nil {
		return fmt.Errorf("decoding arguments: %w", err)
	}
	logger.Debug("Step input decoded.", "data", input)

	deps, err := e.buildDepsStruct(ctx, node, handler)
	if err != nil {
		return err
	}

	logger.Debug("Calling step run handler.", "handler", runnerDef.Lifecycle.OnRun)
	fn := reflect.ValueOf(handler.Fn)
	results := fn.Call([]reflect.Value{
		reflect.ValueOf(ctx),
		argValue(deps, fn.Type().In(1)),
		argValue(input, fn.Type().In(2)),
	})
	if errResult := results[1].Interface(); errResult != nil {
		return errResult.(error)
	}

	output, err := e.converter.ToCtyValue(results[0].Interface())
	if err != nil {
		return fmt.Errorf("converting output of step %s: %w", node.ID, err)
	}
	node.Output = output
	if !output.IsNull() {
		logger.Debug("Step output.", "data", formatValueForLogs(output))
	}

	logger.Info("✅ Finished step")
	return nil
}

// argValue wraps v for a reflective call, substituting the zero value of
// the parameter type when v is nil.
func argValue(v any, paramType reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(paramType)
	}
	return reflect.ValueOf(v)
}

// buildDepsStruct populates the `deps` struct for a step handler from the
// resources named in its `uses` block.
func (e *Executor) buildDepsStruct(ctx context.Context, node *Node, handler *registry.RegisteredRunner) (any, error) {
	logger := ctxlog.FromContext(ctx)
	if handler.NewDeps == nil {
		return nil, nil
	}
	depsStruct := handler.NewDeps()
	depsValue := reflect.ValueOf(depsStruct).Elem()
	if depsValue.Kind() != reflect.Struct {
		return depsStruct, nil
	}
	depsType := depsValue.Type()

	for i := 0; i < depsValue.NumField(); i++ {
		field := depsType.Field(i)
		tag := field.Tag.Get("bggo")
		if tag == "" || tag == "-" {
			continue
		}
		lookupKey := strings.Split(tag, ",")[0]

		expr, ok := node.StepConfig.Uses[lookupKey]
		if !ok {
			continue
		}
		vars := expr.Variables()
		if len(vars) != 1 {
			return nil, fmt.Errorf("field '%s' in 'uses' must be a direct reference to one resource", lookupKey)
		}
		resourceID, err := traversableToID(vars[0])
		if err != nil {
			return nil, err
		}
		dep, ok := node.Deps[resourceID]
		if !ok || dep.State() != Done || dep.Output == nil {
			return nil, fmt.Errorf("step '%s' requires resource '%s', which has not been created", node.ID, resourceID)
		}

		instanceType := reflect.TypeOf(dep.Output)
		fieldType := field.Type
		if fieldType.Kind() == reflect.Interface {
			if !instanceType.Implements(fieldType) {
				return nil, fmt.Errorf("type mismatch for '%s': resource of type %v does not implement required interface %v", lookupKey, instanceType, fieldType)
			}
		} else if !instanceType.AssignableTo(fieldType) {
			return nil, fmt.Errorf("type mismatch for '%s': resource of type %v is not assignable to field of type %v", lookupKey, instanceType, fieldType)
		}

		logger.Debug("Injecting resource dependency.", "field", field.Name, "resource", resourceID)
		depsValue.Field(i).Set(reflect.ValueOf(dep.Output))
	}
	return depsStruct, nil
}

// ctyValueToInterface converts a cty.Value to a Go interface{}.
func ctyValueToInterface(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	if val.Type().IsPrimitiveType() {
		switch val.Type() {
		case cty.String:
			return val.AsString(), nil
		case cty.Number:
			f, _ := val.AsBigFloat().Float64()
			return f, nil
		case cty.Bool:
			return val.True(), nil
		default:
			return nil, fmt.Errorf("unsupported primitive type: %s", val.Type().FriendlyName())
		}
	}
	if val.Type().IsObjectType() || val.Type().IsMapType() {
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			valInterface, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = valInterface
		}
		return out, nil
	}
	if val.Type().IsTupleType() || val.Type().IsListType() || val.Type().IsSetType() {
		var out []any
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			valInterface, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out = append(out, valInterface)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", val.Type().FriendlyName())
}
