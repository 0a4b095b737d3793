package registry

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"

	"github.com/vk/elgrid/internal/config"
	"github.com/vk/elgrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// ValidateRegistry performs a strict parity check between manifests and Go code.
// It checks that every lifecycle handler exists with a callable shape, and
// that inputs agree in both presence and type.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, runnerType := range sortedKeys(r.DefinitionRegistry) {
		def := r.DefinitionRegistry[runnerType]
		owner := fmt.Sprintf("runner '%s'", runnerType)
		if def.Lifecycle == nil || def.Lifecycle.OnRun == "" {
			errs = append(errs, owner+": manifest has no lifecycle.on_run handler")
			continue
		}
		handler, ok := r.HandlerRegistry[def.Lifecycle.OnRun]
		if !ok {
			errs = append(errs, fmt.Sprintf("%s: handler '%s' is not registered", owner, def.Lifecycle.OnRun))
			continue
		}
		if err := checkFunc(handler.Fn, 3, 2); err != nil {
			errs = append(errs, fmt.Sprintf("%s: handler '%s': %v", owner, def.Lifecycle.OnRun, err))
		}
		errs = append(errs, checkInputs(logger, owner, def.Inputs, handler.InputType)...)
	}

	for _, assetType := range sortedKeys(r.AssetDefinitionRegistry) {
		def := r.AssetDefinitionRegistry[assetType]
		owner := fmt.Sprintf("asset '%s'", assetType)
		if def.Lifecycle == nil {
			errs = append(errs, owner+": manifest has no lifecycle block")
			continue
		}
		create, ok := r.AssetHandlerRegistry[def.Lifecycle.Create]
		if !ok || create.CreateFn == nil {
			errs = append(errs, fmt.Sprintf("%s: create handler '%s' is not registered", owner, def.Lifecycle.Create))
		} else {
			if err := checkFunc(create.CreateFn, 2, 2); err != nil {
				errs = append(errs, fmt.Sprintf("%s: create handler '%s': %v", owner, def.Lifecycle.Create, err))
			}
			errs = append(errs, checkInputs(logger, owner, def.Inputs, create.InputType)...)
		}
		destroy, ok := r.AssetHandlerRegistry[def.Lifecycle.Destroy]
		if !ok || destroy.DestroyFn == nil {
			errs = append(errs, fmt.Sprintf("%s: destroy handler '%s' is not registered", owner, def.Lifecycle.Destroy))
		} else if err := checkFunc(destroy.DestroyFn, 2, 1); err != nil {
			errs = append(errs, fmt.Sprintf("%s: destroy handler '%s': %v", owner, def.Lifecycle.Destroy, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}

// checkFunc verifies a handler is a function taking a context first and
// returning an error last.
func checkFunc(fn any, numIn, numOut int) error {
	t := reflect.TypeOf(fn)
	if t == nil || t.Kind() != reflect.Func {
		return fmt.Errorf("expected a function, got %T", fn)
	}
	if t.NumIn() != numIn || t.NumOut() != numOut {
		return fmt.Errorf("expected %d parameters and %d results, got %d and %d", numIn, numOut, t.NumIn(), t.NumOut())
	}
	if !contextType.AssignableTo(t.In(0)) {
		return fmt.Errorf("first parameter must accept context.Context, got %s", t.In(0))
	}
	if last := t.Out(numOut - 1); !last.Implements(errorType) {
		return fmt.Errorf("last result must be error, got %s", last)
	}
	return nil
}

func checkInputs(logger *slog.Logger, owner string, defs map[string]*config.InputDefinition, inputType reflect.Type) []string {
	var errs []string
	if inputType == nil {
		if len(defs) > 0 {
			errs = append(errs, fmt.Sprintf("%s: manifest declares inputs, but Go handler has no input struct", owner))
		}
		return errs
	}
	if inputType.Kind() != reflect.Struct {
		return append(errs, fmt.Sprintf("%s: input type %s is not a struct", owner, inputType))
	}

	goInputs := make(map[string]reflect.StructField)
	for i := 0; i < inputType.NumField(); i++ {
		field := inputType.Field(i)
		if !field.IsExported() {
			continue
		}
		tagName := strings.Split(field.Tag.Get("bggo"), ",")[0]
		if tagName != "" && tagName != "-" {
			goInputs[tagName] = field
		}
	}

	for _, name := range sortedKeys(goInputs) {
		if _, ok := defs[name]; !ok {
			errs = append(errs, fmt.Sprintf("%s: Go struct has field for input '%s' which is not declared in manifest", owner, name))
		}
	}
	for _, name := range sortedKeys(defs) {
		goField, ok := goInputs[name]
		if !ok {
			errs = append(errs, fmt.Sprintf("%s: manifest declares input '%s' which is not found in Go struct", owner, name))
			continue
		}

		manifestType := defs[name].Type
		if manifestType.Equals(cty.DynamicPseudoType) {
			logger.Warn("Manifest input has 'type = any', which disables static type checking.", "owner", owner, "input", name)
			continue
		}

		goFieldType, err := gocty.ImpliedType(reflect.Zero(goField.Type).Interface())
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s, input '%s': could not imply cty type from Go field type %s: %v", owner, name, goField.Type, err))
			continue
		}
		if !manifestType.Equals(goFieldType) {
			errs = append(errs, fmt.Sprintf("%s, input '%s': type mismatch. Manifest requires '%s' but Go struct field '%s' provides '%s'",
				owner, name, manifestType.FriendlyName(), goField.Name, goFieldType.FriendlyName()))
		}
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
