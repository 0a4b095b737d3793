package dag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/elgrid/internal/config"
	"github.com/vk/elgrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// VariableSource supplies raw values for `variable` blocks.
type VariableSource interface {
	Get(name string) (string, bool)
}

// Scope holds the values that every expression in a grid can see before any
// node has run: variables, locals, `path.root` and the function table.
type Scope struct {
	Variables map[string]cty.Value
	Locals    map[string]cty.Value
	Root      string
	Functions map[string]function.Function
}

// EvalContext returns an evaluation context exposing the scope.
func (s *Scope) EvalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"var":   objectOrEmpty(s.Variables),
			"local": objectOrEmpty(s.Locals),
			"path":  cty.ObjectVal(map[string]cty.Value{"root": cty.StringVal(s.Root)}),
		},
		Functions: s.Functions,
	}
}

func objectOrEmpty(m map[string]cty.Value) cty.Value {
	if len(m) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(m)
}

// ResolveScope reads every declared variable from src and evaluates all
// locals. A variable with neither a value nor a default is an error.
func ResolveScope(ctx context.Context, model *config.Model, conv config.Converter, src VariableSource) (*Scope, error) {
	logger := ctxlog.FromContext(ctx)
	scope := &Scope{
		Variables: make(map[string]cty.Value, len(model.Variables)),
		Locals:    make(map[string]cty.Value, len(model.Locals)),
		Root:      model.BaseDir,
		Functions: conv.Functions(model.BaseDir),
	}

	var missing []string
	for _, name := range sortedKeys(model.Variables) {
		def := model.Variables[name]
		raw, ok := src.Get(name)
		if !ok {
			if def.Default == nil {
				missing = append(missing, name)
				continue
			}
			logger.Debug("Variable not set, using default.", "variable", name)
			scope.Variables[name] = *def.Default
			continue
		}
		val, err := decodeVariable(def, raw)
		if err != nil {
			return nil, err
		}
		logger.Debug("Variable resolved.", "variable", name, "json", def.JSON)
		scope.Variables[name] = val
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingVariable, strings.Join(missing, ", "))
	}

	if err := resolveLocals(scope, model.Locals); err != nil {
		return nil, err
	}
	return scope, nil
}

func decodeVariable(def *config.Variable, raw string) (cty.Value, error) {
	if !def.JSON {
		return cty.StringVal(raw), nil
	}
	ty, err := ctyjson.ImpliedType([]byte(raw))
	if err != nil {
		return cty.NilVal, fmt.Errorf("variable %q is not valid JSON: %w", def.Name, err)
	}
	val, err := ctyjson.Unmarshal([]byte(raw), ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("variable %q is not valid JSON: %w", def.Name, err)
	}
	return val, nil
}

// resolveLocals evaluates locals in dependency order by repeatedly
// evaluating whatever has all its local references available.
func resolveLocals(scope *Scope, exprs map[string]hcl.Expression) error {
	pending := make(map[string]hcl.Expression, len(exprs))
	for k, v := range exprs {
		pending[k] = v
	}

	for len(pending) > 0 {
		progressed := false
		for _, name := range sortedKeys(pending) {
			expr := pending[name]
			if !localsReady(expr, scope.Locals, exprs) {
				continue
			}
			val, diags := expr.Value(scope.EvalContext())
			if diags.HasErrors() {
				return fmt.Errorf("evaluating local %q: %w", name, diags)
			}
			scope.Locals[name] = val
			delete(pending, name)
			progressed = true
		}
		if !progressed {
			return fmt.Errorf("locals cannot be resolved, check for cycles or undefined references: %s", strings.Join(sortedKeys(pending), ", "))
		}
	}
	return nil
}

func localsReady(expr hcl.Expression, done map[string]cty.Value, all map[string]hcl.Expression) bool {
	for _, tr := range expr.Variables() {
		if tr.RootName() != "local" || len(tr) < 2 {
			continue
		}
		attr, ok := tr[1].(hcl.TraverseAttr)
		if !ok {
			continue
		}
		if _, declared := all[attr.Name]; !declared {
			// Let evaluation report the undefined reference.
			continue
		}
		if _, ok := done[attr.Name]; !ok {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
