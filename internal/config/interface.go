package config

import (
	"context"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads configuration from the given paths, translates it into the
	// format-agnostic model, and returns a matching Converter.
	Load(ctx context.Context, paths ...string) (*Model, Converter, error)
}

// Converter is the interface for a format-specific data binding and type
// conversion implementation. It acts as the bridge between the raw configuration
// and the Go types used by modules.
type Converter interface {
	// DecodeBody decodes a raw configuration body (e.g., an 'arguments'
	// block) into a target Go struct, applying defaults and validations.
	DecodeBody(
		ctx context.Context,
		inputStruct any,
		args map[string]hcl.Expression,
		defs map[string]*InputDefinition,
		evalCtx *hcl.EvalContext,
	) error

	// ToCtyValue converts a native Go value (like a handler's output struct)
	// into its equivalent cty.Value for the engine's internal use.
	ToCtyValue(v any) (cty.Value, error)

	// Functions returns the function table available to grid expressions.
	// Relative paths passed to file functions resolve against baseDir.
	Functions(baseDir string) map[string]function.Function
}
