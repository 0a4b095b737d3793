// Package marker provides a runner that does nothing but log. Grids use it
// to mark the end of a group of steps.
package marker

import (
	"context"
	"sort"

	"github.com/vk/elgrid/internal/ctxlog"
	"github.com/vk/elgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the marker runner.
type Input struct {
	Message string            `bggo:"message"`
	Fields  map[string]string `bggo:"fields"`
}

// Deps is an empty struct because this runner does not use any resources.
type Deps struct{}

// OnRunMarker logs the message with its fields in key order.
func OnRunMarker(ctx context.Context, _ *Deps, input *Input) (any, error) {
	keys := make([]string, 0, len(input.Fields))
	for k := range input.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, k, input.Fields[k])
	}

	msg := input.Message
	if msg == "" {
		msg = "Marker reached"
	}
	ctxlog.FromContext(ctx).Info(msg, args...)
	return nil, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunMarker", &registry.RegisteredRunner{
		NewInput: func() any { return new(Input) },
		NewDeps:  func() any { return new(Deps) },
		Fn:       OnRunMarker,
	})
}
