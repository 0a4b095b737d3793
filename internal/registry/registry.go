package registry

import (
	"fmt"
	"reflect"

	"github.com/vk/elgrid/internal/config"
)

// Module is implemented by every package that contributes runners or
// assets. Register is called once per App.
type Module interface {
	Register(r *Registry)
}

// Registry pairs the manifests loaded from HCL with the Go handlers that
// implement them. Each App owns one.
type Registry struct {
	HandlerRegistry         map[string]*RegisteredRunner
	AssetHandlerRegistry    map[string]*RegisteredAsset
	DefinitionRegistry      map[string]*config.RunnerDefinition
	AssetDefinitionRegistry map[string]*config.AssetDefinition
	AssetInterfaceRegistry  map[string]reflect.Type
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		HandlerRegistry:         make(map[string]*RegisteredRunner),
		AssetHandlerRegistry:    make(map[string]*RegisteredAsset),
		DefinitionRegistry:      make(map[string]*config.RunnerDefinition),
		AssetDefinitionRegistry: make(map[string]*config.AssetDefinition),
		AssetInterfaceRegistry:  make(map[string]reflect.Type),
	}
}

// PopulateDefinitionsFromModel copies the runner and asset manifests of a
// loaded model into the registry.
func (r *Registry) PopulateDefinitionsFromModel(model *config.Model) {
	for key, val := range model.Runners {
		r.DefinitionRegistry[key] = val
	}
	for key, val := range model.Assets {
		r.AssetDefinitionRegistry[key] = val
	}
}

// Runner resolves a runner type to its manifest and on_run handler.
func (r *Registry) Runner(runnerType string) (*config.RunnerDefinition, *RegisteredRunner, error) {
	def, ok := r.DefinitionRegistry[runnerType]
	if !ok {
		return nil, nil, fmt.Errorf("unknown runner type '%s'", runnerType)
	}
	if def.Lifecycle == nil {
		return nil, nil, fmt.Errorf("runner '%s' has no lifecycle", runnerType)
	}
	handler, ok := r.HandlerRegistry[def.Lifecycle.OnRun]
	if !ok {
		return nil, nil, fmt.Errorf("handler '%s' not registered", def.Lifecycle.OnRun)
	}
	return def, handler, nil
}

// Asset resolves an asset type to its manifest and its create and destroy
// handlers.
func (r *Registry) Asset(assetType string) (def *config.AssetDefinition, create, destroy *RegisteredAsset, err error) {
	def, ok := r.AssetDefinitionRegistry[assetType]
	if !ok {
		return nil, nil, nil, fmt.Errorf("unknown asset type '%s'", assetType)
	}
	if def.Lifecycle == nil {
		return nil, nil, nil, fmt.Errorf("asset '%s' has no lifecycle", assetType)
	}
	create, ok = r.AssetHandlerRegistry[def.Lifecycle.Create]
	if !ok || create.CreateFn == nil {
		return nil, nil, nil, fmt.Errorf("create handler '%s' not registered", def.Lifecycle.Create)
	}
	destroy, ok = r.AssetHandlerRegistry[def.Lifecycle.Destroy]
	if !ok || destroy.DestroyFn == nil {
		return nil, nil, nil, fmt.Errorf("destroy handler '%s' not registered", def.Lifecycle.Destroy)
	}
	return def, create, destroy, nil
}
