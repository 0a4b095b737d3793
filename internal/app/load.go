package app

import (
	"context"

	"github.com/vk/elgrid/internal/config"
	"github.com/vk/elgrid/internal/ctxlog"
	"github.com/vk/elgrid/internal/registry"
)

// loadModel reads the grid and any user modules into one model.
func loadModel(ctx context.Context, appConfig *AppConfig, loader config.Loader) (*config.Model, config.Converter, error) {
	logger := ctxlog.FromContext(ctx)

	// The grid path goes first: it decides path.root.
	var configPaths []string
	if appConfig.GridPath != "" {
		configPaths = append(configPaths, appConfig.GridPath)
	}
	if appConfig.ModulesPath != "" {
		configPaths = append(configPaths, appConfig.ModulesPath)
	}

	model, converter, err := loader.Load(ctx, configPaths...)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("Configuration loaded and translated into unified model.",
		"steps", len(model.Grid.Steps),
		"resources", len(model.Grid.Resources),
	)
	return model, converter, nil
}

// buildRegistry registers the Go modules and checks them against the
// loaded manifests.
func buildRegistry(ctx context.Context, model *config.Model, modules []registry.Module) (*registry.Registry, error) {
	logger := ctxlog.FromContext(ctx)

	reg := registry.New()
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	reg.PopulateDefinitionsFromModel(model)
	if err := reg.ValidateRegistry(ctx); err != nil {
		return nil, err
	}
	logger.Debug("Registry validation passed.")
	return reg, nil
}
