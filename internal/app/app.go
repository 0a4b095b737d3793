package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/vk/elgrid/internal/config"
	"github.com/vk/elgrid/internal/ctxlog"
	"github.com/vk/elgrid/internal/dag"
	"github.com/vk/elgrid/internal/registry"
	"github.com/vk/elgrid/internal/variables"
)

// AppConfig holds all the necessary configuration for an App instance to run.
type AppConfig struct {
	GridPath        string
	ModulesPath     string
	VarsFile        string
	HealthcheckPort int
	LogFormat       string
	LogLevel        string
	WorkerCount     int
	FailFast        bool

	// Variables overrides the variable store built from the environment
	// and VarsFile.
	Variables variables.Store
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	appConfig *AppConfig
	registry  *registry.Registry
	config    *config.Model
	converter config.Converter
	vars      variables.Store

	executor   atomic.Pointer[dag.Executor]
	lastReport atomic.Pointer[dag.Report]

	serverMu   sync.Mutex
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
//
// Configuration that cannot be loaded, or that disagrees with the compiled
// modules, is a startup error and panics.
func NewApp(outW io.Writer, appConfig *AppConfig, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	cfgModel, converter, err := loadModel(ctx, appConfig, loader)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}

	if len(modules) == 0 {
		modules = coreModules()
	}
	reg, err := buildRegistry(ctx, cfgModel, modules)
	if err != nil {
		// A mismatch between code and manifests is a programmer error.
		panic(err)
	}

	vars := appConfig.Variables
	if vars == nil {
		vars, err = variables.New(variables.Options{File: appConfig.VarsFile})
		if err != nil {
			panic(fmt.Errorf("failed to load variables: %w", err))
		}
	}

	return &App{
		outW:      outW,
		logger:    logger,
		appConfig: appConfig,
		registry:  reg,
		config:    cfgModel,
		converter: converter,
		vars:      vars,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Report returns the status of the current run, the last finished run, or
// nil if nothing has run yet.
func (a *App) Report() *dag.Report {
	if exec := a.executor.Load(); exec != nil {
		return exec.Report()
	}
	return a.lastReport.Load()
}
