package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vk/elgrid/internal/ctxlog"
	"github.com/vk/elgrid/internal/dag"
)

// Build resolves variables and locals and builds the dependency graph
// without running anything.
func (a *App) Build(ctx context.Context) (*dag.Graph, error) {
	return a.build(ctxlog.WithLogger(ctx, a.logger))
}

func (a *App) build(ctx context.Context) (*dag.Graph, error) {
	scope, err := dag.ResolveScope(ctx, a.config, a.converter, a.vars)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve variables: %w", err)
	}
	graph, err := dag.Build(ctx, a.config, a.registry, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}
	return graph, nil
}

// Run executes the grid once. Every run gets its own run_id in the logs.
func (a *App) Run(ctx context.Context) error {
	runID := uuid.NewString()
	ctx, logger := ctxlog.With(ctxlog.WithLogger(ctx, a.logger), "run_id", runID)
	logger.Debug("App.Run method started.")

	if a.appConfig.HealthcheckPort > 0 {
		if _, err := a.startHealthcheckServer(ctx, a.appConfig.HealthcheckPort); err != nil {
			return err
		}
		defer a.closeHealthcheckServer(ctx)
	}

	graph, err := a.build(ctx)
	if err != nil {
		return err
	}
	logger.Debug("Dependency graph built.", "node_count", len(graph.Nodes))

	if len(graph.Nodes) == 0 {
		logger.Warn("No nodes found in graph, execution not required.")
		return nil
	}

	exec := dag.NewExecutor(graph, a.registry, a.converter, dag.Options{
		Workers:  a.appConfig.WorkerCount,
		FailFast: a.appConfig.FailFast,
	})
	a.executor.Store(exec)
	defer a.executor.Store(nil)

	logger.Info("🚀 Starting concurrent execution...", "nodes", len(graph.Nodes), "workers", a.appConfig.WorkerCount)
	report, err := exec.Run(ctx)
	a.lastReport.Store(report)
	if err != nil {
		return err
	}
	logger.Debug("App.Run method finished.", "stage", report.Stage)
	return nil
}
