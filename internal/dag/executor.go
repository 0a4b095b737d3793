package dag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vk/elgrid/internal/config"
	"github.com/vk/elgrid/internal/ctxlog"
	"github.com/vk/elgrid/internal/registry"
)

// Options tunes an Executor.
type Options struct {
	// Workers is the size of the worker pool. Values below one mean one.
	Workers int
	// FailFast cancels the whole run on the first failure instead of only
	// skipping the failed node's dependents.
	FailFast bool
}

// Executor runs a Graph on a fixed pool of workers.
type Executor struct {
	graph      *Graph
	numWorkers int
	failFast   bool
	registry   *registry.Registry
	converter  config.Converter

	wg        sync.WaitGroup
	destroyWG sync.WaitGroup

	cleanupMu    sync.Mutex
	cleanupStack []*Node
}

// NewExecutor creates an executor for a built graph.
func NewExecutor(graph *Graph, r *registry.Registry, converter config.Converter, opts Options) *Executor {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Executor{
		graph:      graph,
		numWorkers: workers,
		failFast:   opts.FailFast,
		registry:   r,
		converter:  converter,
	}
}

// Run executes the entire graph and returns the final report. The error
// joins the root-cause failures; nodes skipped because of them are only
// reported. It respects the cancellation signal from the provided context.
func (e *Executor) Run(ctx context.Context) (*Report, error) {
	logger := ctxlog.FromContext(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	readyChan := make(chan *Node, len(e.graph.Nodes))
	e.wg.Add(len(e.graph.Nodes))

	rootNodeCount := 0
	for _, id := range sortedKeys(e.graph.Nodes) {
		node := e.graph.Nodes[id]
		if node.depCount.Load() == 0 {
			logger.Debug("Found root node.", "nodeID", node.ID)
			readyChan <- node
			rootNodeCount++
		}
	}
	logger.Debug("Found all root nodes.", "count", rootNodeCount)

	var workers sync.WaitGroup
	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			e.worker(runCtx, readyChan, cancel, id)
		}(i)
	}

	e.wg.Wait()
	close(readyChan)
	workers.Wait()
	e.destroyWG.Wait()
	e.executeCleanupStack(ctx)

	report := e.Report()
	logger.Info("🏁 Execution finished.",
		"done", report.Counts[Done.String()],
		"failed", report.Counts[Failed.String()],
		"skipped", report.Counts[Skipped.String()],
		"stage", report.Stage,
	)

	var failedIDs []string
	var causes []error
	for _, status := range report.Nodes {
		if status.State != Failed.String() {
			continue
		}
		node := e.graph.Nodes[status.ID]
		err := node.Err()
		if e.failFast && errors.Is(err, context.Canceled) {
			// Collateral of the fail-fast cancellation.
			continue
		}
		failedIDs = append(failedIDs, node.ID)
		causes = append(causes, fmt.Errorf("%s: %w", node.ID, err))
	}
	if len(causes) > 0 {
		return report, fmt.Errorf("execution failed for %s: %w", strings.Join(failedIDs, ", "), errors.Join(causes...))
	}
	if err := ctx.Err(); err != nil && report.Counts[Skipped.String()] > 0 {
		return report, fmt.Errorf("execution interrupted: %w", err)
	}
	return report, nil
}

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *Node, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for node := range readyChan {
		workerLogger := logger.With("workerID", workerID, "nodeID", node.ID)

		// A node released by its last dependency may already have been
		// skipped through another, failed dependency.
		if !node.transition(Pending, Running) {
			workerLogger.Debug("Node already settled, not running it.", "state", node.State())
			continue
		}

		if ctx.Err() != nil {
			workerLogger.Warn("Context canceled, skipping node execution.")
			e.settle(ctx, node, Skipped, fmt.Errorf("%w: %w", ErrSkipped, context.Cause(ctx)))
			e.skipDependents(ctx, node)
			continue
		}

		node.startedAt.Store(time.Now().UnixNano())
		var err error
		switch node.Type {
		case ResourceNode:
			err = e.executeResourceNode(ctx, node)
		case StepNode:
			err = e.executeStepNode(ctx, node)
		}

		if err != nil {
			workerLogger.Error("Node execution failed.", "error", err)
			if e.failFast {
				cancel()
			}
			e.settle(ctx, node, Failed, err)
			e.skipDependents(ctx, node)
			continue
		}

		workerLogger.Debug("Node execution succeeded.")
		node.state.Store(int32(Done))
		node.finishedAt.Store(time.Now().UnixNano())
		for _, id := range sortedKeys(node.Dependents) {
			dependent := node.Dependents[id]
			if dependent.depCount.Add(-1) == 0 {
				workerLogger.Debug("Unlocking dependent node.", "dependentID", dependent.ID)
				readyChan <- dependent
			}
		}
		e.releaseResources(ctx, node)
		if node.Type == ResourceNode && len(node.Dependents) > 0 && node.descendantCount.Load() == 0 {
			// Consumers skipped while the create ran have already released it.
			e.scheduleDestroy(ctx, node)
		}
		e.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// settle records a terminal failure state for a running node and releases it.
func (e *Executor) settle(ctx context.Context, node *Node, state State, err error) {
	node.setErr(err)
	node.finishedAt.Store(time.Now().UnixNano())
	node.state.Store(int32(state))
	e.releaseResources(ctx, node)
	e.wg.Done()
}

// skipDependents recursively marks all pending downstream nodes as skipped.
func (e *Executor) skipDependents(ctx context.Context, node *Node) {
	logger := ctxlog.FromContext(ctx)
	for _, id := range sortedKeys(node.Dependents) {
		dependent := node.Dependents[id]
		if !dependent.transition(Pending, Skipped) {
			continue
		}
		logger.Warn("Skipping dependent node due to upstream failure.", "nodeID", dependent.ID, "dependency", node.ID)
		dependent.setErr(fmt.Errorf("%w: upstream '%s' did not complete", ErrSkipped, node.ID))
		e.releaseResources(ctx, dependent)
		e.wg.Done()
		e.skipDependents(ctx, dependent)
	}
}

// releaseResources decrements the consumer count of every resource a
// finished step used, destroying resources nobody else needs. A resource
// still being created is left to its worker, which checks the count once
// the create returns.
func (e *Executor) releaseResources(ctx context.Context, node *Node) {
	if node.Type != StepNode {
		return
	}
	for _, dep := range node.Deps {
		if dep.Type != ResourceNode {
			continue
		}
		if dep.descendantCount.Add(-1) == 0 && dep.State() == Done {
			e.scheduleDestroy(ctx, dep)
		}
	}
}

func (e *Executor) scheduleDestroy(ctx context.Context, res *Node) {
	ctxlog.FromContext(ctx).Debug("Scheduling efficient destruction for resource.", "resourceID", res.ID)
	e.destroyWG.Add(1)
	go func() {
		defer e.destroyWG.Done()
		e.destroyResource(ctx, res)
	}()
}

// destroyResource tears a created resource down at most once. Destruction
// runs on a context detached from the run's cancellation. Callers only
// reach it for resources in the Done state, which orders the write of
// node.destroy before this read.
func (e *Executor) destroyResource(ctx context.Context, node *Node) {
	if node.State() != Done || node.destroy == nil {
		return
	}
	node.destroyOnce.Do(func() {
		node.destroy(context.WithoutCancel(ctx))
	})
}

func (e *Executor) pushCleanup(node *Node) {
	e.cleanupMu.Lock()
	defer e.cleanupMu.Unlock()
	e.cleanupStack = append(e.cleanupStack, node)
}

// executeCleanupStack destroys any resource still alive, newest first.
func (e *Executor) executeCleanupStack(ctx context.Context) {
	e.cleanupMu.Lock()
	stack := e.cleanupStack
	e.cleanupStack = nil
	e.cleanupMu.Unlock()

	for i := len(stack) - 1; i >= 0; i-- {
		e.destroyResource(ctx, stack[i])
	}
}

// Report returns a point-in-time status of every node. It is safe to call
// while the graph is running.
func (e *Executor) Report() *Report {
	nodes := make([]*Node, 0, len(e.graph.Nodes))
	for _, n := range e.graph.Nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return newReport(nodes)
}
