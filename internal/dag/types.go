package dag

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/elgrid/internal/config"
	"github.com/vk/elgrid/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// NodeType distinguishes between different kinds of nodes in the graph.
type NodeType int

const (
	// StepNode represents a stateless, executable step.
	StepNode NodeType = iota
	// ResourceNode represents a stateful, shared resource.
	ResourceNode
)

func (t NodeType) String() string {
	if t == ResourceNode {
		return "resource"
	}
	return "step"
}

// State represents the execution state of a node.
type State int32

const (
	Pending State = iota
	Running
	Done
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == Done || s == Failed || s == Skipped
}

// Each holds the for_each binding of an expanded step instance.
type Each struct {
	Key   string
	Value cty.Value
}

// Node represents a single vertex in the dependency graph.
type Node struct {
	ID             string
	Addr           *nodeid.Address
	Name           string
	Type           NodeType
	StepConfig     *config.Step
	ResourceConfig *config.Resource
	// Each is set for instances of a for_each step.
	Each *Each
	// Level is the length of the longest dependency chain leading to the node.
	Level int

	Deps       map[string]*Node
	Dependents map[string]*Node

	// Output is a cty.Value for steps and the live Go object for resources.
	// Written once by the worker that ran the node, before its dependents
	// are released.
	Output any

	mu  sync.Mutex
	err error

	depCount        atomic.Int32
	descendantCount atomic.Int32
	state           atomic.Int32
	startedAt       atomic.Int64
	finishedAt      atomic.Int64

	destroy     func(context.Context)
	destroyOnce sync.Once
}

// Err returns the error recorded for a failed or skipped node.
func (n *Node) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

func (n *Node) setErr(err error) {
	n.mu.Lock()
	n.err = err
	n.mu.Unlock()
}

// Duration returns how long the node ran, or zero if it never started.
func (n *Node) Duration() time.Duration {
	start, end := n.startedAt.Load(), n.finishedAt.Load()
	if start == 0 {
		return 0
	}
	if end == 0 {
		end = time.Now().UnixNano()
	}
	return time.Duration(end - start)
}

// State returns the node's current execution state.
func (n *Node) State() State {
	return State(n.state.Load())
}

// Stage returns the pipeline milestone attached to the node, if any.
func (n *Node) Stage() string {
	if n.StepConfig == nil {
		return ""
	}
	return n.StepConfig.Stage
}

// RunningStage returns the pipeline state reported while the node's step
// is in progress, if any.
func (n *Node) RunningStage() string {
	if n.StepConfig == nil {
		return ""
	}
	return n.StepConfig.RunningStage
}

func (n *Node) transition(from, to State) bool {
	return n.state.CompareAndSwap(int32(from), int32(to))
}

// resetCounters primes the counters the executor consumes.
func (n *Node) resetCounters() {
	n.depCount.Store(int32(len(n.Deps)))
	n.state.Store(int32(Pending))
	if n.Type == ResourceNode {
		var consumers int32
		for _, d := range n.Dependents {
			if d.Type == StepNode {
				consumers++
			}
		}
		n.descendantCount.Store(consumers)
	}
}

// Graph is the full set of nodes, plus the for_each groups they came from.
type Graph struct {
	Nodes map[string]*Node
	// Groups maps an unkeyed step or resource ID to its instances in key
	// order. A plain step is a group of one.
	Groups map[string][]*Node
	Scope  *Scope
}

func newNode(addr *nodeid.Address, typ NodeType) *Node {
	return &Node{
		ID:         addr.String(),
		Addr:       addr,
		Name:       addr.Name,
		Type:       typ,
		Deps:       make(map[string]*Node),
		Dependents: make(map[string]*Node),
	}
}

func (g *Graph) link(from, to *Node) {
	if _, exists := from.Deps[to.ID]; exists {
		return
	}
	from.Deps[to.ID] = to
	to.Dependents[from.ID] = from
}
