package testutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/elgrid/internal/dag"
)

// NodeStatus returns the report entry for id, failing the test if the run
// has no such node.
func NodeStatus(t *testing.T, result *HarnessResult, id string) dag.NodeStatus {
	t.Helper()
	require.NotNil(t, result.Report, "run produced no report")
	for _, n := range result.Report.Nodes {
		if n.ID == id {
			return n
		}
	}
	require.Failf(t, "node not found", "no node %q in report", id)
	return dag.NodeStatus{}
}

// AssertNodeState checks the final state of a node, e.g. "done" or "skipped".
func AssertNodeState(t *testing.T, result *HarnessResult, id, state string) {
	t.Helper()
	n := NodeStatus(t, result, id)
	require.Equal(t, state, n.State, "node %s: %s", id, n.Error)
}

// NodesWithPrefix returns the report entries whose id starts with prefix,
// e.g. every instance of a for_each step.
func NodesWithPrefix(result *HarnessResult, prefix string) []dag.NodeStatus {
	if result.Report == nil {
		return nil
	}
	var out []dag.NodeStatus
	for _, n := range result.Report.Nodes {
		if strings.HasPrefix(n.ID, prefix) {
			out = append(out, n)
		}
	}
	return out
}
