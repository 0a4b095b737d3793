package dag

import (
	"sort"
)

// Pipeline stage values that are not user-defined milestones.
const (
	StagePending = "PENDING"
	StageFailed  = "FAILED"
)

// NodeStatus is the reportable state of one node.
type NodeStatus struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	State      string `json:"state"`
	Stage      string `json:"stage,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Report summarizes a run, either in progress or finished.
type Report struct {
	// Stage is the last milestone reached, provided every earlier one was
	// reached too. It is FAILED as soon as any node fails or is skipped.
	Stage  string         `json:"stage"`
	Counts map[string]int `json:"counts"`
	Nodes  []NodeStatus   `json:"nodes"`
}

func newReport(nodes []*Node) *Report {
	r := &Report{
		Counts: make(map[string]int),
		Nodes:  make([]NodeStatus, 0, len(nodes)),
	}
	for _, n := range nodes {
		state := n.State()
		status := NodeStatus{
			ID:         n.ID,
			Type:       n.Type.String(),
			State:      state.String(),
			Stage:      n.Stage(),
			DurationMS: n.Duration().Milliseconds(),
		}
		if err := n.Err(); err != nil {
			status.Error = err.Error()
		}
		r.Counts[status.State]++
		r.Nodes = append(r.Nodes, status)
	}
	r.Stage = pipelineStage(nodes)
	return r
}

// pipelineStage derives the pipeline state from node states. Milestones
// are ordered by the shallowest graph level at which they appear. A
// `stage` milestone counts once all of its steps are done. A
// `running_stage` milestone counts as soon as one of its steps has
// started, and holds until a later milestone is reached.
func pipelineStage(nodes []*Node) string {
	type milestone struct {
		name     string
		level    int
		running  bool
		started  bool
		complete bool
	}
	type key struct {
		name    string
		running bool
	}
	byKey := make(map[key]*milestone)
	track := func(n *Node, name string, running bool) {
		k := key{name, running}
		m, ok := byKey[k]
		if !ok {
			m = &milestone{name: name, level: n.Level, running: running, complete: true}
			byKey[k] = m
		}
		if n.Level < m.level {
			m.level = n.Level
		}
		switch n.State() {
		case Done:
			m.started = true
		case Running:
			m.started = true
			m.complete = false
		default:
			m.complete = false
		}
	}

	for _, n := range nodes {
		state := n.State()
		if state == Failed || state == Skipped {
			return StageFailed
		}
		if name := n.Stage(); name != "" {
			track(n, name, false)
		}
		if name := n.RunningStage(); name != "" {
			track(n, name, true)
		}
	}

	ordered := make([]*milestone, 0, len(byKey))
	for _, m := range byKey {
		ordered = append(ordered, m)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.level != b.level {
			return a.level < b.level
		}
		if a.running != b.running {
			return a.running
		}
		return a.name < b.name
	})

	stage := StagePending
	for _, m := range ordered {
		reached := m.complete
		if m.running {
			reached = m.started
		}
		if !reached {
			break
		}
		stage = m.name
	}
	return stage
}
