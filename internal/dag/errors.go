package dag

import "errors"

var (
	// ErrMissingVariable is returned when a variable has no value and no default.
	ErrMissingVariable = errors.New("missing required variable")
	// ErrCycle is returned when the graph contains a dependency cycle.
	ErrCycle = errors.New("dependency cycle")
	// ErrSkipped marks a node that never ran because an upstream node failed
	// or the run was canceled.
	ErrSkipped = errors.New("skipped")
)
