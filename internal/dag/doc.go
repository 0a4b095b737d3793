// Package dag turns a config.Model into an executable dependency graph and
// runs it.
//
// Build expands `for_each` steps into one node per key, links nodes through
// `depends_on` and through the step and resource references found in their
// expressions, and rejects cycles. The Executor then runs the graph on a
// fixed worker pool: a node is queued once every dependency is done, a
// failed node skips everything downstream of it, and resources are
// destroyed as soon as their last consumer finishes.
package dag
