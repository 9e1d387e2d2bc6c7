// Package task manages background job fan-out, execution, and aggregation.
// The Scheduler fans a job's render tasks out onto a bounded worker pool,
// the executors drive individual tasks to terminal states while recording
// failures as data, and the Aggregator deterministically re-derives each
// job's status from its children.
package task
