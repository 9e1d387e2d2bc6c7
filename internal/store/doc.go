// Package store defines the persistence interfaces for jobs, render tasks,
// caption tasks and the append-only event log, plus the transaction
// primitives the aggregation and cancellation paths run under. It keeps the
// pipeline's core logic independent of the concrete database.
package store
