// Package postgres provides PostgreSQL implementations of the store
// interfaces for jobs, render tasks, caption tasks and the event log.
// It handles query execution, row locking, execution-token fencing and the
// mapping between domain entities and database records.
package postgres
