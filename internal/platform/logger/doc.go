// Package logger provides structured JSON logging for the pipeline.
//
// It builds on log/slog with configurable levels and helpers for carrying
// a request- or task-scoped logger through a context.
package logger
