// Package domain contains the core entities of the rendering pipeline:
// jobs, render tasks, caption tasks and event log rows, together with
// their status enums, validation rules and terminality predicates.
package domain
