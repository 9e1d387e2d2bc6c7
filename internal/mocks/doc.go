// Package mocks provides centralized mock implementations for testing.
//
// This package contains in-memory implementations of the store interfaces
// plus stub collaborators (algorithms, publishers), facilitating consistent
// and DRY testing across the codebase. Instead of defining inline mocks in
// individual test files, these standardized implementations can be reused.
//
// The in-memory stores preserve the semantics tests depend on: idempotency
// key uniqueness, execution-token fencing, and append-only event rows.
package mocks
