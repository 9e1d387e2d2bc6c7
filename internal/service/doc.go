// Package service contains the application-specific use cases and business
// logic. It orchestrates interactions between domain objects and repositories
// (defined in internal/store) to fulfill application features.
//
// JobService is the boundary surface of the pipeline: job submission with
// idempotency, cancellation, retry, reads, and live event subscription all
// flow through it. It depends on domain entities and repository interfaces,
// never on specific infrastructure implementations.
package service
