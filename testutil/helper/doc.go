// Package helper provides shared test helpers for the snapshot packages.
//
// It contains fixture entity types with their SQLite schema, an in-memory SQLite database factory,
// an in-memory EntityLoader/EntityWriter for tests that need no database, and spies for logging,
// metrics and tracing that capture observability calls for assertions.
package helper
