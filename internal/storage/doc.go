// Package storage defines the shared data model and the Store interface the
// scheduler runs against, plus its SQLite implementation.
//
// The daemon assumes a single shared database between the scheduler and the
// external producers that create schedules and queue jobs. Every mutating
// operation that matters for correctness (queue claims, lock renewal) is a
// conditional update so concurrent writers cannot clobber each other.
package storage
