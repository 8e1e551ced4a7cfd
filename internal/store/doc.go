// Package store holds the resource graph: participants and assets keyed
// by type and id, plus the append-only event table that documents every
// committed mutation.
//
// Two implementations satisfy Graph:
//   - Memory: in-process, used by tests and the scenario harness
//   - SQLite: durable, used by the CLI
//
// # Atomicity
//
// Apply commits a Batch of record puts, record deletes and events as one
// unit. A reader never observes an event without the mutation it
// documents, nor the reverse.
//
// # Ordering
//
//   - List returns records of a type in insertion order. Updating a
//     record keeps its position; deleting and re-creating moves it last.
//   - Events are ordered by seq, a gap-free logical clock starting at 1.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Record bodies are stored as deterministic CBOR. Event payloads are
// stored as RFC 8785 canonical JSON so the hash chain can be re-verified
// from the raw rows.
//
// The store never consults the access rules. Callers authorize first.
package store
