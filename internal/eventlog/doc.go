// Package eventlog is the append-only audit log of committed mutations.
//
// Commit assigns each event its identity, sequence number, timestamp and
// chained hash, then applies the events together with the record
// mutations they document in one store batch. Subscribers are woken
// only after the batch is durable, so an observed event always has its
// mutation visible.
//
// # Hash chain
//
//	hash = SHA256("securelog/event/v1" || 0x00 || canonical(event without hash))
//
// Each event's prevHash is the hash of the event before it; the first
// event has an empty prevHash. Verify recomputes the chain.
//
// # Concurrent writers
//
// Several processes may append to one store. Commit detects that the
// store moved through store.ErrSequenceConflict and advances the log's
// epoch. An Entry built from reads taken under an older epoch is refused,
// so callers re-read and re-authorize instead of replaying stale writes.
//
// # Subscriptions
//
// A Subscription is a cursor over the store, not a channel fed by
// Commit. It can start at any sequence number, survives restarts, and
// sees events written by other processes (found by polling).
package eventlog
