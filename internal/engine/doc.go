// Package engine implements the transaction processor and the boundary
// operations of the network.
//
// Every operation follows the same shape: resolve the caller, take the
// per-record lock, authorize through the access control engine, then
// commit record mutations and their events as one event log entry. A
// denial or validation failure returns before anything is committed, so
// the store and the log never show a partial effect.
//
// ARCHITECTURE:
//
// Per-Record Serialisation:
// Operations on the same record hold that record's lock for the whole
// authorize, read, write sequence. Operations on different records run
// in parallel until they reach eventlog.Log.Commit, which assigns
// sequence numbers one entry at a time.
//
// Transactions:
//   - postErrorMessage creates an ErrorMessage and emits
//     ErrorMessagePosted followed by ErrorMessageSnapshot
//   - updateErrorMessageOwner, updateErrorMessageStatus and
//     updateErrorMessageSeverity change one field and emit one event
//     carrying oldMessage with the old and new values
//
// Direct record access (CreateRecord, UpdateRecord, DeleteRecord) emits
// RecordCreated, RecordUpdated and RecordDeleted.
package engine
