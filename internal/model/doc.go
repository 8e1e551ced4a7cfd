// Package model defines the records of the securelog business network:
// participants, the ErrorMessage asset, typed relationships between them,
// audit events, and the error taxonomy shared by every other package.
//
// Relationships are stored by reference (type + id) and never copy the
// referenced record. Resolution is the job of internal/resolve.
package model
