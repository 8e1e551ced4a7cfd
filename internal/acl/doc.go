// Package acl decides whether a participant may perform an operation on
// a record or submit a transaction.
//
// Policy is an ordered Table of named rules. Evaluation is first-match:
// the first rule whose operation, resource, participant kind, accessed
// field and condition all match decides ALLOW or DENY. When no rule
// matches, the request is denied. SUBMIT requests fall through to
// unauthorized-submitter, everything else to insufficient-access.
//
// Conditions that follow a relationship (owner, creatorNotSystem) go
// through the resolver on every evaluation. A dangling relationship
// stops evaluation with DENY(dangling-reference).
//
// Tables are built in Go (DefaultTable) or loaded from CUE files checked
// against the embedded #Policy schema (LoadPolicy).
package acl
