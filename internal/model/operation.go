package model

import "strings"

// Operation is the kind of access being requested.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpRead   Operation = "READ"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
	// OpSubmit targets a transaction name rather than a record type.
	OpSubmit Operation = "SUBMIT"
)

// Operations lists every operation in declaration order.
var Operations = []Operation{OpCreate, OpRead, OpUpdate, OpDelete, OpSubmit}

// ParseOperation accepts an operation name in any case.
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToUpper(s))
	for _, known := range Operations {
		if op == known {
			return op, nil
		}
	}
	return "", &ValidationError{Field: "operation", Constraint: "unknown operation " + s}
}

// DenyReason distinguishes why access was refused.
type DenyReason string

const (
	ReasonInsufficientAccess    DenyReason = "insufficient-access"
	ReasonInvalidCreator        DenyReason = "invalid-creator"
	ReasonUnauthorizedSubmitter DenyReason = "unauthorized-submitter"
	ReasonDanglingReference     DenyReason = "dangling-reference"
)

// Valid reports whether r is a defined reason.
func (r DenyReason) Valid() bool {
	switch r {
	case ReasonInsufficientAccess, ReasonInvalidCreator, ReasonUnauthorizedSubmitter, ReasonDanglingReference:
		return true
	}
	return false
}
