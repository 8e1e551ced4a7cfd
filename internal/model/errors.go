package model

import (
	"errors"
	"fmt"
)

// ErrorCode identifies an error category in CLI and JSON output.
type ErrorCode string

const (
	// ErrCodeAccessDenied indicates the rule table refused the operation.
	ErrCodeAccessDenied ErrorCode = "E201"

	// ErrCodeNotFound indicates the addressed record does not exist.
	ErrCodeNotFound ErrorCode = "E202"

	// ErrCodeDanglingReference indicates a relationship names a missing record.
	ErrCodeDanglingReference ErrorCode = "E203"

	// ErrCodeValidation indicates a malformed record, patch or payload.
	ErrCodeValidation ErrorCode = "E204"
)

// AccessDeniedError reports a DENY decision.
type AccessDeniedError struct {
	// Participant is the caller.
	Participant Ref

	// Operation is the denied operation.
	Operation Operation

	// Resource is the target record, or the transaction for SUBMIT.
	Resource string

	// Reason distinguishes the denial class.
	Reason DenyReason

	// Rule names the matching rule, empty for the default fallthrough.
	Rule string

	// Creator is the offending creator for invalid-creator denials.
	Creator Ref

	// Err is the underlying cause, such as a DanglingReferenceError.
	Err error
}

// Error implements the error interface.
func (e *AccessDeniedError) Error() string {
	if e.Reason == ReasonInvalidCreator {
		return fmt.Sprintf("resource '%s' has creator '%s' of type '%s.%s' that is not derived from %s.%s",
			e.Resource, e.Creator.FQI(), Namespace, e.Creator.Type, Namespace, KindSystem)
	}
	msg := fmt.Sprintf("participant '%s' does not have '%s' access to resource '%s'",
		e.Participant.FQI(), e.Operation, e.Resource)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *AccessDeniedError) Unwrap() error { return e.Err }

// Code implements Coded.
func (e *AccessDeniedError) Code() ErrorCode { return ErrCodeAccessDenied }

// NotFoundError reports a missing record.
type NotFoundError struct {
	Type string
	ID   string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s.%s#%s not found", Namespace, e.Type, e.ID)
}

// Code implements Coded.
func (e *NotFoundError) Code() ErrorCode { return ErrCodeNotFound }

// DanglingReferenceError reports a relationship whose referent is missing.
type DanglingReferenceError struct {
	Type string
	ID   string
}

// Error implements the error interface.
func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("dangling reference to %s.%s#%s", Namespace, e.Type, e.ID)
}

// Code implements Coded.
func (e *DanglingReferenceError) Code() ErrorCode { return ErrCodeDanglingReference }

// ValidationError reports a field that violates a constraint.
type ValidationError struct {
	Field      string
	Constraint string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Constraint)
}

// Code implements Coded.
func (e *ValidationError) Code() ErrorCode { return ErrCodeValidation }

// Coded is implemented by every error in the taxonomy.
type Coded interface {
	error
	Code() ErrorCode
}

// CodeOf returns the taxonomy code of err, or "" for foreign errors.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var c Coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}

// IsAccessDenied returns true if err is or wraps an AccessDeniedError.
func IsAccessDenied(err error) bool {
	var ae *AccessDeniedError
	return errors.As(err, &ae)
}

// DenyReasonOf returns the denial reason carried by err, or "".
func DenyReasonOf(err error) DenyReason {
	var ae *AccessDeniedError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}

// IsNotFound returns true if err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsDanglingReference returns true if err is or wraps a DanglingReferenceError.
func IsDanglingReference(err error) bool {
	var de *DanglingReferenceError
	return errors.As(err, &de)
}

// IsValidation returns true if err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
