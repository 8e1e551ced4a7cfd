// Package ir provides the constrained value model shared by events and
// the audit hash chain.
//
// This package imports nothing internal. Event payloads are IRObject
// values so that every field has a single canonical encoding:
//   - no float types; numbers are int64
//   - object keys are ordered by UTF-16 code units (RFC 8785)
//   - strings are NFC normalized at the serialization boundary
package ir
