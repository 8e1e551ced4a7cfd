package model

import (
	"time"

	"github.com/patdav1503/securelog-msg-network/internal/ir"
)

// Event kinds.
const (
	EventErrorMessagePosted          = "ErrorMessagePosted"
	EventErrorMessageSnapshot        = "ErrorMessageSnapshot"
	EventErrorMessageOwnerUpdated    = "ErrorMessageOwnerUpdated"
	EventErrorMessageStatusUpdated   = "ErrorMessageStatusUpdated"
	EventErrorMessageSeverityUpdated = "ErrorMessageSeverityUpdated"
	EventRecordCreated               = "RecordCreated"
	EventRecordUpdated               = "RecordUpdated"
	EventRecordDeleted               = "RecordDeleted"
)

// Event is the immutable audit record of one committed mutation.
//
// Seq is assigned by the event log and is strictly increasing without
// gaps. Hash chains each event to its predecessor through PrevHash.
type Event struct {
	ID            string      `json:"eventId"`
	Seq           int64       `json:"seq"`
	Timestamp     time.Time   `json:"timestamp"`
	Kind          string      `json:"kind"`
	TransactionID string      `json:"transactionId"`
	Caller        string      `json:"caller"`
	Fields        ir.IRObject `json:"fields"`
	PrevHash      string      `json:"prevHash"`
	Hash          string      `json:"hash"`
}

// TimestampFormat is the wire form of Event.Timestamp in hashed content.
const TimestampFormat = time.RFC3339Nano

// Content returns the hashed view of e: every field except Hash.
func (e Event) Content() ir.IRObject {
	fields := e.Fields
	if fields == nil {
		fields = ir.IRObject{}
	}
	return ir.IRObject{
		"eventId":       ir.IRString(e.ID),
		"seq":           ir.IRInt(e.Seq),
		"timestamp":     ir.IRString(e.Timestamp.UTC().Format(TimestampFormat)),
		"kind":          ir.IRString(e.Kind),
		"transactionId": ir.IRString(e.TransactionID),
		"caller":        ir.IRString(e.Caller),
		"fields":        fields,
		"prevHash":      ir.IRString(e.PrevHash),
	}
}

// ComputeHash returns the chained hash of e.
func (e Event) ComputeHash() (string, error) {
	return ir.HashCanonical(ir.DomainEvent, e.Content())
}

// PendingEvent is an event before the log assigns its identity,
// sequence, timestamp and hash.
type PendingEvent struct {
	Kind   string
	Fields ir.IRObject
}

// RecordFields renders a record's attributes as an event payload,
// keyed under the record's id field. Relationships are rendered as
// fully qualified identifiers.
func RecordFields(rec Record) ir.IRObject {
	out := ir.IRObject{}
	for k, v := range rec.Fields() {
		out[k] = ir.IRString(v)
	}
	switch r := rec.(type) {
	case *ErrorMessage:
		out["messageId"] = ir.IRString(r.MessageID)
		out["creator"] = ir.IRString(r.Creator.FQI())
		out["owner"] = ir.IRString(r.Owner.FQI())
	default:
		out["id"] = ir.IRString(rec.RecordID())
	}
	out["resource"] = ir.IRString(rec.Ref().FQI())
	return out
}
