package store

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/patdav1503/securelog-msg-network/internal/ir"
	"github.com/patdav1503/securelog-msg-network/internal/model"
)

// recordEncMode produces deterministic CBOR: sorted map keys, shortest
// integer forms. Identical records always encode to identical bytes.
var recordEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor enc mode: %v", err))
	}
	return em
}()

// marshalRecord encodes a record body for the records.body column.
func marshalRecord(rec model.Record) ([]byte, error) {
	data, err := recordEncMode.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", rec.Ref(), err)
	}
	return data, nil
}

// unmarshalRecord decodes a records.body column for the given type.
func unmarshalRecord(typ string, data []byte) (model.Record, error) {
	rec, err := model.NewRecord(typ)
	if err != nil {
		return nil, err
	}
	if err := cbor.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", typ, err)
	}
	return rec, nil
}

// marshalFields converts an event payload to canonical JSON TEXT.
func marshalFields(fields ir.IRObject) (string, error) {
	if fields == nil {
		fields = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

// unmarshalFields parses canonical JSON TEXT to IRObject.
func unmarshalFields(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := obj.UnmarshalJSON([]byte(data)); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return obj, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(model.TimestampFormat)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(model.TimestampFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
