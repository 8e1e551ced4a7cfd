package model

import (
	"fmt"
	"maps"
	"slices"
)

// AssetType is the type name of the only asset in the network.
const AssetType = "ErrorMessage"

// Record is a typed entry in the resource graph.
type Record interface {
	RecordType() string
	RecordID() string
	Ref() Ref
	Validate() error
	Clone() Record
	// Fields exposes attributes as strings for rule conditions and
	// event payloads. Reference fields render as Type#id.
	Fields() map[string]string
	Apply(patch Patch) error
}

// IsKnownType reports whether typ names a participant kind or the asset.
func IsKnownType(typ string) bool {
	return typ == AssetType || IsParticipantKind(typ)
}

// NewRecord returns an empty record of the given type, ready to decode into.
func NewRecord(typ string) (Record, error) {
	switch {
	case typ == AssetType:
		return &ErrorMessage{}, nil
	case IsParticipantKind(typ):
		return &Participant{Kind: typ}, nil
	default:
		return nil, &ValidationError{Field: "type", Constraint: fmt.Sprintf("unknown record type %q", typ)}
	}
}

// Patch maps field names to new values. Reference fields take Type#id.
type Patch map[string]string

// Keys returns the patched field names in lexical order.
func (p Patch) Keys() []string {
	return slices.Sorted(maps.Keys(p))
}

// Diff lists the fields whose values differ between before and after.
func Diff(before, after Record) []string {
	old, cur := before.Fields(), after.Fields()
	var changed []string
	for _, k := range slices.Sorted(maps.Keys(cur)) {
		if old[k] != cur[k] {
			changed = append(changed, k)
		}
	}
	return changed
}
