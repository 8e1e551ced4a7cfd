package model

import "slices"

// Participant kinds. The set is closed configuration; kinds do not form
// a hierarchy and each is a distinct authorization class.
const (
	KindMember = "Member"
	KindLevel2 = "Level2"
	KindLevel3 = "Level3"
	KindSystem = "System"
)

// ParticipantKinds lists every participant kind in declaration order.
var ParticipantKinds = []string{KindMember, KindLevel2, KindLevel3, KindSystem}

// IsParticipantKind reports whether typ names a participant kind.
func IsParticipantKind(typ string) bool {
	return slices.Contains(ParticipantKinds, typ)
}

// Participant is an identity-bearing record.
type Participant struct {
	Kind      string `json:"type" yaml:"type" cbor:"1,keyasint"`
	ID        string `json:"id" yaml:"id" cbor:"2,keyasint"`
	FirstName string `json:"firstName" yaml:"firstName" cbor:"3,keyasint"`
	LastName  string `json:"lastName" yaml:"lastName" cbor:"4,keyasint"`
}

// RecordType implements Record.
func (p *Participant) RecordType() string { return p.Kind }

// RecordID implements Record.
func (p *Participant) RecordID() string { return p.ID }

// Ref returns a reference to p.
func (p *Participant) Ref() Ref { return Ref{Type: p.Kind, ID: p.ID} }

// Validate checks the participant's kind and identity.
func (p *Participant) Validate() error {
	if !IsParticipantKind(p.Kind) {
		return &ValidationError{Field: "type", Constraint: "unknown participant kind " + p.Kind}
	}
	if p.ID == "" {
		return &ValidationError{Field: "id", Constraint: "required"}
	}
	return nil
}

// Clone returns a copy of p.
func (p *Participant) Clone() Record {
	c := *p
	return &c
}

// Fields returns the participant's attributes keyed by field name.
func (p *Participant) Fields() map[string]string {
	return map[string]string{
		"firstName": p.FirstName,
		"lastName":  p.LastName,
	}
}

// Apply writes patch onto p. Identity fields cannot be patched.
func (p *Participant) Apply(patch Patch) error {
	for _, field := range patch.Keys() {
		value := patch[field]
		switch field {
		case "firstName":
			p.FirstName = value
		case "lastName":
			p.LastName = value
		case "type", "id":
			return &ValidationError{Field: field, Constraint: "immutable"}
		default:
			return &ValidationError{Field: field, Constraint: "unknown field"}
		}
	}
	return nil
}
