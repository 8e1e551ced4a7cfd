package model

import (
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Namespace qualifies every type name in the network.
const Namespace = "org.securelog.mynetwork"

// Ref is a typed by-reference pointer to a record.
type Ref struct {
	Type string `json:"type" yaml:"type"`
	ID   string `json:"id" yaml:"id"`
}

// NewRef builds a reference to the record of the given type and id.
func NewRef(typ, id string) Ref {
	return Ref{Type: typ, ID: id}
}

// IsZero reports whether r is unset.
func (r Ref) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

// String renders the short form "Type#id".
func (r Ref) String() string {
	if r.IsZero() {
		return ""
	}
	return r.Type + "#" + r.ID
}

// FQI renders the fully qualified identifier "<namespace>.Type#id".
func (r Ref) FQI() string {
	if r.IsZero() {
		return ""
	}
	return Namespace + "." + r.Type + "#" + r.ID
}

// MarshalText encodes the short form so refs read naturally in JSON,
// YAML and CBOR payloads.
func (r Ref) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText accepts the short or the fully qualified form. Empty
// text decodes to the zero Ref.
func (r *Ref) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*r = Ref{}
		return nil
	}
	parsed, err := ParseRef(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// MarshalCBOR encodes the short form as a CBOR text string.
func (r Ref) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(r.String())
}

// UnmarshalCBOR decodes a CBOR text string in either form.
func (r *Ref) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	return r.UnmarshalText([]byte(s))
}

// ParseRef parses "Type#id" or "org.securelog.mynetwork.Type#id".
func ParseRef(s string) (Ref, error) {
	typ, id, ok := strings.Cut(s, "#")
	if !ok || typ == "" || id == "" {
		return Ref{}, &ValidationError{Field: "ref", Constraint: fmt.Sprintf("malformed reference %q: want Type#id", s)}
	}
	typ = strings.TrimPrefix(typ, Namespace+".")
	if strings.Contains(typ, ".") {
		return Ref{}, &ValidationError{Field: "ref", Constraint: fmt.Sprintf("reference %q is outside namespace %s", s, Namespace)}
	}
	return Ref{Type: typ, ID: id}, nil
}

// MustParseRef is like ParseRef but panics on error.
// Use only in tests or with literal inputs.
func MustParseRef(s string) Ref {
	r, err := ParseRef(s)
	if err != nil {
		panic(err)
	}
	return r
}
