package model

// Severity grades an error message.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityError    Severity = "ERROR"
	SeverityWarning  Severity = "WARNING"
)

// Valid reports whether s is a defined severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityError, SeverityWarning:
		return true
	}
	return false
}

// Status tracks an error message through triage.
type Status string

const (
	StatusNew      Status = "NEW"
	StatusWorking  Status = "WORKING"
	StatusResolved Status = "RESOLVED"
)

// Valid reports whether s is a defined status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusWorking, StatusResolved:
		return true
	}
	return false
}

// ErrorMessage is the asset under access control.
//
// Creator and Owner are references; the participants they name are owned
// by the store and resolved on demand. Creator is fixed at creation.
type ErrorMessage struct {
	MessageID     string   `json:"messageId" yaml:"messageId" cbor:"1,keyasint"`
	Creator       Ref      `json:"creator" yaml:"creator" cbor:"2,keyasint"`
	Owner         Ref      `json:"owner" yaml:"owner" cbor:"3,keyasint"`
	ErrorType     string   `json:"errorType" yaml:"errorType" cbor:"4,keyasint"`
	ErrorSeverity Severity `json:"errorSeverity" yaml:"errorSeverity" cbor:"5,keyasint"`
	ErrorStatus   Status   `json:"errorStatus" yaml:"errorStatus" cbor:"6,keyasint"`
	ErrorText     string   `json:"errorText" yaml:"errorText" cbor:"7,keyasint"`
}

// RecordType implements Record.
func (m *ErrorMessage) RecordType() string { return AssetType }

// RecordID implements Record.
func (m *ErrorMessage) RecordID() string { return m.MessageID }

// Ref returns a reference to m.
func (m *ErrorMessage) Ref() Ref { return Ref{Type: AssetType, ID: m.MessageID} }

// ApplyDefaults fills an unset status with NEW.
func (m *ErrorMessage) ApplyDefaults() {
	if m.ErrorStatus == "" {
		m.ErrorStatus = StatusNew
	}
}

// Validate checks field-level constraints. The creator-kind constraint
// needs the store and is enforced by the access rules instead.
func (m *ErrorMessage) Validate() error {
	if m.MessageID == "" {
		return &ValidationError{Field: "messageId", Constraint: "required"}
	}
	if m.Creator.IsZero() {
		return &ValidationError{Field: "creator", Constraint: "required"}
	}
	if !IsParticipantKind(m.Creator.Type) {
		return &ValidationError{Field: "creator", Constraint: "must reference a participant"}
	}
	if m.Owner.IsZero() {
		return &ValidationError{Field: "owner", Constraint: "required"}
	}
	if !IsParticipantKind(m.Owner.Type) {
		return &ValidationError{Field: "owner", Constraint: "must reference a participant"}
	}
	if !m.ErrorSeverity.Valid() {
		return &ValidationError{Field: "errorSeverity", Constraint: "must be one of CRITICAL, ERROR, WARNING"}
	}
	if !m.ErrorStatus.Valid() {
		return &ValidationError{Field: "errorStatus", Constraint: "must be one of NEW, WORKING, RESOLVED"}
	}
	return nil
}

// Clone returns a copy of m.
func (m *ErrorMessage) Clone() Record {
	c := *m
	return &c
}

// Fields implements Record.
func (m *ErrorMessage) Fields() map[string]string {
	return map[string]string{
		"creator":       m.Creator.String(),
		"owner":         m.Owner.String(),
		"errorType":     m.ErrorType,
		"errorSeverity": string(m.ErrorSeverity),
		"errorStatus":   string(m.ErrorStatus),
		"errorText":     m.ErrorText,
	}
}

// Apply writes patch onto m. Values are not validated here; call
// Validate on the result.
func (m *ErrorMessage) Apply(patch Patch) error {
	for _, field := range patch.Keys() {
		value := patch[field]
		switch field {
		case "owner":
			ref, err := ParseRef(value)
			if err != nil {
				return &ValidationError{Field: "owner", Constraint: err.Error()}
			}
			m.Owner = ref
		case "creator":
			ref, err := ParseRef(value)
			if err != nil || ref != m.Creator {
				return &ValidationError{Field: "creator", Constraint: "immutable"}
			}
		case "messageId":
			if value != m.MessageID {
				return &ValidationError{Field: "messageId", Constraint: "immutable"}
			}
		case "errorType":
			m.ErrorType = value
		case "errorSeverity":
			m.ErrorSeverity = Severity(value)
		case "errorStatus":
			m.ErrorStatus = Status(value)
		case "errorText":
			m.ErrorText = value
		default:
			return &ValidationError{Field: field, Constraint: "unknown field"}
		}
	}
	return nil
}
