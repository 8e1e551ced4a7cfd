package engine

import (
	"fmt"
	"slices"

	"github.com/patdav1503/securelog-msg-network/internal/ir"
	"github.com/patdav1503/securelog-msg-network/internal/model"
)

// classKey is the optional type discriminator clients may send with a
// payload. When present it must name the submitted transaction.
const classKey = "$class"

// payload reads string parameters from a transaction payload.
type payload struct {
	name string
	obj  ir.IRObject
}

// newPayload rejects keys outside allowed and non-string values.
func newPayload(name string, obj ir.IRObject, allowed ...string) (payload, error) {
	for _, key := range obj.SortedKeys() {
		if key == classKey {
			if obj.String(key) != model.TransactionFQI(name) {
				return payload{}, &model.ValidationError{Field: classKey, Constraint: fmt.Sprintf("must be %s", model.TransactionFQI(name))}
			}
			continue
		}
		if !slices.Contains(allowed, key) {
			return payload{}, &model.ValidationError{Field: key, Constraint: "unknown parameter of " + name}
		}
		if _, ok := obj[key].(ir.IRString); !ok {
			return payload{}, &model.ValidationError{Field: key, Constraint: "must be a string"}
		}
	}
	return payload{name: name, obj: obj}, nil
}

// optional returns the parameter, or "" when absent.
func (p payload) optional(key string) string {
	return p.obj.String(key)
}

// required returns the parameter or a ValidationError when it is absent
// or empty.
func (p payload) required(key string) (string, error) {
	v := p.obj.String(key)
	if v == "" {
		return "", &model.ValidationError{Field: key, Constraint: "required"}
	}
	return v, nil
}

// ref parses a required relationship parameter.
func (p payload) ref(key string) (model.Ref, error) {
	v, err := p.required(key)
	if err != nil {
		return model.Ref{}, err
	}
	ref, err := model.ParseRef(v)
	if err != nil {
		return model.Ref{}, &model.ValidationError{Field: key, Constraint: err.Error()}
	}
	return ref, nil
}

// postParams lists the parameters of postErrorMessage.
var postParams = []string{"messageId", "creator", "owner", "errorType", "errorSeverity", "errorStatus", "errorText"}

// decodePost builds the proposed message. An absent creator defaults to
// caller and an absent status to NEW.
func decodePost(caller model.Ref, obj ir.IRObject) (*model.ErrorMessage, error) {
	p, err := newPayload(model.TxPostErrorMessage, obj, postParams...)
	if err != nil {
		return nil, err
	}
	msg := &model.ErrorMessage{
		MessageID:     p.optional("messageId"),
		Creator:       caller,
		ErrorType:     p.optional("errorType"),
		ErrorSeverity: model.Severity(p.optional("errorSeverity")),
		ErrorStatus:   model.Status(p.optional("errorStatus")),
		ErrorText:     p.optional("errorText"),
	}
	if p.optional("creator") != "" {
		if msg.Creator, err = p.ref("creator"); err != nil {
			return nil, err
		}
	}
	if msg.Owner, err = p.ref("owner"); err != nil {
		return nil, err
	}
	msg.ApplyDefaults()
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}
