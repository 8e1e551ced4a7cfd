// Package fixture loads network fixtures: the participants and seed
// messages an administrator provisions before any caller acts.
//
// Provisioning writes straight to the store. It bypasses access control
// and emits no events, but it still enforces the record invariants: every
// relationship must resolve and every message creator must be a System
// participant.
package fixture

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/patdav1503/securelog-msg-network/internal/model"
	"github.com/patdav1503/securelog-msg-network/internal/store"
)

// Network is the YAML fixture format.
type Network struct {
	Participants []Participant `yaml:"participants"`
	Messages     []Message     `yaml:"messages"`
}

// Participant is one provisioned identity.
type Participant struct {
	Type      string `yaml:"type"`
	ID        string `yaml:"id"`
	FirstName string `yaml:"firstName"`
	LastName  string `yaml:"lastName"`
}

// Message is one seed ErrorMessage. References take Type#id.
type Message struct {
	MessageID     string `yaml:"messageId"`
	Creator       string `yaml:"creator"`
	Owner         string `yaml:"owner"`
	ErrorType     string `yaml:"errorType"`
	ErrorSeverity string `yaml:"errorSeverity"`
	ErrorStatus   string `yaml:"errorStatus,omitempty"`
	ErrorText     string `yaml:"errorText"`
}

// Load reads and parses a fixture file.
func Load(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a fixture, rejecting unknown fields.
func Parse(data []byte) (*Network, error) {
	var n Network
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&n); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return &n, nil
}

// Records converts the fixture into validated records, participants
// first, in file order.
func (n *Network) Records() ([]model.Record, error) {
	var out []model.Record
	for i, p := range n.Participants {
		rec := &model.Participant{Kind: p.Type, ID: p.ID, FirstName: p.FirstName, LastName: p.LastName}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("participants[%d]: %w", i, err)
		}
		out = append(out, rec)
	}
	for i, m := range n.Messages {
		rec, err := m.record()
		if err != nil {
			return nil, fmt.Errorf("messages[%d]: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m Message) record() (*model.ErrorMessage, error) {
	creator, err := model.ParseRef(m.Creator)
	if err != nil {
		return nil, &model.ValidationError{Field: "creator", Constraint: err.Error()}
	}
	owner, err := model.ParseRef(m.Owner)
	if err != nil {
		return nil, &model.ValidationError{Field: "owner", Constraint: err.Error()}
	}
	rec := &model.ErrorMessage{
		MessageID:     m.MessageID,
		Creator:       creator,
		Owner:         owner,
		ErrorType:     m.ErrorType,
		ErrorSeverity: model.Severity(m.ErrorSeverity),
		ErrorStatus:   model.Status(m.ErrorStatus),
		ErrorText:     m.ErrorText,
	}
	rec.ApplyDefaults()
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Provision writes every fixture record to g in one batch. It fails
// without writing anything if a record already exists, a record id is
// repeated, or a relationship does not resolve within the fixture or g.
func Provision(ctx context.Context, g store.Graph, n *Network) error {
	recs, err := n.Records()
	if err != nil {
		return fmt.Errorf("provision: %w", err)
	}

	pending := make(map[model.Ref]model.Record, len(recs))
	for _, rec := range recs {
		ref := rec.Ref()
		if _, dup := pending[ref]; dup {
			return fmt.Errorf("provision: %s: duplicate record", ref)
		}
		exists, err := store.Exists(ctx, g, ref.Type, ref.ID)
		if err != nil {
			return fmt.Errorf("provision: %w", err)
		}
		if exists {
			return fmt.Errorf("provision: %s: already exists", ref)
		}
		pending[ref] = rec
	}

	lookup := func(ref model.Ref) (model.Record, error) {
		if rec, ok := pending[ref]; ok {
			return rec, nil
		}
		rec, err := g.Get(ctx, ref.Type, ref.ID)
		if model.IsNotFound(err) {
			return nil, &model.DanglingReferenceError{Type: ref.Type, ID: ref.ID}
		}
		return rec, err
	}
	for _, rec := range recs {
		msg, ok := rec.(*model.ErrorMessage)
		if !ok {
			continue
		}
		creator, err := lookup(msg.Creator)
		if err != nil {
			return fmt.Errorf("provision: %s creator: %w", msg.Ref(), err)
		}
		if creator.RecordType() != model.KindSystem {
			return fmt.Errorf("provision: %s: %w", msg.Ref(), &model.ValidationError{
				Field:      "creator",
				Constraint: fmt.Sprintf("%s is not a %s participant", msg.Creator, model.KindSystem),
			})
		}
		if _, err := lookup(msg.Owner); err != nil {
			return fmt.Errorf("provision: %s owner: %w", msg.Ref(), err)
		}
	}

	if err := g.Apply(ctx, store.Batch{Puts: recs}); err != nil {
		return fmt.Errorf("provision: %w", err)
	}
	return nil
}
