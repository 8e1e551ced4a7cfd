// Package resolve turns typed relationships into the records they name.
//
// A Resolver never caches. Owners change independently of the records
// that point at them, so every lookup reads the store.
package resolve

import (
	"context"
	"fmt"

	"github.com/patdav1503/securelog-msg-network/internal/model"
	"github.com/patdav1503/securelog-msg-network/internal/store"
)

// Resolver looks up relationship targets in a Graph.
type Resolver struct {
	graph store.Graph
}

// New returns a Resolver reading from g.
func New(g store.Graph) *Resolver {
	return &Resolver{graph: g}
}

// Resolve fetches the record ref points at. A missing referent is a
// *model.DanglingReferenceError, never a NotFoundError.
func (r *Resolver) Resolve(ctx context.Context, ref model.Ref) (model.Record, error) {
	if ref.IsZero() {
		return nil, &model.DanglingReferenceError{}
	}
	rec, err := r.graph.Get(ctx, ref.Type, ref.ID)
	if model.IsNotFound(err) {
		return nil, &model.DanglingReferenceError{Type: ref.Type, ID: ref.ID}
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}
	return rec, nil
}

// Participant resolves ref and requires the referent to be a participant.
func (r *Resolver) Participant(ctx context.Context, ref model.Ref) (*model.Participant, error) {
	if !model.IsParticipantKind(ref.Type) {
		return nil, &model.ValidationError{Field: "ref", Constraint: fmt.Sprintf("%s is not a participant", ref)}
	}
	rec, err := r.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	p, ok := rec.(*model.Participant)
	if !ok {
		return nil, fmt.Errorf("resolve %s: unexpected record %T", ref, rec)
	}
	return p, nil
}

// Message resolves ref and requires the referent to be an ErrorMessage.
func (r *Resolver) Message(ctx context.Context, ref model.Ref) (*model.ErrorMessage, error) {
	if ref.Type != model.AssetType {
		return nil, &model.ValidationError{Field: "ref", Constraint: fmt.Sprintf("%s is not an %s", ref, model.AssetType)}
	}
	rec, err := r.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	m, ok := rec.(*model.ErrorMessage)
	if !ok {
		return nil, fmt.Errorf("resolve %s: unexpected record %T", ref, rec)
	}
	return m, nil
}

// Is reports whether ref points at the participant identified by who.
// It resolves ref so that a dangling relationship is an error rather
// than a silent mismatch.
func (r *Resolver) Is(ctx context.Context, ref, who model.Ref) (bool, error) {
	p, err := r.Participant(ctx, ref)
	if err != nil {
		return false, err
	}
	return p.Ref() == who, nil
}
