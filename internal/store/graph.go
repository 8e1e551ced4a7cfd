package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/patdav1503/securelog-msg-network/internal/ir"
	"github.com/patdav1503/securelog-msg-network/internal/model"
)

// ErrSequenceConflict is returned by Apply when a batch's events do not
// continue the log head. Another writer committed first.
var ErrSequenceConflict = errors.New("event sequence conflict")

// Graph is the resource graph store.
type Graph interface {
	// Get returns a copy of the record, or a *model.NotFoundError.
	Get(ctx context.Context, typ, id string) (model.Record, error)

	// List returns copies of every record of typ in insertion order.
	List(ctx context.Context, typ string) ([]model.Record, error)

	// Apply commits b atomically.
	Apply(ctx context.Context, b Batch) error

	// Events returns up to limit events with seq > afterSeq in seq order.
	// A limit <= 0 means no limit.
	Events(ctx context.Context, afterSeq int64, limit int) ([]model.Event, error)

	// Head returns the sequence and hash of the last event, or (0, "").
	Head(ctx context.Context) (int64, string, error)

	Close() error
}

// Batch is a set of mutations committed together.
//
// Puts insert or replace records. Deletes must name existing records;
// a missing one fails the whole batch with *model.NotFoundError. Events
// must carry consecutive seq values continuing the current head.
type Batch struct {
	Puts    []model.Record
	Deletes []model.Ref
	Events  []model.Event
}

// Empty reports whether b has nothing to commit.
func (b Batch) Empty() bool {
	return len(b.Puts) == 0 && len(b.Deletes) == 0 && len(b.Events) == 0
}

// Put stores a single record with no event.
// Used by administrative provisioning.
func Put(ctx context.Context, g Graph, rec model.Record) error {
	return g.Apply(ctx, Batch{Puts: []model.Record{rec}})
}

// Delete removes a single record with no event.
func Delete(ctx context.Context, g Graph, typ, id string) error {
	return g.Apply(ctx, Batch{Deletes: []model.Ref{model.NewRef(typ, id)}})
}

// Exists reports whether the record is present.
func Exists(ctx context.Context, g Graph, typ, id string) (bool, error) {
	_, err := g.Get(ctx, typ, id)
	if model.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// checkSequence verifies that events continue head without gaps.
func checkSequence(head int64, events []model.Event) error {
	for i, e := range events {
		if want := head + int64(i) + 1; e.Seq != want {
			return fmt.Errorf("%w: event %s has seq %d, want %d", ErrSequenceConflict, e.ID, e.Seq, want)
		}
	}
	return nil
}

// Digest hashes the current state of every record of the given types.
// Two stores with the same records in the same order share a digest.
func Digest(ctx context.Context, g Graph, types []string) (string, error) {
	state := ir.IRArray{}
	for _, typ := range types {
		recs, err := g.List(ctx, typ)
		if err != nil {
			return "", fmt.Errorf("digest %s: %w", typ, err)
		}
		for _, rec := range recs {
			state = append(state, model.RecordFields(rec))
		}
	}
	return ir.HashCanonical(ir.DomainState, state)
}

// AllTypes lists every record type in provisioning order.
func AllTypes() []string {
	return append(append([]string{}, model.ParticipantKinds...), model.AssetType)
}
