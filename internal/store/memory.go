package store

import (
	"context"
	"slices"
	"sync"

	"github.com/patdav1503/securelog-msg-network/internal/model"
)

// Memory is an in-process Graph guarded by a single RWMutex.
type Memory struct {
	mu      sync.RWMutex
	records map[model.Ref]model.Record
	order   map[string][]string
	events  []model.Event
}

// NewMemory returns an empty in-memory graph.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[model.Ref]model.Record),
		order:   make(map[string][]string),
	}
}

// Get implements Graph.
func (m *Memory) Get(_ context.Context, typ, id string) (model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[model.NewRef(typ, id)]
	if !ok {
		return nil, &model.NotFoundError{Type: typ, ID: id}
	}
	return rec.Clone(), nil
}

// List implements Graph.
func (m *Memory) List(_ context.Context, typ string) ([]model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.order[typ]
	out := make([]model.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.records[model.NewRef(typ, id)].Clone())
	}
	return out, nil
}

// Apply implements Graph. The batch is checked in full before any
// mutation so a failure leaves the graph untouched.
func (m *Memory) Apply(_ context.Context, b Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ref := range b.Deletes {
		if _, ok := m.records[ref]; !ok {
			return &model.NotFoundError{Type: ref.Type, ID: ref.ID}
		}
	}
	if err := checkSequence(int64(len(m.events)), b.Events); err != nil {
		return err
	}

	for _, rec := range b.Puts {
		ref := rec.Ref()
		if _, ok := m.records[ref]; !ok {
			m.order[ref.Type] = append(m.order[ref.Type], ref.ID)
		}
		m.records[ref] = rec.Clone()
	}
	for _, ref := range b.Deletes {
		delete(m.records, ref)
		m.order[ref.Type] = slices.DeleteFunc(m.order[ref.Type], func(id string) bool { return id == ref.ID })
	}
	for _, e := range b.Events {
		e.Fields = e.Fields.Clone()
		m.events = append(m.events, e)
	}
	return nil
}

// Events implements Graph.
func (m *Memory) Events(_ context.Context, afterSeq int64, limit int) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// seq n lives at index n-1.
	start := max(afterSeq, 0)
	if start >= int64(len(m.events)) {
		return []model.Event{}, nil
	}
	window := m.events[start:]
	if limit > 0 && len(window) > limit {
		window = window[:limit]
	}
	return slices.Clone(window), nil
}

// Head implements Graph.
func (m *Memory) Head(_ context.Context) (int64, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.events) == 0 {
		return 0, "", nil
	}
	last := m.events[len(m.events)-1]
	return last.Seq, last.Hash, nil
}

// Close implements Graph. It is a no-op.
func (m *Memory) Close() error {
	return nil
}
