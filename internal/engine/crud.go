package engine

import (
	"context"
	"fmt"

	"github.com/patdav1503/securelog-msg-network/internal/acl"
	"github.com/patdav1503/securelog-msg-network/internal/eventlog"
	"github.com/patdav1503/securelog-msg-network/internal/ir"
	"github.com/patdav1503/securelog-msg-network/internal/model"
)

// CreateRecord adds rec as caller. ErrorMessage status defaults to NEW.
func (e *Engine) CreateRecord(ctx context.Context, caller model.Ref, typ string, rec model.Record) (err error) {
	ctx, span := e.start(ctx, "engine.CreateRecord", caller, model.OpCreate, model.Namespace+"."+typ)
	defer func() { e.finish(span, "createRecord", err) }()

	if err := checkType(typ); err != nil {
		return err
	}
	if rec == nil || rec.RecordType() != typ {
		return &model.ValidationError{Field: "type", Constraint: fmt.Sprintf("record is not a %s", typ)}
	}
	if err := e.authenticate(ctx, caller, model.OpCreate, model.Namespace+"."+typ); err != nil {
		return err
	}

	rec = rec.Clone()
	if msg, ok := rec.(*model.ErrorMessage); ok {
		msg.ApplyDefaults()
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	_, err = e.retry(ctx, func(epoch uint64) ([]model.Event, error) {
		unlock := e.locks.Lock(rec.Ref().String())
		defer unlock()

		req := acl.Request{Caller: caller, Operation: model.OpCreate, Resource: typ, Target: rec}
		if err := e.check(ctx, req); err != nil {
			return nil, err
		}
		if err := e.createGuards(ctx, req, rec); err != nil {
			return nil, err
		}

		return e.commit(ctx, caller, epoch, eventlog.Entry{
			Puts:   []model.Record{rec},
			Events: []model.PendingEvent{{Kind: model.EventRecordCreated, Fields: model.RecordFields(rec)}},
		})
	})
	return err
}

// ReadRecord returns the record if caller may read it. A missing record
// is a *model.NotFoundError; an unreadable one is a denial.
func (e *Engine) ReadRecord(ctx context.Context, caller model.Ref, typ, id string) (rec model.Record, err error) {
	ctx, span := e.start(ctx, "engine.ReadRecord", caller, model.OpRead, model.NewRef(typ, id).FQI())
	defer func() { e.finish(span, "readRecord", err) }()

	if err := checkType(typ); err != nil {
		return nil, err
	}
	if err := e.authenticate(ctx, caller, model.OpRead, model.NewRef(typ, id).FQI()); err != nil {
		return nil, err
	}
	rec, err = e.graph.Get(ctx, typ, id)
	if err != nil {
		return nil, err
	}
	if err := e.check(ctx, acl.Request{Caller: caller, Operation: model.OpRead, Resource: typ, Target: rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

// ReadAll lists the records of typ caller may read, in insertion order.
// Unreadable records are omitted without error.
func (e *Engine) ReadAll(ctx context.Context, caller model.Ref, typ string) (recs []model.Record, err error) {
	ctx, span := e.start(ctx, "engine.ReadAll", caller, model.OpRead, model.Namespace+"."+typ)
	defer func() { e.finish(span, "readAll", err) }()

	if err := checkType(typ); err != nil {
		return nil, err
	}
	if err := e.authenticate(ctx, caller, model.OpRead, model.Namespace+"."+typ); err != nil {
		return nil, err
	}
	all, err := e.graph.List(ctx, typ)
	if err != nil {
		return nil, err
	}
	return e.acl.FilterReadable(ctx, caller, all)
}

// Exists reports whether the record exists and caller may read it. A
// record hidden from caller is reported as absent.
func (e *Engine) Exists(ctx context.Context, caller model.Ref, typ, id string) (ok bool, err error) {
	ctx, span := e.start(ctx, "engine.Exists", caller, model.OpRead, model.NewRef(typ, id).FQI())
	defer func() { e.finish(span, "exists", err) }()

	if err := checkType(typ); err != nil {
		return false, err
	}
	if err := e.authenticate(ctx, caller, model.OpRead, model.NewRef(typ, id).FQI()); err != nil {
		return false, err
	}
	rec, err := e.graph.Get(ctx, typ, id)
	if model.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	res, err := e.acl.Authorize(ctx, acl.Request{Caller: caller, Operation: model.OpRead, Resource: typ, Target: rec})
	if err != nil {
		return false, err
	}
	return res.Allowed(), nil
}

// UpdateRecord applies patch to the record as caller. Each patched field
// is authorized separately; an empty patch is authorized and then does
// nothing.
func (e *Engine) UpdateRecord(ctx context.Context, caller model.Ref, typ, id string, patch model.Patch) (err error) {
	ref := model.NewRef(typ, id)
	ctx, span := e.start(ctx, "engine.UpdateRecord", caller, model.OpUpdate, ref.FQI())
	defer func() { e.finish(span, "updateRecord", err) }()

	if err := checkType(typ); err != nil {
		return err
	}
	if err := e.authenticate(ctx, caller, model.OpUpdate, ref.FQI()); err != nil {
		return err
	}

	_, err = e.retry(ctx, func(epoch uint64) ([]model.Event, error) {
		return e.updateRecord(ctx, caller, epoch, ref, patch)
	})
	return err
}

// updateRecord is one locked attempt of UpdateRecord.
func (e *Engine) updateRecord(ctx context.Context, caller model.Ref, epoch uint64, ref model.Ref, patch model.Patch) ([]model.Event, error) {
	unlock := e.locks.Lock(ref.String())
	defer unlock()

	current, err := e.graph.Get(ctx, ref.Type, ref.ID)
	if err != nil {
		return nil, err
	}

	req := acl.Request{Caller: caller, Operation: model.OpUpdate, Resource: ref.Type, Target: current}
	if len(patch) == 0 {
		return nil, e.check(ctx, req)
	}
	for _, field := range patch.Keys() {
		req.Field = field
		if err := e.check(ctx, req); err != nil {
			return nil, err
		}
	}

	next := current.Clone()
	if err := next.Apply(patch); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if msg, ok := next.(*model.ErrorMessage); ok && msg.Owner != current.(*model.ErrorMessage).Owner {
		if _, err := e.resolver.Participant(ctx, msg.Owner); err != nil {
			req.Field = "owner"
			return nil, danglingDenial(req, err)
		}
	}

	changed := model.Diff(current, next)
	if len(changed) == 0 {
		return nil, nil
	}
	before, after := model.RecordFields(current), model.RecordFields(next)
	changes := make(ir.IRObject, len(changed))
	for _, field := range changed {
		changes[field] = ir.IRObject{"old": before[field], "new": after[field]}
	}

	return e.commit(ctx, caller, epoch, eventlog.Entry{
		Puts: []model.Record{next},
		Events: []model.PendingEvent{{
			Kind: model.EventRecordUpdated,
			Fields: ir.IRObject{
				"resource": ir.IRString(ref.FQI()),
				"changes":  changes,
			},
		}},
	})
}

// DeleteRecord removes the record as caller.
func (e *Engine) DeleteRecord(ctx context.Context, caller model.Ref, typ, id string) (err error) {
	ref := model.NewRef(typ, id)
	ctx, span := e.start(ctx, "engine.DeleteRecord", caller, model.OpDelete, ref.FQI())
	defer func() { e.finish(span, "deleteRecord", err) }()

	if err := checkType(typ); err != nil {
		return err
	}
	if err := e.authenticate(ctx, caller, model.OpDelete, ref.FQI()); err != nil {
		return err
	}

	_, err = e.retry(ctx, func(epoch uint64) ([]model.Event, error) {
		unlock := e.locks.Lock(ref.String())
		defer unlock()

		rec, err := e.graph.Get(ctx, typ, id)
		if err != nil {
			return nil, err
		}
		if err := e.check(ctx, acl.Request{Caller: caller, Operation: model.OpDelete, Resource: typ, Target: rec}); err != nil {
			return nil, err
		}

		return e.commit(ctx, caller, epoch, eventlog.Entry{
			Deletes: []model.Ref{ref},
			Events:  []model.PendingEvent{{Kind: model.EventRecordDeleted, Fields: model.RecordFields(rec)}},
		})
	})
	return err
}

func checkType(typ string) error {
	if !model.IsKnownType(typ) {
		return &model.ValidationError{Field: "type", Constraint: fmt.Sprintf("unknown record type %q", typ)}
	}
	return nil
}
