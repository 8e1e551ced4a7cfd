package engine

import (
	"context"
	"fmt"

	"github.com/patdav1503/securelog-msg-network/internal/acl"
	"github.com/patdav1503/securelog-msg-network/internal/eventlog"
	"github.com/patdav1503/securelog-msg-network/internal/ir"
	"github.com/patdav1503/securelog-msg-network/internal/model"
	"github.com/patdav1503/securelog-msg-network/internal/store"
)

// fieldUpdate describes a transaction that rewrites one message field.
type fieldUpdate struct {
	field  string // ErrorMessage field written
	param  string // payload parameter carrying the new value
	oldKey string // event key for the previous value
	event  string
}

var fieldUpdates = map[string]fieldUpdate{
	model.TxUpdateErrorMessageOwner: {
		field:  "owner",
		param:  "newOwner",
		oldKey: "oldOwner",
		event:  model.EventErrorMessageOwnerUpdated,
	},
	model.TxUpdateErrorMessageStatus: {
		field:  "errorStatus",
		param:  "newStatus",
		oldKey: "oldStatus",
		event:  model.EventErrorMessageStatusUpdated,
	},
	model.TxUpdateErrorMessageSeverity: {
		field:  "errorSeverity",
		param:  "newSeverity",
		oldKey: "oldSeverity",
		event:  model.EventErrorMessageSeverityUpdated,
	},
}

// Submit runs the named transaction for caller and returns the events it
// emitted. Denials are *model.AccessDeniedError; nothing is committed
// unless the whole transaction succeeds.
func (e *Engine) Submit(ctx context.Context, caller model.Ref, name string, params ir.IRObject) (events []model.Event, err error) {
	ctx, span := e.start(ctx, "engine.Submit", caller, model.OpSubmit, model.TransactionFQI(name))
	defer func() { e.finish(span, name, err) }()

	if !model.IsTransaction(name) {
		return nil, &model.ValidationError{Field: "transaction", Constraint: fmt.Sprintf("unknown %q", name)}
	}
	if err := e.authenticate(ctx, caller, model.OpSubmit, model.TransactionFQI(name)); err != nil {
		return nil, err
	}
	if name == model.TxPostErrorMessage {
		return e.postErrorMessage(ctx, caller, params)
	}
	return e.updateMessageField(ctx, caller, name, fieldUpdates[name], params)
}

func (e *Engine) postErrorMessage(ctx context.Context, caller model.Ref, params ir.IRObject) ([]model.Event, error) {
	err := e.check(ctx, acl.Request{
		Caller:    caller,
		Operation: model.OpSubmit,
		Resource:  model.TxPostErrorMessage,
	})
	if err != nil {
		return nil, err
	}

	msg, err := decodePost(caller, params)
	if err != nil {
		return nil, err
	}

	return e.retry(ctx, func(epoch uint64) ([]model.Event, error) {
		unlock := e.locks.Lock(msg.Ref().String())
		defer unlock()

		create := acl.Request{
			Caller:    caller,
			Operation: model.OpCreate,
			Resource:  model.AssetType,
			Target:    msg,
		}
		if err := e.check(ctx, create); err != nil {
			return nil, err
		}
		if err := e.createGuards(ctx, create, msg); err != nil {
			return nil, err
		}

		stored := msg.Clone()
		return e.commit(ctx, caller, epoch, eventlog.Entry{
			Puts: []model.Record{msg},
			Events: []model.PendingEvent{
				{Kind: model.EventErrorMessagePosted, Fields: model.RecordFields(msg)},
				{Kind: model.EventErrorMessageSnapshot, Fields: model.RecordFields(stored)},
			},
		})
	})
}

// createGuards checks what a CREATE rule cannot: every relationship of
// rec resolves and its id is free.
func (e *Engine) createGuards(ctx context.Context, req acl.Request, rec model.Record) error {
	if msg, ok := rec.(*model.ErrorMessage); ok {
		if _, err := e.resolver.Participant(ctx, msg.Owner); err != nil {
			return danglingDenial(req, err)
		}
	}
	exists, err := store.Exists(ctx, e.graph, rec.RecordType(), rec.RecordID())
	if err != nil {
		return err
	}
	if exists {
		return &model.ValidationError{Field: idField(rec), Constraint: fmt.Sprintf("%s already exists", rec.Ref())}
	}
	return nil
}

func (e *Engine) updateMessageField(ctx context.Context, caller model.Ref, name string, u fieldUpdate, params ir.IRObject) ([]model.Event, error) {
	p, err := newPayload(name, params, "oldMessage", u.param)
	if err != nil {
		return nil, err
	}
	ref, err := p.ref("oldMessage")
	if err != nil {
		return nil, err
	}
	value, err := p.required(u.param)
	if err != nil {
		return nil, err
	}

	return e.retry(ctx, func(epoch uint64) ([]model.Event, error) {
		unlock := e.locks.Lock(ref.String())
		defer unlock()

		msg, err := e.resolver.Message(ctx, ref)
		if model.IsDanglingReference(err) {
			return nil, &model.NotFoundError{Type: ref.Type, ID: ref.ID}
		}
		if err != nil {
			return nil, err
		}

		err = e.check(ctx, acl.Request{
			Caller:    caller,
			Operation: model.OpSubmit,
			Resource:  name,
			Target:    msg,
		})
		if err != nil {
			return nil, err
		}
		update := acl.Request{
			Caller:    caller,
			Operation: model.OpUpdate,
			Resource:  model.AssetType,
			Target:    msg,
			Field:     u.field,
		}
		if err := e.check(ctx, update); err != nil {
			return nil, err
		}

		before := model.RecordFields(msg)
		next := msg.Clone().(*model.ErrorMessage)
		if err := next.Apply(model.Patch{u.field: value}); err != nil {
			return nil, paramError(u, err)
		}
		if err := next.Validate(); err != nil {
			return nil, paramError(u, err)
		}
		if next.Owner != msg.Owner {
			if _, err := e.resolver.Participant(ctx, next.Owner); err != nil {
				return nil, danglingDenial(update, err)
			}
		}
		after := model.RecordFields(next)

		return e.commit(ctx, caller, epoch, eventlog.Entry{
			Puts: []model.Record{next},
			Events: []model.PendingEvent{{
				Kind: u.event,
				Fields: ir.IRObject{
					"oldMessage": ir.IRString(ref.FQI()),
					u.oldKey:     before[u.field],
					u.param:      after[u.field],
				},
			}},
		})
	})
}

// paramError reports a field validation failure under the payload
// parameter the caller actually sent.
func paramError(u fieldUpdate, err error) error {
	if ve, ok := err.(*model.ValidationError); ok && ve.Field == u.field {
		return &model.ValidationError{Field: u.param, Constraint: ve.Constraint}
	}
	return err
}

func idField(rec model.Record) string {
	if rec.RecordType() == model.AssetType {
		return "messageId"
	}
	return "id"
}
