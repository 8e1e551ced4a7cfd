package acl

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/patdav1503/securelog-msg-network/internal/model"
	"github.com/patdav1503/securelog-msg-network/internal/resolve"
)

// Request describes one access check.
type Request struct {
	// Caller is the authenticated participant.
	Caller model.Ref

	Operation model.Operation

	// Resource is the record type, or the transaction name for SUBMIT.
	Resource string

	// Target is the record being accessed. For CREATE it is the proposed
	// record; for update transactions it is the referenced message. It
	// is nil for type-level checks such as SUBMIT postErrorMessage.
	Target model.Record

	// Field is the accessed field for field-scoped updates.
	Field string
}

// ResourceFQI returns the qualified name of what req accesses.
func (req Request) ResourceFQI() string {
	if req.Operation == model.OpSubmit {
		return model.TransactionFQI(req.Resource)
	}
	if req.Target != nil {
		return req.Target.Ref().FQI()
	}
	return model.Namespace + "." + req.Resource
}

// Result is the decision plus the trace that produced it.
type Result struct {
	Decision Decision
	Reason   model.DenyReason

	// Rule is the deciding rule, empty when the default applied.
	Rule string

	// Evaluated counts the rules tried, including the deciding one.
	Evaluated int

	// Cause is set when a dangling relationship forced the denial.
	Cause error
}

// Allowed reports whether the decision is ALLOW.
func (r Result) Allowed() bool {
	return r.Decision == Allow
}

// Engine evaluates requests against a table.
//
// Thread-safety: Engine is safe for concurrent use. The table must not
// be modified after NewEngine.
type Engine struct {
	table    *Table
	resolver *resolve.Resolver
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the decision logger. Decisions are logged at Debug.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine returns an Engine over table. A nil table means DefaultTable.
func NewEngine(table *Table, resolver *resolve.Resolver, opts ...Option) *Engine {
	if table == nil {
		table = DefaultTable()
	}
	e := &Engine{
		table:    table,
		resolver: resolver,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Table returns the active policy.
func (e *Engine) Table() *Table {
	return e.table
}

// Authorize evaluates req first-match-wins. The returned error reports a
// store failure, never a denial.
func (e *Engine) Authorize(ctx context.Context, req Request) (Result, error) {
	res, err := e.evaluate(ctx, req)
	if err != nil {
		return Result{}, err
	}
	e.logger.DebugContext(ctx, "access decision",
		"caller", req.Caller.FQI(),
		"operation", req.Operation,
		"resource", req.ResourceFQI(),
		"field", req.Field,
		"decision", res.Decision,
		"rule", res.Rule,
		"reason", res.Reason,
		"evaluated", res.Evaluated,
	)
	return res, nil
}

func (e *Engine) evaluate(ctx context.Context, req Request) (Result, error) {
	for i := range e.table.Rules {
		rule := &e.table.Rules[i]
		if !rule.applies(req) {
			continue
		}
		ok, err := e.holds(ctx, rule.Condition, req)
		if model.IsDanglingReference(err) {
			return Result{
				Decision:  Deny,
				Reason:    model.ReasonDanglingReference,
				Rule:      rule.Name,
				Evaluated: i + 1,
				Cause:     err,
			}, nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		if !ok {
			continue
		}
		res := Result{Decision: rule.Effect, Rule: rule.Name, Evaluated: i + 1}
		if rule.Effect == Deny {
			res.Reason = rule.Reason
		}
		return res, nil
	}

	reason := model.ReasonInsufficientAccess
	if req.Operation == model.OpSubmit {
		reason = model.ReasonUnauthorizedSubmitter
	}
	return Result{Decision: Deny, Reason: reason, Evaluated: len(e.table.Rules)}, nil
}

// holds evaluates a rule condition against req.
func (e *Engine) holds(ctx context.Context, c Condition, req Request) (bool, error) {
	switch c.Kind {
	case "", CondAlways:
		return true, nil
	case CondSelf:
		return req.Target != nil && req.Target.Ref() == req.Caller, nil
	case CondOwner:
		msg, ok := req.Target.(*model.ErrorMessage)
		if !ok || !model.IsParticipantKind(msg.Owner.Type) {
			return false, nil
		}
		return e.resolver.Is(ctx, msg.Owner, req.Caller)
	case CondCreatorNotSystem:
		msg, ok := req.Target.(*model.ErrorMessage)
		if !ok {
			return false, nil
		}
		if !model.IsParticipantKind(msg.Creator.Type) {
			return true, nil
		}
		creator, err := e.resolver.Participant(ctx, msg.Creator)
		if err != nil {
			return false, err
		}
		return creator.Kind != model.KindSystem, nil
	case CondFieldEquals:
		if req.Target == nil {
			return false, nil
		}
		value, ok := req.Target.Fields()[c.Field]
		return ok && value == c.Value, nil
	}
	return false, fmt.Errorf("unknown condition %q", c.Kind)
}

// Check is Authorize returning a *model.AccessDeniedError on DENY.
func (e *Engine) Check(ctx context.Context, req Request) (Result, error) {
	res, err := e.Authorize(ctx, req)
	if err != nil {
		return res, err
	}
	if res.Allowed() {
		return res, nil
	}
	denied := &model.AccessDeniedError{
		Participant: req.Caller,
		Operation:   req.Operation,
		Resource:    req.ResourceFQI(),
		Reason:      res.Reason,
		Rule:        res.Rule,
		Err:         res.Cause,
	}
	if msg, ok := req.Target.(*model.ErrorMessage); ok && res.Reason == model.ReasonInvalidCreator {
		denied.Creator = msg.Creator
	}
	return res, denied
}

// FilterReadable returns the records caller may READ, preserving order.
// Records that are denied, including by a dangling relationship, are
// omitted without error.
func (e *Engine) FilterReadable(ctx context.Context, caller model.Ref, records []model.Record) ([]model.Record, error) {
	out := make([]model.Record, 0, len(records))
	for _, rec := range records {
		res, err := e.Authorize(ctx, Request{
			Caller:    caller,
			Operation: model.OpRead,
			Resource:  rec.RecordType(),
			Target:    rec,
		})
		if err != nil {
			return nil, err
		}
		if res.Allowed() {
			out = append(out, rec)
		}
	}
	return out, nil
}
