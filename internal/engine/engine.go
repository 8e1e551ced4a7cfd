package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/patdav1503/securelog-msg-network/internal/acl"
	"github.com/patdav1503/securelog-msg-network/internal/eventlog"
	"github.com/patdav1503/securelog-msg-network/internal/metrics"
	"github.com/patdav1503/securelog-msg-network/internal/model"
	"github.com/patdav1503/securelog-msg-network/internal/resolve"
	"github.com/patdav1503/securelog-msg-network/internal/store"
	"github.com/patdav1503/securelog-msg-network/internal/telemetry"
)

// maxCommitAttempts bounds how often one call re-runs after another
// writer moved the event log between its reads and its commit.
const maxCommitAttempts = 3

// Engine processes CRUD calls and named transactions.
//
// Thread-safety: all methods are safe for concurrent use.
type Engine struct {
	graph    store.Graph
	resolver *resolve.Resolver
	acl      *acl.Engine
	log      *eventlog.Log
	locks    *keyedMutex

	table   *acl.Table
	ids     eventlog.IDGenerator
	now     func() time.Time
	poll    time.Duration
	logger  *slog.Logger
	metrics *metrics.Recorder
	tracer  trace.Tracer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPolicy replaces the default rule table. A nil table keeps the
// default.
func WithPolicy(t *acl.Table) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.table = t
		}
	}
}

// WithIDGenerator sets the source of transaction and event ids.
//
// Default: eventlog.UUIDv7Generator. Tests use testutil.FixedIDGenerator.
func WithIDGenerator(g eventlog.IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithNow sets the wall clock used for event timestamps.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithPollInterval sets how often idle subscriptions re-read the store.
func WithPollInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.poll = d
	}
}

// WithLogger sets the logger shared by the engine, the rule evaluator
// and the event log.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics records decisions, outcomes and committed events on r.
func WithMetrics(r *metrics.Recorder) EngineOption {
	return func(e *Engine) {
		e.metrics = r
	}
}

// WithTracerProvider sets the provider for operation spans. Default:
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *Engine) {
		e.tracer = telemetry.Tracer(tp)
	}
}

// New creates an Engine over g. The event log resumes from g's head.
func New(ctx context.Context, g store.Graph, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		graph:  g,
		locks:  newKeyedMutex(),
		table:  acl.DefaultTable(),
		ids:    eventlog.UUIDv7Generator{},
		now:    time.Now,
		poll:   eventlog.DefaultPollInterval,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = telemetry.Tracer(nil)
	}
	if err := e.table.Validate(); err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}

	e.resolver = resolve.New(g)
	e.acl = acl.NewEngine(e.table, e.resolver, acl.WithLogger(e.logger))

	log, err := eventlog.New(ctx, g,
		eventlog.WithIDGenerator(e.ids),
		eventlog.WithNow(e.now),
		eventlog.WithPollInterval(e.poll),
		eventlog.WithLogger(e.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	e.log = log
	return e, nil
}

// Policy returns the active rule table.
func (e *Engine) Policy() *acl.Table {
	return e.table
}

// Explain evaluates req without performing it. It backs dry-run policy
// checks and never counts as a decision in metrics.
func (e *Engine) Explain(ctx context.Context, req acl.Request) (acl.Result, error) {
	return e.acl.Authorize(ctx, req)
}

// SubscribeEvents returns a subscription delivering every event
// committed after from. Pass eventlog.FromHead to start at the current
// head.
func (e *Engine) SubscribeEvents(ctx context.Context, from int64) (*eventlog.Subscription, error) {
	return e.log.Subscribe(ctx, from)
}

// Events returns committed events with seq > after.
func (e *Engine) Events(ctx context.Context, after int64) ([]model.Event, error) {
	return e.log.Events(ctx, after)
}

// Head returns the last committed sequence number.
func (e *Engine) Head() int64 {
	return e.log.Head()
}

// Verify recomputes the event hash chain.
func (e *Engine) Verify(ctx context.Context) (eventlog.Report, error) {
	report, err := e.log.Verify(ctx)
	if err != nil {
		e.metrics.AuditBreak()
		return report, err
	}
	e.metrics.AuditVerified(int(report.Events), report.HeadSeq())
	return report, nil
}

// start opens the span for one operation.
func (e *Engine) start(ctx context.Context, name string, caller model.Ref, op model.Operation, resource string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(
		telemetry.AttrCaller.String(caller.FQI()),
		telemetry.AttrOperation.String(string(op)),
		telemetry.AttrResource.String(resource),
	))
}

// finish closes span and counts the outcome of operation.
func (e *Engine) finish(span trace.Span, operation string, err error) {
	e.metrics.Transaction(operation, outcome(err))
	telemetry.End(span, err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeCommitted
	case model.IsAccessDenied(err):
		return metrics.OutcomeDenied
	case model.IsValidation(err), model.IsNotFound(err), model.IsDanglingReference(err):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeFailed
	}
}

// authenticate requires caller to name an existing participant. A caller
// that does not resolve is denied, never treated as anonymous.
func (e *Engine) authenticate(ctx context.Context, caller model.Ref, op model.Operation, resource string) error {
	if !model.IsParticipantKind(caller.Type) {
		return &model.ValidationError{Field: "caller", Constraint: fmt.Sprintf("%s is not a participant", caller)}
	}
	_, err := e.resolver.Participant(ctx, caller)
	if model.IsDanglingReference(err) {
		return &model.AccessDeniedError{
			Participant: caller,
			Operation:   op,
			Resource:    resource,
			Reason:      model.ReasonDanglingReference,
			Err:         err,
		}
	}
	return err
}

// check authorizes req, returning a *model.AccessDeniedError on DENY.
func (e *Engine) check(ctx context.Context, req acl.Request) error {
	res, err := e.acl.Check(ctx, req)
	if err == nil || model.IsAccessDenied(err) {
		e.metrics.Decision(string(req.Operation), res.Decision.String(), string(res.Reason))
	}
	if model.IsAccessDenied(err) {
		e.logger.InfoContext(ctx, "access denied",
			"caller", req.Caller.FQI(),
			"operation", req.Operation,
			"resource", req.ResourceFQI(),
			"rule", res.Rule,
			"reason", res.Reason,
		)
	}
	return err
}

// danglingDenial converts a failed relationship lookup into the denial
// returned to the caller.
func danglingDenial(req acl.Request, err error) error {
	if !model.IsDanglingReference(err) {
		return err
	}
	return &model.AccessDeniedError{
		Participant: req.Caller,
		Operation:   req.Operation,
		Resource:    req.ResourceFQI(),
		Reason:      model.ReasonDanglingReference,
		Err:         err,
	}
}

// commit appends one entry under a fresh transaction id. epoch is the
// log epoch observed before the entry's inputs were read.
func (e *Engine) commit(ctx context.Context, caller model.Ref, epoch uint64, entry eventlog.Entry) ([]model.Event, error) {
	entry.TransactionID = e.ids.Generate()
	entry.Caller = caller
	entry.Epoch = epoch
	events, err := e.log.Commit(ctx, entry)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		e.metrics.EventCommitted(ev.Kind)
	}
	trace.SpanFromContext(ctx).SetAttributes(
		telemetry.AttrTransaction.String(entry.TransactionID),
		telemetry.AttrEvents.Int(len(events)),
	)
	return events, nil
}

// retry runs step until it commits or fails for a reason other than a
// sequence conflict. Each run reads, authorizes and builds its entry
// again, so a decision is never committed against state another writer
// has since changed.
func (e *Engine) retry(ctx context.Context, step func(epoch uint64) ([]model.Event, error)) ([]model.Event, error) {
	var err error
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		var events []model.Event
		events, err = step(e.log.Epoch())
		if !errors.Is(err, store.ErrSequenceConflict) {
			return events, err
		}
		e.logger.DebugContext(ctx, "event log moved, re-running step", "attempt", attempt)
	}
	return nil, err
}
