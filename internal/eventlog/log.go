package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patdav1503/securelog-msg-network/internal/model"
	"github.com/patdav1503/securelog-msg-network/internal/store"
)

// DefaultPollInterval is how often an idle subscription re-reads the
// store for events committed by other processes.
const DefaultPollInterval = 250 * time.Millisecond

// Log sequences, chains and persists events.
//
// Thread-safety: Commit serialises on an internal mutex; everything else
// is safe for concurrent use.
type Log struct {
	graph  store.Graph
	clock  *Clock
	ids    IDGenerator
	now    func() time.Time
	poll   time.Duration
	logger *slog.Logger

	mu       sync.Mutex // serialises Commit
	headHash string

	// epoch advances whenever Commit finds the store moved by another
	// writer. State read under an older epoch may be stale.
	epoch atomic.Uint64

	wakeMu sync.Mutex
	wake   chan struct{} // closed and replaced after every commit
}

// Option configures a Log.
type Option func(*Log)

// WithIDGenerator sets the event id source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Log) {
		l.ids = g
	}
}

// WithNow sets the wall clock used for event timestamps.
func WithNow(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// WithPollInterval sets how often idle subscriptions re-read the store.
func WithPollInterval(d time.Duration) Option {
	return func(l *Log) {
		if d > 0 {
			l.poll = d
		}
	}
}

// WithLogger sets the logger. Commits are logged at Info.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// New opens the log over g, positioning the clock at the current head.
func New(ctx context.Context, g store.Graph, opts ...Option) (*Log, error) {
	seq, hash, err := g.Head(ctx)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	l := &Log{
		graph:    g,
		clock:    NewClockAt(seq),
		ids:      UUIDv7Generator{},
		now:      time.Now,
		poll:     DefaultPollInterval,
		logger:   slog.Default(),
		headHash: hash,
		wake:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Entry is one call's worth of mutations and the events documenting them.
type Entry struct {
	TransactionID string
	Caller        model.Ref
	Puts          []model.Record
	Deletes       []model.Ref
	Events        []model.PendingEvent

	// Epoch is the value of Log.Epoch taken before the caller read the
	// state its mutations derive from.
	Epoch uint64
}

// Epoch returns the current foreign-write epoch. Take it before reading
// the state an Entry is built from.
func (l *Log) Epoch() uint64 {
	return l.epoch.Load()
}

// Commit stamps e's events and applies them with e's record mutations
// as one store batch. It returns the committed events in order.
//
// Commit never re-applies an entry. If another writer advanced the store
// since e.Epoch, or during the Apply, it resyncs the head and returns an
// error wrapping store.ErrSequenceConflict; the caller must re-read,
// re-authorize and rebuild its entry. Any Apply error leaves both store
// and log unchanged.
func (l *Log) Commit(ctx context.Context, e Entry) ([]model.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Epoch != l.epoch.Load() {
		return nil, fmt.Errorf("commit: entry read before epoch %d: %w", l.epoch.Load(), store.ErrSequenceConflict)
	}

	events, err := l.stamp(e)
	if err != nil {
		return nil, err
	}
	err = l.graph.Apply(ctx, store.Batch{Puts: e.Puts, Deletes: e.Deletes, Events: events})
	if err != nil {
		l.clock.Reset(l.clock.Current() - int64(len(events)))
		if errors.Is(err, store.ErrSequenceConflict) {
			if syncErr := l.resync(ctx); syncErr != nil {
				return nil, syncErr
			}
		}
		return nil, fmt.Errorf("commit: %w", err)
	}

	if len(events) > 0 {
		l.headHash = events[len(events)-1].Hash
		l.logger.InfoContext(ctx, "events committed",
			"transaction", e.TransactionID,
			"caller", e.Caller.FQI(),
			"first_seq", events[0].Seq,
			"last_seq", events[len(events)-1].Seq,
		)
	}
	l.broadcast()
	return events, nil
}

// stamp turns pending events into chained events continuing the head.
func (l *Log) stamp(e Entry) ([]model.Event, error) {
	ts := l.now().UTC()
	prev := l.headHash
	events := make([]model.Event, 0, len(e.Events))
	for _, p := range e.Events {
		ev := model.Event{
			ID:            l.ids.Generate(),
			Seq:           l.clock.Next(),
			Timestamp:     ts,
			Kind:          p.Kind,
			TransactionID: e.TransactionID,
			Caller:        e.Caller.FQI(),
			Fields:        p.Fields.Clone(),
			PrevHash:      prev,
		}
		hash, err := ev.ComputeHash()
		if err != nil {
			l.clock.Reset(l.clock.Current() - int64(len(events)+1))
			return nil, fmt.Errorf("commit: %s: %w", p.Kind, err)
		}
		ev.Hash = hash
		prev = hash
		events = append(events, ev)
	}
	return events, nil
}

func (l *Log) resync(ctx context.Context) error {
	seq, hash, err := l.graph.Head(ctx)
	if err != nil {
		return fmt.Errorf("commit: resync head: %w", err)
	}
	l.logger.DebugContext(ctx, "event log resynced", "from_seq", l.clock.Current(), "to_seq", seq)
	l.clock.Reset(seq)
	l.headHash = hash
	l.epoch.Add(1)
	return nil
}

// Head returns the last committed sequence number known to this log.
func (l *Log) Head() int64 {
	return l.clock.Current()
}

// Events returns committed events with seq > after, in order.
func (l *Log) Events(ctx context.Context, after int64) ([]model.Event, error) {
	return l.graph.Events(ctx, after, 0)
}

// broadcast wakes every waiting subscription.
func (l *Log) broadcast() {
	l.wakeMu.Lock()
	defer l.wakeMu.Unlock()
	close(l.wake)
	l.wake = make(chan struct{})
}

// waiter returns a channel closed by the next commit.
func (l *Log) waiter() <-chan struct{} {
	l.wakeMu.Lock()
	defer l.wakeMu.Unlock()
	return l.wake
}
