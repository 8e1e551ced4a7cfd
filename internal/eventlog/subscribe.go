package eventlog

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/patdav1503/securelog-msg-network/internal/model"
)

// FromHead starts a subscription after the last committed event.
const FromHead int64 = -1

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("subscription closed")

// pageSize bounds how many events a subscription reads per store query.
const pageSize = 64

// Subscription is a restartable cursor over committed events.
//
// Thread-safety: Next and All must be used from one goroutine at a time.
// Close is safe from any goroutine.
type Subscription struct {
	log    *Log
	cursor int64
	buf    []model.Event

	closeOnce sync.Once
	done      chan struct{}
}

// Subscribe returns a subscription delivering events with seq > from.
// Pass FromHead to receive only events committed after this call.
func (l *Log) Subscribe(ctx context.Context, from int64) (*Subscription, error) {
	if from == FromHead {
		seq, _, err := l.graph.Head(ctx)
		if err != nil {
			return nil, fmt.Errorf("subscribe: %w", err)
		}
		from = seq
	}
	if from < 0 {
		return nil, fmt.Errorf("subscribe: invalid cursor %d", from)
	}
	return &Subscription{
		log:    l,
		cursor: from,
		done:   make(chan struct{}),
	}, nil
}

// Cursor returns the seq of the last delivered event. A new
// subscription started from Cursor resumes without gaps or repeats.
func (s *Subscription) Cursor() int64 {
	return s.cursor
}

// Next blocks until the next event is committed, ctx ends or the
// subscription is closed.
func (s *Subscription) Next(ctx context.Context) (model.Event, error) {
	for {
		if len(s.buf) > 0 {
			e := s.buf[0]
			s.buf = s.buf[1:]
			s.cursor = e.Seq
			return e, nil
		}

		select {
		case <-s.done:
			return model.Event{}, ErrClosed
		default:
		}

		// Grab the wake channel before reading so a commit landing
		// between the read and the wait is not missed.
		wake := s.log.waiter()
		events, err := s.log.graph.Events(ctx, s.cursor, pageSize)
		if err != nil {
			return model.Event{}, fmt.Errorf("subscription: %w", err)
		}
		if len(events) > 0 {
			s.buf = events
			continue
		}

		timer := time.NewTimer(s.log.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return model.Event{}, ctx.Err()
		case <-s.done:
			timer.Stop()
			return model.Event{}, ErrClosed
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// All yields events until ctx ends or the subscription closes. Ending
// the range loop early leaves the subscription open at its cursor.
// Context cancellation and Close end the sequence without an error;
// store failures are yielded once as the final pair.
func (s *Subscription) All(ctx context.Context) iter.Seq2[model.Event, error] {
	return func(yield func(model.Event, error) bool) {
		for {
			e, err := s.Next(ctx)
			if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			if err != nil {
				yield(model.Event{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Close ends the subscription and wakes a blocked Next.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
