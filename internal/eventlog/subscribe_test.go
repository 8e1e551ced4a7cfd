package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patdav1503/securelog-msg-network/internal/model"
	"github.com/patdav1503/securelog-msg-network/internal/store"
)

func commitOne(t *testing.T, l *Log, id string) model.Event {
	t.Helper()
	events, err := l.Commit(context.Background(), Entry{
		TransactionID: "tx-" + id,
		Caller:        system,
		Events:        []model.PendingEvent{pending(model.EventRecordCreated, id)},
	})
	require.NoError(t, err)
	return events[0]
}

func TestSubscribe_FromHead(t *testing.T) {
	l := newTestLog(t, store.NewMemory())
	commitOne(t, l, "1")

	sub, err := l.Subscribe(context.Background(), FromHead)
	require.NoError(t, err)
	defer sub.Close()
	assert.Equal(t, int64(1), sub.Cursor())

	want := commitOne(t, l, "2")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, int64(2), sub.Cursor())
}

func TestSubscribe_Replay(t *testing.T) {
	l := newTestLog(t, store.NewMemory())
	for _, id := range []string{"1", "2", "3"} {
		commitOne(t, l, id)
	}

	sub, err := l.Subscribe(context.Background(), 0)
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var seqs []int64
	for e, err := range sub.All(ctx) {
		require.NoError(t, err)
		seqs = append(seqs, e.Seq)
		if len(seqs) == 2 {
			break
		}
	}
	assert.Equal(t, []int64{1, 2}, seqs)

	// Restart from the cursor: no gaps, no repeats.
	resumed, err := l.Subscribe(context.Background(), sub.Cursor())
	require.NoError(t, err)
	defer resumed.Close()
	e, err := resumed.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), e.Seq)
}

func TestSubscribe_WakesOnCommit(t *testing.T) {
	l := newTestLog(t, store.NewMemory())
	// Long poll interval: delivery must come from the commit wake-up.
	l.poll = time.Hour

	sub, err := l.Subscribe(context.Background(), FromHead)
	require.NoError(t, err)
	defer sub.Close()

	got := make(chan model.Event, 1)
	go func() {
		e, err := sub.Next(context.Background())
		if err == nil {
			got <- e
		}
	}()

	time.Sleep(20 * time.Millisecond)
	want := commitOne(t, l, "1")

	select {
	case e := <-got:
		assert.Equal(t, want.Seq, e.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber was not woken by commit")
	}
}

func TestSubscribe_CloseAndCancel(t *testing.T) {
	l := newTestLog(t, store.NewMemory())

	sub, err := l.Subscribe(context.Background(), FromHead)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	sub.Close()
	sub.Close()
	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	count := 0
	for range sub.All(context.Background()) {
		count++
	}
	assert.Zero(t, count)
}

func TestSubscribe_InvalidCursor(t *testing.T) {
	l := newTestLog(t, store.NewMemory())
	_, err := l.Subscribe(context.Background(), -5)
	assert.Error(t, err)
}
