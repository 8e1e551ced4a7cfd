package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patdav1503/securelog-msg-network/internal/ir"
	"github.com/patdav1503/securelog-msg-network/internal/model"
	"github.com/patdav1503/securelog-msg-network/internal/store"
	"github.com/patdav1503/securelog-msg-network/internal/testutil"
)

// interleavedGraph runs before ahead of each Apply, standing in for a
// second process that writes between an engine's reads and its commit.
type interleavedGraph struct {
	store.Graph
	before func()
}

func (g *interleavedGraph) Apply(ctx context.Context, b store.Batch) error {
	if g.before != nil {
		g.before()
	}
	return g.Graph.Apply(ctx, b)
}

// newEnginePair returns two engines over one seeded store. Writes made
// through the first pass through an interleavedGraph.
func newEnginePair(t *testing.T) (*Engine, *Engine, *interleavedGraph, store.Graph) {
	t.Helper()
	g := store.NewMemory()
	seed(t, g)
	ctx := context.Background()

	wrapped := &interleavedGraph{Graph: g}
	a, err := New(ctx, wrapped,
		WithIDGenerator(testutil.NewFixedIDGenerator("a")),
		WithNow(testutil.NewDeterministicClock().Now),
		WithLogger(discardLogger()),
	)
	require.NoError(t, err)
	b, err := New(ctx, g,
		WithIDGenerator(testutil.NewFixedIDGenerator("b")),
		WithNow(testutil.NewDeterministicClock().Now),
		WithLogger(discardLogger()),
	)
	require.NoError(t, err)
	return a, b, wrapped, g
}

// once wraps fn so only its first call runs.
func once(fn func()) func() {
	done := false
	return func() {
		if !done {
			done = true
			fn()
		}
	}
}

func TestSubmit_ReauthorizesAfterConcurrentHandover(t *testing.T) {
	a, b, wrapped, g := newEnginePair(t)
	ctx := context.Background()

	var handoverErr error
	wrapped.before = once(func() {
		_, handoverErr = b.Submit(ctx, alice, model.TxUpdateErrorMessageOwner, ir.IRObject{
			"oldMessage": ir.IRString("ErrorMessage#1"),
			"newOwner":   ir.IRString("Level3#george@email.com"),
		})
	})

	_, err := a.Submit(ctx, alice, model.TxUpdateErrorMessageStatus, ir.IRObject{
		"oldMessage": ir.IRString("ErrorMessage#1"),
		"newStatus":  ir.IRString("WORKING"),
	})
	require.NoError(t, handoverErr)
	requireDenied(t, err, model.ReasonUnauthorizedSubmitter)

	rec, err := g.Get(ctx, model.AssetType, "1")
	require.NoError(t, err)
	msg := rec.(*model.ErrorMessage)
	assert.Equal(t, george, msg.Owner)
	assert.Equal(t, model.StatusNew, msg.ErrorStatus, "status from the stale decision must not land")

	events, err := g.Events(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventErrorMessageOwnerUpdated, events[0].Kind)

	report, err := a.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Events)
	assert.Zero(t, a.locks.held())
}

func TestSubmit_ConcurrentPostsOfOneIDCommitOnce(t *testing.T) {
	a, b, wrapped, g := newEnginePair(t)
	ctx := context.Background()

	var firstErr error
	wrapped.before = once(func() {
		_, firstErr = b.Submit(ctx, system, model.TxPostErrorMessage, postParams51())
	})

	second := postParams51()
	second["errorText"] = ir.IRString("posted second")
	_, err := a.Submit(ctx, system, model.TxPostErrorMessage, second)
	require.NoError(t, firstErr)
	require.True(t, model.IsValidation(err), "got %v", err)
	assert.Contains(t, err.Error(), "already exists")

	rec, err := g.Get(ctx, model.AssetType, "51")
	require.NoError(t, err)
	assert.NotEqual(t, "posted second", rec.(*model.ErrorMessage).ErrorText)

	head, _, err := g.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), head, "posted and snapshot events of the first post only")
}

func TestCreateRecord_ConcurrentCreateOfOneIDCommitsOnce(t *testing.T) {
	a, b, wrapped, g := newEnginePair(t)
	ctx := context.Background()

	var firstErr error
	wrapped.before = once(func() {
		firstErr = b.CreateRecord(ctx, system, model.AssetType, message("9", alice, model.SeverityError, "first"))
	})

	err := a.CreateRecord(ctx, system, model.AssetType, message("9", bob, model.SeverityError, "second"))
	require.NoError(t, firstErr)
	require.True(t, model.IsValidation(err), "got %v", err)

	rec, err := g.Get(ctx, model.AssetType, "9")
	require.NoError(t, err)
	assert.Equal(t, "first", rec.(*model.ErrorMessage).ErrorText)
	assert.Equal(t, alice, rec.(*model.ErrorMessage).Owner)
	assert.Equal(t, int64(1), a.Head())
}

func TestUpdateRecord_GivesUpWhenLogKeepsMoving(t *testing.T) {
	a, b, wrapped, g := newEnginePair(t)
	ctx := context.Background()

	n := 0
	wrapped.before = func() {
		n++
		require.NoError(t, b.UpdateRecord(ctx, bob, model.AssetType, "2", model.Patch{"errorText": fmt.Sprintf("edit %d", n)}))
	}

	err := a.UpdateRecord(ctx, alice, model.AssetType, "1", model.Patch{"errorText": "mine"})
	require.ErrorIs(t, err, store.ErrSequenceConflict)
	assert.Equal(t, maxCommitAttempts, n)

	rec, err := g.Get(ctx, model.AssetType, "1")
	require.NoError(t, err)
	assert.Equal(t, "Exception in function multiply", rec.(*model.ErrorMessage).ErrorText)

	head, _, err := g.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(maxCommitAttempts), head)

	// Once the other writer stops, the next call commits.
	wrapped.before = nil
	require.NoError(t, a.UpdateRecord(ctx, alice, model.AssetType, "1", model.Patch{"errorText": "mine"}))
	report, err := a.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(maxCommitAttempts+1), report.Events)
}
