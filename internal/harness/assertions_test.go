package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patdav1503/securelog-msg-network/internal/ir"
	"github.com/patdav1503/securelog-msg-network/internal/model"
)

func testEvents() []model.Event {
	return []model.Event{
		{Seq: 1, Kind: model.EventErrorMessagePosted, Caller: "org.securelog.mynetwork.System#system@email.com",
			Fields: ir.IRObject{"messageId": ir.IRString("51"), "errorStatus": ir.IRString("NEW")}},
		{Seq: 2, Kind: model.EventErrorMessageSnapshot, Caller: "org.securelog.mynetwork.System#system@email.com"},
		{Seq: 3, Kind: model.EventErrorMessageStatusUpdated, Caller: "org.securelog.mynetwork.Member#alice@email.com",
			Fields: ir.IRObject{"newStatus": ir.IRString("WORKING")}},
	}
}

func TestAssertEventContains(t *testing.T) {
	events := testEvents()

	err := assertEventContains(events, Assertion{Type: AssertEventContains, Kind: model.EventErrorMessagePosted,
		Fields: map[string]any{"messageId": "51"}})
	assert.NoError(t, err)

	err = assertEventContains(events, Assertion{Type: AssertEventContains, Kind: model.EventErrorMessagePosted,
		Fields: map[string]any{"messageId": "52"}})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertEventContains, ae.Type)
	assert.Contains(t, err.Error(), "not found in event log")
	assert.Contains(t, err.Error(), "[3] ErrorMessageStatusUpdated")

	err = assertEventContains(events, Assertion{Type: AssertEventContains, Kind: model.EventRecordCreated})
	assert.Error(t, err)
}

func TestAssertEventOrder(t *testing.T) {
	events := testEvents()

	assert.NoError(t, assertEventOrder(events, Assertion{Kinds: []string{
		model.EventErrorMessagePosted, model.EventErrorMessageStatusUpdated,
	}}))

	err := assertEventOrder(events, Assertion{Kinds: []string{
		model.EventErrorMessageStatusUpdated, model.EventErrorMessagePosted,
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ErrorMessagePosted not found after [ErrorMessageStatusUpdated]")
}

func TestAssertEventCount(t *testing.T) {
	events := testEvents()

	assert.NoError(t, assertEventCount(events, Assertion{Count: 3}))
	assert.NoError(t, assertEventCount(events, Assertion{Kind: model.EventErrorMessagePosted, Count: 1}))
	assert.NoError(t, assertEventCount(events, Assertion{Kind: model.EventRecordDeleted, Count: 0}))

	err := assertEventCount(events, Assertion{Kind: model.EventErrorMessagePosted, Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 2 ErrorMessagePosted")
	assert.Contains(t, err.Error(), "Actual: 1 ErrorMessagePosted")
}

func TestMatchFields(t *testing.T) {
	actual := ir.IRObject{
		"old": ir.IRString("NEW"),
		"n":   ir.IRInt(3),
		"obj": ir.IRObject{"a": ir.IRString("b")},
	}
	assert.True(t, matchFields(actual, ir.IRObject{}))
	assert.True(t, matchFields(actual, ir.IRObject{"old": ir.IRString("NEW"), "n": ir.IRInt(3)}))
	assert.True(t, matchFields(actual, ir.IRObject{"obj": ir.IRObject{"a": ir.IRString("b")}}))
	assert.False(t, matchFields(actual, ir.IRObject{"n": ir.IRString("3")}))
	assert.False(t, matchFields(actual, ir.IRObject{"missing": ir.IRString("x")}))
}

func TestEvaluateAssertions_FinalStateAndChain(t *testing.T) {
	scenario := loadTestScenario(t, "update_owner")
	scenario.Assertions = []Assertion{
		{Type: AssertFinalState, Record: "ErrorMessage#1", Expect: map[string]string{"owner": "Level2#bob@email.com"}},
		{Type: AssertFinalState, Record: "ErrorMessage#1", Absent: true},
		{Type: AssertFinalState, Record: "ErrorMessage#9", Expect: map[string]string{"owner": "x"}},
		{Type: AssertChainValid},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)

	msg := result.Errors[0]
	assert.Contains(t, msg, `assertions[0]`)
	assert.Contains(t, msg, `owner="Member#alice@email.com"`)
	assert.Contains(t, msg, `assertions[1]`)
	assert.Contains(t, msg, "record exists")
	assert.Contains(t, msg, `assertions[2]`)
	assert.Contains(t, msg, "record not found")
	assert.NotContains(t, msg, `assertions[3]`)
}

func TestEvaluateAssertions_Unknown(t *testing.T) {
	err := EvaluateAssertions(context.Background(), nil, NewResult(), []Assertion{{Type: "bogus"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown assertion type "bogus"`)
}
