package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/patdav1503/securelog-msg-network/internal/ir"
	"github.com/patdav1503/securelog-msg-network/internal/model"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Events   []model.Event // Full event log for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Events) > 0 {
		fmt.Fprintf(&buf, "\nEvent log:\n")
		for _, event := range e.Events {
			fmt.Fprintf(&buf, "  [%d] %s by %s\n", event.Seq, event.Kind, event.Caller)
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and joins the failures.
func EvaluateAssertions(ctx context.Context, h *Harness, result *Result, assertions []Assertion) error {
	var errs []error
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertEventContains:
			err = assertEventContains(result.Events, a)
		case AssertEventOrder:
			err = assertEventOrder(result.Events, a)
		case AssertEventCount:
			err = assertEventCount(result.Events, a)
		case AssertFinalState:
			err = h.assertFinalState(ctx, a)
		case AssertChainValid:
			err = h.assertChainValid(ctx, result.Events)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("assertions[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// assertEventContains checks that some event of the kind carries the
// expected fields (subset match).
func assertEventContains(events []model.Event, a Assertion) error {
	want, err := toIRObject(a.Fields)
	if err != nil {
		return err
	}
	for _, event := range events {
		if event.Kind == a.Kind && matchFields(event.Fields, want) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertEventContains,
		Expected: fmt.Sprintf("event %s with fields %v", a.Kind, a.Fields),
		Actual:   "not found in event log",
		Events:   events,
	}
}

// assertEventOrder checks that the kinds appear in order. Other events
// may be interleaved.
func assertEventOrder(events []model.Event, a Assertion) error {
	next := 0
	for _, event := range events {
		if next < len(a.Kinds) && event.Kind == a.Kinds[next] {
			next++
		}
	}
	if next == len(a.Kinds) {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventOrder,
		Expected: fmt.Sprintf("kinds in order %v", a.Kinds),
		Actual:   fmt.Sprintf("%s not found after %v", a.Kinds[next], a.Kinds[:next]),
		Events:   events,
	}
}

// assertEventCount checks how many events of a kind were committed.
// An empty kind counts every event.
func assertEventCount(events []model.Event, a Assertion) error {
	count := 0
	for _, event := range events {
		if a.Kind == "" || event.Kind == a.Kind {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	what := a.Kind
	if what == "" {
		what = "events"
	}
	return &AssertionError{
		Type:     AssertEventCount,
		Expected: fmt.Sprintf("%d %s", a.Count, what),
		Actual:   fmt.Sprintf("%d %s", count, what),
		Events:   events,
	}
}

// assertFinalState reads the record straight from the graph, bypassing
// access control.
func (h *Harness) assertFinalState(ctx context.Context, a Assertion) error {
	ref := model.MustParseRef(a.Record)
	rec, err := h.graph.Get(ctx, ref.Type, ref.ID)
	if model.IsNotFound(err) {
		if a.Absent {
			return nil
		}
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s with %v", a.Record, a.Expect),
			Actual:   "record not found",
		}
	}
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	if a.Absent {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s absent", a.Record),
			Actual:   "record exists",
		}
	}

	fields := rec.Fields()
	var diffs []string
	for _, k := range sortedKeys(a.Expect) {
		if got := fields[k]; got != a.Expect[k] {
			diffs = append(diffs, fmt.Sprintf("%s=%q", k, got))
		}
	}
	if len(diffs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("%s with %v", a.Record, a.Expect),
		Actual:   strings.Join(diffs, ", "),
	}
}

// assertChainValid recomputes the hash chain through the engine.
func (h *Harness) assertChainValid(ctx context.Context, events []model.Event) error {
	report, err := h.engine.Verify(ctx)
	if err != nil {
		return &AssertionError{
			Type:     AssertChainValid,
			Expected: "intact hash chain",
			Actual:   err.Error(),
			Events:   events,
		}
	}
	if report.Events != int64(len(events)) {
		return &AssertionError{
			Type:     AssertChainValid,
			Expected: fmt.Sprintf("%d verified events", len(events)),
			Actual:   fmt.Sprintf("%d verified events", report.Events),
		}
	}
	return nil
}

// matchFields reports whether every expected field is present in
// actual with an equal canonical encoding.
func matchFields(actual, expected ir.IRObject) bool {
	for k, want := range expected {
		got, ok := actual[k]
		if !ok {
			return false
		}
		a, err1 := ir.MarshalCanonical(got)
		b, err2 := ir.MarshalCanonical(want)
		if err1 != nil || err2 != nil || !bytes.Equal(a, b) {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
