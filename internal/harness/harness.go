package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"slices"

	"github.com/patdav1503/securelog-msg-network/internal/acl"
	"github.com/patdav1503/securelog-msg-network/internal/engine"
	"github.com/patdav1503/securelog-msg-network/internal/fixture"
	"github.com/patdav1503/securelog-msg-network/internal/ir"
	"github.com/patdav1503/securelog-msg-network/internal/model"
	"github.com/patdav1503/securelog-msg-network/internal/store"
	"github.com/patdav1503/securelog-msg-network/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios against a real engine with a deterministic clock
// and id generator.
type Harness struct {
	graph  store.Graph
	engine *engine.Engine
	clock  *testutil.DeterministicClock
	ids    *testutil.FixedIDGenerator
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory graph for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
//  1. Provision the fixture network
//  2. Build an engine with the scenario policy, fixed ids and clock
//  3. Execute setup steps, which must all succeed
//  4. Execute flow steps and check their expect clauses
//  5. Collect the event log and evaluate assertions
//
// A returned error means the scenario could not run; expectation and
// assertion failures are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	network, err := fixture.Load(scenario.Fixture)
	if err != nil {
		return nil, err
	}
	g := store.NewMemory()
	defer g.Close()
	if err := fixture.Provision(ctx, g, network); err != nil {
		return nil, err
	}

	var policy *acl.Table
	if scenario.Policy != "" {
		policy, err = acl.LoadPolicy(scenario.Policy)
		if err != nil {
			return nil, err
		}
	}

	h := &Harness{
		graph:  g,
		clock:  testutil.NewDeterministicClock(),
		ids:    testutil.NewFixedIDGenerator("id"),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	h.engine, err = engine.New(ctx, g,
		engine.WithPolicy(policy),
		engine.WithIDGenerator(h.ids),
		engine.WithNow(h.clock.Now),
		engine.WithLogger(h.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	result := NewResult()

	for i, step := range scenario.Setup {
		trace, err := h.execute(ctx, step)
		trace.Step, trace.Phase = i, "setup"
		result.Trace = append(result.Trace, trace)
		if err != nil {
			return nil, fmt.Errorf("failed to execute setup: step %d: %w", i, err)
		}
	}

	for i, step := range scenario.Flow {
		trace, err := h.execute(ctx, step)
		trace.Step, trace.Phase = i, "flow"
		result.Trace = append(result.Trace, trace)
		for _, msg := range checkExpect(step.Expect, trace, err) {
			result.AddError(fmt.Sprintf("flow step %d (%s %s as %s): %s", i, trace.Action, trace.Target, trace.Caller, msg))
		}
	}

	result.Events, err = h.engine.Events(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	if err := EvaluateAssertions(ctx, h, result, scenario.Assertions); err != nil {
		result.AddError(err.Error())
	}

	h.logger.Debug("scenario complete",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"events", len(result.Events))

	return result, nil
}

// execute runs one step and records what it did. The returned error is
// the engine's; the trace already carries its classification.
func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	op, target := step.Operation()
	trace := TraceEvent{Caller: step.As, Action: op, Target: target}

	caller, err := model.ParseRef(step.As)
	if err != nil {
		trace.Outcome, trace.Error = outcomeUnmatched, err.Error()
		return trace, err
	}

	before := h.engine.Head()
	err = h.dispatch(ctx, caller, step, &trace)
	for seq := before + 1; seq <= h.engine.Head(); seq++ {
		trace.Events = append(trace.Events, seq)
	}

	trace.Outcome = classify(err)
	if err != nil {
		trace.Error = err.Error()
		trace.Reason = string(model.DenyReasonOf(err))
	}
	return trace, err
}

func (h *Harness) dispatch(ctx context.Context, caller model.Ref, step Step, trace *TraceEvent) error {
	op, target := step.Operation()
	switch op {
	case OpSubmit:
		params, err := toIRObject(step.Payload)
		if err != nil {
			return err
		}
		_, err = h.engine.Submit(ctx, caller, target, params)
		return err

	case OpGet:
		ref := model.MustParseRef(target)
		rec, err := h.engine.ReadRecord(ctx, caller, ref.Type, ref.ID)
		if err != nil {
			return err
		}
		trace.Records = []string{rec.RecordID()}
		trace.fields = rec.Fields()
		return nil

	case OpList:
		recs, err := h.engine.ReadAll(ctx, caller, target)
		if err != nil {
			return err
		}
		trace.Records = []string{}
		for _, rec := range recs {
			trace.Records = append(trace.Records, rec.RecordID())
		}
		return nil

	case OpExists:
		ref := model.MustParseRef(target)
		ok, err := h.engine.Exists(ctx, caller, ref.Type, ref.ID)
		if err != nil {
			return err
		}
		trace.Exists = &ok
		return nil

	case OpCreate:
		rec, err := decodeRecord(target, step.Record)
		if err != nil {
			return err
		}
		return h.engine.CreateRecord(ctx, caller, target, rec)

	case OpUpdate:
		ref := model.MustParseRef(target)
		return h.engine.UpdateRecord(ctx, caller, ref.Type, ref.ID, model.Patch(step.Set))

	case OpDelete:
		ref := model.MustParseRef(target)
		return h.engine.DeleteRecord(ctx, caller, ref.Type, ref.ID)
	}
	return fmt.Errorf("unknown operation %q", op)
}

// classify maps an engine error onto an outcome name.
func classify(err error) string {
	if err == nil {
		return OutcomeOK
	}
	switch model.CodeOf(err) {
	case model.ErrCodeAccessDenied:
		return OutcomeDenied
	case model.ErrCodeNotFound:
		return OutcomeNotFound
	case model.ErrCodeDanglingReference:
		return OutcomeDangling
	case model.ErrCodeValidation:
		return OutcomeInvalid
	}
	return outcomeUnmatched
}

// checkExpect compares a step's trace against its expect clause and
// returns one message per mismatch.
func checkExpect(expect *Expect, trace TraceEvent, err error) []string {
	if expect == nil {
		expect = &Expect{}
	}
	var problems []string

	want := expect.Outcome
	if want == "" {
		want = OutcomeOK
	}
	if trace.Outcome != want {
		detail := ""
		if err != nil {
			detail = ": " + err.Error()
		}
		problems = append(problems, fmt.Sprintf("expected outcome %s, got %s%s", want, trace.Outcome, detail))
	}
	if expect.Reason != "" && trace.Reason != expect.Reason {
		problems = append(problems, fmt.Sprintf("expected reason %s, got %q", expect.Reason, trace.Reason))
	}
	if expect.Message != "" {
		re, rerr := regexp.Compile(expect.Message)
		switch {
		case rerr != nil:
			problems = append(problems, fmt.Sprintf("invalid message pattern: %v", rerr))
		case !re.MatchString(trace.Error):
			problems = append(problems, fmt.Sprintf("error %q does not match %q", trace.Error, expect.Message))
		}
	}
	if expect.Events != nil && len(trace.Events) != *expect.Events {
		problems = append(problems, fmt.Sprintf("expected %d events, got %d", *expect.Events, len(trace.Events)))
	}
	if expect.Records != nil && !slices.Equal(expect.Records, trace.Records) {
		problems = append(problems, fmt.Sprintf("expected records %v, got %v", expect.Records, trace.Records))
	}
	if expect.Exists != nil && (trace.Exists == nil || *trace.Exists != *expect.Exists) {
		got := "none"
		if trace.Exists != nil {
			got = fmt.Sprint(*trace.Exists)
		}
		problems = append(problems, fmt.Sprintf("expected exists=%v, got %s", *expect.Exists, got))
	}
	for _, k := range sortedKeys(expect.Fields) {
		if got, ok := trace.fields[k]; !ok || got != expect.Fields[k] {
			problems = append(problems, fmt.Sprintf("field %s: expected %q, got %q", k, expect.Fields[k], got))
		}
	}
	return problems
}

// toIRObject converts a YAML payload to an IR object.
func toIRObject(payload map[string]any) (ir.IRObject, error) {
	obj := ir.IRObject{}
	for key, val := range payload {
		v, err := ir.FromAny(val)
		if err != nil {
			return nil, &model.ValidationError{Field: key, Constraint: err.Error()}
		}
		obj[key] = v
	}
	return obj, nil
}

// decodeRecord builds a typed record from a YAML map through its JSON
// form, so references decode from Type#id text.
func decodeRecord(typ string, fields map[string]any) (model.Record, error) {
	rec, err := model.NewRecord(typ)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	if err := json.Unmarshal(data, rec); err != nil {
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			return nil, ve
		}
		return nil, &model.ValidationError{Field: "record", Constraint: err.Error()}
	}
	return rec, nil
}
