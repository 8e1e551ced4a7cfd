package harness

import (
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/patdav1503/securelog-msg-network/internal/ir"
)

// GoldenDir is where golden snapshots live, relative to the package
// under test.
const GoldenDir = "testdata/golden"

// Snapshot captures the complete outcome of a scenario execution:
// every step's trace and every committed event with its hash.
// It is serialized as canonical JSON for deterministic comparison.
type Snapshot struct {
	ScenarioName string
	Result       *Result
}

// NewSnapshot builds the snapshot of a finished run.
func NewSnapshot(name string, result *Result) *Snapshot {
	return &Snapshot{ScenarioName: name, Result: result}
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *Snapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Result.Trace))
	for i, t := range s.Result.Trace {
		step := map[string]any{
			"phase":   t.Phase,
			"step":    t.Step,
			"caller":  t.Caller,
			"action":  t.Action,
			"target":  t.Target,
			"outcome": t.Outcome,
		}
		if t.Reason != "" {
			step["reason"] = t.Reason
		}
		if len(t.Events) > 0 {
			seqs := make([]any, len(t.Events))
			for j, seq := range t.Events {
				seqs[j] = seq
			}
			step["events"] = seqs
		}
		if t.Records != nil {
			recs := make([]any, len(t.Records))
			for j, id := range t.Records {
				recs[j] = id
			}
			step["records"] = recs
		}
		if t.Exists != nil {
			step["exists"] = *t.Exists
		}
		steps[i] = step
	}

	events := make([]any, len(s.Result.Events))
	for i, e := range s.Result.Events {
		content := e.Content()
		content["hash"] = ir.IRString(e.Hash)
		events[i] = content
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"steps":         steps,
		"events":        events,
	}
}

// Marshal returns the canonical JSON form of the snapshot.
func (s *Snapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// GoldenPath returns the golden file for a scenario file: the
// scenario's base name under a golden directory next to the scenarios
// directory.
func GoldenPath(scenarioFile, name string) string {
	return filepath.Join(filepath.Dir(filepath.Dir(scenarioFile)), "golden", name+".golden")
}

// RunWithGolden executes a scenario and compares the snapshot against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
