package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/patdav1503/securelog-msg-network/internal/model"
)

// Scenario defines a conformance test scenario.
// A scenario provisions a network, runs steps as named callers and
// checks each outcome, the committed events and the final records.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Fixture is the network fixture to provision, relative to the
	// scenario file.
	Fixture string `yaml:"fixture"`

	// Policy optionally replaces the default rule table with a CUE file,
	// relative to the scenario file.
	Policy string `yaml:"policy,omitempty"`

	// Setup steps establish state before the flow and must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow steps are the behaviour under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the committed events and final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one call made as one caller. Exactly one of the operation
// fields is set.
type Step struct {
	// As is the caller, in Type#id form.
	As string `yaml:"as"`

	// Submit names a transaction; Payload holds its parameters.
	Submit  string         `yaml:"submit,omitempty"`
	Payload map[string]any `yaml:"payload,omitempty"`

	// Get, Exists, Update and Delete take Type#id.
	Get    string `yaml:"get,omitempty"`
	Exists string `yaml:"exists,omitempty"`
	Update string `yaml:"update,omitempty"`
	Delete string `yaml:"delete,omitempty"`

	// List takes a record type.
	List string `yaml:"list,omitempty"`

	// Create takes a record type; Record holds the record's fields.
	Create string         `yaml:"create,omitempty"`
	Record map[string]any `yaml:"record,omitempty"`

	// Set is the patch applied by Update.
	Set map[string]string `yaml:"set,omitempty"`

	// Expect checks the outcome. Nil means the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Step operations.
const (
	OpSubmit = "submit"
	OpGet    = "get"
	OpList   = "list"
	OpExists = "exists"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Operation returns the step's operation and its target.
func (s Step) Operation() (op, target string) {
	switch {
	case s.Submit != "":
		return OpSubmit, s.Submit
	case s.Get != "":
		return OpGet, s.Get
	case s.List != "":
		return OpList, s.List
	case s.Exists != "":
		return OpExists, s.Exists
	case s.Create != "":
		return OpCreate, s.Create
	case s.Update != "":
		return OpUpdate, s.Update
	case s.Delete != "":
		return OpDelete, s.Delete
	}
	return "", ""
}

func (s Step) operationCount() int {
	n := 0
	for _, v := range []string{s.Submit, s.Get, s.List, s.Exists, s.Create, s.Update, s.Delete} {
		if v != "" {
			n++
		}
	}
	return n
}

// Outcome names.
const (
	OutcomeOK        = "ok"
	OutcomeDenied    = "denied"
	OutcomeNotFound  = "not-found"
	OutcomeDangling  = "dangling-reference"
	OutcomeInvalid   = "validation"
	outcomeUnmatched = "error"
)

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Outcome is ok, denied, not-found, dangling-reference or
	// validation. Empty means ok.
	Outcome string `yaml:"outcome,omitempty"`

	// Reason is the expected deny reason.
	Reason string `yaml:"reason,omitempty"`

	// Message is a regular expression the error text must match.
	Message string `yaml:"message,omitempty"`

	// Events is the exact number of events the step must commit.
	Events *int `yaml:"events,omitempty"`

	// Records lists the ids returned by get or list, in order.
	Records []string `yaml:"records,omitempty"`

	// Fields is a subset match against the record returned by get.
	Fields map[string]string `yaml:"fields,omitempty"`

	// Exists is the expected answer of an exists step.
	Exists *bool `yaml:"exists,omitempty"`
}

// Assertion validates the event log or final state.
type Assertion struct {
	// Type is one of event_contains, event_order, event_count,
	// final_state or chain_valid.
	Type string `yaml:"type"`

	// Kind is the event kind (event_contains, event_count).
	Kind string `yaml:"kind,omitempty"`

	// Fields is a subset match against event fields (event_contains).
	Fields map[string]any `yaml:"fields,omitempty"`

	// Kinds is the expected kind order (event_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Count is the expected number of events (event_count). With no
	// Kind it counts every event.
	Count int `yaml:"count,omitempty"`

	// Record is the Type#id inspected by final_state.
	Record string `yaml:"record,omitempty"`

	// Expect is a subset match against the record's fields (final_state).
	Expect map[string]string `yaml:"expect,omitempty"`

	// Absent asserts the record does not exist (final_state).
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertEventContains = "event_contains"
	AssertEventOrder    = "event_order"
	AssertEventCount    = "event_count"
	AssertFinalState    = "final_state"
	AssertChainValid    = "chain_valid"
)

// LoadScenario reads and parses a scenario YAML file, resolving the
// fixture and policy paths relative to the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	if scenario.Fixture != "" && !filepath.IsAbs(scenario.Fixture) {
		scenario.Fixture = filepath.Join(base, scenario.Fixture)
	}
	if scenario.Policy != "" && !filepath.IsAbs(scenario.Policy) {
		scenario.Policy = filepath.Join(base, scenario.Policy)
	}
	if err := checkPaths(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes and validates a scenario without touching the
// filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func checkPaths(s *Scenario) error {
	if _, err := os.Stat(s.Fixture); err != nil {
		return fmt.Errorf("fixture file not found: %s", s.Fixture)
	}
	if s.Policy != "" {
		if _, err := os.Stat(s.Policy); err != nil {
			return fmt.Errorf("policy file not found: %s", s.Policy)
		}
	}
	return nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Fixture == "" {
		return fmt.Errorf("fixture is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: expect is not allowed in setup", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(s Step) error {
	if s.As == "" {
		return fmt.Errorf("as is required")
	}
	if _, err := model.ParseRef(s.As); err != nil {
		return fmt.Errorf("as: %w", err)
	}
	if n := s.operationCount(); n != 1 {
		return fmt.Errorf("exactly one operation is required, found %d", n)
	}
	op, target := s.Operation()
	switch op {
	case OpGet, OpExists, OpUpdate, OpDelete:
		if _, err := model.ParseRef(target); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	case OpCreate:
		if s.Record == nil {
			return fmt.Errorf("create: record is required")
		}
	}
	if s.Expect != nil {
		switch s.Expect.Outcome {
		case "", OutcomeOK, OutcomeDenied, OutcomeNotFound, OutcomeDangling, OutcomeInvalid:
		default:
			return fmt.Errorf("expect: unknown outcome %q", s.Expect.Outcome)
		}
		if s.Expect.Reason != "" && !model.DenyReason(s.Expect.Reason).Valid() {
			return fmt.Errorf("expect: unknown reason %q", s.Expect.Reason)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEventContains:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for event_contains", index)
		}
	case AssertEventOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for event_order", index)
		}
	case AssertEventCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertFinalState:
		if _, err := model.ParseRef(a.Record); err != nil {
			return fmt.Errorf("assertions[%d]: record: %w", index, err)
		}
		if !a.Absent && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect or absent is required for final_state", index)
		}
	case AssertChainValid:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
