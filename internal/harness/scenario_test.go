package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content beside a stub fixture and returns the
// scenario path.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "network.yaml"), []byte("participants: []\n"), 0644))
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
fixture: network.yaml
flow:
  - as: System#system@email.com
    submit: postErrorMessage
    payload:
      messageId: "51"
      owner: Member#alice@email.com
    expect:
      events: 2
assertions:
  - type: event_contains
    kind: ErrorMessagePosted
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "network.yaml"), scenario.Fixture)
	require.Len(t, scenario.Flow, 1)
	assert.Len(t, scenario.Assertions, 1)

	op, target := scenario.Flow[0].Operation()
	assert.Equal(t, OpSubmit, op)
	assert.Equal(t, "postErrorMessage", target)
	assert.Equal(t, "51", scenario.Flow[0].Payload["messageId"])
	require.NotNil(t, scenario.Flow[0].Expect.Events)
	assert.Equal(t, 2, *scenario.Flow[0].Expect.Events)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MissingFixture(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "fixture does not exist"
fixture: other.yaml
flow:
  - as: Member#alice@email.com
    list: ErrorMessage
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixture file not found")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "typo in assertions"
fixture: network.yaml
flow:
  - as: Member#alice@email.com
    list: ErrorMessage
assertion:
  - type: chain_valid
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "missing name",
			content: "description: d\nfixture: f\nflow: [{as: 'Member#a', list: ErrorMessage}]\n",
			want:    "name is required",
		},
		{
			name:    "missing description",
			content: "name: n\nfixture: f\nflow: [{as: 'Member#a', list: ErrorMessage}]\n",
			want:    "description is required",
		},
		{
			name:    "missing fixture",
			content: "name: n\ndescription: d\nflow: [{as: 'Member#a', list: ErrorMessage}]\n",
			want:    "fixture is required",
		},
		{
			name:    "empty flow",
			content: "name: n\ndescription: d\nfixture: f\nflow: []\n",
			want:    "flow list is required",
		},
		{
			name:    "missing caller",
			content: "name: n\ndescription: d\nfixture: f\nflow: [{list: ErrorMessage}]\n",
			want:    "flow[0]: as is required",
		},
		{
			name:    "malformed caller",
			content: "name: n\ndescription: d\nfixture: f\nflow: [{as: alice, list: ErrorMessage}]\n",
			want:    "flow[0]: as:",
		},
		{
			name:    "two operations",
			content: "name: n\ndescription: d\nfixture: f\nflow: [{as: 'Member#a', list: ErrorMessage, get: 'ErrorMessage#1'}]\n",
			want:    "exactly one operation is required, found 2",
		},
		{
			name:    "no operation",
			content: "name: n\ndescription: d\nfixture: f\nflow: [{as: 'Member#a'}]\n",
			want:    "exactly one operation is required, found 0",
		},
		{
			name:    "bad target",
			content: "name: n\ndescription: d\nfixture: f\nflow: [{as: 'Member#a', get: ErrorMessage}]\n",
			want:    "flow[0]: get:",
		},
		{
			name:    "create without record",
			content: "name: n\ndescription: d\nfixture: f\nflow: [{as: 'Member#a', create: ErrorMessage}]\n",
			want:    "create: record is required",
		},
		{
			name:    "unknown outcome",
			content: "name: n\ndescription: d\nfixture: f\nflow: [{as: 'Member#a', list: ErrorMessage, expect: {outcome: maybe}}]\n",
			want:    `unknown outcome "maybe"`,
		},
		{
			name:    "unknown reason",
			content: "name: n\ndescription: d\nfixture: f\nflow: [{as: 'Member#a', list: ErrorMessage, expect: {outcome: denied, reason: nope}}]\n",
			want:    `unknown reason "nope"`,
		},
		{
			name:    "expect in setup",
			content: "name: n\ndescription: d\nfixture: f\nsetup: [{as: 'Member#a', list: ErrorMessage, expect: {outcome: ok}}]\nflow: [{as: 'Member#a', list: ErrorMessage}]\n",
			want:    "setup[0]: expect is not allowed",
		},
		{
			name:    "unknown assertion",
			content: "name: n\ndescription: d\nfixture: f\nflow: [{as: 'Member#a', list: ErrorMessage}]\nassertions: [{type: trace_contains}]\n",
			want:    `assertions[0]: unknown assertion type "trace_contains"`,
		},
		{
			name:    "event_contains without kind",
			content: "name: n\ndescription: d\nfixture: f\nflow: [{as: 'Member#a', list: ErrorMessage}]\nassertions: [{type: event_contains}]\n",
			want:    "kind is required for event_contains",
		},
		{
			name:    "event_order without kinds",
			content: "name: n\ndescription: d\nfixture: f\nflow: [{as: 'Member#a', list: ErrorMessage}]\nassertions: [{type: event_order}]\n",
			want:    "kinds list is required",
		},
		{
			name:    "negative count",
			content: "name: n\ndescription: d\nfixture: f\nflow: [{as: 'Member#a', list: ErrorMessage}]\nassertions: [{type: event_count, count: -1}]\n",
			want:    "count must be non-negative",
		},
		{
			name:    "final_state without expect",
			content: "name: n\ndescription: d\nfixture: f\nflow: [{as: 'Member#a', list: ErrorMessage}]\nassertions: [{type: final_state, record: 'ErrorMessage#1'}]\n",
			want:    "expect or absent is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStep_Operation(t *testing.T) {
	tests := []struct {
		step   Step
		op     string
		target string
	}{
		{Step{Submit: "postErrorMessage"}, OpSubmit, "postErrorMessage"},
		{Step{Get: "ErrorMessage#1"}, OpGet, "ErrorMessage#1"},
		{Step{List: "Member"}, OpList, "Member"},
		{Step{Exists: "ErrorMessage#2"}, OpExists, "ErrorMessage#2"},
		{Step{Create: "ErrorMessage"}, OpCreate, "ErrorMessage"},
		{Step{Update: "ErrorMessage#1"}, OpUpdate, "ErrorMessage#1"},
		{Step{Delete: "ErrorMessage#1"}, OpDelete, "ErrorMessage#1"},
		{Step{}, "", ""},
	}
	for _, tt := range tests {
		op, target := tt.step.Operation()
		assert.Equal(t, tt.op, op)
		assert.Equal(t, tt.target, target)
	}
}
