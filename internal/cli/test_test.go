package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../harness/testdata/scenarios"

func runTestCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// writeScenarioDir writes one scenario into dir/scenarios.
func writeScenarioDir(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(scenarios, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "smoke.yaml"), []byte(content), 0644))
	return dir
}

func fixtureAbs(t *testing.T) string {
	t.Helper()
	abs, err := filepath.Abs(networkFixture)
	require.NoError(t, err)
	return abs
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runTestCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := runTestCommand(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := runTestCommand(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := runTestCommand(t, "json", t.TempDir())
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
	assert.Empty(t, resp.Data.Scenarios)
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	out, err := runTestCommand(t, "text", scenariosDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ read_access\n")
	assert.Contains(t, out, "✓ observed_warnings\n")
	assert.Contains(t, out, "Test Summary: 8 passed, 0 failed, 8 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandFilter(t *testing.T) {
	out, err := runTestCommand(t, "json", scenariosDir, "--filter", "update_*")
	require.NoError(t, err)

	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Passed)

	_, err = runTestCommand(t, "text", scenariosDir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := writeScenarioDir(t, `name: smoke
description: Alice cannot read Bob's message
fixture: `+fixtureAbs(t)+`
flow:
  - as: Member#alice@email.com
    get: ErrorMessage#2
    expect:
      outcome: ok
`)

	out, err := runTestCommand(t, "json", filepath.Join(dir, "scenarios"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTestFailed, resp.Error.Code)
	assert.Equal(t, "1 scenario(s) failed", resp.Error.Message)
}

func TestTestCommandUpdateGolden(t *testing.T) {
	dir := writeScenarioDir(t, `name: smoke
description: Bob reads his own message
fixture: `+fixtureAbs(t)+`
flow:
  - as: Level2#bob@email.com
    get: ErrorMessage#2
    expect:
      outcome: ok
`)
	scenarios := filepath.Join(dir, "scenarios")
	golden := filepath.Join(dir, "golden", "smoke.golden")

	out, err := runTestCommand(t, "text", scenarios, "--update")
	require.NoError(t, err, out)
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name":"smoke"`)

	_, err = runTestCommand(t, "text", scenarios)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario_name":"stale"}`), 0644))
	out, err = runTestCommand(t, "text", scenarios)
	require.Error(t, err)
	assert.Contains(t, out, "✗ smoke\n")
	assert.Contains(t, out, "trace does not match golden file")
}
