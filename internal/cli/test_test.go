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

var scenariosDir = filepath.Join("testdata", "scenarios")

func executeTest(t *testing.T, format string, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return buf, cmd.Execute()
}

// writeScenario writes a scenario file into dir that loads the valid specs
// by absolute path, so it can live outside testdata.
func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	specs, err := filepath.Abs(validSpecsDir)
	require.NoError(t, err)
	content := "name: " + name + "\ndescription: " + name + "\nspecs:\n  - " + specs + "\n" + body
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := executeTest(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := executeTest(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandNoScenarios(t *testing.T) {
	buf, err := executeTest(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No scenarios found.")
}

func TestTestCommandPassingScenarios(t *testing.T) {
	buf, err := executeTest(t, "text", scenariosDir)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ create_pet\n")
	assert.Contains(t, output, "✓ no_session\n")
	assert.Contains(t, output, "Test Summary: 2 passed, 0 failed, 2 total")
	assert.Contains(t, output, "✓ All scenarios passed")
}

func TestTestCommandJSON(t *testing.T) {
	buf, err := executeTest(t, "json", scenariosDir, "--parallel", "1")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Passed)

	// Results keep file order regardless of completion order.
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "create_pet", resp.Data.Scenarios[0].Name)
	assert.Equal(t, "no_session", resp.Data.Scenarios[1].Name)
}

func TestTestCommandFilter(t *testing.T) {
	buf, err := executeTest(t, "text", scenariosDir, "--filter", "no_*")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Test Summary: 1 passed, 0 failed, 1 total")
	assert.NotContains(t, buf.String(), "create_pet")
}

func TestTestCommandInvalidFilter(t *testing.T) {
	_, err := executeTest(t, "text", scenariosDir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "wrong_pet", `request: {path: /pets, name: rex, session: s1}
tables:
  sessions:
    - {token: s1, user_id: u1}
concepts:
  Pets.create:
    - output: {pet: p1}
expect:
  response: {pet: p2}
`)

	buf, err := executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ wrong_pet")
	assert.Contains(t, buf.String(), "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommandInvalidScenarioFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\nbogus: true\n"), 0o644))

	buf, err := executeTest(t, "json", dir)
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	require.NotEmpty(t, resp.Data.Scenarios[0].Errors)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "failed to load scenario")
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
}

func TestTestCommandGoldenFiles(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "golden_pet", `flow_token: flow-golden
request: {path: /pets, name: rex, session: s1}
tables:
  sessions:
    - {token: s1, user_id: u1}
concepts:
  Pets.create:
    - output: {pet: p1}
expect:
  response: {pet: p1}
`)
	goldenPath := filepath.Join(dir, "golden", "golden_pet.golden")

	// --update writes the golden file.
	buf, err := executeTest(t, "text", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ golden_pet (golden updated)")

	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"flow_token":"flow-golden"`)

	// A second run compares against it.
	buf, err = executeTest(t, "json", dir)
	require.NoError(t, err)
	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "match", resp.Data.Scenarios[0].Golden)

	// A stale golden file fails the scenario.
	require.NoError(t, os.WriteFile(goldenPath, []byte(`{}`), 0o644))
	buf, err = executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "does not match golden file")
}

func TestTestCommandDatabaseDir(t *testing.T) {
	dbDir := filepath.Join(t.TempDir(), "audit")

	_, err := executeTest(t, "text", scenariosDir, "--db-dir", dbDir)
	require.NoError(t, err)

	for _, name := range []string{"create_pet.db", "no_session.db"} {
		_, err := os.Stat(filepath.Join(dbDir, name))
		assert.NoError(t, err, name)
	}

	// Rerunning replaces the databases instead of appending to them.
	_, err = executeTest(t, "text", scenariosDir, "--db-dir", dbDir)
	require.NoError(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("scenarios", "golden", "create_pet.golden"),
		goldenFilePath(filepath.Join("scenarios", "create_pet.yaml")))
}

func TestTestCommandMaxPasses(t *testing.T) {
	dir := t.TempDir()
	loop, err := filepath.Abs(filepath.Join("..", "harness", "testdata", "specs", "loop.cue"))
	require.NoError(t, err)

	scenario := `name: loop
description: A self-triggering sync runs until the pass budget
specs:
  - ` + loop + `
request: {path: /loop}
concepts:
  Loop.tick:
    - output: {}
expect:
  error: EXHAUSTED
assertions:
  - type: trace_count
    action: Loop.tick
    count: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loop.yaml"), []byte(scenario), 0o644))

	buf, err := executeTest(t, "text", dir, "--max-passes", "2")
	require.NoError(t, err, buf.String())
	assert.Contains(t, buf.String(), "✓ loop")
}
