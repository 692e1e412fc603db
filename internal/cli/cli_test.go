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

// execute runs the CLI with the given args and captures stdout.
func execute(args ...string) (string, error) {
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "tally", cmd.Use)
	assert.Contains(t, cmd.Long, "catalog")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"validate", "graph", "explain", "evaluate"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	catalogFlag := cmd.PersistentFlags().Lookup("catalog")
	require.NotNil(t, catalogFlag)
	assert.Equal(t, "c", catalogFlag.Shorthand)
	assert.Equal(t, "catalog.cue", catalogFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
}

func TestRejectsUnknownFormat(t *testing.T) {
	_, err := execute("validate", "-c", "testdata/catalog.cue", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestValidateText(t *testing.T) {
	out, err := execute("validate", "-c", "testdata/catalog.cue")
	require.NoError(t, err)
	assert.Contains(t, out, "catalog valid: 4 provider(s)")
	assert.Contains(t, out, "transactions (memory: transactions.csv)")
}

func TestValidateJSON(t *testing.T) {
	out, err := execute("validate", "-c", "testdata/catalog.cue", "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["valid"])
	assert.Len(t, data["providers"], 4)
}

func TestValidateReportsCatalogDefect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.cue")
	require.NoError(t, os.WriteFile(path, []byte(`providers: {p: {source: "p.csv"}}`), 0o644))

	out, err := execute("validate", "-c", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [INVALID_CATALOG]")
	assert.Contains(t, out, "backend is required")
}

func TestValidateMissingFile(t *testing.T) {
	_, err := execute("validate", "-c", "testdata/no_such.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestEvaluateText(t *testing.T) {
	out, err := execute("evaluate",
		"-c", "testdata/catalog.cue",
		"-u", "transaction",
		"-m", "value",
		"-s", "person:seller/geography/name",
		"-w", "ds=2018-01-01",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "person:seller/geography/name")
	assert.Contains(t, out, "north")
	assert.Contains(t, out, "140")
	assert.Contains(t, out, "south")
	assert.Contains(t, out, "95")
}

func TestEvaluateJSON(t *testing.T) {
	out, err := execute("evaluate",
		"-c", "testdata/catalog.cue",
		"-u", "transaction",
		"-m", "value",
		"-s", "person:seller/geography/name",
		"-w", "ds=2018-01-01",
		"--format", "json",
	)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)

	data := resp.Data.(map[string]any)
	rows := data["rows"].([]any)
	require.Len(t, rows, 2)
	first := rows[0].(map[string]any)
	assert.Equal(t, "north", first["person:seller/geography/name"])
	assert.Equal(t, float64(140), first["value"])
}

func TestEvaluateMembershipWhere(t *testing.T) {
	out, err := execute("evaluate",
		"-c", "testdata/catalog.cue",
		"-u", "person",
		"-m", "age",
		"-s", "name",
		"-w", "name=Ada,Cyd",
		"-w", "ds=2018-01-01",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Ada")
	assert.Contains(t, out, "Cyd")
	assert.NotContains(t, out, "Bob")
}

func TestEvaluateReportsResolutionCode(t *testing.T) {
	out, err := execute("evaluate",
		"-c", "testdata/catalog.cue",
		"-u", "transaction",
		"-m", "value",
	)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [MISSING_PARTITION_CONSTRAINT]")
}

func TestExplain(t *testing.T) {
	out, err := execute("explain",
		"-c", "testdata/catalog.cue",
		"-u", "transaction",
		"-m", "value",
		"-s", "person:seller/geography/name",
		"-w", "ds=2018-01-01",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "fingerprint:")
	assert.Contains(t, out, "transactions")
	assert.Contains(t, out, "geographies")
}

func TestExplainRequiresUnit(t *testing.T) {
	_, err := execute("explain", "-c", "testdata/catalog.cue", "-m", "value")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unit")
}

func TestGraph(t *testing.T) {
	out, err := execute("graph", "-c", "testdata/catalog.cue")
	require.NoError(t, err)
	assert.Contains(t, out, "unit person")
	assert.Contains(t, out, "unit transaction")
	assert.Contains(t, out, "geography")
}

func TestEnvironmentFormat(t *testing.T) {
	t.Setenv("TALLY_FORMAT", "json")

	out, err := execute("validate", "-c", "testdata/catalog.cue")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestParseWhere(t *testing.T) {
	spec, err := parseWhere([]string{"ds=2018-01-01", "name=Ada,Cyd"})
	require.NoError(t, err)

	m := spec.(map[string]any)
	assert.Equal(t, "2018-01-01", m["ds"])
	assert.Equal(t, []any{"Ada", "Cyd"}, m["name"])
}

func TestParseWhereRejectsBareEntry(t *testing.T) {
	_, err := parseWhere([]string{"ds"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected path=value")
}
