package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_Success(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, formatter.Success(map[string]int{"syncs": 3}))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, map[string]any{"syncs": float64(3)}, resp.Data)
		assert.Nil(t, resp.Error)
	})

	t.Run("text", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}
		require.NoError(t, formatter.Success("All specs valid"))
		assert.Equal(t, "All specs valid\n", buf.String())
	})
}

func TestOutputFormatter_Error(t *testing.T) {
	details := map[string]string{"file": "pets.cue", "line": "4"}

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, formatter.Error(ErrCodeBuildFailed, "syntax error", details))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeBuildFailed, resp.Error.Code)
		assert.Equal(t, "syntax error", resp.Error.Message)
		assert.NotNil(t, resp.Error.Details)
	})

	t.Run("text hides details", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}
		require.NoError(t, formatter.Error(ErrCodeGeneric, "compilation failed", details))
		assert.Equal(t, "Error [E001]: compilation failed\n", buf.String())
	})

	t.Run("text verbose shows details", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}
		require.NoError(t, formatter.Error(ErrCodeGeneric, "compilation failed", details))
		assert.Contains(t, buf.String(), "Details:")
	})
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			diag := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: diag,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Compiled sync: %s", "create-pet")

			// Diagnostics never land on the JSON stream.
			assert.Empty(t, out.String())
			if tt.wantLog {
				assert.Equal(t, "Compiled sync: create-pet\n", diag.String())
			} else {
				assert.Empty(t, diag.String())
			}
		})
	}
}

func TestNewFormatter(t *testing.T) {
	out := &bytes.Buffer{}
	diag := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(diag)

	formatter := NewFormatter(cmd, &RootOptions{Format: "json", Verbose: true})
	assert.Equal(t, "json", formatter.Format)

	formatter.VerboseLog("Validated %d sync(s)", 2)
	require.NoError(t, formatter.Success(ValidationResult{Valid: true, Syncs: 2}))

	assert.Equal(t, "Validated 2 sync(s)\n", diag.String())
	assert.NotContains(t, out.String(), "Validated 2")
}

func TestOutputFormatter_VerboseLogFallsBackToWriter(t *testing.T) {
	out := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: out, Verbose: true}
	formatter.VerboseLog("Compiled sync: %s", "create-pet")
	assert.Equal(t, "Compiled sync: create-pet\n", out.String())
}

func TestOutputFormatter_Failure(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	result := TestResult{Total: 2, Passed: 1, Failed: 1}
	err := formatter.Failure(CLIError{Code: "E_TEST_FAILED", Message: "1 scenario(s) failed"}, result)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, StatusError, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.NotNil(t, resp.Data, "failure keeps the full result")
}

func TestOutputFormatter_Indented(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Indented(CLIResponse{Status: "ok", Data: []int{1}, FlowToken: "flow-1"})
	require.NoError(t, err)

	// Indented output ignores the text format.
	assert.Contains(t, buf.String(), "\n  \"status\": \"ok\"")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "flow-1", resp.FlowToken)
}

func TestGetExitCode(t *testing.T) {
	cause := errors.New("disk full")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"command error", NewExitError(ExitCommandError, "bad path"), ExitCommandError},
		{"failure", NewExitError(ExitFailure, "2 scenario(s) failed"), ExitFailure},
		{"wrapped", fmt.Errorf("trace: %w", WrapExitError(ExitCommandError, "open", cause)), ExitCommandError},
		{"plain error", cause, ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}

	wrapped := WrapExitError(ExitCommandError, "failed to open database", cause)
	assert.Equal(t, "failed to open database: disk full", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}
