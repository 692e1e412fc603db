package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/strategy"
	"github.com/roach88/tally/internal/table"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Evaluation or validation failure
	ExitCommandError = 2 // Command error (bad flags, missing files, etc.)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

// CLIResponse is the standard JSON envelope for CLI output.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError carries the structured code and message of a failure.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format. In text
// mode the data's natural string form is printed.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled. Diagnostics
// go to ErrWriter so JSON output stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// errCodeGeneric labels failures without a structured code of their own.
const errCodeGeneric = "ERROR"

// errorCode extracts the structured code from resolution and runtime
// errors, falling back to a generic label.
func errorCode(err error) string {
	var re *strategy.ResolutionError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	var rte *engine.RuntimeError
	if errors.As(err, &rte) {
		return string(rte.Code)
	}
	return errCodeGeneric
}

// tableRows converts a result table into JSON-friendly row maps, one map
// per row keyed by column name.
func tableRows(t *table.Table) []map[string]any {
	out := make([]map[string]any, 0, t.NumRows())
	cols := t.Columns()
	for i := 0; i < t.NumRows(); i++ {
		row := t.Row(i)
		m := make(map[string]any, len(cols))
		for _, col := range cols {
			m[col] = valueAny(row.Get(col))
		}
		out = append(out, m)
	}
	return out
}

func valueAny(v table.Value) any {
	switch v := v.(type) {
	case table.Null:
		return nil
	case table.String:
		return string(v)
	case table.Int:
		return int64(v)
	case table.Float:
		return float64(v)
	case table.Bool:
		return bool(v)
	default:
		return table.Format(v)
	}
}
