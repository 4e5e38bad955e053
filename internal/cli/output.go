package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/ratelimits/internal/ruleset"
	"github.com/roach88/ratelimits/internal/submission"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Submission rejected by validation or policy
	ExitCommandError = 2 // Command error (bad flags, unreadable file, store failure, etc.)
)

// CLI error codes. Submission file errors keep the codes assigned by the
// submission package; rejected configs report their ruleset code.
const (
	ErrCodeGeneric  = submission.ErrCodeGeneric
	ErrCodeNotFound = submission.ErrCodeNotFound
	ErrCodeArgument = "E012" // Invalid command argument
	ErrCodeStore    = "E020" // Store open or query failed
	ErrCodeSettings = "E021" // Settings could not be loaded
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	// Reported is set once the error has been written to the command output.
	Reported bool
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Errors that are not an ExitError (flag parsing, unknown commands) are
// command errors.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// IsReported reports whether err was already written by a command.
func IsReported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Reported
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E005", "DUPLICATE_RULES", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err in the configured format and returns the ExitError the
// command should return.
func (f *OutputFormatter) Fail(err error) error {
	code, message, details := describeError(err)
	_ = f.Error(code, message, details)
	return &ExitError{Code: exitCodeFor(err), Message: code, Err: err, Reported: true}
}

// FailWith reports err under code as a command error.
func (f *OutputFormatter) FailWith(code string, err error) error {
	_ = f.Error(code, err.Error(), nil)
	return &ExitError{Code: ExitCommandError, Message: code, Err: err, Reported: true}
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// describeError maps err to a response code, message and optional details.
func describeError(err error) (string, string, any) {
	var loadErr *submission.LoadError
	if errors.As(err, &loadErr) {
		if loadErr.Pos.IsValid() {
			return loadErr.Code, loadErr.Message, map[string]any{
				"file":   loadErr.Pos.Filename(),
				"line":   loadErr.Pos.Line(),
				"column": loadErr.Pos.Column(),
			}
		}
		return loadErr.Code, loadErr.Message, nil
	}

	var inputErr *ruleset.InputConfigError
	if errors.As(err, &inputErr) {
		details := map[string]any{"index": inputErr.Index}
		if inputErr.Code == ruleset.ErrCodeDuplicateRules {
			details["other_index"] = inputErr.OtherIndex
		}
		return string(inputErr.Code), trimCode(inputErr.Error(), string(inputErr.Code)), details
	}

	var disclosedErr *ruleset.DisclosedIncidentError
	if errors.As(err, &disclosedErr) {
		code := string(ruleset.ErrCodeDisclosedIncident)
		return code, trimCode(disclosedErr.Error(), code), map[string]any{
			"index":       disclosedErr.Index,
			"incident_id": disclosedErr.IncidentID.String(),
		}
	}

	var internalErr *ruleset.InternalError
	if errors.As(err, &internalErr) {
		code := string(ruleset.ErrCodeInternal)
		return code, trimCode(internalErr.Error(), code), nil
	}

	if errors.Is(err, ruleset.ErrNotFound) {
		return ErrCodeNotFound, err.Error(), nil
	}

	return ErrCodeGeneric, err.Error(), nil
}

// exitCodeFor separates rejected submissions from everything else.
func exitCodeFor(err error) int {
	if ruleset.IsInputError(err) || ruleset.IsPolicyViolation(err) {
		return ExitFailure
	}
	return ExitCommandError
}

func trimCode(message, code string) string {
	return strings.TrimPrefix(message, code+": ")
}
