package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/recorder"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // rejected input, or entries left unsynced
	ExitCommandError = 2 // bad config, unreadable database, malformed arguments
)

// Codes carried in the JSON error envelope.
const (
	CodeInvalidInput = "invalid_input"
	CodeFailed       = "failed"
	CodeCommandError = "command_error"
)

// ExitError carries the exit code a command failed with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors that carry no code,
// such as cobra's flag errors, exit with ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// recorderError classifies a recorder failure: rejected input is a
// failure, anything else is a command error.
func recorderError(message string, err error) error {
	if recorder.IsValidation(err) {
		return WrapExitError(ExitFailure, message, err)
	}
	return WrapExitError(ExitCommandError, message, err)
}

// errorCode returns the envelope code for err and, for rejected input, the
// offending field.
func errorCode(err error) (string, any) {
	var ve *recorder.ValidationError
	if errors.As(err, &ve) {
		if ve.Field == "" {
			return CodeInvalidInput, nil
		}
		return CodeInvalidInput, map[string]string{"field": ve.Field}
	}
	if GetExitCode(err) == ExitCommandError {
		return CodeCommandError, nil
	}
	return CodeFailed, nil
}

// OutputFormatter writes command results as JSON envelopes or text.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; falls back to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope every command writes.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// textRenderer is implemented by results with their own text layout.
type textRenderer interface {
	renderText(w io.Writer) error
}

func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}

	if r, ok := data.(textRenderer); ok {
		tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
		if err := r.renderText(tw); err != nil {
			return err
		}
		return tw.Flush()
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

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

// VerboseLog writes a diagnostic line in verbose mode only. It goes to
// ErrWriter so JSON on Writer stays parseable.
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
