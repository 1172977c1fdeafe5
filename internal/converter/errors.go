package converter

import (
	"errors"
	"fmt"
)

// Failure classes reported by adapters. Match them with errors.Is.
var (
	// ErrToolUnavailable means the external binary or library is missing.
	ErrToolUnavailable = errors.New("conversion tool unavailable")

	// ErrToolTimeout means the tool exceeded its deadline and was terminated.
	ErrToolTimeout = errors.New("conversion tool timed out")

	// ErrToolFailed means the tool ran and reported an error.
	ErrToolFailed = errors.New("conversion tool failed")

	// ErrOutputMissing means the tool exited cleanly but produced nothing.
	ErrOutputMissing = errors.New("conversion produced no output")
)

// ToolError is the structured failure returned by every adapter.
type ToolError struct {
	Tool   string
	Kind   error
	Output string
	Err    error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Tool, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

// Unwrap exposes both the failure class and the underlying cause.
func (e *ToolError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func toolError(tool string, kind error, err error) *ToolError {
	return &ToolError{Tool: tool, Kind: kind, Err: err}
}

// Message returns the short, client-safe description of a conversion
// failure. Tool diagnostics stay in the logs.
func Message(err error) string {
	var te *ToolError
	if !errors.As(err, &te) {
		return err.Error()
	}
	switch {
	case errors.Is(te.Kind, ErrToolUnavailable):
		return fmt.Sprintf("%s is not available on this server", te.Tool)
	case errors.Is(te.Kind, ErrToolTimeout):
		return fmt.Sprintf("%s conversion timed out", te.Tool)
	case errors.Is(te.Kind, ErrOutputMissing):
		return fmt.Sprintf("%s did not produce an output file", te.Tool)
	default:
		return fmt.Sprintf("%s conversion failed", te.Tool)
	}
}
