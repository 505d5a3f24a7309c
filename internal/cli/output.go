package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/sandalwing/si/internal/si"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // successful execution
	ExitFailure      = 1 // domain failure (not found, conflict, invalid transition)
	ExitCommandError = 2 // command error (bad flags, unreadable config, storage failure)
)

// ExitError carries a specific exit code out of a command.
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

// ExitCode maps an error to the process exit code. Domain errors exit 1;
// storage and plumbing errors exit 2.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var storageErr *si.StorageError
	if errors.As(err, &storageErr) {
		return ExitCommandError
	}
	return ExitFailure
}

// Formatter renders command results as text or JSON.
type Formatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

// Response is the JSON envelope for every command result.
type Response struct {
	Status string `json:"status"` // "ok" or "error"
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Success renders data in the configured format. The text form uses the
// value's String method when present, otherwise indented JSON.
func (f *Formatter) Success(data any) error {
	if f.Format == "json" {
		return f.emit(Response{Status: "ok", Data: data})
	}
	if s, ok := data.(fmt.Stringer); ok {
		_, err := fmt.Fprintln(f.Writer, s.String())
		return err
	}
	if s, ok := data.(string); ok {
		_, err := fmt.Fprintln(f.Writer, s)
		return err
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f.Writer, string(b))
	return err
}

// Failure renders an error in the configured format and returns it so
// the caller still propagates the exit code.
func (f *Formatter) Failure(cmdErr error) error {
	if f.Format == "json" {
		if err := f.emit(Response{Status: "error", Error: cmdErr.Error()}); err != nil {
			return err
		}
		return cmdErr
	}
	if _, err := fmt.Fprintf(f.Writer, "error: %v\n", cmdErr); err != nil {
		return err
	}
	return cmdErr
}

func (f *Formatter) emit(resp Response) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
