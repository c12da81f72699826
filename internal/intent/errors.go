package intent

import (
	"fmt"
	"time"
)

// TimeoutError reports that the compiler did not exit within its budget and
// was killed.
type TimeoutError struct {
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("intent compiler timed out after %s", e.Budget)
}

// SpawnError reports that the compiler process could not be started.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start intent compiler %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ExitError reports a non-zero compiler exit, with captured stderr.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	detail := e.Stderr
	if detail == "" {
		detail = "no stderr output"
	}
	return fmt.Sprintf("intent compiler exited with code %d: %s", e.Code, detail)
}

// MalformedOutputError reports a zero exit whose stdout violates the output
// contract.
type MalformedOutputError struct {
	Reason string
	Err    error
}

func (e *MalformedOutputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid intent compiler output: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid intent compiler output: %s", e.Reason)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}
