package cli

import (
	"errors"
	"fmt"
)

// ExitError is a command failure carrying the process exit code.
//
// Commands return NewExitError(code) from RunE instead of calling os.Exit, so
// tests can assert on exit codes without terminating. [RunWithConfig] extracts
// the code with [IsExitError] and [Execute] performs the actual exit.
type ExitError struct {
	// Code is the exit code returned to the shell. 1 is a failed or partial
	// run, 2 an unknown workflow.
	Code int
}

// Error implements the error interface in the "exit status N" form used by os/exec.
func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewExitError creates an [ExitError] with the given exit code.
//
//	if report.Overall != history.StatusSuccess {
//	    return NewExitError(1)
//	}
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// IsExitError reports whether err is, or wraps, an [ExitError] and returns its code.
func IsExitError(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
