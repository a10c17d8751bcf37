// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/capkit/capkit/pkg/dispatch"
)

const (
	// ExitFailure is the generic failure exit code.
	ExitFailure ExitCode = 1
	// ExitUsage reports invalid arguments or flags.
	ExitUsage ExitCode = 2
	// ExitNotFound reports a namespace that resolved to nothing.
	ExitNotFound ExitCode = 3
)

type (
	// ExitCode is a process exit status.
	ExitCode int

	// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
	ExitError struct {
		Code ExitCode
		Err  error
	}
)

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCodeFor maps err to the process exit status.
func exitCodeFor(err error) ExitCode {
	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, dispatch.ErrNotFound):
		return ExitNotFound
	default:
		return ExitFailure
	}
}
