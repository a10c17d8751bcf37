// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"errors"
	"fmt"

	"github.com/capkit/capkit/pkg/capability"
)

var (
	// ErrNotFound is the sentinel wrapped by NotFoundError.
	ErrNotFound = errors.New("capability not found")
	// ErrInit is the sentinel wrapped by InitError.
	ErrInit = errors.New("capability initialization failed")
	// ErrInvalidRequest is returned for a request that is neither a namespace
	// string nor a Request.
	ErrInvalidRequest = errors.New("invalid capability request")
)

type (
	// NotFoundError reports a namespace with no override, no discovered
	// capability and no built-in, as seen from CallSite. It is never cached.
	NotFoundError struct {
		Namespace string
		CallSite  capability.CallSite
	}

	// InitError reports a capability that was found but could not be
	// initialized. The failure stays cached for the call site until
	// Context.Forget.
	InitError struct {
		Namespace string
		CallSite  capability.CallSite
		Cause     error
	}
)

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cannot find capability %q", e.Namespace)
}

// Unwrap returns ErrNotFound for errors.Is.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Error implements the error interface.
func (e *InitError) Error() string {
	return fmt.Sprintf("failed to initialize capability %q for %s: %v", e.Namespace, e.CallSite, e.Cause)
}

// Unwrap returns both ErrInit and the cause.
func (e *InitError) Unwrap() []error {
	return []error{ErrInit, e.Cause}
}
