// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

type (
	// SchemaError is a CUE failure reported against one file. Each problem
	// carries the field path it applies to, so callers can point at the
	// exact config key or data capability field.
	SchemaError struct {
		File     string
		Problems []Problem
		cause    error
	}

	// Problem is a single CUE error.
	Problem struct {
		// Path is the dotted field path, e.g. watch.patterns[0]. Empty for
		// errors not tied to a field, such as syntax errors.
		Path    string
		Message string
	}
)

// FormatError turns err into a *SchemaError for file. A nil err stays nil.
//
// A single problem renders as
//
//	config.cue: watch.debounce: conflicting values "fast" and int
//
// and several as an indented list under "validation failed".
func FormatError(err error, file string) error {
	if err == nil {
		return nil
	}
	se := &SchemaError{File: file, cause: err}
	var ce cueerrors.Error
	if !errors.As(err, &ce) {
		return se
	}
	for _, e := range cueerrors.Errors(err) {
		se.Problems = append(se.Problems, problemOf(e))
	}
	return se
}

func problemOf(e cueerrors.Error) Problem {
	path := formatPath(cueerrors.Path(e))
	msg := e.Error()
	// CUE often prefixes the message with the path it already reports.
	if path != "" {
		if rest, ok := strings.CutPrefix(msg, path); ok {
			msg = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
		}
	}
	return Problem{Path: path, Message: msg}
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	switch len(e.Problems) {
	case 0:
		return fmt.Sprintf("%s: %v", e.File, e.cause)
	case 1:
		return e.File + ": " + e.Problems[0].String()
	}
	lines := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		lines[i] = p.String()
	}
	return fmt.Sprintf("%s: validation failed:\n  %s", e.File, strings.Join(lines, "\n  "))
}

// Unwrap returns the underlying CUE error.
func (e *SchemaError) Unwrap() error { return e.cause }

// String renders the problem as "path: message".
func (p Problem) String() string {
	if p.Path == "" {
		return p.Message
	}
	return p.Path + ": " + p.Message
}

// formatPath renders a CUE path such as ["watch", "patterns", "0"] as
// watch.patterns[0]. A leading numeric element stays bare.
func formatPath(path []string) string {
	var b strings.Builder
	for i, part := range path {
		switch {
		case i > 0 && isIndex(part):
			b.WriteString("[" + part + "]")
		case i > 0:
			b.WriteString("." + part)
		default:
			b.WriteString(part)
		}
	}
	return b.String()
}

func isIndex(s string) bool {
	return s != "" && strings.Trim(s, "0123456789") == ""
}

// CheckFileSize rejects data larger than maxSize.
func CheckFileSize(data []byte, maxSize int64, filename string) error {
	if size := int64(len(data)); size > maxSize {
		return fmt.Errorf("%s: %d bytes exceeds the %d byte limit", filename, size, maxSize)
	}
	return nil
}
