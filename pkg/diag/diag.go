// SPDX-License-Identifier: MPL-2.0

// Package diag defines the structured, non-fatal diagnostics produced while
// scanning package roots. A malformed manifest or descriptor in one subtree is
// reported here instead of failing the whole resolution.
package diag

import "fmt"

const (
	// SeverityWarning indicates a recoverable discovery warning.
	SeverityWarning Severity = "warning"
	// SeverityError indicates a non-fatal discovery error; the affected subtree
	// was skipped.
	SeverityError Severity = "error"
)

const (
	// CodeManifestMalformed marks a manifest that could not be parsed.
	CodeManifestMalformed Code = "manifest_malformed"
	// CodeDescriptorMalformed marks a descriptor file that could not be parsed.
	CodeDescriptorMalformed Code = "descriptor_malformed"
	// CodeEntryInvalid marks a single descriptor entry with an unusable shape.
	CodeEntryInvalid Code = "descriptor_entry_invalid"
	// CodeAggregationMissing marks an aggregation path that does not exist.
	CodeAggregationMissing Code = "aggregation_path_missing"
	// CodeDependencyMissing marks a declared dependency without an install root.
	CodeDependencyMissing Code = "dependency_not_installed"
)

type (
	// Severity represents diagnostic severity.
	Severity string

	// Code is a machine-readable diagnostic identifier.
	Code string

	// Diagnostic is a structured discovery diagnostic returned to callers
	// rather than written to stderr, so tooling decides how to render it.
	Diagnostic struct {
		Severity Severity
		Code     Code
		Message  string
		// Path is the file or directory the diagnostic refers to.
		Path string
		// Cause is the underlying error, if any.
		Cause error
	}

	// Reporter receives diagnostics as they are produced.
	Reporter func(Diagnostic)
)

// String renders the diagnostic on one line.
func (d Diagnostic) String() string {
	if d.Path == "" {
		return fmt.Sprintf("%s [%s] %s", d.Severity, d.Code, d.Message)
	}
	return fmt.Sprintf("%s [%s] %s (%s)", d.Severity, d.Code, d.Message, d.Path)
}

// Report forwards d to r when r is non-nil.
func (r Reporter) Report(d Diagnostic) {
	if r != nil {
		r(d)
	}
}

// Discard is a Reporter that drops everything.
func Discard(Diagnostic) {}
