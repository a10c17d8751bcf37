// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ActionableError
		expected string
	}{
		{
			name:     "operation only",
			err:      &ActionableError{Operation: "load configuration"},
			expected: "failed to load configuration",
		},
		{
			name:     "operation with resource",
			err:      &ActionableError{Operation: "resolve capability", Resource: "store"},
			expected: "failed to resolve capability: store",
		},
		{
			name: "full context",
			err: &ActionableError{
				Operation: "load configuration",
				Resource:  "./config.cue",
				Cause:     errors.New("file not found"),
			},
			expected: "failed to load configuration: ./config.cue: file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestActionableError_ErrorsIs(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := NewErrorContext().WithOperation("call capability").Wrap(sentinel).BuildError()
	if !errors.Is(err, sentinel) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestActionableError_Format(t *testing.T) {
	inner := errors.New("permission denied")
	err := &ActionableError{
		Operation:   "read descriptor",
		Resource:    "/app/capability.json",
		Suggestions: []string{"Check file permissions", "Run 'capkit diagnostics'"},
		Cause:       WrapWithContext(inner, "open file", "/app/capability.json"),
	}

	short := err.Format(false)
	if !strings.Contains(short, "• Check file permissions") || !strings.Contains(short, "• Run 'capkit diagnostics'") {
		t.Errorf("Format(false) missing suggestions:\n%s", short)
	}
	if strings.Contains(short, "Error chain:") {
		t.Errorf("Format(false) should not include the error chain:\n%s", short)
	}

	verbose := err.Format(true)
	if !strings.Contains(verbose, "Error chain:") || !strings.Contains(verbose, "2. permission denied") {
		t.Errorf("Format(true) missing chain:\n%s", verbose)
	}
}

func TestErrorContext_Build(t *testing.T) {
	if NewErrorContext().WithResource("x").Build() != nil {
		t.Error("Build() without operation should return nil")
	}
	if NewErrorContext().BuildError() != nil {
		t.Error("BuildError() without operation should return nil")
	}

	ae := NewErrorContext().
		WithOperation("resolve capability").
		WithResource("store").
		WithSuggestion("one").
		WithSuggestions("two", "three").
		WithIssue(CapabilityNotFoundId).
		Build()
	if len(ae.Suggestions) != 3 || !ae.HasSuggestions() {
		t.Errorf("Suggestions = %v", ae.Suggestions)
	}
	if g := ae.Guide(); g == nil || g.Id() != CapabilityNotFoundId {
		t.Errorf("Guide() = %v", g)
	}
	if (&ActionableError{Operation: "x"}).Guide() != nil {
		t.Error("Guide() without issue should be nil")
	}
}

func TestWrapWithContext(t *testing.T) {
	if WrapWithContext(nil, "op", "res") != nil {
		t.Error("WrapWithContext(nil) should return nil")
	}
	err := WrapWithContext(errors.New("boom"), "load registry", "/srv")
	if err.Error() != "failed to load registry: /srv: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
}
