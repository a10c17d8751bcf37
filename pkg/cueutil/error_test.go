// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"strings"
	"testing"
)

const watchSchema = `
#Config: {
	log: level: *"info" | "debug" | "warn" | "error"
	watch: debounce: string
}
`

type watchConfig struct {
	Log struct {
		Level string `json:"level"`
	} `json:"log"`
	Watch struct {
		Debounce string `json:"debounce"`
	} `json:"watch"`
}

func TestFormatError(t *testing.T) {
	t.Parallel()

	t.Run("nil stays nil", func(t *testing.T) {
		t.Parallel()

		if err := FormatError(nil, "config.cue"); err != nil {
			t.Errorf("FormatError(nil) = %v", err)
		}
	})

	t.Run("plain error keeps its cause", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("read failed")
		err := FormatError(cause, "config.cue")
		if !errors.Is(err, cause) {
			t.Errorf("error %v does not wrap its cause", err)
		}
		if msg := err.Error(); !strings.HasPrefix(msg, "config.cue: ") || !strings.Contains(msg, "read failed") {
			t.Errorf("message = %q", msg)
		}
	})

	t.Run("config field conflict names the field", func(t *testing.T) {
		t.Parallel()

		_, err := ParseAndDecode[watchConfig]([]byte(watchSchema), []byte(`watch: debounce: 300`), "#Config",
			WithFilename("config.cue"))
		var se *SchemaError
		if !errors.As(err, &se) {
			t.Fatalf("error = %v (%T), want *SchemaError", err, err)
		}
		if se.File != "config.cue" || len(se.Problems) == 0 {
			t.Fatalf("SchemaError = %+v", se)
		}
		if !strings.HasSuffix(se.Problems[0].Path, "watch.debounce") {
			t.Errorf("problem path = %q, want watch.debounce", se.Problems[0].Path)
		}
		if !strings.Contains(err.Error(), "watch.debounce") {
			t.Errorf("message = %q", err.Error())
		}
	})

	t.Run("several problems are listed", func(t *testing.T) {
		t.Parallel()

		err := &SchemaError{File: "config.cue", Problems: []Problem{
			{Path: "log.level", Message: `"loud" is not allowed`},
			{Path: "watch.patterns[0]", Message: "invalid glob"},
		}}
		want := "config.cue: validation failed:\n  log.level: \"loud\" is not allowed\n  watch.patterns[0]: invalid glob"
		if got := err.Error(); got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
	})
}

func TestProblem_String(t *testing.T) {
	t.Parallel()

	if got := (Problem{Message: "expected '}'"}).String(); got != "expected '}'" {
		t.Errorf("pathless problem = %q", got)
	}
	if got := (Problem{Path: "selectors.env", Message: "incomplete value"}).String(); got != "selectors.env: incomplete value" {
		t.Errorf("problem = %q", got)
	}
}

func TestFormatPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     []string
		expected string
	}{
		{
			name:     "empty path",
			path:     []string{},
			expected: "",
		},
		{
			name:     "single element",
			path:     []string{"name"},
			expected: "name",
		},
		{
			name:     "nested path",
			path:     []string{"watch", "debounce"},
			expected: "watch.debounce",
		},
		{
			name:     "array index",
			path:     []string{"watch", "patterns", "0"},
			expected: "watch.patterns[0]",
		},
		{
			name:     "multiple array indices",
			path:     []string{"selectors", "0", "values", "2", "name"},
			expected: "selectors[0].values[2].name",
		},
		{
			name:     "leading index",
			path:     []string{"0", "entryPoint"},
			expected: "0.entryPoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := formatPath(tt.path)
			if result != tt.expected {
				t.Errorf("formatPath(%v) = %q, want %q", tt.path, result, tt.expected)
			}
		})
	}
}

func TestCheckFileSize(t *testing.T) {
	t.Parallel()

	t.Run("data within limit returns nil", func(t *testing.T) {
		t.Parallel()

		data := []byte("hello world")
		err := CheckFileSize(data, 100, "test.cue")
		if err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("data at exact limit returns nil", func(t *testing.T) {
		t.Parallel()

		data := make([]byte, 100)
		err := CheckFileSize(data, 100, "test.cue")
		if err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("data exceeding limit returns error", func(t *testing.T) {
		t.Parallel()

		data := make([]byte, 101)
		err := CheckFileSize(data, 100, "test.cue")
		if err == nil {
			t.Error("expected error")
		}
		if !strings.Contains(err.Error(), "test.cue") {
			t.Errorf("error should contain filename, got: %v", err)
		}
		if !strings.Contains(err.Error(), "101") {
			t.Errorf("error should contain actual size, got: %v", err)
		}
		if !strings.Contains(err.Error(), "100") {
			t.Errorf("error should contain max size, got: %v", err)
		}
	})

	t.Run("empty data returns nil", func(t *testing.T) {
		t.Parallel()

		err := CheckFileSize([]byte{}, 100, "test.cue")
		if err != nil {
			t.Errorf("expected nil for empty data, got %v", err)
		}
	})
}
