// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"strings"
	"testing"
)

const testSchema = `
#Settings: {
	name:  string
	level: *"info" | "debug" | "warn"
}
`

type testSettings struct {
	Name  string `json:"name"`
	Level string `json:"level"`
}

func TestParseAndDecode(t *testing.T) {
	t.Parallel()

	res, err := ParseAndDecode[testSettings]([]byte(testSchema), []byte(`name: "capkit"`), "#Settings",
		WithFilename("settings.cue"))
	if err != nil {
		t.Fatalf("ParseAndDecode: %v", err)
	}
	if res.Value.Name != "capkit" || res.Value.Level != "info" {
		t.Errorf("decoded %+v", res.Value)
	}

	_, err = ParseAndDecode[testSettings]([]byte(testSchema), []byte(`name: "x", level: "loud"`), "#Settings",
		WithFilename("settings.cue"))
	if err == nil || !strings.Contains(err.Error(), "settings.cue") {
		t.Errorf("expected validation error naming the file, got %v", err)
	}
}

func TestDecodeValue(t *testing.T) {
	t.Parallel()

	v, err := DecodeValue([]byte(`
greeting: "hello"
count:    3
tags: ["a", "b"]
`), WithFilename("data.cue"))
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("DecodeValue returned %T, want map", v)
	}
	if m["greeting"] != "hello" {
		t.Errorf("greeting = %v", m["greeting"])
	}
	if tags, ok := m["tags"].([]any); !ok || len(tags) != 2 {
		t.Errorf("tags = %v", m["tags"])
	}
}

func TestDecodeValue_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		opts []Option
	}{
		{name: "syntax error", data: `greeting: `},
		{name: "incomplete value", data: `greeting: string`},
		{name: "too large", data: `greeting: "hello"`, opts: []Option{WithMaxFileSize(4)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := DecodeValue([]byte(tt.data), tt.opts...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
