// SPDX-License-Identifier: MPL-2.0

package capability

import (
	"context"
	"errors"
	"testing"
)

type stubLoader struct {
	locateCalls int
	loadCalls   int
	locateErr   error
	loadErr     error
	factory     Factory
}

func (s *stubLoader) Locate(c *Capability) (string, error) {
	s.locateCalls++
	if s.locateErr != nil {
		return "", s.locateErr
	}
	return c.Dir + "/" + c.Entry, nil
}

func (s *stubLoader) Load(_ *Capability, _ string) (Factory, error) {
	s.loadCalls++
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.factory, nil
}

func newCap(ns, dir, entry string, attrs map[string]any) *Capability {
	return New(Spec{Namespace: ns, Module: "mod", Version: "1.0.0", Dir: dir, Entry: entry, Attrs: attrs}, nil)
}

func TestNew_ReservedAttributes(t *testing.T) {
	t.Parallel()

	c := New(Spec{
		Namespace: "foo",
		Module:    "pkg",
		Version:   "1.0.0",
		Dir:       "/app",
		Entry:     "./foo",
		Attrs:     map[string]any{"version": "2.0.0", "env": "prod"},
	}, nil)

	if c.Version != "2.0.0" {
		t.Errorf("Version = %q, want explicit attribute 2.0.0", c.Version)
	}
	if _, ok := c.Attrs()["version"]; ok {
		t.Error("reserved attribute must not remain in the bag")
	}
	if c.Key != "/app:./foo" {
		t.Errorf("Key = %q, want /app:./foo", c.Key)
	}
	if v, ok := c.Attr("env"); !ok || v != "prod" {
		t.Errorf("Attr(env) = %v, %v", v, ok)
	}
	if v, ok := c.Attr("namespace"); !ok || v != "foo" {
		t.Errorf("Attr(namespace) = %v, %v", v, ok)
	}
}

func TestEquivalent(t *testing.T) {
	t.Parallel()

	a := newCap("foo", "/a", "./foo", map[string]any{"env": "prod"})
	b := newCap("foo", "/b", "./other", map[string]any{"env": "prod"})
	c := newCap("foo", "/c", "./foo", map[string]any{"env": "test"})

	if !a.Equivalent(b) {
		t.Error("expected same metadata under different keys to be equivalent")
	}
	if a.Equivalent(c) {
		t.Error("expected different env attribute to break equivalence")
	}
}

func TestLocation_MemoizesSuccessOnly(t *testing.T) {
	t.Parallel()

	loader := &stubLoader{locateErr: &LocationError{Location: "/x/foo"}}
	c := New(Spec{Namespace: "foo", Dir: "/x", Entry: "foo"}, loader)

	if _, err := c.Location(); !errors.Is(err, ErrLocationUnresolved) {
		t.Fatalf("Location() error = %v, want ErrLocationUnresolved", err)
	}
	loader.locateErr = nil
	loc, err := c.Location()
	if err != nil {
		t.Fatalf("Location() after fix: %v", err)
	}
	if loc != "/x/foo" {
		t.Errorf("Location() = %q", loc)
	}
	if _, err := c.Location(); err != nil {
		t.Fatal(err)
	}
	if loader.locateCalls != 2 {
		t.Errorf("Locate called %d times, want 2 (failure retried, success memoized)", loader.locateCalls)
	}
}

func TestFactory_LoadedOnce(t *testing.T) {
	t.Parallel()

	loader := &stubLoader{factory: func(context.Context, Runtime, InitInfo) (any, error) { return "v", nil }}
	c := New(Spec{Namespace: "foo", Dir: "/x", Entry: "foo"}, loader)

	for range 3 {
		if _, err := c.Factory(); err != nil {
			t.Fatal(err)
		}
	}
	if loader.loadCalls != 1 {
		t.Errorf("Load called %d times, want 1", loader.loadCalls)
	}
}

func TestFactory_NoLoader(t *testing.T) {
	t.Parallel()

	c := New(Spec{Namespace: "foo", Dir: "/x", Entry: "foo"}, nil)
	if _, err := c.Factory(); !errors.Is(err, ErrNoLoader) || !errors.Is(err, ErrLocationUnresolved) {
		t.Errorf("Factory() error = %v", err)
	}
}

func TestNewInline(t *testing.T) {
	t.Parallel()

	c := NewInline("foo", func(context.Context, Runtime, InitInfo) (any, error) { return 1, nil })
	loc, err := c.Location()
	if err != nil || loc != InlineLocation {
		t.Errorf("Location() = %q, %v", loc, err)
	}
	if c.Key != "" {
		t.Errorf("Key = %q, want empty", c.Key)
	}
}
