// SPDX-License-Identifier: MPL-2.0

// Package provider binds capability entry points to compiled-in factories.
//
// Implementations register themselves from an init function, the way
// database/sql drivers do:
//
//	func init() {
//		provider.Provide("greeter/greet", greet.New)
//	}
//
// An id is either the canonical "<module>/<entry>" form (entry cleaned, file
// extension stripped) or the absolute entry-point location without extension.
// Entry points naming a .json, .cue or .toml file need no registration: the
// file is decoded and exposed as a constant capability.
package provider

import (
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/capkit/capkit/pkg/capability"
)

// Set is a table of factories keyed by id.
type Set struct {
	mu        sync.RWMutex
	factories map[string]capability.Factory
}

var defaultSet = NewSet()

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{factories: make(map[string]capability.Factory)}
}

// Default returns the process-wide Set used by Provide.
func Default() *Set { return defaultSet }

// Provide registers factory under id in the process-wide Set.
func Provide(id string, factory capability.Factory) {
	defaultSet.Provide(id, factory)
}

// Provide registers factory under id. It panics if factory is nil or id is
// already taken.
func (s *Set) Provide(id string, factory capability.Factory) {
	if factory == nil {
		panic("provider: Provide factory is nil")
	}
	id = normalizeID(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.factories[id]; dup {
		panic("provider: Provide called twice for " + id)
	}
	s.factories[id] = factory
}

// Lookup returns the factory registered under id.
func (s *Set) Lookup(id string) (capability.Factory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.factories[normalizeID(id)]
	return f, ok
}

// IDs returns the registered ids, sorted.
func (s *Set) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.factories))
	for id := range s.factories {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ID returns the canonical id of an entry declared by module.
func ID(module, entry string) string {
	e := stripExt(path.Clean(filepath.ToSlash(entry)))
	e = strings.TrimPrefix(e, "/")
	if module == "" {
		return e
	}
	return module + "/" + e
}

func normalizeID(id string) string {
	return stripExt(filepath.ToSlash(id))
}

func stripExt(p string) string {
	return strings.TrimSuffix(p, path.Ext(p))
}

// candidates lists the ids c may be registered under, most specific first.
func candidates(c *capability.Capability, location string) []string {
	ids := []string{normalizeID(location)}
	if c.Module != "" {
		ids = append(ids, ID(c.Module, c.Entry))
	}
	ids = append(ids, ID("", c.Entry))
	return slices.Compact(ids)
}

func (s *Set) find(c *capability.Capability, location string) (capability.Factory, string, bool) {
	for _, id := range candidates(c, location) {
		if f, ok := s.Lookup(id); ok {
			return f, id, true
		}
	}
	return nil, "", false
}

// String lists the ids, for debugging.
func (s *Set) String() string {
	return fmt.Sprintf("provider.Set%v", s.IDs())
}
