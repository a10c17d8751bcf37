// SPDX-License-Identifier: MPL-2.0

package capability

import "slices"

type (
	// Binding is the value bound to a namespace: a single capability or an
	// ordered list of variants. Bindings are immutable; operations that add
	// capabilities return a new Binding.
	Binding struct {
		caps []*Capability
	}

	// Map is an insertion-ordered namespace to Binding map. Order is part of
	// the contract: it fixes the result order of wildcard queries and keeps
	// earlier discoveries ahead of later ones.
	Map struct {
		order    []string
		bindings map[string]Binding
	}
)

// Single binds one capability.
func Single(c *Capability) Binding {
	return Binding{caps: []*Capability{c}}
}

// Multiple binds several capabilities, in order.
func Multiple(cs ...*Capability) Binding {
	return Binding{caps: slices.Clone(cs)}
}

// IsMultiple reports whether the binding holds more than one capability.
func (b Binding) IsMultiple() bool { return len(b.caps) > 1 }

// Len returns the number of capabilities bound.
func (b Binding) Len() int { return len(b.caps) }

// First returns the earliest bound capability, or nil for an empty binding.
func (b Binding) First() *Capability {
	if len(b.caps) == 0 {
		return nil
	}
	return b.caps[0]
}

// All returns the bound capabilities in order.
func (b Binding) All() []*Capability {
	return slices.Clone(b.caps)
}

// Append returns a new binding with c added at the end.
func (b Binding) Append(c *Capability) Binding {
	caps := make([]*Capability, 0, len(b.caps)+1)
	caps = append(caps, b.caps...)
	caps = append(caps, c)
	return Binding{caps: caps}
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{bindings: make(map[string]Binding)}
}

// Len returns the number of namespaces.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// Get returns the binding for namespace.
func (m *Map) Get(namespace string) (Binding, bool) {
	if m == nil {
		return Binding{}, false
	}
	b, ok := m.bindings[namespace]
	return b, ok
}

// Set binds namespace, keeping its position if it already exists.
func (m *Map) Set(namespace string, b Binding) {
	if _, ok := m.bindings[namespace]; !ok {
		m.order = append(m.order, namespace)
	}
	m.bindings[namespace] = b
}

// Delete removes namespace.
func (m *Map) Delete(namespace string) {
	if _, ok := m.bindings[namespace]; !ok {
		return
	}
	delete(m.bindings, namespace)
	m.order = slices.DeleteFunc(m.order, func(ns string) bool { return ns == namespace })
}

// Namespaces returns namespaces in insertion order.
func (m *Map) Namespaces() []string {
	if m == nil {
		return nil
	}
	return slices.Clone(m.order)
}

// All returns every bound capability, namespace by namespace.
func (m *Map) All() []*Capability {
	if m == nil {
		return nil
	}
	var out []*Capability
	for _, ns := range m.order {
		out = append(out, m.bindings[ns].caps...)
	}
	return out
}

// Clone returns a shallow copy: capabilities are shared, bindings are not.
func (m *Map) Clone() *Map {
	out := NewMap()
	if m == nil {
		return out
	}
	out.order = slices.Clone(m.order)
	for ns, b := range m.bindings {
		out.bindings[ns] = b
	}
	return out
}
