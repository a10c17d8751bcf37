// SPDX-License-Identifier: MPL-2.0

package capability

import (
	"slices"
	"sync"
)

type (
	// DuplicateIndex records accidental collisions: capabilities sharing a
	// namespace and metadata but not a key. It is kept apart from any
	// registry map and only serves diagnostics.
	DuplicateIndex struct {
		mu    sync.Mutex
		order []string
		byNS  map[string][]*Capability
		pairs map[[2]string]struct{}
	}

	// CollisionFunc is notified once per distinct colliding pair.
	CollisionFunc func(namespace string, existing, discovered *Capability)

	// Merger merges capability maps, feeding collisions into an index.
	Merger struct {
		Index *DuplicateIndex
		// OnCollision, when set, is called for every newly seen colliding pair.
		OnCollision CollisionFunc
	}
)

// NewDuplicateIndex returns an empty index.
func NewDuplicateIndex() *DuplicateIndex {
	return &DuplicateIndex{
		byNS:  make(map[string][]*Capability),
		pairs: make(map[[2]string]struct{}),
	}
}

// Record notes that discovered collides with existing under namespace. It
// returns true the first time this pair of keys is seen.
func (d *DuplicateIndex) Record(namespace string, existing, discovered *Capability) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	list, ok := d.byNS[namespace]
	if !ok {
		d.order = append(d.order, namespace)
		list = []*Capability{existing}
	}
	if !slices.ContainsFunc(list, func(c *Capability) bool { return c.Key == discovered.Key }) {
		list = append(list, discovered)
	}
	d.byNS[namespace] = list

	// A pair met in either order is the same collision.
	pair := [2]string{existing.Key, discovered.Key}
	if pair[1] < pair[0] {
		pair[0], pair[1] = pair[1], pair[0]
	}
	if _, seen := d.pairs[pair]; seen {
		return false
	}
	d.pairs[pair] = struct{}{}
	return true
}

// Get returns the colliding capabilities recorded for namespace.
func (d *DuplicateIndex) Get(namespace string) []*Capability {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.byNS[namespace])
}

// Namespaces returns namespaces with recorded collisions, in discovery order.
func (d *DuplicateIndex) Namespaces() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.order)
}

// Snapshot returns a copy of the whole index.
func (d *DuplicateIndex) Snapshot() map[string][]*Capability {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string][]*Capability, len(d.byNS))
	for ns, list := range d.byNS {
		out[ns] = slices.Clone(list)
	}
	return out
}

// Len returns the number of namespaces with collisions.
func (d *DuplicateIndex) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}

// Reset clears the index.
func (d *DuplicateIndex) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.order = nil
	d.byNS = make(map[string][]*Capability)
	d.pairs = make(map[[2]string]struct{})
}

// Merge merges from into into and returns into.
//
// A namespace missing from into is copied as is. Otherwise every candidate
// from from is compared with the existing entries: an entry with the same key
// means the candidate is already present and it is skipped; an equivalent
// entry under a different key is a duplicate, recorded in the index, and the
// candidate is still appended; anything else is a selector variant and is
// appended silently. Existing entries always stay ahead of appended ones.
func (m *Merger) Merge(into, from *Map) *Map {
	if into == nil {
		into = NewMap()
	}
	if from == nil {
		return into
	}
	for _, ns := range from.order {
		incoming := from.bindings[ns]
		current, ok := into.bindings[ns]
		if !ok {
			into.Set(ns, incoming)
			continue
		}
		for _, candidate := range incoming.caps {
			if m.containsKey(current, candidate) {
				continue
			}
			for _, existing := range current.caps {
				if existing.Key != candidate.Key && existing.Equivalent(candidate) {
					m.collide(ns, existing, candidate)
				}
			}
			current = current.Append(candidate)
		}
		into.Set(ns, current)
	}
	return into
}

func (m *Merger) containsKey(b Binding, candidate *Capability) bool {
	for _, existing := range b.caps {
		if existing == candidate {
			return true
		}
		if existing.Key != "" && existing.Key == candidate.Key {
			return true
		}
	}
	return false
}

func (m *Merger) collide(namespace string, existing, discovered *Capability) {
	first := true
	if m.Index != nil {
		first = m.Index.Record(namespace, existing, discovered)
	}
	if first && m.OnCollision != nil {
		m.OnCollision(namespace, existing, discovered)
	}
}
