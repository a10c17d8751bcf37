// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"github.com/capkit/capkit/pkg/capability"
	"github.com/capkit/capkit/pkg/selector"
)

// Wildcard selects every namespace in ResolveAll and ResolveAllUnique.
const Wildcard = "*"

// ResolveAll returns every capability bound to namespace at root, in merge
// order. Wildcard returns the capabilities of all namespaces.
func (r *Registry) ResolveAll(namespace, root string, exclude ...string) []*capability.Capability {
	m := r.ResolveForRoot(root, exclude...)
	if b, ok := m.Get(namespace); ok {
		return b.All()
	}
	if namespace == Wildcard {
		return m.All()
	}
	return nil
}

// ResolveAllUnique is ResolveAll without repeated capabilities.
func (r *Registry) ResolveAllUnique(namespace, root string, exclude ...string) []*capability.Capability {
	all := r.ResolveAll(namespace, root, exclude...)
	seen := make(map[*capability.Capability]struct{}, len(all))
	out := all[:0]
	for _, c := range all {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// ResolveFirst returns the earliest capability bound to namespace at root,
// walking up through parent roots until one binds it.
func (r *Registry) ResolveFirst(namespace, root string, exclude ...string) (*capability.Capability, bool) {
	for {
		if b, ok := r.ResolveForRoot(root, exclude...).Get(namespace); ok && b.Len() > 0 {
			return b.First(), true
		}
		parent, ok := r.roots.ParentRoot(root)
		if !ok {
			return nil, false
		}
		exclude = []string{r.roots.NameOf(root)}
		root = parent
	}
}

// ResolveWithSelectors returns the best capability for req at root,
// degrading fallback selectors when nothing matches.
func (r *Registry) ResolveWithSelectors(req capability.Request, root string) (*capability.Capability, bool) {
	return selector.FindBest(r.ResolveAllUnique(req.Namespace, root), req.Selectors)
}

// Resolve finds the capability for req as seen from site: selector matching
// when req carries selectors, the earliest binding otherwise.
func (r *Registry) Resolve(req capability.Request, site capability.CallSite) (*capability.Capability, bool) {
	root := r.roots.ModuleRoot(string(site))
	if len(req.Selectors) > 0 {
		return r.ResolveWithSelectors(req, root)
	}
	return r.ResolveFirst(req.Namespace, root)
}
