// SPDX-License-Identifier: MPL-2.0

// Package registry discovers capabilities across the package-root graph and
// answers namespace queries against the merged result.
//
// For a package root the registry loads the root's own descriptors, merges in
// the descriptors of every declared dependency (one level deep) and finally
// merges the parent root's result below them as a fallback layer. Results are
// cached per root until ResetCache.
package registry

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/capkit/capkit/pkg/capability"
	"github.com/capkit/capkit/pkg/descriptor"
	"github.com/capkit/capkit/pkg/diag"
	"github.com/capkit/capkit/pkg/manifest"
	"github.com/capkit/capkit/pkg/provider"
)

type (
	// Option configures a Registry.
	Option func(*settings)

	settings struct {
		boundary       string
		manifestFile   string
		descriptorFile string
		modulesDir     string
		logger         *log.Logger
		binder         capability.Loader
	}

	// Registry is the cached, merged namespace to capability map builder.
	// It is safe for concurrent use.
	Registry struct {
		logger      *log.Logger
		roots       *manifest.Roots
		descriptors *descriptor.Loader
		index       *capability.DuplicateIndex

		// flight collapses concurrent expansions of the same root within a
		// generation.
		flight singleflight.Group

		mu         sync.Mutex
		generation uint64
		layers     map[string]*capability.Map
		resolved   map[string]*capability.Map

		diagMu sync.Mutex
		diags  []diag.Diagnostic
	}
)

// WithBoundary sets the top directory of upward root walks. The default is
// the working directory at construction time.
func WithBoundary(dir string) Option {
	return func(s *settings) { s.boundary = dir }
}

// WithManifestFile sets the manifest file name.
func WithManifestFile(name string) Option {
	return func(s *settings) { s.manifestFile = name }
}

// WithDescriptorFile sets the descriptor file name.
func WithDescriptorFile(name string) Option {
	return func(s *settings) { s.descriptorFile = name }
}

// WithModulesDir sets the dependency install directory name.
func WithModulesDir(name string) Option {
	return func(s *settings) { s.modulesDir = name }
}

// WithLogger sets the logger receiving duplicate warnings and discovery
// diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithBinder sets the loader attached to discovered capabilities. The
// default binds through provider.Default().
func WithBinder(binder capability.Loader) Option {
	return func(s *settings) { s.binder = binder }
}

// WithProviders binds discovered capabilities through set.
func WithProviders(set *provider.Set) Option {
	return func(s *settings) { s.binder = provider.NewLoader(set) }
}

// New creates a Registry.
func New(opts ...Option) (*Registry, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}
	if s.binder == nil {
		s.binder = provider.NewLoader(nil)
	}

	r := &Registry{
		logger:   s.logger,
		index:    capability.NewDuplicateIndex(),
		layers:   make(map[string]*capability.Map),
		resolved: make(map[string]*capability.Map),
	}
	roots, err := manifest.NewRoots(manifest.RootsOptions{
		Boundary:   s.boundary,
		FileName:   s.manifestFile,
		ModulesDir: s.modulesDir,
		Report:     r.report,
	})
	if err != nil {
		return nil, fmt.Errorf("create registry: %w", err)
	}
	r.roots = roots
	r.descriptors = descriptor.New(descriptor.Options{
		FileName: s.descriptorFile,
		Roots:    roots,
		Merger:   r.merger(),
		Binder:   s.binder,
		Report:   r.report,
	})
	return r, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	errDefault      error
)

// Default returns the process-wide Registry, bounded by the working
// directory of the first call.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultRegistry, errDefault = New()
	})
	return defaultRegistry, errDefault
}

// Boundary returns the top directory of upward root walks.
func (r *Registry) Boundary() string { return r.roots.Boundary() }

// ModuleRoot returns the package root enclosing path.
func (r *Registry) ModuleRoot(path string) string { return r.roots.ModuleRoot(path) }

// Roots returns the root walker.
func (r *Registry) Roots() *manifest.Roots { return r.roots }

func (r *Registry) merger() *capability.Merger {
	return &capability.Merger{
		Index: r.index,
		OnCollision: func(ns string, existing, discovered *capability.Capability) {
			r.logger.Warn("duplicate capability",
				"namespace", ns,
				"existing", existing.Key,
				"discovered", discovered.Key)
		},
	}
}

// ResolveForRoot returns the merged capability map for root: its own
// descriptors, then its dependencies minus exclude, then its parent root as a
// fallback layer. The map is cached and shared; callers must not modify it.
//
// Exclusions only apply the first time root is expanded.
func (r *Registry) ResolveForRoot(root string, exclude ...string) *capability.Map {
	root = filepath.Clean(root)
	r.mu.Lock()
	if m, ok := r.resolved[root]; ok {
		r.mu.Unlock()
		return m
	}
	gen := r.generation
	r.mu.Unlock()

	v, _, _ := r.flight.Do(fmt.Sprintf("%d\x00%s", gen, root), func() (any, error) {
		return r.expand(root, gen, exclude), nil
	})
	return v.(*capability.Map)
}

func (r *Registry) expand(root string, gen uint64, exclude []string) *capability.Map {
	m := r.layer(root, gen, exclude).Clone()
	if parent, ok := r.roots.ParentRoot(root); ok {
		m = r.merger().Merge(m, r.ResolveForRoot(parent, r.roots.NameOf(root)))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.resolved[root]; ok {
		return cached
	}
	if gen == r.generation {
		r.resolved[root] = m
	}
	return m
}

// layer returns root's descriptors merged with its direct dependencies.
func (r *Registry) layer(root string, gen uint64, exclude []string) *capability.Map {
	r.mu.Lock()
	if m, ok := r.layers[root]; ok {
		r.mu.Unlock()
		return m
	}
	r.mu.Unlock()

	merger := r.merger()
	m := r.descriptors.LoadLocal(root).Clone()
	for _, name := range r.roots.Manifest(root).DependencyNames() {
		if slices.Contains(exclude, name) {
			continue
		}
		depRoot, ok := r.roots.InstallRoot(root, name)
		if !ok {
			r.report(diag.Diagnostic{
				Severity: diag.SeverityWarning,
				Code:     diag.CodeDependencyMissing,
				Message:  fmt.Sprintf("dependency %q is not installed", name),
				Path:     root,
			})
			continue
		}
		m = merger.Merge(m, r.descriptors.LoadLocal(depRoot))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.layers[root]; ok {
		return cached
	}
	if gen == r.generation {
		r.layers[root] = m
	}
	return m
}

// ResetCache drops every cached map, root, manifest and descriptor together
// with the duplicate index and the collected diagnostics. Resolutions already
// in flight finish against the old state but are not cached.
func (r *Registry) ResetCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.layers = make(map[string]*capability.Map)
	r.resolved = make(map[string]*capability.Map)
	r.descriptors.Reset()
	r.roots.Reset()
	r.index.Reset()

	r.diagMu.Lock()
	r.diags = nil
	r.diagMu.Unlock()
	r.logger.Debug("registry cache reset")
}

// Duplicates returns the accidental collisions recorded so far, by
// namespace.
func (r *Registry) Duplicates() map[string][]*capability.Capability {
	return r.index.Snapshot()
}

// DuplicateNamespaces returns the namespaces with collisions in discovery
// order.
func (r *Registry) DuplicateNamespaces() []string {
	return r.index.Namespaces()
}

// Diagnostics returns the non-fatal discovery problems collected since the
// last reset.
func (r *Registry) Diagnostics() []diag.Diagnostic {
	r.diagMu.Lock()
	defer r.diagMu.Unlock()
	return slices.Clone(r.diags)
}

func (r *Registry) report(d diag.Diagnostic) {
	r.diagMu.Lock()
	r.diags = append(r.diags, d)
	r.diagMu.Unlock()

	switch d.Severity {
	case diag.SeverityError:
		r.logger.Error(d.Message, "code", d.Code, "path", d.Path)
	default:
		r.logger.Warn(d.Message, "code", d.Code, "path", d.Path)
	}
}
