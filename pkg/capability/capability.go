// SPDX-License-Identifier: MPL-2.0

package capability

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"sync"

	"github.com/capkit/capkit/pkg/selector"
)

// Reserved attribute names. They are answered from Capability fields and are
// never stored in the attribute bag.
const (
	AttrNamespace = "namespace"
	AttrModule    = "module"
	AttrVersion   = "version"
)

// InlineLocation is the location reported by capabilities that are not backed
// by a file, such as context overrides exposed through runtime/resolve.
const InlineLocation = "inline"

var (
	// ErrLocationUnresolved is returned when a capability entry point cannot
	// be located.
	ErrLocationUnresolved = errors.New("capability location unresolved")
	// ErrNoLoader is returned when a capability has no loader attached.
	ErrNoLoader = errors.New("capability has no loader")
)

type (
	// CallSite identifies the code requesting a capability. It is a filesystem
	// location (a source file or a directory) and serves two purposes: it keys
	// the per-context instance cache and it locates the caller's package root.
	CallSite string

	// Func is an initialized, reusable capability instance.
	Func func(ctx context.Context, args ...any) (any, error)

	// Factory initializes a capability for one call site. Returning a Func
	// makes it the cached instance; any other value is wrapped as a constant.
	Factory func(ctx context.Context, rt Runtime, info InitInfo) (any, error)

	// InitInfo describes the initialization being performed.
	InitInfo struct {
		CallSite   CallSite
		Capability *Capability
	}

	// Runtime is the view of a dispatch context handed to factories.
	Runtime interface {
		// ProxyAction dispatches a request on behalf of site.
		ProxyAction(ctx context.Context, site CallSite, request any, args ...any) (any, error)
		// Property returns a value from the shared property bag.
		Property(name string) (any, bool)
	}

	// Loader binds capabilities to their implementation.
	Loader interface {
		// Locate resolves the absolute entry-point location of c.
		Locate(c *Capability) (string, error)
		// Load returns the factory found at location.
		Load(c *Capability, location string) (Factory, error)
	}

	// Request asks for a capability by namespace, optionally constrained by
	// selectors.
	Request struct {
		Namespace string
		Selectors selector.Selectors
	}

	// Spec carries the declared fields of a capability.
	Spec struct {
		Namespace string
		Module    string
		Version   string
		// Dir is the directory owning the descriptor that declared the entry.
		Dir string
		// Entry is the raw entry-point reference, relative to Dir.
		Entry string
		// Attrs is the open selector attribute bag.
		Attrs map[string]any
	}

	// Capability is the unit of resolution. Its implementation is located and
	// loaded lazily, on first initialization.
	Capability struct {
		Namespace string
		Module    string
		Version   string
		// Key identifies the capability: two capabilities with equal keys are
		// the same capability reached through different paths.
		Key   string
		Dir   string
		Entry string

		attrs  map[string]any
		loader Loader

		mu       sync.Mutex
		location string
		factory  Factory
	}

	// LocationError reports an entry point that could not be located.
	LocationError struct {
		Namespace string
		Location  string
		Cause     error
	}
)

// New creates a capability from spec. Reserved attribute names found in
// spec.Attrs override the matching fields and are removed from the bag.
func New(spec Spec, loader Loader) *Capability {
	attrs := maps.Clone(spec.Attrs)
	if attrs == nil {
		attrs = map[string]any{}
	}
	c := &Capability{
		Namespace: spec.Namespace,
		Module:    spec.Module,
		Version:   spec.Version,
		Dir:       spec.Dir,
		Entry:     spec.Entry,
		Key:       KeyOf(spec.Dir, spec.Entry),
		attrs:     attrs,
		loader:    loader,
	}
	if v, ok := attrs[AttrVersion].(string); ok {
		c.Version = v
	}
	if v, ok := attrs[AttrModule].(string); ok {
		c.Module = v
	}
	delete(attrs, AttrVersion)
	delete(attrs, AttrModule)
	delete(attrs, AttrNamespace)
	return c
}

// NewInline creates a capability backed directly by a factory, with no file
// location. Inline capabilities have an empty key.
func NewInline(namespace string, factory Factory) *Capability {
	return &Capability{
		Namespace: namespace,
		attrs:     map[string]any{},
		location:  InlineLocation,
		factory:   factory,
	}
}

// KeyOf derives the identity key from the owning directory and the raw entry
// reference.
func KeyOf(dir, entry string) string {
	return dir + ":" + entry
}

// Attr implements selector.Attributed.
func (c *Capability) Attr(name string) (any, bool) {
	switch name {
	case AttrNamespace:
		return c.Namespace, true
	case AttrModule:
		return c.Module, c.Module != ""
	case AttrVersion:
		return c.Version, c.Version != ""
	}
	v, ok := c.attrs[name]
	return v, ok
}

// Attrs returns a copy of the attribute bag.
func (c *Capability) Attrs() map[string]any {
	return maps.Clone(c.attrs)
}

// Equivalent reports whether c and other carry the same declared metadata,
// ignoring identity and bookkeeping (key, directory, entry, location).
func (c *Capability) Equivalent(other *Capability) bool {
	if c == other {
		return true
	}
	if c == nil || other == nil {
		return false
	}
	return c.Namespace == other.Namespace &&
		c.Module == other.Module &&
		c.Version == other.Version &&
		reflect.DeepEqual(c.attrs, other.attrs)
}

// Location resolves and memoizes the absolute entry-point location. Failures
// are not memoized, so a later call retries.
func (c *Capability) Location() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locationLocked()
}

func (c *Capability) locationLocked() (string, error) {
	if c.location != "" {
		return c.location, nil
	}
	if c.loader == nil {
		return "", &LocationError{Namespace: c.Namespace, Location: c.Entry, Cause: ErrNoLoader}
	}
	loc, err := c.loader.Locate(c)
	if err != nil {
		return "", err
	}
	c.location = loc
	return loc, nil
}

// Factory locates and loads the implementation. The loaded factory is kept
// for the lifetime of the capability; failures are returned as-is and retried
// on the next call.
func (c *Capability) Factory() (Factory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.factory != nil {
		return c.factory, nil
	}
	loc, err := c.locationLocked()
	if err != nil {
		return nil, err
	}
	f, err := c.loader.Load(c, loc)
	if err != nil {
		return nil, err
	}
	c.factory = f
	return f, nil
}

// String identifies the capability for logs.
func (c *Capability) String() string {
	if c.Key == "" {
		return fmt.Sprintf("%s (%s)", c.Namespace, InlineLocation)
	}
	return fmt.Sprintf("%s (%s)", c.Namespace, c.Key)
}

// Error implements the error interface.
func (e *LocationError) Error() string {
	if e.Cause != nil && !errors.Is(e.Cause, ErrLocationUnresolved) {
		return fmt.Sprintf("cannot locate capability at %s: %v", e.Location, e.Cause)
	}
	return fmt.Sprintf("cannot locate capability at %s", e.Location)
}

// Unwrap returns ErrLocationUnresolved so callers can use errors.Is.
func (e *LocationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrLocationUnresolved}
	}
	return []error{ErrLocationUnresolved, e.Cause}
}
