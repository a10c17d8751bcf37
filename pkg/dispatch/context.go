// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"errors"
	"io"
	"maps"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/capkit/capkit/pkg/capability"
	"github.com/capkit/capkit/pkg/registry"
	"github.com/capkit/capkit/pkg/selector"
)

type (
	// ResolveFunc finds the capability for a request made from site.
	ResolveFunc func(req capability.Request, site capability.CallSite) (*capability.Capability, bool)

	// ExtensionFunc receives extension broadcasts such as TopicReset.
	ExtensionFunc func(ctx context.Context, args ...any) error

	// Options configures a Factory and the contexts it creates.
	Options struct {
		// Overrides bind namespaces to explicit values. A Factory or Func is
		// initialized like a discovered capability, an error fails every call,
		// anything else is returned as a constant. Overrides always win over
		// discovery.
		Overrides map[string]any
		// Properties is the shared property bag exposed by Context.Property.
		Properties map[string]any
		// Selectors are default selectors applied to every request.
		Selectors selector.Selectors
		// Resolve replaces the registry lookup.
		Resolve ResolveFunc
		// Registry backs discovery and the built-in capabilities. Nil means
		// registry.Default().
		Registry *registry.Registry
		// Logger receives debug output. Nil discards it.
		Logger *log.Logger
		// Site is the call site used while bootstrapping the factory. Empty
		// means the registry boundary.
		Site capability.CallSite
	}

	// Factory creates contexts sharing one configuration.
	Factory struct {
		opts Options

		extMu      sync.RWMutex
		extensions map[string][]ExtensionFunc
	}

	// Context is a dispatch session. It owns the instance cache: one
	// initialized Func per call site and namespace, kept for the lifetime of
	// the Context.
	Context struct {
		factory    *Factory
		overrides  map[string]any
		properties map[string]any
		selectors  selector.Selectors
		resolve    ResolveFunc
		registry   *registry.Registry
		logger     *log.Logger

		mu    sync.Mutex
		cache map[capability.CallSite]map[string]capability.Func
	}

	// Caller is a Context bound to one call site.
	Caller struct {
		ctx  *Context
		site capability.CallSite
	}
)

var _ capability.Runtime = (*Context)(nil)

// NewFactory creates a Factory. The options are passed through the
// runtime/configure capability, requested with the fallback selector
// ~override=true, and the returned Options replace them.
func NewFactory(ctx context.Context, opts Options) (*Factory, error) {
	if opts.Registry == nil {
		reg, err := registry.Default()
		if err != nil {
			return nil, err
		}
		opts.Registry = reg
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Site == "" {
		opts.Site = capability.CallSite(opts.Registry.Boundary())
	}

	f := &Factory{opts: opts, extensions: make(map[string][]ExtensionFunc)}
	bootstrap := f.newContext(opts)
	out, err := bootstrap.ProxyAction(ctx, opts.Site, Named(Configure).With("~override", true), opts)
	if err != nil {
		return nil, err
	}
	switch configured := out.(type) {
	case Options:
		f.opts = f.fill(configured)
	case *Options:
		if configured != nil {
			f.opts = f.fill(*configured)
		}
	}
	return f, nil
}

// fill keeps the infrastructure fields configure left unset.
func (f *Factory) fill(o Options) Options {
	if o.Registry == nil {
		o.Registry = f.opts.Registry
	}
	if o.Logger == nil {
		o.Logger = f.opts.Logger
	}
	if o.Site == "" {
		o.Site = f.opts.Site
	}
	return o
}

// Options returns the configured options.
func (f *Factory) Options() Options { return f.opts }

// New creates a Context. Each field set in extra replaces the configured one
// as a whole: per-call Overrides or Properties do not add to the configured
// maps, they take their place.
func (f *Factory) New(extra ...Options) *Context {
	o := f.opts
	for _, x := range extra {
		if x.Overrides != nil {
			o.Overrides = x.Overrides
		}
		if x.Properties != nil {
			o.Properties = x.Properties
		}
		if x.Selectors != nil {
			o.Selectors = x.Selectors
		}
		if x.Resolve != nil {
			o.Resolve = x.Resolve
		}
	}
	return f.newContext(o)
}

// OnExtension subscribes fn to an extension topic broadcast through
// runtime/extension.
func (f *Factory) OnExtension(topic string, fn ExtensionFunc) {
	f.extMu.Lock()
	defer f.extMu.Unlock()
	f.extensions[topic] = append(f.extensions[topic], fn)
}

func (f *Factory) subscribers(topic string) []ExtensionFunc {
	f.extMu.RLock()
	defer f.extMu.RUnlock()
	return append([]ExtensionFunc(nil), f.extensions[topic]...)
}

func (f *Factory) newContext(o Options) *Context {
	c := &Context{
		factory:    f,
		overrides:  maps.Clone(o.Overrides),
		properties: maps.Clone(o.Properties),
		selectors:  o.Selectors,
		resolve:    o.Resolve,
		registry:   o.Registry,
		logger:     o.Logger,
		cache:      make(map[capability.CallSite]map[string]capability.Func),
	}
	if c.resolve == nil {
		c.resolve = c.registry.Resolve
	}
	return c
}

// Registry returns the registry backing the context.
func (c *Context) Registry() *registry.Registry { return c.registry }

// Property returns a value from the shared property bag.
func (c *Context) Property(name string) (any, bool) {
	v, ok := c.properties[name]
	return v, ok
}

// Options returns a snapshot of the context configuration.
func (c *Context) Options() Options {
	return Options{
		Overrides:  maps.Clone(c.overrides),
		Properties: maps.Clone(c.properties),
		Selectors:  c.selectors,
		Resolve:    c.resolve,
		Registry:   c.registry,
		Logger:     c.logger,
	}
}

// Action dispatches request on behalf of the calling source file. request is
// a namespace string or a Request.
func (c *Context) Action(ctx context.Context, request any, args ...any) (any, error) {
	return c.ProxyAction(ctx, callerSite(2), request, args...)
}

// At binds the context to site.
func (c *Context) At(site capability.CallSite) Caller {
	return Caller{ctx: c, site: site}
}

// ProxyAction dispatches request on behalf of site. The first call for a
// namespace from a site finds and initializes the capability; later calls
// reuse the cached instance.
func (c *Context) ProxyAction(ctx context.Context, site capability.CallSite, request any, args ...any) (any, error) {
	req, err := normalize(request, c.selectors)
	if err != nil {
		return nil, err
	}

	fn, ok := c.cached(site, req.Namespace)
	if !ok {
		fn, err = c.instantiate(ctx, site, req)
		if err != nil {
			return nil, err
		}
	}
	return fn(ctx, args...)
}

func (c *Context) cached(site capability.CallSite, namespace string) (capability.Func, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn, ok := c.cache[site][namespace]
	return fn, ok
}

// instantiate runs outside the cache lock: two first calls racing on the
// same slot both initialize and the last store wins.
func (c *Context) instantiate(ctx context.Context, site capability.CallSite, req capability.Request) (capability.Func, error) {
	var value any
	if v, ok := c.overrides[req.Namespace]; ok {
		value = v
	} else if found, ok := c.resolve(req, site); ok {
		value = found
	} else if builtin, ok := c.builtin(req.Namespace); ok {
		value = builtin
	} else {
		return nil, &NotFoundError{Namespace: req.Namespace, CallSite: site}
	}

	fn, err := c.InitAct(ctx, value, site)
	if err != nil {
		initErr := &InitError{Namespace: req.Namespace, CallSite: site, Cause: err}
		c.logger.Debug("capability initialization failed", "namespace", req.Namespace, "site", site, "err", err)
		// A missing entry point fails this call only; the next call locates
		// it again.
		if errors.Is(err, capability.ErrLocationUnresolved) {
			return nil, initErr
		}
		fn = failing(initErr)
	} else {
		c.logger.Debug("capability initialized", "namespace", req.Namespace, "site", site)
	}

	c.mu.Lock()
	bySite, ok := c.cache[site]
	if !ok {
		bySite = make(map[string]capability.Func)
		c.cache[site] = bySite
	}
	bySite[req.Namespace] = fn
	c.mu.Unlock()
	return fn, nil
}

// Forget clears the cached instance of namespace for site, so the next call
// initializes it again. It reports whether a slot was cleared.
func (c *Context) Forget(site capability.CallSite, namespace string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	bySite, ok := c.cache[site]
	if !ok {
		return false
	}
	if _, ok := bySite[namespace]; !ok {
		return false
	}
	delete(bySite, namespace)
	return true
}

// InitAct turns value into a callable instance for site.
//
// A Factory, or a capability whose factory is loaded lazily, is invoked once:
// a Func result becomes the instance, an error result fails every call and
// any other result is returned as a constant. A Func is used as is. An error
// value fails every call with that same error. Anything else is a constant.
func (c *Context) InitAct(ctx context.Context, value any, site capability.CallSite) (capability.Func, error) {
	switch v := value.(type) {
	case *capability.Capability:
		factory, err := v.Factory()
		if err != nil {
			return nil, err
		}
		return c.initFactory(ctx, factory, capability.InitInfo{CallSite: site, Capability: v})
	case capability.Factory:
		return c.initFactory(ctx, v, capability.InitInfo{CallSite: site})
	case func(context.Context, capability.Runtime, capability.InitInfo) (any, error):
		return c.initFactory(ctx, v, capability.InitInfo{CallSite: site})
	}
	return asFunc(value), nil
}

func (c *Context) initFactory(ctx context.Context, factory capability.Factory, info capability.InitInfo) (capability.Func, error) {
	out, err := factory(ctx, c, info)
	if err != nil {
		return nil, err
	}
	return asFunc(out), nil
}

func asFunc(v any) capability.Func {
	switch fn := v.(type) {
	case capability.Func:
		return fn
	case func(context.Context, ...any) (any, error):
		return fn
	case error:
		return failing(fn)
	}
	return constant(v)
}

func constant(v any) capability.Func {
	return func(context.Context, ...any) (any, error) { return v, nil }
}

func failing(err error) capability.Func {
	return func(context.Context, ...any) (any, error) { return nil, err }
}

// Site returns the bound call site.
func (c Caller) Site() capability.CallSite { return c.site }

// Action dispatches request from the bound call site.
func (c Caller) Action(ctx context.Context, request any, args ...any) (any, error) {
	return c.ctx.ProxyAction(ctx, c.site, request, args...)
}
