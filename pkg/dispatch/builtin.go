// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/capkit/capkit/pkg/capability"
	"github.com/capkit/capkit/pkg/registry"
)

// Built-in namespaces. They are consulted only after overrides and discovery
// miss, so an application can replace any of them.
const (
	// Configure receives the factory options and returns the options to use.
	Configure = "runtime/configure"
	// Resolve answers registry queries merged with override-backed
	// capabilities: (operation, namespace, path) with operation one of
	// OpAll, OpUnique or OpFirst.
	Resolve = "runtime/resolve"
	// Reset clears the registry caches and broadcasts TopicReset.
	Reset = "runtime/reset"
	// Extension broadcasts (topic, callerPath, args...) to subscribers and to
	// a capability bound to the topic namespace.
	Extension = "runtime/extension"
	// Action forwards (command, args...) to the registry query surface.
	Action = "runtime/action"

	// TopicReset is broadcast after Reset.
	TopicReset = "runtime/extension/context/reset"
)

// Operations understood by Resolve.
const (
	OpAll    = "all"
	OpUnique = "unique"
	OpFirst  = "first"
)

// ErrArgument is returned when a built-in receives unusable arguments.
var ErrArgument = errors.New("invalid argument")

func (c *Context) builtin(namespace string) (*capability.Capability, bool) {
	var factory capability.Factory
	switch namespace {
	case Configure:
		factory = c.configureFactory
	case Resolve:
		factory = c.resolveFactory
	case Reset:
		factory = c.resetFactory
	case Extension:
		factory = c.extensionFactory
	case Action:
		factory = c.actionFactory
	default:
		return nil, false
	}
	return capability.NewInline(namespace, factory), true
}

// configureFactory yields the identity: the options passed in, or the
// context's own options when called without arguments.
func (c *Context) configureFactory(context.Context, capability.Runtime, capability.InitInfo) (any, error) {
	return capability.Func(func(_ context.Context, args ...any) (any, error) {
		if len(args) > 0 {
			return args[0], nil
		}
		return c.Options(), nil
	}), nil
}

func (c *Context) resolveFactory(ctx context.Context, _ capability.Runtime, info capability.InitInfo) (any, error) {
	out, err := c.ProxyAction(ctx, info.CallSite, Named(Configure).With("~override", true))
	if err != nil {
		return nil, err
	}
	var overrides map[string]any
	switch o := out.(type) {
	case Options:
		overrides = o.Overrides
	case *Options:
		if o != nil {
			overrides = o.Overrides
		}
	}
	virtual := c.virtualCapabilities(overrides)

	return capability.Func(func(_ context.Context, args ...any) (any, error) {
		op, err := stringArg(args, 0, "operation")
		if err != nil {
			return nil, err
		}
		namespace, err := stringArg(args, 1, "namespace")
		if err != nil {
			return nil, err
		}
		path, err := stringArg(args, 2, "path")
		if err != nil {
			return nil, err
		}
		root := c.registry.ModuleRoot(path)

		switch op {
		case OpFirst:
			if v, ok := virtual[namespace]; ok {
				return v, nil
			}
			if found, ok := c.registry.ResolveFirst(namespace, root); ok {
				return found, nil
			}
			return nil, nil
		case OpAll, OpUnique:
			var discovered []*capability.Capability
			if op == OpAll {
				discovered = c.registry.ResolveAll(namespace, root)
			} else {
				discovered = c.registry.ResolveAllUnique(namespace, root)
			}
			if v, ok := virtual[namespace]; ok {
				return append([]*capability.Capability{v}, discovered...), nil
			}
			if namespace == registry.Wildcard {
				for _, ns := range sortedKeys(virtual) {
					discovered = append(discovered, virtual[ns])
				}
			}
			return discovered, nil
		}
		return nil, fmt.Errorf("%w: unknown resolve operation %q", ErrArgument, op)
	}), nil
}

// virtualCapabilities exposes overrides as inline capabilities.
func (c *Context) virtualCapabilities(overrides map[string]any) map[string]*capability.Capability {
	out := make(map[string]*capability.Capability, len(overrides))
	for ns, value := range overrides {
		out[ns] = capability.NewInline(ns, func(ctx context.Context, _ capability.Runtime, info capability.InitInfo) (any, error) {
			return c.InitAct(ctx, value, info.CallSite)
		})
	}
	return out
}

func (c *Context) resetFactory(_ context.Context, _ capability.Runtime, info capability.InitInfo) (any, error) {
	return capability.Func(func(ctx context.Context, _ ...any) (any, error) {
		c.registry.ResetCache()
		return c.ProxyAction(ctx, info.CallSite, Extension, TopicReset, string(info.CallSite))
	}), nil
}

func (c *Context) extensionFactory(_ context.Context, _ capability.Runtime, info capability.InitInfo) (any, error) {
	return capability.Func(func(ctx context.Context, args ...any) (any, error) {
		topic, err := stringArg(args, 0, "topic")
		if err != nil {
			return nil, err
		}
		site := info.CallSite
		if len(args) > 1 {
			if s, ok := args[1].(string); ok && s != "" {
				site = capability.CallSite(s)
			}
		}
		var rest []any
		if len(args) > 2 {
			rest = args[2:]
		}

		var errs []error
		for _, fn := range c.factory.subscribers(topic) {
			if err := fn(ctx, rest...); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			return nil, err
		}

		found, ok := c.resolve(capability.Request{Namespace: topic}, site)
		if !ok {
			return nil, nil
		}
		fn, err := c.InitAct(ctx, found, site)
		if err != nil {
			return nil, &InitError{Namespace: topic, CallSite: site, Cause: err}
		}
		return fn(ctx, rest...)
	}), nil
}

func (c *Context) actionFactory(context.Context, capability.Runtime, capability.InitInfo) (any, error) {
	reg := c.registry
	return capability.Func(func(_ context.Context, args ...any) (any, error) {
		command, err := stringArg(args, 0, "command")
		if err != nil {
			return nil, err
		}
		switch command {
		case "duplicates":
			return reg.Duplicates(), nil
		case "diagnostics":
			return reg.Diagnostics(), nil
		case "reset":
			reg.ResetCache()
			return nil, nil
		case "moduleRoot":
			path, err := stringArg(args, 1, "path")
			if err != nil {
				return nil, err
			}
			return reg.ModuleRoot(path), nil
		}

		namespace, err := stringArg(args, 1, "namespace")
		if err != nil {
			return nil, err
		}
		path, err := stringArg(args, 2, "path")
		if err != nil {
			return nil, err
		}
		root := reg.ModuleRoot(path)
		switch command {
		case "resolveAll":
			return reg.ResolveAll(namespace, root), nil
		case "resolveAllUnique":
			return reg.ResolveAllUnique(namespace, root), nil
		case "resolveFirst":
			if found, ok := reg.ResolveFirst(namespace, root); ok {
				return found, nil
			}
			return nil, nil
		}
		return nil, fmt.Errorf("%w: unknown command %q", ErrArgument, command)
	}), nil
}

func stringArg(args []any, i int, name string) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%w: missing %s", ErrArgument, name)
	}
	switch v := args[i].(type) {
	case string:
		return v, nil
	case capability.CallSite:
		return string(v), nil
	}
	return "", fmt.Errorf("%w: %s must be a string, got %T", ErrArgument, name, args[i])
}

func sortedKeys(m map[string]*capability.Capability) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
