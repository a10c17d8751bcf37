// SPDX-License-Identifier: MPL-2.0

// Package dispatch is the runtime side of capkit. A Factory carries the shared
// configuration (overrides, properties, default selectors); each Context
// created from it caches one initialized instance per call site and
// namespace.
//
// A request is resolved in this order:
//
//  1. an override bound to the namespace
//  2. the capability discovered for the caller's module root
//  3. a built-in capability (runtime/configure, runtime/resolve,
//     runtime/reset, runtime/extension, runtime/action)
//
// Typical use:
//
//	f, err := dispatch.NewFactory(ctx, dispatch.Options{})
//	if err != nil {
//		return err
//	}
//	c := f.New()
//	v, err := c.Action(ctx, dispatch.Named("store").With("env", "prod"), "key")
package dispatch
