// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/capkit/capkit/internal/testutil"
	"github.com/capkit/capkit/pkg/capability"
	"github.com/capkit/capkit/pkg/provider"
	"github.com/capkit/capkit/pkg/registry"
	"github.com/capkit/capkit/pkg/selector"
)

type fixture struct {
	tr  *testutil.Tree
	app string
	set *provider.Set
	reg *registry.Registry
}

func newFixture(t *testing.T, deps ...string) *fixture {
	t.Helper()
	tr := testutil.NewTree(t)
	app := tr.Package("app", testutil.PackageSpec{Name: "app", Version: "1.0.0", Deps: deps})
	set := provider.NewSet()
	reg, err := registry.New(registry.WithBoundary(tr.Root), registry.WithProviders(set))
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	return &fixture{tr: tr, app: app, set: set, reg: reg}
}

func (f *fixture) site(name string) capability.CallSite {
	return capability.CallSite(f.tr.Path("app", name))
}

func (f *fixture) factory(t *testing.T, opts Options) *Factory {
	t.Helper()
	opts.Registry = f.reg
	fac, err := NewFactory(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	return fac
}

func call(t *testing.T, c *Context, site capability.CallSite, request any, args ...any) any {
	t.Helper()
	v, err := c.ProxyAction(context.Background(), site, request, args...)
	if err != nil {
		t.Fatalf("ProxyAction(%v): %v", request, err)
	}
	return v
}

// counterFactory returns a factory whose instances report which
// initialization created them.
func counterFactory(inits *atomic.Int32) capability.Factory {
	return func(context.Context, capability.Runtime, capability.InitInfo) (any, error) {
		id := inits.Add(1)
		return capability.Func(func(context.Context, ...any) (any, error) {
			return id, nil
		}), nil
	}
}

func TestProxyAction_CallSiteIsolation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tr.Descriptor("app", `{"counter": "./counter"}`)
	var inits atomic.Int32
	f.set.Provide("app/counter", counterFactory(&inits))
	c := f.factory(t, Options{}).New()

	a, b := f.site("a.go"), f.site("b.go")
	for range 3 {
		if got := call(t, c, a, "counter"); got != int32(1) {
			t.Fatalf("site a instance = %v, want 1", got)
		}
	}
	for range 3 {
		if got := call(t, c, b, "counter"); got != int32(2) {
			t.Fatalf("site b instance = %v, want 2", got)
		}
	}
	if got := inits.Load(); got != 2 {
		t.Errorf("initializations = %d, want 2", got)
	}

	// A new context owns a new instance cache.
	if got := call(t, f.factory(t, Options{}).New(), a, "counter"); got != int32(3) {
		t.Errorf("fresh context instance = %v, want 3", got)
	}
}

func TestProxyAction_OverrideWins(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "qaz")
	f.tr.Install("app", testutil.PackageSpec{Name: "qaz", Version: "1.0.0"})
	f.tr.Descriptor("app/cap_modules/qaz", `{"QAZNS/qaz": "./qaz"}`)
	f.set.Provide("qaz/qaz", provider.Constant("qazv"))

	fac := f.factory(t, Options{})
	if got := call(t, fac.New(), f.site("main.go"), "QAZNS/qaz"); got != "qazv" {
		t.Errorf("discovered value = %v, want qazv", got)
	}

	mocked := fac.New(Options{Overrides: map[string]any{"QAZNS/qaz": "mock"}})
	if got := call(t, mocked, f.site("main.go"), "QAZNS/qaz"); got != "mock" {
		t.Errorf("override value = %v, want mock", got)
	}
	// Selectors never bypass an override.
	req := Named("QAZNS/qaz").With("env", "prod")
	if got := call(t, mocked, f.site("other.go"), req); got != "mock" {
		t.Errorf("override with selectors = %v, want mock", got)
	}
}

func TestProxyAction_NotFoundIsNotCached(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := f.factory(t, Options{}).New()
	site := f.site("main.go")

	_, err := c.ProxyAction(context.Background(), site, "late")
	var nf *NotFoundError
	if !errors.As(err, &nf) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
	if nf.Namespace != "late" || nf.CallSite != site {
		t.Errorf("NotFoundError = %+v", nf)
	}

	f.tr.Descriptor("app", `{"late": "./late"}`)
	f.set.Provide("app/late", provider.Constant("here"))
	f.reg.ResetCache()
	if got := call(t, c, site, "late"); got != "here" {
		t.Errorf("value after declaring = %v, want here", got)
	}
}

func TestProxyAction_ErrorOverrideRepeats(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	boom := errors.New("boom")
	c := f.factory(t, Options{Overrides: map[string]any{"boom": boom}}).New()

	for range 3 {
		_, err := c.ProxyAction(context.Background(), f.site("main.go"), "boom")
		if err != boom {
			t.Fatalf("error = %v, want the configured error verbatim", err)
		}
	}
}

func TestProxyAction_InitFailureCachedUntilForget(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var attempts atomic.Int32
	flaky := capability.Factory(func(context.Context, capability.Runtime, capability.InitInfo) (any, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("not ready")
		}
		return "ready", nil
	})
	c := f.factory(t, Options{Overrides: map[string]any{"flaky": flaky}}).New()
	site := f.site("main.go")

	for range 2 {
		_, err := c.ProxyAction(context.Background(), site, "flaky")
		if !errors.Is(err, ErrInit) {
			t.Fatalf("error = %v, want ErrInit", err)
		}
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("factory attempts = %d, want 1", got)
	}

	if !c.Forget(site, "flaky") {
		t.Fatal("Forget reported no cached slot")
	}
	if got := call(t, c, site, "flaky"); got != "ready" {
		t.Errorf("value after Forget = %v, want ready", got)
	}
	if c.Forget(site, "missing") {
		t.Error("Forget of an empty slot must report false")
	}
}

func TestProxyAction_LocationUnresolved(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tr.Descriptor("app", `{"ghost": "./ghost"}`)
	c := f.factory(t, Options{}).New()

	_, err := c.ProxyAction(context.Background(), f.site("main.go"), "ghost")
	if !errors.Is(err, ErrInit) || !errors.Is(err, capability.ErrLocationUnresolved) {
		t.Errorf("error = %v, want ErrInit wrapping ErrLocationUnresolved", err)
	}

	// The failure is not remembered: once the entry point exists, the same
	// site resolves it.
	f.tr.File("app/ghost.json", `{"found": true}`)
	got := call(t, c, f.site("main.go"), "ghost")
	m, ok := got.(map[string]any)
	if !ok || m["found"] != true {
		t.Errorf("second call = %#v, want decoded ghost.json", got)
	}
}

func TestInitAct(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := f.factory(t, Options{}).New()
	ctx := context.Background()
	bad := errors.New("bad")

	tests := []struct {
		name    string
		value   any
		want    any
		wantErr error
	}{
		{name: "constant", value: 42, want: 42},
		{name: "nil", value: nil, want: nil},
		{name: "func used as is", value: capability.Func(func(_ context.Context, args ...any) (any, error) { return len(args), nil }), want: 1},
		{name: "factory yielding constant", value: provider.Constant("c"), want: "c"},
		{name: "factory yielding func", value: capability.Factory(func(context.Context, capability.Runtime, capability.InitInfo) (any, error) {
			return func(context.Context, ...any) (any, error) { return "inner", nil }, nil
		}), want: "inner"},
		{name: "error value", value: bad, wantErr: bad},
		{name: "factory yielding error", value: provider.Constant(bad), wantErr: bad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fn, err := c.InitAct(ctx, tt.value, f.site("main.go"))
			if err != nil {
				t.Fatalf("InitAct: %v", err)
			}
			got, err := fn(ctx, "arg")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("fn() = %v, %v, want %v", got, err, tt.want)
			}
		})
	}
}

func TestNormalize_SelectorOrder(t *testing.T) {
	t.Parallel()

	defaults := selector.Of("env", "test", "region", "eu")
	req, err := normalize(Request{Name: "store", Selectors: selector.Of("zone", "a", "env", "prod")}, defaults)
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, s := range req.Selectors {
		keys = append(keys, s.Key())
	}
	if !slices.Equal(keys, []string{"env", "region", "zone"}) {
		t.Errorf("selector order = %v", keys)
	}
	if s, _ := req.Selectors.Get("env"); s.Constraint.(selector.Equal).Value != "prod" {
		t.Errorf("env = %v, want prod", s.Constraint)
	}

	if req, _ := normalize("plain", nil); req.Selectors != nil || req.Namespace != "plain" {
		t.Errorf("plain request = %+v", req)
	}
	if _, err := normalize(42, nil); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("error = %v, want ErrInvalidRequest", err)
	}
}

func TestProxyAction_DefaultSelectors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "store-test", "store-prod")
	f.tr.Install("app", testutil.PackageSpec{Name: "store-test", Version: "1.0.0"})
	f.tr.Descriptor("app/cap_modules/store-test", `{"store": {"entryPoint": "./store", "env": "test"}}`)
	f.tr.Install("app", testutil.PackageSpec{Name: "store-prod", Version: "1.0.0"})
	f.tr.Descriptor("app/cap_modules/store-prod", `{"store": {"entryPoint": "./store", "env": "prod"}}`)
	f.set.Provide("store-test/store", provider.Constant("test-store"))
	f.set.Provide("store-prod/store", provider.Constant("prod-store"))

	c := f.factory(t, Options{Selectors: selector.Of("env", "prod")}).New()
	if got := call(t, c, f.site("a.go"), "store"); got != "prod-store" {
		t.Errorf("default selector value = %v, want prod-store", got)
	}
	if got := call(t, c, f.site("b.go"), Named("store").With("env", "test")); got != "test-store" {
		t.Errorf("request selector value = %v, want test-store", got)
	}
}

func TestAction_UsesCallerFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var inits atomic.Int32
	c := f.factory(t, Options{Overrides: map[string]any{"counter": counterFactory(&inits)}}).New()

	first, err := c.Action(context.Background(), "counter")
	if err != nil {
		t.Fatal(err)
	}
	if got := call(t, c, Here(), "counter"); got != first {
		t.Errorf("instance at Here() = %v, want %v", got, first)
	}
	if got := call(t, c, f.site("elsewhere.go"), "counter"); got == first {
		t.Error("another call site shared the instance")
	}
	if got, _ := c.At(Here()).Action(context.Background(), "counter"); got != first {
		t.Errorf("bound caller instance = %v, want %v", got, first)
	}
}

func TestNewFactory_ConfigureOverride(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	configure := capability.Func(func(_ context.Context, args ...any) (any, error) {
		o := args[0].(Options)
		o.Overrides = map[string]any{"injected": "yes"}
		o.Properties = map[string]any{"tenant": "acme"}
		return o, nil
	})
	fac := f.factory(t, Options{Overrides: map[string]any{Configure: configure}})
	c := fac.New(Options{Properties: map[string]any{"request": "r1"}})

	if got := call(t, c, f.site("main.go"), "injected"); got != "yes" {
		t.Errorf("injected = %v, want yes", got)
	}
	if v, ok := fac.New().Property("tenant"); !ok || v != "acme" {
		t.Errorf("Property(tenant) = %v, %v", v, ok)
	}
	if v, ok := c.Property("request"); !ok || v != "r1" {
		t.Errorf("Property(request) = %v, %v", v, ok)
	}
	// Per-call properties replace the configured bag instead of extending it.
	if v, ok := c.Property("tenant"); ok {
		t.Errorf("Property(tenant) = %v on a context with its own properties", v)
	}
}

func TestFactoryNew_ReplacesOverrides(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	fac := f.factory(t, Options{Overrides: map[string]any{"a": "base-a", "b": "base-b"}})
	c := fac.New(Options{Overrides: map[string]any{"a": "call-a"}})

	if got := call(t, c, f.site("main.go"), "a"); got != "call-a" {
		t.Errorf("a = %v, want call-a", got)
	}
	if _, err := c.ProxyAction(context.Background(), f.site("main.go"), "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("b error = %v, want ErrNotFound", err)
	}
	if got := call(t, fac.New(), f.site("main.go"), "b"); got != "base-b" {
		t.Errorf("b from a plain context = %v, want base-b", got)
	}
}

func TestBuiltin_ResetBroadcast(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tr.Descriptor("app", `{"a": "./a"}`)
	fac := f.factory(t, Options{})
	var notified atomic.Int32
	fac.OnExtension(TopicReset, func(context.Context, ...any) error {
		notified.Add(1)
		return nil
	})
	c := fac.New()

	before := f.reg.ResolveForRoot(f.app)
	call(t, c, f.site("main.go"), Reset)
	if f.reg.ResolveForRoot(f.app) == before {
		t.Error("registry cache survived runtime/reset")
	}
	call(t, c, f.site("main.go"), Reset)
	if got := notified.Load(); got != 2 {
		t.Errorf("reset subscribers notified %d times, want 2", got)
	}
}

func TestBuiltin_ResolveVirtual(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tr.Descriptor("app", `{"real": "./real"}`)
	c := f.factory(t, Options{Overrides: map[string]any{"virt": "v"}}).New()
	site := f.site("main.go")
	path := string(site)

	all := call(t, c, site, Resolve, OpAll, registry.Wildcard, path).([]*capability.Capability)
	var names []string
	for _, found := range all {
		names = append(names, found.Namespace)
	}
	if !slices.Equal(names, []string{"real", "virt"}) {
		t.Errorf("all namespaces = %v, want [real virt]", names)
	}

	first := call(t, c, site, Resolve, OpFirst, "virt", path).(*capability.Capability)
	if loc, _ := first.Location(); loc != capability.InlineLocation {
		t.Errorf("virtual location = %q", loc)
	}
	if _, err := c.ProxyAction(context.Background(), site, Resolve, "sideways", "x", path); !errors.Is(err, ErrArgument) {
		t.Errorf("error = %v, want ErrArgument", err)
	}
}

func TestBuiltin_Action(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tr.Descriptor("app", `{"a": "./a"}`)
	c := f.factory(t, Options{}).New()
	site := f.site("main.go")

	got := call(t, c, site, Action, "resolveFirst", "a", string(site))
	if found, ok := got.(*capability.Capability); !ok || found.Namespace != "a" {
		t.Errorf("resolveFirst = %v", got)
	}
	if root := call(t, c, site, Action, "moduleRoot", string(site)); root != f.app {
		t.Errorf("moduleRoot = %v, want %s", root, f.app)
	}
	if _, err := c.ProxyAction(context.Background(), site, Action, "explode", "a", "b"); !errors.Is(err, ErrArgument) {
		t.Errorf("error = %v, want ErrArgument", err)
	}
}
