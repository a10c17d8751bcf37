// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"errors"
	"slices"
	"testing"

	"github.com/capkit/capkit/internal/testutil"
	"github.com/capkit/capkit/pkg/capability"
	"github.com/capkit/capkit/pkg/diag"
	"github.com/capkit/capkit/pkg/manifest"
)

type collector struct {
	diags []diag.Diagnostic
}

func (c *collector) report(d diag.Diagnostic) { c.diags = append(c.diags, d) }

func (c *collector) codes() []diag.Code {
	var out []diag.Code
	for _, d := range c.diags {
		out = append(out, d.Code)
	}
	return out
}

func newLoader(t *testing.T, tr *testutil.Tree) (*Loader, *collector) {
	t.Helper()
	c := &collector{}
	roots, err := manifest.NewRoots(manifest.RootsOptions{Boundary: tr.Root, Report: c.report})
	if err != nil {
		t.Fatalf("NewRoots: %v", err)
	}
	return New(Options{
		Roots:  roots,
		Merger: &capability.Merger{Index: capability.NewDuplicateIndex()},
		Report: c.report,
	}), c
}

func TestParse_EntryForms(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(`{
		"greet": "./greet",
		"store": {"entryPoint": "./store", "env": "prod", "weight": 2},
		"legacy": {"function": "./legacy"},
		"math": {"add": "./add", "sub": {"entryPoint": "./sub", "version": "2.0.0"}}
	}`), "capability.json")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var namespaces []string
	for _, e := range doc.Entries {
		namespaces = append(namespaces, e.Namespace)
	}
	want := []string{"greet", "store", "legacy", "math/add", "math/sub"}
	if !slices.Equal(namespaces, want) {
		t.Fatalf("namespaces = %v, want %v", namespaces, want)
	}

	store := doc.Entries[1]
	if store.Ref != "./store" || store.Attrs["env"] != "prod" || store.Attrs["weight"] != 2.0 {
		t.Errorf("store entry = %+v", store)
	}
	if _, ok := store.Attrs[KeyEntryPoint]; ok {
		t.Error("entry-point key must not be an attribute")
	}
	if doc.Entries[2].Ref != "./legacy" {
		t.Errorf("legacy ref = %q", doc.Entries[2].Ref)
	}
	if sub := doc.Entries[4]; sub.Ref != "./sub" || sub.Attrs["version"] != "2.0.0" {
		t.Errorf("math/sub entry = %+v", sub)
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		wantErr bool
		skipped int
	}{
		{name: "invalid json", doc: `{"a": `, wantErr: true},
		{name: "scalar document", doc: `"a"`, wantErr: true},
		{name: "list with a number", doc: `["./a", 1]`, wantErr: true},
		{name: "number entry", doc: `{"a": 1, "b": "./b"}`, skipped: 1},
		{name: "non-string entry point", doc: `{"a": {"entryPoint": 3}}`, skipped: 1},
		{name: "nested group", doc: `{"g": {"inner": {"deeper": "./x"}}}`, skipped: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc, err := Parse([]byte(tt.doc), "capability.json")
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Errorf("Parse error = %v, want ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(doc.Skipped) != tt.skipped {
				t.Errorf("skipped = %d, want %d", len(doc.Skipped), tt.skipped)
			}
		})
	}
}

func TestLoadLocal_Metadata(t *testing.T) {
	t.Parallel()

	tr := testutil.NewTree(t)
	app := tr.Package("app", testutil.PackageSpec{Name: "app", Version: "1.4.0"})
	tr.Descriptor("app", `{"greet": "./greet", "store": {"entryPoint": "./store", "version": "9.0.0"}}`)
	l, _ := newLoader(t, tr)

	m := l.LoadLocal(app)
	greet, ok := m.Get("greet")
	if !ok {
		t.Fatal("greet not declared")
	}
	c := greet.First()
	if c.Module != "app" || c.Version != "1.4.0" {
		t.Errorf("greet module/version = %s/%s", c.Module, c.Version)
	}
	if c.Key != capability.KeyOf(app, "./greet") {
		t.Errorf("greet key = %s", c.Key)
	}
	store, _ := m.Get("store")
	if store.First().Version != "9.0.0" {
		t.Errorf("explicit version not applied: %s", store.First().Version)
	}
}

func TestLoadLocal_Idempotent(t *testing.T) {
	t.Parallel()

	tr := testutil.NewTree(t)
	app := tr.Package("app", testutil.PackageSpec{Name: "app", Version: "1.0.0"})
	tr.Descriptor("app", `{"a": "./a"}`)
	l, _ := newLoader(t, tr)

	first := l.LoadLocal(app)
	if second := l.LoadLocal(app); first != second {
		t.Error("second load returned a different map")
	}

	tr.Descriptor("app", `{"a": "./a", "b": "./b"}`)
	if got := l.LoadLocal(app); got.Len() != 1 {
		t.Errorf("cached map was rescanned: %v", got.Namespaces())
	}
	l.Reset()
	if got := l.LoadLocal(app); got.Len() != 2 {
		t.Errorf("after Reset namespaces = %v, want [a b]", got.Namespaces())
	}
}

func TestLoadLocal_NestedWithoutRootDescriptor(t *testing.T) {
	t.Parallel()

	tr := testutil.NewTree(t)
	app := tr.Package("app", testutil.PackageSpec{Name: "app", Version: "1.0.0"})
	tr.Descriptor("app/users", `{"users/get": "./get"}`)
	tr.Descriptor("app/orders", `{"orders/get": "./get"}`)
	tr.File("app/docs/readme.md", "docs\n")
	l, _ := newLoader(t, tr)

	got := l.LoadLocal(app).Namespaces()
	want := []string{"orders/get", "users/get"}
	if !slices.Equal(got, want) {
		t.Errorf("namespaces = %v, want %v", got, want)
	}
}

func TestLoadLocal_Aggregation(t *testing.T) {
	t.Parallel()

	tr := testutil.NewTree(t)
	app := tr.Package("app", testutil.PackageSpec{Name: "app", Version: "1.0.0"})
	tr.Descriptor("app", `["./common", "./extra", "./missing"]`)
	tr.Descriptor("app/common", `{"shared": "./shared"}`)
	tr.Descriptor("app/common/alpha", `{"alpha": "./alpha"}`)
	tr.Descriptor("app/common/beta", `{"beta": "./beta"}`)
	tr.Descriptor("app/extra/gamma", `{"gamma": "./gamma"}`)
	l, c := newLoader(t, tr)

	m := l.LoadLocal(app)
	want := []string{"shared", "alpha", "beta", "gamma"}
	if got := m.Namespaces(); !slices.Equal(got, want) {
		t.Errorf("namespaces = %v, want %v", got, want)
	}
	alpha, _ := m.Get("alpha")
	if alpha.IsMultiple() {
		t.Error("alpha loaded twice through the common folder")
	}
	if codes := c.codes(); !slices.Equal(codes, []diag.Code{diag.CodeAggregationMissing}) {
		t.Errorf("diagnostics = %v", codes)
	}
}

func TestLoadLocal_SelfAggregationTerminates(t *testing.T) {
	t.Parallel()

	tr := testutil.NewTree(t)
	app := tr.Package("app", testutil.PackageSpec{Name: "app", Version: "1.0.0"})
	tr.Descriptor("app", `["."]`)
	tr.Descriptor("app/inner", `{"inner": "./inner"}`)
	l, _ := newLoader(t, tr)

	if got := l.LoadLocal(app).Namespaces(); !slices.Equal(got, []string{"inner"}) {
		t.Errorf("namespaces = %v, want [inner]", got)
	}
}

func TestLoadLocal_MalformedIsolated(t *testing.T) {
	t.Parallel()

	tr := testutil.NewTree(t)
	app := tr.Package("app", testutil.PackageSpec{Name: "app", Version: "1.0.0"})
	tr.Descriptor("app", `{"ok": "./ok", "bad": 42}`)
	tr.Descriptor("app/broken", `{"oops": `)
	tr.Descriptor("app/fine", `{"fine": "./fine"}`)
	l, c := newLoader(t, tr)

	got := l.LoadLocal(app).Namespaces()
	if !slices.Equal(got, []string{"ok", "fine"}) {
		t.Errorf("namespaces = %v, want [ok fine]", got)
	}
	codes := c.codes()
	if !slices.Contains(codes, diag.CodeEntryInvalid) || !slices.Contains(codes, diag.CodeDescriptorMalformed) {
		t.Errorf("diagnostics = %v", codes)
	}
}

func TestLoadLocal_NestedDuplicateRecorded(t *testing.T) {
	t.Parallel()

	tr := testutil.NewTree(t)
	app := tr.Package("app", testutil.PackageSpec{Name: "app", Version: "1.0.0"})
	tr.Descriptor("app/one", `{"N": "./n"}`)
	tr.Descriptor("app/two", `{"N": "./n"}`)
	l, _ := newLoader(t, tr)

	b, _ := l.LoadLocal(app).Get("N")
	if b.Len() != 2 {
		t.Fatalf("N has %d entries, want 2", b.Len())
	}
	if got := len(l.merger.Index.Get("N")); got != 2 {
		t.Errorf("duplicate index for N has %d entries, want 2", got)
	}
}
