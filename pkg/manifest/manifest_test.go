// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/capkit/capkit/internal/testutil"
	"github.com/capkit/capkit/pkg/diag"
)

func TestParse_DependencyOrder(t *testing.T) {
	t.Parallel()

	data := []byte(`{
		"name": "app",
		"version": "1.2.3",
		"dependencies": {"zeta": "1", "alpha": "1"},
		"peerDependencies": {"alpha": "1", "beta": "1"},
		"devDependencies": {"gamma": "1", "zeta": "1"}
	}`)
	m, err := Parse(data, "package.json")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Name != "app" || m.Version != "1.2.3" {
		t.Errorf("name/version = %s/%s", m.Name, m.Version)
	}
	want := []string{"zeta", "alpha", "beta", "gamma"}
	if got := m.DependencyNames(); !slices.Equal(got, want) {
		t.Errorf("DependencyNames() = %v, want %v", got, want)
	}
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"invalid json":       `{"name": `,
		"not an object":      `["a"]`,
		"deps not object":    `{"dependencies": ["a"]}`,
		"peer not an object": `{"peerDependencies": "x"}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(doc), "bad.json")
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Parse error = %v, want ErrMalformed", err)
			}
		})
	}
}

func newRoots(t *testing.T, tr *testutil.Tree, report diag.Reporter) *Roots {
	t.Helper()
	r, err := NewRoots(RootsOptions{Boundary: tr.Root, Report: report})
	if err != nil {
		t.Fatalf("NewRoots: %v", err)
	}
	return r
}

func TestModuleRoot(t *testing.T) {
	t.Parallel()

	tr := testutil.NewTree(t)
	app := tr.Package("app", testutil.PackageSpec{Name: "app", Version: "1.0.0"})
	tr.File("app/src/lib/file.go", "package lib\n")
	r := newRoots(t, tr, nil)

	if got := r.ModuleRoot(tr.Path("app", "src", "lib", "file.go")); got != app {
		t.Errorf("ModuleRoot(file) = %s, want %s", got, app)
	}
	if got := r.ModuleRoot(tr.Path("app", "src")); got != app {
		t.Errorf("ModuleRoot(dir) = %s, want %s", got, app)
	}
	if got := r.ModuleRoot(app); got != app {
		t.Errorf("ModuleRoot(root) = %s, want itself", got)
	}

	tr.File("loose/x.go", "package x\n")
	if got := r.ModuleRoot(tr.Path("loose", "x.go")); got != tr.Root {
		t.Errorf("ModuleRoot without manifest = %s, want boundary %s", got, tr.Root)
	}
}

func TestParentRoot(t *testing.T) {
	t.Parallel()

	tr := testutil.NewTree(t)
	top := tr.Package("", testutil.PackageSpec{Name: "top", Version: "1.0.0"})
	app := tr.Package("apps/app", testutil.PackageSpec{Name: "app", Version: "1.0.0"})
	r := newRoots(t, tr, nil)

	parent, ok := r.ParentRoot(app)
	if !ok || parent != top {
		t.Fatalf("ParentRoot(app) = %s, %v, want %s", parent, ok, top)
	}
	if _, ok := r.ParentRoot(top); ok {
		t.Error("ParentRoot of the boundary must report no parent")
	}
}

func TestInstallRoot_NearestFirst(t *testing.T) {
	t.Parallel()

	tr := testutil.NewTree(t)
	app := tr.Package("app", testutil.PackageSpec{Name: "app", Version: "1.0.0"})
	outer := tr.Install("", testutil.PackageSpec{Name: "dep", Version: "1.0.0"})
	r := newRoots(t, tr, nil)

	got, ok := r.InstallRoot(app, "dep")
	if !ok || got != outer {
		t.Fatalf("InstallRoot = %s, %v, want %s", got, ok, outer)
	}

	inner := tr.Install("app", testutil.PackageSpec{Name: "dep", Version: "2.0.0"})
	got, ok = r.InstallRoot(app, "dep")
	if !ok || got != inner {
		t.Errorf("InstallRoot = %s, want nearest %s", got, inner)
	}

	if _, ok := r.InstallRoot(app, "missing"); ok {
		t.Error("expected missing dependency not to be found")
	}

	scoped := tr.Install("app", testutil.PackageSpec{Name: "@org/tool", Version: "1.0.0"})
	if got, ok := r.InstallRoot(app, "@org/tool"); !ok || got != filepath.Clean(scoped) {
		t.Errorf("InstallRoot(scoped) = %s, %v", got, ok)
	}
}

func TestManifest_MalformedReported(t *testing.T) {
	t.Parallel()

	tr := testutil.NewTree(t)
	tr.File("bad/package.json", `{"name": `)

	var diags []diag.Diagnostic
	r := newRoots(t, tr, func(d diag.Diagnostic) { diags = append(diags, d) })

	m := r.Manifest(tr.Path("bad"))
	if m == nil || m.Name != "" {
		t.Errorf("Manifest = %+v, want empty manifest", m)
	}
	if len(diags) != 1 || diags[0].Code != diag.CodeManifestMalformed {
		t.Errorf("diagnostics = %v", diags)
	}

	// Memoized: no second diagnostic.
	r.Manifest(tr.Path("bad"))
	if len(diags) != 1 {
		t.Errorf("diagnostics after second read = %d, want 1", len(diags))
	}
	if got := r.NameOf(tr.Path("bad")); got != "bad" {
		t.Errorf("NameOf = %s, want directory name fallback", got)
	}
}
