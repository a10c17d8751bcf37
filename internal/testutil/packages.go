// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

const (
	// ManifestName is the manifest file written by Package.
	ManifestName = "package.json"
	// DescriptorName is the descriptor file written by Descriptor.
	DescriptorName = "capability.json"
	// ModulesDir is the dependency install directory used by Install.
	ModulesDir = "cap_modules"
)

type (
	// Tree is a temporary directory holding fixture packages.
	Tree struct {
		t    testing.TB
		Root string
	}

	// PackageSpec describes a fixture manifest. Dependency versions are not
	// used by discovery, only the names and their order.
	PackageSpec struct {
		Name    string
		Version string
		Deps    []string
		Peer    []string
		Dev     []string
	}
)

// NewTree creates a fixture tree under t.TempDir(). The root path has
// symlinks resolved so it compares equal to paths computed by the code under
// test.
func NewTree(t testing.TB) *Tree {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("failed to resolve temp dir: %v", err)
	}
	return &Tree{t: t, Root: root}
}

// Path joins elem onto the tree root.
func (tr *Tree) Path(elem ...string) string {
	return filepath.Join(append([]string{tr.Root}, elem...)...)
}

// File writes a file at rel with content and returns its absolute path.
func (tr *Tree) File(rel, content string) string {
	tr.t.Helper()
	path := tr.Path(rel)
	MustWriteFile(tr.t, path, content)
	return path
}

// Package writes a manifest into dir (relative to the root) and returns the
// absolute directory.
func (tr *Tree) Package(dir string, spec PackageSpec) string {
	tr.t.Helper()
	abs := tr.Path(dir)
	doc := "{" + `"name":` + quote(spec.Name) + `,"version":` + quote(spec.Version)
	doc += depsField("dependencies", spec.Deps)
	doc += depsField("peerDependencies", spec.Peer)
	doc += depsField("devDependencies", spec.Dev)
	doc += "}"
	MustWriteFile(tr.t, filepath.Join(abs, ManifestName), doc)
	return abs
}

// Install writes a dependency package under <dir>/cap_modules/<name> and
// returns its root.
func (tr *Tree) Install(dir string, spec PackageSpec) string {
	tr.t.Helper()
	return tr.Package(filepath.Join(dir, ModulesDir, spec.Name), spec)
}

// Descriptor writes a raw descriptor document into dir (relative to the root).
func (tr *Tree) Descriptor(dir, doc string) string {
	tr.t.Helper()
	return tr.File(filepath.Join(dir, DescriptorName), doc)
}

// depsField renders an ordered JSON object field. encoding/json would sort
// map keys, and order is what the discovery code reads.
func depsField(field string, names []string) string {
	if len(names) == 0 {
		return ""
	}
	out := `,"` + field + `":{`
	for i, name := range names {
		if i > 0 {
			out += ","
		}
		out += quote(name) + `:"*"`
	}
	return out + "}"
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
