// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/capkit/capkit/pkg/diag"
)

// DefaultModulesDir is the directory holding installed dependencies.
const DefaultModulesDir = "cap_modules"

type (
	// RootsOptions configures a Roots walker.
	RootsOptions struct {
		// Boundary is the top directory of every upward walk. Empty means the
		// process working directory.
		Boundary string
		// FileName is the manifest file name. Empty means DefaultFileName.
		FileName string
		// ModulesDir is the install directory name. Empty means DefaultModulesDir.
		ModulesDir string
		// Report receives diagnostics for malformed manifests.
		Report diag.Reporter
	}

	// Roots finds package roots and reads their manifests. Results are
	// memoized until Reset.
	Roots struct {
		boundary   string
		fileName   string
		modulesDir string
		report     diag.Reporter

		mu        sync.Mutex
		roots     map[string]string
		manifests map[string]*Manifest
	}
)

// NewRoots creates a Roots walker.
func NewRoots(opts RootsOptions) (*Roots, error) {
	boundary := opts.Boundary
	if boundary == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
		boundary = wd
	}
	abs, err := filepath.Abs(boundary)
	if err != nil {
		return nil, fmt.Errorf("resolve root boundary: %w", err)
	}
	r := &Roots{
		boundary:   abs,
		fileName:   opts.FileName,
		modulesDir: opts.ModulesDir,
		report:     opts.Report,
		roots:      make(map[string]string),
		manifests:  make(map[string]*Manifest),
	}
	if r.fileName == "" {
		r.fileName = DefaultFileName
	}
	if r.modulesDir == "" {
		r.modulesDir = DefaultModulesDir
	}
	return r, nil
}

// Boundary returns the top directory of upward walks.
func (r *Roots) Boundary() string { return r.boundary }

// FileName returns the manifest file name.
func (r *Roots) FileName() string { return r.fileName }

// ModuleRoot returns the nearest directory at or above path holding a
// manifest. The walk stops at the boundary, which is returned when no
// manifest is found on the way.
func (r *Roots) ModuleRoot(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if root, ok := r.roots[abs]; ok {
		return root
	}
	root := r.findRoot(abs)
	r.roots[abs] = root
	return root
}

func (r *Roots) findRoot(dir string) string {
	for {
		if isFile(filepath.Join(dir, r.fileName)) {
			return dir
		}
		parent := filepath.Dir(dir)
		if dir == r.boundary || parent == dir || parent == string(filepath.Separator) || parent == r.boundary {
			return r.boundary
		}
		dir = parent
	}
}

// ParentRoot returns the nearest package root strictly above root, or false
// once the walk would leave the boundary or reach the filesystem root.
func (r *Roots) ParentRoot(root string) (string, bool) {
	parent := filepath.Dir(root)
	if parent == root || len(r.boundary) > len(parent) {
		return "", false
	}
	return r.ModuleRoot(parent), true
}

// Manifest returns the manifest at root. A missing manifest yields an empty
// one; a malformed manifest is reported and also yields an empty one, so a
// broken package never blocks its siblings.
func (r *Roots) Manifest(root string) *Manifest {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.manifests[root]; ok {
		return m
	}
	m := r.readManifest(root)
	r.manifests[root] = m
	return m
}

func (r *Roots) readManifest(root string) *Manifest {
	path := filepath.Join(root, r.fileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.report.Report(diag.Diagnostic{
				Severity: diag.SeverityWarning,
				Code:     diag.CodeManifestMalformed,
				Message:  fmt.Sprintf("failed to read manifest: %v", err),
				Path:     path,
				Cause:    err,
			})
		}
		return &Manifest{}
	}
	m, err := Parse(data, path)
	if err != nil {
		r.report.Report(diag.Diagnostic{
			Severity: diag.SeverityError,
			Code:     diag.CodeManifestMalformed,
			Message:  err.Error(),
			Path:     path,
			Cause:    err,
		})
		return &Manifest{}
	}
	return m
}

// PackageOf returns the manifest of the package root enclosing dir.
func (r *Roots) PackageOf(dir string) *Manifest {
	return r.Manifest(r.ModuleRoot(dir))
}

// NameOf returns the package name at root, falling back to the directory
// name when the manifest does not declare one.
func (r *Roots) NameOf(root string) string {
	if name := r.Manifest(root).Name; name != "" {
		return name
	}
	return filepath.Base(root)
}

// InstallRoot locates the installed root of dependency name as seen from
// root: <dir>/<modulesDir>/<name> for root and each directory above it,
// nearest first.
func (r *Roots) InstallRoot(root, name string) (string, bool) {
	dir := root
	for {
		candidate := filepath.Join(dir, r.modulesDir, filepath.FromSlash(name))
		if isDir(candidate) {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Reset drops memoized roots and manifests.
func (r *Roots) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roots = make(map[string]string)
	r.manifests = make(map[string]*Manifest)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
