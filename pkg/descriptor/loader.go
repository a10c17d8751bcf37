// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/capkit/capkit/pkg/capability"
	"github.com/capkit/capkit/pkg/diag"
	"github.com/capkit/capkit/pkg/manifest"
)

type (
	// Options configures a Loader.
	Options struct {
		// FileName is the descriptor file name. Empty means DefaultFileName.
		FileName string
		// Roots supplies module and version metadata from the enclosing
		// manifest. Required.
		Roots *manifest.Roots
		// Merger merges nested and aggregated maps. Collisions found while
		// loading one package land in the same index as registry merges.
		Merger *capability.Merger
		// Binder is attached to every produced capability to locate and load
		// its implementation.
		Binder capability.Loader
		// Report receives diagnostics for malformed descriptors and entries.
		Report diag.Reporter
	}

	// Loader turns a directory's descriptor into a capability map.
	//
	// Each directory is expanded once: the map is cached until Reset, so
	// repeated loads return the same map. Cached maps are shared and must be
	// cloned before being merged into.
	Loader struct {
		fileName string
		roots    *manifest.Roots
		merger   *capability.Merger
		binder   capability.Loader
		report   diag.Reporter

		mu    sync.Mutex
		cache map[string]*capability.Map
	}
)

// New creates a Loader.
func New(opts Options) *Loader {
	l := &Loader{
		fileName: opts.FileName,
		roots:    opts.Roots,
		merger:   opts.Merger,
		binder:   opts.Binder,
		report:   opts.Report,
		cache:    make(map[string]*capability.Map),
	}
	if l.fileName == "" {
		l.fileName = DefaultFileName
	}
	if l.merger == nil {
		l.merger = &capability.Merger{}
	}
	return l
}

// FileName returns the descriptor file name.
func (l *Loader) FileName() string { return l.fileName }

// LoadLocal returns the capabilities declared at dir.
//
// An object descriptor contributes its entries, then every immediate
// subdirectory holding its own descriptor is merged in. A list descriptor
// aggregates each listed location: the location's own descriptor first, then
// the descriptor of each of its immediate subdirectories. Without a
// descriptor only the nested subdirectories are scanned. The result is never
// nil.
func (l *Loader) LoadLocal(dir string) *capability.Map {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = filepath.Clean(dir)
	}
	return l.load(abs, map[string]bool{})
}

// Reset drops every cached map.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]*capability.Map)
}

func (l *Loader) load(dir string, visiting map[string]bool) *capability.Map {
	l.mu.Lock()
	cached, ok := l.cache[dir]
	l.mu.Unlock()
	if ok {
		return cached
	}
	// A list that aggregates one of its own ancestors would never end.
	if visiting[dir] {
		return capability.NewMap()
	}
	visiting[dir] = true
	defer delete(visiting, dir)

	m := l.expand(dir, visiting)

	l.mu.Lock()
	defer l.mu.Unlock()
	if cached, ok := l.cache[dir]; ok {
		return cached
	}
	l.cache[dir] = m
	return m
}

func (l *Loader) expand(dir string, visiting map[string]bool) *capability.Map {
	path := filepath.Join(dir, l.fileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.malformed(path, fmt.Sprintf("failed to read descriptor: %v", err), err)
		}
		return l.nested(dir, capability.NewMap(), visiting)
	}

	doc, err := Parse(data, path)
	if err != nil {
		l.malformed(path, err.Error(), err)
		return l.nested(dir, capability.NewMap(), visiting)
	}
	for _, skipped := range doc.Skipped {
		l.report.Report(diag.Diagnostic{
			Severity: diag.SeverityWarning,
			Code:     diag.CodeEntryInvalid,
			Message:  skipped.Error(),
			Path:     path,
			Cause:    skipped,
		})
	}

	if doc.Locations != nil {
		return l.aggregate(dir, doc.Locations, visiting)
	}

	m := capability.NewMap()
	pkg := l.roots.PackageOf(dir)
	for _, e := range doc.Entries {
		m.Set(e.Namespace, capability.Single(capability.New(capability.Spec{
			Namespace: e.Namespace,
			Module:    pkg.Name,
			Version:   pkg.Version,
			Dir:       dir,
			Entry:     e.Ref,
			Attrs:     e.Attrs,
		}, l.binder)))
	}
	return l.nested(dir, m, visiting)
}

// nested merges the descriptor of every immediate subdirectory that has one.
func (l *Loader) nested(dir string, into *capability.Map, visiting map[string]bool) *capability.Map {
	for _, sub := range subdirs(dir) {
		if !isFile(filepath.Join(sub, l.fileName)) {
			continue
		}
		into = l.merger.Merge(into, l.load(sub, visiting))
	}
	return into
}

func (l *Loader) aggregate(dir string, locations []string, visiting map[string]bool) *capability.Map {
	m := capability.NewMap()
	for _, rel := range locations {
		loc := filepath.Join(dir, filepath.FromSlash(rel))
		if !isDir(loc) {
			l.report.Report(diag.Diagnostic{
				Severity: diag.SeverityWarning,
				Code:     diag.CodeAggregationMissing,
				Message:  fmt.Sprintf("aggregation location %q is not a directory", rel),
				Path:     loc,
			})
			continue
		}
		if isFile(filepath.Join(loc, l.fileName)) {
			m = l.merger.Merge(m, l.load(loc, visiting))
		}
		for _, sub := range subdirs(loc) {
			m = l.merger.Merge(m, l.load(sub, visiting))
		}
	}
	return m
}

func (l *Loader) malformed(path, msg string, cause error) {
	l.report.Report(diag.Diagnostic{
		Severity: diag.SeverityError,
		Code:     diag.CodeDescriptorMalformed,
		Message:  msg,
		Path:     path,
		Cause:    cause,
	})
}

// subdirs lists the immediate subdirectories of dir in name order.
func subdirs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
