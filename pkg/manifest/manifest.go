// SPDX-License-Identifier: MPL-2.0

// Package manifest reads package manifests and walks the package-root graph:
// nearest enclosing root, parent root up to a boundary, and the install root
// of a named dependency.
package manifest

import (
	"errors"
	"fmt"
	"slices"

	"github.com/tidwall/gjson"
)

// DefaultFileName is the manifest file marking a package root.
const DefaultFileName = "package.json"

// ErrMalformed is the sentinel wrapped by MalformedError.
var ErrMalformed = errors.New("malformed manifest")

type (
	// Manifest is the subset of a package manifest that drives discovery.
	// Dependency lists keep their declared order.
	Manifest struct {
		Name             string
		Version          string
		Dependencies     []string
		PeerDependencies []string
		DevDependencies  []string
	}

	// MalformedError reports a manifest that could not be parsed.
	MalformedError struct {
		Path   string
		Reason string
	}
)

// Error implements the error interface.
func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed manifest %s: %s", e.Path, e.Reason)
}

// Unwrap returns ErrMalformed for errors.Is.
func (e *MalformedError) Unwrap() error { return ErrMalformed }

// Parse decodes manifest data. path is only used in errors.
func Parse(data []byte, path string) (*Manifest, error) {
	if !gjson.ValidBytes(data) {
		return nil, &MalformedError{Path: path, Reason: "invalid JSON"}
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, &MalformedError{Path: path, Reason: "top level value is not an object"}
	}

	m := &Manifest{
		Name:    doc.Get("name").String(),
		Version: doc.Get("version").String(),
	}
	var err error
	if m.Dependencies, err = keysOf(doc, "dependencies", path); err != nil {
		return nil, err
	}
	if m.PeerDependencies, err = keysOf(doc, "peerDependencies", path); err != nil {
		return nil, err
	}
	if m.DevDependencies, err = keysOf(doc, "devDependencies", path); err != nil {
		return nil, err
	}
	return m, nil
}

// DependencyNames returns the union of runtime, peer and dev dependency
// names, deduplicated, in that declared order.
func (m *Manifest) DependencyNames() []string {
	if m == nil {
		return nil
	}
	var names []string
	for _, group := range [][]string{m.Dependencies, m.PeerDependencies, m.DevDependencies} {
		for _, name := range group {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	return names
}

func keysOf(doc gjson.Result, field, path string) ([]string, error) {
	v := doc.Get(field)
	if !v.Exists() || v.Type == gjson.Null {
		return nil, nil
	}
	if !v.IsObject() {
		return nil, &MalformedError{Path: path, Reason: field + " is not an object"}
	}
	var keys []string
	v.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	return keys, nil
}
