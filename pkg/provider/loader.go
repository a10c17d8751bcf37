// SPDX-License-Identifier: MPL-2.0

package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/gjson"

	"github.com/capkit/capkit/pkg/capability"
	"github.com/capkit/capkit/pkg/cueutil"
)

// DataExtensions are the file extensions decoded into constant capabilities,
// in probe order.
var DataExtensions = []string{".json", ".cue", ".toml"}

// ErrLoad is the sentinel wrapped by LoadError.
var ErrLoad = errors.New("failed to load capability")

// LoadError reports an entry point that was located but could not be turned
// into a factory.
type LoadError struct {
	Namespace string
	Location  string
	Cause     error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load capability %s from %s: %v", e.Namespace, e.Location, e.Cause)
}

// Unwrap returns both ErrLoad and the cause.
func (e *LoadError) Unwrap() []error {
	return []error{ErrLoad, e.Cause}
}

// Loader implements capability.Loader on top of a Set and the filesystem.
type Loader struct {
	set *Set
}

// NewLoader returns a Loader backed by set, or by Default() when set is nil.
func NewLoader(set *Set) *Loader {
	if set == nil {
		set = defaultSet
	}
	return &Loader{set: set}
}

// Set returns the factory table.
func (l *Loader) Set() *Set { return l.set }

// Locate resolves the entry point of c. It probes the entry as a file, then
// with each data extension, then as a directory holding an index data file,
// and finally the factory table. The returned location has no extension when
// only a registered factory backs it.
func (l *Loader) Locate(c *capability.Capability) (string, error) {
	loc := c.Entry
	if !filepath.IsAbs(loc) {
		loc = filepath.Join(c.Dir, filepath.FromSlash(loc))
	}

	if isFile(loc) {
		return loc, nil
	}
	for _, ext := range DataExtensions {
		if isFile(loc + ext) {
			return loc + ext, nil
		}
	}
	for _, ext := range DataExtensions {
		if index := filepath.Join(loc, "index"+ext); isFile(index) {
			return index, nil
		}
	}
	if _, _, ok := l.set.find(c, loc); ok {
		return stripExt(loc), nil
	}
	return "", &capability.LocationError{Namespace: c.Namespace, Location: loc}
}

// Load returns the factory for location. A registered factory wins over a
// data file at the same location.
func (l *Loader) Load(c *capability.Capability, location string) (capability.Factory, error) {
	if f, _, ok := l.set.find(c, location); ok {
		return f, nil
	}
	if !isData(location) {
		return nil, &LoadError{
			Namespace: c.Namespace,
			Location:  location,
			Cause:     fmt.Errorf("no factory registered for %s", ID(c.Module, c.Entry)),
		}
	}
	v, err := decodeFile(location)
	if err != nil {
		return nil, &LoadError{Namespace: c.Namespace, Location: location, Cause: err}
	}
	return Constant(v), nil
}

// Constant returns a factory that yields v.
func Constant(v any) capability.Factory {
	return func(context.Context, capability.Runtime, capability.InitInfo) (any, error) {
		return v, nil
	}
}

func decodeFile(location string) (any, error) {
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(location)) {
	case ".json":
		if !gjson.ValidBytes(data) {
			return nil, errors.New("invalid JSON")
		}
		return gjson.ParseBytes(data).Value(), nil
	case ".cue":
		return cueutil.DecodeValue(data, cueutil.WithFilename(location))
	case ".toml":
		var v map[string]any
		if err := toml.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("unsupported data file %s", location)
}

func isData(location string) bool {
	return slices.Contains(DataExtensions, strings.ToLower(filepath.Ext(location)))
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
