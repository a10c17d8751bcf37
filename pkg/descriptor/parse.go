// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// DefaultFileName is the descriptor file looked up in every scanned directory.
const DefaultFileName = "capability.json"

// Entry-point keys of a metadata object. KeyFunction is the legacy spelling.
const (
	KeyEntryPoint = "entryPoint"
	KeyFunction   = "function"
)

// ErrMalformed is the sentinel wrapped by MalformedError and EntryError.
var ErrMalformed = errors.New("malformed descriptor")

type (
	// Entry is one flattened declaration: a namespace bound to a raw
	// entry-point reference plus its selector attributes.
	Entry struct {
		Namespace string
		Ref       string
		Attrs     map[string]any
	}

	// Document is a parsed descriptor. Exactly one of Locations and Entries is
	// populated: a list document aggregates other locations, an object document
	// declares entries.
	Document struct {
		// Locations are the aggregation paths of a list document, relative to
		// the descriptor directory.
		Locations []string
		// Entries are declarations in document order, groups already flattened.
		Entries []Entry
		// Skipped holds entries whose shape could not be used.
		Skipped []*EntryError
	}

	// MalformedError reports a descriptor file that could not be parsed.
	MalformedError struct {
		Path   string
		Reason string
	}

	// EntryError reports a single unusable declaration. The rest of the
	// descriptor is still loaded.
	EntryError struct {
		Path      string
		Namespace string
		Reason    string
	}
)

// Error implements the error interface.
func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed descriptor %s: %s", e.Path, e.Reason)
}

// Unwrap returns ErrMalformed for errors.Is.
func (e *MalformedError) Unwrap() error { return ErrMalformed }

// Error implements the error interface.
func (e *EntryError) Error() string {
	return fmt.Sprintf("invalid entry %q in %s: %s", e.Namespace, e.Path, e.Reason)
}

// Unwrap returns ErrMalformed for errors.Is.
func (e *EntryError) Unwrap() error { return ErrMalformed }

// Parse decodes descriptor data. path is only used in errors.
//
// An object maps namespaces to one of:
//   - a string: the entry-point reference;
//   - an object holding an entry-point key: the reference plus attributes;
//   - an object without one: a group, flattened to namespace/member.
//
// An array lists aggregation locations.
func Parse(data []byte, path string) (*Document, error) {
	if !gjson.ValidBytes(data) {
		return nil, &MalformedError{Path: path, Reason: "invalid JSON"}
	}
	root := gjson.ParseBytes(data)
	doc := &Document{}

	switch {
	case root.IsArray():
		var bad bool
		root.ForEach(func(_, v gjson.Result) bool {
			if v.Type != gjson.String || v.Str == "" {
				bad = true
				return false
			}
			doc.Locations = append(doc.Locations, v.Str)
			return true
		})
		if bad {
			return nil, &MalformedError{Path: path, Reason: "aggregation list must only hold non-empty strings"}
		}
	case root.IsObject():
		root.ForEach(func(k, v gjson.Result) bool {
			doc.declare(path, k.String(), v, true)
			return true
		})
	default:
		return nil, &MalformedError{Path: path, Reason: "top level value must be an object or an array"}
	}
	return doc, nil
}

func (d *Document) declare(path, ns string, v gjson.Result, groupAllowed bool) {
	switch {
	case v.Type == gjson.String:
		if v.Str == "" {
			d.skip(path, ns, "empty entry point")
			return
		}
		d.Entries = append(d.Entries, Entry{Namespace: ns, Ref: v.Str})
	case v.IsObject():
		if ref, ok := entryRef(v); ok {
			if ref == "" {
				d.skip(path, ns, KeyEntryPoint+" must be a non-empty string")
				return
			}
			d.Entries = append(d.Entries, Entry{Namespace: ns, Ref: ref, Attrs: attrsOf(v)})
			return
		}
		if !groupAllowed {
			d.skip(path, ns, "group members must be a path or an object with "+KeyEntryPoint)
			return
		}
		v.ForEach(func(k, member gjson.Result) bool {
			d.declare(path, ns+"/"+k.String(), member, false)
			return true
		})
	default:
		d.skip(path, ns, "expected a path, a metadata object or a group")
	}
}

func (d *Document) skip(path, ns, reason string) {
	d.Skipped = append(d.Skipped, &EntryError{Path: path, Namespace: ns, Reason: reason})
}

// entryRef returns the entry-point reference of a metadata object. ok is
// false when the object holds no entry-point key, which makes it a group.
func entryRef(v gjson.Result) (string, bool) {
	for _, key := range []string{KeyEntryPoint, KeyFunction} {
		if r := v.Get(key); r.Exists() {
			if r.Type != gjson.String {
				return "", true
			}
			return r.Str, true
		}
	}
	return "", false
}

func attrsOf(v gjson.Result) map[string]any {
	attrs := map[string]any{}
	v.ForEach(func(k, val gjson.Result) bool {
		switch key := k.String(); key {
		case KeyEntryPoint, KeyFunction:
		default:
			attrs[key] = val.Value()
		}
		return true
	})
	return attrs
}
