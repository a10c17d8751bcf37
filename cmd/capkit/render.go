// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/exp/maps"
	"golang.org/x/mod/semver"

	"github.com/capkit/capkit/pkg/capability"
	"github.com/capkit/capkit/pkg/selector"
)

// renderCapability prints one capability on a single line followed by its
// attributes, and its resolved location when showLocation is set.
func renderCapability(w io.Writer, c *capability.Capability, showLocation bool) {
	line := "  " + namespaceStyle.Render(c.Namespace)
	if origin := moduleLabel(c); origin != "" {
		line += " " + moduleStyle.Render(origin)
	}
	fmt.Fprintln(w, line)

	attrs := c.Attrs()
	for _, name := range sortedNames(attrs) {
		fmt.Fprintf(w, "      %s=%v\n", attrStyle.Render(name), attrs[name])
	}
	if !showLocation {
		return
	}
	if c.Key == "" {
		fmt.Fprintf(w, "      %s\n", VerboseStyle.Render(capability.InlineLocation))
		return
	}
	location, err := c.Location()
	if err != nil {
		fmt.Fprintf(w, "      %s %v\n", WarningStyle.Render("!"), err)
		return
	}
	fmt.Fprintf(w, "      %s\n", VerboseStyle.Render(location))
}

// moduleLabel renders module@version, or the descriptor key for entries that
// declare neither.
func moduleLabel(c *capability.Capability) string {
	switch {
	case c.Module != "" && c.Version != "":
		return c.Module + "@" + c.Version
	case c.Module != "":
		return c.Module
	default:
		return c.Key
	}
}

func sortedNames[V any](m map[string]V) []string {
	names := maps.Keys(m)
	slices.Sort(names)
	return names
}

// parseValue interprets a command-line value as JSON when it is a JSON
// scalar, array or object, and as a plain string otherwise.
func parseValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || !gjson.Valid(trimmed) {
		return raw
	}
	return gjson.Parse(trimmed).Value()
}

// semverOps maps selector operators to semantic version predicates.
var semverOps = []struct {
	op   string
	pred func(string) selector.Predicate
}{
	{op: ">=", pred: selector.SemverAtLeast},
	{op: "^=", pred: selector.SemverMajor},
}

// parseSelectors parses key=value, key~=regexp, key>=version (at least) and
// key^=version (same major) pairs. A key prefixed with '~' is a fallback
// selector.
func parseSelectors(pairs []string) (selector.Selectors, error) {
	var out selector.Selectors
	for _, pair := range pairs {
		if key, pattern, ok := cutOperator(pair, "~="); ok {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, &ExitError{Code: ExitUsage, Err: fmt.Errorf("selector %q: %w", pair, err)}
			}
			out = out.With(key, re)
			continue
		}
		if key, pred, ok, err := parseSemver(pair); ok {
			if err != nil {
				return nil, err
			}
			out = out.With(key, pred)
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" || key == selector.FallbackPrefix {
			return nil, &ExitError{Code: ExitUsage, Err: fmt.Errorf("selector %q must be key=value", pair)}
		}
		out = out.With(key, parseValue(value))
	}
	return out, nil
}

func parseSemver(pair string) (string, selector.Predicate, bool, error) {
	for _, s := range semverOps {
		key, version, ok := cutOperator(pair, s.op)
		if !ok {
			continue
		}
		if !semver.IsValid("v" + strings.TrimPrefix(version, "v")) {
			return "", nil, true, &ExitError{Code: ExitUsage, Err: fmt.Errorf("selector %q: %q is not a semantic version", pair, version)}
		}
		return key, s.pred(version), true, nil
	}
	return "", nil, false, nil
}

// cutOperator splits pair around op when op comes before any plain '='.
func cutOperator(pair, op string) (string, string, bool) {
	key, rest, ok := strings.Cut(pair, op)
	if !ok || key == "" || key == selector.FallbackPrefix || strings.Contains(key, "=") {
		return "", "", false
	}
	return key, rest, true
}
