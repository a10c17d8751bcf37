// SPDX-License-Identifier: MPL-2.0

package selector

import (
	"strings"

	"golang.org/x/mod/semver"
)

// SemverAtLeast matches attribute values that parse as a semantic version not
// lower than minVersion. A leading "v" is optional on both sides.
func SemverAtLeast(minVersion string) Predicate {
	want := canonical(minVersion)
	return func(value any) bool {
		got, ok := value.(string)
		if !ok || want == "" {
			return false
		}
		got = canonical(got)
		return got != "" && semver.Compare(got, want) >= 0
	}
}

// SemverMajor matches attribute values sharing the major version of v.
func SemverMajor(v string) Predicate {
	want := semver.Major(canonical(v))
	return func(value any) bool {
		got, ok := value.(string)
		if !ok || want == "" {
			return false
		}
		return semver.Major(canonical(got)) == want
	}
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}
