// SPDX-License-Identifier: MPL-2.0

// Package selector implements attribute-based matching used to pick one
// capability among same-namespace variants.
//
// A request is an ordered list of selectors. Each selector names an attribute
// and a constraint. Selectors whose key carries the FallbackPrefix are
// negotiable: when no candidate satisfies the full request, FindBest drops the
// most recently specified fallback selector and scans again.
package selector

import (
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"
)

// FallbackPrefix marks a selector key as negotiable.
const FallbackPrefix = "~"

type (
	// Attributed is anything exposing an attribute bag for matching.
	Attributed interface {
		Attr(name string) (any, bool)
	}

	// Constraint tests one attribute value. present is false when the
	// candidate has no attribute with the selector's name.
	Constraint interface {
		Matches(value any, present bool) bool
	}

	// Selector is a single attribute constraint.
	Selector struct {
		// Name is the attribute name, without the fallback prefix.
		Name string
		// Fallback marks the selector as droppable during FindBest.
		Fallback bool
		// Constraint is the test applied to the attribute value.
		Constraint Constraint
	}

	// Selectors is an ordered selector request. Order matters: fallback
	// selectors are dropped from the end first.
	Selectors []Selector

	// Equal is a literal equality constraint.
	Equal struct {
		Value any
	}

	// Pattern is a regular expression constraint applied to the string form of
	// the attribute value.
	Pattern struct {
		Re *regexp.Regexp
	}

	// Predicate is an arbitrary test; it receives nil when the attribute is
	// missing.
	Predicate func(value any) bool
)

// Matches implements Constraint.
func (e Equal) Matches(value any, present bool) bool {
	if !present {
		return false
	}
	return equalValues(e.Value, value)
}

// String returns the literal in a readable form.
func (e Equal) String() string { return fmt.Sprint(e.Value) }

// Matches implements Constraint.
func (p Pattern) Matches(value any, present bool) bool {
	if !present || p.Re == nil {
		return false
	}
	return p.Re.MatchString(stringOf(value))
}

// String returns the pattern source.
func (p Pattern) String() string {
	if p.Re == nil {
		return "/<nil>/"
	}
	return "/" + p.Re.String() + "/"
}

// Matches implements Constraint.
func (f Predicate) Matches(value any, present bool) bool {
	if f == nil {
		return false
	}
	if !present {
		value = nil
	}
	return f(value)
}

// String identifies the predicate.
func (f Predicate) String() string { return "<predicate>" }

// New builds a selector from a request key and a constraint value. A key
// starting with FallbackPrefix yields a fallback selector. The value may be a
// Constraint, a *regexp.Regexp, a func(any) bool, or any literal.
func New(key string, value any) Selector {
	fallback := strings.HasPrefix(key, FallbackPrefix)
	name := strings.TrimPrefix(key, FallbackPrefix)
	return Selector{Name: name, Fallback: fallback, Constraint: ConstraintOf(value)}
}

// ConstraintOf converts a request value into a Constraint.
func ConstraintOf(value any) Constraint {
	switch v := value.(type) {
	case Constraint:
		return v
	case *regexp.Regexp:
		return Pattern{Re: v}
	case func(any) bool:
		return Predicate(v)
	default:
		return Equal{Value: v}
	}
}

// Key returns the request key, including the fallback prefix when set.
// Two selectors with the same key address the same request slot.
func (s Selector) Key() string {
	if s.Fallback {
		return FallbackPrefix + s.Name
	}
	return s.Name
}

// String renders the selector as key=constraint.
func (s Selector) String() string {
	return fmt.Sprintf("%s=%v", s.Key(), s.Constraint)
}

// Of builds Selectors from alternating key/value pairs, preserving order.
// It panics on an odd argument count or a non-string key, which is a
// programming error at the call site.
func Of(kv ...any) Selectors {
	if len(kv)%2 != 0 {
		panic("selector.Of: odd number of arguments")
	}
	out := make(Selectors, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("selector.Of: key at position %d is %T, not string", i, kv[i]))
		}
		out = out.With(key, kv[i+1])
	}
	return out
}

// FromMap builds Selectors from a map, ordering keys lexically so the result
// is deterministic.
func FromMap(m map[string]string) Selectors {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make(Selectors, 0, len(keys))
	for _, k := range keys {
		out = append(out, New(k, m[k]))
	}
	return out
}

// With returns a copy of s where the selector for key is set to value. An
// existing selector with the same key keeps its position; a new one is
// appended.
func (s Selectors) With(key string, value any) Selectors {
	return s.Merge(Selectors{New(key, value)})
}

// Merge returns base overridden by over: same-key selectors from over replace
// base entries in place, the rest are appended in over's order.
func (s Selectors) Merge(over Selectors) Selectors {
	out := make(Selectors, len(s), len(s)+len(over))
	copy(out, s)
	for _, sel := range over {
		replaced := false
		for i := range out {
			if out[i].Key() == sel.Key() {
				out[i] = sel
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, sel)
		}
	}
	return out
}

// Get returns the selector for key.
func (s Selectors) Get(key string) (Selector, bool) {
	for _, sel := range s {
		if sel.Key() == key {
			return sel, true
		}
	}
	return Selector{}, false
}

// HasFallback reports whether any fallback selector remains.
func (s Selectors) HasFallback() bool {
	for _, sel := range s {
		if sel.Fallback {
			return true
		}
	}
	return false
}

// DropLastFallback returns a copy without the most recently specified
// fallback selector, and false if there was none.
func (s Selectors) DropLastFallback() (Selectors, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].Fallback {
			out := make(Selectors, 0, len(s)-1)
			out = append(out, s[:i]...)
			out = append(out, s[i+1:]...)
			return out, true
		}
	}
	return s, false
}

// String renders the selectors in order.
func (s Selectors) String() string {
	parts := make([]string, len(s))
	for i, sel := range s {
		parts[i] = sel.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Match reports whether candidate satisfies every selector, fallback or not.
func Match(candidate Attributed, sels Selectors) bool {
	for _, sel := range sels {
		value, present := candidate.Attr(sel.Name)
		if sel.Constraint == nil || !sel.Constraint.Matches(value, present) {
			return false
		}
	}
	return true
}

// FindBest returns the first candidate matching sels. When nothing matches,
// the most recently specified fallback selector is dropped and the scan
// restarts from the first candidate, until a match is found or no fallback
// selectors remain.
func FindBest[T Attributed](candidates []T, sels Selectors) (T, bool) {
	var zero T
	if len(candidates) == 0 {
		return zero, false
	}
	for {
		for _, c := range candidates {
			if Match(c, sels) {
				return c, true
			}
		}
		next, dropped := sels.DropLastFallback()
		if !dropped {
			return zero, false
		}
		sels = next
	}
}

func equalValues(want, got any) bool {
	if wf, ok := toFloat(want); ok {
		if gf, ok := toFloat(got); ok {
			return wf == gf
		}
		return false
	}
	return reflect.DeepEqual(want, got)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func stringOf(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
