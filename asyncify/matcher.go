package asyncify

import (
	"strings"

	"github.com/moikas-code/script-sub002/asyncify/internal/engine"
)

// FunctionMatcher determines if a function is selected by name.
type FunctionMatcher = engine.FunctionMatcher

// FunctionNameMatcher matches functions by exact name.
type FunctionNameMatcher struct {
	names map[string]bool
}

// NewFunctionNameMatcher creates a matcher from a list of function names.
func NewFunctionNameMatcher(names []string) *FunctionNameMatcher {
	m := &FunctionNameMatcher{names: make(map[string]bool)}
	for _, n := range names {
		m.names[n] = true
	}
	return m
}

// MatchFunction returns true if the function name matches.
func (m *FunctionNameMatcher) MatchFunction(name string) bool {
	return m.names[name]
}

// FunctionPrefixMatcher matches functions by name prefix.
type FunctionPrefixMatcher struct {
	prefixes []string
}

// NewFunctionPrefixMatcher creates a matcher that matches functions starting with any prefix.
func NewFunctionPrefixMatcher(prefixes []string) *FunctionPrefixMatcher {
	return &FunctionPrefixMatcher{prefixes: prefixes}
}

// MatchFunction returns true if the function name starts with any prefix.
func (m *FunctionPrefixMatcher) MatchFunction(name string) bool {
	for _, p := range m.prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// WildcardMatcher matches dotted function names with wildcard support.
//
// Supports patterns like:
//   - "os.exit" - exact match
//   - "exit" - matches the last segment in any namespace, and the bare name
//   - "os.*" - matches every function in namespace os
//   - "*" - matches everything
type WildcardMatcher struct {
	exact      map[string]bool // exact "ns.name" matches
	names      map[string]bool // unqualified "name" matches
	namespaces map[string]bool // "ns.*" matches
	matchAll   bool            // "*" matches everything
}

// NewWildcardMatcher creates a matcher with wildcard support.
func NewWildcardMatcher(patterns []string) *WildcardMatcher {
	m := &WildcardMatcher{
		exact:      make(map[string]bool),
		names:      make(map[string]bool),
		namespaces: make(map[string]bool),
	}
	for _, p := range patterns {
		switch {
		case p == "*":
			m.matchAll = true
		case strings.HasSuffix(p, ".*"):
			m.namespaces[strings.TrimSuffix(p, ".*")] = true
		case strings.Contains(p, "."):
			m.exact[p] = true
		case p != "":
			m.names[p] = true
		}
	}
	return m
}

// MatchFunction returns true if the function name matches any pattern.
func (m *WildcardMatcher) MatchFunction(name string) bool {
	if m.matchAll || m.exact[name] {
		return true
	}
	ns, base := splitName(name)
	if ns != "" && m.namespaces[ns] {
		return true
	}
	return m.names[base]
}

// splitName splits "a.b.c" into namespace "a.b" and name "c".
func splitName(name string) (string, string) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// CompositeFunctionMatcher combines multiple function matchers.
type CompositeFunctionMatcher struct {
	matchers []FunctionMatcher
}

// NewCompositeFunctionMatcher creates a matcher that matches if any sub-matcher matches.
func NewCompositeFunctionMatcher(matchers ...FunctionMatcher) *CompositeFunctionMatcher {
	return &CompositeFunctionMatcher{matchers: matchers}
}

// MatchFunction returns true if any sub-matcher matches.
func (m *CompositeFunctionMatcher) MatchFunction(name string) bool {
	for _, matcher := range m.matchers {
		if matcher != nil && matcher.MatchFunction(name) {
			return true
		}
	}
	return false
}
