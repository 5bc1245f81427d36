package urls

import (
	"net/url"
	"strings"
)

// RuleKind selects how an exclusion pattern is compared against a URL
type RuleKind int

const (
	// RulePrefix matches when the URL (or its path, for patterns starting with "/") starts with the pattern
	RulePrefix RuleKind = iota
	// RuleWildcard matches when the "*"-separated parts of the pattern occur in order
	RuleWildcard
)

// Rule is one parsed exclusion pattern
type Rule struct {
	Kind    RuleKind
	Pattern string
	parts   []string
}

// ParseRule turns a configured pattern into a Rule.
// "https://site.com/sponsored" and "/sponsored" are prefix rules, "*/video/*" is a wildcard rule.
// Patterns starting with "/" are compared against the URL path only.
func ParseRule(pattern string) Rule {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if !strings.Contains(pattern, "*") {
		return Rule{Kind: RulePrefix, Pattern: pattern}
	}
	return Rule{Kind: RuleWildcard, Pattern: pattern, parts: strings.Split(pattern, "*")}
}

// Match reports whether the absolute URL matches the rule
func (r Rule) Match(u *url.URL) bool {
	if r.Pattern == "" {
		return false
	}
	target := strings.ToLower(u.String())
	if strings.HasPrefix(r.Pattern, "/") {
		target = strings.ToLower(u.EscapedPath())
	}

	switch r.Kind {
	case RulePrefix:
		return strings.HasPrefix(target, r.Pattern)
	case RuleWildcard:
		return matchParts(target, r.parts)
	}
	return false
}

// matchParts is a glob match where "*" spans any run of characters.
// parts always has at least two elements because the pattern contains "*".
func matchParts(s string, parts []string) bool {
	first, last := parts[0], parts[len(parts)-1]
	if !strings.HasPrefix(s, first) {
		return false
	}
	s = s[len(first):]
	for _, middle := range parts[1 : len(parts)-1] {
		idx := strings.Index(s, middle)
		if idx < 0 {
			return false
		}
		s = s[idx+len(middle):]
	}
	return strings.HasSuffix(s, last)
}

// RuleSet is an ordered collection of exclusion rules evaluated once per URL
type RuleSet struct {
	rules []Rule
}

// NewRuleSet parses every pattern
func NewRuleSet(patterns ...string) *RuleSet {
	rs := &RuleSet{rules: make([]Rule, 0, len(patterns))}
	for _, p := range patterns {
		if r := ParseRule(p); r.Pattern != "" {
			rs.rules = append(rs.rules, r)
		}
	}
	return rs
}

// Match reports whether any rule matches
func (rs *RuleSet) Match(u *url.URL) bool {
	if rs == nil {
		return false
	}
	for _, r := range rs.rules {
		if r.Match(u) {
			return true
		}
	}
	return false
}

// Len returns the number of rules
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}
