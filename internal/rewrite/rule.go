// Package rewrite defines the string transformations applied to source
// paths recorded in debug symbols. A Rule is a pure function from path to
// path; the patcher applies it exactly once to every recorded path.
package rewrite

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule transforms a recorded source path. Apply must be free of side
// effects; it is called once per distinct recorded path.
type Rule interface {
	Apply(path string) string
	String() string
}

// Func wraps an arbitrary transformation function as a Rule.
// The name is used for logging only.
func Func(name string, fn func(string) string) Rule {
	return &funcRule{name: name, fn: fn}
}

type funcRule struct {
	name string
	fn   func(string) string
}

func (r *funcRule) Apply(path string) string { return r.fn(path) }
func (r *funcRule) String() string           { return r.name }

// NewRegexpRule returns a Rule that replaces every match of pattern with
// replacement, with the usual $1-style group expansion.
func NewRegexpRule(pattern, replacement string) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return &regexpRule{re: re, replacement: replacement}, nil
}

type regexpRule struct {
	re          *regexp.Regexp
	replacement string
}

func (r *regexpRule) Apply(path string) string {
	return r.re.ReplaceAllString(path, r.replacement)
}

func (r *regexpRule) String() string {
	return fmt.Sprintf("s/%s/%s/", r.re.String(), r.replacement)
}

// NewLiteralRule returns a Rule that substitutes the literal prefix from
// with to, the way debugger substitute-path mappings work. Paths that do
// not start with from pass through unchanged.
func NewLiteralRule(from, to string) (Rule, error) {
	if from == "" {
		return nil, fmt.Errorf("literal rule needs a non-empty source prefix")
	}
	return &literalRule{from: from, to: to}, nil
}

type literalRule struct {
	from, to string
}

func (r *literalRule) Apply(path string) string {
	if strings.HasPrefix(path, r.from) {
		return r.to + path[len(r.from):]
	}
	return path
}

func (r *literalRule) String() string {
	return r.from + " => " + r.to
}

// Chain combines rules; the first rule that changes a path wins, so later
// rules never see an already-rewritten path.
func Chain(rules ...Rule) Rule {
	if len(rules) == 1 {
		return rules[0]
	}
	return chainRule(rules)
}

type chainRule []Rule

func (c chainRule) Apply(path string) string {
	for _, r := range c {
		if out := r.Apply(path); out != path {
			return out
		}
	}
	return path
}

func (c chainRule) String() string {
	parts := make([]string, len(c))
	for i, r := range c {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}
