package filterengine

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/pixsift/discovery/models"
)

// PatternKind selects how a URL pattern directive is interpreted.
type PatternKind string

const (
	PatternRegex    PatternKind = "regex"
	PatternWildcard PatternKind = "wildcard"
	PatternExact    PatternKind = "exact"
)

// URLPattern is one URL-matching directive. An empty Kind defaults to regex.
type URLPattern struct {
	Value   string      `json:"value"`
	Kind    PatternKind `json:"kind,omitempty"`
	Include bool        `json:"include"`
}

func (p URLPattern) matches(target string) bool {
	switch p.Kind {
	case PatternExact:
		return target == p.Value
	case PatternWildcard:
		return compiledMatch(wildcardToRegex(p.Value), target)
	case PatternRegex, "":
		return compiledMatch(p.Value, target)
	default:
		log.Printf("filterengine: unknown pattern kind %q, treating as non-matching", p.Kind)
		return false
	}
}

// wildcardToRegex maps * to .* and ? to . with everything else quoted.
func wildcardToRegex(pattern string) string {
	quoted := regexp.QuoteMeta(pattern)
	quoted = strings.ReplaceAll(quoted, `\*`, `.*`)
	return strings.ReplaceAll(quoted, `\?`, `.`)
}

// compiledMatch compiles expr on demand. An invalid expression is logged and
// treated as non-matching rather than aborting evaluation.
func compiledMatch(expr, target string) bool {
	re, err := regexp.Compile(expr)
	if err != nil {
		log.Printf("filterengine: invalid pattern %q: %v", expr, err)
		return false
	}
	return re.MatchString(target)
}

// Extension is one file-extension directive, matched by case-insensitive
// suffix against the URL path.
type Extension struct {
	Value   string `json:"value"`
	Include bool   `json:"include"`
}

// MIMEType is one MIME directive, matched by prefix so "image/" covers every
// image subtype.
type MIMEType struct {
	Prefix  string `json:"prefix"`
	Include bool   `json:"include"`
}

// SizeBounds bound the item's file size in bytes. Zero means unbounded.
type SizeBounds struct {
	Min int64 `json:"min,omitempty"`
	Max int64 `json:"max,omitempty"`
}

// DimensionBounds bound decoded pixel dimensions. Zero means unbounded.
type DimensionBounds struct {
	MinWidth  int `json:"min_width,omitempty"`
	MaxWidth  int `json:"max_width,omitempty"`
	MinHeight int `json:"min_height,omitempty"`
	MaxHeight int `json:"max_height,omitempty"`
}

// Domain is one host-substring directive.
type Domain struct {
	Value   string `json:"value"`
	Include bool   `json:"include"`
}

// RegexRule is one custom regular-expression directive bound to a specific
// item field. The concrete variants are URLRegexRule, TitleRegexRule and
// AltRegexRule; there is no field-name dispatch at evaluation time.
type RegexRule interface {
	target(item models.CandidateItem) string
	expr() string
	isInclude() bool
	tag() string
}

// URLRegexRule matches against the item's canonical URL.
type URLRegexRule struct {
	Pattern string `json:"pattern"`
	Include bool   `json:"include"`
}

func (r URLRegexRule) target(item models.CandidateItem) string { return itemURL(item) }
func (r URLRegexRule) expr() string                            { return r.Pattern }
func (r URLRegexRule) isInclude() bool                         { return r.Include }
func (r URLRegexRule) tag() string                             { return "url" }

// TitleRegexRule matches against the item's title text.
type TitleRegexRule struct {
	Pattern string `json:"pattern"`
	Include bool   `json:"include"`
}

func (r TitleRegexRule) target(item models.CandidateItem) string { return item.Title }
func (r TitleRegexRule) expr() string                            { return r.Pattern }
func (r TitleRegexRule) isInclude() bool                         { return r.Include }
func (r TitleRegexRule) tag() string                             { return "title" }

// AltRegexRule matches against the item's alt text.
type AltRegexRule struct {
	Pattern string `json:"pattern"`
	Include bool   `json:"include"`
}

func (r AltRegexRule) target(item models.CandidateItem) string { return item.AltText }
func (r AltRegexRule) expr() string                            { return r.Pattern }
func (r AltRegexRule) isInclude() bool                         { return r.Include }
func (r AltRegexRule) tag() string                             { return "alt" }

// Predicate is a caller-supplied check evaluated against the whole item.
type Predicate func(item models.CandidateItem) (bool, error)

// RuleSet is a caller-supplied filter configuration. It is read-only to the
// engine: supplied per evaluation call and never mutated.
type RuleSet struct {
	URLPatterns []URLPattern
	Extensions  []Extension
	MIMETypes   []MIMEType
	FileSize    *SizeBounds
	Dimensions  *DimensionBounds
	CustomRegex []RegexRule
	Domains     []Domain

	// Custom is evaluated last. Results involving a custom predicate are
	// never cached because the predicate cannot be serialized into a key.
	Custom Predicate
}

// Empty reports whether the rule set constrains nothing.
func (r *RuleSet) Empty() bool {
	return r == nil ||
		(len(r.URLPatterns) == 0 && len(r.Extensions) == 0 && len(r.MIMETypes) == 0 &&
			r.FileSize == nil && r.Dimensions == nil &&
			len(r.CustomRegex) == 0 && len(r.Domains) == 0 && r.Custom == nil)
}

// fingerprint serializes the rule set into a deterministic cache-key
// component. Directive order is significant and preserved.
func (r *RuleSet) fingerprint() string {
	var b strings.Builder
	for _, p := range r.URLPatterns {
		fmt.Fprintf(&b, "u:%s:%t:%s;", p.Kind, p.Include, p.Value)
	}
	for _, e := range r.Extensions {
		fmt.Fprintf(&b, "e:%t:%s;", e.Include, e.Value)
	}
	for _, m := range r.MIMETypes {
		fmt.Fprintf(&b, "m:%t:%s;", m.Include, m.Prefix)
	}
	if r.FileSize != nil {
		fmt.Fprintf(&b, "s:%d:%d;", r.FileSize.Min, r.FileSize.Max)
	}
	if r.Dimensions != nil {
		d := r.Dimensions
		fmt.Fprintf(&b, "d:%d:%d:%d:%d;", d.MinWidth, d.MaxWidth, d.MinHeight, d.MaxHeight)
	}
	for _, c := range r.CustomRegex {
		fmt.Fprintf(&b, "r:%s:%t:%s;", c.tag(), c.isInclude(), c.expr())
	}
	for _, d := range r.Domains {
		fmt.Fprintf(&b, "h:%t:%s;", d.Include, d.Value)
	}
	return b.String()
}

// firstMatchOutcome applies ordered include/exclude directive semantics: the
// first matching directive decides the outcome; with no match, the item fails
// only if at least one inclusion directive existed.
func firstMatchOutcome(count int, match func(int) bool, include func(int) bool) bool {
	sawInclude := false
	for i := 0; i < count; i++ {
		if match(i) {
			return include(i)
		}
		if include(i) {
			sawInclude = true
		}
	}
	return !sawInclude
}
