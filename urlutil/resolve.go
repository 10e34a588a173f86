// Package urlutil normalizes possibly-relative media references against a
// base location. Every other component funnels extracted references through
// Resolve; a resolution failure means the reference is dropped, never
// propagated.
package urlutil

import (
	"errors"
	"net/url"
	"strings"
)

// ErrUnresolvable is returned when a reference cannot be turned into a valid
// absolute URL. Callers treat it as "drop the reference".
var ErrUnresolvable = errors.New("reference cannot be resolved to an absolute URL")

// Resolve normalizes ref against base and returns an absolute, canonical URL.
//
// Well-formed absolute http(s) URLs are returned unchanged. data: URLs are
// returned unchanged. Protocol-relative references (//host/path) take the
// base's scheme. Document-relative paths are resolved against base.
func Resolve(ref string, base *url.URL) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrUnresolvable
	}

	if strings.HasPrefix(ref, "data:") {
		return ref, nil
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return "", ErrUnresolvable
	}

	// Absolute http(s) references pass through untouched.
	if parsed.IsAbs() {
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return "", ErrUnresolvable
		}
		if parsed.Host == "" {
			return "", ErrUnresolvable
		}
		return ref, nil
	}

	if base == nil {
		return "", ErrUnresolvable
	}

	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", ErrUnresolvable
	}
	if resolved.Host == "" {
		return "", ErrUnresolvable
	}
	return resolved.String(), nil
}

// ResolveString is Resolve with a string base. It fails if the base itself is
// not a valid absolute URL.
func ResolveString(ref, base string) (string, error) {
	parsedBase, err := url.Parse(base)
	if err != nil || !parsedBase.IsAbs() {
		return Resolve(ref, nil)
	}
	return Resolve(ref, parsedBase)
}

// Host returns the lowercased host component of rawURL, or "" when the URL
// cannot be parsed.
func Host(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
