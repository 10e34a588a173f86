// Package slug derives URL-friendly names for archived media files.
package slug

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxLength = 100

var (
	nonAlphanumeric = regexp.MustCompile("[^a-z0-9-]+")
	repeatedHyphens = regexp.MustCompile("-+")
)

// Generate creates a URL-friendly slug from a string
func Generate(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ToLower(s)
	s = transliterate(s)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = nonAlphanumeric.ReplaceAllString(s, "")
	s = repeatedHyphens.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > maxLength {
		s = strings.TrimRight(s[:maxLength], "-")
	}
	return s
}

// transliterate converts unicode characters to ASCII equivalents by stripping
// combining marks after NFD decomposition.
func transliterate(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}

// MakeUnique appends a counter suffix to disambiguate colliding slugs.
func MakeUnique(slug string, counter int) string {
	if counter == 0 {
		return slug
	}
	return slug + "-" + strconv.Itoa(counter)
}

// FromMediaURL generates a slug from a media URL's filename, ignoring query
// parameters and the file extension.
func FromMediaURL(rawURL string) string {
	parts := strings.Split(rawURL, "/")
	if len(parts) == 0 {
		return ""
	}
	filename := parts[len(parts)-1]

	if idx := strings.IndexByte(filename, '?'); idx != -1 {
		filename = filename[:idx]
	}
	if idx := strings.LastIndexByte(filename, '.'); idx != -1 {
		filename = filename[:idx]
	}
	return Generate(filename)
}

// FromItem generates a slug for a discovered item: alt text first, then
// title, then the URL's filename.
func FromItem(altText, title, rawURL string) string {
	if s := Generate(altText); s != "" {
		return s
	}
	if s := Generate(title); s != "" {
		return s
	}
	return FromMediaURL(rawURL)
}
