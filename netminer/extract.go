package netminer

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Extraction patterns applied to HTML/text bodies: plain <img> tags, CSS
// background images, and JSON-ish fragments embedded in markup or scripts.
var (
	imgTagPattern     = regexp.MustCompile(`(?i)<img[^>]+src\s*=\s*["']?([^"'\s>]+)`)
	cssURLPattern     = regexp.MustCompile(`(?i)background-image\s*:\s*url\(\s*["']?([^"')]+?)["']?\s*\)`)
	jsonImagePattern  = regexp.MustCompile(`(?i)"(?:image|thumb|thumbnail)"\s*:\s*"([^"]+)"`)
	jsonURLPattern    = regexp.MustCompile(`(?i)"url"\s*:\s*"([^"]+\.(?:jpe?g|png|gif|webp|bmp|avif|svg))"`)
	imageExtPattern   = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|webp|bmp|avif|svg)(\?[^#]*)?(#.*)?$`)
	imageParamPattern = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|webp|bmp|avif|svg)[?&]`)
)

// looksLikeImageURL is the image-extension heuristic applied to candidate
// string values.
func looksLikeImageURL(s string) bool {
	if strings.HasPrefix(s, "data:image/") {
		return true
	}
	if !strings.Contains(s, "/") {
		return false
	}
	return imageExtPattern.MatchString(s) || imageParamPattern.MatchString(s)
}

// extractReferences mines a response body for media references. JSON bodies
// are parsed and walked recursively; HTML/text bodies go through the fixed
// pattern set. A malformed body yields nothing; the response is skipped
// rather than failing the session.
func extractReferences(body []byte, contentType string) []string {
	ct := strings.ToLower(contentType)

	if strings.Contains(ct, "json") || looksLikeJSON(body) {
		refs := extractFromJSON(body)
		if refs != nil {
			return refs
		}
		// Fall through to text patterns when the body is not valid JSON
		// despite its content type.
	}
	return extractFromText(string(body))
}

func looksLikeJSON(body []byte) bool {
	trimmed := strings.TrimLeft(string(body), " \t\r\n")
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

// extractFromJSON walks the parsed object graph collecting string values
// that pass the image heuristic. Returns nil when the body is not valid JSON.
func extractFromJSON(body []byte) []string {
	var root interface{}
	if err := json.Unmarshal(body, &root); err != nil {
		return nil
	}

	refs := []string{}
	seen := make(map[string]struct{})
	var walk func(v interface{})
	walk = func(v interface{}) {
		switch val := v.(type) {
		case string:
			if looksLikeImageURL(val) {
				if _, dup := seen[val]; !dup {
					seen[val] = struct{}{}
					refs = append(refs, val)
				}
			}
		case map[string]interface{}:
			for _, child := range val {
				walk(child)
			}
		case []interface{}:
			for _, child := range val {
				walk(child)
			}
		}
	}
	walk(root)
	return refs
}

// extractFromText applies the fixed HTML/CSS/JSON-fragment pattern set.
func extractFromText(body string) []string {
	var refs []string
	seen := make(map[string]struct{})

	collect := func(matches [][]string) {
		for _, match := range matches {
			ref := strings.TrimSpace(match[1])
			if ref == "" {
				continue
			}
			if _, dup := seen[ref]; dup {
				continue
			}
			seen[ref] = struct{}{}
			refs = append(refs, ref)
		}
	}

	collect(imgTagPattern.FindAllStringSubmatch(body, -1))
	collect(cssURLPattern.FindAllStringSubmatch(body, -1))
	collect(jsonImagePattern.FindAllStringSubmatch(body, -1))
	collect(jsonURLPattern.FindAllStringSubmatch(body, -1))

	return refs
}
