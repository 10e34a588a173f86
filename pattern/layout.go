package pattern

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Geometry is an element's rendered bounding box in document coordinates.
type Geometry struct {
	Top    float64
	Left   float64
	Width  float64
	Height float64
}

// Layout supplies per-element geometry and visibility. The live browser
// layout is an external collaborator; hosts embedding a real renderer
// implement this interface, while AttributeLayout serves server-side
// documents and tests from declared attributes alone.
type Layout interface {
	// Geometry returns the element's bounding box. ok is false when the
	// layout has no position information for the element.
	Geometry(n *html.Node) (geo Geometry, ok bool)
	// Visible reports whether the element is rendered.
	Visible(n *html.Node) bool
}

// AttributeLayout derives geometry from width/height attributes and inline
// style declarations (top, left, width, height). An element counts as
// positioned only when both top and left are declared; declared dimensions
// alone say nothing about placement. Elements without declared dimensions are
// assumed visible unless explicitly hidden, since static markup rarely
// carries full geometry.
type AttributeLayout struct {
	// ViewportWidth/ViewportHeight bound the visible region when non-zero:
	// elements positioned past the viewport's leading edges are invisible.
	ViewportWidth  float64
	ViewportHeight float64
}

func (l AttributeLayout) Geometry(n *html.Node) (Geometry, bool) {
	style := parseStyle(attrValue(n, "style"))

	top, hasTop := styleLength(style, "top")
	left, hasLeft := styleLength(style, "left")
	if !hasTop || !hasLeft {
		return Geometry{}, false
	}

	geo := Geometry{Top: top, Left: left}
	if v, ok := declaredLength(n, style, "width"); ok {
		geo.Width = v
	}
	if v, ok := declaredLength(n, style, "height"); ok {
		geo.Height = v
	}
	return geo, true
}

func (l AttributeLayout) Visible(n *html.Node) bool {
	if attrValue(n, "hidden") != "" || hasAttr(n, "hidden") {
		return false
	}

	style := parseStyle(attrValue(n, "style"))
	if style["display"] == "none" || style["visibility"] == "hidden" {
		return false
	}

	if w, ok := declaredLength(n, style, "width"); ok && w <= 0 {
		return false
	}
	if h, ok := declaredLength(n, style, "height"); ok && h <= 0 {
		return false
	}

	if l.ViewportWidth > 0 {
		if left, ok := styleLength(style, "left"); ok && left >= l.ViewportWidth {
			return false
		}
	}
	if l.ViewportHeight > 0 {
		if top, ok := styleLength(style, "top"); ok && top >= l.ViewportHeight {
			return false
		}
	}
	return true
}

// declaredLength prefers the inline style over the HTML attribute.
func declaredLength(n *html.Node, style map[string]string, key string) (float64, bool) {
	if v, ok := styleLength(style, key); ok {
		return v, true
	}
	if raw := attrValue(n, key); raw != "" {
		if v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "px"), 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

func styleLength(style map[string]string, key string) (float64, bool) {
	raw, ok := style[key]
	if !ok {
		return 0, false
	}
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "px")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseStyle splits an inline style attribute into declarations.
func parseStyle(style string) map[string]string {
	decls := make(map[string]string)
	for _, part := range strings.Split(style, ";") {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		decls[strings.ToLower(strings.TrimSpace(key))] = strings.ToLower(strings.TrimSpace(value))
	}
	return decls
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}

func classList(n *html.Node) []string {
	return strings.Fields(attrValue(n, "class"))
}
