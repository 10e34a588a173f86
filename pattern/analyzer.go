// Package pattern infers which repeating structural pattern in a rendered
// document constitutes "the gallery". Visible images are grouped by the
// structural signature of their nearest gallery-like ancestor; the
// highest-scoring cluster wins and yields one candidate item per container.
package pattern

import (
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/pixsift/discovery/models"
	"github.com/pixsift/discovery/urlutil"
)

// Config contains analyzer configuration.
type Config struct {
	GalleryClassHints []string // ancestor class-name fragments marking a likely gallery cell
	GenericAncestors  []string // block tags accepted when no class hint matches
	MinClusterSize    int      // clusters below this size never win
	MinScore          float64  // "no pattern found" below this score
	AlignTolerance    float64  // grid-alignment edge tolerance, document units
}

// DefaultConfig returns default analyzer configuration.
func DefaultConfig() Config {
	return Config{
		GalleryClassHints: []string{"gallery", "grid", "item", "card", "photo"},
		GenericAncestors:  []string{"div", "article", "section", "li"},
		MinClusterSize:    3,
		MinScore:          100,
		AlignTolerance:    20,
	}
}

// Fallback mode always reports this fixed confidence.
const fallbackConfidence = 0.3

// Winning-cluster confidence is score scaled against this divisor, capped at 1.
const confidenceDivisor = 200.0

// Result is the outcome of one analysis pass.
type Result struct {
	Items      []models.CandidateItem
	Confidence float64
	Method     string
	Score      float64
}

// Analyzer clusters visual containers by structural signature. Instances are
// stateless across passes; clusters are created fresh per call and discarded.
type Analyzer struct {
	config Config
	layout Layout
}

// New creates an analyzer using the supplied layout source.
func New(config Config, layout Layout) *Analyzer {
	if config.MinClusterSize <= 0 {
		config.MinClusterSize = DefaultConfig().MinClusterSize
	}
	if config.MinScore <= 0 {
		config.MinScore = DefaultConfig().MinScore
	}
	if config.AlignTolerance <= 0 {
		config.AlignTolerance = DefaultConfig().AlignTolerance
	}
	if len(config.GalleryClassHints) == 0 {
		config.GalleryClassHints = DefaultConfig().GalleryClassHints
	}
	if len(config.GenericAncestors) == 0 {
		config.GenericAncestors = DefaultConfig().GenericAncestors
	}
	if layout == nil {
		layout = AttributeLayout{}
	}
	return &Analyzer{config: config, layout: layout}
}

// Analyze runs one pass over doc. It never panics outward: any traversal
// failure degrades to an empty result with confidence 0.
func (a *Analyzer) Analyze(doc *goquery.Document, base *url.URL) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("pattern: analysis failed: %v", r)
			result = &Result{Items: []models.CandidateItem{}, Confidence: 0, Method: "none"}
		}
	}()

	images := a.visibleImages(doc)
	if len(images) == 0 {
		return &Result{Items: []models.CandidateItem{}, Confidence: 0, Method: "none"}
	}

	best := a.bestCluster(images)
	if best == nil || best.score < a.config.MinScore {
		return a.fallback(images, base)
	}

	items := make([]models.CandidateItem, 0, len(best.containers))
	for _, c := range best.containers {
		if item, ok := a.itemFromContainer(c, base); ok {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return a.fallback(images, base)
	}

	confidence := best.score / confidenceDivisor
	if confidence > 1 {
		confidence = 1
	}
	return &Result{
		Items:      items,
		Confidence: confidence,
		Method:     models.MethodPatternAnalysis,
		Score:      best.score,
	}
}

// visibleImages enumerates rendered <img> elements carrying a source.
func (a *Analyzer) visibleImages(doc *goquery.Document) []*html.Node {
	var images []*html.Node
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		if imageSource(n) == "" {
			return
		}
		if !a.layout.Visible(n) {
			return
		}
		images = append(images, n)
	})
	return images
}

// bestCluster groups each image's container by signature and returns the
// highest-scoring cluster of at least MinClusterSize containers. Ties keep
// the earliest-discovered signature.
func (a *Analyzer) bestCluster(images []*html.Node) *cluster {
	clusters := make(map[string]*cluster)
	var order []*cluster
	seen := make(map[*html.Node]bool)

	for _, img := range images {
		ancestor := a.findContainer(img)
		if ancestor == nil || seen[ancestor] {
			continue
		}
		seen[ancestor] = true

		c := a.describeContainer(ancestor)
		sig := signatureOf(c)

		cl, ok := clusters[sig]
		if !ok {
			cl = &cluster{
				signature: sig,
				tagName:   ancestor.Data,
				classes:   classList(ancestor),
				hasAnchor: c.hasAnchor,
				imgCount:  c.imgCount,
				firstSeen: len(order),
			}
			clusters[sig] = cl
			order = append(order, cl)
		}
		cl.append(c, a.config.AlignTolerance)
	}

	var best *cluster
	for _, cl := range order {
		if len(cl.containers) < a.config.MinClusterSize {
			continue
		}
		if best == nil || cl.score > best.score {
			best = cl
		}
	}
	return best
}

// findContainer locates the image's nearest gallery-like ancestor, falling
// back to the nearest generic block ancestor. Images with neither are
// excluded from clustering.
func (a *Analyzer) findContainer(img *html.Node) *html.Node {
	for n := img.Parent; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if classesContainAny(classList(n), a.config.GalleryClassHints...) {
			return n
		}
	}
	for n := img.Parent; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		for _, tag := range a.config.GenericAncestors {
			if n.Data == tag {
				return n
			}
		}
	}
	return nil
}

func (a *Analyzer) describeContainer(n *html.Node) container {
	sel := nodeSelection(n)
	geo, hasGeo := a.layout.Geometry(n)
	return container{
		node:      n,
		geo:       geo,
		hasGeo:    hasGeo,
		hasAnchor: sel.Find("a").Length() > 0,
		imgCount:  sel.Find("img").Length(),
	}
}

// itemFromContainer emits one candidate per container: the primary image's
// source, the first anchor target as the full-size URL, and a structural
// locator for diagnostics. Items whose source fails resolution are dropped.
func (a *Analyzer) itemFromContainer(c container, base *url.URL) (models.CandidateItem, bool) {
	sel := nodeSelection(c.node)

	img := sel.Find("img").First()
	if img.Length() == 0 {
		return models.CandidateItem{}, false
	}
	src := imageSource(img.Get(0))
	resolved, err := urlutil.Resolve(src, base)
	if err != nil {
		return models.CandidateItem{}, false
	}

	item := models.CandidateItem{
		SourceURL:     resolved,
		ThumbnailURL:  resolved,
		AltText:       strings.TrimSpace(attrValue(img.Get(0), "alt")),
		Title:         strings.TrimSpace(attrValue(img.Get(0), "title")),
		ContainerPath: locatorFor(c.node),
		PatternID:     models.MethodPatternAnalysis,
	}

	if anchor := sel.Find("a[href]").First(); anchor.Length() > 0 {
		if full, err := urlutil.Resolve(attrValue(anchor.Get(0), "href"), base); err == nil {
			item.FullSizeURL = full
		}
	}
	return item, true
}

// fallback emits one low-confidence item per visible image on the page.
func (a *Analyzer) fallback(images []*html.Node, base *url.URL) *Result {
	items := make([]models.CandidateItem, 0, len(images))
	for _, img := range images {
		resolved, err := urlutil.Resolve(imageSource(img), base)
		if err != nil {
			continue
		}
		item := models.CandidateItem{
			SourceURL:     resolved,
			ThumbnailURL:  resolved,
			AltText:       strings.TrimSpace(attrValue(img, "alt")),
			Title:         strings.TrimSpace(attrValue(img, "title")),
			ContainerPath: locatorFor(img),
			PatternID:     models.MethodFallback,
			FullSizeURL:   resolved,
		}
		if anchor := enclosingAnchor(img); anchor != nil {
			if full, err := urlutil.Resolve(attrValue(anchor, "href"), base); err == nil {
				item.FullSizeURL = full
			}
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return &Result{Items: []models.CandidateItem{}, Confidence: 0, Method: "none"}
	}
	return &Result{Items: items, Confidence: fallbackConfidence, Method: models.MethodFallback}
}

func enclosingAnchor(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "a" && attrValue(p, "href") != "" {
			return p
		}
	}
	return nil
}

// imageSource reads the element's source, preferring src over the common
// lazy-loading attributes.
func imageSource(n *html.Node) string {
	for _, key := range []string{"src", "data-src", "data-original", "data-lazy-src"} {
		if v := strings.TrimSpace(attrValue(n, key)); v != "" {
			return v
		}
	}
	return ""
}

// nodeSelection wraps an element node for descendant queries.
func nodeSelection(n *html.Node) *goquery.Selection {
	return goquery.NewDocumentFromNode(n).Selection
}

// locatorFor builds a CSS-path-style structural locator for diagnostics.
func locatorFor(n *html.Node) string {
	var segments []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		seg := cur.Data
		if classes := classList(cur); len(classes) > 0 {
			seg += "." + classes[0]
		}
		if idx := siblingIndex(cur); idx > 1 {
			seg += fmt.Sprintf(":nth-of-type(%d)", idx)
		}
		segments = append([]string{seg}, segments...)
		if cur.Data == "html" {
			break
		}
	}
	return strings.Join(segments, " > ")
}

// siblingIndex is the element's 1-based position among same-tag siblings.
func siblingIndex(n *html.Node) int {
	idx := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && sib.Data == n.Data {
			idx++
		}
	}
	return idx
}
