// Package discovery coordinates the content discovery pipeline: structural
// pattern analysis of a rendered page merged with network traffic mining,
// optionally filtered and deduplicated by perceptual hash.
package discovery

import (
	"context"
	"log"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pixsift/discovery/filterengine"
	"github.com/pixsift/discovery/models"
	"github.com/pixsift/discovery/netminer"
	"github.com/pixsift/discovery/pattern"
	"github.com/pixsift/discovery/phash"
	"github.com/pixsift/discovery/probe"
)

// Options tune a single discovery pass.
type Options struct {
	// Rules, when non-empty, filters the merged candidate list.
	Rules *filterengine.RuleSet
	// DedupeByHash fetches each candidate's pixels and drops exact
	// perceptual-hash duplicates. Requires a prober.
	DedupeByHash bool
	// HashOptions configure the dedup pass. Zero value means defaults.
	HashOptions phash.Options
}

// Coordinator owns the merged candidate list for the duration of one
// discovery pass. Collaborators are injected at construction; the analyzer is
// required, the rest are optional.
type Coordinator struct {
	analyzer *pattern.Analyzer
	miner    *netminer.Miner
	engine   *filterengine.Engine
	prober   *probe.Prober
	fetcher  *Fetcher
}

// NewCoordinator wires a coordinator. miner, engine, prober and fetcher may
// each be nil, disabling the corresponding stage.
func NewCoordinator(analyzer *pattern.Analyzer, miner *netminer.Miner, engine *filterengine.Engine, prober *probe.Prober, fetcher *Fetcher) *Coordinator {
	if analyzer == nil {
		analyzer = pattern.New(pattern.DefaultConfig(), nil)
	}
	return &Coordinator{
		analyzer: analyzer,
		miner:    miner,
		engine:   engine,
		prober:   prober,
		fetcher:  fetcher,
	}
}

// Discover runs one pass over an already-parsed document. It always returns a
// result: total failure degrades to confidence 0 with an empty item list.
func (c *Coordinator) Discover(ctx context.Context, doc *goquery.Document, base *url.URL, opts Options) *models.DiscoveryResult {
	analyzed := c.analyzer.Analyze(doc, base)

	items := analyzed.Items
	method := analyzed.Method

	if merged, added := c.mergeNetworkURLs(items); added > 0 {
		items = merged
		method = models.MethodEnhanced
	}

	if c.engine != nil && !opts.Rules.Empty() {
		items = c.engine.Apply(ctx, items, opts.Rules)
	}

	if opts.DedupeByHash {
		items = c.dedupeByHash(ctx, items, opts.HashOptions)
	}

	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.New().String()
		}
	}

	result := &models.DiscoveryResult{
		Items:      items,
		Confidence: analyzed.Confidence,
		Method:     method,
	}
	if c.miner != nil {
		result.Stats = c.miner.Stats()
	}
	return result
}

// DiscoverURL fetches targetURL and runs a discovery pass over it. The page
// exchange itself is offered to the miner so API-like documents feed both
// paths. Requires a fetcher.
func (c *Coordinator) DiscoverURL(ctx context.Context, targetURL string, opts Options) (*models.DiscoveryResult, error) {
	ctx, span := otel.Tracer("discovery").Start(ctx, "discovery.run")
	defer span.End()
	span.SetAttributes(attribute.String("discovery.url", targetURL))

	page, err := c.fetcher.Fetch(ctx, targetURL)
	if err != nil {
		return nil, err
	}

	if c.miner != nil {
		c.miner.Observe(netminer.Exchange{
			RequestURL:  page.URL.String(),
			Method:      "GET",
			StatusCode:  page.StatusCode,
			ContentType: page.ContentType,
			Body:        page.Body,
		})
	}

	return c.Discover(ctx, page.Document, page.URL, opts), nil
}

// mergeNetworkURLs appends miner-discovered URLs not already covered by the
// analyzer's items. Analyzer items keep their richer metadata; network-only
// URLs become minimal items.
func (c *Coordinator) mergeNetworkURLs(items []models.CandidateItem) ([]models.CandidateItem, int) {
	if c.miner == nil {
		return items, 0
	}

	seen := make(map[string]bool, len(items)*2)
	for _, item := range items {
		if item.SourceURL != "" {
			seen[item.SourceURL] = true
		}
		if item.FullSizeURL != "" {
			seen[item.FullSizeURL] = true
		}
	}

	added := 0
	for _, rawURL := range c.miner.DiscoveredURLs() {
		if seen[rawURL] {
			continue
		}
		seen[rawURL] = true
		items = append(items, models.CandidateItem{
			SourceURL:    rawURL,
			ThumbnailURL: rawURL,
			FullSizeURL:  rawURL,
			PatternID:    models.MethodNetworkInterceptor,
		})
		added++
	}
	return items, added
}

// dedupeByHash drops exact perceptual-hash duplicates. Items whose pixels
// cannot be fetched or hashed are kept as-is.
func (c *Coordinator) dedupeByHash(ctx context.Context, items []models.CandidateItem, opts phash.Options) []models.CandidateItem {
	if c.prober == nil {
		return items
	}
	if opts.Algorithm == "" {
		opts = phash.DefaultOptions()
	}

	seen := make(map[string]bool)
	out := make([]models.CandidateItem, 0, len(items))
	for _, item := range items {
		img, _, err := c.prober.FetchImage(ctx, item.SourceURL)
		if err != nil {
			out = append(out, item)
			continue
		}
		hash, err := phash.Hash(img, opts)
		if err != nil {
			log.Printf("discovery: hashing %s failed: %v", item.SourceURL, err)
			out = append(out, item)
			continue
		}
		if seen[hash] {
			continue
		}
		seen[hash] = true
		item.PerceptualHash = hash
		out = append(out, item)
	}
	return out
}
