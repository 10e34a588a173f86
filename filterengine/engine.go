// Package filterengine decides, per candidate item, whether it satisfies a
// caller-supplied rule set. Rule families are evaluated in a fixed order and
// the first failing family short-circuits the rest. Attributes that cannot be
// determined fail open: the family passes rather than rejecting the item.
package filterengine

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/pixsift/discovery/models"
	"github.com/pixsift/discovery/urlutil"
)

// Family identifies one rule family in evaluation order.
type Family string

const (
	FamilyURLPatterns Family = "urlPatterns"
	FamilyExtensions  Family = "extensions"
	FamilyMIMETypes   Family = "mimeTypes"
	FamilyFileSize    Family = "fileSize"
	FamilyDimensions  Family = "dimensions"
	FamilyCustomRegex Family = "customRegex"
	FamilyDomains     Family = "domains"
	FamilyCustom      Family = "customFunction"
)

// MetadataSource supplies remote metadata when an item lacks it. A nil source
// or a failed probe degrades to fail-open behavior.
type MetadataSource interface {
	Probe(ctx context.Context, rawURL string) (models.MediaMetadata, error)
}

// Config contains filter engine configuration.
type Config struct {
	CacheSize int // bounded decision-cache ceiling
}

// DefaultConfig returns default filter engine configuration.
func DefaultConfig() Config {
	return Config{CacheSize: 1000}
}

// Decision is the outcome of evaluating one item against one rule set.
// FailedFamily names the first family that rejected the item.
type Decision struct {
	Pass         bool
	FailedFamily Family
}

// Stats are aggregate evaluation counters, queryable and independently
// resettable from the cache.
type Stats struct {
	Evaluated        int64
	Passed           int64
	Failed           int64
	FailuresByFamily map[Family]int64
}

// Engine evaluates rule sets against items with a bounded decision cache.
// Safe for concurrent use.
type Engine struct {
	config Config
	meta   MetadataSource

	mu    sync.Mutex
	cache *resultCache
	stats Stats
}

// New creates an engine. meta may be nil, in which case the MIME, file-size
// and dimension families rely solely on item-attached metadata.
func New(config Config, meta MetadataSource) *Engine {
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultConfig().CacheSize
	}
	return &Engine{
		config: config,
		meta:   meta,
		cache:  newResultCache(config.CacheSize),
		stats:  Stats{FailuresByFamily: make(map[Family]int64)},
	}
}

// Evaluate decides whether item satisfies rules. Decisions for rule sets
// without a custom predicate are cached by (item URL, serialized rule set).
func (e *Engine) Evaluate(ctx context.Context, item models.CandidateItem, rules *RuleSet) Decision {
	if rules.Empty() {
		return Decision{Pass: true}
	}

	cacheable := rules.Custom == nil
	var key string
	if cacheable {
		key = itemURL(item) + "\n" + rules.fingerprint()
		e.mu.Lock()
		if d, ok := e.cache.get(key); ok {
			e.record(d)
			e.mu.Unlock()
			return d
		}
		e.mu.Unlock()
	}

	d := e.evaluate(ctx, item, rules)

	e.mu.Lock()
	e.record(d)
	if cacheable {
		e.cache.put(key, d)
	}
	e.mu.Unlock()
	return d
}

// Apply evaluates every item and returns the passing subset with filter
// metadata attached. A nil or empty rule set passes everything through
// untouched. A failing item never aborts the batch.
func (e *Engine) Apply(ctx context.Context, items []models.CandidateItem, rules *RuleSet) []models.CandidateItem {
	if rules.Empty() {
		return items
	}
	passed := make([]models.CandidateItem, 0, len(items))
	for _, item := range items {
		d := e.Evaluate(ctx, item, rules)
		if !d.Pass {
			continue
		}
		if item.FilterMetadata == nil {
			item.FilterMetadata = make(map[string]string)
		}
		item.FilterMetadata["filtered"] = "pass"
		passed = append(passed, item)
	}
	return passed
}

// Stats returns a copy of the aggregate counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := Stats{
		Evaluated:        e.stats.Evaluated,
		Passed:           e.stats.Passed,
		Failed:           e.stats.Failed,
		FailuresByFamily: make(map[Family]int64, len(e.stats.FailuresByFamily)),
	}
	for family, n := range e.stats.FailuresByFamily {
		out.FailuresByFamily[family] = n
	}
	return out
}

// ResetStats zeroes the counters without touching the cache.
func (e *Engine) ResetStats() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats = Stats{FailuresByFamily: make(map[Family]int64)}
}

// ClearCache drops all cached decisions without touching the counters.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache.clear()
}

// CacheLen reports the number of cached decisions.
func (e *Engine) CacheLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.len()
}

func (e *Engine) record(d Decision) {
	e.stats.Evaluated++
	if d.Pass {
		e.stats.Passed++
		return
	}
	e.stats.Failed++
	e.stats.FailuresByFamily[d.FailedFamily]++
}

// probeState memoizes at most one remote probe per evaluation, shared by the
// MIME, file-size and dimension families.
type probeState struct {
	done bool
	ok   bool
	meta models.MediaMetadata
}

func (e *Engine) probed(ctx context.Context, item models.CandidateItem, st *probeState) (models.MediaMetadata, bool) {
	if !st.done {
		st.done = true
		if e.meta == nil {
			return models.MediaMetadata{}, false
		}
		meta, err := e.meta.Probe(ctx, itemURL(item))
		if err != nil {
			log.Printf("filterengine: metadata probe failed for %s: %v", itemURL(item), err)
			return models.MediaMetadata{}, false
		}
		st.meta, st.ok = meta, true
	}
	return st.meta, st.ok
}

func (e *Engine) evaluate(ctx context.Context, item models.CandidateItem, rules *RuleSet) Decision {
	var probe probeState

	checks := []struct {
		family Family
		pass   func() bool
	}{
		{FamilyURLPatterns, func() bool { return passURLPatterns(item, rules.URLPatterns) }},
		{FamilyExtensions, func() bool { return passExtensions(item, rules.Extensions) }},
		{FamilyMIMETypes, func() bool { return e.passMIMETypes(ctx, item, rules.MIMETypes, &probe) }},
		{FamilyFileSize, func() bool { return e.passFileSize(ctx, item, rules.FileSize, &probe) }},
		{FamilyDimensions, func() bool { return e.passDimensions(ctx, item, rules.Dimensions, &probe) }},
		{FamilyCustomRegex, func() bool { return passCustomRegex(item, rules.CustomRegex) }},
		{FamilyDomains, func() bool { return passDomains(item, rules.Domains) }},
		{FamilyCustom, func() bool { return passCustom(item, rules.Custom) }},
	}
	for _, check := range checks {
		if !check.pass() {
			return Decision{Pass: false, FailedFamily: check.family}
		}
	}
	return Decision{Pass: true}
}

func passURLPatterns(item models.CandidateItem, directives []URLPattern) bool {
	if len(directives) == 0 {
		return true
	}
	target := itemURL(item)
	return firstMatchOutcome(len(directives),
		func(i int) bool { return directives[i].matches(target) },
		func(i int) bool { return directives[i].Include })
}

func passExtensions(item models.CandidateItem, directives []Extension) bool {
	if len(directives) == 0 {
		return true
	}
	target := strings.ToLower(urlPath(itemURL(item)))
	return firstMatchOutcome(len(directives),
		func(i int) bool { return strings.HasSuffix(target, strings.ToLower(directives[i].Value)) },
		func(i int) bool { return directives[i].Include })
}

func (e *Engine) passMIMETypes(ctx context.Context, item models.CandidateItem, directives []MIMEType, st *probeState) bool {
	if len(directives) == 0 {
		return true
	}
	mime := item.MimeType
	if mime == "" {
		mime = mimeByExtension(itemURL(item))
	}
	if mime == "" {
		if meta, ok := e.probed(ctx, item, st); ok {
			mime = meta.MimeType
		}
	}
	if mime == "" {
		// Undeterminable by any means: fail open.
		return true
	}
	return firstMatchOutcome(len(directives),
		func(i int) bool { return strings.HasPrefix(mime, directives[i].Prefix) },
		func(i int) bool { return directives[i].Include })
}

func (e *Engine) passFileSize(ctx context.Context, item models.CandidateItem, bounds *SizeBounds, st *probeState) bool {
	if bounds == nil || (bounds.Min <= 0 && bounds.Max <= 0) {
		return true
	}
	size := item.FileSizeBytes
	if size <= 0 {
		if meta, ok := e.probed(ctx, item, st); ok {
			size = meta.FileSizeBytes
		}
	}
	if size <= 0 {
		return true
	}
	if bounds.Min > 0 && size < bounds.Min {
		return false
	}
	if bounds.Max > 0 && size > bounds.Max {
		return false
	}
	return true
}

func (e *Engine) passDimensions(ctx context.Context, item models.CandidateItem, bounds *DimensionBounds, st *probeState) bool {
	if bounds == nil {
		return true
	}
	dims := item.Dimensions
	if dims == nil {
		if meta, ok := e.probed(ctx, item, st); ok {
			dims = meta.Dimensions
		}
	}
	if dims == nil {
		return true
	}
	if bounds.MinWidth > 0 && dims.Width < bounds.MinWidth {
		return false
	}
	if bounds.MaxWidth > 0 && dims.Width > bounds.MaxWidth {
		return false
	}
	if bounds.MinHeight > 0 && dims.Height < bounds.MinHeight {
		return false
	}
	if bounds.MaxHeight > 0 && dims.Height > bounds.MaxHeight {
		return false
	}
	return true
}

func passCustomRegex(item models.CandidateItem, rules []RegexRule) bool {
	if len(rules) == 0 {
		return true
	}
	return firstMatchOutcome(len(rules),
		func(i int) bool { return compiledMatch(rules[i].expr(), rules[i].target(item)) },
		func(i int) bool { return rules[i].isInclude() })
}

func passDomains(item models.CandidateItem, directives []Domain) bool {
	if len(directives) == 0 {
		return true
	}
	host := urlutil.Host(itemURL(item))
	if host == "" {
		// Invalid URL: fail open.
		return true
	}
	return firstMatchOutcome(len(directives),
		func(i int) bool { return strings.Contains(host, strings.ToLower(directives[i].Value)) },
		func(i int) bool { return directives[i].Include })
}

// passCustom runs the caller's predicate. An error or panic counts as a
// failing result for this family, not an aborted batch.
func passCustom(item models.CandidateItem, predicate Predicate) bool {
	if predicate == nil {
		return true
	}
	ok, err := callPredicate(item, predicate)
	if err != nil {
		log.Printf("filterengine: custom predicate failed for %s: %v", itemURL(item), err)
		return false
	}
	return ok
}

func callPredicate(item models.CandidateItem, predicate Predicate) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("predicate panic: %v", r)
		}
	}()
	return predicate(item)
}

// itemURL is the item's canonical URL for matching and cache keys.
func itemURL(item models.CandidateItem) string {
	if item.SourceURL != "" {
		return item.SourceURL
	}
	return item.FullSizeURL
}

// urlPath strips query and fragment so extension suffix matching sees only
// the path. Unparseable input is matched as-is.
func urlPath(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		return u.Path
	}
	return raw
}

// mimeByExtension infers a MIME type from the URL's file extension.
func mimeByExtension(rawURL string) string {
	path := strings.ToLower(urlPath(rawURL))
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return ""
	}
	return extensionMIMEs[path[idx:]]
}

var extensionMIMEs = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".svg":  "image/svg+xml",
	".avif": "image/avif",
	".ico":  "image/x-icon",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".mp4":  "video/mp4",
	".webm": "video/webm",
}
