// Package netminer passively observes request/response exchanges during a
// monitoring session and mines response bodies for embedded media references.
// Nothing is ever re-fetched; the host environment hands completed exchanges
// to Observe via the explicit hook interface.
package netminer

import (
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/pixsift/discovery/models"
	"github.com/pixsift/discovery/urlutil"
)

// Config contains miner configuration.
type Config struct {
	APIPatterns  []string // path/content substrings marking a request as API-like
	MaxBodyBytes int64    // response bodies larger than this are skipped entirely
}

// DefaultConfig returns default miner configuration.
func DefaultConfig() Config {
	return Config{
		APIPatterns:  []string{"/api/", "graphql", "/gallery", "/media", "/photos", "image"},
		MaxBodyBytes: 1 << 20, // 1 MiB
	}
}

// Exchange is one completed request/response pair as reported by the host
// transport hook.
type Exchange struct {
	RequestURL  string
	Method      string
	StatusCode  int
	ContentType string
	Body        []byte
}

// FoundEvent is delivered once per response that yields new media references.
type FoundEvent struct {
	URLs              []string
	SourceResponseURL string
}

// Miner accumulates a session-scoped set of discovered media URLs. The set
// and the callback registration are owned exclusively by the miner instance.
type Miner struct {
	config Config

	mu         sync.Mutex
	active     bool
	discovered map[string]struct{}
	order      []string
	stats      models.MinerStats
	onFound    func(FoundEvent)
}

// New creates a miner. Monitoring starts stopped.
func New(config Config) *Miner {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if len(config.APIPatterns) == 0 {
		config.APIPatterns = DefaultConfig().APIPatterns
	}
	return &Miner{
		config:     config,
		discovered: make(map[string]struct{}),
	}
}

// Start begins the monitoring session. Starting twice is a no-op.
func (m *Miner) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = true
}

// Stop ends the monitoring session. Stopping while inactive is a no-op; an
// exchange already being processed still completes.
func (m *Miner) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
}

// Active reports whether a monitoring session is running.
func (m *Miner) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// OnImagesFound registers the observer callback. At most one callback is
// held; registering again replaces the previous one. Callers needing several
// subscribers must compose their own dispatcher.
func (m *Miner) OnImagesFound(fn func(FoundEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFound = fn
}

// Observe processes one completed exchange. It is safe for concurrent use.
func (m *Miner) Observe(ex Exchange) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.stats.RequestsObserved++

	if !m.isAPILike(ex) {
		m.mu.Unlock()
		return
	}
	m.stats.APIRequests++

	if ex.StatusCode < 200 || ex.StatusCode >= 300 {
		m.mu.Unlock()
		return
	}
	if int64(len(ex.Body)) > m.config.MaxBodyBytes {
		// Oversized bodies are never parsed to bound worst-case latency.
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	refs := extractReferences(ex.Body, ex.ContentType)
	if len(refs) == 0 {
		return
	}

	base, err := url.Parse(ex.RequestURL)
	if err != nil || !base.IsAbs() {
		base = nil
	}

	m.mu.Lock()
	var added []string
	for _, ref := range refs {
		resolved, err := urlutil.Resolve(ref, base)
		if err != nil {
			continue
		}
		if _, seen := m.discovered[resolved]; seen {
			continue
		}
		m.discovered[resolved] = struct{}{}
		m.order = append(m.order, resolved)
		added = append(added, resolved)
	}

	var fn func(FoundEvent)
	if len(added) > 0 {
		m.stats.ResponsesWithMedia++
		m.stats.URLsExtracted += int64(len(added))
		fn = m.onFound
	}
	m.mu.Unlock()

	if fn != nil {
		log.Printf("netminer: %d new media URLs from %s", len(added), ex.RequestURL)
		fn(FoundEvent{URLs: added, SourceResponseURL: ex.RequestURL})
	}
}

// DiscoveredURLs returns the session's discovered set in insertion order.
func (m *Miner) DiscoveredURLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Stats returns the running counters. Counters accumulate for the session
// and are never reset automatically.
func (m *Miner) Stats() models.MinerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Reset clears the discovered-URL set.
func (m *Miner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discovered = make(map[string]struct{})
	m.order = nil
}

// isAPILike reports whether the exchange matches any configured API pattern
// against the request path or the response content type.
func (m *Miner) isAPILike(ex Exchange) bool {
	haystack := strings.ToLower(ex.RequestURL)
	if parsed, err := url.Parse(ex.RequestURL); err == nil {
		haystack = strings.ToLower(parsed.Path)
	}
	contentType := strings.ToLower(ex.ContentType)

	for _, pattern := range m.config.APIPatterns {
		p := strings.ToLower(pattern)
		if strings.Contains(haystack, p) || strings.Contains(contentType, p) {
			return true
		}
	}
	return false
}
