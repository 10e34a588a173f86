package discovery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// FetcherConfig contains page fetcher configuration.
type FetcherConfig struct {
	HTTPTimeout  time.Duration
	MaxBodyBytes int64
	UserAgent    string
}

// DefaultFetcherConfig returns default page fetcher configuration.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		HTTPTimeout:  30 * time.Second,
		MaxBodyBytes: 10 * 1024 * 1024,
		UserAgent:    "Mozilla/5.0 (compatible; pixsift-discovery/1.0)",
	}
}

// FetchedPage is one downloaded and parsed document.
type FetchedPage struct {
	URL         *url.URL
	StatusCode  int
	ContentType string
	Body        []byte
	Document    *goquery.Document
}

// Fetcher downloads and parses target pages.
type Fetcher struct {
	config FetcherConfig
	client *http.Client
}

// NewFetcher creates a page fetcher. A nil client gets a default one with an
// instrumented transport.
func NewFetcher(config FetcherConfig, client *http.Client) *Fetcher {
	def := DefaultFetcherConfig()
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = def.HTTPTimeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = def.MaxBodyBytes
	}
	if config.UserAgent == "" {
		config.UserAgent = def.UserAgent
	}
	if client == nil {
		client = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   config.HTTPTimeout,
		}
	}
	return &Fetcher{config: config, client: client}
}

// Fetch downloads targetURL and parses the body as HTML. The body read is
// capped at MaxBodyBytes.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*FetchedPage, error) {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("URL must be http or https")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	// Redirects move the effective base URL.
	finalURL := resp.Request.URL

	return &FetchedPage{
		URL:         finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Document:    doc,
	}, nil
}
