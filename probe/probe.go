// Package probe fetches remote media metadata: MIME type and size from
// response headers, pixel dimensions from a partial body decode. Probes are
// best-effort; callers treat a failed probe as "unknown" rather than an
// error worth aborting for.
package probe

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	// Decoders registered for DecodeConfig and full decodes.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/pixsift/discovery/models"
)

// ErrDecode indicates the fetched bytes could not be rasterized.
var ErrDecode = errors.New("probe: decode failed")

// Config contains prober configuration.
type Config struct {
	Concurrency    int           // max in-flight probes per batch
	Timeout        time.Duration // per-item budget covering HEAD and GET
	BatchPause     time.Duration // pause between batches of Concurrency probes
	MaxDecodeBytes int64         // body ceiling for dimension decodes
	UserAgent      string
}

// DefaultConfig returns default prober configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:    3,
		Timeout:        10 * time.Second,
		BatchPause:     100 * time.Millisecond,
		MaxDecodeBytes: 1 << 20,
		UserAgent:      "pixsift-discovery/1.0",
	}
}

// Prober fetches media metadata over HTTP. Safe for concurrent use.
type Prober struct {
	config Config
	client *http.Client
	sem    chan struct{}
}

// New creates a prober. A nil client gets a default one with an
// instrumented transport and the configured timeout.
func New(config Config, client *http.Client) *Prober {
	def := DefaultConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.BatchPause < 0 {
		config.BatchPause = def.BatchPause
	}
	if config.MaxDecodeBytes <= 0 {
		config.MaxDecodeBytes = def.MaxDecodeBytes
	}
	if config.UserAgent == "" {
		config.UserAgent = def.UserAgent
	}
	if client == nil {
		client = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   config.Timeout,
		}
	}
	return &Prober{
		config: config,
		client: client,
		sem:    make(chan struct{}, config.Concurrency),
	}
}

// Probe fetches metadata for one URL: a HEAD request for MIME type and size,
// then a partial GET decode for pixel dimensions when the HEAD identified an
// image. Partial results are returned alongside a nil error; the error is
// non-nil only when nothing could be determined.
func (p *Prober) Probe(ctx context.Context, rawURL string) (models.MediaMetadata, error) {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	var meta models.MediaMetadata

	mime, size, headErr := p.head(ctx, rawURL)
	meta.MimeType = mime
	meta.FileSizeBytes = size

	if headErr == nil && !strings.HasPrefix(mime, "image/") {
		// Not an image: dimensions are meaningless, headers are all we get.
		return meta, nil
	}

	if dims, err := p.dimensions(ctx, rawURL); err == nil {
		meta.Dimensions = dims
	} else if headErr != nil {
		return models.MediaMetadata{}, fmt.Errorf("probe %s: %w", rawURL, err)
	}
	return meta, nil
}

// ProbeBatch probes urls in batches of Concurrency with a pause between
// batches. Failed probes are absent from the result map.
func (p *Prober) ProbeBatch(ctx context.Context, urls []string) map[string]models.MediaMetadata {
	results := make(map[string]models.MediaMetadata, len(urls))
	var mu sync.Mutex

	for start := 0; start < len(urls); start += p.config.Concurrency {
		end := start + p.config.Concurrency
		if end > len(urls) {
			end = len(urls)
		}

		var wg sync.WaitGroup
		for _, rawURL := range urls[start:end] {
			wg.Add(1)
			go func(rawURL string) {
				defer wg.Done()
				meta, err := p.Probe(ctx, rawURL)
				if err != nil {
					return
				}
				mu.Lock()
				results[rawURL] = meta
				mu.Unlock()
			}(rawURL)
		}
		wg.Wait()

		if end < len(urls) && p.config.BatchPause > 0 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(p.config.BatchPause):
			}
		}
	}
	return results
}

// FetchImage fully decodes the image at rawURL for hashing. The body is read
// without the MaxDecodeBytes ceiling since hashing needs every pixel.
func (p *Prober) FetchImage(ctx context.Context, rawURL string) (image.Image, string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	body, err := p.get(ctx, rawURL, -1)
	if err != nil {
		return nil, "", err
	}
	defer body.Close()

	img, format, err := image.Decode(body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrDecode, rawURL, err)
	}
	return img, format, nil
}

func (p *Prober) head(ctx context.Context, rawURL string) (mime string, size int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("User-Agent", p.config.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("head %s: status %d", rawURL, resp.StatusCode)
	}

	mime = resp.Header.Get("Content-Type")
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	if resp.ContentLength > 0 {
		size = resp.ContentLength
	}
	return mime, size, nil
}

// dimensions decodes just enough of the body to learn width and height.
func (p *Prober) dimensions(ctx context.Context, rawURL string) (*models.Dimensions, error) {
	body, err := p.get(ctx, rawURL, p.config.MaxDecodeBytes)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	cfg, _, err := image.DecodeConfig(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, rawURL, err)
	}
	return &models.Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

func (p *Prober) get(ctx context.Context, rawURL string, limit int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.config.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("get %s: status %d", rawURL, resp.StatusCode)
	}
	if limit <= 0 {
		return resp.Body, nil
	}
	return readCloser{io.LimitReader(resp.Body, limit), resp.Body}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}
