package discovery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pixsift/discovery/models"
	"github.com/pixsift/discovery/probe"
	"github.com/pixsift/discovery/slug"
	"github.com/pixsift/discovery/storage"
)

// ArchiverConfig contains archiver configuration.
type ArchiverConfig struct {
	MaxMediaBytes int64         // per-file download ceiling
	MediaTimeout  time.Duration // per-file download budget
	UserAgent     string
}

// DefaultArchiverConfig returns default archiver configuration.
func DefaultArchiverConfig() ArchiverConfig {
	return ArchiverConfig{
		MaxMediaBytes: 10 * 1024 * 1024,
		MediaTimeout:  15 * time.Second,
		UserAgent:     "pixsift-discovery/1.0",
	}
}

// Archiver downloads accepted items and writes them to blob storage under
// slugged names.
type Archiver struct {
	config ArchiverConfig
	store  storage.Store
	client *http.Client
}

// NewArchiver creates an archiver. A nil client gets a default one with an
// instrumented transport.
func NewArchiver(config ArchiverConfig, store storage.Store, client *http.Client) *Archiver {
	def := DefaultArchiverConfig()
	if config.MaxMediaBytes <= 0 {
		config.MaxMediaBytes = def.MaxMediaBytes
	}
	if config.MediaTimeout <= 0 {
		config.MediaTimeout = def.MediaTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = def.UserAgent
	}
	if client == nil {
		client = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   config.MediaTimeout,
		}
	}
	return &Archiver{config: config, store: store, client: client}
}

// Archive downloads each item's best URL and stores the bytes. A failed
// download or store skips that item and continues; the returned slice holds
// only successes.
func (a *Archiver) Archive(ctx context.Context, runID string, items []models.CandidateItem) []models.ArchivedMedia {
	archived := make([]models.ArchivedMedia, 0, len(items))
	for _, item := range items {
		target := item.FullSizeURL
		if target == "" {
			target = item.SourceURL
		}
		if target == "" {
			continue
		}

		media, err := a.archiveOne(ctx, runID, item, target)
		if err != nil {
			log.Printf("discovery: archiving %s failed: %v", target, err)
			continue
		}
		archived = append(archived, media)
	}
	return archived
}

func (a *Archiver) archiveOne(ctx context.Context, runID string, item models.CandidateItem, target string) (models.ArchivedMedia, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.MediaTimeout)
	defer cancel()

	data, contentType, err := a.download(ctx, target)
	if err != nil {
		return models.ArchivedMedia{}, err
	}

	name := slug.FromItem(item.AltText, item.Title, target)
	if name == "" {
		name = "media"
	}

	key, err := a.store.SaveMedia(ctx, data, name, contentType)
	if err != nil {
		return models.ArchivedMedia{}, fmt.Errorf("storing media: %w", err)
	}

	media := models.ArchivedMedia{
		ID:          uuid.New().String(),
		RunID:       runID,
		ItemURL:     target,
		FilePath:    key,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
	}

	// EXIF is best effort; most web media carries none.
	if info, err := probe.DecodeExif(bytes.NewReader(data)); err == nil {
		media.CameraModel = info.CameraModel
		media.TakenAt = info.TakenAt
	}
	return media, nil
}

func (a *Archiver) download(ctx context.Context, target string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", a.config.UserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("downloading: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download status %d", resp.StatusCode)
	}
	if resp.ContentLength > a.config.MaxMediaBytes {
		return nil, "", fmt.Errorf("media too large: %d bytes", resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, a.config.MaxMediaBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading body: %w", err)
	}
	if int64(len(data)) > a.config.MaxMediaBytes {
		return nil, "", fmt.Errorf("media too large: exceeds %d bytes", a.config.MaxMediaBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
