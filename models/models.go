package models

import "time"

// Detection methods recorded on CandidateItem.PatternID.
const (
	MethodPatternAnalysis    = "pattern-analysis"
	MethodFallback           = "fallback"
	MethodNetworkInterceptor = "network-interceptor"
	MethodEnhanced           = "enhanced"
)

// CandidateItem is one discovered media reference plus its derived metadata.
// SourceURL is always a syntactically valid absolute URL; references that fail
// resolution are dropped before an item is ever created.
type CandidateItem struct {
	ID             string            `json:"id,omitempty"`
	SourceURL      string            `json:"source_url"`
	ThumbnailURL   string            `json:"thumbnail_url,omitempty"`
	FullSizeURL    string            `json:"full_size_url,omitempty"`
	AltText        string            `json:"alt_text,omitempty"`
	Title          string            `json:"title,omitempty"`
	ContainerPath  string            `json:"container_path,omitempty"`
	PatternID      string            `json:"pattern_id"`
	Dimensions     *Dimensions       `json:"dimensions,omitempty"`
	MimeType       string            `json:"mime_type,omitempty"`
	FileSizeBytes  int64             `json:"file_size_bytes,omitempty"`
	PerceptualHash string            `json:"perceptual_hash,omitempty"`
	FilterMetadata map[string]string `json:"filter_metadata,omitempty"`
}

// Dimensions are decoded pixel dimensions.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MediaMetadata is remotely probed metadata for a media URL. Zero-valued
// fields mean the attribute could not be determined.
type MediaMetadata struct {
	MimeType      string      `json:"mime_type,omitempty"`
	FileSizeBytes int64       `json:"file_size_bytes,omitempty"`
	Dimensions    *Dimensions `json:"dimensions,omitempty"`
}

// MinerStats are the running counters maintained by the network traffic miner.
// They accumulate for the lifetime of a monitoring session and are never reset
// automatically.
type MinerStats struct {
	RequestsObserved   int64 `json:"requests_observed"`
	APIRequests        int64 `json:"api_requests"`
	ResponsesWithMedia int64 `json:"responses_with_media"`
	URLsExtracted      int64 `json:"urls_extracted"`
}

// DiscoveryResult is the primary artifact consumed by UI/export layers. A
// discovery pass always produces one, even in total failure (confidence 0,
// empty item list).
type DiscoveryResult struct {
	Items      []CandidateItem `json:"items"`
	Confidence float64         `json:"confidence"`
	Method     string          `json:"method"`
	Stats      MinerStats      `json:"stats"`
}

// DiscoveryRecord is a persisted discovery run.
type DiscoveryRecord struct {
	ID        string          `json:"id"`
	PageURL   string          `json:"page_url"`
	Result    DiscoveryResult `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}

// ArchivedMedia describes one media file written to archive storage.
type ArchivedMedia struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id,omitempty"`
	ItemURL     string    `json:"item_url"`
	FilePath    string    `json:"file_path"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CameraModel string    `json:"camera_model,omitempty"`
	TakenAt     time.Time `json:"taken_at,omitempty"`
}
