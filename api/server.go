// Package api exposes the discovery pipeline over HTTP.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pixsift/discovery"
	"github.com/pixsift/discovery/filterengine"
	"github.com/pixsift/discovery/models"
)

// Store is the persistence surface the server needs.
type Store interface {
	SaveDiscovery(record *models.DiscoveryRecord) error
	GetDiscovery(id string) (*models.DiscoveryRecord, error)
	ListDiscoveries(limit, offset int) ([]*models.DiscoveryRecord, error)
	DeleteDiscovery(id string) error
	SearchItemsByHash(hash string) ([]models.CandidateItem, error)
	SaveArchivedMedia(runID string, media []models.ArchivedMedia) error
	ListArchivedMedia(runID string) ([]models.ArchivedMedia, error)
	Count() (int, error)
}

// Discoverer runs one discovery pass against a target URL.
type Discoverer interface {
	DiscoverURL(ctx context.Context, targetURL string, opts discovery.Options) (*models.DiscoveryResult, error)
}

// Archiver downloads accepted items into blob storage.
type Archiver interface {
	Archive(ctx context.Context, runID string, items []models.CandidateItem) []models.ArchivedMedia
}

// Config contains server configuration
type Config struct {
	Addr        string
	CORSEnabled bool
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		CORSEnabled: true,
	}
}

// Server represents the API server
type Server struct {
	store       Store
	discoverer  Discoverer
	archiver    Archiver
	addr        string
	server      *http.Server
	mux         *http.ServeMux
	corsEnabled bool
}

// NewServer wires the API server. store and discoverer are injected by the
// caller; archiver may be nil to disable archiving.
func NewServer(config Config, store Store, discoverer Discoverer, archiver Archiver) *Server {
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}

	s := &Server{
		store:       store,
		discoverer:  discoverer,
		archiver:    archiver,
		addr:        config.Addr,
		mux:         http.NewServeMux(),
		corsEnabled: config.CORSEnabled,
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.middleware(s.mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // discovery runs include remote fetches
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/api/discover", s.handleDiscover)
	s.mux.HandleFunc("/api/discoveries", s.handleList)
	s.mux.HandleFunc("/api/discoveries/", s.handleDiscovery) // Handles /api/discoveries/{id}
	s.mux.HandleFunc("/api/items", s.handleSearchItems)
}

// Start starts the API server
func (s *Server) Start() error {
	log.Printf("Starting API server on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down API server...")
	return s.server.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.middleware(s.mux)
}

// middleware applies common middleware to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.corsEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		start := time.Now()
		if r.URL.Path != "/health" && r.URL.Path != "/metrics" {
			log.Printf("%s %s", r.Method, r.URL.Path)
			defer func() {
				log.Printf("%s %s - completed in %v", r.Method, r.URL.Path, time.Since(start))
			}()
		}

		next.ServeHTTP(w, r)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count, err := s.store.Count()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get count")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"count":  count,
		"time":   time.Now(),
	})
}

// RegexRuleRequest is the wire form of a custom regex directive.
type RegexRuleRequest struct {
	Target  string `json:"target"` // url | title | alt
	Pattern string `json:"pattern"`
	Include bool   `json:"include"`
}

// RuleSetRequest is the wire form of a filter rule set.
type RuleSetRequest struct {
	URLPatterns []filterengine.URLPattern     `json:"url_patterns,omitempty"`
	Extensions  []filterengine.Extension      `json:"extensions,omitempty"`
	MIMETypes   []filterengine.MIMEType       `json:"mime_types,omitempty"`
	FileSize    *filterengine.SizeBounds      `json:"file_size,omitempty"`
	Dimensions  *filterengine.DimensionBounds `json:"dimensions,omitempty"`
	CustomRegex []RegexRuleRequest            `json:"custom_regex,omitempty"`
	Domains     []filterengine.Domain         `json:"domains,omitempty"`
}

func (r *RuleSetRequest) toRuleSet() (*filterengine.RuleSet, error) {
	if r == nil {
		return nil, nil
	}
	rules := &filterengine.RuleSet{
		URLPatterns: r.URLPatterns,
		Extensions:  r.Extensions,
		MIMETypes:   r.MIMETypes,
		FileSize:    r.FileSize,
		Dimensions:  r.Dimensions,
		Domains:     r.Domains,
	}
	for _, c := range r.CustomRegex {
		switch c.Target {
		case "url", "":
			rules.CustomRegex = append(rules.CustomRegex, filterengine.URLRegexRule{Pattern: c.Pattern, Include: c.Include})
		case "title":
			rules.CustomRegex = append(rules.CustomRegex, filterengine.TitleRegexRule{Pattern: c.Pattern, Include: c.Include})
		case "alt":
			rules.CustomRegex = append(rules.CustomRegex, filterengine.AltRegexRule{Pattern: c.Pattern, Include: c.Include})
		default:
			return nil, fmt.Errorf("unknown regex target %q", c.Target)
		}
	}
	return rules, nil
}

// DiscoverRequest represents a discovery request
type DiscoverRequest struct {
	URL          string          `json:"url"`
	Rules        *RuleSetRequest `json:"rules,omitempty"`
	DedupeByHash bool            `json:"dedupe_by_hash,omitempty"`
	Archive      bool            `json:"archive,omitempty"`
}

// handleDiscover runs one discovery pass and persists the result.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req DiscoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	rules, err := req.Rules.toRuleSet()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	result, err := s.discoverer.DiscoverURL(r.Context(), req.URL, discovery.Options{
		Rules:        rules,
		DedupeByHash: req.DedupeByHash,
	})
	if err != nil {
		respondError(w, http.StatusBadGateway, fmt.Sprintf("discovery failed: %v", err))
		return
	}

	discoveryDuration.Observe(time.Since(start).Seconds())
	discoveryRunsTotal.WithLabelValues(result.Method).Inc()
	discoveryItems.Observe(float64(len(result.Items)))

	record := &models.DiscoveryRecord{
		ID:        uuid.New().String(),
		PageURL:   req.URL,
		Result:    *result,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveDiscovery(record); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save discovery")
		return
	}

	if req.Archive && s.archiver != nil {
		media := s.archiver.Archive(r.Context(), record.ID, record.Result.Items)
		if len(media) > 0 {
			if err := s.store.SaveArchivedMedia(record.ID, media); err != nil {
				log.Printf("failed to save archived media for %s: %v", record.ID, err)
			}
		}
	}

	respondJSON(w, http.StatusOK, record)
}

// handleList returns stored discoveries, newest first.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	records, err := s.store.ListDiscoveries(limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list discoveries")
		return
	}
	if records == nil {
		records = []*models.DiscoveryRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"discoveries": records,
		"count":       len(records),
	})
}

// handleDiscovery handles GET and DELETE for a single discovery, plus
// GET /api/discoveries/{id}/media for its archive listing.
func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/discoveries/")

	if rest, ok := strings.CutSuffix(id, "/media"); ok {
		s.handleArchivedMedia(w, r, rest)
		return
	}

	if id == "" || strings.Contains(id, "/") {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, err := s.store.GetDiscovery(id)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "database error")
			return
		}
		if record == nil {
			respondError(w, http.StatusNotFound, "discovery not found")
			return
		}
		respondJSON(w, http.StatusOK, record)

	case http.MethodDelete:
		err := s.store.DeleteDiscovery(id)
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "discovery not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to delete discovery")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSearchItems finds stored items sharing a perceptual hash, the
// cross-run duplicate lookup.
func (s *Server) handleSearchItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	hash := r.URL.Query().Get("hash")
	if hash == "" {
		respondError(w, http.StatusBadRequest, "hash is required")
		return
	}

	items, err := s.store.SearchItemsByHash(hash)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to search items")
		return
	}
	if items == nil {
		items = []models.CandidateItem{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

// handleArchivedMedia lists archive rows for one discovery.
func (s *Server) handleArchivedMedia(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if id == "" || strings.Contains(id, "/") {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	media, err := s.store.ListArchivedMedia(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list archived media")
		return
	}
	if media == nil {
		media = []models.ArchivedMedia{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"media": media,
		"count": len(media),
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
