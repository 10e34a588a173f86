package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pixsift/discovery"
	"github.com/pixsift/discovery/models"
)

type fakeStore struct {
	records map[string]*models.DiscoveryRecord
	order   []string
	media   map[string][]models.ArchivedMedia
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*models.DiscoveryRecord)}
}

func (f *fakeStore) SaveDiscovery(record *models.DiscoveryRecord) error {
	f.records[record.ID] = record
	f.order = append(f.order, record.ID)
	return nil
}

func (f *fakeStore) GetDiscovery(id string) (*models.DiscoveryRecord, error) {
	return f.records[id], nil
}

func (f *fakeStore) ListDiscoveries(limit, offset int) ([]*models.DiscoveryRecord, error) {
	var out []*models.DiscoveryRecord
	for i := len(f.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.records[f.order[i]])
	}
	return out, nil
}

func (f *fakeStore) DeleteDiscovery(id string) error {
	if _, ok := f.records[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.records, id)
	return nil
}

func (f *fakeStore) SearchItemsByHash(hash string) ([]models.CandidateItem, error) {
	var out []models.CandidateItem
	for _, id := range f.order {
		for _, item := range f.records[id].Result.Items {
			if item.PerceptualHash == hash {
				out = append(out, item)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) SaveArchivedMedia(runID string, media []models.ArchivedMedia) error {
	if f.media == nil {
		f.media = make(map[string][]models.ArchivedMedia)
	}
	f.media[runID] = append(f.media[runID], media...)
	return nil
}

func (f *fakeStore) ListArchivedMedia(runID string) ([]models.ArchivedMedia, error) {
	return f.media[runID], nil
}

func (f *fakeStore) Count() (int, error) {
	return len(f.records), nil
}

type fakeArchiver struct {
	calls int
}

func (f *fakeArchiver) Archive(_ context.Context, runID string, items []models.CandidateItem) []models.ArchivedMedia {
	f.calls++
	media := make([]models.ArchivedMedia, 0, len(items))
	for _, item := range items {
		media = append(media, models.ArchivedMedia{
			ID:      "archived-" + item.ID,
			RunID:   runID,
			ItemURL: item.SourceURL,
		})
	}
	return media
}

type fakeDiscoverer struct {
	result   *models.DiscoveryResult
	err      error
	lastURL  string
	lastOpts discovery.Options
}

func (f *fakeDiscoverer) DiscoverURL(_ context.Context, targetURL string, opts discovery.Options) (*models.DiscoveryResult, error) {
	f.lastURL = targetURL
	f.lastOpts = opts
	return f.result, f.err
}

func newTestServer(store Store, d Discoverer) *Server {
	return NewServer(Config{Addr: ":0", CORSEnabled: true}, store, d, nil)
}

func TestHandleDiscover(t *testing.T) {
	store := newFakeStore()
	d := &fakeDiscoverer{result: &models.DiscoveryResult{
		Items: []models.CandidateItem{
			{ID: "item-1", SourceURL: "https://cdn.example.com/a.png", PatternID: models.MethodPatternAnalysis},
		},
		Confidence: 0.95,
		Method:     models.MethodPatternAnalysis,
	}}
	s := newTestServer(store, d)

	body, _ := json.Marshal(DiscoverRequest{
		URL: "https://example.com/gallery",
		Rules: &RuleSetRequest{
			CustomRegex: []RegexRuleRequest{{Target: "alt", Pattern: "sunset", Include: true}},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/discover", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var record models.DiscoveryRecord
	if err := json.Unmarshal(w.Body.Bytes(), &record); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if record.ID == "" || record.PageURL != "https://example.com/gallery" {
		t.Errorf("bad record: %+v", record)
	}
	if len(store.records) != 1 {
		t.Errorf("record not persisted")
	}
	if d.lastURL != "https://example.com/gallery" {
		t.Errorf("discoverer got %q", d.lastURL)
	}
	if len(d.lastOpts.Rules.CustomRegex) != 1 {
		t.Errorf("rules not threaded through: %+v", d.lastOpts.Rules)
	}
}

func TestHandleDiscoverValidation(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeDiscoverer{})

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"missing url", http.MethodPost, `{}`, http.StatusBadRequest},
		{"bad body", http.MethodPost, `{`, http.StatusBadRequest},
		{"unknown regex target", http.MethodPost,
			`{"url":"https://x.com","rules":{"custom_regex":[{"target":"caption","pattern":"a","include":true}]}}`,
			http.StatusBadRequest},
		{"wrong method", http.MethodGet, ``, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/discover", bytes.NewReader([]byte(tt.body)))
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestHandleDiscoveryGetAndDelete(t *testing.T) {
	store := newFakeStore()
	store.SaveDiscovery(&models.DiscoveryRecord{
		ID:        "run-1",
		PageURL:   "https://example.com/",
		CreatedAt: time.Now(),
	})
	s := newTestServer(store, &fakeDiscoverer{})

	req := httptest.NewRequest(http.MethodGet, "/api/discoveries/run-1", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("get status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/discoveries/absent", nil)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("absent get status = %d, want 404", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/discoveries/run-1", nil)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("delete status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/discoveries/run-1", nil)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestHandleList(t *testing.T) {
	store := newFakeStore()
	for _, id := range []string{"a", "b", "c"} {
		store.SaveDiscovery(&models.DiscoveryRecord{ID: id, PageURL: "https://example.com/" + id})
	}
	s := newTestServer(store, &fakeDiscoverer{})

	req := httptest.NewRequest(http.MethodGet, "/api/discoveries?limit=2", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Discoveries []models.DiscoveryRecord `json:"discoveries"`
		Count       int                      `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 || len(resp.Discoveries) != 2 {
		t.Errorf("count = %d, items = %d, want 2", resp.Count, len(resp.Discoveries))
	}
	// Newest first.
	if resp.Discoveries[0].ID != "c" {
		t.Errorf("first record = %q, want newest", resp.Discoveries[0].ID)
	}
}

func TestHandleSearchItemsByHash(t *testing.T) {
	store := newFakeStore()
	store.SaveDiscovery(&models.DiscoveryRecord{
		ID: "run-1",
		Result: models.DiscoveryResult{Items: []models.CandidateItem{
			{ID: "item-1", SourceURL: "https://cdn.example.com/a.png", PerceptualHash: "0101"},
			{ID: "item-2", SourceURL: "https://cdn.example.com/b.png", PerceptualHash: "1111"},
		}},
	})
	store.SaveDiscovery(&models.DiscoveryRecord{
		ID: "run-2",
		Result: models.DiscoveryResult{Items: []models.CandidateItem{
			{ID: "item-3", SourceURL: "https://cdn.example.com/c.png", PerceptualHash: "0101"},
		}},
	})
	s := newTestServer(store, &fakeDiscoverer{})

	req := httptest.NewRequest(http.MethodGet, "/api/items?hash=0101", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Items []models.CandidateItem `json:"items"`
		Count int                    `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	// The shared hash matches across runs.
	if resp.Count != 2 || len(resp.Items) != 2 {
		t.Fatalf("count = %d, items = %d, want 2", resp.Count, len(resp.Items))
	}
	for _, item := range resp.Items {
		if item.PerceptualHash != "0101" {
			t.Errorf("item %s has hash %q", item.ID, item.PerceptualHash)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/api/items", nil)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing hash status = %d, want 400", w.Code)
	}
}

func TestHandleDiscoverWithArchive(t *testing.T) {
	store := newFakeStore()
	archiver := &fakeArchiver{}
	d := &fakeDiscoverer{result: &models.DiscoveryResult{
		Items:  []models.CandidateItem{{ID: "item-1", SourceURL: "https://cdn.example.com/a.png"}},
		Method: models.MethodPatternAnalysis,
	}}
	s := NewServer(Config{Addr: ":0"}, store, d, archiver)

	body, _ := json.Marshal(DiscoverRequest{URL: "https://example.com/", Archive: true})
	req := httptest.NewRequest(http.MethodPost, "/api/discover", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if archiver.calls != 1 {
		t.Fatalf("archiver calls = %d, want 1", archiver.calls)
	}

	var record models.DiscoveryRecord
	if err := json.Unmarshal(w.Body.Bytes(), &record); err != nil {
		t.Fatal(err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/discoveries/"+record.ID+"/media", nil)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("media listing status = %d", w.Code)
	}

	var resp struct {
		Media []models.ArchivedMedia `json:"media"`
		Count int                    `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || resp.Media[0].ItemURL != "https://cdn.example.com/a.png" {
		t.Errorf("archived media = %+v", resp)
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeDiscoverer{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := w.Body.String(); !bytes.Contains([]byte(body), []byte("healthy")) {
		t.Errorf("body = %s", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeDiscoverer{})

	req := httptest.NewRequest(http.MethodOptions, "/api/discover", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("preflight status = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
