package netminer

import (
	"reflect"
	"testing"
)

func TestStartStopIdempotent(t *testing.T) {
	m := New(DefaultConfig())

	if m.Active() {
		t.Error("miner should start inactive")
	}
	m.Start()
	m.Start()
	if !m.Active() {
		t.Error("miner should be active after Start")
	}
	m.Stop()
	m.Stop()
	if m.Active() {
		t.Error("miner should be inactive after Stop")
	}
}

func TestObserveIgnoredWhenInactive(t *testing.T) {
	m := New(DefaultConfig())

	m.Observe(Exchange{
		RequestURL:  "https://example.com/api/gallery",
		StatusCode:  200,
		ContentType: "application/json",
		Body:        []byte(`{"image":"https://cdn.example.com/a.jpg"}`),
	})

	if got := m.Stats().RequestsObserved; got != 0 {
		t.Errorf("RequestsObserved = %d, want 0 while inactive", got)
	}
	if got := len(m.DiscoveredURLs()); got != 0 {
		t.Errorf("discovered %d URLs while inactive, want 0", got)
	}
}

func TestObserveJSONResponse(t *testing.T) {
	m := New(DefaultConfig())
	m.Start()

	var event FoundEvent
	m.OnImagesFound(func(e FoundEvent) { event = e })

	m.Observe(Exchange{
		RequestURL:  "https://example.com/api/gallery?page=1",
		Method:      "GET",
		StatusCode:  200,
		ContentType: "application/json",
		Body: []byte(`{
			"items": [
				{"title": "first", "image": "https://cdn.example.com/photos/1.jpg"},
				{"title": "second", "image": "/photos/2.png"}
			],
			"next": "https://example.com/api/gallery?page=2"
		}`),
	})

	want := []string{
		"https://cdn.example.com/photos/1.jpg",
		"https://example.com/photos/2.png",
	}
	got := m.DiscoveredURLs()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DiscoveredURLs = %v, want %v", got, want)
	}

	stats := m.Stats()
	if stats.RequestsObserved != 1 || stats.APIRequests != 1 {
		t.Errorf("stats = %+v, want 1 observed / 1 api", stats)
	}
	if stats.ResponsesWithMedia != 1 {
		t.Errorf("ResponsesWithMedia = %d, want 1", stats.ResponsesWithMedia)
	}
	if stats.URLsExtracted != 2 {
		t.Errorf("URLsExtracted = %d, want 2", stats.URLsExtracted)
	}

	if event.SourceResponseURL != "https://example.com/api/gallery?page=1" {
		t.Errorf("event source = %q", event.SourceResponseURL)
	}
	if !reflect.DeepEqual(event.URLs, want) {
		t.Errorf("event URLs = %v, want %v", event.URLs, want)
	}
}

func TestObserveHTMLResponse(t *testing.T) {
	m := New(DefaultConfig())
	m.Start()

	body := `
		<div class="gallery">
			<img src="/img/a.jpg" alt="a">
			<div style="background-image: url('/img/b.png')"></div>
			<script>var data = {"thumb":"/img/c.webp","url":"/img/d.jpeg"};</script>
		</div>`

	m.Observe(Exchange{
		RequestURL:  "https://example.com/gallery/page",
		StatusCode:  200,
		ContentType: "text/html",
		Body:        []byte(body),
	})

	want := []string{
		"https://example.com/img/a.jpg",
		"https://example.com/img/b.png",
		"https://example.com/img/c.webp",
		"https://example.com/img/d.jpeg",
	}
	got := m.DiscoveredURLs()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DiscoveredURLs = %v, want %v", got, want)
	}
}

func TestObserveDeduplicates(t *testing.T) {
	m := New(DefaultConfig())
	m.Start()

	body := []byte(`{"image":"https://cdn.example.com/same.jpg"}`)
	ex := Exchange{
		RequestURL:  "https://example.com/api/items",
		StatusCode:  200,
		ContentType: "application/json",
		Body:        body,
	}

	m.Observe(ex)
	m.Observe(ex)

	if got := len(m.DiscoveredURLs()); got != 1 {
		t.Errorf("discovered %d URLs, want 1 after dedup", got)
	}
	if got := m.Stats().URLsExtracted; got != 1 {
		t.Errorf("URLsExtracted = %d, want 1", got)
	}
}

func TestObserveSkipsNonAPIAndErrors(t *testing.T) {
	m := New(DefaultConfig())
	m.Start()

	// Not API-like.
	m.Observe(Exchange{
		RequestURL:  "https://example.com/styles.css",
		StatusCode:  200,
		ContentType: "text/css",
		Body:        []byte(`body { background-image: url('/img/x.jpg'); }`),
	})
	// API-like but failed response.
	m.Observe(Exchange{
		RequestURL:  "https://example.com/api/gallery",
		StatusCode:  500,
		ContentType: "application/json",
		Body:        []byte(`{"image":"https://cdn.example.com/y.jpg"}`),
	})

	if got := len(m.DiscoveredURLs()); got != 0 {
		t.Errorf("discovered %d URLs, want 0", got)
	}
	stats := m.Stats()
	if stats.RequestsObserved != 2 {
		t.Errorf("RequestsObserved = %d, want 2", stats.RequestsObserved)
	}
	if stats.APIRequests != 1 {
		t.Errorf("APIRequests = %d, want 1", stats.APIRequests)
	}
}

func TestObserveSkipsOversizedBody(t *testing.T) {
	m := New(Config{APIPatterns: []string{"/api/"}, MaxBodyBytes: 64})
	m.Start()

	big := append([]byte(`{"image":"https://cdn.example.com/big.jpg","pad":"`),
		make([]byte, 128)...)

	m.Observe(Exchange{
		RequestURL:  "https://example.com/api/items",
		StatusCode:  200,
		ContentType: "application/json",
		Body:        big,
	})

	if got := len(m.DiscoveredURLs()); got != 0 {
		t.Errorf("oversized body was parsed; discovered %d URLs", got)
	}
}

func TestObserveMalformedJSONSkipped(t *testing.T) {
	m := New(DefaultConfig())
	m.Start()

	m.Observe(Exchange{
		RequestURL:  "https://example.com/api/items",
		StatusCode:  200,
		ContentType: "application/json",
		Body:        []byte(`{"image": truncated`),
	})

	if got := len(m.DiscoveredURLs()); got != 0 {
		t.Errorf("discovered %d URLs from malformed JSON, want 0", got)
	}
	// The response is skipped, not fatal; the miner keeps observing.
	if got := m.Stats().APIRequests; got != 1 {
		t.Errorf("APIRequests = %d, want 1", got)
	}
}

func TestReset(t *testing.T) {
	m := New(DefaultConfig())
	m.Start()

	m.Observe(Exchange{
		RequestURL:  "https://example.com/api/items",
		StatusCode:  200,
		ContentType: "application/json",
		Body:        []byte(`{"image":"https://cdn.example.com/z.jpg"}`),
	})

	m.Reset()
	if got := len(m.DiscoveredURLs()); got != 0 {
		t.Errorf("discovered set not cleared: %d entries", got)
	}
	// Counters survive a reset of the discovered set.
	if got := m.Stats().URLsExtracted; got != 1 {
		t.Errorf("URLsExtracted = %d, want 1 after reset", got)
	}
}
