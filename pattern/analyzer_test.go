package pattern

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/pixsift/discovery/models"
)

func parseDoc(t *testing.T, htmlSrc string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
	if err != nil {
		t.Fatalf("failed to parse test document: %v", err)
	}
	return doc
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

const galleryPage = `
<!DOCTYPE html>
<html>
<body>
	<div class="header"><img src="/logo.png" alt="logo"></div>
	<div class="gallery">
		<div class="gallery-item" style="top:0px;left:0px;width:200px;height:200px">
			<a href="/full/1.jpg"><img src="/thumb/1.jpg" alt="first"></a>
		</div>
		<div class="gallery-item" style="top:0px;left:210px;width:200px;height:200px">
			<a href="/full/2.jpg"><img src="/thumb/2.jpg" alt="second"></a>
		</div>
		<div class="gallery-item" style="top:0px;left:420px;width:200px;height:200px">
			<a href="/full/3.jpg"><img src="/thumb/3.jpg" alt="third"></a>
		</div>
		<div class="gallery-item" style="top:210px;left:0px;width:200px;height:200px">
			<a href="/full/4.jpg"><img src="/thumb/4.jpg" alt="fourth"></a>
		</div>
		<div class="gallery-item" style="top:210px;left:210px;width:200px;height:200px">
			<a href="/full/5.jpg"><img src="/thumb/5.jpg" alt="fifth"></a>
		</div>
	</div>
</body>
</html>`

func TestAnalyzeGalleryPage(t *testing.T) {
	a := New(DefaultConfig(), AttributeLayout{})
	base := mustParseURL(t, "https://example.com/gallery")

	result := a.Analyze(parseDoc(t, galleryPage), base)

	if result.Method != models.MethodPatternAnalysis {
		t.Fatalf("method = %q, want %q", result.Method, models.MethodPatternAnalysis)
	}
	if len(result.Items) != 5 {
		t.Fatalf("got %d items, want 5", len(result.Items))
	}
	// 5 containers (+50), gallery class (+50), item class (+30), anchors
	// (+20), grid alignment (+40) = 190.
	if result.Score < 190 {
		t.Errorf("score = %.0f, want >= 190", result.Score)
	}
	if result.Confidence < 0.94 || result.Confidence > 0.96 {
		t.Errorf("confidence = %.2f, want ~0.95", result.Confidence)
	}

	for i, item := range result.Items {
		if item.FullSizeURL == "" {
			t.Errorf("item %d has empty FullSizeURL", i)
		}
		if !strings.HasPrefix(item.SourceURL, "https://example.com/thumb/") {
			t.Errorf("item %d SourceURL = %q", i, item.SourceURL)
		}
		if item.PatternID != models.MethodPatternAnalysis {
			t.Errorf("item %d PatternID = %q", i, item.PatternID)
		}
		if item.ContainerPath == "" {
			t.Errorf("item %d missing ContainerPath", i)
		}
	}

	// Document order is preserved.
	if result.Items[0].AltText != "first" || result.Items[4].AltText != "fifth" {
		t.Errorf("items out of document order: %q ... %q",
			result.Items[0].AltText, result.Items[4].AltText)
	}
}

func TestAnalyzeFallback(t *testing.T) {
	// Two images cannot form a qualifying cluster (min size 3).
	page := `
	<html><body>
		<p><a href="/full/a.jpg"><img src="/a.jpg" alt="a"></a></p>
		<p><img src="/b.jpg" alt="b"></p>
	</body></html>`

	a := New(DefaultConfig(), AttributeLayout{})
	base := mustParseURL(t, "https://example.com/")

	result := a.Analyze(parseDoc(t, page), base)

	if result.Method != models.MethodFallback {
		t.Fatalf("method = %q, want fallback", result.Method)
	}
	if result.Confidence != 0.3 {
		t.Errorf("confidence = %.2f, want 0.3", result.Confidence)
	}
	if len(result.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(result.Items))
	}
	if result.Items[0].FullSizeURL != "https://example.com/full/a.jpg" {
		t.Errorf("anchored image FullSizeURL = %q", result.Items[0].FullSizeURL)
	}
	// Without an enclosing anchor, the image is its own full-size URL.
	if result.Items[1].FullSizeURL != "https://example.com/b.jpg" {
		t.Errorf("bare image FullSizeURL = %q", result.Items[1].FullSizeURL)
	}
}

func TestAnalyzeEmptyDocument(t *testing.T) {
	a := New(DefaultConfig(), AttributeLayout{})
	result := a.Analyze(parseDoc(t, "<html><body><p>no images</p></body></html>"), nil)

	if result.Method != "none" {
		t.Errorf("method = %q, want none", result.Method)
	}
	if result.Confidence != 0 {
		t.Errorf("confidence = %.2f, want 0", result.Confidence)
	}
	if len(result.Items) != 0 {
		t.Errorf("got %d items, want 0", len(result.Items))
	}
}

func TestAnalyzeSkipsHiddenImages(t *testing.T) {
	page := `
	<html><body>
		<div class="card"><img src="/visible.jpg"></div>
		<div class="card"><img src="/hidden.jpg" style="display:none"></div>
		<div class="card"><img src="/invisible.jpg" style="visibility:hidden"></div>
		<div class="card"><img src="/zero.jpg" width="0" height="0"></div>
	</body></html>`

	a := New(DefaultConfig(), AttributeLayout{})
	base := mustParseURL(t, "https://example.com/")

	result := a.Analyze(parseDoc(t, page), base)

	if len(result.Items) != 1 {
		t.Fatalf("got %d items, want 1 visible", len(result.Items))
	}
	if result.Items[0].SourceURL != "https://example.com/visible.jpg" {
		t.Errorf("SourceURL = %q", result.Items[0].SourceURL)
	}
}

func TestAnalyzeDropsUnresolvableSources(t *testing.T) {
	page := `
	<html><body>
		<div class="item"><img src="good.jpg"></div>
		<div class="item"><img src="ftp://bad/evil.jpg"></div>
	</body></html>`

	a := New(DefaultConfig(), AttributeLayout{})
	base := mustParseURL(t, "https://example.com/gallery/")

	result := a.Analyze(parseDoc(t, page), base)

	for _, item := range result.Items {
		if strings.HasPrefix(item.SourceURL, "ftp:") {
			t.Errorf("unresolvable source leaked into result: %q", item.SourceURL)
		}
	}
	if len(result.Items) != 1 {
		t.Errorf("got %d items, want 1", len(result.Items))
	}
}

func TestAnalyzeLazyLoadedImages(t *testing.T) {
	page := `
	<html><body>
		<div class="grid-item"><img data-src="/lazy/1.jpg"></div>
		<div class="grid-item"><img data-src="/lazy/2.jpg"></div>
		<div class="grid-item"><img data-src="/lazy/3.jpg"></div>
		<div class="grid-item"><img data-src="/lazy/4.jpg"></div>
	</body></html>`

	a := New(DefaultConfig(), AttributeLayout{})
	base := mustParseURL(t, "https://example.com/")

	result := a.Analyze(parseDoc(t, page), base)

	if result.Method != models.MethodPatternAnalysis {
		t.Fatalf("method = %q, want pattern-analysis", result.Method)
	}
	if len(result.Items) != 4 {
		t.Errorf("got %d items, want 4", len(result.Items))
	}
}
