package parser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PaperDigest/internal/config"
	"PaperDigest/internal/domain"
	"PaperDigest/internal/scanner"
)

const listingPage = `
<dl>
  <dt>
    <span class="list-identifier"><a href="/abs/2511.00001">arXiv:2511.00001</a></span>
  </dt>
  <dd>
    <div class="list-date">Date: 8 Nov 2025</div>
    <div class="list-title mathjax">Title: Fresh
      Paper</div>
    <p class="mathjax">Abstract: brand new.</p>
  </dd>
  <dt>
    <span class="list-identifier"><a href="/abs/2511.00003v2">arXiv:2511.00003v2</a></span>
  </dt>
  <dd>
    <div class="list-date">Date: 7 Nov 2025</div>
    <div class="list-title mathjax">Title: Yesterday Paper</div>
    <p class="mathjax">Abstract: recent.</p>
  </dd>
  <dt>
    <span class="list-identifier"><a href="/abs/2511.00002">arXiv:2511.00002</a></span>
  </dt>
  <dd>
    <div class="list-date">Date: 1 Nov 2025</div>
    <div class="list-title mathjax">Title: Old Paper</div>
    <p class="mathjax">Abstract: older.</p>
  </dd>
</dl>`

func TestBuildPageURL(t *testing.T) {
	t.Parallel()

	base := "https://export.arxiv.org/list/cs.AI/pastweek"
	u, err := buildPageURL(base, 200, 100)
	if err != nil {
		t.Fatalf("buildPageURL returned error: %v", err)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}

	if parsed.Scheme != "https" || parsed.Host != "export.arxiv.org" {
		t.Fatalf("unexpected host: %s", parsed.Host)
	}

	q := parsed.Query()
	if q.Get("skip") != "200" {
		t.Fatalf("expected skip=200, got %s", q.Get("skip"))
	}
	if q.Get("show") != "100" {
		t.Fatalf("expected show=100, got %s", q.Get("show"))
	}
}

func TestParseEntry(t *testing.T) {
	t.Parallel()

	html := `
	<dl>
	  <dt>
	    <span class="list-identifier"><a href="/abs/1234.56789">arXiv:1234.56789</a></span>
	  </dt>
	  <dd>
	    <div class="list-date">Date: 8 Nov 2025</div>
	    <div class="list-title mathjax">Title: Sample Title</div>
	    <p class="mathjax">Abstract: Sample abstract text.</p>
	  </dd>
	</dl>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	paper, ok := parseEntry(doc.Find("dt").First(), doc.Find("dd").First(), "arxiv-ai", "cs.AI")
	if !ok {
		t.Fatal("parseEntry rejected a valid entry")
	}

	if paper.ID != "1234.56789" {
		t.Fatalf("unexpected id: %s", paper.ID)
	}
	if paper.Title != "Sample Title" {
		t.Fatalf("unexpected title: %s", paper.Title)
	}
	if paper.Abstract != "Sample abstract text." {
		t.Fatalf("unexpected abstract: %s", paper.Abstract)
	}
	if paper.Source != "arxiv-ai/cs.AI" {
		t.Fatalf("unexpected source: %s", paper.Source)
	}
	if paper.URL != "https://arxiv.org/abs/1234.56789" || paper.PDFURL != "https://arxiv.org/pdf/1234.56789" {
		t.Fatalf("unexpected urls: %s %s", paper.URL, paper.PDFURL)
	}
	if paper.PublishedAt.Format("2006-01-02") != "2025-11-08" {
		t.Fatalf("unexpected published date: %v", paper.PublishedAt)
	}
}

func TestCanonicalID(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"arXiv:2501.00001":   "2501.00001",
		"2501.00001v3":       "2501.00001",
		"hep-th/9901001v1":   "hep-th/9901001",
		" arXiv:2501.12345 ": "2501.12345",
		"":                   "",
	}
	for in, want := range cases {
		if got := canonicalID(in); got != want {
			t.Errorf("canonicalID(%q) = %q, want %q", in, got, want)
		}
	}
}

func newListingServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listingPage))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestArxivScannerScan(t *testing.T) {
	t.Parallel()

	server := newListingServer(t)
	sc := NewArxivScanner(server.Client(), nil)
	sc.pageSize = 10

	req := scanner.Request{
		Day:      time.Date(2025, time.November, 8, 0, 0, 0, 0, time.UTC),
		SiteName: "arxiv-ai",
		Categories: []scanner.Category{
			{Name: "cs.AI", URL: server.URL + "/list/cs.AI"},
		},
	}

	papers, err := sc.Scan(context.Background(), req)
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}

	if len(papers) != 1 {
		t.Fatalf("expected 1 paper, got %d", len(papers))
	}
	if papers[0].ID != "2511.00001" || papers[0].Title != "Fresh Paper" {
		t.Fatalf("unexpected paper: %+v", papers[0])
	}
	if papers[0].Abstract != "brand new." {
		t.Fatalf("unexpected abstract: %s", papers[0].Abstract)
	}
}

func TestArxivScannerScanWindow(t *testing.T) {
	t.Parallel()

	server := newListingServer(t)
	sc := NewArxivScanner(server.Client(), nil)
	sc.pageSize = 10

	day := time.Date(2025, time.November, 8, 12, 0, 0, 0, time.UTC)
	req := scanner.Request{
		Day:        day,
		Since:      day.AddDate(0, 0, -2),
		SiteName:   "arxiv-ai",
		Categories: []scanner.Category{{Name: "cs.AI", URL: server.URL}},
	}

	papers, err := sc.Scan(context.Background(), req)
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}

	var ids []string
	for _, p := range papers {
		ids = append(ids, p.ID)
	}
	if !reflect.DeepEqual(ids, []string{"2511.00001", "2511.00003"}) {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestArxivScannerRequiresCategories(t *testing.T) {
	t.Parallel()

	sc := NewArxivScanner(nil, nil)
	if _, err := sc.Scan(context.Background(), scanner.Request{SiteName: "empty"}); err == nil {
		t.Fatal("expected error without categories")
	}
}

func TestArxivScannerPropagatesHTTPErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sc := NewArxivScanner(server.Client(), nil)
	_, err := sc.Scan(context.Background(), scanner.Request{
		Day:        time.Now(),
		SiteName:   "arxiv-ai",
		Categories: []scanner.Category{{Name: "cs.AI", URL: server.URL}},
	})
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestStrategySource(t *testing.T) {
	t.Parallel()

	server := newListingServer(t)
	reg := scanner.NewRegistry()
	sc := NewArxivScanner(server.Client(), nil)
	sc.pageSize = 10
	reg.Register(sc)

	sites := []config.SiteConfig{
		{Name: "arxiv-ai", Scanner: "arxiv", Topic: "ai", Categories: []config.CategoryConfig{{Name: "cs.AI", URL: server.URL + "/a"}}},
		{Name: "arxiv-lg", Scanner: "arxiv", Topic: "ai", Categories: []config.CategoryConfig{{Name: "cs.LG", URL: server.URL + "/b"}}},
		{Name: "arxiv-cl", Scanner: "arxiv", Topic: "ai", Subtopic: "llms", Categories: []config.CategoryConfig{{Name: "cs.CL", URL: server.URL + "/missing"}}},
	}
	source := NewStrategySource(reg, sites, nil)
	source.now = func() time.Time { return time.Date(2025, time.November, 8, 9, 0, 0, 0, time.UTC) }

	ids, err := source.Candidates(context.Background(), time.Date(2025, time.November, 8, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"2511.00001"}) {
		t.Fatalf("candidates should be deduplicated across sites, got %v", ids)
	}

	titles := func(window domain.Range, limit int) []string {
		t.Helper()
		papers, err := source.RecentPapers(context.Background(), "ai", "", window, limit)
		if err != nil {
			t.Fatalf("RecentPapers %s: %v", window, err)
		}
		var out []string
		for _, p := range papers {
			out = append(out, p.Title)
		}
		return out
	}

	if got := titles(domain.RangeMonth, 10); !reflect.DeepEqual(got, []string{"Fresh Paper", "Yesterday Paper", "Old Paper"}) {
		t.Fatalf("unexpected month titles: %v", got)
	}
	if got := titles(domain.RangeWeek, 10); !reflect.DeepEqual(got, []string{"Fresh Paper", "Yesterday Paper"}) {
		t.Fatalf("unexpected week titles: %v", got)
	}
	if got := titles(domain.RangeDay, 10); !reflect.DeepEqual(got, []string{"Fresh Paper"}) {
		t.Fatalf("unexpected day titles: %v", got)
	}
	if got := titles(domain.RangeMonth, 1); len(got) != 1 {
		t.Fatalf("limit not applied: %v", got)
	}

	if _, err := source.RecentPapers(context.Background(), "math", "", domain.RangeWeek, 5); !errors.Is(err, domain.ErrUnknownTopic) {
		t.Fatalf("expected unknown topic, got %v", err)
	}
}

func TestStrategySourceUnknownScanner(t *testing.T) {
	t.Parallel()

	sites := []config.SiteConfig{{Name: "ieee", Scanner: "ieee", Topic: "ai"}}
	source := NewStrategySource(scanner.NewRegistry(), sites, nil)
	if _, err := source.Candidates(context.Background(), time.Now()); err == nil {
		t.Fatal("expected unresolved scanner error")
	}
}
