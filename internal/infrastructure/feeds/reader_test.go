package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"

	"PaperDigest/internal/config"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>The Rundown</title>
  <item><title>Agents ship to prod</title><link>https://example.com/a</link><pubDate>Mon, 03 Nov 2025 10:00:00 GMT</pubDate><description>&lt;p&gt;Funding &lt;b&gt;round&lt;/b&gt;
    closes&lt;/p&gt;</description></item>
  <item><title></title><link>https://example.com/untitled</link></item>
  <item><title>Small models win</title><link>https://example.com/b</link></item>
  <item><title>Over the limit</title><link>https://example.com/c</link></item>
</channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Blog</title>
  <entry>
    <title>Prompt caching notes</title>
    <link href="https://blog.example.com/1"/>
    <id>1</id>
    <updated>2025-11-02T08:00:00Z</updated>
  </entry>
</feed>`

func TestReaderRead(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/rss", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssFixture))
	})
	mux.HandleFunc("/atom", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(atomFixture))
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	reader := NewReader([]config.FeedConfig{
		{Name: "rundown", URL: server.URL + "/rss", Limit: 2},
		{Name: "down", URL: server.URL + "/down"},
		{Name: "blog", URL: server.URL + "/atom"},
	}, server.Client(), nil)

	items, err := reader.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d: %+v", len(items), items)
	}

	if items[0].Title != "Agents ship to prod" || items[0].Feed != "rundown" || items[0].PublishedAt != "2025-11-03T10:00:00Z" {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[0].Snippet != "Funding round closes" {
		t.Fatalf("snippet should be plain text: %q", items[0].Snippet)
	}
	if items[1].Title != "Small models win" {
		t.Fatalf("untitled items should be skipped: %+v", items[1])
	}
	if items[2].Feed != "blog" || items[2].Link != "https://blog.example.com/1" || items[2].PublishedAt != "2025-11-02T08:00:00Z" {
		t.Fatalf("unexpected atom item: %+v", items[2])
	}
}

func TestReaderNoFeeds(t *testing.T) {
	t.Parallel()

	items, err := NewReader(nil, nil, nil).Read(context.Background())
	if err != nil || len(items) != 0 {
		t.Fatalf("expected no items, got %v, %v", items, err)
	}
}

func TestSnippetIsCapped(t *testing.T) {
	t.Parallel()

	item := &gofeed.Item{Content: "<div>" + strings.Repeat("word ", 100) + "</div>"}
	got := snippet(item)
	if n := utf8.RuneCountInString(got); n == 0 || n > snippetLen {
		t.Fatalf("unexpected snippet length %d", n)
	}
	if snippet(&gofeed.Item{}) != "" {
		t.Fatal("items without text have no snippet")
	}
}
