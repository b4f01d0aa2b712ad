package domain

import "encoding/json"

// CacheEntry is a payload stamped with the logical date it was computed on.
type CacheEntry struct {
	Key       string          `json:"-"`
	CacheDate string          `json:"cacheDate"`
	Data      json.RawMessage `json:"data"`
}

// FeedItem is a single post from a blog or newsletter feed.
type FeedItem struct {
	Feed        string `json:"feed"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet,omitempty"`
	PublishedAt string `json:"publishedAt,omitempty"`
}
