package domain

import (
	"errors"
	"fmt"
)

// ErrUnknownTopic is returned by paper listers that have no source for a topic and subtopic.
var ErrUnknownTopic = errors.New("unknown topic")

// Range is the look-back window of a trend brief.
type Range string

const (
	RangeDay   Range = "day"
	RangeWeek  Range = "week"
	RangeMonth Range = "month"
)

// ParseRange accepts day, week and month; an empty string means month.
func ParseRange(s string) (Range, error) {
	switch r := Range(s); r {
	case "":
		return RangeMonth, nil
	case RangeDay, RangeWeek, RangeMonth:
		return r, nil
	default:
		return "", fmt.Errorf("invalid range %q", s)
	}
}

// Days is the number of calendar days the range covers, today included.
func (r Range) Days() int {
	switch r {
	case RangeDay:
		return 1
	case RangeWeek:
		return 7
	default:
		return 30
	}
}

// PaperTags classify a paper for the browse feed.
type PaperTags struct {
	MLTag       string `json:"mlTag"`
	AppTag      string `json:"appTag"`
	Description string `json:"description"`
}

// FeedPaper is a tagged, unsummarized paper shown in the browse feed.
type FeedPaper struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Abstract    string   `json:"abstract"`
	Description string   `json:"description"`
	MLTag       string   `json:"mlTag"`
	AppTag      string   `json:"appTag"`
	ArxivURL    string   `json:"arxivUrl"`
	PDFURL      string   `json:"pdfUrl"`
	PublishedAt string   `json:"publishedAt"`
	MediaURLs   []string `json:"mediaUrls"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
	Source      string   `json:"source"`
}
