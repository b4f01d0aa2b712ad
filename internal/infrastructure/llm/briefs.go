package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
)

// BriefWriter renders the brief and tagging prompts through any text generator.
type BriefWriter struct {
	gen ports.TextGenerator
}

var (
	_ ports.BriefWriter = (*BriefWriter)(nil)
	_ ports.PaperTagger = (*BriefWriter)(nil)
)

// NewBriefWriter wraps gen.
func NewBriefWriter(gen ports.TextGenerator) *BriefWriter {
	return &BriefWriter{gen: gen}
}

// TrendBrief writes the gaps and opportunities analysis for topic.
func (b *BriefWriter) TrendBrief(ctx context.Context, topic string, window domain.Range, papers []domain.ListedPaper) (string, error) {
	return b.generate(ctx, "trend brief", TrendPrompt(topic, window, papers))
}

// DevPulseBrief writes the developer brief from feed posts.
func (b *BriefWriter) DevPulseBrief(ctx context.Context, items []domain.FeedItem) (string, error) {
	titles := make([]string, 0, len(items))
	for _, item := range items {
		titles = append(titles, item.Title)
	}
	return b.generate(ctx, "dev pulse", DevPulsePrompt(titles))
}

// MarketBrief writes the industry brief from news headlines.
func (b *BriefWriter) MarketBrief(ctx context.Context, items []domain.FeedItem) (string, error) {
	return b.generate(ctx, "market brief", MarketPrompt(items))
}

// TagPapers classifies papers in one request, results in input order. The model may return fewer.
func (b *BriefWriter) TagPapers(ctx context.Context, papers []domain.ListedPaper) ([]domain.PaperTags, error) {
	out, err := b.generate(ctx, "paper tags", TagsPrompt(papers))
	if err != nil {
		return nil, err
	}
	tags, err := ParseTags(out)
	if err != nil {
		return nil, fmt.Errorf("parse paper tags: %w", err)
	}
	return tags, nil
}

func (b *BriefWriter) generate(ctx context.Context, what, prompt string) (string, error) {
	if b == nil || b.gen == nil {
		return "", errors.New("no text generator configured")
	}
	out, err := b.gen.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", what, err)
	}
	return strings.TrimSpace(out), nil
}
