package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"PaperDigest/internal/config"
	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

// Gemini summarizes PDFs and writes short briefs through the Gemini API.
type Gemini struct {
	client         *genai.Client
	summaryModel   string
	textModel      string
	summaryTimeout time.Duration
	textTimeout    time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

var (
	_ ports.Summarizer    = (*Gemini)(nil)
	_ ports.TextGenerator = (*Gemini)(nil)
)

// NewGemini creates the API client from configuration.
func NewGemini(ctx context.Context, cfg config.GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Gemini{
		client:         client,
		summaryModel:   cfg.SummaryModel,
		textModel:      cfg.TextModel,
		summaryTimeout: cfg.SummaryTimeout,
		textTimeout:    cfg.TextTimeout,
		now:            time.Now,
		logger:         logging.OrDiscard(logger),
	}, nil
}

// Summarize sends the PDF inline with the structured prompt and parses the JSON reply.
func (g *Gemini) Summarize(ctx context.Context, pdf []byte, paper domain.FetchedPaper) (domain.PaperSummary, error) {
	ctx, cancel := withTimeout(ctx, g.summaryTimeout)
	defer cancel()

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: summaryPrompt},
			{InlineData: &genai.Blob{MIMEType: "application/pdf", Data: pdf}},
			{Text: analyzeInstruction(paper.Title)},
		},
	}}
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	started := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.summaryModel, contents, cfg)
	if err != nil {
		return domain.PaperSummary{}, fmt.Errorf("gemini summarize %s: %w", paper.ID, err)
	}
	text, err := responseText(resp)
	if err != nil {
		return domain.PaperSummary{}, fmt.Errorf("gemini summarize %s: %w", paper.ID, err)
	}
	g.logger.Debug("summary generated", "id", paper.ID, "model", g.summaryModel, "chars", len(text), "elapsed", time.Since(started))

	fields, err := ParseSummary(text)
	if err != nil {
		return domain.PaperSummary{}, fmt.Errorf("parse summary %s: %w", paper.ID, err)
	}
	return buildSummary(paper, fields, g.now().UTC()), nil
}

// Generate returns the plain text reply for prompt.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, g.textTimeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.textModel, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("no response from gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("empty response from gemini")
	}
	return b.String(), nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
