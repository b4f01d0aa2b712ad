// Package catalog resolves paper metadata from external catalog sources.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

// ErrNotFound is returned when no source knows a paper id.
var ErrNotFound = errors.New("paper not found in catalog")

// Source is a single catalog queried by id.
type Source interface {
	Name() string
	Lookup(ctx context.Context, id string) (domain.FetchedPaper, error)
}

// Links builds canonical abstract and PDF URLs for an id.
type Links struct {
	AbsBase string
	PDFBase string
}

// Abs returns the abstract page URL for id.
func (l Links) Abs(id string) string {
	return ensureSlash(l.AbsBase) + id
}

// PDF returns the PDF URL for id.
func (l Links) PDF(id string) string {
	return ensureSlash(l.PDFBase) + id
}

func ensureSlash(base string) string {
	if base == "" || strings.HasSuffix(base, "/") {
		return base
	}
	return base + "/"
}

// Resolver tries each source in priority order.
type Resolver struct {
	sources []Source
	links   Links
	now     func() time.Time
	logger  *slog.Logger
}

var _ ports.MetadataResolver = (*Resolver)(nil)

// NewResolver builds a resolver over sources, highest priority first.
func NewResolver(links Links, logger *slog.Logger, sources ...Source) *Resolver {
	return &Resolver{
		sources: sources,
		links:   links,
		now:     time.Now,
		logger:  logging.OrDiscard(logger),
	}
}

// Resolve returns metadata from the first source that knows id, or ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, id string) (domain.FetchedPaper, error) {
	var errs []error
	for _, src := range r.sources {
		paper, err := src.Lookup(ctx, id)
		if err == nil {
			r.logger.Debug("metadata resolved", "id", id, "source", src.Name())
			return paper, nil
		}
		r.logger.Debug("metadata source missed", "id", id, "source", src.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
	}
	if len(errs) == 0 {
		return domain.FetchedPaper{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return domain.FetchedPaper{}, fmt.Errorf("%w: %s: %w", ErrNotFound, id, errors.Join(errs...))
}

// Synthetic builds a placeholder record that lets an import proceed without catalog metadata.
func (r *Resolver) Synthetic(id string) domain.FetchedPaper {
	return domain.FetchedPaper{
		ID:          id,
		Title:       id,
		Authors:     []string{},
		ArxivURL:    r.links.Abs(id),
		PDFURL:      r.links.PDF(id),
		Upvotes:     0,
		PublishedAt: r.now().UTC(),
		MediaURLs:   []string{},
	}
}
