package parser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"PaperDigest/internal/config"
	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
	"PaperDigest/internal/scanner"
)

// everything is the subtopic of sites that cover a whole topic; only those feed the daily candidates.
const everything = "everything"

// StrategySource lists candidate and recent papers via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sites    []config.SiteConfig
	now      func() time.Time
	logger   *slog.Logger
}

var (
	_ ports.CandidateSource = (*StrategySource)(nil)
	_ ports.PaperLister     = (*StrategySource)(nil)
)

// NewStrategySource wires scanner registry with config-defined sites.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sites:    sites,
		now:      time.Now,
		logger:   logging.OrDiscard(log),
	}
}

// Candidates returns the ids of papers listed on day across every whole-topic site.
func (s *StrategySource) Candidates(ctx context.Context, day time.Time) ([]string, error) {
	var sites []config.SiteConfig
	for _, site := range s.sites {
		if subtopicOf(site) == everything {
			sites = append(sites, site)
		}
	}
	papers, err := s.scan(ctx, sites, scanner.Request{Day: day})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(papers))
	for _, p := range papers {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

// RecentPapers returns up to limit titled papers listed within window by the sites tagged with
// topic and subtopic. An empty subtopic means everything.
func (s *StrategySource) RecentPapers(ctx context.Context, topic, subtopic string, window domain.Range, limit int) ([]domain.ListedPaper, error) {
	if subtopic == "" {
		subtopic = everything
	}
	var sites []config.SiteConfig
	for _, site := range s.sites {
		if site.Topic == topic && subtopicOf(site) == subtopic {
			sites = append(sites, site)
		}
	}
	if len(sites) == 0 {
		return nil, fmt.Errorf("%w: no sites configured for %s/%s", domain.ErrUnknownTopic, topic, subtopic)
	}

	now := s.now()
	since := now.AddDate(0, 0, 1-window.Days())
	listed, err := s.scan(ctx, sites, scanner.Request{Day: now, Since: since})
	if err != nil {
		return nil, err
	}

	papers := make([]domain.ListedPaper, 0, len(listed))
	for _, p := range listed {
		if p.Title == "" {
			continue
		}
		papers = append(papers, p)
		if limit > 0 && len(papers) >= limit {
			break
		}
	}
	return papers, nil
}

func subtopicOf(site config.SiteConfig) string {
	if site.Subtopic == "" {
		return everything
	}
	return site.Subtopic
}

func (s *StrategySource) scan(ctx context.Context, sites []config.SiteConfig, base scanner.Request) ([]domain.ListedPaper, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	s.logger.Debug("scan sites", "sites", len(sites), "day", base.Day.Format("2006-01-02"))

	seen := map[string]struct{}{}
	var aggregated []domain.ListedPaper
	for _, site := range sites {
		strategy, err := s.registry.Resolve(site.Scanner)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site.Name, err)
		}

		req := base
		req.SiteName = site.Name
		req.Categories = toScannerCategories(site.Categories)

		results, err := strategy.Scan(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("scan site %s: %w", site.Name, err)
		}

		for _, p := range results {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			if p.Source == "" {
				p.Source = site.Name
			}
			aggregated = append(aggregated, p)
		}
		s.logger.Debug("site produced papers", "site", site.Name, "count", len(results))
	}

	return aggregated, nil
}

func toScannerCategories(cfg []config.CategoryConfig) []scanner.Category {
	categories := make([]scanner.Category, 0, len(cfg))
	for _, cat := range cfg {
		categories = append(categories, scanner.Category{
			Name: cat.Name,
			URL:  cat.URL,
		})
	}
	return categories
}
