package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"PaperDigest/internal/domain"
)

// Category describes a concrete listing endpoint provided by config.
type Category struct {
	Name string
	URL  string
}

// Request carries all parameters required to execute a scan.
// Entries published within [Since, Day] are returned; a zero Since means Day only.
type Request struct {
	Day        time.Time
	Since      time.Time
	SiteName   string
	Categories []Category
}

// Window returns the inclusive day range covered by the request, truncated to UTC days.
func (r Request) Window() (from, to time.Time) {
	to = r.Day.UTC().Truncate(24 * time.Hour)
	from = to
	if !r.Since.IsZero() {
		from = r.Since.UTC().Truncate(24 * time.Hour)
	}
	return from, to
}

// Scanner captures a single listing strategy (arXiv for now).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.ListedPaper, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}

// Names lists registered scanners in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
