package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"PaperDigest/internal/config"
	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
)

// ErrInvalidKey is returned for cache keys that cannot be mapped onto the store.
var ErrInvalidKey = errors.New("invalid cache key")

var (
	dateExpr   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	unsafeChar = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// Open builds the backend selected in configuration.
func Open(ctx context.Context, cfg config.StorageConfig) (ports.Store, error) {
	switch cfg.Backend {
	case config.BackendFile, "":
		return NewFileStore(cfg.DataDir)
	case config.BackendPostgres:
		return NewPostgresStore(ctx, cfg.DSN)
	case config.BackendMongo:
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// IsDate reports whether s looks like a YYYY-MM-DD partition name.
func IsDate(s string) bool {
	return dateExpr.MatchString(s)
}

// SafeID maps a paper id onto a filesystem-safe name.
func SafeID(id string) string {
	return unsafeChar.ReplaceAllString(id, "_")
}

// orderByIDs returns papers following ids; papers missing from ids keep their relative order at the end.
func orderByIDs(papers []domain.PaperSummary, ids []string) []domain.PaperSummary {
	rank := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, ok := rank[id]; !ok {
			rank[id] = i
		}
	}
	position := func(id string) int {
		if r, ok := rank[id]; ok {
			return r
		}
		return len(ids)
	}
	sort.SliceStable(papers, func(i, j int) bool {
		return position(papers[i].ID) < position(papers[j].ID)
	})
	return papers
}
