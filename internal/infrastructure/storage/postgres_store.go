package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS day_meta (
		date TEXT PRIMARY KEY,
		paper_ids TEXT[] NOT NULL DEFAULT '{}',
		fetched_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS papers (
		id TEXT NOT NULL,
		date TEXT NOT NULL,
		title TEXT NOT NULL,
		data JSONB NOT NULL,
		fetched_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (id, date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_papers_id_date ON papers (id, date DESC)`,
	`CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		cache_date TEXT NOT NULL,
		data JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// PostgresStore persists papers, day metadata and cache entries in Postgres tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ ports.Store = (*PostgresStore)(nil)

// NewPostgresStore connects and creates the tables when missing.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	for _, q := range schema {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}

// DayExists reports whether day_meta has a row for date.
func (s *PostgresStore) DayExists(ctx context.Context, date string) (bool, error) {
	query, args, err := dayExistsQuery(date)
	if err != nil {
		return false, err
	}
	var count int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("query day exists: %w", err)
	}
	return count > 0, nil
}

// SavePaper upserts the paper keyed by (id, date).
func (s *PostgresStore) SavePaper(ctx context.Context, date string, paper domain.PaperSummary) error {
	query, args, err := savePaperQuery(date, paper)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert paper %s/%s: %w", date, paper.ID, err)
	}
	return nil
}

// SaveDayMeta replaces the id list and fetch time for the date.
func (s *PostgresStore) SaveDayMeta(ctx context.Context, meta domain.DayMeta) error {
	query, args, err := saveDayMetaQuery(meta)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert day meta %s: %w", meta.Date, err)
	}
	return nil
}

// AddPaperToDay merges id into day_meta in a single statement.
func (s *PostgresStore) AddPaperToDay(ctx context.Context, date, id string, fetchedAt time.Time) error {
	query, args, err := addPaperToDayQuery(date, id, fetchedAt)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("merge day meta %s: %w", date, err)
	}
	return nil
}

// GetDayMeta returns nil when the date has no row.
func (s *PostgresStore) GetDayMeta(ctx context.Context, date string) (*domain.DayMeta, error) {
	query, args, err := psql.Select("date", "paper_ids", "fetched_at").
		From("day_meta").
		Where(sq.Eq{"date": date}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build day meta query: %w", err)
	}

	var meta domain.DayMeta
	err = s.pool.QueryRow(ctx, query, args...).Scan(&meta.Date, &meta.PaperIDs, &meta.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query day meta %s: %w", date, err)
	}
	return &meta, nil
}

// GetPaper returns nil when (date, id) has no row.
func (s *PostgresStore) GetPaper(ctx context.Context, date, id string) (*domain.PaperSummary, error) {
	query, args, err := psql.Select("data").
		From("papers").
		Where(sq.Eq{"id": id, "date": date}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build paper query: %w", err)
	}

	var raw []byte
	err = s.pool.QueryRow(ctx, query, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query paper %s/%s: %w", date, id, err)
	}
	return decodePaper(raw)
}

// GetPapersForDate scans the date partition in import order.
func (s *PostgresStore) GetPapersForDate(ctx context.Context, date string) ([]domain.PaperSummary, error) {
	query, args, err := psql.Select("data").
		From("papers").
		Where(sq.Eq{"date": date}).
		OrderBy("fetched_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build papers query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query papers %s: %w", date, err)
	}
	defer rows.Close()

	papers := []domain.PaperSummary{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		paper, err := decodePaper(raw)
		if err != nil {
			return nil, err
		}
		papers = append(papers, *paper)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return papers, nil
}

// GetAvailableDates lists day_meta dates, newest first.
func (s *PostgresStore) GetAvailableDates(ctx context.Context) ([]string, error) {
	query, args, err := psql.Select("date").From("day_meta").OrderBy("date DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build dates query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dates: %w", err)
	}
	defer rows.Close()

	dates := []string{}
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		dates = append(dates, date)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return dates, nil
}

// FindPaperByID returns the copy under the newest date whose day_meta lists it.
func (s *PostgresStore) FindPaperByID(ctx context.Context, id string) (*domain.LocatedPaper, error) {
	query, args, err := findPaperQuery(id)
	if err != nil {
		return nil, err
	}

	var (
		date string
		raw  []byte
	)
	err = s.pool.QueryRow(ctx, query, args...).Scan(&date, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find paper %s: %w", id, err)
	}
	paper, err := decodePaper(raw)
	if err != nil {
		return nil, err
	}
	return &domain.LocatedPaper{Paper: *paper, Date: date}, nil
}

// GetCacheEntry returns nil when the key has no row.
func (s *PostgresStore) GetCacheEntry(ctx context.Context, key string) (*domain.CacheEntry, error) {
	query, args, err := psql.Select("cache_date", "data").
		From("cache_entries").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build cache query: %w", err)
	}

	entry := domain.CacheEntry{Key: key}
	var raw []byte
	err = s.pool.QueryRow(ctx, query, args...).Scan(&entry.CacheDate, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cache %s: %w", key, err)
	}
	entry.Data = json.RawMessage(raw)
	return &entry, nil
}

// SetCacheEntry upserts the entry by key.
func (s *PostgresStore) SetCacheEntry(ctx context.Context, entry domain.CacheEntry) error {
	query, args, err := setCacheQuery(entry)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert cache %s: %w", entry.Key, err)
	}
	return nil
}

func dayExistsQuery(date string) (string, []any, error) {
	query, args, err := psql.Select("COUNT(*)").From("day_meta").Where(sq.Eq{"date": date}).ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build day exists query: %w", err)
	}
	return query, args, nil
}

func savePaperQuery(date string, paper domain.PaperSummary) (string, []any, error) {
	data, err := json.Marshal(paper)
	if err != nil {
		return "", nil, fmt.Errorf("marshal paper %s: %w", paper.ID, err)
	}
	query, args, err := psql.Insert("papers").
		Columns("id", "date", "title", "data", "fetched_at").
		Values(paper.ID, date, paper.Title, string(data), paper.FetchedAt).
		Suffix(`ON CONFLICT (id, date) DO UPDATE
			SET title = EXCLUDED.title,
			    data = EXCLUDED.data,
			    fetched_at = EXCLUDED.fetched_at`).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build paper upsert: %w", err)
	}
	return query, args, nil
}

func saveDayMetaQuery(meta domain.DayMeta) (string, []any, error) {
	ids := meta.PaperIDs
	if ids == nil {
		ids = []string{}
	}
	query, args, err := psql.Insert("day_meta").
		Columns("date", "paper_ids", "fetched_at").
		Values(meta.Date, ids, meta.FetchedAt).
		Suffix(`ON CONFLICT (date) DO UPDATE
			SET paper_ids = EXCLUDED.paper_ids,
			    fetched_at = EXCLUDED.fetched_at`).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build day meta upsert: %w", err)
	}
	return query, args, nil
}

func addPaperToDayQuery(date, id string, fetchedAt time.Time) (string, []any, error) {
	query, args, err := psql.Insert("day_meta").
		Columns("date", "paper_ids", "fetched_at").
		Values(date, []string{id}, fetchedAt).
		Suffix(`ON CONFLICT (date) DO UPDATE
			SET paper_ids = CASE
			        WHEN EXCLUDED.paper_ids[1] = ANY(day_meta.paper_ids) THEN day_meta.paper_ids
			        ELSE day_meta.paper_ids || EXCLUDED.paper_ids
			    END,
			    fetched_at = EXCLUDED.fetched_at`).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build day meta merge: %w", err)
	}
	return query, args, nil
}

func findPaperQuery(id string) (string, []any, error) {
	query, args, err := psql.Select("p.date", "p.data").
		From("papers p").
		Join("day_meta m ON m.date = p.date AND p.id = ANY(m.paper_ids)").
		Where(sq.Eq{"p.id": id}).
		OrderBy("p.date DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build find paper query: %w", err)
	}
	return query, args, nil
}

func setCacheQuery(entry domain.CacheEntry) (string, []any, error) {
	if entry.Key == "" {
		return "", nil, ErrInvalidKey
	}
	query, args, err := psql.Insert("cache_entries").
		Columns("key", "cache_date", "data", "updated_at").
		Values(entry.Key, entry.CacheDate, string(entry.Data), sq.Expr("NOW()")).
		Suffix(`ON CONFLICT (key) DO UPDATE
			SET cache_date = EXCLUDED.cache_date,
			    data = EXCLUDED.data,
			    updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build cache upsert: %w", err)
	}
	return query, args, nil
}

func decodePaper(raw []byte) (*domain.PaperSummary, error) {
	var paper domain.PaperSummary
	if err := json.Unmarshal(raw, &paper); err != nil {
		return nil, fmt.Errorf("decode paper: %w", err)
	}
	return &paper, nil
}
