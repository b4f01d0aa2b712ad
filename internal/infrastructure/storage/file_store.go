package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
)

const metaFileName = "meta.json"

// FileStore keeps every record as an indented JSON file under a data directory:
// papers/<date>/meta.json, papers/<date>/<safeId>.json and cache/<key>.json.
type FileStore struct {
	papersDir string
	cacheDir  string

	// mu serializes read-merge-write cycles on day metadata.
	mu sync.Mutex
}

var _ ports.Store = (*FileStore)(nil)

// NewFileStore prepares the directory tree under root.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("file store root is empty")
	}
	s := &FileStore{
		papersDir: filepath.Join(root, "papers"),
		cacheDir:  filepath.Join(root, "cache"),
	}
	for _, dir := range []string{s.papersDir, s.cacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return s, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close(context.Context) error {
	return nil
}

func (s *FileStore) dayDir(date string) string {
	return filepath.Join(s.papersDir, date)
}

func (s *FileStore) metaPath(date string) string {
	return filepath.Join(s.dayDir(date), metaFileName)
}

func (s *FileStore) paperPath(date, id string) string {
	return filepath.Join(s.dayDir(date), SafeID(id)+".json")
}

func (s *FileStore) cachePath(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrInvalidKey
	}
	path := filepath.Join(s.cacheDir, filepath.FromSlash(key)+".json")
	rel, err := filepath.Rel(s.cacheDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return path, nil
}

// DayExists reports whether the date has a meta record.
func (s *FileStore) DayExists(_ context.Context, date string) (bool, error) {
	_, err := os.Stat(s.metaPath(date))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat day %s: %w", date, err)
}

// SavePaper overwrites the paper file for (date, id).
func (s *FileStore) SavePaper(_ context.Context, date string, paper domain.PaperSummary) error {
	if err := writeJSON(s.paperPath(date, paper.ID), paper); err != nil {
		return fmt.Errorf("save paper %s/%s: %w", date, paper.ID, err)
	}
	return nil
}

// SaveDayMeta replaces the day's meta record wholesale.
func (s *FileStore) SaveDayMeta(_ context.Context, meta domain.DayMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeJSON(s.metaPath(meta.Date), meta); err != nil {
		return fmt.Errorf("save day meta %s: %w", meta.Date, err)
	}
	return nil
}

// AddPaperToDay appends id to the day's meta unless it is already listed.
func (s *FileStore) AddPaperToDay(_ context.Context, date, id string, fetchedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMeta(date)
	if err != nil {
		return err
	}
	if meta == nil {
		meta = &domain.DayMeta{Date: date}
	}
	if !meta.Contains(id) {
		meta.PaperIDs = append(meta.PaperIDs, id)
	}
	meta.FetchedAt = fetchedAt

	if err := writeJSON(s.metaPath(date), meta); err != nil {
		return fmt.Errorf("save day meta %s: %w", date, err)
	}
	return nil
}

// GetDayMeta returns nil when the date has no meta record.
func (s *FileStore) GetDayMeta(_ context.Context, date string) (*domain.DayMeta, error) {
	return s.readMeta(date)
}

func (s *FileStore) readMeta(date string) (*domain.DayMeta, error) {
	var meta domain.DayMeta
	found, err := readJSON(s.metaPath(date), &meta)
	if err != nil {
		return nil, fmt.Errorf("read day meta %s: %w", date, err)
	}
	if !found {
		return nil, nil
	}
	return &meta, nil
}

// GetPaper returns nil when the paper is not stored under date. Distinct ids can
// share a file name after sanitizing, so a file holding another id is a miss.
func (s *FileStore) GetPaper(_ context.Context, date, id string) (*domain.PaperSummary, error) {
	var paper domain.PaperSummary
	found, err := readJSON(s.paperPath(date, id), &paper)
	if err != nil {
		return nil, fmt.Errorf("read paper %s/%s: %w", date, id, err)
	}
	if !found || paper.ID != id {
		return nil, nil
	}
	return &paper, nil
}

// GetPapersForDate follows the meta record's id order, skipping ids without a paper file.
func (s *FileStore) GetPapersForDate(ctx context.Context, date string) ([]domain.PaperSummary, error) {
	meta, err := s.GetDayMeta(ctx, date)
	if err != nil || meta == nil {
		return []domain.PaperSummary{}, err
	}

	papers := make([]domain.PaperSummary, 0, len(meta.PaperIDs))
	for _, id := range meta.PaperIDs {
		paper, err := s.GetPaper(ctx, date, id)
		if err != nil {
			return nil, err
		}
		if paper != nil {
			papers = append(papers, *paper)
		}
	}
	return papers, nil
}

// GetAvailableDates lists date directories holding a meta record, newest first.
func (s *FileStore) GetAvailableDates(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.papersDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list dates: %w", err)
	}

	dates := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !IsDate(e.Name()) {
			continue
		}
		if _, err := os.Stat(s.metaPath(e.Name())); err != nil {
			continue
		}
		dates = append(dates, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// FindPaperByID scans dates newest first and returns the first copy listed in its day's meta.
func (s *FileStore) FindPaperByID(ctx context.Context, id string) (*domain.LocatedPaper, error) {
	dates, err := s.GetAvailableDates(ctx)
	if err != nil {
		return nil, err
	}
	for _, date := range dates {
		meta, err := s.readMeta(date)
		if err != nil {
			return nil, err
		}
		if meta == nil || !meta.Contains(id) {
			continue
		}
		paper, err := s.GetPaper(ctx, date, id)
		if err != nil {
			return nil, err
		}
		if paper != nil {
			return &domain.LocatedPaper{Paper: *paper, Date: date}, nil
		}
	}
	return nil, nil
}

// GetCacheEntry returns nil when the key has never been written.
func (s *FileStore) GetCacheEntry(_ context.Context, key string) (*domain.CacheEntry, error) {
	path, err := s.cachePath(key)
	if err != nil {
		return nil, err
	}
	var entry domain.CacheEntry
	found, err := readJSON(path, &entry)
	if err != nil {
		return nil, fmt.Errorf("read cache %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	entry.Key = key
	return &entry, nil
}

// SetCacheEntry overwrites the cache file for the entry's key.
func (s *FileStore) SetCacheEntry(_ context.Context, entry domain.CacheEntry) error {
	path, err := s.cachePath(entry.Key)
	if err != nil {
		return err
	}
	if err := writeJSON(path, entry); err != nil {
		return fmt.Errorf("write cache %s: %w", entry.Key, err)
	}
	return nil
}

func readJSON(path string, v any) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

// writeJSON replaces path through a temp file and rename so readers never see a partial document.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}
