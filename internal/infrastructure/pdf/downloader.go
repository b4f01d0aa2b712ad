package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"PaperDigest/internal/infrastructure/storage"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

// Downloader writes PDFs into uniquely named temporary files.
type Downloader struct {
	client *http.Client
	dir    string
	logger *slog.Logger
}

var _ ports.PDFDownloader = (*Downloader)(nil)

// NewDownloader uses dir for temp files (os.TempDir when empty) and timeout per download.
func NewDownloader(dir string, timeout time.Duration, logger *slog.Logger) *Downloader {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Downloader{
		client: &http.Client{Timeout: timeout},
		dir:    dir,
		logger: logging.OrDiscard(logger),
	}
}

// Download fetches pdfURL and returns the path of the written file; nothing is left behind on error.
func (d *Downloader) Download(ctx context.Context, pdfURL, id string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "PaperDigest/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request pdf: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pdf source returned %s", resp.Status)
	}

	f, err := os.CreateTemp(d.dir, "paper_"+storage.SafeID(id)+"_*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp pdf: %w", err)
	}
	path := f.Name()

	n, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write temp pdf: %w", err)
	}

	d.logger.Debug("pdf downloaded", "id", id, "bytes", n, "path", path)
	return path, nil
}

// Remove deletes a downloaded file; a file that is already gone is not an error.
func (d *Downloader) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove temp pdf: %w", err)
	}
	return nil
}
