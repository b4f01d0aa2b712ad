// Package httpapi exposes the import orchestrator, stored papers and cached briefs over JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
	"PaperDigest/internal/usecase"
)

const (
	dateLayout   = "2006-01-02"
	maxBodyBytes = 1 << 20
)

// PaperImporter is the part of the import orchestrator the routes use.
type PaperImporter interface {
	ImportPaper(ctx context.Context, id string) (domain.PaperSummary, error)
	BatchImport(ctx context.Context, ids []string, concurrency int) domain.BatchResult
	Today() string
}

// BriefService produces cached markdown briefs and the tagged paper feed.
type BriefService interface {
	Trends(ctx context.Context, q usecase.TrendQuery, refresh bool) (string, error)
	Feed(ctx context.Context, topic, subtopic string, refresh bool) ([]domain.FeedPaper, error)
	DevPulse(ctx context.Context, refresh bool) (string, error)
	MarketTrends(ctx context.Context, refresh bool) (string, error)
}

// DailyJob runs candidate discovery and import for a day.
type DailyJob interface {
	ProcessDay(ctx context.Context, day time.Time, force bool) (usecase.DayReport, error)
}

// Deps wires the server to its use cases.
type Deps struct {
	Store       ports.PaperStore
	Importer    PaperImporter
	Briefs      BriefService
	Daily       DailyJob
	Concurrency int
	Logger      *slog.Logger
	Now         func() time.Time
}

// Server routes API requests.
type Server struct {
	store       ports.PaperStore
	importer    PaperImporter
	briefs      BriefService
	daily       DailyJob
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
	mux         *http.ServeMux
}

// New builds the server and registers its routes.
func New(deps Deps) *Server {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		store:       deps.Store,
		importer:    deps.Importer,
		briefs:      deps.Briefs,
		daily:       deps.Daily,
		concurrency: deps.Concurrency,
		logger:      logging.OrDiscard(deps.Logger),
		now:         now,
		mux:         http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /api/import-paper", withJSON(s.importPaper))
	s.mux.HandleFunc("POST /api/warm-papers", withJSON(s.warmPapers))
	s.mux.HandleFunc("POST /api/fetch-papers", withJSON(s.fetchPapers))
	s.mux.HandleFunc("GET /api/papers", withJSON(s.papersForDate))
	s.mux.HandleFunc("GET /api/papers/{id...}", withJSON(s.paperByID))
	s.mux.HandleFunc("GET /api/trends", withJSON(s.trends))
	s.mux.HandleFunc("GET /api/feed", withJSON(s.feed))
	s.mux.HandleFunc("GET /api/dev-pulse", withJSON(s.devPulse))
	s.mux.HandleFunc("GET /api/market-trends", withJSON(s.marketTrends))
	s.mux.HandleFunc("GET /healthz", withJSON(func(http.ResponseWriter, *http.Request) (any, int, error) {
		return map[string]string{"status": "ok"}, http.StatusOK, nil
	}))

	return s
}

// Handler returns the routed handler wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequest(s.mux)
}

type importRequest struct {
	PaperID string `json:"paperId"`
}

func (s *Server) importPaper(w http.ResponseWriter, r *http.Request) (any, int, error) {
	var req importRequest
	if err := decodeBody(w, r, &req); err != nil {
		return nil, http.StatusBadRequest, err
	}
	id := strings.TrimSpace(req.PaperID)
	if id == "" {
		return nil, http.StatusBadRequest, errors.New("paperId is required")
	}

	summary, err := s.importer.ImportPaper(r.Context(), id)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("import failed: %w", err)
	}
	return map[string]string{
		"message": fmt.Sprintf("Imported %q", summary.Title),
		"paperId": summary.ID,
	}, http.StatusOK, nil
}

type warmRequest struct {
	PaperIDs []string `json:"paperIds"`
}

func (s *Server) warmPapers(w http.ResponseWriter, r *http.Request) (any, int, error) {
	var req warmRequest
	if err := decodeBody(w, r, &req); err != nil {
		return nil, http.StatusBadRequest, err
	}
	ids := make([]string, 0, len(req.PaperIDs))
	for _, id := range req.PaperIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, http.StatusBadRequest, errors.New("paperIds must be a non-empty array")
	}

	return s.importer.BatchImport(r.Context(), ids, s.concurrency), http.StatusOK, nil
}

func (s *Server) fetchPapers(_ http.ResponseWriter, r *http.Request) (any, int, error) {
	if s.daily == nil {
		return nil, http.StatusServiceUnavailable, errors.New("daily job is not configured")
	}
	force := r.URL.Query().Get("force") == "true"
	report, err := s.daily.ProcessDay(r.Context(), s.now(), force)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("pipeline failed: %w", err)
	}
	return report, http.StatusOK, nil
}

type papersResponse struct {
	Date           string                `json:"date"`
	Papers         []domain.PaperSummary `json:"papers"`
	AvailableDates []string              `json:"availableDates"`
	FetchedAt      *time.Time            `json:"fetchedAt"`
}

func (s *Server) papersForDate(_ http.ResponseWriter, r *http.Request) (any, int, error) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		date = s.importer.Today()
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("invalid date %q", date)
	}

	resp := papersResponse{Date: date}
	var meta *domain.DayMeta

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		resp.Papers, err = s.store.GetPapersForDate(ctx, date)
		return err
	})
	g.Go(func() (err error) {
		resp.AvailableDates, err = s.store.GetAvailableDates(ctx)
		return err
	})
	g.Go(func() (err error) {
		meta, err = s.store.GetDayMeta(ctx, date)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("load papers: %w", err)
	}

	if resp.Papers == nil {
		resp.Papers = []domain.PaperSummary{}
	}
	if resp.AvailableDates == nil {
		resp.AvailableDates = []string{}
	}
	if meta != nil {
		resp.FetchedAt = &meta.FetchedAt
	}
	return resp, http.StatusOK, nil
}

func (s *Server) paperByID(_ http.ResponseWriter, r *http.Request) (any, int, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return nil, http.StatusBadRequest, errors.New("missing paper id")
	}

	located, err := s.store.FindPaperByID(r.Context(), id)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("find paper: %w", err)
	}
	if located != nil {
		return located, http.StatusOK, nil
	}

	s.logger.Info("paper not in storage, importing on demand", "id", id)
	summary, err := s.importer.ImportPaper(r.Context(), id)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("failed to import paper: %w", err)
	}
	return domain.LocatedPaper{Paper: summary, Date: s.importer.Today()}, http.StatusOK, nil
}

type contentResponse struct {
	Content string `json:"content"`
}

type feedResponse struct {
	Papers []domain.FeedPaper `json:"papers"`
}

func (s *Server) trends(_ http.ResponseWriter, r *http.Request) (any, int, error) {
	q := r.URL.Query()
	window, err := domain.ParseRange(q.Get("range"))
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	content, err := s.briefs.Trends(r.Context(), usecase.TrendQuery{
		Topic:    q.Get("topic"),
		Subtopic: q.Get("subtopic"),
		Range:    window,
	}, q.Get("refresh") == "true")
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("failed to generate trends: %w", err)
	}
	return contentResponse{Content: content}, http.StatusOK, nil
}

func (s *Server) feed(_ http.ResponseWriter, r *http.Request) (any, int, error) {
	q := r.URL.Query()
	papers, err := s.briefs.Feed(r.Context(), q.Get("topic"), q.Get("subtopic"), q.Get("refresh") == "true")
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("failed to load feed: %w", err)
	}
	if papers == nil {
		papers = []domain.FeedPaper{}
	}
	return feedResponse{Papers: papers}, http.StatusOK, nil
}

func (s *Server) marketTrends(_ http.ResponseWriter, r *http.Request) (any, int, error) {
	content, err := s.briefs.MarketTrends(r.Context(), r.URL.Query().Get("refresh") == "true")
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("failed to generate market trends: %w", err)
	}
	return contentResponse{Content: content}, http.StatusOK, nil
}

func (s *Server) devPulse(_ http.ResponseWriter, r *http.Request) (any, int, error) {
	content, err := s.briefs.DevPulse(r.Context(), r.URL.Query().Get("refresh") == "true")
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("failed to generate dev pulse: %w", err)
	}
	return contentResponse{Content: content}, http.StatusOK, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func withJSON(handler func(http.ResponseWriter, *http.Request) (any, int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, status, err := handler(w, r)
		if err != nil {
			writeJSON(w, status, map[string]any{
				"error": err.Error(),
			})
			return
		}
		writeJSON(w, status, payload)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
