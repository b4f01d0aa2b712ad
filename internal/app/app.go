package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"PaperDigest/internal/cache"
	"PaperDigest/internal/config"
	"PaperDigest/internal/httpapi"
	"PaperDigest/internal/infrastructure/catalog"
	"PaperDigest/internal/infrastructure/feeds"
	"PaperDigest/internal/infrastructure/llm"
	"PaperDigest/internal/infrastructure/parser"
	"PaperDigest/internal/infrastructure/pdf"
	"PaperDigest/internal/infrastructure/scheduler"
	"PaperDigest/internal/infrastructure/storage"
	"PaperDigest/internal/infrastructure/telegram"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
	"PaperDigest/internal/scanner"
	"PaperDigest/internal/usecase"
)

const shutdownTimeout = 15 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     ports.Store
	scheduler *usecase.Scheduler
	server    *http.Server
}

// New opens the storage backend and builds every adapter and use case.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}

	gemini, err := llm.NewGemini(ctx, cfg.Gemini, baseLogger.With("component", "llm.gemini"))
	if err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("init summarizer: %w", err)
	}

	var text ports.TextGenerator = gemini
	if cfg.LLM.TextProvider == config.ProviderChatGPT {
		text = llm.NewChatGPTClient(cfg.ChatGPT)
	}

	httpClient := &http.Client{Timeout: cfg.Catalog.Timeout}
	links := catalog.Links{AbsBase: cfg.Catalog.ArxivAbsURL, PDFBase: cfg.Catalog.ArxivPDFURL}

	daily := catalog.NewHuggingFace(httpClient, cfg.Catalog.DailyPapersURL, links, cfg.Scheduler.WarmLimit,
		baseLogger.With("component", "catalog.huggingface"))
	arxiv := catalog.NewArxiv(httpClient, cfg.Catalog.ArxivAPIURL, links,
		baseLogger.With("component", "catalog.arxiv"))
	resolver := catalog.NewResolver(links, baseLogger.With("component", "resolver"), daily, arxiv)

	registry := scanner.NewRegistry()
	registry.Register(parser.NewArxivScanner(httpClient, baseLogger.With("component", "scanner.arxiv")))
	listings := parser.NewStrategySource(registry, cfg.Sites, baseLogger.With("component", "source"))

	importer := usecase.NewImporter(usecase.ImporterDeps{
		Store:       store,
		Resolver:    resolver,
		Downloader:  pdf.NewDownloader(cfg.Import.TempDir, cfg.Import.PDFTimeout, baseLogger.With("component", "pdf")),
		Summarizer:  gemini,
		Concurrency: cfg.Import.Concurrency,
		Logger:      baseLogger.With("component", "importer"),
	})

	var notifier ports.Notifier
	if tg := telegram.NewNotifier(cfg.Notifications.Telegram); tg.Enabled() {
		notifier = tg
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Store:     store,
		Sources:   []ports.CandidateSource{daily, listings},
		Importer:  importer,
		Notifier:  notifier,
		WarmLimit: cfg.Scheduler.WarmLimit,
		Logger:    baseLogger.With("component", "pipeline"),
	})

	briefCache := cache.New(store, cfg.Cache)
	writer := llm.NewBriefWriter(text)
	briefs := usecase.NewBriefs(usecase.BriefsDeps{
		Cache:  briefCache,
		Writer: writer,
		Tagger: writer,
		Papers: map[string]ports.PaperLister{
			usecase.DefaultTopic + "-" + usecase.DefaultSubtopic: daily,
		},
		Fallback: listings,
		Feeds:    feeds.NewReader(cfg.Feeds, nil, baseLogger.With("component", "feeds")),
		Market:   feeds.NewReader(cfg.MarketFeeds, nil, baseLogger.With("component", "feeds.market")),
		Logger:   baseLogger.With("component", "briefs"),
	})

	var sched *usecase.Scheduler
	if cfg.Scheduler.Enabled {
		driver := scheduler.NewRolloverScheduler(briefCache.NextRollover, baseLogger.With("component", "scheduler"))
		sched = usecase.NewScheduler(driver, pipeline, baseLogger.With("component", "scheduler"))
	}

	api := httpapi.New(httpapi.Deps{
		Store:       store,
		Importer:    importer,
		Briefs:      briefs,
		Daily:       pipeline,
		Concurrency: cfg.Import.Concurrency,
		Logger:      baseLogger.With("component", "http"),
	})

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		store:     store,
		scheduler: sched,
		server: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves HTTP and, when enabled, the daily job until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.server.Addr, "storage", a.cfg.Storage.Backend)
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.logger.Info("shutting down")
	var errs []error
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http: %w", err))
	}
	if a.scheduler != nil {
		if err := a.scheduler.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the storage backend.
func (a *Application) Close(ctx context.Context) error {
	return a.store.Close(ctx)
}
