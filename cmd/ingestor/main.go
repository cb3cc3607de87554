package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"alerts_ingestor/internal/config"
	"alerts_ingestor/internal/fetcher"
	"alerts_ingestor/internal/notify"
	"alerts_ingestor/internal/pipeline"
	"alerts_ingestor/internal/scheduler"
	"alerts_ingestor/internal/storage"
)

func main() {
	once := flag.Bool("once", false, "run a single ingestion pass and exit")
	flag.Parse()

	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log, *once); err != nil {
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, once bool) error {
	store, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		log.Error("open store", "backend", cfg.Store.Backend, "error", err)
		return err
	}
	defer func() { _ = store.Close() }()

	client := &http.Client{Timeout: cfg.HTTPTimeout}
	fetchers, err := fetcher.ForSources(cfg.Sources, client, fetcher.Params{
		ArticleCount: cfg.Feedly.ArticleCount,
		FetchAll:     cfg.Feedly.FetchAll,
		HoursAgo:     cfg.Feedly.HoursAgo,
		AccessToken:  cfg.Feedly.AccessToken,
		BaseURL:      cfg.Feedly.BaseURL,
	}, log)
	if err != nil {
		log.Error("create fetchers", "error", err)
		return err
	}

	p := pipeline.New(fetcher.NewAggregator(fetchers, log), cfg.Sources, store, log)
	if cfg.Telegram.Enabled() {
		tg, err := notify.NewTelegram(cfg.Telegram, log)
		if err != nil {
			log.Error("create telegram reporter", "error", err)
			return err
		}
		p.SetReporter(tg)
	}

	if once {
		_, err := p.Run(ctx)
		return err
	}

	log.Info("starting ingestor", "sources", len(cfg.Sources), "interval", cfg.Interval, "store", cfg.Store.Backend)
	scheduler.New(p, cfg.Interval, log).Run(ctx)
	log.Info("ingestor stopped")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
