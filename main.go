package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/draftsync/internal/backend"
	"github.com/debemdeboas/draftsync/internal/cache"
	"github.com/debemdeboas/draftsync/internal/config"
	"github.com/debemdeboas/draftsync/internal/db"
	"github.com/debemdeboas/draftsync/internal/logger"
	"github.com/debemdeboas/draftsync/internal/storage"
	"github.com/debemdeboas/draftsync/internal/syncer"
	"github.com/debemdeboas/draftsync/internal/validate"
	"github.com/debemdeboas/draftsync/internal/visibility"
	"github.com/debemdeboas/draftsync/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	flag.Parse()

	bootLogger := logger.New("info", "console")
	config.SetLogger(bootLogger)

	if err := godotenv.Load(); err != nil {
		bootLogger.Debug().Err(err).Msg("No .env file loaded")
	}

	if err := config.LoadConfig(*configPath); err != nil {
		bootLogger.Fatal().Msgf(config.ErrLoadConfigFmt, err)
	}
	cfg := config.AppConfig

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	setLoggers(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Msgf(config.ErrOpenStorageFmt, err)
	}
	defer store.Close()

	b, err := backend.New(ctx, cfg.Backend)
	if err != nil {
		log.Fatal().Msgf(config.ErrCreateBackendFmt, err)
	}

	drafts := cache.NewDraftCache(store, cfg.Drafts.MaxEntries)
	staged := newStagedMeta()

	w, err := watcher.New(drafts, b, watcher.Options{
		SaveDebounce:    cfg.Drafts.SaveDebounce,
		GuardWindow:     cfg.Drafts.GuardWindow,
		RemoteSyncDelay: cfg.Drafts.RemoteSyncDelay,
		Retention:       cfg.Drafts.Retention,
		Macros:          staged,
		Attachments:     staged,
	})
	if err != nil {
		log.Fatal().Msgf(config.ErrStartWatcherFmt, err)
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(log, cfg.Metrics.Addr)
	}

	log.Info().
		Str("storage", cfg.Storage.Driver).
		Str("backend", cfg.Backend.Type).
		Int("cached", drafts.Len()).
		Int("pending", len(drafts.Pending())).
		Msg("Draft engine started")

	r := newREPL(os.Stdin, os.Stdout, w, visibility.New(w), drafts, staged)
	if err := r.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Error reading input")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := w.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Active draft not synced on exit, it stays in local storage")
	}
}

func setLoggers(l zerolog.Logger) {
	config.SetLogger(l)
	db.SetLogger(l.With().Str("component", "db").Logger())
	storage.SetLogger(l.With().Str("component", "storage").Logger())
	cache.SetLogger(l.With().Str("component", "cache").Logger())
	validate.SetLogger(l.With().Str("component", "validate").Logger())
	backend.SetLogger(l.With().Str("component", "backend").Logger())
	syncer.SetLogger(l.With().Str("component", "sync").Logger())
	watcher.SetLogger(l.With().Str("component", "watcher").Logger())
	visibility.SetLogger(l.With().Str("component", "visibility").Logger())
}

func serveMetrics(log zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("Metrics server stopped")
	}
}
