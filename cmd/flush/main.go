// Command flush pushes every draft left dirty in local storage to the backend, e.g. after the
// client crashed before it could sync.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/draftsync/internal/backend"
	"github.com/debemdeboas/draftsync/internal/cache"
	"github.com/debemdeboas/draftsync/internal/config"
	"github.com/debemdeboas/draftsync/internal/logger"
	"github.com/debemdeboas/draftsync/internal/storage"
	"github.com/debemdeboas/draftsync/internal/syncer"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	dryRun := flag.Bool("dry-run", false, "List pending drafts without sending them")
	prune := flag.Bool("prune", false, "Remove drafts from local storage once synced")
	timeout := flag.Duration("timeout", time.Minute, "Overall deadline for the run")
	flag.Parse()

	log := logger.New("info", "console")
	config.SetLogger(log)

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}
	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatal().Msgf(config.ErrLoadConfigFmt, err)
	}
	cfg := config.AppConfig

	log = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	cache.SetLogger(log)
	storage.SetLogger(log)
	backend.SetLogger(log)
	syncer.SetLogger(log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

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
	if err := flush(ctx, log, drafts, syncer.New(drafts, b), *dryRun, *prune); err != nil {
		log.Error().Err(err).Msg("Some drafts could not be synced, they stay in local storage")
		os.Exit(1)
	}
}

func flush(ctx context.Context, log zerolog.Logger, drafts *cache.DraftCache, s *syncer.Coordinator, dryRun, prune bool) error {
	pending := drafts.Pending()
	if len(pending) == 0 {
		log.Info().Msg("No pending drafts")
		return nil
	}

	if dryRun {
		for _, e := range pending {
			fmt.Printf("%s\t%s\tempty=%v\n", e.Key, e.Timestamp.Format(time.RFC3339), e.IsEmpty())
		}
		return nil
	}

	report, err := s.SyncPending(ctx)
	for key, outcome := range report {
		log.Info().Str("key", string(key)).Stringer("outcome", outcome).Msg("Processed draft")
		if prune && (outcome == syncer.Saved || outcome == syncer.Deleted) {
			drafts.Remove(key)
		}
	}
	return err
}
