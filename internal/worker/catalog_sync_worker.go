package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_catalog/internal/models"
	"github.com/GTDGit/gtd_catalog/internal/utils"
)

type catalogSyncer interface {
	Sync(ctx context.Context, opts models.SyncOptions, events chan<- models.SyncEvent) (*models.SyncSummary, error)
}

// CatalogSyncWorker periodically runs a catalog sync for each provider.
type CatalogSyncWorker struct {
	syncer    catalogSyncer
	providers []string
	interval  time.Duration
}

// NewCatalogSyncWorker constructs a CatalogSyncWorker.
func NewCatalogSyncWorker(syncer catalogSyncer, providers []string, interval time.Duration) *CatalogSyncWorker {
	return &CatalogSyncWorker{
		syncer:    syncer,
		providers: providers,
		interval:  interval,
	}
}

// Start begins the periodic sync loop and listens for context cancellation.
// A non-positive interval disables the worker.
func (w *CatalogSyncWorker) Start(ctx context.Context) {
	if w.interval <= 0 {
		log.Info().Msg("Catalog sync worker disabled")
		return
	}
	log.Info().Dur("interval", w.interval).Strs("providers", w.providers).Msg("Starting catalog sync worker")

	// Run immediately on start
	w.run(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.run(ctx)
		case <-ctx.Done():
			log.Info().Msg("Catalog sync worker stopped")
			return
		}
	}
}

func (w *CatalogSyncWorker) run(ctx context.Context) {
	for _, provider := range w.providers {
		if ctx.Err() != nil {
			return
		}
		summary, err := w.syncer.Sync(ctx, models.SyncOptions{Provider: provider}, nil)
		switch {
		case errors.Is(err, utils.ErrRunInProgress):
			log.Info().Str("provider", provider).Msg("Catalog sync already running, skipping tick")
		case err != nil:
			log.Error().Err(err).Str("provider", provider).Msg("Scheduled catalog sync failed")
		default:
			log.Info().
				Str("provider", provider).
				Int("upserted", summary.Upserted).
				Int("deactivated", summary.Deactivated).
				Int("warnings", summary.Warnings).
				Msg("Scheduled catalog sync completed")
		}
	}
}
