package main

import (
	"github.com/hibiken/asynq"

	modJob "github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/job"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/infrastructure/storage"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/container"
)

// HandlerRegistry holds all job handlers
type HandlerRegistry struct {
	// Icon pipeline
	processIcon *modJob.ProcessIconHandler

	// Maintenance handlers
	sweepOrphans    *modJob.SweepOrphanBlobsHandler
	backfillIndexes *modJob.BackfillIndexesHandler
}

// initializeHandlers creates all job handlers with their dependencies
func initializeHandlers(c *container.Container) *HandlerRegistry {
	// The icon processor is stateless, so the worker builds its own
	// instead of reaching into the API wiring
	icons := storage.NewIconProcessor(c.Config.Upload.MaxIconBytes())

	return &HandlerRegistry{
		// Icon pipeline
		processIcon: modJob.NewProcessIconHandler(c.ModRepo, c.Storage, icons, c.Cache),

		// Maintenance handlers
		sweepOrphans: modJob.NewSweepOrphanBlobsHandler(
			c.ModRepo,
			c.VariantRepo,
			c.Storage,
			c.Config.Jobs.SweepGracePeriod,
		),
		backfillIndexes: modJob.NewBackfillIndexesHandler(c.ModRepo),
	}
}

// RegisterHandlers registers all handlers with the mux
func (h *HandlerRegistry) RegisterHandlers(mux *asynq.ServeMux) {
	// Icon tasks
	mux.HandleFunc(shared.TypeProcessModIcon, h.processIcon.ProcessTask)

	// Maintenance tasks
	mux.HandleFunc(shared.TypeSweepOrphanBlobs, h.sweepOrphans.ProcessTask)
	mux.HandleFunc(shared.TypeBackfillIndexes, h.backfillIndexes.ProcessTask)
}
