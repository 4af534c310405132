package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hibiken/asynq"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/repository"
	variantrepository "github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/variant/repository"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/infrastructure/storage"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/logger"
)

// SweepOrphanBlobsHandler reclaims blobs no record points at
// anymore. Deletes remove records before blobs, so a failure there
// leaves orphans; this sweep is what picks them back up.
//
// Blobs younger than the grace period are never touched: an upload
// in flight has its blob stored before its record lands, and must
// not be mistaken for garbage.
type SweepOrphanBlobsHandler struct {
	mods        repository.ModRepository
	variants    variantrepository.VariantRepository
	blobs       storage.Storage
	gracePeriod time.Duration
}

func NewSweepOrphanBlobsHandler(
	mods repository.ModRepository,
	variants variantrepository.VariantRepository,
	blobs storage.Storage,
	gracePeriod time.Duration,
) *SweepOrphanBlobsHandler {
	return &SweepOrphanBlobsHandler{
		mods:        mods,
		variants:    variants,
		blobs:       blobs,
		gracePeriod: gracePeriod,
	}
}

func (h *SweepOrphanBlobsHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload shared.SweepOrphanBlobsPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Error("failed to unmarshal sweep task payload", err)
		return asynq.SkipRetry
	}

	// Step 1: Every key a live record still claims
	referenced, err := h.referencedKeys(ctx)
	if err != nil {
		return err
	}

	// Step 2: Walk the whole bucket
	objects, err := h.blobs.List(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list bucket: %w", err)
	}

	cutoff := time.Now().Add(-h.gracePeriod)
	orphans := make([]string, 0)
	var orphanBytes int64
	for _, obj := range objects {
		if referenced[obj.Key] {
			continue
		}
		if obj.LastModified.After(cutoff) {
			continue
		}
		orphans = append(orphans, obj.Key)
		orphanBytes += obj.Size
	}

	if len(orphans) == 0 {
		logger.Info("orphan sweep found nothing to reclaim", map[string]interface{}{
			"scanned": len(objects),
		})
		return nil
	}

	// Step 3: Reclaim, or just report in dry-run mode
	if payload.DryRun {
		for _, key := range orphans {
			logger.Info("orphan blob (dry run)", map[string]interface{}{
				"key": key,
			})
		}
		logger.Info("orphan sweep dry run complete", map[string]interface{}{
			"scanned":     len(objects),
			"reclaimable": len(orphans),
			"bytes":       humanize.Bytes(uint64(orphanBytes)),
		})
		return nil
	}

	if err := h.blobs.RemoveObjects(ctx, orphans); err != nil {
		return fmt.Errorf("failed to remove orphan blobs: %w", err)
	}

	logger.Info("orphan sweep complete", map[string]interface{}{
		"scanned":   len(objects),
		"reclaimed": len(orphans),
		"bytes":     humanize.Bytes(uint64(orphanBytes)),
	})
	return nil
}

// referencedKeys collects the blob key of every version record plus
// the icon keys of every mod. Anything in the bucket outside this
// set is unreachable.
func (h *SweepOrphanBlobsHandler) referencedKeys(ctx context.Context) (map[string]bool, error) {
	referenced := make(map[string]bool)

	versions, err := h.mods.AllVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list version records: %w", err)
	}
	for i := range versions {
		referenced[versions[i].BlobKey] = true
	}

	variantVersions, err := h.variants.AllVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list variant version records: %w", err)
	}
	for i := range variantVersions {
		referenced[variantVersions[i].BlobKey] = true
	}

	// Icon keys are derived from the mod, not stored on it. Marking
	// them for mods without an icon is harmless: the keys hold
	// nothing.
	mods, err := h.mods.AllMods(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list mod records: %w", err)
	}
	for i := range mods {
		scope, modID := mods[i].CustomerID, mods[i].ModID
		referenced[storage.ModIconOriginalKey(scope, modID)] = true
		for size := range storage.IconSizes {
			referenced[storage.ModIconKey(scope, modID, size)] = true
		}
	}

	return referenced, nil
}
