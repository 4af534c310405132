package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/model"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/repository"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/infrastructure/storage"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/cache"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/logger"
)

// ProcessIconHandler resizes an uploaded mod icon into every
// configured size and records the results on the mod. It runs off
// the request path; the upload endpoint only stores the original.
type ProcessIconHandler struct {
	mods  repository.ModRepository
	blobs storage.Storage
	icons *storage.IconProcessor
	cache cache.Cache
}

func NewProcessIconHandler(
	mods repository.ModRepository,
	blobs storage.Storage,
	icons *storage.IconProcessor,
	cacheClient cache.Cache,
) *ProcessIconHandler {
	return &ProcessIconHandler{
		mods:  mods,
		blobs: blobs,
		icons: icons,
		cache: cacheClient,
	}
}

func (h *ProcessIconHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload shared.ProcessModIconPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Error("failed to unmarshal icon task payload", err)
		return asynq.SkipRetry
	}

	logger.Info("processing mod icon", map[string]interface{}{
		"modId": payload.ModID,
	})

	// Step 1: Fetch the uploaded original
	original, _, err := h.blobs.Download(ctx, storage.ModIconOriginalKey(payload.Scope, payload.ModID))
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			// the mod or its icon was deleted since the upload
			logger.Warn("icon original is gone, nothing to process", map[string]interface{}{
				"modId": payload.ModID,
			})
			return nil
		}
		return fmt.Errorf("failed to fetch icon original: %w", err)
	}

	// Step 2: Resize into every configured size. The upload endpoint
	// already validated the image, so a decode failure here is
	// permanent; retrying cannot fix the bytes.
	resized, err := h.icons.ProcessIcon(original)
	if err != nil {
		logger.Error("failed to process icon", err)
		return asynq.SkipRetry
	}

	// Step 3: Store each size
	for name, data := range resized {
		key := storage.ModIconKey(payload.Scope, payload.ModID, name)
		if err := h.blobs.Upload(ctx, key, data, "image/png", nil); err != nil {
			return fmt.Errorf("failed to store %s icon: %w", name, err)
		}
	}

	// Step 4: Record the available sizes on the mod
	mod, err := h.mods.Get(ctx, payload.Scope, payload.ModID)
	if err != nil {
		if errors.Is(err, model.ErrModNotFound) {
			logger.Warn("mod deleted while its icon was processing", map[string]interface{}{
				"modId": payload.ModID,
			})
			return nil
		}
		return fmt.Errorf("failed to load mod: %w", err)
	}

	sizes := make([]string, 0, len(resized))
	for name := range resized {
		sizes = append(sizes, name)
	}
	sort.Strings(sizes)

	now := time.Now()
	mod.Icon = &model.IconState{Uploaded: true, Sizes: sizes, UpdatedAt: now}
	mod.UpdatedAt = now
	if err := h.mods.Save(ctx, mod); err != nil {
		return fmt.Errorf("failed to update mod: %w", err)
	}

	// Step 5: The detail response lists icon sizes
	if err := h.cache.Delete(ctx, shared.CacheKeyModDetail(mod.ModID)); err != nil {
		logger.Warn("failed to invalidate mod detail cache", map[string]interface{}{
			"modId": mod.ModID,
			"error": err.Error(),
		})
	}

	logger.Info("mod icon processed", map[string]interface{}{
		"modId": mod.ModID,
		"sizes": len(sizes),
	})
	return nil
}
