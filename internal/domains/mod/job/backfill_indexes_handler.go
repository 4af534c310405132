package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/model"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/repository"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/logger"
)

// BackfillIndexesHandler rebuilds the slug and summary index rows
// from the mod records. Records written before the indexes existed
// get picked up lazily on first read; this job closes the gap in
// bulk so cold records show up in listings too.
type BackfillIndexesHandler struct {
	mods repository.ModRepository
}

func NewBackfillIndexesHandler(mods repository.ModRepository) *BackfillIndexesHandler {
	return &BackfillIndexesHandler{mods: mods}
}

func (h *BackfillIndexesHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload shared.BackfillIndexesPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Error("failed to unmarshal backfill task payload", err)
		return asynq.SkipRetry
	}

	mods, err := h.mods.AllMods(ctx)
	if err != nil {
		return fmt.Errorf("failed to list mods: %w", err)
	}

	var rebuilt, slugsAlreadyClaimed int
	for i := range mods {
		mod := &mods[i]
		if payload.Scope != "" && mod.CustomerID != payload.Scope {
			continue
		}

		// Save rewrites the record and upserts its summary row
		if err := h.mods.Save(ctx, mod); err != nil {
			return fmt.Errorf("failed to reindex %s: %w", mod.ModID, err)
		}

		// Slug claims are first-wins; an existing row, whether this
		// mod's or a rival's, stays untouched
		if err := h.mods.ClaimSlug(ctx, mod.Slug, mod.ModID, mod.CustomerID); err != nil {
			if errors.Is(err, model.ErrSlugTaken) {
				slugsAlreadyClaimed++
			} else {
				return fmt.Errorf("failed to claim slug %q: %w", mod.Slug, err)
			}
		}
		rebuilt++
	}

	logger.Info("index backfill complete", map[string]interface{}{
		"rebuilt":             rebuilt,
		"slugsAlreadyClaimed": slugsAlreadyClaimed,
	})
	return nil
}
