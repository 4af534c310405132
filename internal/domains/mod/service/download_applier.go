package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/downloads"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/model"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/repository"
	variantmodel "github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/variant/model"
	variantrepository "github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/variant/repository"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/cache"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/logger"
)

// DownloadApplier persists the increments the counter records. The
// counter guarantees calls for the same mod never overlap, so every
// write here is a plain read-modify-write with no lost updates.
//
// Records deleted between the download and the apply are skipped;
// whatever still exists gets its tally.
type DownloadApplier struct {
	mods     repository.ModRepository
	variants variantrepository.VariantRepository
	cache    cache.Cache
}

var _ downloads.Applier = (*DownloadApplier)(nil)

func NewDownloadApplier(
	mods repository.ModRepository,
	variants variantrepository.VariantRepository,
	cacheClient cache.Cache,
) *DownloadApplier {
	return &DownloadApplier{
		mods:     mods,
		variants: variants,
		cache:    cacheClient,
	}
}

func (a *DownloadApplier) Apply(ctx context.Context, inc downloads.Increment) error {
	if inc.VariantID != "" {
		if err := a.applyVariant(ctx, inc); err != nil {
			return err
		}
	} else {
		if err := a.applyMod(ctx, inc); err != nil {
			return err
		}
	}

	// Counts show on the detail response, so the cached copy goes.
	// Listings refresh on their own short TTL.
	if err := a.cache.Delete(ctx, shared.CacheKeyModDetail(inc.ModID)); err != nil {
		logger.Warn("failed to invalidate mod detail cache", map[string]interface{}{
			"modId": inc.ModID,
			"error": err.Error(),
		})
	}

	return nil
}

// applyVariant bumps the variant version, the variant total, and the
// mod total, refreshing the mod's variant snapshot along the way
func (a *DownloadApplier) applyVariant(ctx context.Context, inc downloads.Increment) error {
	version, err := a.variants.GetVersion(ctx, inc.Scope, inc.VariantVersionID)
	switch {
	case errors.Is(err, variantmodel.ErrVersionNotFound):
		logger.Debug("downloaded variant version no longer exists, skipping its tally")
	case err != nil:
		return fmt.Errorf("failed to load variant version: %w", err)
	default:
		version.Downloads++
		if err := a.variants.UpdateVersion(ctx, inc.Scope, version); err != nil {
			return fmt.Errorf("failed to update variant version: %w", err)
		}
	}

	var variant *variantmodel.Variant
	variant, err = a.variants.Get(ctx, inc.Scope, inc.VariantID)
	switch {
	case errors.Is(err, variantmodel.ErrVariantNotFound):
		logger.Debug("downloaded variant no longer exists, skipping its tally")
		variant = nil
	case err != nil:
		return fmt.Errorf("failed to load variant: %w", err)
	default:
		variant.TotalDownloads++
		if err := a.variants.Save(ctx, inc.Scope, variant); err != nil {
			return fmt.Errorf("failed to update variant: %w", err)
		}
	}

	mod, err := a.mods.Get(ctx, inc.Scope, inc.ModID)
	switch {
	case errors.Is(err, model.ErrModNotFound):
		logger.Debug("downloaded mod no longer exists, skipping its tally")
		return nil
	case err != nil:
		return fmt.Errorf("failed to load mod: %w", err)
	}

	mod.DownloadCount++
	if variant != nil {
		mod.UpsertVariant(*variant)
	}
	if err := a.mods.Save(ctx, mod); err != nil {
		return fmt.Errorf("failed to update mod: %w", err)
	}

	return nil
}

// applyMod bumps the mod version and the mod total
func (a *DownloadApplier) applyMod(ctx context.Context, inc downloads.Increment) error {
	version, err := a.mods.GetVersion(ctx, inc.Scope, inc.VersionID)
	switch {
	case errors.Is(err, model.ErrVersionNotFound):
		logger.Debug("downloaded version no longer exists, skipping its tally")
	case err != nil:
		return fmt.Errorf("failed to load version: %w", err)
	default:
		version.Downloads++
		if err := a.mods.UpdateVersion(ctx, inc.Scope, version); err != nil {
			return fmt.Errorf("failed to update version: %w", err)
		}
	}

	mod, err := a.mods.Get(ctx, inc.Scope, inc.ModID)
	switch {
	case errors.Is(err, model.ErrModNotFound):
		logger.Debug("downloaded mod no longer exists, skipping its tally")
		return nil
	case err != nil:
		return fmt.Errorf("failed to load mod: %w", err)
	}

	mod.DownloadCount++
	if err := a.mods.Save(ctx, mod); err != nil {
		return fmt.Errorf("failed to update mod: %w", err)
	}

	return nil
}
