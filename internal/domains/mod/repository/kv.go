package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/model"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/infrastructure/kv"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/logger"
)

// =====================================================
// REPOSITORY IMPLEMENTATION
// =====================================================

type modRepository struct {
	store    kv.Store
	slugs    kv.SlugIndex
	mods     kv.ModIndex
	versions kv.VersionIndex
}

func NewModRepository(
	store kv.Store,
	slugs kv.SlugIndex,
	mods kv.ModIndex,
	versions kv.VersionIndex,
) ModRepository {
	return &modRepository{
		store:    store,
		slugs:    slugs,
		mods:     mods,
		versions: versions,
	}
}

// =====================================================
// MOD RECORDS
// =====================================================

func (r *modRepository) Get(ctx context.Context, scope, modID string) (*model.Mod, error) {
	data, err := r.store.Get(ctx, scope, kv.TypeMod, modID)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, model.ErrModNotFound
		}
		return nil, fmt.Errorf("failed to get mod: %w", err)
	}

	return unmarshalMod(modID, data)
}

func (r *modRepository) Find(ctx context.Context, modID string) (*model.Mod, error) {
	// Step 1: O(1) index lookup
	summary, err := r.mods.Get(ctx, modID)
	if err == nil {
		return r.Get(ctx, summary.CustomerID, modID)
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up mod index: %w", err)
	}

	// Step 2: index miss. Records written before the index existed
	// have no summary row yet, so fall back to a scan once and
	// backfill so the next read is O(1).
	mod, err := r.scanForMod(ctx, func(m *model.Mod) bool { return m.ModID == modID })
	if err != nil {
		return nil, err
	}

	r.backfillIndexes(ctx, mod)
	return mod, nil
}

func (r *modRepository) FindBySlug(ctx context.Context, slug string) (*model.Mod, error) {
	// Step 1: O(1) slug index lookup
	entry, err := r.slugs.Resolve(ctx, slug)
	if err == nil {
		return r.Get(ctx, entry.CustomerID, entry.ModID)
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("failed to resolve slug: %w", err)
	}

	// Step 2: lazy backfill for legacy records
	mod, err := r.scanForMod(ctx, func(m *model.Mod) bool { return m.Slug == slug })
	if err != nil {
		return nil, err
	}

	r.backfillIndexes(ctx, mod)
	return mod, nil
}

// scanForMod walks every mod record looking for a match. Only the
// lazy-migration fallback uses this; indexed reads never get here.
func (r *modRepository) scanForMod(ctx context.Context, match func(*model.Mod) bool) (*model.Mod, error) {
	entries, err := r.store.ListType(ctx, kv.TypeMod)
	if err != nil {
		return nil, fmt.Errorf("failed to scan mod records: %w", err)
	}

	for _, entry := range entries {
		mod, err := unmarshalMod(entry.ID, entry.Value)
		if err != nil {
			logger.Warn("skipping corrupt mod record during scan", map[string]interface{}{
				"scope": entry.Scope,
				"modId": entry.ID,
			})
			continue
		}
		if match(mod) {
			return mod, nil
		}
	}

	return nil, model.ErrModNotFound
}

// backfillIndexes writes the missing index entries for a legacy
// record. Failures are logged, not returned: the caller already has
// the record, and the next read retries the backfill.
func (r *modRepository) backfillIndexes(ctx context.Context, mod *model.Mod) {
	if err := r.mods.Upsert(ctx, summaryOf(mod)); err != nil {
		logger.Error("failed to backfill mod index", err)
	}

	if mod.Slug != "" {
		err := r.slugs.Claim(ctx, mod.Slug, mod.ModID, mod.CustomerID)
		if err != nil && !errors.Is(err, kv.ErrSlugTaken) {
			logger.Error("failed to backfill slug index", err)
		}
	}

	logger.Info("backfilled indexes for legacy mod record", map[string]interface{}{
		"modId": mod.ModID,
		"slug":  mod.Slug,
	})
}

func (r *modRepository) Save(ctx context.Context, mod *model.Mod) error {
	data, err := json.Marshal(mod)
	if err != nil {
		return fmt.Errorf("failed to marshal mod: %w", err)
	}

	if err := r.store.Put(ctx, mod.CustomerID, kv.TypeMod, mod.ModID, data); err != nil {
		return fmt.Errorf("failed to save mod: %w", err)
	}

	// Keep the summary index in step with the record
	if err := r.mods.Upsert(ctx, summaryOf(mod)); err != nil {
		return fmt.Errorf("failed to update mod index: %w", err)
	}

	return nil
}

func (r *modRepository) Delete(ctx context.Context, mod *model.Mod) error {
	err := r.store.Delete(ctx, mod.CustomerID, kv.TypeMod, mod.ModID)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("failed to delete mod: %w", err)
	}

	if err := r.mods.Delete(ctx, mod.ModID); err != nil {
		return fmt.Errorf("failed to delete mod index entry: %w", err)
	}

	if mod.Slug != "" {
		if err := r.slugs.Release(ctx, mod.Slug); err != nil {
			return fmt.Errorf("failed to release slug: %w", err)
		}
	}

	return nil
}

// =====================================================
// SLUG INDEX
// =====================================================

func (r *modRepository) ClaimSlug(ctx context.Context, slug, modID, customerID string) error {
	err := r.slugs.Claim(ctx, slug, modID, customerID)
	if err != nil {
		if errors.Is(err, kv.ErrSlugTaken) {
			return model.ErrSlugTaken
		}
		return fmt.Errorf("failed to claim slug: %w", err)
	}
	return nil
}

func (r *modRepository) ReleaseSlug(ctx context.Context, slug string) error {
	return r.slugs.Release(ctx, slug)
}

// =====================================================
// LISTINGS
// =====================================================

func (r *modRepository) ListPublicByCategory(ctx context.Context, category string) ([]kv.ModSummary, error) {
	return r.mods.ListPublicByCategory(ctx, category)
}

func (r *modRepository) ListByCustomer(ctx context.Context, customerID string) ([]kv.ModSummary, error) {
	return r.mods.ListByCustomer(ctx, customerID)
}

func (r *modRepository) ListAllSummaries(ctx context.Context) ([]kv.ModSummary, error) {
	return r.mods.ListAll(ctx)
}

func (r *modRepository) AllMods(ctx context.Context) ([]model.Mod, error) {
	entries, err := r.store.ListType(ctx, kv.TypeMod)
	if err != nil {
		return nil, fmt.Errorf("failed to list mod records: %w", err)
	}

	mods := make([]model.Mod, 0, len(entries))
	for _, entry := range entries {
		mod, err := unmarshalMod(entry.ID, entry.Value)
		if err != nil {
			// A corrupt record must not sink a whole batch job
			logger.Warn("skipping corrupt mod record", map[string]interface{}{
				"scope": entry.Scope,
				"modId": entry.ID,
			})
			continue
		}
		mods = append(mods, *mod)
	}

	return mods, nil
}

// =====================================================
// MOD VERSIONS
// =====================================================

func (r *modRepository) GetVersion(ctx context.Context, scope, versionID string) (*model.ModVersion, error) {
	data, err := r.store.Get(ctx, scope, kv.TypeModVersion, versionID)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, model.ErrVersionNotFound
		}
		return nil, fmt.Errorf("failed to get mod version: %w", err)
	}

	return unmarshalVersion(versionID, data)
}

func (r *modRepository) SaveVersion(ctx context.Context, scope string, version *model.ModVersion) error {
	data, err := json.Marshal(version)
	if err != nil {
		return fmt.Errorf("failed to marshal mod version: %w", err)
	}

	// Record first, then the index entry. A failed append leaves
	// the version resolvable by id and the next append is
	// idempotent at the store level.
	if err := r.store.Put(ctx, scope, kv.TypeModVersion, version.VersionID, data); err != nil {
		return fmt.Errorf("failed to save mod version: %w", err)
	}

	if err := r.versions.Append(ctx, version.ModID, version.VersionID); err != nil {
		return fmt.Errorf("failed to index mod version: %w", err)
	}

	return nil
}

func (r *modRepository) UpdateVersion(ctx context.Context, scope string, version *model.ModVersion) error {
	data, err := json.Marshal(version)
	if err != nil {
		return fmt.Errorf("failed to marshal mod version: %w", err)
	}

	if err := r.store.Put(ctx, scope, kv.TypeModVersion, version.VersionID, data); err != nil {
		return fmt.Errorf("failed to update mod version: %w", err)
	}

	return nil
}

func (r *modRepository) DeleteVersion(ctx context.Context, scope string, version *model.ModVersion) error {
	err := r.store.Delete(ctx, scope, kv.TypeModVersion, version.VersionID)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("failed to delete mod version: %w", err)
	}

	if err := r.versions.Remove(ctx, version.ModID, version.VersionID); err != nil {
		return fmt.Errorf("failed to unindex mod version: %w", err)
	}

	return nil
}

func (r *modRepository) ListVersions(ctx context.Context, scope, modID string) ([]model.ModVersion, error) {
	ids, err := r.versions.List(ctx, modID)
	if err != nil {
		return nil, fmt.Errorf("failed to list version index: %w", err)
	}

	versions := make([]model.ModVersion, 0, len(ids))
	for _, id := range ids {
		version, err := r.GetVersion(ctx, scope, id)
		if err != nil {
			if errors.Is(err, model.ErrVersionNotFound) {
				// Index entry outlived its record; skip it
				continue
			}
			return nil, err
		}
		versions = append(versions, *version)
	}

	return versions, nil
}

func (r *modRepository) ListVersionIDs(ctx context.Context, modID string) ([]string, error) {
	return r.versions.List(ctx, modID)
}

func (r *modRepository) DeleteVersionIndex(ctx context.Context, modID string) error {
	return r.versions.Delete(ctx, modID)
}

func (r *modRepository) AllVersions(ctx context.Context) ([]model.ModVersion, error) {
	entries, err := r.store.ListType(ctx, kv.TypeModVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to list version records: %w", err)
	}

	versions := make([]model.ModVersion, 0, len(entries))
	for _, entry := range entries {
		version, err := unmarshalVersion(entry.ID, entry.Value)
		if err != nil {
			// A corrupt record must not sink a whole batch job
			logger.Warn("skipping corrupt version record", map[string]interface{}{
				"scope":     entry.Scope,
				"versionId": entry.ID,
			})
			continue
		}
		versions = append(versions, *version)
	}

	return versions, nil
}

// =====================================================
// HELPERS
// =====================================================

func summaryOf(mod *model.Mod) *kv.ModSummary {
	return &kv.ModSummary{
		ModID:         mod.ModID,
		CustomerID:    mod.CustomerID,
		Slug:          mod.Slug,
		Title:         mod.Title,
		Category:      mod.Category,
		Visibility:    mod.Visibility,
		Status:        mod.Status,
		LatestVersion: mod.LatestVersion,
		DownloadCount: mod.DownloadCount,
		UpdatedAt:     mod.UpdatedAt,
	}
}

func unmarshalMod(id string, data []byte) (*model.Mod, error) {
	var mod model.Mod
	if err := json.Unmarshal(data, &mod); err != nil {
		return nil, model.NewCorruptRecordError("mod", id, err)
	}
	return &mod, nil
}

func unmarshalVersion(id string, data []byte) (*model.ModVersion, error) {
	var version model.ModVersion
	if err := json.Unmarshal(data, &version); err != nil {
		return nil, model.NewCorruptRecordError("modversion", id, err)
	}
	return &version, nil
}
