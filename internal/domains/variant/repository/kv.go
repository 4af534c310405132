package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/variant/model"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/infrastructure/kv"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/logger"
)

// =====================================================
// REPOSITORY IMPLEMENTATION
// =====================================================

type variantRepository struct {
	store    kv.Store
	versions kv.VersionIndex
}

func NewVariantRepository(store kv.Store, versions kv.VersionIndex) VariantRepository {
	return &variantRepository{
		store:    store,
		versions: versions,
	}
}

// =====================================================
// VARIANT RECORDS
// =====================================================

func (r *variantRepository) Get(ctx context.Context, scope, variantID string) (*model.Variant, error) {
	data, err := r.store.Get(ctx, scope, kv.TypeVariant, variantID)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, model.ErrVariantNotFound
		}
		return nil, fmt.Errorf("failed to get variant: %w", err)
	}

	return unmarshalVariant(variantID, data)
}

func (r *variantRepository) Save(ctx context.Context, scope string, variant *model.Variant) error {
	data, err := json.Marshal(variant)
	if err != nil {
		return fmt.Errorf("failed to marshal variant: %w", err)
	}

	if err := r.store.Put(ctx, scope, kv.TypeVariant, variant.VariantID, data); err != nil {
		return fmt.Errorf("failed to save variant: %w", err)
	}

	return nil
}

func (r *variantRepository) Delete(ctx context.Context, scope, variantID string) error {
	err := r.store.Delete(ctx, scope, kv.TypeVariant, variantID)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("failed to delete variant: %w", err)
	}
	return nil
}

// =====================================================
// VARIANT VERSIONS
// =====================================================

func (r *variantRepository) GetVersion(ctx context.Context, scope, variantVersionID string) (*model.VariantVersion, error) {
	data, err := r.store.Get(ctx, scope, kv.TypeVariantVersion, variantVersionID)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, model.ErrVersionNotFound
		}
		return nil, fmt.Errorf("failed to get variant version: %w", err)
	}

	return unmarshalVariantVersion(variantVersionID, data)
}

func (r *variantRepository) SaveVersion(ctx context.Context, scope string, version *model.VariantVersion) error {
	data, err := json.Marshal(version)
	if err != nil {
		return fmt.Errorf("failed to marshal variant version: %w", err)
	}

	// Record first, then the index entry, in that order: a version
	// resolvable by id but missing from the list is recoverable, a
	// listed id with no record is not.
	if err := r.store.Put(ctx, scope, kv.TypeVariantVersion, version.VariantVersionID, data); err != nil {
		return fmt.Errorf("failed to save variant version: %w", err)
	}

	if err := r.versions.Append(ctx, version.VariantID, version.VariantVersionID); err != nil {
		return fmt.Errorf("failed to index variant version: %w", err)
	}

	return nil
}

func (r *variantRepository) UpdateVersion(ctx context.Context, scope string, version *model.VariantVersion) error {
	data, err := json.Marshal(version)
	if err != nil {
		return fmt.Errorf("failed to marshal variant version: %w", err)
	}

	if err := r.store.Put(ctx, scope, kv.TypeVariantVersion, version.VariantVersionID, data); err != nil {
		return fmt.Errorf("failed to update variant version: %w", err)
	}

	return nil
}

func (r *variantRepository) DeleteVersion(ctx context.Context, scope string, version *model.VariantVersion) error {
	err := r.store.Delete(ctx, scope, kv.TypeVariantVersion, version.VariantVersionID)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("failed to delete variant version: %w", err)
	}

	if err := r.versions.Remove(ctx, version.VariantID, version.VariantVersionID); err != nil {
		return fmt.Errorf("failed to unindex variant version: %w", err)
	}

	return nil
}

func (r *variantRepository) ListVersions(ctx context.Context, scope, variantID string) ([]model.VariantVersion, error) {
	ids, err := r.versions.List(ctx, variantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list version index: %w", err)
	}

	versions := make([]model.VariantVersion, 0, len(ids))
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

func (r *variantRepository) ListVersionIDs(ctx context.Context, variantID string) ([]string, error) {
	return r.versions.List(ctx, variantID)
}

func (r *variantRepository) DeleteVersionIndex(ctx context.Context, variantID string) error {
	return r.versions.Delete(ctx, variantID)
}

func (r *variantRepository) AllVersions(ctx context.Context) ([]model.VariantVersion, error) {
	entries, err := r.store.ListType(ctx, kv.TypeVariantVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to list variant version records: %w", err)
	}

	versions := make([]model.VariantVersion, 0, len(entries))
	for _, entry := range entries {
		version, err := unmarshalVariantVersion(entry.ID, entry.Value)
		if err != nil {
			// A corrupt record must not sink a whole batch job
			logger.Warn("skipping corrupt variant version record", map[string]interface{}{
				"scope":            entry.Scope,
				"variantVersionId": entry.ID,
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

func unmarshalVariant(id string, data []byte) (*model.Variant, error) {
	var variant model.Variant
	if err := json.Unmarshal(data, &variant); err != nil {
		return nil, model.NewCorruptRecordError("variant", id, err)
	}
	return &variant, nil
}

func unmarshalVariantVersion(id string, data []byte) (*model.VariantVersion, error) {
	var version model.VariantVersion
	if err := json.Unmarshal(data, &version); err != nil {
		return nil, model.NewCorruptRecordError("variantversion", id, err)
	}
	return &version, nil
}
