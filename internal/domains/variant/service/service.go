package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/downloads"
	modmodel "github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/model"
	modrepository "github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/repository"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/variant/model"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/variant/repository"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/infrastructure/storage"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/authz"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/upload"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/utils"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/cache"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/crypto"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/logger"
)

// =====================================================
// SERVICE IMPLEMENTATION
// =====================================================

type variantService struct {
	variants repository.VariantRepository
	mods     modrepository.ModRepository
	blobs    storage.Storage
	engine   *crypto.Engine
	policy   upload.Policy
	counter  *downloads.Counter
	cache    cache.Cache
}

func NewVariantService(
	variants repository.VariantRepository,
	mods modrepository.ModRepository,
	blobs storage.Storage,
	engine *crypto.Engine,
	policy upload.Policy,
	counter *downloads.Counter,
	cacheClient cache.Cache,
) ServiceInterface {
	return &variantService{
		variants: variants,
		mods:     mods,
		blobs:    blobs,
		engine:   engine,
		policy:   policy,
		counter:  counter,
		cache:    cacheClient,
	}
}

// =====================================================
// CREATE VARIANT
// =====================================================

func (s *variantService) CreateVariant(
	ctx context.Context,
	requester *authz.Requester,
	modID string,
	req model.CreateVariantRequest,
) (*model.Variant, error) {
	// Step 1: Validate request
	if err := req.Validate(); err != nil {
		return nil, model.NewInvalidInputError(err)
	}

	// Step 2: Load mod, requester must own it
	mod, err := s.loadOwnedMod(ctx, modID, requester)
	if err != nil {
		return nil, err
	}

	// Step 3: Parent version must exist on this mod
	parent, err := s.mods.GetVersion(ctx, mod.CustomerID, req.ParentVersionID)
	if err != nil {
		if errors.Is(err, modmodel.ErrVersionNotFound) {
			return nil, model.NewParentVersionError(req.ParentVersionID)
		}
		return nil, fmt.Errorf("failed to check parent version: %w", err)
	}
	if parent.ModID != mod.ModID {
		return nil, model.NewParentVersionError(req.ParentVersionID)
	}

	// Step 4: Create variant record, no versions yet
	now := time.Now()
	variant := &model.Variant{
		VariantID:        utils.NewVariantID(),
		ModID:            mod.ModID,
		ParentVersionID:  req.ParentVersionID,
		Name:             req.Name,
		Description:      req.Description,
		CurrentVersionID: nil,
		VersionCount:     0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.variants.Save(ctx, mod.CustomerID, variant); err != nil {
		return nil, fmt.Errorf("failed to create variant: %w", err)
	}

	// Step 5: Mirror the new variant onto the mod record
	mod.UpsertVariant(*variant)
	mod.UpdatedAt = now
	if err := s.mods.Save(ctx, mod); err != nil {
		return nil, fmt.Errorf("failed to update mod: %w", err)
	}

	s.invalidateDetail(ctx, mod.ModID)
	return variant, nil
}

// =====================================================
// UPLOAD VERSION
// =====================================================

func (s *variantService) UploadVersion(
	ctx context.Context,
	requester *authz.Requester,
	modID, variantID string,
	file upload.File,
	meta model.UploadVersionMetadata,
) (*model.VariantVersion, error) {
	// Step 1: Validate metadata
	if err := meta.Validate(); err != nil {
		return nil, model.NewInvalidInputError(err)
	}

	// Step 2: Load mod and variant, requester must own the mod
	mod, err := s.loadOwnedMod(ctx, modID, requester)
	if err != nil {
		return nil, err
	}

	variant, err := s.loadVariant(ctx, mod.CustomerID, mod.ModID, variantID)
	if err != nil {
		return nil, err
	}

	// Step 3: Extension and size limits
	if err := s.policy.CheckFileName(file.Name); err != nil {
		return nil, model.NewInvalidInputError(err)
	}
	if err := s.policy.CheckSize(int64(len(file.Data))); err != nil {
		return nil, model.NewInvalidInputError(err)
	}

	// Step 4: Payload must arrive encrypted. Decrypt transiently to
	// measure and hash the real content; the ciphertext is what gets
	// stored.
	inspection, err := upload.Inspect(s.engine, file.Data)
	if err != nil {
		return nil, mapInspectError(err)
	}

	// Step 5: Store the ciphertext under a fresh version key
	variantVersionID := utils.NewVariantVersionID()
	blobKey := storage.VariantVersionKey(mod.CustomerID, mod.ModID, variant.VariantID, variantVersionID, filepath.Ext(file.Name))

	metadata := &storage.ObjectMetadata{
		Encrypted:           true,
		EncryptionFormat:    inspection.Format.String(),
		OriginalFileName:    file.Name,
		OriginalContentType: file.ContentType,
		SHA256:              inspection.SHA256,
	}
	if err := s.blobs.Upload(ctx, blobKey, file.Data, "application/octet-stream", metadata); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	// Step 6: Create the version record and index entry. If this
	// fails the blob above is orphaned, never a dangling record; the
	// nightly sweep reclaims it.
	version := &model.VariantVersion{
		VariantVersionID: variantVersionID,
		VariantID:        variant.VariantID,
		ModID:            mod.ModID,
		Version:          meta.Version,
		Changelog:        meta.Changelog,
		FileName:         file.Name,
		FileSize:         inspection.Size,
		BlobKey:          blobKey,
		SHA256:           inspection.SHA256,
		GameVersions:     meta.GameVersions,
		Dependencies:     meta.Dependencies,
		CreatedAt:        time.Now(),
	}

	if err := s.variants.SaveVersion(ctx, mod.CustomerID, version); err != nil {
		return nil, fmt.Errorf("failed to save variant version: %w", err)
	}

	// Step 7: Move the variant forward. versionCount mirrors the
	// version-list index length.
	ids, err := s.variants.ListVersionIDs(ctx, variant.VariantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count versions: %w", err)
	}

	// currentVersionId reflects whichever upload's final write lands
	// last, not necessarily the semantically newest version
	variant.CurrentVersionID = &version.VariantVersionID
	variant.VersionCount = len(ids)
	variant.UpdatedAt = time.Now()

	if err := s.variants.Save(ctx, mod.CustomerID, variant); err != nil {
		return nil, fmt.Errorf("failed to update variant: %w", err)
	}

	// Step 8: Mirror the updated variant onto the mod record
	mod.UpsertVariant(*variant)
	mod.UpdatedAt = variant.UpdatedAt
	if err := s.mods.Save(ctx, mod); err != nil {
		return nil, fmt.Errorf("failed to update mod: %w", err)
	}

	s.invalidateDetail(ctx, mod.ModID)
	return version, nil
}

// =====================================================
// LIST VERSIONS
// =====================================================

func (s *variantService) ListVersions(
	ctx context.Context,
	requester *authz.Requester,
	modID, variantID string,
) ([]model.VariantVersion, error) {
	mod, err := s.loadVisibleMod(ctx, modID, requester)
	if err != nil {
		return nil, err
	}

	variant, err := s.loadVariant(ctx, mod.CustomerID, mod.ModID, variantID)
	if err != nil {
		return nil, err
	}

	return s.variants.ListVersions(ctx, mod.CustomerID, variant.VariantID)
}

// =====================================================
// DOWNLOADS
// =====================================================

func (s *variantService) DownloadCurrent(
	ctx context.Context,
	requester *authz.Requester,
	modID, variantID string,
) (*model.FilePayload, error) {
	mod, err := s.loadVisibleMod(ctx, modID, requester)
	if err != nil {
		return nil, err
	}

	variant, err := s.loadVariant(ctx, mod.CustomerID, mod.ModID, variantID)
	if err != nil {
		return nil, err
	}

	// No upload yet means nothing to download
	if variant.CurrentVersionID == nil {
		return nil, model.NewVersionNotFoundError()
	}

	return s.download(ctx, mod, variant, *variant.CurrentVersionID)
}

func (s *variantService) DownloadVersion(
	ctx context.Context,
	requester *authz.Requester,
	modID, variantID, variantVersionID string,
) (*model.FilePayload, error) {
	mod, err := s.loadVisibleMod(ctx, modID, requester)
	if err != nil {
		return nil, err
	}

	variant, err := s.loadVariant(ctx, mod.CustomerID, mod.ModID, variantID)
	if err != nil {
		return nil, err
	}

	return s.download(ctx, mod, variant, variantVersionID)
}

// download fetches, decrypts and serves one variant version, then
// notifies the counter
func (s *variantService) download(
	ctx context.Context,
	mod *modmodel.Mod,
	variant *model.Variant,
	variantVersionID string,
) (*model.FilePayload, error) {
	// Step 1: Resolve the version record
	version, err := s.variants.GetVersion(ctx, mod.CustomerID, variantVersionID)
	if err != nil {
		if errors.Is(err, model.ErrVersionNotFound) {
			return nil, model.NewVersionNotFoundError()
		}
		return nil, fmt.Errorf("failed to get variant version: %w", err)
	}
	if version.VariantID != variant.VariantID {
		return nil, model.NewVersionNotFoundError()
	}

	// Step 2: Fetch the ciphertext with its stored metadata
	ciphertext, metadata, err := s.blobs.Download(ctx, version.BlobKey)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, model.NewFileNotFoundError()
		}
		return nil, fmt.Errorf("failed to fetch file: %w", err)
	}

	// Step 3: Decrypt. This is server-held data: any failure other
	// than a missing key is corrupt storage, not a client mistake.
	plaintext, _, err := s.engine.Decrypt(ciphertext)
	if err != nil {
		if errors.Is(err, crypto.ErrKeyNotConfigured) {
			return nil, model.NewKeyNotConfiguredError()
		}
		return nil, model.NewCorruptServerDataError(err)
	}

	// Step 4: Count the download off the request path
	s.counter.Record(downloads.Increment{
		Scope:            mod.CustomerID,
		ModID:            mod.ModID,
		VariantID:        variant.VariantID,
		VariantVersionID: version.VariantVersionID,
	})

	// Step 5: Reconstruct the client-facing headers from metadata
	fileName := version.FileName
	contentType := "application/octet-stream"
	if metadata != nil {
		if metadata.OriginalFileName != "" {
			fileName = metadata.OriginalFileName
		}
		if metadata.OriginalContentType != "" {
			contentType = metadata.OriginalContentType
		}
	}

	return &model.FilePayload{
		Data:        plaintext,
		FileName:    fileName,
		ContentType: contentType,
	}, nil
}

// =====================================================
// DELETE VERSION
// =====================================================

func (s *variantService) DeleteVersion(
	ctx context.Context,
	requester *authz.Requester,
	modID, variantID, variantVersionID string,
) error {
	// Step 1: Load mod and variant, requester must own the mod
	mod, err := s.loadOwnedMod(ctx, modID, requester)
	if err != nil {
		return err
	}

	variant, err := s.loadVariant(ctx, mod.CustomerID, mod.ModID, variantID)
	if err != nil {
		return err
	}

	version, err := s.variants.GetVersion(ctx, mod.CustomerID, variantVersionID)
	if err != nil {
		if errors.Is(err, model.ErrVersionNotFound) {
			return model.NewVersionNotFoundError()
		}
		return fmt.Errorf("failed to get variant version: %w", err)
	}
	if version.VariantID != variant.VariantID {
		return model.NewVersionNotFoundError()
	}

	// Step 2: Record and index entry go first; the worst a failed
	// blob delete leaves behind is an orphan for the sweep
	if err := s.variants.DeleteVersion(ctx, mod.CustomerID, version); err != nil {
		return fmt.Errorf("failed to delete variant version: %w", err)
	}

	if err := s.blobs.Delete(ctx, version.BlobKey); err != nil {
		logger.Warn("failed to delete version blob, sweep will reclaim it", map[string]interface{}{
			"blobKey": version.BlobKey,
			"error":   err.Error(),
		})
	}

	// Step 3: Repair the variant. If the current version was
	// deleted, fall back to the newest remaining one, or null when
	// none remain.
	ids, err := s.variants.ListVersionIDs(ctx, variant.VariantID)
	if err != nil {
		return fmt.Errorf("failed to list remaining versions: %w", err)
	}

	if variant.CurrentVersionID != nil && *variant.CurrentVersionID == version.VariantVersionID {
		if len(ids) > 0 {
			variant.CurrentVersionID = &ids[0]
		} else {
			variant.CurrentVersionID = nil
		}
	}
	variant.VersionCount = len(ids)
	variant.UpdatedAt = time.Now()

	if err := s.variants.Save(ctx, mod.CustomerID, variant); err != nil {
		return fmt.Errorf("failed to update variant: %w", err)
	}

	// Step 4: Mirror onto the mod record
	mod.UpsertVariant(*variant)
	mod.UpdatedAt = variant.UpdatedAt
	if err := s.mods.Save(ctx, mod); err != nil {
		return fmt.Errorf("failed to update mod: %w", err)
	}

	s.invalidateDetail(ctx, mod.ModID)
	return nil
}

// =====================================================
// DELETE VARIANT
// =====================================================

func (s *variantService) DeleteVariant(
	ctx context.Context,
	requester *authz.Requester,
	modID, variantID string,
) error {
	// Step 1: Load mod and variant, requester must own the mod
	mod, err := s.loadOwnedMod(ctx, modID, requester)
	if err != nil {
		return err
	}

	variant, err := s.loadVariant(ctx, mod.CustomerID, mod.ModID, variantID)
	if err != nil {
		return err
	}

	// Step 2: Cascade versions: every record and index entry
	versions, err := s.variants.ListVersions(ctx, mod.CustomerID, variant.VariantID)
	if err != nil {
		return fmt.Errorf("failed to list versions: %w", err)
	}

	for i := range versions {
		if err := s.variants.DeleteVersion(ctx, mod.CustomerID, &versions[i]); err != nil {
			return fmt.Errorf("failed to delete version %s: %w", versions[i].VariantVersionID, err)
		}
	}

	if err := s.variants.DeleteVersionIndex(ctx, variant.VariantID); err != nil {
		return fmt.Errorf("failed to delete version index: %w", err)
	}

	// Step 3: All of the variant's blobs share one prefix
	prefix := storage.VariantPrefix(mod.CustomerID, mod.ModID, variant.VariantID)
	if err := s.blobs.DeleteByPrefix(ctx, prefix); err != nil {
		return fmt.Errorf("failed to delete variant files: %w", err)
	}

	// Step 4: The variant record goes last, so a retry after any
	// failure above still finds it
	if err := s.variants.Delete(ctx, mod.CustomerID, variant.VariantID); err != nil {
		return fmt.Errorf("failed to delete variant: %w", err)
	}

	// Step 5: Drop the snapshot from the mod record
	mod.RemoveVariant(variant.VariantID)
	mod.UpdatedAt = time.Now()
	if err := s.mods.Save(ctx, mod); err != nil {
		return fmt.Errorf("failed to update mod: %w", err)
	}

	s.invalidateDetail(ctx, mod.ModID)
	return nil
}

// =====================================================
// HELPERS
// =====================================================

// loadOwnedMod loads a mod for a mutating operation. Strangers to a
// private mod get NotFound, not Forbidden, so its existence leaks
// nothing.
func (s *variantService) loadOwnedMod(ctx context.Context, modID string, requester *authz.Requester) (*modmodel.Mod, error) {
	mod, err := s.findMod(ctx, modID)
	if err != nil {
		return nil, err
	}

	if !authz.CanModify(mod.CustomerID, requester) {
		if !authz.CanView(mod.Visibility, mod.CustomerID, requester) {
			return nil, model.NewModNotFoundError()
		}
		return nil, model.NewForbiddenError()
	}

	return mod, nil
}

// loadVisibleMod loads a mod for a read. Private mods are invisible
// to everyone but their owner.
func (s *variantService) loadVisibleMod(ctx context.Context, modID string, requester *authz.Requester) (*modmodel.Mod, error) {
	mod, err := s.findMod(ctx, modID)
	if err != nil {
		return nil, err
	}

	if !authz.CanView(mod.Visibility, mod.CustomerID, requester) {
		return nil, model.NewModNotFoundError()
	}

	return mod, nil
}

func (s *variantService) findMod(ctx context.Context, modID string) (*modmodel.Mod, error) {
	mod, err := s.mods.Find(ctx, modID)
	if err != nil {
		if errors.Is(err, modmodel.ErrModNotFound) {
			return nil, model.NewModNotFoundError()
		}
		return nil, fmt.Errorf("failed to load mod: %w", err)
	}
	return mod, nil
}

// loadVariant loads a variant and pins it to the mod in the path
func (s *variantService) loadVariant(ctx context.Context, scope, modID, variantID string) (*model.Variant, error) {
	variant, err := s.variants.Get(ctx, scope, variantID)
	if err != nil {
		if errors.Is(err, model.ErrVariantNotFound) {
			return nil, model.NewVariantNotFoundError()
		}
		return nil, fmt.Errorf("failed to load variant: %w", err)
	}
	if variant.ModID != modID {
		return nil, model.NewVariantNotFoundError()
	}
	return variant, nil
}

func (s *variantService) invalidateDetail(ctx context.Context, modID string) {
	if err := s.cache.Delete(ctx, shared.CacheKeyModDetail(modID)); err != nil {
		logger.Warn("failed to invalidate mod detail cache", map[string]interface{}{
			"modId": modID,
			"error": err.Error(),
		})
	}
}

// mapInspectError turns upload inspection failures into domain
// errors with the right blame: the client's payload or the server's
// configuration
func mapInspectError(err error) error {
	switch {
	case errors.Is(err, upload.ErrPayloadNotEncrypted):
		return model.NewNotEncryptedError(err)
	case errors.Is(err, crypto.ErrLegacyFormat):
		return model.NewLegacyFormatError()
	case errors.Is(err, crypto.ErrKeyNotConfigured):
		return model.NewKeyNotConfiguredError()
	case errors.Is(err, crypto.ErrDecryptFailed):
		return model.NewDecryptionFailedError(err)
	default:
		return fmt.Errorf("failed to inspect upload: %w", err)
	}
}
