package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/downloads"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/model"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/repository"
	variantmodel "github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/variant/model"
	variantrepository "github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/variant/repository"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/infrastructure/kv"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/infrastructure/storage"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/authz"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/upload"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/utils"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/cache"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/crypto"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/logger"
)

// Cache TTLs. Listings tolerate short staleness and expire on their
// own; detail entries are also invalidated on every write.
const (
	detailCacheTTL = 5 * time.Minute
	listCacheTTL   = time.Minute
)

// defaultFirstVersion is used when the create request names no
// version for its initial upload
const defaultFirstVersion = "1.0.0"

// TaskEnqueuer queues background work. *asynq.Client satisfies it.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// =====================================================
// SERVICE IMPLEMENTATION
// =====================================================

type modService struct {
	mods     repository.ModRepository
	variants variantrepository.VariantRepository
	blobs    storage.Storage
	engine   *crypto.Engine
	policy   upload.Policy
	icons    *storage.IconProcessor
	counter  *downloads.Counter
	cache    cache.Cache
	tasks    TaskEnqueuer
	quotaMB  int
}

func NewModService(
	mods repository.ModRepository,
	variants variantrepository.VariantRepository,
	blobs storage.Storage,
	engine *crypto.Engine,
	policy upload.Policy,
	icons *storage.IconProcessor,
	counter *downloads.Counter,
	cacheClient cache.Cache,
	tasks TaskEnqueuer,
	quotaMB int,
) ServiceInterface {
	return &modService{
		mods:     mods,
		variants: variants,
		blobs:    blobs,
		engine:   engine,
		policy:   policy,
		icons:    icons,
		counter:  counter,
		cache:    cacheClient,
		tasks:    tasks,
		quotaMB:  quotaMB,
	}
}

// =====================================================
// CREATE MOD
// =====================================================

func (s *modService) CreateMod(
	ctx context.Context,
	requester *authz.Requester,
	req model.CreateModRequest,
	file upload.File,
) (*model.Mod, error) {
	// Step 1: Validate request
	if err := req.Validate(); err != nil {
		return nil, model.NewInvalidInputError(err)
	}

	if requester == nil || requester.CustomerID == "" {
		return nil, model.NewForbiddenError()
	}

	// Step 2: Extension and size limits on the initial upload
	if err := s.policy.CheckFileName(file.Name); err != nil {
		return nil, model.NewInvalidInputError(err)
	}
	if err := s.policy.CheckSize(int64(len(file.Data))); err != nil {
		return nil, model.NewInvalidInputError(err)
	}

	// Step 3: Payload must arrive encrypted
	inspection, err := upload.Inspect(s.engine, file.Data)
	if err != nil {
		return nil, mapInspectError(err)
	}

	modID := utils.NewModID()

	// Step 4: Resolve and claim the slug before anything is stored,
	// so two concurrent creates cannot both win the same name
	slug := req.Slug
	if slug == "" {
		slug = utils.GenerateSlug(req.Title)
	}
	if slug == "" {
		// all-symbol titles generate nothing usable; the id suffix
		// is lowercase alphanumeric and always valid
		slug = strings.TrimPrefix(modID, "mod_")
	}

	if err := s.mods.ClaimSlug(ctx, slug, modID, requester.CustomerID); err != nil {
		if errors.Is(err, model.ErrSlugTaken) {
			return nil, model.NewSlugTakenError(slug)
		}
		return nil, fmt.Errorf("failed to claim slug: %w", err)
	}

	// Step 5: Store the ciphertext for the initial version
	versionString := req.Version
	if versionString == "" {
		versionString = defaultFirstVersion
	}

	versionID := utils.NewVersionID()
	blobKey := storage.ModVersionKey(requester.CustomerID, modID, versionID, filepath.Ext(file.Name))

	metadata := &storage.ObjectMetadata{
		Encrypted:           true,
		EncryptionFormat:    inspection.Format.String(),
		OriginalFileName:    file.Name,
		OriginalContentType: file.ContentType,
		SHA256:              inspection.SHA256,
	}
	if err := s.blobs.Upload(ctx, blobKey, file.Data, "application/octet-stream", metadata); err != nil {
		s.releaseSlug(ctx, slug)
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	// Step 6: Version record and index entry. A failure from here on
	// leaves at worst an orphan blob for the nightly sweep.
	now := time.Now()
	version := &model.ModVersion{
		VersionID: versionID,
		ModID:     modID,
		Version:   versionString,
		Changelog: req.Changelog,
		FileName:  file.Name,
		FileSize:  inspection.Size,
		BlobKey:   blobKey,
		SHA256:    inspection.SHA256,
		CreatedAt: now,
	}
	if err := s.mods.SaveVersion(ctx, requester.CustomerID, version); err != nil {
		s.releaseSlug(ctx, slug)
		return nil, fmt.Errorf("failed to save version: %w", err)
	}

	// Step 7: The mod record itself, published and public unless the
	// request says otherwise
	visibility := req.Visibility
	if visibility == "" {
		visibility = authz.VisibilityPublic
	}

	mod := &model.Mod{
		ModID:         modID,
		Slug:          slug,
		CustomerID:    requester.CustomerID,
		AuthorID:      requester.CustomerID,
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		Visibility:    visibility,
		Status:        model.StatusPublished,
		LatestVersion: versionString,
		Variants:      []variantmodel.Variant{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.mods.Save(ctx, mod); err != nil {
		s.releaseSlug(ctx, slug)
		return nil, fmt.Errorf("failed to save mod: %w", err)
	}

	s.invalidateLists(ctx)
	return mod, nil
}

// =====================================================
// READS
// =====================================================

func (s *modService) GetMod(
	ctx context.Context,
	requester *authz.Requester,
	modID string,
) (*model.Mod, error) {
	// Step 1: Try the detail cache
	key := shared.CacheKeyModDetail(modID)

	var cached model.Mod
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		logger.Warn("mod detail cache read failed", map[string]interface{}{
			"modId": modID,
			"error": err.Error(),
		})
	}

	mod := &cached
	if !hit {
		// Step 2: Cache miss, load and fill
		mod, err = s.findMod(ctx, modID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, key, mod, detailCacheTTL); err != nil {
			logger.Warn("mod detail cache write failed", map[string]interface{}{
				"modId": modID,
				"error": err.Error(),
			})
		}
	}

	// Step 3: Visibility applies to cached entries too
	if !authz.CanView(mod.Visibility, mod.CustomerID, requester) {
		return nil, model.NewModNotFoundError()
	}

	return mod, nil
}

func (s *modService) GetModBySlug(
	ctx context.Context,
	requester *authz.Requester,
	slug string,
) (*model.Mod, error) {
	// Slug lookups skip the cache; a rename would leave stale keys
	mod, err := s.mods.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, model.ErrModNotFound) {
			return nil, model.NewModNotFoundError()
		}
		return nil, fmt.Errorf("failed to load mod: %w", err)
	}

	if !authz.CanView(mod.Visibility, mod.CustomerID, requester) {
		return nil, model.NewModNotFoundError()
	}

	return mod, nil
}

func (s *modService) ListPublic(ctx context.Context, category string) ([]kv.ModSummary, error) {
	key := shared.CacheKeyModList(category)

	var cached []kv.ModSummary
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		logger.Warn("mod list cache read failed", map[string]interface{}{
			"category": category,
			"error":    err.Error(),
		})
	}
	if hit {
		return cached, nil
	}

	summaries, err := s.mods.ListPublicByCategory(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list mods: %w", err)
	}
	if summaries == nil {
		summaries = []kv.ModSummary{}
	}

	if err := s.cache.Set(ctx, key, summaries, listCacheTTL); err != nil {
		logger.Warn("mod list cache write failed", map[string]interface{}{
			"category": category,
			"error":    err.Error(),
		})
	}

	return summaries, nil
}

func (s *modService) ListMine(ctx context.Context, requester *authz.Requester) ([]kv.ModSummary, error) {
	if requester == nil || requester.CustomerID == "" {
		return nil, model.NewForbiddenError()
	}

	summaries, err := s.mods.ListByCustomer(ctx, requester.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mods: %w", err)
	}
	if summaries == nil {
		summaries = []kv.ModSummary{}
	}

	return summaries, nil
}

// =====================================================
// UPDATE MOD
// =====================================================

func (s *modService) UpdateMod(
	ctx context.Context,
	requester *authz.Requester,
	modID string,
	req model.UpdateModRequest,
) (*model.Mod, error) {
	// Step 1: Validate request
	if err := req.Validate(); err != nil {
		return nil, model.NewInvalidInputError(err)
	}

	// Step 2: Load mod, requester must own it
	mod, err := s.loadOwnedMod(ctx, modID, requester)
	if err != nil {
		return nil, err
	}

	// Step 3: A slug change claims the new name first, so the mod is
	// never left without a claimed slug
	oldSlug := mod.Slug
	slugChanged := req.Slug != nil && *req.Slug != mod.Slug
	if slugChanged {
		if err := s.mods.ClaimSlug(ctx, *req.Slug, mod.ModID, mod.CustomerID); err != nil {
			if errors.Is(err, model.ErrSlugTaken) {
				return nil, model.NewSlugTakenError(*req.Slug)
			}
			return nil, fmt.Errorf("failed to claim slug: %w", err)
		}
		mod.Slug = *req.Slug
	}

	// Step 4: Apply the remaining partial fields
	if req.Title != nil {
		mod.Title = *req.Title
	}
	if req.Description != nil {
		mod.Description = *req.Description
	}
	if req.Category != nil {
		mod.Category = *req.Category
	}
	if req.Visibility != nil {
		mod.Visibility = *req.Visibility
	}
	if req.Status != nil {
		mod.Status = *req.Status
	}
	mod.UpdatedAt = time.Now()

	if err := s.mods.Save(ctx, mod); err != nil {
		if slugChanged {
			s.releaseSlug(ctx, mod.Slug)
		}
		return nil, fmt.Errorf("failed to update mod: %w", err)
	}

	// Step 5: The old slug is only freed once the record is safely
	// rewritten
	if slugChanged {
		s.releaseSlug(ctx, oldSlug)
	}

	s.invalidateDetail(ctx, mod.ModID)
	s.invalidateLists(ctx)
	return mod, nil
}

// =====================================================
// DELETE MOD
// =====================================================

func (s *modService) DeleteMod(
	ctx context.Context,
	requester *authz.Requester,
	modID string,
) error {
	// Step 1: Load mod, requester must own it
	mod, err := s.loadOwnedMod(ctx, modID, requester)
	if err != nil {
		return err
	}

	// Step 2: Cascade every variant through its snapshot: version
	// records, version index, then the variant record
	for i := range mod.Variants {
		variantID := mod.Variants[i].VariantID

		versions, err := s.variants.ListVersions(ctx, mod.CustomerID, variantID)
		if err != nil {
			return fmt.Errorf("failed to list variant versions: %w", err)
		}
		for j := range versions {
			if err := s.variants.DeleteVersion(ctx, mod.CustomerID, &versions[j]); err != nil {
				return fmt.Errorf("failed to delete variant version %s: %w", versions[j].VariantVersionID, err)
			}
		}
		if err := s.variants.DeleteVersionIndex(ctx, variantID); err != nil {
			return fmt.Errorf("failed to delete variant version index: %w", err)
		}
		if err := s.variants.Delete(ctx, mod.CustomerID, variantID); err != nil {
			return fmt.Errorf("failed to delete variant %s: %w", variantID, err)
		}
	}

	// Step 3: The mod's own versions
	versions, err := s.mods.ListVersions(ctx, mod.CustomerID, mod.ModID)
	if err != nil {
		return fmt.Errorf("failed to list versions: %w", err)
	}
	for i := range versions {
		if err := s.mods.DeleteVersion(ctx, mod.CustomerID, &versions[i]); err != nil {
			return fmt.Errorf("failed to delete version %s: %w", versions[i].VersionID, err)
		}
	}
	if err := s.mods.DeleteVersionIndex(ctx, mod.ModID); err != nil {
		return fmt.Errorf("failed to delete version index: %w", err)
	}

	// Step 4: Every blob, including variant files and icons, lives
	// under one prefix
	if err := s.blobs.DeleteByPrefix(ctx, storage.ModPrefix(mod.CustomerID, mod.ModID)); err != nil {
		return fmt.Errorf("failed to delete files: %w", err)
	}

	// Step 5: The mod record goes last, releasing its slug and
	// summary index entry, so a retry after any failure above still
	// finds it
	if err := s.mods.Delete(ctx, mod); err != nil {
		return fmt.Errorf("failed to delete mod: %w", err)
	}

	s.invalidateDetail(ctx, mod.ModID)
	s.invalidateLists(ctx)
	return nil
}

// =====================================================
// UPLOAD VERSION
// =====================================================

func (s *modService) UploadVersion(
	ctx context.Context,
	requester *authz.Requester,
	modID string,
	file upload.File,
	meta model.VersionMetadata,
) (*model.ModVersion, error) {
	// Step 1: Validate metadata
	if err := meta.Validate(); err != nil {
		return nil, model.NewInvalidInputError(err)
	}

	// Step 2: Load mod, requester must own it
	mod, err := s.loadOwnedMod(ctx, modID, requester)
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
	versionID := utils.NewVersionID()
	blobKey := storage.ModVersionKey(mod.CustomerID, mod.ModID, versionID, filepath.Ext(file.Name))

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
	version := &model.ModVersion{
		VersionID: versionID,
		ModID:     mod.ModID,
		Version:   meta.Version,
		Changelog: meta.Changelog,
		FileName:  file.Name,
		FileSize:  inspection.Size,
		BlobKey:   blobKey,
		SHA256:    inspection.SHA256,
		CreatedAt: time.Now(),
	}
	if err := s.mods.SaveVersion(ctx, mod.CustomerID, version); err != nil {
		return nil, fmt.Errorf("failed to save version: %w", err)
	}

	// Step 7: latestVersion reflects whichever upload's final write
	// lands last, not necessarily the semantically newest version
	mod.LatestVersion = meta.Version
	mod.UpdatedAt = time.Now()
	if err := s.mods.Save(ctx, mod); err != nil {
		return nil, fmt.Errorf("failed to update mod: %w", err)
	}

	s.invalidateDetail(ctx, mod.ModID)
	s.invalidateLists(ctx)
	return version, nil
}

// =====================================================
// LIST VERSIONS
// =====================================================

func (s *modService) ListVersions(
	ctx context.Context,
	requester *authz.Requester,
	modID string,
) ([]model.ModVersion, error) {
	mod, err := s.loadVisibleMod(ctx, modID, requester)
	if err != nil {
		return nil, err
	}

	return s.mods.ListVersions(ctx, mod.CustomerID, mod.ModID)
}

// =====================================================
// DOWNLOADS
// =====================================================

func (s *modService) DownloadLatest(
	ctx context.Context,
	requester *authz.Requester,
	modID string,
) (*model.FilePayload, error) {
	mod, err := s.loadVisibleMod(ctx, modID, requester)
	if err != nil {
		return nil, err
	}

	// The version-list index is newest first
	ids, err := s.mods.ListVersionIDs(ctx, mod.ModID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	if len(ids) == 0 {
		return nil, model.NewVersionNotFoundError()
	}

	return s.download(ctx, mod, ids[0])
}

func (s *modService) DownloadVersion(
	ctx context.Context,
	requester *authz.Requester,
	modID, versionID string,
) (*model.FilePayload, error) {
	mod, err := s.loadVisibleMod(ctx, modID, requester)
	if err != nil {
		return nil, err
	}

	return s.download(ctx, mod, versionID)
}

// download fetches, decrypts and serves one mod version, then
// notifies the counter
func (s *modService) download(
	ctx context.Context,
	mod *model.Mod,
	versionID string,
) (*model.FilePayload, error) {
	// Step 1: Resolve the version record, pinned to the mod in the
	// path
	version, err := s.mods.GetVersion(ctx, mod.CustomerID, versionID)
	if err != nil {
		if errors.Is(err, model.ErrVersionNotFound) {
			return nil, model.NewVersionNotFoundError()
		}
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	if version.ModID != mod.ModID {
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
		Scope:     mod.CustomerID,
		ModID:     mod.ModID,
		VersionID: version.VersionID,
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
// UPLOAD ICON
// =====================================================

func (s *modService) UploadIcon(
	ctx context.Context,
	requester *authz.Requester,
	modID string,
	file upload.File,
) (*model.Mod, error) {
	// Step 1: Load mod, requester must own it
	mod, err := s.loadOwnedMod(ctx, modID, requester)
	if err != nil {
		return nil, err
	}

	// Step 2: Must decode as JPEG or PNG within the size limit
	if err := s.icons.ValidateIcon(file.Data); err != nil {
		return nil, model.NewInvalidIconError(err)
	}

	// Step 3: Store the original as-is. Icons are public display
	// assets, not mod content, so no encryption.
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	originalKey := storage.ModIconOriginalKey(mod.CustomerID, mod.ModID)
	metadata := &storage.ObjectMetadata{
		OriginalFileName:    file.Name,
		OriginalContentType: file.ContentType,
	}
	if err := s.blobs.Upload(ctx, originalKey, file.Data, contentType, metadata); err != nil {
		return nil, fmt.Errorf("failed to store icon: %w", err)
	}

	// Step 4: Mark the icon uploaded. The resize job fills in the
	// size list; until then any previous sizes keep serving.
	now := time.Now()
	icon := &model.IconState{Uploaded: true, UpdatedAt: now}
	if mod.Icon != nil {
		icon.Sizes = mod.Icon.Sizes
	}
	mod.Icon = icon
	mod.UpdatedAt = now

	if err := s.mods.Save(ctx, mod); err != nil {
		return nil, fmt.Errorf("failed to update mod: %w", err)
	}

	// Step 5: Queue the resize job
	payload, err := json.Marshal(shared.ProcessModIconPayload{ModID: mod.ModID, Scope: mod.CustomerID})
	if err != nil {
		return nil, fmt.Errorf("failed to build icon task: %w", err)
	}
	task := asynq.NewTask(shared.TypeProcessModIcon, payload)
	if _, err := s.tasks.Enqueue(task, asynq.Queue(shared.QueueDefault), asynq.MaxRetry(2)); err != nil {
		logger.Warn("failed to enqueue icon processing", map[string]interface{}{
			"modId": mod.ModID,
			"error": err.Error(),
		})
	}

	s.invalidateDetail(ctx, mod.ModID)
	return mod, nil
}

// =====================================================
// STORAGE USAGE
// =====================================================

func (s *modService) Usage(ctx context.Context, requester *authz.Requester) (*model.UsageReport, error) {
	if requester == nil || requester.CustomerID == "" {
		return nil, model.NewForbiddenError()
	}

	// Step 1: Every mod the requester owns
	summaries, err := s.mods.ListByCustomer(ctx, requester.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mods: %w", err)
	}

	// Step 2: Sum the stored objects under each mod's prefix. This
	// counts ciphertext and icons as stored, which is what the quota
	// is about.
	report := &model.UsageReport{
		CustomerID: requester.CustomerID,
		ModCount:   len(summaries),
		Mods:       make([]model.ModUsage, 0, len(summaries)),
	}

	for _, summary := range summaries {
		objects, err := s.blobs.List(ctx, storage.ModPrefix(requester.CustomerID, summary.ModID))
		if err != nil {
			return nil, fmt.Errorf("failed to list files for %s: %w", summary.ModID, err)
		}

		var bytes int64
		for _, obj := range objects {
			bytes += obj.Size
		}

		report.Mods = append(report.Mods, model.ModUsage{
			ModID:     summary.ModID,
			Title:     summary.Title,
			FileCount: len(objects),
			Bytes:     bytes,
			Megabytes: bytesToMegabytes(bytes),
		})
		report.FileCount += len(objects)
		report.TotalBytes += bytes
	}

	// Step 3: Totals against the quota
	report.TotalMB = bytesToMegabytes(report.TotalBytes)
	report.QuotaMB = decimal.NewFromInt(int64(s.quotaMB))
	report.HumanTotal = humanize.Bytes(uint64(report.TotalBytes))
	if report.QuotaMB.IsPositive() {
		report.PercentUsed = report.TotalMB.
			Div(report.QuotaMB).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	} else {
		report.PercentUsed = decimal.Zero
	}

	return report, nil
}

func bytesToMegabytes(bytes int64) decimal.Decimal {
	return decimal.NewFromInt(bytes).
		Div(decimal.NewFromInt(1024 * 1024)).
		Round(2)
}

// =====================================================
// ADMIN EXPORT
// =====================================================

func (s *modService) AdminExport(ctx context.Context) (*excelize.File, error) {
	summaries, err := s.mods.ListAllSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list mods: %w", err)
	}

	f, err := buildModsExcelFile(summaries)
	if err != nil {
		return nil, fmt.Errorf("failed to build excel file: %w", err)
	}

	return f, nil
}

func buildModsExcelFile(summaries []kv.ModSummary) (*excelize.File, error) {
	f := excelize.NewFile()

	sheetName := "Mods"
	f.SetSheetName("Sheet1", sheetName)

	// Row 1: Header
	headers := []string{
		"Mod ID",
		"Title",
		"Slug",
		"Owner",
		"Category",
		"Visibility",
		"Status",
		"Latest Version",
		"Downloads",
		"Updated At",
	}

	for colIdx, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(colIdx+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
	})
	if err == nil {
		f.SetCellStyle(sheetName, "A1", "J1", headerStyle)
	}

	// Data rows, starting from row 2
	for i, m := range summaries {
		rowNum := i + 2

		cell := func(col int) string {
			name, _ := excelize.CoordinatesToCellName(col, rowNum)
			return name
		}

		f.SetCellValue(sheetName, cell(1), m.ModID)
		f.SetCellValue(sheetName, cell(2), m.Title)
		f.SetCellValue(sheetName, cell(3), m.Slug)
		f.SetCellValue(sheetName, cell(4), m.CustomerID)
		f.SetCellValue(sheetName, cell(5), m.Category)
		f.SetCellValue(sheetName, cell(6), m.Visibility)
		f.SetCellValue(sheetName, cell(7), m.Status)
		f.SetCellValue(sheetName, cell(8), m.LatestVersion)
		f.SetCellValue(sheetName, cell(9), m.DownloadCount)
		f.SetCellValue(sheetName, cell(10), m.UpdatedAt.Format(time.RFC3339))
	}

	return f, nil
}

// =====================================================
// HELPERS
// =====================================================

// loadOwnedMod loads a mod for a mutating operation. Strangers to a
// private mod get NotFound, not Forbidden, so its existence leaks
// nothing.
func (s *modService) loadOwnedMod(ctx context.Context, modID string, requester *authz.Requester) (*model.Mod, error) {
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
func (s *modService) loadVisibleMod(ctx context.Context, modID string, requester *authz.Requester) (*model.Mod, error) {
	mod, err := s.findMod(ctx, modID)
	if err != nil {
		return nil, err
	}

	if !authz.CanView(mod.Visibility, mod.CustomerID, requester) {
		return nil, model.NewModNotFoundError()
	}

	return mod, nil
}

func (s *modService) findMod(ctx context.Context, modID string) (*model.Mod, error) {
	mod, err := s.mods.Find(ctx, modID)
	if err != nil {
		if errors.Is(err, model.ErrModNotFound) {
			return nil, model.NewModNotFoundError()
		}
		return nil, fmt.Errorf("failed to load mod: %w", err)
	}
	return mod, nil
}

func (s *modService) releaseSlug(ctx context.Context, slug string) {
	if err := s.mods.ReleaseSlug(ctx, slug); err != nil {
		logger.Warn("failed to release slug", map[string]interface{}{
			"slug":  slug,
			"error": err.Error(),
		})
	}
}

func (s *modService) invalidateDetail(ctx context.Context, modID string) {
	if err := s.cache.Delete(ctx, shared.CacheKeyModDetail(modID)); err != nil {
		logger.Warn("failed to invalidate mod detail cache", map[string]interface{}{
			"modId": modID,
			"error": err.Error(),
		})
	}
}

func (s *modService) invalidateLists(ctx context.Context) {
	if err := s.cache.DeletePattern(ctx, shared.CacheKeyModListPattern); err != nil {
		logger.Warn("failed to invalidate mod list caches", map[string]interface{}{
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
