package service

import (
	"context"

	"github.com/xuri/excelize/v2"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/model"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/infrastructure/kv"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/authz"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/upload"
)

// ServiceInterface orchestrates the mod lifecycle: creation with an
// initial encrypted upload, metadata updates, version management,
// decrypted downloads, icon processing and storage accounting.
type ServiceInterface interface {
	// CreateMod registers a new mod from a first-upload request. The
	// file part becomes the initial version; the slug is claimed
	// before anything is stored.
	CreateMod(ctx context.Context, requester *authz.Requester, req model.CreateModRequest, file upload.File) (*model.Mod, error)

	// GetMod returns one mod with its variant snapshots. Private
	// mods are invisible to everyone but their owner.
	GetMod(ctx context.Context, requester *authz.Requester, modID string) (*model.Mod, error)

	// GetModBySlug resolves a mod through the slug index
	GetModBySlug(ctx context.Context, requester *authz.Requester, slug string) (*model.Mod, error)

	// ListPublic returns summaries of published public mods,
	// optionally narrowed to one category
	ListPublic(ctx context.Context, category string) ([]kv.ModSummary, error)

	// ListMine returns every mod owned by the requester, regardless
	// of visibility or status
	ListMine(ctx context.Context, requester *authz.Requester) ([]kv.ModSummary, error)

	// UpdateMod applies a partial metadata update. A slug change
	// claims the new slug before releasing the old one.
	UpdateMod(ctx context.Context, requester *authz.Requester, modID string, req model.UpdateModRequest) (*model.Mod, error)

	// DeleteMod cascades over every variant, version, blob and index
	// entry before removing the mod record itself
	DeleteMod(ctx context.Context, requester *authz.Requester, modID string) error

	// UploadVersion stores a pre-encrypted artifact as the mod's
	// newest version
	UploadVersion(ctx context.Context, requester *authz.Requester, modID string, file upload.File, meta model.VersionMetadata) (*model.ModVersion, error)

	// ListVersions returns the mod's versions newest first; an empty
	// slice when nothing has been uploaded yet
	ListVersions(ctx context.Context, requester *authz.Requester, modID string) ([]model.ModVersion, error)

	// DownloadLatest serves the decrypted newest version
	DownloadLatest(ctx context.Context, requester *authz.Requester, modID string) (*model.FilePayload, error)

	// DownloadVersion serves one specific decrypted version
	DownloadVersion(ctx context.Context, requester *authz.Requester, modID, versionID string) (*model.FilePayload, error)

	// UploadIcon stores the original icon and queues the resize job.
	// Icons are served publicly, so they are stored unencrypted.
	UploadIcon(ctx context.Context, requester *authz.Requester, modID string, file upload.File) (*model.Mod, error)

	// Usage reports the requester's blob storage consumption against
	// their quota, per mod and in total
	Usage(ctx context.Context, requester *authz.Requester) (*model.UsageReport, error)

	// AdminExport builds a spreadsheet of every mod summary in the
	// system. Admin-gated at the route.
	AdminExport(ctx context.Context) (*excelize.File, error)
}
