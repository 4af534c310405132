package service

import (
	"context"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/variant/model"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/authz"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/upload"
)

// ServiceInterface orchestrates variant lifecycle: explicit creation
// by the mod owner, encrypted version uploads, listing, downloads and
// cascade deletes.
type ServiceInterface interface {
	// CreateVariant adds a variant to a mod the requester owns. The
	// parent version must already exist on the mod.
	CreateVariant(ctx context.Context, requester *authz.Requester, modID string, req model.CreateVariantRequest) (*model.Variant, error)

	// UploadVersion stores a pre-encrypted artifact as the variant's
	// newest version and moves currentVersionId to it
	UploadVersion(ctx context.Context, requester *authz.Requester, modID, variantID string, file upload.File, meta model.UploadVersionMetadata) (*model.VariantVersion, error)

	// ListVersions returns the variant's versions newest first; an
	// empty slice when nothing has been uploaded yet
	ListVersions(ctx context.Context, requester *authz.Requester, modID, variantID string) ([]model.VariantVersion, error)

	// DownloadCurrent serves the decrypted current version
	DownloadCurrent(ctx context.Context, requester *authz.Requester, modID, variantID string) (*model.FilePayload, error)

	// DownloadVersion serves one specific decrypted version
	DownloadVersion(ctx context.Context, requester *authz.Requester, modID, variantID, variantVersionID string) (*model.FilePayload, error)

	// DeleteVersion removes one version; siblings are untouched. If
	// the current version is deleted, currentVersionId moves to the
	// newest remaining version, or null when none remain.
	DeleteVersion(ctx context.Context, requester *authz.Requester, modID, variantID, variantVersionID string) error

	// DeleteVariant cascades: every version's record, index entry
	// and blob go first, then the variant itself
	DeleteVariant(ctx context.Context, requester *authz.Requester, modID, variantID string) error
}
