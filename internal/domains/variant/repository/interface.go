package repository

import (
	"context"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/variant/model"
)

// VariantRepository persists variant and variant-version records in
// the scoped entity store and maintains the per-variant version-list
// index. The scope is always the owning mod's customer id.
type VariantRepository interface {
	// Get loads one variant record.
	// Returns model.ErrVariantNotFound when absent.
	Get(ctx context.Context, scope, variantID string) (*model.Variant, error)

	// Save writes the variant record
	Save(ctx context.Context, scope string, variant *model.Variant) error

	// Delete removes the variant record. Idempotent.
	Delete(ctx context.Context, scope, variantID string) error

	// GetVersion loads one variant-version record.
	// Returns model.ErrVersionNotFound when absent.
	GetVersion(ctx context.Context, scope, variantVersionID string) (*model.VariantVersion, error)

	// SaveVersion writes the record, then appends it to the
	// variant's version-list index
	SaveVersion(ctx context.Context, scope string, version *model.VariantVersion) error

	// UpdateVersion rewrites an existing record without touching the
	// index (download counts)
	UpdateVersion(ctx context.Context, scope string, version *model.VariantVersion) error

	// DeleteVersion removes the record and its index entry
	DeleteVersion(ctx context.Context, scope string, version *model.VariantVersion) error

	// ListVersions resolves the version-list index to records,
	// newest first. Index entries whose record is gone are skipped.
	// An empty slice, never an error, for a variant with no uploads.
	ListVersions(ctx context.Context, scope, variantID string) ([]model.VariantVersion, error)

	// ListVersionIDs returns the raw ordered id list
	ListVersionIDs(ctx context.Context, variantID string) ([]string, error)

	// DeleteVersionIndex drops the whole version list (cascade
	// delete)
	DeleteVersionIndex(ctx context.Context, variantID string) error

	// AllVersions returns every variant version record across
	// scopes. The orphan sweep uses this to know which blobs are
	// still claimed.
	AllVersions(ctx context.Context) ([]model.VariantVersion, error)
}
