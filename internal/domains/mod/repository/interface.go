package repository

import (
	"context"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/model"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/infrastructure/kv"
)

// ModRepository persists mod and mod-version records in the scoped
// entity store and keeps the global indexes in step with them.
//
// Record lookups that already know the scope go straight to the
// store; Find and FindBySlug resolve through the global indexes and
// lazily backfill index entries for records written before the
// indexes existed.
type ModRepository interface {
	// Get loads one mod record from a known scope.
	// Returns model.ErrModNotFound when absent.
	Get(ctx context.Context, scope, modID string) (*model.Mod, error)

	// Find locates a mod by id alone via the mod index. On an index
	// miss it falls back to scanning the mod records and backfills
	// the missing index entries before returning.
	Find(ctx context.Context, modID string) (*model.Mod, error)

	// FindBySlug resolves a slug via the slug index, with the same
	// lazy backfill fallback as Find.
	FindBySlug(ctx context.Context, slug string) (*model.Mod, error)

	// Save writes the mod record and upserts its index summary
	Save(ctx context.Context, mod *model.Mod) error

	// Delete removes the mod record together with its slug and
	// summary index entries
	Delete(ctx context.Context, mod *model.Mod) error

	// ClaimSlug reserves a slug for a mod.
	// Returns model.ErrSlugTaken when it is already claimed.
	ClaimSlug(ctx context.Context, slug, modID, customerID string) error

	// ReleaseSlug frees a slug after a rename or delete
	ReleaseSlug(ctx context.Context, slug string) error

	// Index-backed listings
	ListPublicByCategory(ctx context.Context, category string) ([]kv.ModSummary, error)
	ListByCustomer(ctx context.Context, customerID string) ([]kv.ModSummary, error)
	ListAllSummaries(ctx context.Context) ([]kv.ModSummary, error)

	// AllMods returns every mod record across scopes. Backfill and
	// sweep jobs only; request paths use the indexes.
	AllMods(ctx context.Context) ([]model.Mod, error)

	// Mod versions. SaveVersion writes the record and appends the
	// index entry; UpdateVersion rewrites a record in place without
	// touching the index (download counts).
	GetVersion(ctx context.Context, scope, versionID string) (*model.ModVersion, error)
	SaveVersion(ctx context.Context, scope string, version *model.ModVersion) error
	UpdateVersion(ctx context.Context, scope string, version *model.ModVersion) error
	DeleteVersion(ctx context.Context, scope string, version *model.ModVersion) error

	// ListVersions resolves the mod's version-list index to records,
	// newest first. Index entries whose record is gone are skipped.
	ListVersions(ctx context.Context, scope, modID string) ([]model.ModVersion, error)

	// ListVersionIDs returns the raw ordered id list for the mod
	ListVersionIDs(ctx context.Context, modID string) ([]string, error)

	// DeleteVersionIndex drops the whole version list (cascade
	// delete)
	DeleteVersionIndex(ctx context.Context, modID string) error

	// AllVersions returns every version record across scopes. The
	// orphan sweep uses this to know which blobs are still claimed.
	AllVersions(ctx context.Context) ([]model.ModVersion, error)
}
