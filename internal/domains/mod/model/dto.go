package model

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/infrastructure/kv"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/authz"
)

var (
	versionPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+([-+][0-9A-Za-z.-]+)?$`)
	slugPattern    = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// =====================================================
// REQUEST DTOs
// =====================================================

// CreateModRequest is the form part of the first-upload multipart
// request that creates a mod. The file part carries the initial
// version's encrypted payload.
type CreateModRequest struct {
	Title       string `form:"title" json:"title"`
	Slug        string `form:"slug" json:"slug"`
	Description string `form:"description" json:"description"`
	Category    string `form:"category" json:"category"`
	Visibility  string `form:"visibility" json:"visibility"`
	Version     string `form:"version" json:"version"`
	Changelog   string `form:"changelog" json:"changelog"`
}

// Validate validates CreateModRequest
func (r CreateModRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title,
			validation.Required.Error("title is required"),
			validation.Length(1, 200).Error("title must be 1-200 characters"),
		),
		validation.Field(&r.Slug,
			validation.When(r.Slug != "",
				validation.Match(slugPattern).Error("slug must be lowercase letters, digits and hyphens"),
				validation.Length(1, 100).Error("slug must be 1-100 characters"),
			),
		),
		validation.Field(&r.Description,
			validation.Length(0, 5000).Error("description must not exceed 5000 characters"),
		),
		validation.Field(&r.Category,
			validation.Required.Error("category is required"),
			validation.Length(1, 50).Error("category must be 1-50 characters"),
		),
		validation.Field(&r.Visibility,
			validation.When(r.Visibility != "",
				validation.In(authz.VisibilityPublic, authz.VisibilityUnlisted, authz.VisibilityPrivate).
					Error("visibility must be public, unlisted or private"),
			),
		),
		validation.Field(&r.Version,
			validation.When(r.Version != "",
				validation.Match(versionPattern).Error("version must be semver, e.g. 1.0.0"),
			),
		),
	)
}

// UpdateModRequest updates mod metadata. Nil fields stay unchanged.
type UpdateModRequest struct {
	Title       *string `json:"title"`
	Slug        *string `json:"slug"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Visibility  *string `json:"visibility"`
	Status      *string `json:"status"`
}

// Validate validates UpdateModRequest
func (r UpdateModRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title,
			validation.When(r.Title != nil,
				validation.Length(1, 200).Error("title must be 1-200 characters"),
			),
		),
		validation.Field(&r.Slug,
			validation.When(r.Slug != nil,
				validation.Match(slugPattern).Error("slug must be lowercase letters, digits and hyphens"),
				validation.Length(1, 100).Error("slug must be 1-100 characters"),
			),
		),
		validation.Field(&r.Description,
			validation.When(r.Description != nil,
				validation.Length(0, 5000).Error("description must not exceed 5000 characters"),
			),
		),
		validation.Field(&r.Category,
			validation.When(r.Category != nil,
				validation.Length(1, 50).Error("category must be 1-50 characters"),
			),
		),
		validation.Field(&r.Visibility,
			validation.When(r.Visibility != nil,
				validation.In(authz.VisibilityPublic, authz.VisibilityUnlisted, authz.VisibilityPrivate).
					Error("visibility must be public, unlisted or private"),
			),
		),
		validation.Field(&r.Status,
			validation.When(r.Status != nil,
				validation.In(StatusPending, StatusPublished, StatusArchived).
					Error("status must be pending, published or archived"),
			),
		),
	)
}

// VersionMetadata is the `metadata` JSON part of a mod-level version
// upload
type VersionMetadata struct {
	Version   string `json:"version"`
	Changelog string `json:"changelog"`
}

// Validate validates VersionMetadata
func (m VersionMetadata) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Version,
			validation.Required.Error("version is required"),
			validation.Match(versionPattern).Error("version must be semver, e.g. 1.2.0"),
		),
		validation.Field(&m.Changelog,
			validation.Length(0, 5000).Error("changelog must not exceed 5000 characters"),
		),
	)
}

// =====================================================
// RESPONSE DTOs
// =====================================================

// ListModsResponse wraps a summary listing
type ListModsResponse struct {
	Mods []kv.ModSummary `json:"mods"`
}

// ListVersionsResponse wraps the mod version list
type ListVersionsResponse struct {
	Versions []ModVersion `json:"versions"`
}

// FilePayload is a decrypted artifact ready to serve
type FilePayload struct {
	Data        []byte
	FileName    string
	ContentType string
}

// ModUsage is one mod's share of a tenant's storage
type ModUsage struct {
	ModID     string          `json:"modId"`
	Title     string          `json:"title"`
	FileCount int             `json:"fileCount"`
	Bytes     int64           `json:"bytes"`
	Megabytes decimal.Decimal `json:"megabytes"`
}

// UsageReport is the per-tenant storage usage summary
type UsageReport struct {
	CustomerID  string          `json:"customerId"`
	ModCount    int             `json:"modCount"`
	FileCount   int             `json:"fileCount"`
	TotalBytes  int64           `json:"totalBytes"`
	TotalMB     decimal.Decimal `json:"totalMb"`
	QuotaMB     decimal.Decimal `json:"quotaMb"`
	PercentUsed decimal.Decimal `json:"percentUsed"`
	HumanTotal  string          `json:"humanTotal"`
	Mods        []ModUsage      `json:"mods"`
}
