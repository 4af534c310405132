package model

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var versionPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+([-+][0-9A-Za-z.-]+)?$`)

// =====================================================
// REQUEST DTOs
// =====================================================

// CreateVariantRequest creates a new variant under a mod
type CreateVariantRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	ParentVersionID string `json:"parentVersionId"`
}

// Validate validates CreateVariantRequest
func (r CreateVariantRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name,
			validation.Required.Error("variant name is required"),
			validation.Length(1, 100).Error("variant name must be 1-100 characters"),
		),
		validation.Field(&r.Description,
			validation.Length(0, 1000).Error("description must not exceed 1000 characters"),
		),
		validation.Field(&r.ParentVersionID,
			validation.Required.Error("parentVersionId is required"),
		),
	)
}

// UploadVersionMetadata is the `metadata` JSON part of a multipart
// version upload
type UploadVersionMetadata struct {
	Version      string   `json:"version"`
	Changelog    string   `json:"changelog"`
	GameVersions []string `json:"gameVersions"`
	Dependencies []string `json:"dependencies"`
}

// Validate validates UploadVersionMetadata
func (m UploadVersionMetadata) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Version,
			validation.Required.Error("version is required"),
			validation.Match(versionPattern).Error("version must be semver, e.g. 1.2.0"),
		),
		validation.Field(&m.Changelog,
			validation.Length(0, 5000).Error("changelog must not exceed 5000 characters"),
		),
		validation.Field(&m.GameVersions,
			validation.Length(0, 50).Error("at most 50 game versions"),
		),
		validation.Field(&m.Dependencies,
			validation.Length(0, 50).Error("at most 50 dependencies"),
		),
	)
}

// =====================================================
// RESPONSE DTOs
// =====================================================

// ListVersionsResponse wraps the version list; an empty array, not an
// error, when the variant has no uploads yet
type ListVersionsResponse struct {
	Versions []VariantVersion `json:"versions"`
}

// FilePayload is a decrypted artifact ready to serve, with the
// client-facing headers reconstructed from blob metadata
type FilePayload struct {
	Data        []byte
	FileName    string
	ContentType string
}
