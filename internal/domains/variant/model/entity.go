package model

import "time"

// Variant is an alternative rendition of a mod, versioned on its own.
// The KV record under (scope, "variant", variantId) is authoritative;
// the owning Mod record carries a snapshot of it for detail reads.
type Variant struct {
	VariantID       string `json:"variantId"`
	ModID           string `json:"modId"`
	ParentVersionID string `json:"parentVersionId"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`

	// CurrentVersionID is null until the first upload completes
	CurrentVersionID *string `json:"currentVersionId"`
	VersionCount     int     `json:"versionCount"`
	TotalDownloads   int64   `json:"totalDownloads"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// VariantVersion is one uploaded, encrypted artifact belonging to a
// variant
type VariantVersion struct {
	VariantVersionID string `json:"variantVersionId"`
	VariantID        string `json:"variantId"`
	ModID            string `json:"modId"`

	Version   string `json:"version"`
	Changelog string `json:"changelog,omitempty"`

	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	BlobKey  string `json:"blobKey"`
	SHA256   string `json:"sha256"`

	Downloads    int64    `json:"downloads"`
	GameVersions []string `json:"gameVersions,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
