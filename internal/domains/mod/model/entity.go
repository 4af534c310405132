package model

import (
	"time"

	variantmodel "github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/variant/model"
)

// Mod is a distributable content package owned by one customer. The
// customer id doubles as the storage scope for every record and blob
// belonging to the mod.
type Mod struct {
	ModID      string `json:"modId"`
	Slug       string `json:"slug"`
	CustomerID string `json:"customerId"`
	AuthorID   string `json:"authorId"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
	Visibility  string `json:"visibility"` // public, unlisted, private
	Status      string `json:"status"`     // pending, published, archived

	LatestVersion string `json:"latestVersion,omitempty"`
	DownloadCount int64  `json:"downloadCount"`

	Icon *IconState `json:"icon,omitempty"`

	// Variants is a snapshot of the variant records for detail
	// reads. The KV variant records stay authoritative; every
	// variant mutation rewrites its snapshot here.
	Variants []variantmodel.Variant `json:"variants"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IconState records which resized icons exist for a mod
type IconState struct {
	Uploaded  bool      `json:"uploaded"`
	Sizes     []string  `json:"sizes,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ModVersion is one uploaded, encrypted artifact at the mod level
type ModVersion struct {
	VersionID string `json:"versionId"`
	ModID     string `json:"modId"`

	Version   string `json:"version"`
	Changelog string `json:"changelog,omitempty"`

	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	BlobKey  string `json:"blobKey"`
	SHA256   string `json:"sha256"`

	Downloads int64 `json:"downloads"`

	CreatedAt time.Time `json:"createdAt"`
}

// FindVariant returns the embedded snapshot for a variant id, or nil
func (m *Mod) FindVariant(variantID string) *variantmodel.Variant {
	for i := range m.Variants {
		if m.Variants[i].VariantID == variantID {
			return &m.Variants[i]
		}
	}
	return nil
}

// UpsertVariant replaces the snapshot for the variant, or appends it
func (m *Mod) UpsertVariant(v variantmodel.Variant) {
	for i := range m.Variants {
		if m.Variants[i].VariantID == v.VariantID {
			m.Variants[i] = v
			return
		}
	}
	m.Variants = append(m.Variants, v)
}

// RemoveVariant drops the snapshot for the variant id
func (m *Mod) RemoveVariant(variantID string) {
	kept := m.Variants[:0]
	for _, v := range m.Variants {
		if v.VariantID != variantID {
			kept = append(kept, v)
		}
	}
	m.Variants = kept
}
