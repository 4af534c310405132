package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBlobNotFound is returned when no object exists at the given key
var ErrBlobNotFound = errors.New("blob not found")

// ObjectMetadata travels with every stored blob as object user
// metadata, so a blob is self-describing without a database read.
type ObjectMetadata struct {
	Encrypted           bool
	EncryptionFormat    string // "v4", "v5"
	OriginalFileName    string
	OriginalContentType string
	SHA256              string // digest of the decrypted content
}

// ObjectInfo describes one stored object in listings
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Storage is the blob store contract. Mod files are stored as
// ciphertext exactly as uploaded; metadata records what they are.
type Storage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string, metadata *ObjectMetadata) error

	// Download returns the blob bytes and its stored metadata.
	// Returns ErrBlobNotFound when the key does not exist.
	Download(ctx context.Context, key string) ([]byte, *ObjectMetadata, error)

	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	RemoveObjects(ctx context.Context, keys []string) error

	// List returns every object under a prefix. An empty prefix
	// lists the whole bucket (the orphan sweep does this).
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	HealthCheck(ctx context.Context) error
}

// Blob key layout. Everything belonging to a mod lives under its
// scope/mod prefix so a cascade delete is one prefix removal.
//
//	{scope}/mods/{modId}/versions/{versionId}{ext}
//	{scope}/mods/{modId}/variants/{variantId}/versions/{variantVersionId}{ext}
//	{scope}/mods/{modId}/icon_{size}.png

// ModVersionKey builds the blob key for a mod version file
func ModVersionKey(scope, modID, versionID, ext string) string {
	return fmt.Sprintf("%s/mods/%s/versions/%s%s", scope, modID, versionID, normalizeExt(ext))
}

// VariantVersionKey builds the blob key for a variant version file
func VariantVersionKey(scope, modID, variantID, variantVersionID, ext string) string {
	return fmt.Sprintf("%s/mods/%s/variants/%s/versions/%s%s",
		scope, modID, variantID, variantVersionID, normalizeExt(ext))
}

// ModIconKey builds the blob key for one resized icon
func ModIconKey(scope, modID, size string) string {
	return fmt.Sprintf("%s/mods/%s/icon_%s.png", scope, modID, size)
}

// ModIconOriginalKey builds the blob key for the uploaded icon
// before resizing
func ModIconOriginalKey(scope, modID string) string {
	return fmt.Sprintf("%s/mods/%s/icon_original", scope, modID)
}

// ModPrefix is the prefix holding everything that belongs to a mod
func ModPrefix(scope, modID string) string {
	return fmt.Sprintf("%s/mods/%s/", scope, modID)
}

// VariantPrefix is the prefix holding everything that belongs to a
// variant
func VariantPrefix(scope, modID, variantID string) string {
	return fmt.Sprintf("%s/mods/%s/variants/%s/", scope, modID, variantID)
}

func normalizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}
