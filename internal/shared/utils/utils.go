package utils

import (
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/xid"
)

// GetEnvVariable reads an environment variable with a fallback default
func GetEnvVariable(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// GetEnvInt reads an integer environment variable with a fallback default
func GetEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// ID prefixes keep entity references self-describing in logs and
// stored records. xid gives sortable, collision-free suffixes.
const (
	modIDPrefix            = "mod_"
	versionIDPrefix        = "ver_"
	variantIDPrefix        = "var_"
	variantVersionIDPrefix = "vv_"
)

// NewModID generates a mod identifier like "mod_cnbvjq82gk0..."
func NewModID() string {
	return modIDPrefix + xid.New().String()
}

// NewVersionID generates a mod version identifier
func NewVersionID() string {
	return versionIDPrefix + xid.New().String()
}

// NewVariantID generates a variant identifier
func NewVariantID() string {
	return variantIDPrefix + xid.New().String()
}

// NewVariantVersionID generates a variant version identifier
func NewVariantVersionID() string {
	return variantVersionIDPrefix + xid.New().String()
}

// NewRequestID generates a per-request correlation ID
func NewRequestID() string {
	return uuid.New().String()
}
