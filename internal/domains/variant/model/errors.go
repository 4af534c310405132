package model

import (
	"errors"
	"fmt"
)

// Error codes
const (
	ErrCodeVariantNotFound   = "VAR001"
	ErrCodeVersionNotFound   = "VAR002"
	ErrCodeModNotFound       = "VAR003"
	ErrCodeParentVersion     = "VAR004"
	ErrCodeInvalidInput      = "VAR005"
	ErrCodeForbidden         = "VAR006"
	ErrCodeCorruptRecord     = "VAR007"
	ErrCodeNotEncrypted      = "VAR008"
	ErrCodeLegacyFormat      = "VAR009"
	ErrCodeKeyNotConfigured  = "VAR010"
	ErrCodeDecryptionFailed  = "VAR011"
	ErrCodeFileNotFound      = "VAR012"
	ErrCodeCorruptServerData = "VAR013"
)

// Errors
var (
	ErrVariantNotFound = errors.New("variant not found")
	ErrVersionNotFound = errors.New("variant version not found")
	ErrModNotFound     = errors.New("mod not found")
	ErrParentVersion   = errors.New("parent version not found")
	ErrForbidden       = errors.New("forbidden")
	ErrCorruptRecord   = errors.New("corrupt record")
	ErrFileNotFound    = errors.New("file not found")
)

// VariantError custom error type
type VariantError struct {
	Code    string
	Message string
	Err     error
}

func (e *VariantError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *VariantError) Unwrap() error {
	return e.Err
}

// Error constructors
func NewVariantNotFoundError() *VariantError {
	return &VariantError{
		Code:    ErrCodeVariantNotFound,
		Message: "Variant not found",
		Err:     ErrVariantNotFound,
	}
}

func NewVersionNotFoundError() *VariantError {
	return &VariantError{
		Code:    ErrCodeVersionNotFound,
		Message: "Variant version not found",
		Err:     ErrVersionNotFound,
	}
}

func NewModNotFoundError() *VariantError {
	return &VariantError{
		Code:    ErrCodeModNotFound,
		Message: "Mod not found",
		Err:     ErrModNotFound,
	}
}

func NewParentVersionError(versionID string) *VariantError {
	return &VariantError{
		Code:    ErrCodeParentVersion,
		Message: fmt.Sprintf("Parent version %s does not exist", versionID),
		Err:     ErrParentVersion,
	}
}

func NewInvalidInputError(err error) *VariantError {
	return &VariantError{
		Code:    ErrCodeInvalidInput,
		Message: err.Error(),
		Err:     err,
	}
}

func NewForbiddenError() *VariantError {
	return &VariantError{
		Code:    ErrCodeForbidden,
		Message: "You do not own this mod",
		Err:     ErrForbidden,
	}
}

// NewCorruptRecordError marks a stored record that no longer parses.
// Never silently coerced: the caller sees exactly which record is bad.
func NewCorruptRecordError(entityType, id string, err error) *VariantError {
	return &VariantError{
		Code:    ErrCodeCorruptRecord,
		Message: fmt.Sprintf("Stored %s record %s is corrupt", entityType, id),
		Err:     fmt.Errorf("%w: %v", ErrCorruptRecord, err),
	}
}

func NewNotEncryptedError(err error) *VariantError {
	return &VariantError{
		Code:    ErrCodeNotEncrypted,
		Message: "Uploaded file must be encrypted with a supported format",
		Err:     err,
	}
}

func NewLegacyFormatError() *VariantError {
	return &VariantError{
		Code:    ErrCodeLegacyFormat,
		Message: "Legacy token-derived encryption is no longer accepted for uploads",
		Err:     nil,
	}
}

func NewKeyNotConfiguredError() *VariantError {
	return &VariantError{
		Code:    ErrCodeKeyNotConfigured,
		Message: "Server encryption key is not configured",
		Err:     nil,
	}
}

// NewDecryptionFailedError covers a client payload that claims a
// valid format but does not decrypt with the server key
func NewDecryptionFailedError(err error) *VariantError {
	return &VariantError{
		Code:    ErrCodeDecryptionFailed,
		Message: "Uploaded file could not be decrypted",
		Err:     err,
	}
}

func NewFileNotFoundError() *VariantError {
	return &VariantError{
		Code:    ErrCodeFileNotFound,
		Message: "Stored file is missing",
		Err:     ErrFileNotFound,
	}
}

// NewCorruptServerDataError covers server-held ciphertext that fails
// to decrypt on download
func NewCorruptServerDataError(err error) *VariantError {
	return &VariantError{
		Code:    ErrCodeCorruptServerData,
		Message: "Stored file could not be decrypted",
		Err:     err,
	}
}
