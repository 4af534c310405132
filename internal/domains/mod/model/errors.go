package model

import (
	"errors"
	"fmt"
)

// Error codes
const (
	ErrCodeModNotFound       = "MOD001"
	ErrCodeVersionNotFound   = "MOD002"
	ErrCodeSlugTaken         = "MOD003"
	ErrCodeInvalidInput      = "MOD004"
	ErrCodeForbidden         = "MOD005"
	ErrCodeCorruptRecord     = "MOD006"
	ErrCodeNotEncrypted      = "MOD007"
	ErrCodeLegacyFormat      = "MOD008"
	ErrCodeKeyNotConfigured  = "MOD009"
	ErrCodeDecryptionFailed  = "MOD010"
	ErrCodeFileNotFound      = "MOD011"
	ErrCodeCorruptServerData = "MOD012"
	ErrCodeInvalidIcon       = "MOD013"
)

// Errors
var (
	ErrModNotFound     = errors.New("mod not found")
	ErrVersionNotFound = errors.New("mod version not found")
	ErrSlugTaken       = errors.New("slug already taken")
	ErrForbidden       = errors.New("forbidden")
	ErrCorruptRecord   = errors.New("corrupt record")
	ErrFileNotFound    = errors.New("file not found")
)

// ModError custom error type
type ModError struct {
	Code    string
	Message string
	Err     error
}

func (e *ModError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ModError) Unwrap() error {
	return e.Err
}

// Error constructors
func NewModNotFoundError() *ModError {
	return &ModError{
		Code:    ErrCodeModNotFound,
		Message: "Mod not found",
		Err:     ErrModNotFound,
	}
}

func NewVersionNotFoundError() *ModError {
	return &ModError{
		Code:    ErrCodeVersionNotFound,
		Message: "Mod version not found",
		Err:     ErrVersionNotFound,
	}
}

func NewSlugTakenError(slug string) *ModError {
	return &ModError{
		Code:    ErrCodeSlugTaken,
		Message: fmt.Sprintf("Slug %q is already taken", slug),
		Err:     ErrSlugTaken,
	}
}

func NewInvalidInputError(err error) *ModError {
	return &ModError{
		Code:    ErrCodeInvalidInput,
		Message: err.Error(),
		Err:     err,
	}
}

func NewForbiddenError() *ModError {
	return &ModError{
		Code:    ErrCodeForbidden,
		Message: "You do not own this mod",
		Err:     ErrForbidden,
	}
}

func NewCorruptRecordError(entityType, id string, err error) *ModError {
	return &ModError{
		Code:    ErrCodeCorruptRecord,
		Message: fmt.Sprintf("Stored %s record %s is corrupt", entityType, id),
		Err:     fmt.Errorf("%w: %v", ErrCorruptRecord, err),
	}
}

func NewNotEncryptedError(err error) *ModError {
	return &ModError{
		Code:    ErrCodeNotEncrypted,
		Message: "Uploaded file must be encrypted with a supported format",
		Err:     err,
	}
}

func NewLegacyFormatError() *ModError {
	return &ModError{
		Code:    ErrCodeLegacyFormat,
		Message: "Legacy token-derived encryption is no longer accepted for uploads",
		Err:     nil,
	}
}

func NewKeyNotConfiguredError() *ModError {
	return &ModError{
		Code:    ErrCodeKeyNotConfigured,
		Message: "Server encryption key is not configured",
		Err:     nil,
	}
}

func NewDecryptionFailedError(err error) *ModError {
	return &ModError{
		Code:    ErrCodeDecryptionFailed,
		Message: "Uploaded file could not be decrypted",
		Err:     err,
	}
}

func NewFileNotFoundError() *ModError {
	return &ModError{
		Code:    ErrCodeFileNotFound,
		Message: "Stored file is missing",
		Err:     ErrFileNotFound,
	}
}

func NewCorruptServerDataError(err error) *ModError {
	return &ModError{
		Code:    ErrCodeCorruptServerData,
		Message: "Stored file could not be decrypted",
		Err:     err,
	}
}

func NewInvalidIconError(err error) *ModError {
	return &ModError{
		Code:    ErrCodeInvalidIcon,
		Message: fmt.Sprintf("Invalid icon: %v", err),
		Err:     err,
	}
}
