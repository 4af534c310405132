// Package upload validates incoming mod archives before anything is
// written. Payloads arrive pre-encrypted; the inspector decrypts them
// transiently to measure the real content, then the original
// ciphertext is what gets stored.
package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/crypto"
)

var (
	ErrExtensionNotAllowed = errors.New("file extension not allowed")
	ErrFileTooLarge        = errors.New("file exceeds maximum size")
	ErrPayloadNotEncrypted = errors.New("payload is not in a recognized encrypted format")
)

// File is one file part of a multipart upload, read into memory
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// ReadFilePart materializes a multipart file header into a File
func ReadFilePart(header *multipart.FileHeader) (*File, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}

	return &File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// Policy holds the upload limits configured per deployment
type Policy struct {
	MaxSize           int64    // bytes, enforced on the uploaded payload
	AllowedExtensions []string // lowercase, dot-prefixed, e.g. ".zip"
}

// CheckFileName validates the file extension against the allow-list
func (p Policy) CheckFileName(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return fmt.Errorf("%w: file has no extension", ErrExtensionNotAllowed)
	}
	for _, allowed := range p.AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (allowed: %s)", ErrExtensionNotAllowed, ext, strings.Join(p.AllowedExtensions, ", "))
}

// CheckSize validates the uploaded payload size
func (p Policy) CheckSize(size int64) error {
	if p.MaxSize > 0 && size > p.MaxSize {
		return fmt.Errorf("%w: %s exceeds limit of %s",
			ErrFileTooLarge, humanize.Bytes(uint64(size)), humanize.Bytes(uint64(p.MaxSize)))
	}
	return nil
}

// Inspection describes the decrypted content of an uploaded payload
type Inspection struct {
	Size   int64         // plaintext size in bytes
	SHA256 string        // hex digest of the plaintext
	Format crypto.Format // format tag the payload arrived in
}

// Inspect verifies that data is in a recognized encrypted format and
// measures the plaintext. The plaintext is discarded before return;
// callers store the original ciphertext untouched.
func Inspect(engine *crypto.Engine, data []byte) (*Inspection, error) {
	plaintext, format, err := engine.Decrypt(data)
	if err != nil {
		if errors.Is(err, crypto.ErrUnknownFormat) || errors.Is(err, crypto.ErrBlobTooShort) {
			return nil, fmt.Errorf("%w: %v", ErrPayloadNotEncrypted, err)
		}
		// legacy format and key/auth failures keep their own error
		// identity so the caller can map them to the right status
		return nil, err
	}

	return &Inspection{
		Size:   int64(len(plaintext)),
		SHA256: crypto.Sha256Hex(plaintext),
		Format: format,
	}, nil
}
