// Package crypto implements the format-tagged encryption scheme used
// for mod files at rest. Every encrypted blob starts with a single
// format tag byte; the remaining layout depends on the tag.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Format identifies the on-wire layout of an encrypted blob.
// The first byte of every blob is its format tag.
type Format byte

const (
	// FormatLegacyToken is the retired token-derived-key scheme.
	// Blobs carrying this tag are recognized but never decrypted.
	FormatLegacyToken Format = 3

	// FormatV4 layout: [tag][nonce:12][ciphertext+tag]
	// The nonce is 12 random bytes generated per encryption.
	FormatV4 Format = 4

	// FormatV5 layout: [tag][salt:16][ciphertext+tag]
	// The nonce is derived from the key and the stored salt via
	// HKDF-SHA256, so it never appears on the wire.
	FormatV5 Format = 5
)

func (f Format) String() string {
	switch f {
	case FormatLegacyToken:
		return "legacy-token"
	case FormatV4:
		return "v4"
	case FormatV5:
		return "v5"
	default:
		return fmt.Sprintf("unknown(%d)", byte(f))
	}
}

const (
	// KeySize is the AES-256 key length in bytes
	KeySize = 32

	nonceSize = 12
	saltSize  = 16
	gcmTag    = 16
)

// hkdfNonceInfo is the HKDF info parameter for v5 nonce derivation.
// Changing it invalidates every v5 blob ever written.
var hkdfNonceInfo = []byte("mod-storage.nonce.v5")

var (
	ErrKeyNotConfigured = errors.New("encryption key not configured")
	ErrLegacyFormat     = errors.New("legacy token-derived encryption is no longer supported")
	ErrUnknownFormat    = errors.New("unknown encryption format")
	ErrBlobTooShort     = errors.New("encrypted blob too short")
	ErrDecryptFailed    = errors.New("decryption failed")
)

// Engine encrypts and decrypts mod file blobs with AES-256-GCM.
// A single shared key serves both live formats; only the nonce
// handling differs between v4 and v5.
type Engine struct {
	key []byte
}

// NewEngine creates an engine from a hex-encoded 32-byte key. An
// empty string yields an unconfigured engine whose operations fail
// with ErrKeyNotConfigured, so a missing ENCRYPTION_KEY surfaces on
// first use instead of at startup.
func NewEngine(hexKey string) (*Engine, error) {
	if hexKey == "" {
		return &Engine{}, nil
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	return &Engine{key: key}, nil
}

// Configured reports whether a key has been loaded
func (e *Engine) Configured() bool {
	return len(e.key) == KeySize
}

// Encrypt seals plaintext under the requested format and returns the
// tagged blob. Only FormatV4 and FormatV5 are writable.
func (e *Engine) Encrypt(plaintext []byte, format Format) ([]byte, error) {
	if !e.Configured() {
		return nil, ErrKeyNotConfigured
	}

	gcm, err := e.newGCM()
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatV4:
		nonce := make([]byte, nonceSize)
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return nil, fmt.Errorf("failed to generate nonce: %w", err)
		}

		out := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+gcmTag)
		out[0] = byte(FormatV4)
		copy(out[1:], nonce)
		return gcm.Seal(out, nonce, plaintext, nil), nil

	case FormatV5:
		salt := make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", err)
		}
		nonce, err := e.deriveNonce(salt)
		if err != nil {
			return nil, err
		}

		out := make([]byte, 1+saltSize, 1+saltSize+len(plaintext)+gcmTag)
		out[0] = byte(FormatV5)
		copy(out[1:], salt)
		return gcm.Seal(out, nonce, plaintext, nil), nil

	default:
		return nil, fmt.Errorf("%w: cannot encrypt with tag %d", ErrUnknownFormat, byte(format))
	}
}

// Decrypt opens a tagged blob and returns the plaintext along with
// the format it was sealed under. Blobs with the legacy tag are
// rejected without any decryption attempt, as are unknown tags.
func (e *Engine) Decrypt(blob []byte) ([]byte, Format, error) {
	if !e.Configured() {
		return nil, 0, ErrKeyNotConfigured
	}
	if len(blob) < 1 {
		return nil, 0, ErrBlobTooShort
	}

	format := Format(blob[0])
	switch format {
	case FormatV4:
		if len(blob) < 1+nonceSize+gcmTag {
			return nil, format, fmt.Errorf("%w: v4 blob is %d bytes, minimum is %d", ErrBlobTooShort, len(blob), 1+nonceSize+gcmTag)
		}
		gcm, err := e.newGCM()
		if err != nil {
			return nil, format, err
		}
		plaintext, err := gcm.Open(nil, blob[1:1+nonceSize], blob[1+nonceSize:], nil)
		if err != nil {
			return nil, format, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
		}
		return plaintext, format, nil

	case FormatV5:
		if len(blob) < 1+saltSize+gcmTag {
			return nil, format, fmt.Errorf("%w: v5 blob is %d bytes, minimum is %d", ErrBlobTooShort, len(blob), 1+saltSize+gcmTag)
		}
		nonce, err := e.deriveNonce(blob[1 : 1+saltSize])
		if err != nil {
			return nil, format, err
		}
		gcm, err := e.newGCM()
		if err != nil {
			return nil, format, err
		}
		plaintext, err := gcm.Open(nil, nonce, blob[1+saltSize:], nil)
		if err != nil {
			return nil, format, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
		}
		return plaintext, format, nil

	case FormatLegacyToken:
		return nil, format, ErrLegacyFormat

	default:
		return nil, format, fmt.Errorf("%w: tag %d", ErrUnknownFormat, byte(format))
	}
}

func (e *Engine) newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// deriveNonce expands the key and a stored salt into a v5 nonce
func (e *Engine) deriveNonce(salt []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, e.key, salt, hkdfNonceInfo)
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to derive nonce: %w", err)
	}
	return nonce, nil
}

// Sha256Hex returns the lowercase hex SHA-256 digest of data
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
