package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// User metadata keys attached to every stored blob. MinIO returns
// them with canonical header casing, so lookups are case-insensitive.
const (
	metaEncrypted           = "Encrypted"
	metaEncryptionFormat    = "Encryption-Format"
	metaOriginalFileName    = "Original-Name"
	metaOriginalContentType = "Original-Content-Type"
	metaContentSHA256       = "Content-Sha256"
)

// MinIOStorage stores encrypted mod blobs in a MinIO bucket
type MinIOStorage struct {
	client *minio.Client
	bucket string
}

var _ Storage = (*MinIOStorage)(nil)

// NewMinIOStorage creates the MinIO client and makes sure the bucket
// exists
func NewMinIOStorage(cfg config.MinIOConfig) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL, // false for local, true for production
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	// Create the bucket on first run. The bucket stays private:
	// blobs are ciphertext and every download goes through the API.
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinIOStorage{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Upload stores a blob together with its metadata.
// key: path inside the bucket (e.g. scope/mods/mod_xxx/versions/ver_yyy.zip)
// data: the encrypted file content
func (s *MinIOStorage) Upload(ctx context.Context, key string, data []byte, contentType string, metadata *ObjectMetadata) error {
	reader := bytes.NewReader(data)

	opts := minio.PutObjectOptions{
		ContentType: contentType,
	}
	if metadata != nil {
		opts.UserMetadata = encodeMetadata(metadata)
	}

	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		key,
		reader,
		int64(len(data)),
		opts,
	)
	if err != nil {
		return fmt.Errorf("failed to upload to minio: %w", err)
	}

	return nil
}

// Download returns the blob bytes and the metadata stored with them
func (s *MinIOStorage) Download(ctx context.Context, key string) ([]byte, *ObjectMetadata, error) {
	// Stat first: it carries the user metadata and turns a missing
	// key into ErrBlobNotFound before any data is streamed
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("failed to stat object: %w", err)
	}

	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read object: %w", err)
	}

	return data, decodeMetadata(info.UserMetadata), nil
}

// Delete removes a single blob. Deleting a missing key is not an
// error.
func (s *MinIOStorage) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// DeleteByPrefix removes every blob under a prefix. Used by cascade
// deletes: removing a mod drops its versions, variants and icons in
// one call.
func (s *MinIOStorage) DeleteByPrefix(ctx context.Context, prefix string) error {
	objectsCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var keys []string
	for object := range objectsCh {
		if object.Err != nil {
			return fmt.Errorf("failed to list objects: %w", object.Err)
		}
		keys = append(keys, object.Key)
	}

	if len(keys) > 0 {
		return s.RemoveObjects(ctx, keys)
	}

	return nil
}

// RemoveObjects deletes many blobs at once (orphan sweep cleanup)
func (s *MinIOStorage) RemoveObjects(ctx context.Context, keys []string) error {
	objectsCh := make(chan minio.ObjectInfo, len(keys))

	// Send object keys to channel
	go func() {
		defer close(objectsCh)
		for _, key := range keys {
			objectsCh <- minio.ObjectInfo{Key: key}
		}
	}()

	// Remove objects
	errorCh := s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{})

	// Check for errors
	for rmErr := range errorCh {
		if rmErr.Err != nil {
			return fmt.Errorf("failed to remove %s: %w", rmErr.ObjectName, rmErr.Err)
		}
	}

	return nil
}

// List returns every object under a prefix. The orphan sweep calls
// this with a bare scope prefix to walk all blobs.
func (s *MinIOStorage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	objectsCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var objects []ObjectInfo
	for object := range objectsCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
		})
	}

	return objects, nil
}

// HealthCheck verifies the bucket is reachable
func (s *MinIOStorage) HealthCheck(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("minio health check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

func encodeMetadata(m *ObjectMetadata) map[string]string {
	return map[string]string{
		metaEncrypted:           strconv.FormatBool(m.Encrypted),
		metaEncryptionFormat:    m.EncryptionFormat,
		metaOriginalFileName:    m.OriginalFileName,
		metaOriginalContentType: m.OriginalContentType,
		metaContentSHA256:       m.SHA256,
	}
}

func decodeMetadata(user map[string]string) *ObjectMetadata {
	m := &ObjectMetadata{}
	for key, value := range user {
		switch {
		case strings.EqualFold(key, metaEncrypted):
			m.Encrypted = value == "true"
		case strings.EqualFold(key, metaEncryptionFormat):
			m.EncryptionFormat = value
		case strings.EqualFold(key, metaOriginalFileName):
			m.OriginalFileName = value
		case strings.EqualFold(key, metaOriginalContentType):
			m.OriginalContentType = value
		case strings.EqualFold(key, metaContentSHA256):
			m.SHA256 = value
		}
	}
	return m
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == 404
}
