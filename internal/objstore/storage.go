// Package objstore wraps MinIO/S3 interactions for uploaded originals and
// built archives.
package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rahulmehra/exampack/internal/config"
)

// Storage holds the client plus the two buckets the service uses.
type Storage struct {
	client        *minio.Client
	uploadBucket  string
	archiveBucket string
	region        string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client:        client,
		uploadBucket:  cfg.UploadBucket,
		archiveBucket: cfg.ArchiveBucket,
		region:        cfg.S3Region,
	}, nil
}

// EnsureBuckets makes sure the upload/archive buckets exist before use.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.uploadBucket, s.archiveBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// UploadOriginal stores one user-supplied document under the bundle's key
// prefix until the build worker consumes it.
func (s *Storage) UploadOriginal(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.uploadBucket, objectKey, reader, size, opts); err != nil {
		return fmt.Errorf("upload original: %w", err)
	}
	return nil
}

// RemoveOriginal discards a parked original, used when the request that
// uploaded it is rejected before a build is queued.
func (s *Storage) RemoveOriginal(ctx context.Context, objectKey string) error {
	if err := s.client.RemoveObject(ctx, s.uploadBucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove original: %w", err)
	}
	return nil
}

// DownloadOriginal fetches one uploaded document's bytes.
func (s *Storage) DownloadOriginal(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.uploadBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get original: %w", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read original: %w", err)
	}
	return buf, nil
}

// UploadArchive stores a built zip.
func (s *Storage) UploadArchive(ctx context.Context, objectKey string, data []byte) error {
	reader := bytes.NewReader(data)
	opts := minio.PutObjectOptions{ContentType: "application/zip"}
	if _, err := s.client.PutObject(ctx, s.archiveBucket, objectKey, reader, int64(len(data)), opts); err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}
	return nil
}

// DownloadArchive fetches a built zip for streaming to the user.
func (s *Storage) DownloadArchive(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.archiveBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get archive: %w", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return buf, nil
}

// PresignArchiveURL returns a signed GET URL for a built archive.
func (s *Storage) PresignArchiveURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.archiveBucket, objectKey, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign archive: %w", err)
	}
	return u.String(), nil
}
