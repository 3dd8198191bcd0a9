// Package storage ships retained security data to S3-compatible object
// storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/moneymapper/authcore/internal/config"
	"github.com/moneymapper/authcore/pkg/logger"
)

var ErrArchiveDisabled = errors.New("archive endpoint not configured")

// ArchiveClient writes audit archive objects into a single bucket.
type ArchiveClient struct {
	client *minio.Client
	bucket string
}

func NewArchiveClient(cfg config.MinIOConfig) (*ArchiveClient, error) {
	if cfg.Endpoint == "" {
		return nil, ErrArchiveDisabled
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: "us-east-1",
	})
	if err != nil {
		return nil, err
	}
	return &ArchiveClient{client: client, bucket: cfg.Bucket}, nil
}

func (a *ArchiveClient) Bucket() string {
	return a.bucket
}

func (a *ArchiveClient) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	details := map[string]interface{}{
		"object_name":  objectName,
		"size":         size,
		"content_type": contentType,
		"bucket":       a.bucket,
	}
	_, err := a.client.PutObject(ctx, a.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		logger.Error("archive_upload_failed", err, details)
		return err
	}
	logger.Info("archive_upload_success", details)
	return nil
}

// EnsureBucket creates the archive bucket on first start.
func (a *ArchiveClient) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: "us-east-1"}); err != nil {
		return fmt.Errorf("failed creating bucket %s: %w", a.bucket, err)
	}
	logger.Info("archive_bucket_created", map[string]interface{}{"bucket": a.bucket})
	return nil
}
