// Package archive provides S3-compatible upload of the queue database
// after a fully successful sync pass. When S3 is not configured (empty
// bucket), the NoopUploader is used and all uploads are skipped, keeping
// the station in local-only mode.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/weighbridge/internal/config"
)

// Uploader uploads queue archives before pruning.
type Uploader interface {
	// Upload uploads the queue database file for the given batch.
	Upload(ctx context.Context, batchID string, filePath string) error
}

// s3Client defines the minimal minio.Client operations used by
// S3Uploader. This interface enables testing with mock implementations.
type s3Client interface {
	FPutObject(ctx context.Context, bucket, objectName, filePath string, opts interface{}) error
}

// minioClientWrapper wraps *minio.Client to satisfy the s3Client
// interface; minio.Client methods take concrete option types.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) FPutObject(ctx context.Context, bucket, objectName, filePath string, opts interface{}) error {
	putOpts := minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	}
	_, err := w.client.FPutObject(ctx, bucket, objectName, filePath, putOpts)
	return err
}

// S3Uploader uploads queue archives to S3-compatible storage.
type S3Uploader struct {
	client s3Client
	bucket string
}

// Upload uploads the queue database at filePath under the batch id.
func (u *S3Uploader) Upload(ctx context.Context, batchID string, filePath string) error {
	if err := u.client.FPutObject(ctx, u.bucket, objectKey(batchID), filePath, nil); err != nil {
		return fmt.Errorf("upload archive to S3: %w", err)
	}
	return nil
}

// NoopUploader is used when S3 storage is not configured.
type NoopUploader struct{}

// Upload is a no-op when S3 is not configured.
func (u *NoopUploader) Upload(ctx context.Context, batchID string, filePath string) error {
	return nil
}

// NewUploader creates the appropriate Uploader based on configuration.
// Returns NoopUploader when bucket is empty, S3Uploader otherwise.
func NewUploader(cfg config.ArchiveConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return &NoopUploader{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Uploader{
		client: &minioClientWrapper{client: client},
		bucket: cfg.Bucket,
	}, nil
}

// objectKey returns the S3 object key for a batch archive.
// Convention: archives/{date}/{batch_id}.db
func objectKey(batchID string) string {
	return "archives/" + time.Now().UTC().Format("2006-01-02") + "/" + batchID + ".db"
}
