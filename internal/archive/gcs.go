package archive

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// GCSArchiver writes payloads to a Google Cloud Storage bucket.
type GCSArchiver struct {
	client     *storage.Client
	bucketName string
	logger     *zap.Logger
}

// NewGCS initializes a GCS client and verifies bucket access so a bad
// configuration fails at startup, not mid-crawl. Authentication uses
// Application Default Credentials.
func NewGCS(ctx context.Context, bucketName string, logger *zap.Logger) (*GCSArchiver, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	if _, err := client.Bucket(bucketName).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close gcs client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check gcs bucket %q: %w", bucketName, err)
	}

	return &GCSArchiver{
		client:     client,
		bucketName: bucketName,
		logger:     logger,
	}, nil
}

// Save uploads the payload to the bucket under objectName.
func (a *GCSArchiver) Save(ctx context.Context, objectName string, data []byte) error {
	wc := a.client.Bucket(a.bucketName).Object(objectName).NewWriter(ctx)
	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			a.logger.Warn("failed to close gcs writer after write failure", zap.Error(closeErr))
		}
		return fmt.Errorf("write gcs object %q: %w", objectName, err)
	}
	// Close finalizes the upload and flushes buffered data.
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close gcs writer for %q: %w", objectName, err)
	}
	return nil
}

// Close releases the underlying client.
func (a *GCSArchiver) Close() error {
	if err := a.client.Close(); err != nil {
		return fmt.Errorf("close gcs client: %w", err)
	}
	return nil
}
