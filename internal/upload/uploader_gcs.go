package upload

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"geopkg-maker/internal/config"
)

// Compile-time check: GCSUploader implements Uploader.
var _ Uploader = (*GCSUploader)(nil)

// GCSUploader uploads archives to a Google Cloud Storage bucket.
type GCSUploader struct {
	client *storage.Client
	bucket string
}

// NewGCSUploader creates an uploader authenticated with the configured
// service-account key file, or ambient credentials when none is set.
func NewGCSUploader(ctx context.Context, cfg *config.Config) (*GCSUploader, error) {
	var opts []option.ClientOption
	if cfg.GCSKeyFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCSKeyFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	return &GCSUploader{client: client, bucket: cfg.BucketName}, nil
}

// Upload writes the local file to the bucket under key.
func (u *GCSUploader) Upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %q: %w", localPath, err)
	}
	defer f.Close()

	w := u.client.Bucket(u.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/zip"

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", u.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize gs://%s/%s: %w", u.bucket, key, err)
	}
	return nil
}

// Bucket returns the configured GCS bucket name.
func (u *GCSUploader) Bucket() string {
	return u.bucket
}
