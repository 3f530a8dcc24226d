// Package upload transfers dataset archives to a cloud object store. Three
// providers are supported behind one interface: S3-compatible stores, Google
// Cloud Storage, and Azure Blob Storage.
package upload

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sethvargo/go-retry"

	"geopkg-maker/internal/config"
)

// Uploader transfers one local file to the store under the given key.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) error
	Bucket() string
}

// Compile-time check: S3Uploader implements Uploader.
var _ Uploader = (*S3Uploader)(nil)

// Retry policy for transient transfer failures.
const (
	retryAttempts = 3 // retries after the first attempt
	retryBase     = 500 * time.Millisecond
)

// NewUploader creates the Uploader for the configured provider.
func NewUploader(ctx context.Context, cfg *config.Config) (Uploader, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("BUCKET_NAME is not configured")
	}
	switch cfg.Provider {
	case config.ProviderS3:
		return NewS3Uploader(ctx, cfg)
	case config.ProviderGCS:
		return NewGCSUploader(ctx, cfg)
	case config.ProviderAzure:
		return NewAzureUploader(cfg)
	default:
		return nil, fmt.Errorf("unsupported store provider %q", cfg.Provider)
	}
}

// S3Uploader uploads archives to an S3-compatible object store using the AWS
// SDK v2, with optional custom endpoint and path-style addressing.
type S3Uploader struct {
	client *s3.Client
	bucket string
}

// NewS3Uploader creates an uploader with static credentials from config, or
// the default AWS credential chain (env, shared config, instance role) when
// KEY_ID/SECRET are not set.
func NewS3Uploader(ctx context.Context, cfg *config.Config) (*S3Uploader, error) {
	endpointOpts := func(o *s3.Options) {
		if cfg.S3Endpoint != nil {
			// Non-AWS endpoints generally require path-style URLs.
			o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s", *cfg.S3Endpoint))
			o.UsePathStyle = true
		}
	}

	if cfg.HasS3Credentials() {
		opts := s3.Options{
			Region: cfg.BucketRegion,
			Credentials: credentials.NewStaticCredentialsProvider(
				*cfg.S3KeyID, *cfg.S3Secret, "",
			),
		}
		endpointOpts(&opts)
		return &S3Uploader{client: s3.New(opts), bucket: cfg.BucketName}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.BucketRegion))
	if err != nil {
		return nil, fmt.Errorf("load default AWS config: %w", err)
	}
	return &S3Uploader{
		client: s3.NewFromConfig(awsCfg, endpointOpts),
		bucket: cfg.BucketName,
	}, nil
}

// Upload puts the local file into the bucket under key.
func (u *S3Uploader) Upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %q: %w", localPath, err)
	}
	defer f.Close()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", u.bucket, key, err)
	}
	return nil
}

// Bucket returns the configured bucket name.
func (u *S3Uploader) Bucket() string {
	return u.bucket
}

// UploadWithRetry uploads with bounded exponential backoff. Every transfer
// failure is treated as retryable: the store cannot reliably distinguish
// transient network errors from persistent ones, and the attempt budget is
// small.
func UploadWithRetry(ctx context.Context, u Uploader, localPath, key string) error {
	backoff := retry.WithMaxRetries(retryAttempts, retry.NewExponential(retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := u.Upload(ctx, localPath, key); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
