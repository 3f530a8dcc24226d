package upload

import (
	"context"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"geopkg-maker/internal/config"
)

// Compile-time check: AzureUploader implements Uploader.
var _ Uploader = (*AzureUploader)(nil)

// AzureUploader uploads archives to an Azure Blob Storage container.
// Only account-key authentication is supported.
type AzureUploader struct {
	client    *azblob.Client
	container string
}

// NewAzureUploader creates an uploader with shared-key credentials. The
// configured bucket name is used as the blob container.
func NewAzureUploader(cfg *config.Config) (*AzureUploader, error) {
	if cfg.AzureAccountName == "" || cfg.AzureAccountKey == "" {
		return nil, fmt.Errorf("Azure credentials are not configured (set AZURE_ACCOUNT_NAME and AZURE_ACCOUNT_KEY)")
	}

	sharedKeyCred, err := azblob.NewSharedKeyCredential(cfg.AzureAccountName, cfg.AzureAccountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AzureAccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, sharedKeyCred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}

	return &AzureUploader{client: client, container: cfg.BucketName}, nil
}

// Upload writes the local file to the container under key.
func (u *AzureUploader) Upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %q: %w", localPath, err)
	}
	defer f.Close()

	if _, err := u.client.UploadFile(ctx, u.container, key, f, nil); err != nil {
		return fmt.Errorf("upload %s/%s: %w", u.container, key, err)
	}
	return nil
}

// Bucket returns the configured container name.
func (u *AzureUploader) Bucket() string {
	return u.container
}
