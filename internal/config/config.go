// Package config handles application configuration and environment loading.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Store provider names accepted in STORE_PROVIDER.
const (
	ProviderS3    = "s3"
	ProviderGCS   = "gcs"
	ProviderAzure = "azure"
)

// Config holds the configuration for the borehole publishing pipeline.
type Config struct {
	// DataDir is the directory scanned for MSCL CSV exports.
	DataDir string

	// FeaturesCSV is the path of the intermediate feature table file.
	FeaturesCSV string

	// Object store settings. BucketBaseURL is the public prefix under which
	// uploaded archives are reachable; derived from bucket/region/folder
	// unless BUCKET_BASE_URL overrides it.
	Provider      string
	BucketName    string
	BucketRegion  string
	BucketFolder  string
	BucketBaseURL string

	// S3-compatible credentials. Nil when the default AWS chain should be
	// used.
	S3KeyID    *string
	S3Secret   *string
	S3Endpoint *string

	// GCS / Azure credentials.
	GCSKeyFile       string
	AzureAccountName string
	AzureAccountKey  string

	// ColumnMapFile optionally points at a YAML file overriding the built-in
	// CSV column alias map.
	ColumnMapFile string

	LogLevel string // log level: debug, info, warn, error (default "info")

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HasS3Credentials returns true when static S3 credentials are configured.
func (c *Config) HasS3Credentials() bool {
	return c.S3KeyID != nil && c.S3Secret != nil
}

// LoadFromEnv loads configuration from environment variables. Credential
// variables are optional; local-only runs (--skip-upload) need none of them.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		DataDir:          os.Getenv("DATA_DIR"),
		FeaturesCSV:      os.Getenv("FEATURES_CSV"),
		Provider:         strings.ToLower(os.Getenv("STORE_PROVIDER")),
		BucketName:       os.Getenv("BUCKET_NAME"),
		BucketRegion:     os.Getenv("BUCKET_REGION"),
		BucketFolder:     os.Getenv("BUCKET_FOLDER"),
		BucketBaseURL:    os.Getenv("BUCKET_BASE_URL"),
		GCSKeyFile:       os.Getenv("GCS_KEY_FILE"),
		AzureAccountName: os.Getenv("AZURE_ACCOUNT_NAME"),
		AzureAccountKey:  os.Getenv("AZURE_ACCOUNT_KEY"),
		ColumnMapFile:    os.Getenv("COLUMN_MAP_FILE"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
	}

	// S3 fields are optional, only set if present.
	if v := os.Getenv("KEY_ID"); v != "" {
		cfg.S3KeyID = &v
	}
	if v := os.Getenv("SECRET"); v != "" {
		cfg.S3Secret = &v
	}
	if v := os.Getenv("ENDPOINT"); v != "" {
		cfg.S3Endpoint = &v
	}

	// Defaults
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.FeaturesCSV == "" {
		cfg.FeaturesCSV = "features.csv"
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderS3
	}
	if cfg.BucketRegion == "" {
		cfg.BucketRegion = "ap-southeast-2"
	}
	if cfg.BucketFolder == "" {
		cfg.BucketFolder = "test"
	}

	switch cfg.Provider {
	case ProviderS3, ProviderGCS, ProviderAzure:
	default:
		return nil, fmt.Errorf("unsupported STORE_PROVIDER %q: must be one of s3, gcs, azure", cfg.Provider)
	}

	if cfg.BucketName == "" {
		cfg.Warnings = append(cfg.Warnings, "BUCKET_NAME not set; uploads will fail unless --skip-upload is used")
	}

	// The public URL convention the map server features point at. Only the
	// S3 virtual-hosted style is derivable; other providers must set
	// BUCKET_BASE_URL explicitly.
	if cfg.BucketBaseURL == "" {
		if cfg.Provider == ProviderS3 && cfg.BucketName != "" {
			cfg.BucketBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s/",
				cfg.BucketName, cfg.BucketRegion, cfg.BucketFolder)
		} else if cfg.BucketName != "" {
			return nil, fmt.Errorf("BUCKET_BASE_URL must be set when STORE_PROVIDER is %q", cfg.Provider)
		}
	}
	if cfg.BucketBaseURL != "" && !strings.HasSuffix(cfg.BucketBaseURL, "/") {
		cfg.BucketBaseURL += "/"
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}
