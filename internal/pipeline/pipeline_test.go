package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"geopkg-maker/internal/config"
	"geopkg-maker/internal/domain"
	"geopkg-maker/internal/feature"
	"geopkg-maker/internal/geopkg"
)

type mockUploader struct {
	UploadFn func(ctx context.Context, localPath, key string) error
	keys     []string
}

func (m *mockUploader) Upload(ctx context.Context, localPath, key string) error {
	m.keys = append(m.keys, key)
	if m.UploadFn != nil {
		return m.UploadFn(ctx, localPath, key)
	}
	return nil
}

func (m *mockUploader) Bucket() string { return "bucket" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const msclBody = `MSCL-S Core Logger Export
%NAME%,GSQ,test core,2001-02-03,2001-02-05,500000,6900000,120.5,15.25,152.5,-27.25,42

DEPTH,DIAMETER,P-WAVE AMP.,P-WAVE VEL.,DENSITY,MAG. SUS,IMPEDANCE,N. GAMMA,RESISTIVITY
0.10,63,1.2,1500,2.1,0.003,3150,12,55
0.20,63,1.3,1520,2.2,0.004,3344,13,57
`

func writeFixtures(t *testing.T, names ...string) (dataDir string) {
	t.Helper()
	dataDir = t.TempDir()
	for _, name := range names {
		body := strings.ReplaceAll(msclBody, "%NAME%", strings.TrimSuffix(name, ".csv"))
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, name), []byte(body), 0o644))
	}
	return dataDir
}

func testConfig(t *testing.T, dataDir string) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:       dataDir,
		FeaturesCSV:   filepath.Join(t.TempDir(), "features.csv"),
		Provider:      config.ProviderS3,
		BucketName:    "bucket",
		BucketRegion:  "ap-southeast-2",
		BucketFolder:  "test",
		BucketBaseURL: "https://bucket.s3.ap-southeast-2.amazonaws.com/test/",
		LogLevel:      "error",
	}
}

func TestPipeline_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("full_run", func(t *testing.T) {
		dataDir := writeFixtures(t, "bh1.csv", "bh2.csv")
		cfg := testConfig(t, dataDir)
		up := &mockUploader{}
		out := filepath.Join(t.TempDir(), "mscl.gpkg")

		summary, err := New(Deps{Cfg: cfg, Logger: testLogger(), Uploader: up}).
			Run(ctx, Options{OutputPath: out})
		require.NoError(t, err)

		assert.Equal(t, 2, summary.Boreholes)
		assert.Empty(t, summary.SkippedFiles)
		assert.Equal(t, 2, summary.UploadsOK)
		assert.NoError(t, summary.UploadErrs)
		assert.ElementsMatch(t, []string{"test/bh1.zip", "test/bh2.zip"}, up.keys)

		// One archive per feature table row, next to its source.
		require.Len(t, summary.Archives, 2)
		assert.FileExists(t, filepath.Join(dataDir, "bh1.zip"))
		assert.FileExists(t, filepath.Join(dataDir, "bh2.zip"))

		// Intermediate feature table persisted.
		assert.FileExists(t, cfg.FeaturesCSV)

		// The container exists and passes the compatibility checks.
		db, err := geopkg.Open(out)
		require.NoError(t, err)
		defer db.Close()
		require.NoError(t, geopkg.Validate(ctx, db))

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM boreholes").Scan(&count))
		assert.Equal(t, 2, count)
	})

	t.Run("skip_upload", func(t *testing.T) {
		dataDir := writeFixtures(t, "bh1.csv")
		cfg := testConfig(t, dataDir)
		out := filepath.Join(t.TempDir(), "mscl.gpkg")

		summary, err := New(Deps{Cfg: cfg, Logger: testLogger()}).
			Run(ctx, Options{OutputPath: out, SkipUpload: true})
		require.NoError(t, err)
		assert.Equal(t, 0, summary.UploadsOK)
		assert.FileExists(t, out)
	})

	t.Run("upload_failure_does_not_block_others", func(t *testing.T) {
		dataDir := writeFixtures(t, "bh1.csv", "bh2.csv", "bh3.csv")
		cfg := testConfig(t, dataDir)
		up := &mockUploader{
			UploadFn: func(_ context.Context, _ string, key string) error {
				if key == "test/bh2.zip" {
					return errors.New("permission denied")
				}
				return nil
			},
		}
		out := filepath.Join(t.TempDir(), "mscl.gpkg")

		summary, err := New(Deps{Cfg: cfg, Logger: testLogger(), Uploader: up}).
			Run(ctx, Options{OutputPath: out})
		require.NoError(t, err)

		assert.Equal(t, 2, summary.UploadsOK)
		failures := multierr.Errors(summary.UploadErrs)
		require.Len(t, failures, 1)
		assert.Contains(t, failures[0].Error(), "permission denied")
	})

	t.Run("existing_output_requires_force", func(t *testing.T) {
		dataDir := writeFixtures(t, "bh1.csv")
		cfg := testConfig(t, dataDir)
		out := filepath.Join(t.TempDir(), "mscl.gpkg")
		require.NoError(t, os.WriteFile(out, []byte("old"), 0o644))

		_, err := New(Deps{Cfg: cfg, Logger: testLogger()}).
			Run(ctx, Options{OutputPath: out, SkipUpload: true})
		var conflict *domain.ConflictError
		require.ErrorAs(t, err, &conflict)

		_, err = New(Deps{Cfg: cfg, Logger: testLogger()}).
			Run(ctx, Options{OutputPath: out, SkipUpload: true, Force: true})
		require.NoError(t, err)
	})

	t.Run("output_must_be_gpkg", func(t *testing.T) {
		dataDir := writeFixtures(t, "bh1.csv")
		cfg := testConfig(t, dataDir)

		_, err := New(Deps{Cfg: cfg, Logger: testLogger()}).
			Run(ctx, Options{OutputPath: filepath.Join(t.TempDir(), "mscl.sqlite"), SkipUpload: true})
		var validation *domain.ValidationError
		require.ErrorAs(t, err, &validation)
	})

	t.Run("missing_uploader_without_skip", func(t *testing.T) {
		dataDir := writeFixtures(t, "bh1.csv")
		cfg := testConfig(t, dataDir)

		_, err := New(Deps{Cfg: cfg, Logger: testLogger()}).
			Run(ctx, Options{OutputPath: filepath.Join(t.TempDir(), "mscl.gpkg")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--skip-upload")
	})

	t.Run("rerun_produces_identical_feature_table", func(t *testing.T) {
		dataDir := writeFixtures(t, "bh1.csv", "bh2.csv")
		cfg := testConfig(t, dataDir)
		p := New(Deps{Cfg: cfg, Logger: testLogger()})

		outDir := t.TempDir()
		_, err := p.Run(ctx, Options{OutputPath: filepath.Join(outDir, "a.gpkg"), SkipUpload: true})
		require.NoError(t, err)
		first, err := os.ReadFile(cfg.FeaturesCSV)
		require.NoError(t, err)

		_, err = p.Run(ctx, Options{OutputPath: filepath.Join(outDir, "b.gpkg"), SkipUpload: true})
		require.NoError(t, err)
		second, err := os.ReadFile(cfg.FeaturesCSV)
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})

	t.Run("custom_bucket_url_keys_match_upload", func(t *testing.T) {
		// The base URL override has a different path than the default bucket
		// folder; uploads must go to the key the recorded URL points at.
		dataDir := writeFixtures(t, "bh1.csv")
		cfg := testConfig(t, dataDir)
		cfg.BucketBaseURL = "https://cdn.example.org/files/"
		up := &mockUploader{}

		summary, err := New(Deps{Cfg: cfg, Logger: testLogger(), Uploader: up}).
			Run(ctx, Options{OutputPath: filepath.Join(t.TempDir(), "mscl.gpkg")})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.UploadsOK)
		assert.Equal(t, []string{"files/bh1.zip"}, up.keys)
	})

	t.Run("url_key_path_mismatch_rejected", func(t *testing.T) {
		// Equal file names are not enough: a URL under files/ with an upload
		// key under test/ is a dangling reference and must abort.
		row := feature.Row{
			BoreholeRecord: domain.BoreholeRecord{Identifier: 1},
			ZipKey:         "test/bh1.zip",
			DatasetURL:     "https://cdn.example.org/files/bh1.zip",
		}
		err := verifyArchiveKey("/data/bh1.zip", row)
		var validation *domain.ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Contains(t, err.Error(), "test/bh1.zip")

		row.ZipKey = "files/bh1.zip"
		require.NoError(t, verifyArchiveKey("/data/bh1.zip", row))
	})

	t.Run("malformed_file_reported_not_fatal", func(t *testing.T) {
		dataDir := writeFixtures(t, "bh1.csv")
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, "broken.csv"),
			[]byte("not,a\nreal,export\n"), 0o644))
		cfg := testConfig(t, dataDir)

		summary, err := New(Deps{Cfg: cfg, Logger: testLogger()}).
			Run(ctx, Options{OutputPath: filepath.Join(t.TempDir(), "mscl.gpkg"), SkipUpload: true})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Boreholes)
		require.Len(t, summary.SkippedFiles, 1)
		assert.Contains(t, summary.SkippedFiles[0].Path, "broken.csv")
	})
}
