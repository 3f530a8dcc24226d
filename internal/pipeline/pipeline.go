// Package pipeline wires the publishing stages (ingest, feature table,
// GeoPackage write, archive upload) into one sequential run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"geopkg-maker/internal/archive"
	"geopkg-maker/internal/config"
	"geopkg-maker/internal/domain"
	"geopkg-maker/internal/feature"
	"geopkg-maker/internal/geopkg"
	"geopkg-maker/internal/ingest"
	"geopkg-maker/internal/upload"
)

// Deps holds the external dependencies that main() must provide: config,
// logger, and the object-store client (nil when uploads are skipped).
type Deps struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Uploader upload.Uploader
}

// Options controls one pipeline run.
type Options struct {
	// OutputPath is the GeoPackage file to produce. Must end in ".gpkg".
	OutputPath string

	// Force overwrites an existing output file.
	Force bool

	// SkipUpload produces local artifacts only.
	SkipUpload bool
}

// Summary reports what one run did.
type Summary struct {
	Boreholes    int
	SkippedFiles []ingest.Skip
	Archives     []string
	UploadsOK    int
	UploadErrs   error // aggregated per-archive upload failures, nil when clean
}

// Pipeline executes the publishing stages sequentially.
type Pipeline struct {
	deps Deps
}

// New creates a Pipeline.
func New(deps Deps) *Pipeline {
	return &Pipeline{deps: deps}
}

// Run executes one full pipeline run. Parse errors skip the offending file,
// identifier collisions and container errors abort, and upload failures are
// collected per archive so one bad transfer doesn't block the rest.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Summary, error) {
	cfg, logger := p.deps.Cfg, p.deps.Logger

	if err := checkOutputPath(opts.OutputPath, opts.Force); err != nil {
		return nil, err
	}

	logger = logger.With("run_id", uuid.New().String())
	logger.Info("run started", "data_dir", cfg.DataDir, "output", opts.OutputPath)

	colMap, err := p.columnMap()
	if err != nil {
		return nil, err
	}

	// Stage 1: ingest.
	ing := ingest.NewIngestor(cfg.DataDir, colMap, logger)
	res, err := ing.Ingest(ctx)
	if err != nil {
		return nil, err
	}

	// Stage 2: feature table. Collisions abort here, before any container
	// file exists.
	builder := feature.NewBuilder(cfg.BucketBaseURL, cfg.BucketFolder, logger)
	table, err := builder.Build(res.Records)
	if err != nil {
		return nil, err
	}
	if err := table.WriteCSV(cfg.FeaturesCSV); err != nil {
		return nil, err
	}
	logger.Info("feature table persisted", "path", cfg.FeaturesCSV)

	// Stage 3: container.
	if err := p.writeContainer(ctx, opts, table); err != nil {
		return nil, err
	}

	// Stage 4: archives and uploads.
	summary := &Summary{
		Boreholes:    len(table.Rows),
		SkippedFiles: res.Skipped,
	}
	if err := p.publishArchives(ctx, opts, table, summary); err != nil {
		return nil, err
	}

	logger.Info("run finished",
		"boreholes", summary.Boreholes,
		"skipped", len(summary.SkippedFiles),
		"archives", len(summary.Archives),
		"uploads_ok", summary.UploadsOK,
		"upload_failures", len(multierr.Errors(summary.UploadErrs)))
	return summary, nil
}

func (p *Pipeline) columnMap() (ingest.ColumnMap, error) {
	if p.deps.Cfg.ColumnMapFile == "" {
		return ingest.DefaultColumnMap(), nil
	}
	return ingest.LoadColumnMap(p.deps.Cfg.ColumnMapFile)
}

// writeContainer creates the GeoPackage, writes both layers, and validates
// the compatibility contracts. Any failure removes the partial file so an
// incompatible container is never left behind for the map server to pick up.
func (p *Pipeline) writeContainer(ctx context.Context, opts Options, table *feature.Table) error {
	if opts.Force {
		if err := os.Remove(opts.OutputPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %q: %w", opts.OutputPath, err)
		}
	}

	db, err := geopkg.Create(opts.OutputPath)
	if err != nil {
		return err
	}

	writer := geopkg.NewWriter(db, p.deps.Logger)
	if err := writer.Write(ctx, table); err != nil {
		_ = db.Close()
		_ = os.Remove(opts.OutputPath)
		return err
	}

	if err := geopkg.Validate(ctx, db); err != nil {
		_ = db.Close()
		_ = os.Remove(opts.OutputPath)
		return fmt.Errorf("container failed validation: %w", err)
	}

	if err := db.Close(); err != nil {
		return fmt.Errorf("close container: %w", err)
	}
	p.deps.Logger.Info("geopackage written", "path", opts.OutputPath)
	return nil
}

// publishArchives zips each borehole's source file and uploads it under the
// key recorded in the feature table. Before each upload the archive name is
// checked against the datasetURL so the container never ends up pointing at
// a key that was not published.
func (p *Pipeline) publishArchives(ctx context.Context, opts Options, table *feature.Table, summary *Summary) error {
	logger := p.deps.Logger

	for _, row := range table.Rows {
		zipPath, err := archive.Zip(row.SourcePath)
		if err != nil {
			return fmt.Errorf("archive borehole %d: %w", row.Identifier, err)
		}
		summary.Archives = append(summary.Archives, zipPath)
		logger.Info("archive written", "path", zipPath)

		if err := verifyArchiveKey(zipPath, row); err != nil {
			return err
		}

		if opts.SkipUpload {
			continue
		}
		if p.deps.Uploader == nil {
			return domain.ErrValidation("uploader not configured; use --skip-upload for local-only runs")
		}

		logger.Info("uploading archive", "bucket", p.deps.Uploader.Bucket(), "key", row.ZipKey)
		if err := upload.UploadWithRetry(ctx, p.deps.Uploader, zipPath, row.ZipKey); err != nil {
			logger.Error("upload failed", "key", row.ZipKey, "error", err)
			summary.UploadErrs = multierr.Append(summary.UploadErrs, err)
			continue
		}
		summary.UploadsOK++
	}
	return nil
}

// verifyArchiveKey confirms the produced archive, the object-store key, and
// the datasetURL recorded in the container all name the same object. For an
// absolute URL the whole path must equal the upload key, not just the file
// name, or the container would point at a key nothing was uploaded to.
func verifyArchiveKey(zipPath string, row feature.Row) error {
	base := filepath.Base(zipPath)

	u, err := url.Parse(row.DatasetURL)
	if err != nil {
		return domain.ErrValidation(
			"borehole %d: unparsable datasetURL %q", row.Identifier, row.DatasetURL)
	}
	if got := path.Base(u.Path); got != base {
		return domain.ErrValidation(
			"borehole %d: datasetURL names %q but archive is %q", row.Identifier, got, base)
	}

	if u.IsAbs() {
		if got := strings.TrimPrefix(u.Path, "/"); got != row.ZipKey {
			return domain.ErrValidation(
				"borehole %d: datasetURL path %q does not match archive key %q", row.Identifier, got, row.ZipKey)
		}
		return nil
	}
	if row.ZipKey != base && !strings.HasSuffix(row.ZipKey, "/"+base) {
		return domain.ErrValidation(
			"borehole %d: archive key %q does not end in %q", row.Identifier, row.ZipKey, base)
	}
	return nil
}

func checkOutputPath(outputPath string, force bool) error {
	if !strings.HasSuffix(outputPath, ".gpkg") {
		return domain.ErrValidation("output filename must end in .gpkg: %q", outputPath)
	}
	if _, err := os.Stat(outputPath); err == nil && !force {
		return domain.ErrConflict("output file %q already exists (use --force to overwrite)", outputPath)
	}
	return nil
}
