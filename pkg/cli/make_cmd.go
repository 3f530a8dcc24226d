package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"geopkg-maker/internal/config"
	"geopkg-maker/internal/pipeline"
	"geopkg-maker/internal/upload"
)

func newMakeCmd() *cobra.Command {
	var (
		dataDir     string
		bucketURL   string
		featuresCSV string
		skipUpload  bool
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "make <output.gpkg>",
		Short: "Run the full publishing pipeline",
		Long: "Parses the data directory, writes the feature table and GeoPackage, " +
			"zips each borehole dataset, and uploads the archives to the object store.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(func(cfg *config.Config) {
				if dataDir != "" {
					cfg.DataDir = dataDir
				}
				if bucketURL != "" {
					cfg.BucketBaseURL = bucketURL
				}
				if featuresCSV != "" {
					cfg.FeaturesCSV = featuresCSV
				}
			})
			if err != nil {
				return err
			}

			deps := pipeline.Deps{Cfg: cfg, Logger: logger}
			if !skipUpload {
				deps.Uploader, err = upload.NewUploader(cmd.Context(), cfg)
				if err != nil {
					return err
				}
			}

			summary, err := pipeline.New(deps).Run(cmd.Context(), pipeline.Options{
				OutputPath: args[0],
				Force:      force,
				SkipUpload: skipUpload,
			})
			if err != nil {
				return err
			}

			for _, skip := range summary.SkippedFiles {
				fmt.Fprintf(cmd.OutOrStdout(), "skipped %s: %s\n", skip.Path, skip.Reason)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d boreholes, %d archives\n",
				args[0], summary.Boreholes, len(summary.Archives))

			if failures := multierr.Errors(summary.UploadErrs); len(failures) > 0 {
				return fmt.Errorf("%d of %d uploads failed: %w",
					len(failures), len(summary.Archives), summary.UploadErrs)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory of MSCL CSV files (overrides DATA_DIR)")
	cmd.Flags().StringVar(&bucketURL, "bucket-url", "", "Public bucket base URL for datasetURL attributes (overrides BUCKET_BASE_URL)")
	cmd.Flags().StringVar(&featuresCSV, "features-csv", "", "Path of the intermediate feature table file (overrides FEATURES_CSV)")
	cmd.Flags().BoolVar(&skipUpload, "skip-upload", false, "Produce local artifacts only, skip the object-store transfer")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing output file")

	return cmd
}
