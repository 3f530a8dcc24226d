package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"geopkg-maker/internal/config"
	"geopkg-maker/internal/pipeline"
	"geopkg-maker/internal/upload"
)

func newWatchCmd() *cobra.Command {
	var (
		dataDir    string
		schedule   string
		skipUpload bool
	)

	cmd := &cobra.Command{
		Use:   "watch <output.gpkg>",
		Short: "Re-run the pipeline on a cron schedule",
		Long: "Runs the publishing pipeline immediately and then on the given cron " +
			"schedule, keeping the GeoPackage and the bucket in sync with a data " +
			"directory that is refreshed periodically. Stops on SIGINT/SIGTERM.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(func(cfg *config.Config) {
				if dataDir != "" {
					cfg.DataDir = dataDir
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

			opts := pipeline.Options{
				OutputPath: args[0],
				Force:      true, // periodic runs replace the previous container
				SkipUpload: skipUpload,
			}

			run := func() {
				runOnce(cmd.Context(), pipeline.New(deps), opts, logger)
			}

			// Register the schedule before the first run so a bad expression
			// fails fast instead of after a full pipeline pass.
			c := cron.New()
			if _, err := c.AddFunc(schedule, run); err != nil {
				return fmt.Errorf("invalid --schedule %q: %w", schedule, err)
			}
			run()
			c.Start()
			defer c.Stop()

			<-cmd.Context().Done()
			logger.Info("watch stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory of MSCL CSV files (overrides DATA_DIR)")
	cmd.Flags().StringVar(&schedule, "schedule", "@hourly", "Cron schedule for pipeline runs")
	cmd.Flags().BoolVar(&skipUpload, "skip-upload", false, "Produce local artifacts only, skip the object-store transfer")

	return cmd
}

// runOnce executes one scheduled run. Failures are logged, not returned: a
// bad run must not kill the watch loop.
func runOnce(ctx context.Context, p *pipeline.Pipeline, opts pipeline.Options, logger *slog.Logger) {
	summary, err := p.Run(ctx, opts)
	if err != nil {
		logger.Error("scheduled run failed", "error", err)
		return
	}
	if failures := multierr.Errors(summary.UploadErrs); len(failures) > 0 {
		logger.Error("scheduled run finished with upload failures", "failures", len(failures))
	}
}
