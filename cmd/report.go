package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/observability"
	"github.com/C0sCube/selenium-scrape/internal/reporting"
	"github.com/C0sCube/selenium-scrape/internal/results"
	"github.com/C0sCube/selenium-scrape/internal/shaping"
)

func newReportCmd(deps dependencies) *cobra.Command {
	var format, output, runID string

	reportCmd := &cobra.Command{
		Use:   "report [cache-file]",
		Short: "Render the contents of one run",
		Long: `Renders every packet of a run cache, plus the notice board tables found in
it. Without a file the most recent cache is used; --run-id reads a stored run
from PostgreSQL instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if !reporting.Supported(format) {
				return fmt.Errorf("unsupported output format: %s", format)
			}

			logger := observability.GetLogger().Named("report")
			var cache *schemas.Cache
			if runID != "" {
				store, cleanup, err := deps.stores.Create(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer cleanup()
				if cache, err = store.LoadRun(ctx, runID); err != nil {
					return fmt.Errorf("failed to load run %s: %w", runID, err)
				}
			} else {
				repo := results.NewRepository(deps.fs, cacheRoot(cfg), logger)
				var path string
				if len(args) == 1 {
					path = args[0]
				} else {
					latest, err := repo.Latest(1)
					if err != nil {
						return err
					}
					path = latest[0]
				}
				if cache, err = repo.Load(path); err != nil {
					return err
				}
			}

			return writeReport(cmd, format, output, shaping.BuildCacheReport(*cache))
		},
	}

	reportCmd.Flags().StringVarP(&format, "format", "f", reporting.FormatText, "Output format: text, json or markdown")
	reportCmd.Flags().StringVarP(&output, "output", "o", "", "Report file (default stdout)")
	reportCmd.Flags().StringVar(&runID, "run-id", "", "Stored run to render instead of a cache file")
	return reportCmd
}

// writeReport renders report to the output file, or to the command's stdout
// when none is given.
func writeReport(cmd *cobra.Command, format, output string, report shaping.Report) (err error) {
	var reporter reporting.Reporter
	if output == "" || output == "stdout" {
		reporter, err = reporting.NewForStream(format, cmd.OutOrStdout())
	} else {
		reporter, err = reporting.New(format, output)
	}
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := reporter.Close(); err == nil {
			err = closeErr
		}
	}()
	return reporter.Write(report)
}
