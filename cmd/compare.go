package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/changes"
	"github.com/C0sCube/selenium-scrape/internal/config"
	"github.com/C0sCube/selenium-scrape/internal/observability"
	"github.com/C0sCube/selenium-scrape/internal/reporting"
	"github.com/C0sCube/selenium-scrape/internal/results"
	"github.com/C0sCube/selenium-scrape/internal/shaping"
)

type compareOptions struct {
	key    string
	format string
	output string
	fromDB bool
}

func newCompareCmd(deps dependencies) *cobra.Command {
	opts := compareOptions{}

	compareCmd := &cobra.Command{
		Use:   "compare [old new]",
		Short: "Compare two runs and report what changed",
		Long: `Compares two run caches site by site. With no arguments the two most
recent caches are used. With --from-db the arguments are stored run IDs and
the two most recent stored runs are the default.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected zero or two arguments, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if !reporting.Supported(opts.format) {
				return fmt.Errorf("unsupported output format: %s", opts.format)
			}
			key, err := changes.ParseKeyField(opts.key)
			if err != nil {
				return err
			}

			logger := observability.GetLogger().Named("compare")
			older, newer, err := loadPair(ctx, logger, cfg, deps, opts.fromDB, args)
			if err != nil {
				return err
			}

			meta := []shaping.MetaField{
				{Key: "old", Value: describeCache(older)},
				{Key: "new", Value: describeCache(newer)},
				{Key: "key", Value: string(key)},
			}
			report := shaping.BuildComparisonReport(meta, changes.CompareCaches(*older, *newer, key))
			return writeReport(cmd, opts.format, opts.output, report)
		},
	}

	compareCmd.Flags().StringVarP(&opts.key, "key", "k", string(changes.KeyHash), "Entry key: hash, name, value or title")
	compareCmd.Flags().StringVarP(&opts.format, "format", "f", reporting.FormatText, "Output format: text, json or markdown")
	compareCmd.Flags().StringVarP(&opts.output, "output", "o", "", "Report file (default stdout)")
	compareCmd.Flags().BoolVar(&opts.fromDB, "from-db", false, "Read runs from PostgreSQL instead of cache files")
	return compareCmd
}

// loadPair returns the older and newer cache named by args, or the two most
// recent ones when args is empty.
func loadPair(ctx context.Context, logger *zap.Logger, cfg *config.Config, deps dependencies, fromDB bool, args []string) (*schemas.Cache, *schemas.Cache, error) {
	if fromDB {
		return loadPairFromStore(ctx, logger, cfg, deps, args)
	}

	repo := results.NewRepository(deps.fs, cacheRoot(cfg), logger)
	paths := args
	if len(paths) == 0 {
		latest, err := repo.Latest(2)
		if err != nil {
			return nil, nil, err
		}
		// Latest is newest first.
		paths = []string{latest[1], latest[0]}
	}

	older, err := repo.Load(paths[0])
	if err != nil {
		return nil, nil, err
	}
	newer, err := repo.Load(paths[1])
	if err != nil {
		return nil, nil, err
	}
	return older, newer, nil
}

func loadPairFromStore(ctx context.Context, logger *zap.Logger, cfg *config.Config, deps dependencies, args []string) (*schemas.Cache, *schemas.Cache, error) {
	store, cleanup, err := deps.stores.Create(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	defer cleanup()

	ids := args
	if len(ids) == 0 {
		latest, err := store.LatestRuns(ctx, 2)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list stored runs: %w", err)
		}
		if len(latest) < 2 {
			return nil, nil, errors.New("fewer than two stored runs")
		}
		ids = []string{latest[1], latest[0]}
	}

	older, err := store.LoadRun(ctx, ids[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load run %s: %w", ids[0], err)
	}
	newer, err := store.LoadRun(ctx, ids[1])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load run %s: %w", ids[1], err)
	}
	return older, newer, nil
}

func describeCache(c *schemas.Cache) string {
	if c.Metadata.RunID != "" {
		return fmt.Sprintf("%s (%s)", c.Metadata.Timestamp, c.Metadata.RunID)
	}
	return c.Metadata.Timestamp
}
