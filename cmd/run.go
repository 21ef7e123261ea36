package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/config"
	"github.com/C0sCube/selenium-scrape/internal/engine"
	"github.com/C0sCube/selenium-scrape/internal/observability"
	"github.com/C0sCube/selenium-scrape/internal/results"
	"github.com/C0sCube/selenium-scrape/internal/sites"
	"github.com/C0sCube/selenium-scrape/internal/writer"
)

// runSummary is what a finished run leaves behind.
type runSummary struct {
	Cache     *schemas.Cache
	CachePath string
	StoredID  string
}

func newRunCmd(deps dependencies, v *viper.Viper) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [site codes...]",
		Short: "Run the extraction scripts of the selected sites",
		Long: `Runs the block scripts of every selected site and saves the results as a
run cache under output.root_dir/output.cache_dir. Site codes given as
arguments take precedence over sites.codes; with neither, every site in the
catalogue runs.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for key, flag := range map[string]string{
				"sites.codes":        "sites",
				"engine.concurrency": "concurrency",
				"browser.mode":       "browser",
				"browser.headless":   "headless",
				"database.enabled":   "persist",
			} {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return fmt.Errorf("failed to bind --%s: %w", flag, err)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Flags were bound after the root loaded the config.
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load or validate config: %w", err)
			}
			codes := cfg.Sites.Codes
			if len(args) > 0 {
				codes = args
			}

			logger := observability.GetLogger().Named("run")
			summary, runErr := runExtraction(cmd.Context(), logger, cfg, deps, codes)
			if summary != nil {
				if err := printRunSummary(cmd.OutOrStdout(), summary); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	runCmd.Flags().StringSlice("sites", nil, "Comma separated site codes to run")
	runCmd.Flags().Int("concurrency", 1, "Number of sites run in parallel")
	runCmd.Flags().String("browser", "chrome", "Session backend: chrome or static")
	runCmd.Flags().Bool("headless", true, "Run Chrome without a window")
	runCmd.Flags().Bool("persist", false, "Also store the run in PostgreSQL")
	return runCmd
}

// runExtraction runs the selected sites and saves the cache. An interrupted
// run still saves what finished and returns the summary with the error.
func runExtraction(ctx context.Context, logger *zap.Logger, cfg *config.Config, deps dependencies, codes []string) (*runSummary, error) {
	catalogue, err := sites.Load(deps.fs, cfg.Sites.File)
	if err != nil {
		return nil, err
	}
	selected, err := catalogue.Select(codes)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, errors.New("no sites selected")
	}

	factory, cleanup, err := deps.sessions.Create(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start session backend: %w", err)
	}
	defer cleanup()

	started := deps.now()
	cache := results.NewCache(cfg.Output.Program, cfg.Sites.File, uuid.NewString(), started)
	orch := engine.New(cfg, catalogue, factory, writer.New(deps.fs, logger),
		engine.WithLogger(logger),
		engine.WithClock(deps.now),
	)

	records, runErr := orch.Run(ctx, selected)
	for _, rec := range records {
		// Sites never started after a cancellation leave zero records.
		if rec.ScrapedData == nil {
			continue
		}
		cache.Records = append(cache.Records, rec)
	}

	repo := results.NewRepository(deps.fs, cacheRoot(cfg), logger)
	path, err := repo.Save(cache, started)
	if err != nil {
		return nil, errors.Join(runErr, err)
	}
	summary := &runSummary{Cache: cache, CachePath: path}

	if cfg.Database.Enabled {
		id, err := persistRun(ctx, logger, cfg, deps, cache)
		if err != nil {
			return summary, errors.Join(runErr, err)
		}
		summary.StoredID = id
	}
	return summary, runErr
}

func persistRun(ctx context.Context, logger *zap.Logger, cfg *config.Config, deps dependencies, cache *schemas.Cache) (string, error) {
	// An interrupted run is still stored.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()

	store, cleanup, err := deps.stores.Create(ctx, cfg, logger)
	if err != nil {
		return "", err
	}
	defer cleanup()

	id, err := store.PersistRun(ctx, cache)
	if err != nil {
		return "", fmt.Errorf("failed to store run: %w", err)
	}
	return id, nil
}

func printRunSummary(w io.Writer, s *runSummary) error {
	failed := 0
	for _, rec := range s.Cache.Records {
		status := fmt.Sprintf("%d packets", len(rec.ScrapedData))
		if rec.Error != "" {
			failed++
			status = "failed: " + rec.Error
		}
		if _, err := fmt.Fprintf(w, "%-12s %-30s %s\n", rec.BankCode, rec.BankName, status); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "\n%d sites, %d failed\ncache: %s\n", len(s.Cache.Records), failed, s.CachePath); err != nil {
		return err
	}
	if s.StoredID != "" {
		if _, err := fmt.Fprintf(w, "stored run: %s\n", s.StoredID); err != nil {
			return err
		}
	}
	return nil
}

func cacheRoot(cfg *config.Config) string {
	return filepath.Join(cfg.Output.RootDir, cfg.Output.CacheDir)
}
