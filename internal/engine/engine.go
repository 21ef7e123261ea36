// Package engine runs the site catalogue: every selected site gets its own
// session and execution context, and sites run in parallel up to the
// configured concurrency.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/config"
	"github.com/C0sCube/selenium-scrape/internal/executor"
	"github.com/C0sCube/selenium-scrape/internal/fetch"
	"github.com/C0sCube/selenium-scrape/internal/packet"
	"github.com/C0sCube/selenium-scrape/internal/results"
	"github.com/C0sCube/selenium-scrape/internal/runner"
	"github.com/C0sCube/selenium-scrape/internal/sites"
)

// FetcherFactory creates the direct HTTP client of one site run.
type FetcherFactory func(site *sites.Site) (executor.Fetcher, error)

// Orchestrator manages the parallel execution of site runs.
type Orchestrator struct {
	cfg        *config.Config
	catalogue  *sites.Catalogue
	factory    schemas.SessionFactory
	writer     schemas.DocumentWriter
	newFetcher FetcherFactory
	builder    *packet.Builder
	sleep      executor.Sleeper
	now        func() time.Time
	logger     *zap.Logger
}

type Option func(o *Orchestrator)

func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithFetcherFactory replaces how each site's HTTP client is created.
func WithFetcherFactory(f FetcherFactory) Option {
	return func(o *Orchestrator) {
		o.newFetcher = f
	}
}

// WithSleeper replaces every pause: action jitter, polls and the pause
// between sites.
func WithSleeper(sleep executor.Sleeper) Option {
	return func(o *Orchestrator) {
		o.sleep = sleep
	}
}

// WithBuilder replaces the packet builder shared by all site runs.
func WithBuilder(b *packet.Builder) Option {
	return func(o *Orchestrator) {
		o.builder = b
	}
}

// WithClock replaces the clock that dates the output directories.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an Orchestrator. Sessions come from factory and every artifact
// is written through writer.
func New(cfg *config.Config, catalogue *sites.Catalogue, factory schemas.SessionFactory, writer schemas.DocumentWriter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		catalogue: catalogue,
		factory:   factory,
		writer:    writer,
		builder:   packet.New(),
		sleep:     executor.SleepContext,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("engine")
	if o.newFetcher == nil {
		o.newFetcher = o.defaultFetcher
	}
	return o
}

// defaultFetcher creates a rate-limited client carrying the configured
// headers overlaid with the site's own.
func (o *Orchestrator) defaultFetcher(site *sites.Site) (executor.Fetcher, error) {
	f, err := fetch.New(o.cfg.Network, o.logger.With(zap.String("site", site.Code)))
	if err != nil {
		return nil, err
	}
	headers := make(map[string]string, len(o.cfg.Network.Headers)+len(site.Headers))
	for k, v := range o.cfg.Network.Headers {
		headers[k] = v
	}
	for k, v := range site.Headers {
		headers[k] = v
	}
	f.SetHeaders(headers)
	return f, nil
}

// Run executes every site and returns one record per site in input order.
// A failing site is reported in its record and never stops its siblings; Run
// itself fails only when ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, selected []*sites.Site) ([]schemas.SiteRecord, error) {
	concurrency := o.cfg.Engine.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	o.logger.Info("Starting site runs.", zap.Int("sites", len(selected)), zap.Int("concurrency", concurrency))

	records := make([]schemas.SiteRecord, len(selected))
	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, site := range selected {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			records[i] = o.RunSite(ctx, site)
			if i < len(selected)-1 && o.cfg.Engine.SitePause > 0 {
				// Cancellation is reported once all sites return.
				_ = o.sleep(ctx, o.cfg.Engine.SitePause)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return records, fmt.Errorf("site runs interrupted: %w", err)
	}
	o.logger.Info("All site runs completed.")
	return records, nil
}

// RunSite runs one site end to end: open a session, load the base URL, run
// every block and close the session. The returned record is deduplicated.
func (o *Orchestrator) RunSite(ctx context.Context, site *sites.Site) schemas.SiteRecord {
	logger := o.logger.With(zap.String("site", site.Code))
	rec := schemas.SiteRecord{
		BankName:    site.BankName,
		BankCode:    site.BankCode,
		BaseURL:     site.BaseURL,
		ScrapedData: []schemas.ResultPacket{},
	}

	if timeout := o.cfg.Engine.SiteTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := o.now()
	ectx := executor.NewExecutionContext(site.Code, o.outputDir(site, started))
	ectx.Started = started

	packets, err := o.runSession(ctx, site, ectx, logger)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("Site run timed out.", zap.Duration("timeout", o.cfg.Engine.SiteTimeout))
		} else {
			logger.Error("Site run failed.", zap.Error(err))
		}
		rec.Error = err.Error()
		rec.ScrapedData = []schemas.ResultPacket{
			o.builder.BuildPacket(schemas.ActionNone, []schemas.ResponseEntry{o.builder.Error(err)}, site.BaseURL, "Site run failed."),
		}
		return rec
	}

	rec.ScrapedData = packets
	rec = results.Dedupe(rec)
	logger.Info("Site run completed.", zap.Int("packets", len(rec.ScrapedData)), zap.Duration("elapsed", o.now().Sub(started)))
	return rec
}

func (o *Orchestrator) runSession(ctx context.Context, site *sites.Site, ectx *executor.ExecutionContext, logger *zap.Logger) ([]schemas.ResultPacket, error) {
	session, err := o.factory.NewSession(ctx, schemas.SessionOptions{
		Site:        site.Code,
		Headers:     site.Headers,
		DownloadDir: ectx.DownloadDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("Failed to close session.", zap.Error(err))
		}
	}()

	if err := session.Navigate(ctx, site.BaseURL); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", site.BaseURL, err)
	}

	fetcher, err := o.newFetcher(site)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	exec := executor.New(session, o.writer,
		executor.WithLogger(logger),
		executor.WithFetcher(fetcher),
		executor.WithBuilder(o.builder),
		executor.WithSleeper(o.sleep),
		executor.WithSettings(o.settings()),
	)
	r := runner.New(exec, o.catalogue.Registry(site),
		runner.WithLogger(logger),
		runner.WithSleeper(o.sleep),
		runner.WithMaxJitter(o.cfg.Engine.MaxJitter),
	)
	return r.RunBlocks(ctx, site.Blocks, ectx)
}

// outputDir is root/data/<YYYY-MM-DD>/<site>.
func (o *Orchestrator) outputDir(site *sites.Site, at time.Time) string {
	out := o.cfg.Output
	return filepath.Join(out.RootDir, out.DataDir, at.Format(results.DayDirLayout), site.Code)
}

func (o *Orchestrator) settings() executor.Settings {
	s := executor.DefaultSettings()
	e := o.cfg.Engine
	if e.PDFSettleInterval > 0 {
		s.PDFSettleInterval = e.PDFSettleInterval
	}
	if e.PDFMaxScrolls > 0 {
		s.PDFMaxScrolls = e.PDFMaxScrolls
	}
	if e.ManualPollInterval > 0 {
		s.PollInterval = e.ManualPollInterval
	}
	if e.LabelDepth > 0 {
		s.LabelDepth = e.LabelDepth
	}
	return s
}
