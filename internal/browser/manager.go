// Package browser drives Chrome through the DevTools protocol. A Manager owns
// the allocator and hands out one isolated Session per site run.
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/config"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Manager handles the lifecycle of the browser allocator. The allocator is
// created lazily by the first session request.
type Manager struct {
	logger  *zap.Logger
	browser config.BrowserConfig
	network config.NetworkConfig

	parent          context.Context
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	initOnce sync.Once

	// wg tracks open sessions for a graceful shutdown.
	wg sync.WaitGroup
}

var _ schemas.SessionFactory = (*Manager)(nil)

// NewManager creates a manager bound to ctx. Canceling ctx kills every
// browser process it launched.
func NewManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:  logger.Named("browser_manager"),
		browser: cfg.Browser,
		network: cfg.Network,
		parent:  ctx,
	}
}

func (m *Manager) initialize() {
	m.initOnce.Do(func() {
		m.logger.Info("Initializing browser allocator.", zap.Bool("headless", m.browser.Headless))
		opts := DefaultAllocatorOptions(m.browser)
		agent := m.network.UserAgent
		if agent == "" {
			agent = defaultUserAgent
		}
		opts = append(opts, chromedp.UserAgent(agent))
		if m.network.IgnoreTLSErrors {
			opts = append(opts,
				chromedp.Flag("ignore-certificate-errors", true),
				chromedp.Flag("allow-insecure-localhost", true),
			)
		}
		m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(m.parent, opts...)
	})
}

// DefaultAllocatorOptions assembles the launch flags for cfg.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	for _, opt := range chromedp.DefaultExecAllocatorOptions {
		opts = append(opts, opt)
	}

	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", cfg.DisableGPU),
	)
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if cfg.ProfileDirectory != "" {
		opts = append(opts, chromedp.Flag("profile-directory", cfg.ProfileDirectory))
	}
	if cfg.LaunchTimeout > 0 {
		opts = append(opts, chromedp.WSURLReadTimeout(cfg.LaunchTimeout))
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	if runtime.GOOS == "linux" && cfg.NoSandbox {
		opts = append(opts,
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	return opts
}

// NewSession launches a browser for one site and opens its first window.
func (m *Manager) NewSession(ctx context.Context, opts schemas.SessionOptions) (schemas.Session, error) {
	m.initialize()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := m.logger.With(zap.String("site", opts.Site))
	rootCtx, rootCancel := chromedp.NewContext(m.allocatorCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Debugf),
	)

	// The first Run on a fresh context starts the browser. It must not carry
	// a deadline or the browser dies with it.
	if err := chromedp.Run(rootCtx); err != nil {
		rootCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	headers := make(map[string]string, len(m.network.Headers)+len(opts.Headers))
	for k, v := range m.network.Headers {
		headers[k] = v
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	m.wg.Add(1)
	s := newSession(rootCtx, rootCancel, sessionSettings{
		headers:           headers,
		downloadDir:       opts.DownloadDir,
		navigationTimeout: m.network.NavigationTimeout,
		postLoadWait:      m.network.PostLoadWait,
	}, logger, m.wg.Done)

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.initialize(initCtx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}
	logger.Info("Browser session opened.", zap.String("window", s.active))
	return s, nil
}

// Shutdown waits for open sessions to close, up to ctx's deadline, and then
// terminates the allocator.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated. Waiting for active sessions to complete...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All sessions have completed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.allocatorCancel != nil {
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return nil
}
