package executor

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/C0sCube/selenium-scrape/internal/fetch"
	"github.com/C0sCube/selenium-scrape/internal/packet"
)

// Fetcher performs the direct requests of the download and http actions.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, cookies []*http.Cookie) (*fetch.Response, error)
}

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Settings tunes the bounded loops of the behaviors.
type Settings struct {
	// PDFSettleInterval is the pause between lazy-load scrolls before printing.
	PDFSettleInterval time.Duration
	PDFMaxScrolls     int
	// PollInterval paces the window and download polls.
	PollInterval time.Duration
	// LabelDepth bounds the ancestor hops of the table label search.
	LabelDepth int
}

// DefaultSettings returns the settings used when none are supplied.
func DefaultSettings() Settings {
	return Settings{
		PDFSettleInterval: 2 * time.Second,
		PDFMaxScrolls:     50,
		PollInterval:      500 * time.Millisecond,
		LabelDepth:        6,
	}
}

type Option func(opts *options)

type options struct {
	logger   *zap.Logger
	fetcher  Fetcher
	builder  *packet.Builder
	sleep    Sleeper
	settings Settings
}

var defaultOptions = options{
	logger:   zap.NewNop(),
	settings: DefaultSettings(),
	sleep:    SleepContext,
}

func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

func WithFetcher(fetcher Fetcher) Option {
	return func(opts *options) {
		opts.fetcher = fetcher
	}
}

func WithBuilder(builder *packet.Builder) Option {
	return func(opts *options) {
		opts.builder = builder
	}
}

func WithSleeper(sleep Sleeper) Option {
	return func(opts *options) {
		opts.sleep = sleep
	}
}

func WithSettings(settings Settings) Option {
	return func(opts *options) {
		opts.settings = settings
	}
}

// SleepContext pauses for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
