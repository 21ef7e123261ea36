package static

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/config"
	"github.com/C0sCube/selenium-scrape/internal/fetch"
)

// Factory creates static sessions. Each session gets its own fetcher and
// therefore its own cookie jar.
type Factory struct {
	cfg    config.NetworkConfig
	logger *zap.Logger
}

var _ schemas.SessionFactory = (*Factory)(nil)

func NewFactory(cfg config.NetworkConfig, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, logger: logger}
}

// NewSession creates a session whose requests carry the configured headers
// overlaid with the site's own.
func (f *Factory) NewSession(_ context.Context, opts schemas.SessionOptions) (schemas.Session, error) {
	logger := f.logger.With(zap.String("site", opts.Site))
	fetcher, err := fetch.New(f.cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	headers := make(map[string]string, len(f.cfg.Headers)+len(opts.Headers))
	for k, v := range f.cfg.Headers {
		headers[k] = v
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}
	fetcher.SetHeaders(headers)

	return NewSession(fetcher, logger), nil
}
