// Package fetch performs the direct HTTP requests of the download and http
// actions and of the static session, reusing the browser's cookies.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/C0sCube/selenium-scrape/internal/config"
)

var (
	// ErrTooLarge is returned when a body exceeds the configured ceiling.
	ErrTooLarge = errors.New("response body exceeds size ceiling")
	// ErrBadStatus is returned for non-2xx responses.
	ErrBadStatus = errors.New("unexpected response status")
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultMaxBytes  int64 = 25 << 20
	defaultUserAgent       = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// Response is a fully read HTTP response.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Header      http.Header
	Body        []byte
}

// Fetcher is a cookie-aware, rate-limited HTTP client. One Fetcher serves
// one site run.
type Fetcher struct {
	client   *http.Client
	limiter  *rate.Limiter
	headers  map[string]string
	agent    string
	maxBytes int64
	logger   *zap.Logger
}

// New creates a Fetcher from the network configuration.
func New(cfg config.NetworkConfig, logger *zap.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Cookies set by one site must not leak to a sibling domain.
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxBytes := cfg.DownloadMaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	agent := cfg.UserAgent
	if agent == "" {
		agent = defaultUserAgent
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: cfg.IgnoreTLSErrors, MinVersion: tls.VersionTLS12}, //nolint:gosec // opt-in for sites with broken chains
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	}

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			Jar:       jar,
		},
		limiter:  rate.NewLimiter(limit, burst),
		headers:  cfg.Headers,
		agent:    agent,
		maxBytes: maxBytes,
		logger:   logger.Named("fetch"),
	}, nil
}

// SetHeaders replaces the extra headers sent with every request.
func (f *Fetcher) SetHeaders(headers map[string]string) {
	f.headers = headers
}

// Cookies returns the cookies the jar holds for u.
func (f *Fetcher) Cookies(u *url.URL) []*http.Cookie {
	return f.client.Jar.Cookies(u)
}

// MaxBytes returns the body size ceiling.
func (f *Fetcher) MaxBytes() int64 {
	return f.maxBytes
}

// Get fetches rawURL, attaching the cookies that apply to its host. Bodies
// larger than the ceiling fail with ErrTooLarge and non-2xx statuses with
// ErrBadStatus; in both cases the partial response is returned for logging.
func (f *Fetcher) Get(ctx context.Context, rawURL string, cookies []*http.Cookie) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.agent)
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		if c == nil || !cookieMatches(u.Hostname(), c.Domain) {
			continue
		}
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	out := &Response{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return out, fmt.Errorf("%w: %d from %s", ErrBadStatus, resp.StatusCode, u.Redacted())
	}

	if resp.ContentLength > f.maxBytes {
		return out, fmt.Errorf("%w: declared %d bytes, limit %d", ErrTooLarge, resp.ContentLength, f.maxBytes)
	}

	// Read one byte past the ceiling to tell "exactly at" from "over".
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return out, fmt.Errorf("failed to read body from %s: %w", u.Redacted(), err)
	}
	if int64(len(body)) > f.maxBytes {
		return out, fmt.Errorf("%w: limit %d", ErrTooLarge, f.maxBytes)
	}
	out.Body = body

	f.logger.Debug("Fetched resource.",
		zap.String("url", out.URL),
		zap.Int("status", out.StatusCode),
		zap.Int("bytes", len(body)),
	)
	return out, nil
}

// cookieMatches applies the cookie domain-match rule. Cookies without a
// domain are sent to every host.
func cookieMatches(host, domain string) bool {
	domain = strings.TrimPrefix(strings.ToLower(domain), ".")
	host = strings.ToLower(host)
	if domain == "" || host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}
