package executor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/fetch"
)

var errNoFetcher = errors.New("no fetcher configured")

// partialSuffixes mark files a browser is still writing.
var partialSuffixes = []string{".crdownload", ".part", ".tmp", ".download"}

// ClassifyExtension maps a file name or URL to a content type by extension.
// Unknown extensions classify as "".
func ClassifyExtension(name string) schemas.ContentType {
	if u, err := url.Parse(name); err == nil && u.Path != "" {
		name = u.Path
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return schemas.ContentPDF
	case ".csv":
		return schemas.ContentCSV
	case ".docx", ".doc":
		return schemas.ContentDOCX
	case ".xlsx", ".xls":
		return schemas.ContentXLSX
	default:
		return ""
	}
}

// download resolves a file link from the element, fetches it with the
// session's cookies and saves it. Links without a known file extension are
// clicked instead so the browser handles them. Oversized or failed fetches
// produce an entry with an empty value.
func (e *Engine) download(ctx context.Context, spec schemas.ActionSpec, primary schemas.Element, ectx *ExecutionContext) ([]schemas.ResponseEntry, error) {
	if primary == nil {
		return nil, fmt.Errorf("download requires an element: %w", schemas.ErrElementNotFound)
	}
	if err := e.session.ScrollIntoView(ctx, primary); err != nil {
		e.logger.Debug("Scroll before download failed.", zap.Error(err))
	}

	href, err := e.fileLink(ctx, primary)
	if err != nil {
		return nil, err
	}
	if href == "" {
		e.logger.Warn("No file link on element.")
		return nil, nil
	}
	fileURL, err := e.absoluteURL(ctx, href)
	if err != nil {
		return nil, err
	}

	kind := ClassifyExtension(fileURL)
	if kind == "" {
		if err := e.session.Click(ctx, primary); err != nil {
			return nil, fmt.Errorf("click to download failed: %w", err)
		}
		e.logger.Info("Triggered click for file download.", zap.String("url", fileURL))
		return nil, nil
	}

	name := fileName(fileURL)
	data, ok := e.fetchBytes(ctx, fileURL)
	if !ok {
		return []schemas.ResponseEntry{e.builder.BuildEntry(name, nil, "", kind)}, nil
	}

	dir, err := e.writer.EnsureDirs(ectx.DownloadDir)
	if err != nil {
		return nil, err
	}
	dest := filepath.Join(dir, name)
	if err := e.writer.WriteBinary(dest, data); err != nil {
		return nil, err
	}
	e.logger.Info("Downloaded file.", zap.String("url", fileURL), zap.String("path", dest), zap.Int("bytes", len(data)))
	return []schemas.ResponseEntry{
		e.builder.BuildEntry(name, nil, base64.StdEncoding.EncodeToString(data), kind),
	}, nil
}

// fileLink returns the element's href or, failing that, its first nested
// anchor's href.
func (e *Engine) fileLink(ctx context.Context, el schemas.Element) (string, error) {
	href, ok, err := e.session.ReadAttribute(ctx, el, "href")
	if err != nil {
		return "", fmt.Errorf("failed to read href: %w", err)
	}
	if ok && strings.TrimSpace(href) != "" {
		return strings.TrimSpace(href), nil
	}
	anchors, err := e.session.FindWithin(ctx, el, schemas.Query{Lang: schemas.QueryCSS, Expr: "a[href]"})
	if err != nil || len(anchors) == 0 {
		return "", nil
	}
	href, _, err = e.session.ReadAttribute(ctx, anchors[0], "href")
	if err != nil {
		return "", fmt.Errorf("failed to read nested href: %w", err)
	}
	return strings.TrimSpace(href), nil
}

func (e *Engine) absoluteURL(ctx context.Context, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid link %q: %w", href, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	current, err := e.session.CurrentURL(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read current url: %w", err)
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("invalid current url %q: %w", current, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// fetchBytes fetches rawURL with the session's cookies. Resource failures are
// logged and reported as !ok.
func (e *Engine) fetchBytes(ctx context.Context, rawURL string) ([]byte, bool) {
	resp, err := e.get(ctx, rawURL)
	if err != nil {
		switch {
		case errors.Is(err, fetch.ErrTooLarge):
			e.logger.Warn("Rejected oversized file.", zap.String("url", rawURL), zap.Error(err))
		case errors.Is(err, fetch.ErrBadStatus):
			e.logger.Error("Failed to download file.", zap.String("url", rawURL), zap.Error(err))
		default:
			e.logger.Error("Request failed.", zap.String("url", rawURL), zap.Error(err))
		}
		return nil, false
	}
	return resp.Body, true
}

func (e *Engine) get(ctx context.Context, rawURL string) (*fetch.Response, error) {
	if e.fetcher == nil {
		return nil, errNoFetcher
	}
	cookies, err := e.session.Cookies(ctx)
	if err != nil {
		e.logger.Debug("Could not read session cookies.", zap.Error(err))
	}
	return e.fetcher.Get(ctx, rawURL, cookies)
}

// httpFetch requests spec.URL directly, outside the browser.
func (e *Engine) httpFetch(ctx context.Context, spec schemas.ActionSpec) ([]schemas.ResponseEntry, error) {
	if e.fetcher == nil {
		return nil, errNoFetcher
	}
	resp, err := e.get(ctx, spec.URL)
	if err != nil {
		if errors.Is(err, fetch.ErrTooLarge) || errors.Is(err, fetch.ErrBadStatus) {
			e.logger.Warn("HTTP fetch returned no content.", zap.String("url", spec.URL), zap.Error(err))
			return []schemas.ResponseEntry{e.builder.BuildEntry(string(schemas.ActionHTTP), nil, "", schemas.ContentText)}, nil
		}
		return nil, err
	}

	ct := strings.ToLower(resp.ContentType)
	kind := ClassifyExtension(resp.URL)
	switch {
	case strings.Contains(ct, "html"):
		kind = schemas.ContentHTML
	case strings.Contains(ct, "pdf"):
		kind = schemas.ContentPDF
	case strings.Contains(ct, "csv"):
		kind = schemas.ContentCSV
	case kind == "":
		kind = schemas.ContentText
	}

	value := string(resp.Body)
	if kind.IsBinary() {
		value = base64.StdEncoding.EncodeToString(resp.Body)
	}
	e.logger.Info("Fetched over HTTP.", zap.String("url", resp.URL), zap.String("type", string(kind)))
	return []schemas.ResponseEntry{e.builder.BuildEntry(string(schemas.ActionHTTP), nil, value, kind)}, nil
}

// manual clicks the element, if any, and waits for the browser to finish
// saving a new file in the download directory.
func (e *Engine) manual(ctx context.Context, spec schemas.ActionSpec, primary schemas.Element, ectx *ExecutionContext) ([]schemas.ResponseEntry, error) {
	before, err := e.writer.List(ectx.DownloadDir)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(before))
	for _, n := range before {
		known[n] = true
	}

	if primary != nil {
		if err := e.session.Click(ctx, primary); err != nil {
			return nil, fmt.Errorf("click to download failed: %w", err)
		}
	}

	deadline := time.Now().Add(spec.TimeoutDuration())
	for {
		after, err := e.writer.List(ectx.DownloadDir)
		if err != nil {
			return nil, err
		}
		for _, name := range after {
			if known[name] || isPartial(name) {
				continue
			}
			data, err := e.writer.ReadFile(filepath.Join(ectx.DownloadDir, name))
			if err != nil {
				return nil, err
			}
			kind := ClassifyExtension(name)
			if kind == "" {
				kind = schemas.ContentText
			}
			value := string(data)
			if kind.IsBinary() {
				value = base64.StdEncoding.EncodeToString(data)
			}
			e.logger.Info("Manual download completed.", zap.String("file", name))
			return []schemas.ResponseEntry{e.builder.BuildEntry(name, nil, value, kind)}, nil
		}
		if time.Now().After(deadline) {
			e.logger.Warn("No download appeared before the timeout.", zap.Duration("timeout", spec.TimeoutDuration()))
			return []schemas.ResponseEntry{e.builder.BuildEntry(string(schemas.ActionManual), nil, "", schemas.ContentText)}, nil
		}
		if err := e.sleep(ctx, e.settings.PollInterval); err != nil {
			return nil, err
		}
	}
}

func isPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range partialSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

func fileName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			return base
		}
	}
	return "download"
}
