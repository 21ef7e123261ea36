package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/cleaner"
	"github.com/C0sCube/selenium-scrape/internal/locator"
	"github.com/C0sCube/selenium-scrape/internal/shaping"
)

const (
	labelMarkAttr    = "data-siteextract-mark"
	consolidateSep   = "<br><hr><br>"
	htmlExportDir    = "save_html"
	csvExportDir     = "save_csv"
	scrapeTextKey    = "text"
	exportFormatHTML = "html"
	exportFormatCSV  = "csv"
	exportFormatBoth = "both"
)

func (e *Engine) click(ctx context.Context, spec schemas.ActionSpec, el schemas.Element, ectx *ExecutionContext) error {
	if el == nil {
		return fmt.Errorf("click requires an element: %w", schemas.ErrElementNotFound)
	}
	if err := e.session.ScrollIntoView(ctx, el); err != nil {
		e.logger.Debug("Scroll before click failed.", zap.Error(err))
	}
	if err := e.session.Click(ctx, el); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	e.logger.Info("Clicked element.")
	if spec.NewWindow {
		return e.awaitNewWindow(ctx, ectx, spec.TimeoutDuration())
	}
	return nil
}

// scrape reads every match of the locator. With scrape_fields each field is
// a sub-locator evaluated inside the match; otherwise the named attribute or
// the match's text is read. Results are merged into one ordered key set, a
// later match overwriting an earlier one's key.
func (e *Engine) scrape(ctx context.Context, spec schemas.ActionSpec) ([]schemas.ResponseEntry, error) {
	els, err := e.session.FindAll(ctx, locator.Resolve(spec.By, spec.Value))
	if err != nil {
		return nil, fmt.Errorf("failed to find elements: %w", err)
	}

	var keys []string
	values := make(map[string]string)
	put := func(k, v string) {
		if _, seen := values[k]; !seen {
			keys = append(keys, k)
		}
		values[k] = v
	}

	for _, el := range els {
		switch {
		case len(spec.ScrapeFields) > 0:
			for _, f := range spec.ScrapeFields {
				put(f.Name, e.scrapeField(ctx, el, f))
			}
		case spec.Attribute != "":
			v, _, err := e.session.ReadAttribute(ctx, el, spec.Attribute)
			if err != nil {
				return nil, fmt.Errorf("failed to read attribute %q: %w", spec.Attribute, err)
			}
			put(spec.Attribute, v)
		default:
			text, err := e.session.ReadText(ctx, el)
			if err != nil {
				return nil, fmt.Errorf("failed to read text: %w", err)
			}
			put(scrapeTextKey, strings.TrimSpace(text))
		}
	}

	e.logger.Info("Scraped data.", zap.Strings("keys", keys))
	entries := make([]schemas.ResponseEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, e.builder.BuildEntry(k, nil, values[k], schemas.ContentText))
	}
	return entries, nil
}

// scrapeField resolves one sub-locator and reads it as visible text, then
// textContent, then innerHTML. A missing field reads as "".
func (e *Engine) scrapeField(ctx context.Context, el schemas.Element, f schemas.Field) string {
	sel, by := locator.ParseSubSelector(f.Selector)
	subs, err := e.session.FindWithin(ctx, el, locator.Resolve(by, sel))
	if err != nil || len(subs) == 0 {
		e.logger.Warn("Missing scrape field.", zap.String("field", f.Name), zap.Error(err))
		return ""
	}
	sub := subs[0]

	if text, err := e.session.ReadText(ctx, sub); err == nil {
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	for _, prop := range []string{schemas.PropTextContent, schemas.PropInnerHTML} {
		if v, err := e.session.ReadProperty(ctx, sub, prop); err == nil {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// table emits one cleaned table_html entry per matched table, titled with
// the labels preceding it on the page.
func (e *Engine) table(ctx context.Context, spec schemas.ActionSpec, primary schemas.Element, ectx *ExecutionContext) ([]schemas.ResponseEntry, error) {
	els, err := e.elements(ctx, spec, primary)
	if err != nil {
		return nil, err
	}
	if spec.By == schemas.StrategyCSS {
		tables := els[:0:0]
		for _, el := range els {
			if el.TagName() == "table" {
				tables = append(tables, el)
			}
		}
		els = tables
	}
	e.logger.Info("Extracting tables.", zap.Int("count", len(els)))

	entries := make([]schemas.ResponseEntry, 0, len(els))
	cleaned := make([]string, 0, len(els))
	for idx, el := range els {
		raw, err := e.session.ReadProperty(ctx, el, schemas.PropOuterHTML)
		if err != nil {
			return nil, fmt.Errorf("failed to read table %d: %w", idx, err)
		}
		labels := e.labelsFor(ctx, el, spec.MaxLabels)
		clean := cleaner.CleanTableHTML(raw)
		cleaned = append(cleaned, clean)
		entries = append(entries, e.builder.BuildEntry(fmt.Sprintf("%s_%d", spec.TableName, idx), labels, clean, schemas.ContentTableHTML))
	}

	if err := e.exportTables(spec, cleaned, ectx); err != nil {
		return nil, err
	}
	return entries, nil
}

// labelsFor tags el, finds it in the serialised page and walks back from it
// for labels. Any failure yields the placeholder label.
func (e *Engine) labelsFor(ctx context.Context, el schemas.Element, n int) []string {
	placeholder := []string{cleaner.PlaceholderLabel}

	mark := uuid.NewString()
	if err := e.session.SetAttribute(ctx, el, labelMarkAttr, mark); err != nil {
		e.logger.Debug("Could not mark table for label search.", zap.Error(err))
		return placeholder
	}
	defer func() {
		if err := e.session.RemoveAttribute(ctx, el, labelMarkAttr); err != nil {
			e.logger.Debug("Could not unmark table.", zap.Error(err))
		}
	}()

	page, err := e.session.PageHTML(ctx)
	if err != nil {
		e.logger.Debug("Could not read page for label search.", zap.Error(err))
		return placeholder
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return placeholder
	}
	found := doc.Find(fmt.Sprintf(`[%s="%s"]`, labelMarkAttr, mark))
	if found.Length() == 0 {
		return placeholder
	}
	return cleaner.FindPrecedingLabels(found.Nodes[0], n, e.settings.LabelDepth)
}

func (e *Engine) exportTables(spec schemas.ActionSpec, tables []string, ectx *ExecutionContext) error {
	if len(tables) == 0 || spec.ExportFormat == "" {
		return nil
	}
	format := spec.ExportFormat

	if format == exportFormatHTML || format == exportFormatBoth {
		if err := e.saveHTML(spec.TableName, tables, spec.ConsolidateSave, ectx); err != nil {
			return err
		}
	}
	if format == exportFormatCSV || format == exportFormatBoth {
		dir, err := e.writer.EnsureDirs(ectx.OutputDir, csvExportDir)
		if err != nil {
			return err
		}
		var consolidated []string
		for idx, raw := range tables {
			t, err := shaping.ParseTable(raw)
			if err != nil {
				return fmt.Errorf("failed to shape table %d: %w", idx, err)
			}
			out, err := shaping.TableCSV(t)
			if err != nil {
				return fmt.Errorf("failed to encode table %d: %w", idx, err)
			}
			if spec.ConsolidateSave {
				consolidated = append(consolidated, out)
				continue
			}
			if err := e.writer.WriteText(filepath.Join(dir, fmt.Sprintf("%s_%d.csv", spec.TableName, idx)), out); err != nil {
				return err
			}
		}
		if spec.ConsolidateSave {
			if err := e.writer.WriteText(filepath.Join(dir, spec.TableName+".csv"), strings.Join(consolidated, "\n")); err != nil {
				return err
			}
		}
		e.logger.Info("Saved tables as CSV.", zap.Int("count", len(tables)), zap.String("dir", dir))
	}
	return nil
}

// saveHTML writes fragments either into one file joined by a rule or into
// one file per fragment.
func (e *Engine) saveHTML(name string, fragments []string, consolidate bool, ectx *ExecutionContext) error {
	dir, err := e.writer.EnsureDirs(ectx.OutputDir, htmlExportDir)
	if err != nil {
		return err
	}
	if consolidate || len(fragments) == 1 {
		sep := "\n"
		if consolidate {
			sep = consolidateSep
		}
		if err := e.writer.WriteText(filepath.Join(dir, name+".html"), strings.Join(fragments, sep)); err != nil {
			return err
		}
	} else {
		for idx, frag := range fragments {
			if err := e.writer.WriteText(filepath.Join(dir, fmt.Sprintf("%s_%d.html", name, idx)), frag); err != nil {
				return err
			}
		}
	}
	e.logger.Info("Saved HTML.", zap.Int("count", len(fragments)), zap.String("dir", dir))
	return nil
}

// html dumps the outer HTML of every match as-is and saves the bundle.
func (e *Engine) html(ctx context.Context, spec schemas.ActionSpec, primary schemas.Element, ectx *ExecutionContext) ([]schemas.ResponseEntry, error) {
	els, err := e.elements(ctx, spec, primary)
	if err != nil {
		return nil, err
	}

	entries := make([]schemas.ResponseEntry, 0, len(els))
	fragments := make([]string, 0, len(els))
	for idx, el := range els {
		outer, err := e.session.ReadProperty(ctx, el, schemas.PropOuterHTML)
		if err != nil {
			return nil, fmt.Errorf("failed to read element %d: %w", idx, err)
		}
		if outer == "" {
			e.logger.Warn("No HTML content for element.", zap.Int("index", idx))
			continue
		}
		fragments = append(fragments, outer)
		entries = append(entries, e.builder.BuildEntry(fmt.Sprintf("%s_%d", spec.HTMLName, idx), nil, outer, schemas.ContentHTML))
	}

	if len(fragments) > 0 {
		if err := e.saveHTML(spec.HTMLName, fragments, spec.ConsolidateSave, ectx); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// redirect navigates to spec.URL. Failure is logged and not fatal.
func (e *Engine) redirect(ctx context.Context, spec schemas.ActionSpec) {
	e.logger.Info("Redirecting.", zap.String("url", spec.URL))
	if err := e.session.Navigate(ctx, spec.URL); err != nil {
		e.logger.Error("Unable to redirect.", zap.String("url", spec.URL), zap.Error(err))
	}
}
