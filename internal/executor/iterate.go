package executor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/locator"
)

// iterateTabs clicks every element the locator matches and runs the
// follow-ups after each click. The locator is evaluated again before every
// click because a click may re-render the tab strip. A failing tab yields an
// error entry tagged with its label and the remaining tabs still run.
func (e *Engine) iterateTabs(ctx context.Context, spec schemas.ActionSpec, ectx *ExecutionContext) ([]schemas.ResponseEntry, error) {
	q := locator.Resolve(spec.By, spec.Value)
	initial, err := e.session.FindAll(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to find tabs: %w", err)
	}
	e.logger.Info("Iterating tabs.", zap.Int("count", len(initial)))

	var entries []schemas.ResponseEntry
	for i := range initial {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		label := fmt.Sprintf("Tab %d", i+1)

		tabEntries, err := e.runTab(ctx, spec, q, i, &label, ectx)
		if err != nil {
			var cfgErr *configError
			if errors.As(err, &cfgErr) {
				return nil, err
			}
			e.logger.Error("Tab failed.", zap.Int("index", i), zap.String("label", label), zap.Error(err))
			tabEntries = []schemas.ResponseEntry{e.builder.Error(err)}
		}
		entries = append(entries, tagEntries(tabEntries, label)...)
	}
	return entries, nil
}

// runTab activates the i-th tab and runs the follow-ups. label is updated
// with the tab's text as soon as it is known.
func (e *Engine) runTab(ctx context.Context, spec schemas.ActionSpec, q schemas.Query, i int, label *string, ectx *ExecutionContext) ([]schemas.ResponseEntry, error) {
	tabs, err := e.session.FindAll(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to re-find tabs: %w", err)
	}
	if i >= len(tabs) {
		return nil, fmt.Errorf("tab %d no longer present: %w", i+1, schemas.ErrElementNotFound)
	}
	tab := tabs[i]

	if text, err := e.session.ReadText(ctx, tab); err == nil && strings.TrimSpace(text) != "" {
		*label = strings.TrimSpace(text)
	}
	if err := e.session.ScrollIntoView(ctx, tab); err != nil {
		e.logger.Debug("Scroll to tab failed.", zap.Error(err))
	}
	if err := e.session.Click(ctx, tab); err != nil {
		return nil, fmt.Errorf("failed to click tab %q: %w", *label, err)
	}
	return e.runFollowUps(ctx, spec.FollowUp, ectx)
}

// iterateURLs navigates to every generated URL and runs the follow-ups on
// each, tagging entries with the URL's header when one is declared.
func (e *Engine) iterateURLs(ctx context.Context, spec schemas.ActionSpec, ectx *ExecutionContext) ([]schemas.ResponseEntry, error) {
	urls, err := ExpandURLs(spec)
	if err != nil {
		return nil, &configError{err: err}
	}
	e.logger.Info("Iterating URLs.", zap.Int("count", len(urls)))

	var entries []schemas.ResponseEntry
	for i, u := range urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header := ""
		if i < len(spec.Headers) {
			header = spec.Headers[i]
		}

		var urlEntries []schemas.ResponseEntry
		if err := e.session.Navigate(ctx, u); err != nil {
			e.logger.Error("Navigation failed.", zap.String("url", u), zap.Error(err))
			urlEntries = []schemas.ResponseEntry{e.builder.Error(err)}
		} else {
			urlEntries, err = e.runFollowUps(ctx, spec.FollowUp, ectx)
			if err != nil {
				var cfgErr *configError
				if errors.As(err, &cfgErr) {
					return nil, err
				}
				urlEntries = []schemas.ResponseEntry{e.builder.Error(err)}
			}
		}
		entries = append(entries, tagEntries(urlEntries, header)...)
	}
	return entries, nil
}

// runFollowUps executes specs through Execute and flattens their entries.
func (e *Engine) runFollowUps(ctx context.Context, specs []schemas.ActionSpec, ectx *ExecutionContext) ([]schemas.ResponseEntry, error) {
	var entries []schemas.ResponseEntry
	for _, f := range specs {
		pkt, err := e.Execute(ctx, f, ectx)
		if err != nil {
			return nil, &configError{err: err}
		}
		entries = append(entries, pkt.Response...)
	}
	return entries, nil
}

// tagEntries prepends tag to each entry's titles. Entries are copied so the
// follow-up packets are left untouched.
func tagEntries(entries []schemas.ResponseEntry, tag string) []schemas.ResponseEntry {
	if tag == "" {
		return entries
	}
	out := make([]schemas.ResponseEntry, len(entries))
	for i, en := range entries {
		title := make([]string, 0, len(en.Title)+1)
		title = append(title, tag)
		title = append(title, en.Title...)
		en.Title = title
		out[i] = en
	}
	return out
}

// ExpandURLs returns the URL list of a url-iterate action: the explicit list
// when given, otherwise base_url combined with every element of the cross
// product of the list-valued params. Constant params are added to every URL.
func ExpandURLs(spec schemas.ActionSpec) ([]string, error) {
	if len(spec.URLs) > 0 {
		return append([]string(nil), spec.URLs...), nil
	}
	if spec.BaseURL == "" {
		return nil, fmt.Errorf("%w: url-iterate requires urls or base_url", schemas.ErrInvalidSpec)
	}
	base, err := url.Parse(spec.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base_url %q: %v", schemas.ErrInvalidSpec, spec.BaseURL, err)
	}

	combos := []url.Values{base.Query()}
	for _, p := range spec.Params {
		if len(p.Values) == 0 {
			return nil, fmt.Errorf("%w: param %q has no values", schemas.ErrInvalidSpec, p.Name)
		}
		next := make([]url.Values, 0, len(combos)*len(p.Values))
		for _, c := range combos {
			for _, v := range p.Values {
				cp := cloneValues(c)
				cp.Set(p.Name, v)
				next = append(next, cp)
			}
		}
		combos = next
	}

	urls := make([]string, 0, len(combos))
	for _, c := range combos {
		u := *base
		u.RawQuery = c.Encode()
		urls = append(urls, u.String())
	}
	return urls, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
