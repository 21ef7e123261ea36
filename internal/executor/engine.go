// Package executor interprets ActionSpecs against a browser session. Each
// call to Execute resolves the action's locator, runs exactly one behavior,
// applies window transitions and returns exactly one result packet.
package executor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/locator"
	"github.com/C0sCube/selenium-scrape/internal/packet"
)

// Engine executes actions for one site run. It holds no per-run state; that
// lives in the ExecutionContext passed to every call.
type Engine struct {
	session  schemas.Session
	writer   schemas.DocumentWriter
	fetcher  Fetcher
	builder  *packet.Builder
	sleep    Sleeper
	settings Settings
	logger   *zap.Logger
}

// New creates an Engine driving session and persisting through writer.
func New(session schemas.Session, writer schemas.DocumentWriter, opts ...Option) *Engine {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.builder == nil {
		o.builder = packet.New()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return &Engine{
		session:  session,
		writer:   writer,
		fetcher:  o.fetcher,
		builder:  o.builder,
		sleep:    o.sleep,
		settings: o.settings,
		logger:   o.logger.Named("executor"),
	}
}

// resolution is the outcome of the Resolve phase.
type resolution struct {
	// primary is the element the action resolved to; nil when the action
	// needs no locator or waited for an element to disappear.
	primary schemas.Element
	skip    string
}

// Execute runs one action. It returns an error only for configuration
// defects (an unknown wait condition or malformed parameters); every runtime
// failure is reported inside the packet.
func (e *Engine) Execute(ctx context.Context, spec schemas.ActionSpec, ectx *ExecutionContext) (schemas.ResultPacket, error) {
	spec = spec.WithDefaults()
	if err := spec.Validate(); err != nil {
		return schemas.ResultPacket{}, err
	}

	logger := e.logger.With(
		zap.String("site", ectx.Site),
		zap.String("action", string(spec.Action)),
		zap.String("value", spec.Value),
	)
	logger.Info("Performing action.")

	e.seedWindows(ctx, ectx)

	// 1. Resolve.
	res, err := e.resolve(ctx, spec)
	if err != nil {
		if errors.Is(err, locator.ErrUnsupportedCondition) {
			return schemas.ResultPacket{}, fmt.Errorf("%w: %w", schemas.ErrInvalidSpec, err)
		}
		logger.Error("Resolution failed.", zap.Error(err))
		return e.finish(ctx, spec, ectx, []schemas.ResponseEntry{e.builder.Error(err)}), nil
	}
	if res.skip != "" {
		logger.Warn("Element not resolved, skipping action.", zap.String("reason", res.skip))
		return e.finish(ctx, spec, ectx, []schemas.ResponseEntry{e.builder.Skip(res.skip)}), nil
	}

	// 2. Dispatch.
	entries, err := e.dispatch(ctx, spec, res.primary, ectx)
	if err != nil {
		var cfgErr *configError
		if errors.As(err, &cfgErr) {
			return schemas.ResultPacket{}, cfgErr.err
		}
		logger.Error("Action failed.", zap.Error(err))
		return e.finish(ctx, spec, ectx, []schemas.ResponseEntry{e.builder.Error(err)}), nil
	}

	// 3. Window transitions.
	if spec.ReturnToBase {
		if err := e.returnToBase(ctx, ectx); err != nil {
			logger.Error("Failed to return to base window.", zap.Error(err))
			entries = append(entries, e.builder.Error(err))
		}
	}

	// 4. Packaging.
	return e.finish(ctx, spec, ectx, entries), nil
}

// resolve waits for or finds the action's element.
func (e *Engine) resolve(ctx context.Context, spec schemas.ActionSpec) (resolution, error) {
	main := locator.Resolve(spec.By, spec.Value)

	if spec.WaitUntil != "" && spec.WaitValue != "" {
		pred, err := locator.ResolveWait(spec.WaitUntil, spec.WaitBy, spec.WaitValue)
		if err != nil {
			return resolution{}, err
		}
		el, err := e.session.Wait(ctx, pred, spec.TimeoutDuration())
		switch {
		case errors.Is(err, schemas.ErrWaitTimeout):
			return resolution{skip: packet.ReasonWaitTimeout}, nil
		case errors.Is(err, schemas.ErrElementNotFound):
			return resolution{skip: packet.ReasonNotFound}, nil
		case err != nil:
			return resolution{}, err
		}
		if spec.Value == "" {
			return resolution{}, nil
		}
		if el != nil && pred.Query == main {
			return resolution{primary: el}, nil
		}
	}

	if spec.Value == "" {
		if spec.Action.NeedsLocator() {
			return resolution{skip: packet.ReasonNotFound}, nil
		}
		return resolution{}, nil
	}

	el, err := e.session.Find(ctx, main)
	if err != nil {
		if errors.Is(err, schemas.ErrElementNotFound) {
			return resolution{skip: packet.ReasonNotFound}, nil
		}
		return resolution{}, err
	}
	return resolution{primary: el}, nil
}

// configError carries a configuration defect raised by a nested execution
// out through dispatch unchanged.
type configError struct{ err error }

func (c *configError) Error() string { return c.err.Error() }
func (c *configError) Unwrap() error { return c.err }

// dispatch runs the behavior of spec.Action. Panics are converted to errors.
func (e *Engine) dispatch(ctx context.Context, spec schemas.ActionSpec, primary schemas.Element, ectx *ExecutionContext) (entries []schemas.ResponseEntry, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Recovered from panic in behavior.", zap.String("action", string(spec.Action)), zap.Any("panic", r))
			entries = nil
			err = fmt.Errorf("panic in %s behavior: %v", spec.Action, r)
		}
	}()

	switch spec.Action {
	case schemas.ActionNone:
		e.logger.Info("Checked presence of element.", zap.String("by", string(spec.By)), zap.String("value", spec.Value))
		return nil, nil
	case schemas.ActionClick:
		return nil, e.click(ctx, spec, primary, ectx)
	case schemas.ActionScrape:
		return e.scrape(ctx, spec)
	case schemas.ActionTable:
		return e.table(ctx, spec, primary, ectx)
	case schemas.ActionHTML:
		return e.html(ctx, spec, primary, ectx)
	case schemas.ActionScreenshot:
		return e.screenshot(ctx, spec, ectx)
	case schemas.ActionPDF:
		return e.pdf(ctx, spec, ectx)
	case schemas.ActionRedirect:
		e.redirect(ctx, spec)
		return nil, nil
	case schemas.ActionDownload:
		return e.download(ctx, spec, primary, ectx)
	case schemas.ActionHTTP:
		return e.httpFetch(ctx, spec)
	case schemas.ActionManual:
		return e.manual(ctx, spec, primary, ectx)
	case schemas.ActionTabIterate:
		return e.iterateTabs(ctx, spec, ectx)
	case schemas.ActionURLIterate:
		return e.iterateURLs(ctx, spec, ectx)
	case schemas.ActionUnknown:
		e.logger.Warn("Unknown action kind, nothing to do.")
		return nil, nil
	default:
		e.logger.Warn("Unhandled action kind, nothing to do.", zap.String("action", string(spec.Action)))
		return nil, nil
	}
}

// finish snapshots the page URL and builds the packet.
func (e *Engine) finish(ctx context.Context, spec schemas.ActionSpec, ectx *ExecutionContext, entries []schemas.ResponseEntry) schemas.ResultPacket {
	if u, err := e.session.CurrentURL(ctx); err == nil {
		ectx.currentURL = u
	}
	return e.builder.BuildPacket(spec.Action, entries, ectx.currentURL, spec.LogMessage)
}

// elements returns every match of the main locator when spec.Multiple is
// set, otherwise the resolved element alone.
func (e *Engine) elements(ctx context.Context, spec schemas.ActionSpec, primary schemas.Element) ([]schemas.Element, error) {
	if !spec.Multiple {
		if primary == nil {
			return nil, nil
		}
		return []schemas.Element{primary}, nil
	}
	els, err := e.session.FindAll(ctx, locator.Resolve(spec.By, spec.Value))
	if err != nil {
		return nil, fmt.Errorf("failed to find elements: %w", err)
	}
	return els, nil
}
