package executor

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/C0sCube/selenium-scrape/api/schemas"
)

const (
	scrollHeightScript = `document.body ? document.body.scrollHeight : 0`
	scrollBottomScript = `window.scrollTo(0, document.body ? document.body.scrollHeight : 0); true`
)

func (e *Engine) screenshot(ctx context.Context, spec schemas.ActionSpec, ectx *ExecutionContext) ([]schemas.ResponseEntry, error) {
	data, err := e.session.CaptureScreenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	path := filepath.Join(ectx.OutputDir, spec.ScreenshotName+".png")
	if err := e.writer.WriteBinary(path, data); err != nil {
		return nil, err
	}
	e.logger.Info("Saved screenshot.", zap.String("path", path))
	return []schemas.ResponseEntry{
		e.builder.BuildEntry(spec.ScreenshotName, nil, base64.StdEncoding.EncodeToString(data), schemas.ContentScreenshot),
	}, nil
}

// pdf scrolls to the bottom until the page height stops growing, so lazily
// loaded content is rendered, then prints the page.
func (e *Engine) pdf(ctx context.Context, spec schemas.ActionSpec, ectx *ExecutionContext) ([]schemas.ResponseEntry, error) {
	if err := e.settleScroll(ctx); err != nil {
		return nil, err
	}

	data, err := e.session.CapturePDF(ctx, schemas.PDFOptions{
		Landscape:       spec.Landscape,
		PrintBackground: spec.PrintBackground,
	})
	if err != nil {
		return nil, fmt.Errorf("print to pdf failed: %w", err)
	}
	path := filepath.Join(ectx.OutputDir, spec.PDFName+".pdf")
	if err := e.writer.WriteBinary(path, data); err != nil {
		return nil, err
	}
	e.logger.Info("Saved printed PDF.", zap.String("path", path), zap.Int("bytes", len(data)))
	return []schemas.ResponseEntry{
		e.builder.BuildEntry(spec.PDFName, nil, base64.StdEncoding.EncodeToString(data), schemas.ContentPDF),
	}, nil
}

func (e *Engine) settleScroll(ctx context.Context) error {
	var last float64
	if err := e.session.ExecuteScript(ctx, scrollHeightScript, &last); err != nil {
		return fmt.Errorf("failed to read page height: %w", err)
	}
	for i := 0; i < e.settings.PDFMaxScrolls; i++ {
		var ignored bool
		if err := e.session.ExecuteScript(ctx, scrollBottomScript, &ignored); err != nil {
			return fmt.Errorf("failed to scroll page: %w", err)
		}
		if err := e.sleep(ctx, e.settings.PDFSettleInterval); err != nil {
			return err
		}
		var height float64
		if err := e.session.ExecuteScript(ctx, scrollHeightScript, &height); err != nil {
			return fmt.Errorf("failed to read page height: %w", err)
		}
		if height == last {
			return nil
		}
		last = height
	}
	e.logger.Warn("Page height did not settle before printing.", zap.Int("scrolls", e.settings.PDFMaxScrolls))
	return nil
}
