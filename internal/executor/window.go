package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// seedWindows records the session's base window the first time the context
// is used.
func (e *Engine) seedWindows(ctx context.Context, ectx *ExecutionContext) {
	if ectx.Depth() > 0 {
		return
	}
	handles, err := e.session.WindowHandles(ctx)
	if err != nil || len(handles) == 0 {
		e.logger.Debug("Could not read base window handle.", zap.Error(err))
		return
	}
	ectx.pushWindow(handles[0])
}

// awaitNewWindow waits for a handle that is not yet stacked, switches to it
// and pushes it.
func (e *Engine) awaitNewWindow(ctx context.Context, ectx *ExecutionContext, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		handles, err := e.session.WindowHandles(ctx)
		if err != nil {
			return fmt.Errorf("failed to list windows: %w", err)
		}
		for _, h := range handles {
			if ectx.stacked(h) {
				continue
			}
			if err := e.session.SwitchWindow(ctx, h); err != nil {
				return fmt.Errorf("failed to switch to new window: %w", err)
			}
			ectx.pushWindow(h)
			e.logger.Info("Switched to new window.", zap.String("handle", h), zap.Int("depth", ectx.Depth()))
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("no new window opened within %s", timeout)
		}
		if err := e.sleep(ctx, e.settings.PollInterval); err != nil {
			return err
		}
	}
}

// returnToBase closes the active window and reactivates the one below it.
// With a single stacked window it does nothing.
func (e *Engine) returnToBase(ctx context.Context, ectx *ExecutionContext) error {
	if ectx.Depth() <= 1 {
		e.logger.Debug("Already on base window.")
		return nil
	}
	if err := e.session.CloseWindow(ctx); err != nil {
		return fmt.Errorf("failed to close window: %w", err)
	}
	closed := ectx.popWindow()
	if err := e.session.SwitchWindow(ctx, ectx.ActiveWindow()); err != nil {
		return fmt.Errorf("failed to switch back to window %s: %w", ectx.ActiveWindow(), err)
	}
	e.logger.Info("Returned to previous window.", zap.String("closed", closed), zap.Int("depth", ectx.Depth()))
	return nil
}
