package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from ctx1, keeping its values (the CDP
// target), that is also canceled when ctx2 is done.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)

	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}

type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }

func (valueOnlyContext) Done() <-chan struct{} { return nil }

func (valueOnlyContext) Err() error { return nil }

// Detach returns a context that keeps the values of ctx but ignores its
// cancellation. Cleanup that must outlive a canceled site run uses it.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
