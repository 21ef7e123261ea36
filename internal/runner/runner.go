// Package runner executes the blocks of a site script in order, resolving
// preset references and pausing for a random interval before each action.
package runner

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/executor"
)

// Executor runs one action against a site's session.
type Executor interface {
	Execute(ctx context.Context, spec schemas.ActionSpec, ectx *executor.ExecutionContext) (schemas.ResultPacket, error)
}

// Registry maps preset names to actions.
type Registry map[string]schemas.ActionSpec

// Merge layers registries; a later layer overrides a name set by an earlier
// one.
func Merge(layers ...map[string]schemas.ActionSpec) Registry {
	out := make(Registry)
	for _, l := range layers {
		for name, spec := range l {
			out[name] = spec
		}
	}
	return out
}

// Lookup returns the preset registered under name.
func (r Registry) Lookup(name string) (schemas.ActionSpec, bool) {
	spec, ok := r[name]
	return spec, ok
}

// Runner runs blocks for one site. It is not safe for concurrent use.
type Runner struct {
	exec      Executor
	presets   Registry
	sleep     executor.Sleeper
	random    func() float64
	maxJitter time.Duration
	logger    *zap.Logger
}

type Option func(r *Runner)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithSleeper replaces the pause used for jitter.
func WithSleeper(sleep executor.Sleeper) Option {
	return func(r *Runner) {
		r.sleep = sleep
	}
}

// WithRandom replaces the source of uniform values in [0, 1).
func WithRandom(random func() float64) Option {
	return func(r *Runner) {
		r.random = random
	}
}

// WithMaxJitter caps every pause at max. Zero leaves pauses uncapped.
func WithMaxJitter(max time.Duration) Option {
	return func(r *Runner) {
		r.maxJitter = max
	}
}

// New creates a Runner that executes through exec and resolves presets from
// presets.
func New(exec Executor, presets Registry, opts ...Option) *Runner {
	r := &Runner{
		exec:    exec,
		presets: presets,
		sleep:   executor.SleepContext,
		random:  rand.Float64,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("runner")
	return r
}

// RunBlocks runs every block in order and concatenates their packets. A
// configuration error stops the site's run.
func (r *Runner) RunBlocks(ctx context.Context, blocks []schemas.Block, ectx *executor.ExecutionContext) ([]schemas.ResultPacket, error) {
	var packets []schemas.ResultPacket
	for i, block := range blocks {
		r.logger.Info("Running block.", zap.String("site", ectx.Site), zap.Int("block", i))
		got, err := r.RunBlock(ctx, block, ectx)
		packets = append(packets, got...)
		if err != nil {
			return packets, fmt.Errorf("block %d: %w", i, err)
		}
	}
	return packets, nil
}

// RunBlock runs the steps of one block strictly in order. Unknown presets
// are logged and skipped. Packets produced before an error are returned with
// it.
func (r *Runner) RunBlock(ctx context.Context, steps schemas.Block, ectx *executor.ExecutionContext) ([]schemas.ResultPacket, error) {
	packets := make([]schemas.ResultPacket, 0, len(steps))
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return packets, err
		}

		spec, ok := r.resolve(step)
		if !ok {
			r.logger.Warn("Unknown preset, skipping step.", zap.String("site", ectx.Site), zap.String("preset", step.Preset), zap.Int("step", i))
			continue
		}

		if err := r.sleep(ctx, r.Jitter(spec)); err != nil {
			return packets, err
		}

		pkt, err := r.exec.Execute(ctx, spec, ectx)
		if err != nil {
			return packets, fmt.Errorf("step %d (%s): %w", i, spec.Action, err)
		}
		packets = append(packets, pkt)
	}
	return packets, nil
}

func (r *Runner) resolve(step schemas.Step) (schemas.ActionSpec, bool) {
	if step.Action != nil {
		return *step.Action, true
	}
	return r.presets.Lookup(step.Preset)
}

// Jitter draws the pause before spec from U[0, ceiling), where the ceiling
// is the action's own time bound capped by the runner's maximum.
func (r *Runner) Jitter(spec schemas.ActionSpec) time.Duration {
	ceiling := spec.JitterCeiling()
	if r.maxJitter > 0 && ceiling > r.maxJitter {
		ceiling = r.maxJitter
	}
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(r.random() * float64(ceiling))
}
