package runner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/executor"
)

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, spec schemas.ActionSpec, ectx *executor.ExecutionContext) (schemas.ResultPacket, error) {
	args := m.Called(ctx, spec, ectx)
	return args.Get(0).(schemas.ResultPacket), args.Error(1)
}

func seconds(v float64) *float64 { return &v }

func withValue(v string) any {
	return mock.MatchedBy(func(s schemas.ActionSpec) bool { return s.Value == v })
}

func TestRunBlock_OrderPresetsAndJitter(t *testing.T) {
	exec := new(mockExecutor)
	ectx := executor.NewExecutionContext("TEST", t.TempDir())

	var order []string
	record := func(args mock.Arguments) { order = append(order, args.Get(1).(schemas.ActionSpec).Value) }
	exec.On("Execute", mock.Anything, withValue("#cookie-accept"), ectx).Run(record).Return(schemas.ResultPacket{Action: schemas.ActionClick}, nil).Once()
	exec.On("Execute", mock.Anything, withValue("#rates"), ectx).Run(record).Return(schemas.ResultPacket{Action: schemas.ActionTable}, nil).Once()

	core, logs := observer.New(zap.WarnLevel)
	var pauses []time.Duration
	r := New(exec,
		Registry{"accept_cookies": {Action: schemas.ActionClick, Value: "#cookie-accept", Time: seconds(4)}},
		WithLogger(zap.New(core)),
		WithRandom(func() float64 { return 0.5 }),
		WithSleeper(func(_ context.Context, d time.Duration) error { pauses = append(pauses, d); return nil }),
	)

	packets, err := r.RunBlock(context.Background(), schemas.Block{
		{Preset: "accept_cookies"},
		{Preset: "no_such_preset"},
		{Action: &schemas.ActionSpec{Action: schemas.ActionTable, Value: "#rates"}},
	}, ectx)

	require.NoError(t, err)
	require.Len(t, packets, 2)
	assert.Equal(t, schemas.ActionClick, packets[0].Action)
	assert.Equal(t, schemas.ActionTable, packets[1].Action)
	assert.Equal(t, []string{"#cookie-accept", "#rates"}, order)
	// Half of a 4s ceiling, then half of the 2s default.
	assert.Equal(t, []time.Duration{2 * time.Second, time.Second}, pauses)
	assert.Equal(t, 1, logs.FilterMessage("Unknown preset, skipping step.").Len())
	exec.AssertExpectations(t)
}

func TestRunBlock_ConfigErrorAborts(t *testing.T) {
	exec := new(mockExecutor)
	ectx := executor.NewExecutionContext("TEST", t.TempDir())
	exec.On("Execute", mock.Anything, withValue("#a"), ectx).Return(schemas.ResultPacket{Action: schemas.ActionClick}, nil).Once()
	exec.On("Execute", mock.Anything, withValue("#b"), ectx).Return(schemas.ResultPacket{}, fmt.Errorf("%w: unknown wait condition", schemas.ErrInvalidSpec)).Once()

	r := New(exec, nil, WithSleeper(func(context.Context, time.Duration) error { return nil }))

	packets, err := r.RunBlocks(context.Background(), []schemas.Block{
		{{Action: &schemas.ActionSpec{Action: schemas.ActionClick, Value: "#a"}}, {Action: &schemas.ActionSpec{Action: schemas.ActionClick, Value: "#b"}}},
		{{Action: &schemas.ActionSpec{Action: schemas.ActionClick, Value: "#never"}}},
	}, ectx)

	require.Error(t, err)
	assert.True(t, errors.Is(err, schemas.ErrInvalidSpec))
	assert.Contains(t, err.Error(), "block 0")
	assert.Len(t, packets, 1)
	exec.AssertExpectations(t)
}

func TestRunBlock_Cancelled(t *testing.T) {
	exec := new(mockExecutor)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(exec, nil)
	packets, err := r.RunBlock(ctx, schemas.Block{{Action: &schemas.ActionSpec{Action: schemas.ActionClick}}}, executor.NewExecutionContext("TEST", t.TempDir()))

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, packets)
	exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestJitter(t *testing.T) {
	r := New(nil, nil, WithRandom(func() float64 { return 0.75 }), WithMaxJitter(time.Second))

	assert.Equal(t, 750*time.Millisecond, r.Jitter(schemas.ActionSpec{Time: seconds(10)}))
	assert.Equal(t, time.Duration(0), r.Jitter(schemas.ActionSpec{Time: seconds(0)}))
	assert.Equal(t, 375*time.Millisecond, r.Jitter(schemas.ActionSpec{Time: seconds(0.5)}))

	uncapped := New(nil, nil, WithRandom(func() float64 { return 0.5 }))
	assert.Equal(t, 5*time.Second, uncapped.Jitter(schemas.ActionSpec{Time: seconds(10)}))
}

func TestMerge(t *testing.T) {
	global := map[string]schemas.ActionSpec{"a": {Value: "global-a"}, "b": {Value: "global-b"}}
	site := map[string]schemas.ActionSpec{"b": {Value: "site-b"}}

	reg := Merge(global, site)

	a, ok := reg.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "global-a", a.Value)
	b, _ := reg.Lookup("b")
	assert.Equal(t, "site-b", b.Value)
	_, ok = reg.Lookup("c")
	assert.False(t, ok)
}
