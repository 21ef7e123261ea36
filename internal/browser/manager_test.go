package browser

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/config"
)

// Options are closures, so the tests count them instead of inspecting them.
func TestDefaultAllocatorOptions(t *testing.T) {
	base := len(DefaultAllocatorOptions(config.BrowserConfig{}))
	require.Greater(t, base, 0)

	t.Run("window size", func(t *testing.T) {
		opts := DefaultAllocatorOptions(config.BrowserConfig{WindowWidth: 1920, WindowHeight: 1080})
		assert.Len(t, opts, base+1)

		// Both dimensions are required.
		opts = DefaultAllocatorOptions(config.BrowserConfig{WindowWidth: 1920})
		assert.Len(t, opts, base)
	})

	t.Run("paths and profile", func(t *testing.T) {
		opts := DefaultAllocatorOptions(config.BrowserConfig{
			ExecPath:         "/usr/bin/chromium",
			UserDataDir:      "/tmp/profile",
			ProfileDirectory: "Default",
		})
		assert.Len(t, opts, base+3)
	})

	t.Run("custom args", func(t *testing.T) {
		opts := DefaultAllocatorOptions(config.BrowserConfig{Args: []string{"--custom-arg1", "--lang=en-GB"}})
		assert.Len(t, opts, base+2)
	})

	t.Run("launch timeout", func(t *testing.T) {
		opts := DefaultAllocatorOptions(config.BrowserConfig{LaunchTimeout: time.Minute})
		assert.Len(t, opts, base+1)
	})

	t.Run("no sandbox", func(t *testing.T) {
		opts := DefaultAllocatorOptions(config.BrowserConfig{NoSandbox: true})
		if runtime.GOOS == "linux" {
			assert.Len(t, opts, base+3)
		} else {
			assert.Len(t, opts, base)
		}
	})
}

func TestManager_ShutdownWithoutSessions(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(context.Background(), config.NewDefaultConfig(), zaptest.NewLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, m.Shutdown(ctx))
}

func TestManager_NewSessionCancelled(t *testing.T) {
	m := NewManager(context.Background(), config.NewDefaultConfig(), zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := m.NewSession(ctx, schemas.SessionOptions{Site: "PSB_1"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, s)

	shutdownCtx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	assert.NoError(t, m.Shutdown(shutdownCtx))
}
