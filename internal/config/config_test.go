// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "siteextract", cfg.Logger.ServiceName)
	assert.Equal(t, 1, cfg.Engine.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Engine.MaxJitter)
	assert.Equal(t, 2*time.Second, cfg.Engine.PDFSettleInterval)
	assert.Equal(t, "chrome", cfg.Browser.Mode)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 30*time.Second, cfg.Network.Timeout)
	assert.Equal(t, int64(25*1024*1024), cfg.Network.DownloadMaxBytes)
	assert.Equal(t, "output", cfg.Output.RootDir)
	assert.Equal(t, "sites.yaml", cfg.Sites.File)
	assert.False(t, cfg.Database.Enabled)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate(), "defaults must be valid")

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"zero concurrency", func(c *Config) { c.Engine.Concurrency = 0 }, "engine.concurrency must be a positive integer"},
		{"unknown browser mode", func(c *Config) { c.Browser.Mode = "firefox" }, "browser.mode must be"},
		{"no download ceiling", func(c *Config) { c.Network.DownloadMaxBytes = 0 }, "network.download_max_bytes must be positive"},
		{"negative rate", func(c *Config) { c.Network.RequestsPerSecond = -1 }, "network.requests_per_second cannot be negative"},
		{"no scroll budget", func(c *Config) { c.Engine.PDFMaxScrolls = 0 }, "engine.pdf_max_scrolls"},
		{"db without url", func(c *Config) { c.Database.Enabled = true }, "database.url is required"},
		{"no output root", func(c *Config) { c.Output.RootDir = "" }, "output.root_dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *NewDefaultConfig()
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// -- Viper Integration Tests --

func TestNewConfigFromViper(t *testing.T) {
	yamlConfig := []byte(`
logger:
  level: debug
engine:
  concurrency: 3
  max_jitter: 1500ms
browser:
  mode: static
network:
  headers:
    Accept-Language: en-IN
sites:
  file: configs/banks.yaml
  codes: [PSB_1, PSB_5]
`)
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 3, cfg.Engine.Concurrency)
	assert.Equal(t, 1500*time.Millisecond, cfg.Engine.MaxJitter)
	assert.Equal(t, "static", cfg.Browser.Mode)
	assert.Equal(t, "en-IN", cfg.Network.Headers["accept-language"], "viper lower-cases map keys")
	assert.Equal(t, "configs/banks.yaml", cfg.Sites.File)
	assert.Equal(t, []string{"PSB_1", "PSB_5"}, cfg.Sites.Codes)
	// Untouched sections keep their defaults.
	assert.Equal(t, 90*time.Second, cfg.Network.NavigationTimeout)
}

func TestNewConfigFromViper_Invalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("browser.mode", "lynx")

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
