// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Network  NetworkConfig  `mapstructure:"network" yaml:"network"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`
	Sites    SitesConfig    `mapstructure:"sites" yaml:"sites"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color settings for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig configures optional run persistence.
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

// EngineConfig tunes the site orchestrator and the execution engine.
type EngineConfig struct {
	// Concurrency is the number of sites run in parallel, each with its own session.
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	SiteTimeout time.Duration `mapstructure:"site_timeout" yaml:"site_timeout"`
	SitePause   time.Duration `mapstructure:"site_pause" yaml:"site_pause"`
	// MaxJitter caps the per-action random pause regardless of the action's own ceiling.
	MaxJitter          time.Duration `mapstructure:"max_jitter" yaml:"max_jitter"`
	PDFSettleInterval  time.Duration `mapstructure:"pdf_settle_interval" yaml:"pdf_settle_interval"`
	PDFMaxScrolls      int           `mapstructure:"pdf_max_scrolls" yaml:"pdf_max_scrolls"`
	ManualPollInterval time.Duration `mapstructure:"manual_poll_interval" yaml:"manual_poll_interval"`
	LabelDepth         int           `mapstructure:"label_depth" yaml:"label_depth"`
}

// BrowserConfig configures the browser sessions.
type BrowserConfig struct {
	// Mode selects the session implementation: "chrome" or "static".
	Mode             string        `mapstructure:"mode" yaml:"mode"`
	Headless         bool          `mapstructure:"headless" yaml:"headless"`
	NoSandbox        bool          `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	DisableGPU       bool          `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	ExecPath         string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir      string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	ProfileDirectory string        `mapstructure:"profile_directory" yaml:"profile_directory"`
	Args             []string      `mapstructure:"args" yaml:"args"`
	WindowWidth      int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight     int           `mapstructure:"window_height" yaml:"window_height"`
	LaunchTimeout    time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
}

// NetworkConfig holds network-related settings.
type NetworkConfig struct {
	Timeout           time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	NavigationTimeout time.Duration     `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration     `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	Headers           map[string]string `mapstructure:"headers" yaml:"headers"`
	UserAgent         string            `mapstructure:"user_agent" yaml:"user_agent"`
	IgnoreTLSErrors   bool              `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	DownloadMaxBytes  int64             `mapstructure:"download_max_bytes" yaml:"download_max_bytes"`
	RequestsPerSecond float64           `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int               `mapstructure:"burst" yaml:"burst"`
}

// OutputConfig controls where extracted artifacts and run caches land.
type OutputConfig struct {
	RootDir  string `mapstructure:"root_dir" yaml:"root_dir"`
	DataDir  string `mapstructure:"data_dir" yaml:"data_dir"`
	CacheDir string `mapstructure:"cache_dir" yaml:"cache_dir"`
	Program  string `mapstructure:"program" yaml:"program"`
}

// SitesConfig points at the site catalogue.
type SitesConfig struct {
	File  string   `mapstructure:"file" yaml:"file"`
	Codes []string `mapstructure:"codes" yaml:"codes"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "siteextract")
	v.SetDefault("logger.log_file", "output/logs/siteextract.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Database --
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.url", "")

	// -- Engine --
	v.SetDefault("engine.concurrency", 1)
	v.SetDefault("engine.site_timeout", "20m")
	v.SetDefault("engine.site_pause", "3s")
	v.SetDefault("engine.max_jitter", "5s")
	v.SetDefault("engine.pdf_settle_interval", "2s")
	v.SetDefault("engine.pdf_max_scrolls", 50)
	v.SetDefault("engine.manual_poll_interval", "1s")
	v.SetDefault("engine.label_depth", 6)

	// -- Browser --
	v.SetDefault("browser.mode", "chrome")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.launch_timeout", "60s")

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.navigation_timeout", "90s")
	v.SetDefault("network.post_load_wait", "2s")
	v.SetDefault("network.ignore_tls_errors", false)
	v.SetDefault("network.download_max_bytes", 25*1024*1024)
	v.SetDefault("network.requests_per_second", 2.0)
	v.SetDefault("network.burst", 4)

	// -- Output --
	v.SetDefault("output.root_dir", "output")
	v.SetDefault("output.data_dir", "data")
	v.SetDefault("output.cache_dir", "cache")
	v.SetDefault("output.program", "siteextract")

	// -- Sites --
	v.SetDefault("sites.file", "sites.yaml")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("database.url", "SITEEXTRACT_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("error expanding paths: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading "~" in every user supplied path.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Output.RootDir, &c.Browser.UserDataDir, &c.Browser.ExecPath, &c.Sites.File, &c.Logger.LogFile} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Engine.Concurrency <= 0 {
		return fmt.Errorf("engine.concurrency must be a positive integer")
	}
	switch c.Browser.Mode {
	case "chrome", "static":
	default:
		return fmt.Errorf("browser.mode must be \"chrome\" or \"static\", got %q", c.Browser.Mode)
	}
	if c.Network.DownloadMaxBytes <= 0 {
		return fmt.Errorf("network.download_max_bytes must be positive")
	}
	if c.Network.RequestsPerSecond < 0 {
		return fmt.Errorf("network.requests_per_second cannot be negative")
	}
	if c.Engine.PDFMaxScrolls <= 0 {
		return fmt.Errorf("engine.pdf_max_scrolls must be a positive integer")
	}
	if c.Database.Enabled && c.Database.URL == "" {
		return fmt.Errorf("database.url is required when database.enabled is true")
	}
	if c.Output.RootDir == "" {
		return fmt.Errorf("output.root_dir is a required configuration field")
	}
	return nil
}
