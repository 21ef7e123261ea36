package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/C0sCube/selenium-scrape/internal/config"
	"github.com/C0sCube/selenium-scrape/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// envPrefix prefixes every environment override, e.g. SITEEXTRACT_ENGINE_CONCURRENCY.
const envPrefix = "SITEEXTRACT"

// dependencies are the outside world the commands touch. Tests replace them.
type dependencies struct {
	fs       afero.Fs
	stores   storeProvider
	sessions sessionProvider
	now      func() time.Time
}

func defaultDependencies() dependencies {
	return dependencies{
		fs:       afero.NewOsFs(),
		stores:   NewStoreProvider(),
		sessions: NewSessionProvider(),
		now:      time.Now,
	}
}

// NewRootCommand returns a fresh command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultDependencies(), viper.New())
}

func newRootCommand(deps dependencies, v *viper.Viper) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "siteextract",
		Short:         "siteextract scrapes configured websites and reports what changed between runs.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.SetDefaults(v)
			if err := initializeConfig(v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			// Reports go to stdout, so logs go to stderr.
			observability.Initialize(cfg.Logger, zapcore.Lock(os.Stderr))
			observability.GetLogger().Debug("Configuration loaded.", zap.String("version", Version), zap.String("config", v.ConfigFileUsed()))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd(deps, v))
	rootCmd.AddCommand(newCompareCmd(deps))
	rootCmd.AddCommand(newReportCmd(deps))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree with ctx and reports a failure on stderr.
func Execute(ctx context.Context) error {
	defer observability.Sync()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

// initializeConfig reads in the config file and ENV variables if set. A
// missing default config file is not an error.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// getConfigFromContext returns the configuration stored by the root command.
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not initialized")
	}
	return cfg, nil
}
