package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pyramid-ing/tmgkfl/internal/config"
	"github.com/pyramid-ing/tmgkfl/internal/observability"
	"github.com/pyramid-ing/tmgkfl/internal/store"
)

var (
	cfgFile string
	appCfg  *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "tmgkfl",
	Short:   "Threads engagement automation and scheduled posting.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(); err != nil {
			return err
		}

		cfg, err := config.NewConfigFromViper(viper.GetViper())
		if err != nil {
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "tmgkfl"})
			return err
		}
		appCfg = cfg

		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("starting tmgkfl", zap.String("version", Version))
		return nil
	},
}

// Execute runs the CLI.
func Execute() {
	defer observability.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// initializeConfig reads the config file and TMGKFL_* environment variables.
func initializeConfig() error {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TMGKFL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars apply.
	}
	return nil
}

// openStore opens the job database and mirrors the configured window
// preference into the stored settings row.
func openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(appCfg.Database.Path)
	if err != nil {
		return nil, err
	}

	settings, err := st.GetAppSettings(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if settings.ShowBrowserWindow != appCfg.Browser.ShowWindow {
		settings.ShowBrowserWindow = appCfg.Browser.ShowWindow
		if err := st.SetAppSettings(ctx, settings); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	return st, nil
}
