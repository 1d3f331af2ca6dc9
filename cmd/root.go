package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/foodscout/internal/config"
	"github.com/xkilldash9x/foodscout/internal/observability"
)

var cfgFile string

// newRootCmd builds the command tree around factory.
func newRootCmd(factory ComponentFactory) *cobra.Command {
	root := &cobra.Command{
		Use:           "foodscout",
		Short:         "foodscout searches delivery platforms from a real, signed-in browser.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			if err := config.Load(viper.GetViper()); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "foodscout"})
				return err
			}
			cfg := config.Get()
			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting foodscout", zap.String("version", Version))
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	root.AddCommand(newScrapeCmd(factory))
	root.AddCommand(newSessionCmd(factory))
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the CLI. ctx is cancelled on SIGINT/SIGTERM by main.
func Execute(ctx context.Context) error {
	err := newRootCmd(NewComponentFactory()).ExecuteContext(ctx)
	defer observability.Sync()
	if err != nil {
		// An interrupted run is not a failure worth a stack of logs.
		if !errors.Is(err, context.Canceled) {
			observability.GetLogger().Error("Command execution failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// initializeConfig reads the config file and FOODSCOUT_* environment variables.
func initializeConfig() error {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("FOODSCOUT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("sink.dsn", "FOODSCOUT_SINK_DSN", "FOODSCOUT_DATABASE_URL")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
