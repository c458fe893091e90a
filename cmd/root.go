package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/cosmos/cosmos-sdk/client/flags"
	"github.com/datachainlab/ibc-relayer/config"
	"github.com/datachainlab/ibc-relayer/internal/telemetry"
	"github.com/datachainlab/ibc-relayer/log"
	"github.com/datachainlab/ibc-relayer/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"
)

const (
	appName    = "rly"
	envPrefix  = "IBC_RELAYER"
	configFile = "config/config.yaml"
)

var defaultHome = os.ExpandEnv("$HOME/.ibc-relayer")

// Execute builds the command tree with the given chain modules and runs it until it
// completes or the process receives SIGINT or SIGTERM.
func Execute(modules ...config.ModuleI) error {
	cobra.EnableCommandSorting = false

	ctx := &config.Context{Modules: modules}
	rootCmd := &cobra.Command{
		Use:          appName,
		Short:        "This application relays data between configured IBC enabled chains",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String(flags.FlagHome, defaultHome, "set home directory")
	rootCmd.PersistentFlags().String(flagLogLevel, "", "override the configured log level")
	rootCmd.PersistentFlags().Bool(flagEnableTelemetry, false, "send logs to the OpenTelemetry logs exporter")
	rootCmd.PersistentFlags().Bool(flagUpdateConfig, true, "write identifiers assigned during a handshake back to the config file")
	for _, name := range []string{flags.FlagHome, flagLogLevel, flagEnableTelemetry, flagUpdateConfig} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			return err
		}
	}
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	var shutdownTelemetry func(context.Context) error
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		// reads `homeDir/config/config.yaml` into `ctx.Config` before each command
		if err := initConfig(ctx); err != nil {
			return err
		}
		shutdown, err := telemetry.Setup(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to set up telemetry: %w", err)
		}
		shutdownTelemetry = shutdown
		return metrics.InitializeMetrics(cmd.Context(), metrics.ExporterNull{})
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, _ []string) error {
		var err error
		if shutdownTelemetry != nil {
			err = shutdownTelemetry(context.Background())
		}
		return errors.Join(err, metrics.ShutdownMetrics(context.Background()))
	}

	rootCmd.AddCommand(
		configCmd(ctx),
		chainsCmd(ctx),
		pathsCmd(ctx),
		flags.LineBreak,
		transactionCmd(ctx),
		queryCmd(ctx),
		serviceCmd(ctx),
		flags.LineBreak,
		modulesCmd(ctx),
	)
	for _, m := range modules {
		if cmd := m.GetCmd(ctx); cmd != nil {
			rootCmd.AddCommand(cmd)
		}
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(sigCtx)
}

func configPath() string {
	return filepath.Join(viper.GetString(flags.FlagHome), configFile)
}

// initConfig loads the config file, or the default config when there is none yet,
// initializes the logger and builds the configured chains.
func initConfig(ctx *config.Context) error {
	cfgPath := configPath()
	if _, err := os.Stat(cfgPath); err == nil {
		c, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		ctx.Config = c
	} else if os.IsNotExist(err) {
		ctx.Config = config.DefaultConfig(cfgPath)
	} else {
		return err
	}

	logConf := ctx.Config.Global.Logger
	if lvl := viper.GetString(flagLogLevel); lvl != "" {
		logConf.Level = lvl
	}
	if err := log.InitLogger(logConf.Level, logConf.Format, logConf.Output, viper.GetBool(flagEnableTelemetry)); err != nil {
		return err
	}

	if err := ctx.Config.InitChains(ctx.Modules); err != nil {
		return err
	}
	if viper.GetBool(flagUpdateConfig) {
		ctx.Config.InitCoreConfig()
	}
	return nil
}

func noCommand(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}
