package cmd

import (
	"context"
	"fmt"

	"github.com/datachainlab/ibc-relayer/config"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/datachainlab/ibc-relayer/coreutil"
	"github.com/datachainlab/ibc-relayer/log"
	"github.com/datachainlab/ibc-relayer/metrics"
	"github.com/datachainlab/ibc-relayer/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func serviceCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Relay Service Commands",
		Long:  "Commands to manage the relay service",
		RunE:  noCommand,
	}
	cmd.AddCommand(
		startCmd(ctx),
	)
	return cmd
}

// blockProducer is implemented by chains that run inside the relayer process.
type blockProducer interface {
	ProduceBlocks(ctx context.Context)
}

func startCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start [path-name]...",
		Short: "relay packets on the given paths, or on every configured path",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := metrics.ShutdownMetrics(cmd.Context()); err != nil {
				return fmt.Errorf("failed to shutdown the metrics subsystem with null exporter: %v", err)
			}
			if err := metrics.InitializeMetrics(cmd.Context(), metrics.ExporterProm{Addr: viper.GetString(flagPrometheusAddr)}); err != nil {
				return fmt.Errorf("failed to re-initialize the metrics subsystem with prometheus exporter: %v", err)
			}

			conf := ctx.Config.ServiceConfig()
			if interval := viper.GetDuration(flagRelayInterval); interval > 0 {
				conf.Interval = interval
			}
			return startService(cmd.Context(), ctx.Config, args, conf, viper.GetString(flagHealthAddr))
		},
	}
	return serviceFlags(cmd)
}

// startService supervises the given paths, or all configured paths if none is given, until ctx is done.
func startService(ctx context.Context, c *config.Config, pathNames []string, conf core.ServiceConfig, healthAddr string) error {
	logger := log.GetLogger().WithModule("cmd.service")
	if len(pathNames) == 0 {
		pathNames = c.Paths.Names()
	}
	if len(pathNames) == 0 {
		return fmt.Errorf("no path is configured")
	}
	health := server.NewHealthServer(pathNames...)
	sv := core.NewSupervisor(conf, health)
	for _, name := range pathNames {
		path, chains, err := c.PathChains(name)
		if err != nil {
			return err
		}
		if _, err := sv.AddPath(name, path, chains); err != nil {
			return err
		}
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, chain := range c.GetChains() {
		if bp, err := coreutil.UnwrapChain[blockProducer](chain); err == nil {
			logger.InfoContext(ctx, "producing blocks of in-process chain", "chain_id", chain.ChainID())
			eg.Go(func() error { bp.ProduceBlocks(ctx); return nil })
		}
	}
	if healthAddr != "" {
		eg.Go(func() error { return health.ListenAndServe(ctx, healthAddr) })
	}
	eg.Go(func() error { return sv.Run(ctx) })
	return eg.Wait()
}
