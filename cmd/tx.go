package cmd

import (
	"context"
	"strings"
	"time"

	"github.com/datachainlab/ibc-relayer/config"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/spf13/cobra"
)

// transactionCmd represents the tx command
func transactionCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "IBC Transaction Commands",
		Long: strings.TrimSpace(`Commands to create IBC transactions on configured chains.
		Most of these commands take a '[path]' argument. Make sure:
	1. Chains are properly configured to relay over by using the 'rly chains list' command
	2. Path is properly configured to relay over by using the 'rly paths list' command`),
		RunE: noCommand,
	}

	cmd.AddCommand(
		createClientsCmd(ctx),
		updateClientsCmd(ctx),
		createConnectionCmd(ctx),
		createChannelCmd(ctx),
		linkCmd(ctx),
		closeChannelCmd(ctx),
		xfersend(ctx),
	)

	return cmd
}

// withEndpoints runs fn with endpoints of the named path and stops their submitters afterwards.
func withEndpoints(ctx *config.Context, pathName string, fn func(src, dst *core.Endpoint) error) error {
	_, src, dst, err := ctx.Config.Endpoints(pathName)
	if err != nil {
		return err
	}
	defer src.Submitter.Stop()
	defer dst.Submitter.Stop()
	return fn(src, dst)
}

func createClientsCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients [path-name]",
		Short: "create a clients between two configured chains with a configured path",
		Long: "Creates a working ibc client for chain configured on each end of the" +
			" path by querying headers from each chain and then sending the corresponding create-client messages",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEndpoints(ctx, args[0], func(src, dst *core.Endpoint) error {
				return core.CreateClients(cmd.Context(), args[0], src, dst)
			})
		},
	}
	return cmd
}

func updateClientsCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update-clients [path-name]",
		Short: "update the clients of a configured path to the latest headers of their counterparties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEndpoints(ctx, args[0], func(src, dst *core.Endpoint) error {
				return core.UpdateClients(cmd.Context(), src, dst)
			})
		},
	}
	return cmd
}

func createConnectionCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connection [path-name]",
		Short: "create a connection between two configured chains with a configured path",
		Long: strings.TrimSpace(`This command is meant to be used to repair or create
		a connection between two chains with a configured path in the config file`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := getTimeout(cmd, ctx.Config.Global.Timeout)
			if err != nil {
				return err
			}
			return withEndpoints(ctx, args[0], func(src, dst *core.Endpoint) error {
				return core.CreateConnection(cmd.Context(), args[0], src, dst, to)
			})
		},
	}

	return timeoutFlag(cmd)
}

func createChannelCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel [path-name]",
		Short: "create a channel between two configured chains with a configured path",
		Long: strings.TrimSpace(`This command is meant to be used to repair or
		create a channel between two chains with a configured path in the config file`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := getTimeout(cmd, ctx.Config.Global.Timeout)
			if err != nil {
				return err
			}
			return withEndpoints(ctx, args[0], func(src, dst *core.Endpoint) error {
				return core.CreateChannel(cmd.Context(), args[0], src, dst, to)
			})
		},
	}

	return timeoutFlag(cmd)
}

func linkCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link [path-name]",
		Short: "create clients, a connection and a channel between two configured chains",
		Long: strings.TrimSpace(`Runs the clients, connection and channel commands in sequence.
		Each step picks up from the state found on chain, so an interrupted link can be rerun`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := getTimeout(cmd, ctx.Config.Global.Timeout)
			if err != nil {
				return err
			}
			return withEndpoints(ctx, args[0], func(src, dst *core.Endpoint) error {
				return link(cmd.Context(), args[0], src, dst, to)
			})
		},
	}

	return timeoutFlag(cmd)
}

func link(ctx context.Context, pathName string, src, dst *core.Endpoint, interval time.Duration) error {
	if err := core.CreateClients(ctx, pathName, src, dst); err != nil {
		return err
	}
	if err := core.CreateConnection(ctx, pathName, src, dst, interval); err != nil {
		return err
	}
	if !src.End.HasChannel() {
		return nil
	}
	return core.CreateChannel(ctx, pathName, src, dst, interval)
}

func closeChannelCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel-close [path-name]",
		Short: "close the channel of a configured path on both ends",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := getTimeout(cmd, ctx.Config.Global.Timeout)
			if err != nil {
				return err
			}
			return withEndpoints(ctx, args[0], func(src, dst *core.Endpoint) error {
				return core.CloseChannel(cmd.Context(), args[0], src, dst, to)
			})
		},
	}

	return timeoutFlag(cmd)
}
