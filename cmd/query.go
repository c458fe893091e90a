package cmd

import (
	"context"
	"fmt"

	"github.com/cosmos/cosmos-sdk/client/flags"
	transfertypes "github.com/cosmos/ibc-go/v8/modules/apps/transfer/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	"github.com/datachainlab/ibc-relayer/config"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/datachainlab/ibc-relayer/helpers"
	"github.com/spf13/cobra"
)

// queryCmd represents the chain command
func queryCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "IBC Query Commands",
		Long:  "Commands to query IBC primitives, and other useful data on configured chains.",
		RunE:  noCommand,
	}

	cmd.AddCommand(
		queryBalanceCmd(ctx),
		queryUnrelayedPackets(ctx),
		queryUnrelayedAcknowledgements(ctx),
		flags.LineBreak,
		queryClientCmd(ctx),
		queryConnection(ctx),
		queryChannel(ctx),
	)

	return cmd
}

func heightFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().Uint64(flags.FlagHeight, 0, "Height to query at, the latest height if 0")
	return cmd
}

// pathEndpoint returns the endpoint of the named path on chainID.
func pathEndpoint(ctx *config.Context, pathName, chainID string) (*core.Endpoint, error) {
	path, chains, err := ctx.Config.PathChains(pathName)
	if err != nil {
		return nil, err
	}
	switch chainID {
	case path.Src.ChainID:
		return core.NewEndpoint(chains.Src, path.Src, nil, chains.SrcSettings), nil
	case path.Dst.ChainID:
		return core.NewEndpoint(chains.Dst, path.Dst, nil, chains.DstSettings), nil
	default:
		return nil, fmt.Errorf("path %s has no end on chain %s", pathName, chainID)
	}
}

func queryContext(cmd *cobra.Command, chain core.ChainHandle) (core.QueryContext, error) {
	height, err := cmd.Flags().GetUint64(flags.FlagHeight)
	if err != nil {
		return nil, err
	}
	latestHeight, err := chain.LatestHeight(cmd.Context())
	if err != nil {
		return nil, err
	}
	if height == 0 {
		return core.NewQueryContext(cmd.Context(), latestHeight), nil
	}
	return core.NewQueryContext(cmd.Context(), clienttypes.NewHeight(latestHeight.GetRevisionNumber(), height)), nil
}

// queryEnd runs fn against the end of the path on the given chain.
func queryEnd(ctx *config.Context, cmd *cobra.Command, pathName, chainID string, fn func(qctx core.QueryContext, ep *core.Endpoint) (interface{}, error)) error {
	ep, err := pathEndpoint(ctx, pathName, chainID)
	if err != nil {
		return err
	}
	defer ep.Submitter.Stop()
	qctx, err := queryContext(cmd, ep.Chain)
	if err != nil {
		return err
	}
	res, err := fn(qctx, ep)
	if err != nil {
		return err
	}
	return printOutput(cmd, res)
}

func queryClientCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client [path-name] [chain-id]",
		Short: "Query the state of a client in a given path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return queryEnd(ctx, cmd, args[0], args[1], func(qctx core.QueryContext, ep *core.Endpoint) (interface{}, error) {
				if ep.End.ClientID == "" {
					return nil, fmt.Errorf("path %s has no client on %s yet", args[0], args[1])
				}
				return ep.Chain.QueryClientState(qctx, ep.End.ClientID)
			})
		},
	}

	return heightFlag(yamlFlag(jsonFlag(cmd)))
}

func queryConnection(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connection [path-name] [chain-id]",
		Short: "Query the connection state for the given connection id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return queryEnd(ctx, cmd, args[0], args[1], func(qctx core.QueryContext, ep *core.Endpoint) (interface{}, error) {
				if ep.End.ConnectionID == "" {
					return nil, fmt.Errorf("path %s has no connection on %s yet", args[0], args[1])
				}
				return ep.Chain.QueryConnection(qctx, ep.End.ConnectionID)
			})
		},
	}

	return heightFlag(yamlFlag(jsonFlag(cmd)))
}

func queryChannel(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel [path-name] [chain-id]",
		Short: "Query the channel state for the given channel id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return queryEnd(ctx, cmd, args[0], args[1], func(qctx core.QueryContext, ep *core.Endpoint) (interface{}, error) {
				if ep.End.ChannelID == "" {
					return nil, fmt.Errorf("path %s has no channel on %s yet", args[0], args[1])
				}
				return ep.Chain.QueryChannel(qctx, ep.End.PortID, ep.End.ChannelID)
			})
		},
	}

	return heightFlag(yamlFlag(jsonFlag(cmd)))
}

func queryBalanceCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance [chain-id] [address] [denom]",
		Short: "Query the balance of an account in a denomination",
		Long: "Queries the balance of an account. With --ibc-denoms the denom is read as a trace," +
			" as in transfer/channel-0/samoleans, and its voucher denomination is queried",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := ctx.Config.GetChain(args[0])
			if err != nil {
				return err
			}

			showDenoms, err := cmd.Flags().GetBool(flagIBCDenoms)
			if err != nil {
				return err
			}
			denom := args[2]
			if showDenoms {
				denom = transfertypes.ParseDenomTrace(denom).IBCDenom()
			}

			coin, err := helpers.QueryBalance(cmd.Context(), chain, args[1], denom)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), coin.String())
			return nil
		},
	}
	return ibcDenomFlags(cmd)
}

func queryUnrelayedPackets(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unrelayed-packets [path]",
		Short: "Query for the packets that remain to be relayed on a given path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return queryPendingCmd(ctx, cmd, args[0], core.UnrelayedPackets)
		},
	}

	return cmd
}

func queryUnrelayedAcknowledgements(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unrelayed-acknowledgements [path]",
		Short: "Query for the acknowledgements that remain to be relayed on a given path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return queryPendingCmd(ctx, cmd, args[0], core.UnrelayedAcknowledgements)
		},
	}

	return cmd
}

func queryPendingCmd(ctx *config.Context, cmd *cobra.Command, pathName string, query func(context.Context, *core.Endpoint, *core.Endpoint) (*core.RelayPackets, error)) error {
	return withEndpoints(ctx, pathName, func(src, dst *core.Endpoint) error {
		sp, err := query(cmd.Context(), src, dst)
		if err != nil {
			return err
		}
		return printOutput(cmd, sp)
	})
}
