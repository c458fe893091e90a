package cmd

import (
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"
	transfertypes "github.com/cosmos/ibc-go/v8/modules/apps/transfer/types"
	"github.com/datachainlab/ibc-relayer/config"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/spf13/cobra"
)

func xfersend(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer [path-name] [src-chain-id] [dst-chain-id] [amount] [dst-addr]",
		Short: "Initiate a transfer from one chain to another",
		Long: "Sends the first step to transfer tokens in an IBC transfer." +
			" The created packet must be relayed to another chain",
		Args: cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			toHeightOffset, err := cmd.Flags().GetUint64(flagTimeoutHeightOffset)
			if err != nil {
				return err
			}
			toTimeOffset, err := cmd.Flags().GetDuration(flagTimeoutTimeOffset)
			if err != nil {
				return err
			}
			if toHeightOffset > 0 && toTimeOffset > 0 {
				return fmt.Errorf("cannot set both --timeout-height-offset and --timeout-time-offset, choose one")
			}

			amount, err := sdk.ParseCoinNormalized(args[3])
			if err != nil {
				return err
			}
			// a denom given with its trace, as in transfer/channel-0/samoleans, is sent as its voucher
			denom := transfertypes.ParseDenomTrace(amount.Denom)
			if denom.Path != "" {
				amount.Denom = denom.IBCDenom()
			}

			return withEndpoints(ctx, args[0], func(src, dst *core.Endpoint) error {
				switch {
				case src.ChainID() == args[1] && dst.ChainID() == args[2]:
				case dst.ChainID() == args[1] && src.ChainID() == args[2]:
					src, dst = dst, src
				default:
					return fmt.Errorf("path %s does not connect %s to %s", args[0], args[1], args[2])
				}
				p, err := core.SendTransfer(cmd.Context(), src, dst, amount, args[4], toHeightOffset, toTimeOffset)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sent packet %d on %s/%s\n", p.Sequence, p.SourcePort, p.SourceChannel)
				return nil
			})
		},
	}
	return timeoutFlags(cmd)
}
