package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	transfertypes "github.com/cosmos/ibc-go/v8/modules/apps/transfer/types"
	"github.com/datachainlab/ibc-relayer/chains/memchain"
	"github.com/datachainlab/ibc-relayer/config"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/datachainlab/ibc-relayer/helpers"
	"github.com/datachainlab/ibc-relayer/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const demoPathName = "demo"

func demoCmd(ctx *config.Context) *cobra.Command {
	const (
		flagAmount    = "amount"
		flagReceiver  = "receiver"
		flagBlockTime = "block-time"
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "link two memory chains and relay a transfer between them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amountStr, err := cmd.Flags().GetString(flagAmount)
			if err != nil {
				return err
			}
			amount, err := sdk.ParseCoinNormalized(amountStr)
			if err != nil {
				return err
			}
			receiver, err := cmd.Flags().GetString(flagReceiver)
			if err != nil {
				return err
			}
			blockTime, err := cmd.Flags().GetDuration(flagBlockTime)
			if err != nil {
				return err
			}
			conf := core.DefaultServiceConfig()
			if ctx.Config != nil {
				conf = ctx.Config.ServiceConfig()
			}
			// the demo path is not part of the config file
			core.SetCoreConfig(nil)
			return runDemo(cmd.Context(), conf, amount, receiver, blockTime, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String(flagAmount, "1000samoleans", "amount sent from ibc0 to ibc1")
	cmd.Flags().String(flagReceiver, "bob", "receiver on ibc1")
	cmd.Flags().Duration(flagBlockTime, 200*time.Millisecond, "block time of both chains")
	return cmd
}

func runDemo(ctx context.Context, conf core.ServiceConfig, amount sdk.Coin, receiver string, blockTime time.Duration, out io.Writer) error {
	logger := log.GetLogger().WithModule("memchain.demo")
	newChain := func(chainID string) (*memchain.Chain, error) {
		cfg := memchain.DefaultConfig(chainID)
		cfg.BlockTime = blockTime
		cfg.Genesis = []memchain.Balance{{Address: cfg.Account, Coins: amount.String()}}
		return memchain.New(cfg, memchain.SystemClock{})
	}
	a, err := newChain("ibc0")
	if err != nil {
		return err
	}
	b, err := newChain("ibc1")
	if err != nil {
		return err
	}

	end := func(chainID string) *core.PathEnd {
		return &core.PathEnd{ChainID: chainID, PortID: transfertypes.PortID, Order: "unordered", Version: transfertypes.Version}
	}
	path := &core.Path{Src: end(a.ChainID()), Dst: end(b.ChainID())}
	settings := core.ClientSettings{
		TrustingPeriod:  time.Hour,
		UnbondingPeriod: 2 * time.Hour,
		MaxClockDrift:   10 * time.Second,
		TrustThreshold:  core.DefaultTrustThreshold,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { a.ProduceBlocks(egCtx); return nil })
	eg.Go(func() error { b.ProduceBlocks(egCtx); return nil })

	// the packet is sent before the supervisor starts, which picks it up from chain state,
	// so that each account has a single submitter at any time
	p, err := setup(ctx, path, a, b, settings, amount, receiver, blockTime)
	if err != nil {
		cancel()
		_ = eg.Wait()
		return err
	}
	fmt.Fprintf(out, "linked %s\n", path)
	logger.InfoContext(ctx, "transfer sent", "sequence", p.Sequence)

	sv := core.NewSupervisor(conf, nil)
	if _, err := sv.AddPath(demoPathName, path, core.PathChains{Src: a, Dst: b, SrcSettings: settings, DstSettings: settings}); err != nil {
		cancel()
		_ = eg.Wait()
		return err
	}
	eg.Go(func() error { return sv.Run(egCtx) })

	voucher := core.IBCDenom(path.Dst.PortID, path.Dst.ChannelID, amount.Denom)
	policy := core.RetryPolicy{Attempts: 30, Delay: blockTime, MaxDelay: 2 * time.Second}
	coin, err := helpers.WaitForBalance(ctx, b, receiver, voucher, amount.Amount, policy)
	if err == nil {
		fmt.Fprintf(out, "%s holds %s on %s\n", receiver, coin, b.ChainID())
	}
	cancel()
	if werr := eg.Wait(); err == nil {
		err = werr
	}
	return err
}

// setup links the chains of path and sends amount from a's relayer account to receiver on b.
func setup(ctx context.Context, path *core.Path, a, b core.ChainHandle, settings core.ClientSettings, amount sdk.Coin, receiver string, interval time.Duration) (*core.Packet, error) {
	src := core.NewEndpoint(a, path.Src, nil, settings)
	dst := core.NewEndpoint(b, path.Dst, nil, settings)
	defer src.Submitter.Stop()
	defer dst.Submitter.Stop()
	if err := link(ctx, src, dst, interval); err != nil {
		return nil, err
	}
	return core.SendTransfer(ctx, src, dst, amount, receiver, 0, 0)
}

func link(ctx context.Context, src, dst *core.Endpoint, interval time.Duration) error {
	if err := core.CreateClients(ctx, demoPathName, src, dst); err != nil {
		return err
	}
	if err := core.CreateConnection(ctx, demoPathName, src, dst, interval); err != nil {
		return err
	}
	return core.CreateChannel(ctx, demoPathName, src, dst, interval)
}
