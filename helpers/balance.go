package helpers

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/datachainlab/ibc-relayer/log"
)

// QueryBalance returns the balance of address in denom at the chain's latest height.
func QueryBalance(ctx context.Context, chain core.ChainHandle, address, denom string) (sdk.Coin, error) {
	qctx, err := core.LatestQueryContext(ctx, chain)
	if err != nil {
		return sdk.Coin{}, err
	}
	return chain.QueryBalance(qctx, address, denom)
}

// WaitForBalance polls until address holds exactly amount of denom, giving up once policy's
// attempts are exhausted. It returns the last balance seen.
func WaitForBalance(ctx context.Context, chain core.ChainHandle, address, denom string, amount sdkmath.Int, policy core.RetryPolicy) (sdk.Coin, error) {
	logger := log.GetLogger().WithChain(chain.ChainID()).WithModule("helpers")
	var last sdk.Coin
	err := policy.Do(ctx, func() error {
		coin, err := QueryBalance(ctx, chain, address, denom)
		if err != nil {
			return err
		}
		last = coin
		if !coin.Amount.Equal(amount) {
			return fmt.Errorf("balance of %s is %s, waiting for %s%s", address, coin, amount, denom)
		}
		return nil
	}, func(n uint, err error) {
		logger.DebugContext(ctx, "waiting for balance", "attempt", n+1, "reason", err.Error())
	})
	return last, err
}
