package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/stretchr/testify/require"
)

func TestRunDemo(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conf := core.DefaultServiceConfig()
	conf.Interval = 20 * time.Millisecond
	conf.ResubscribeDelay = 10 * time.Millisecond
	var out bytes.Buffer
	require.NoError(t, runDemo(ctx, conf, sdk.NewInt64Coin("samoleans", 42), "bob", 10*time.Millisecond, &out))

	voucher := core.IBCDenom("transfer", "channel-0", "samoleans")
	require.Contains(t, out.String(), "linked ")
	require.Contains(t, out.String(), "bob holds 42"+voucher+" on ibc1")
}

func TestDefaultChainConfig(t *testing.T) {
	cc, err := DefaultChainConfig("ibc7")
	require.NoError(t, err)
	require.NoError(t, cc.Validate())
	require.Equal(t, "memory", cc.Type)
	require.NotContains(t, cc.Settings, "chain-id")
	require.Equal(t, "relayer", cc.Settings["account"])
}
