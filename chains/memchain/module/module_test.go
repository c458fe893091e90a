package module_test

import (
	"context"
	"testing"

	"github.com/datachainlab/ibc-relayer/chains/memchain"
	memcmd "github.com/datachainlab/ibc-relayer/chains/memchain/cmd"
	"github.com/datachainlab/ibc-relayer/chains/memchain/module"
	"github.com/stretchr/testify/require"
)

func TestBuildChain(t *testing.T) {
	cc, err := memcmd.DefaultChainConfig("ibc-3")
	require.NoError(t, err)
	cc.Settings["account"] = "operator"
	cc.Settings["genesis"] = []interface{}{
		map[interface{}]interface{}{"address": "operator", "coins": "5stake"},
	}

	chain, err := module.Module{}.BuildChain(cc)
	require.NoError(t, err)
	require.Equal(t, "ibc-3", chain.ChainID())
	require.Equal(t, "operator", chain.Address())
	mc, ok := chain.(*memchain.Chain)
	require.True(t, ok)
	require.Equal(t, uint64(3), mc.Config().Revision())

	h, err := chain.LatestHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(3), h.RevisionNumber)
}

func TestBuildChainRejectsUnknownSettings(t *testing.T) {
	cc, err := memcmd.DefaultChainConfig("ibc0")
	require.NoError(t, err)
	cc.Settings["rpc-addr"] = "localhost:26657"
	_, err = module.Module{}.BuildChain(cc)
	require.ErrorContains(t, err, "invalid memory settings")
}
