package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	memcmd "github.com/datachainlab/ibc-relayer/chains/memchain/cmd"
	"github.com/datachainlab/ibc-relayer/chains/memchain/module"
	"github.com/datachainlab/ibc-relayer/config"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/stretchr/testify/require"
)

func newMemoryConfig(t *testing.T) *config.Config {
	t.Helper()
	c := config.DefaultConfig(filepath.Join(t.TempDir(), "config.yaml"))
	for _, id := range []string{"ibc0", "ibc1"} {
		cc, err := memcmd.DefaultChainConfig(id)
		require.NoError(t, err)
		cc.Settings["block-time"] = "10ms"
		require.NoError(t, c.AddChain(cc))
	}
	end := func(chainID string) *core.PathEnd {
		return &core.PathEnd{ChainID: chainID, PortID: "transfer", Order: "unordered", Version: "ics20-1"}
	}
	require.NoError(t, c.AddPath("ab", &core.Path{Src: end("ibc0"), Dst: end("ibc1")}))
	require.NoError(t, c.InitChains([]config.ModuleI{module.Module{}}))
	require.NoError(t, c.Save())
	return c
}

func TestStartServiceLinksAndPersistsPath(t *testing.T) {
	c := newMemoryConfig(t)
	c.InitCoreConfig()
	t.Cleanup(func() { core.SetCoreConfig(nil) })

	conf := core.DefaultServiceConfig()
	conf.Interval = 10 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- startService(ctx, c, nil, conf, "") }()

	dst, err := c.GetChain("ibc1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		qctx, err := core.LatestQueryContext(ctx, dst)
		if err != nil {
			return false
		}
		ch, err := dst.QueryChannel(qctx, "transfer", "channel-0")
		return err == nil && ch.State == core.StageOpen
	}, 20*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	loaded, err := config.Load(c.ConfigPath)
	require.NoError(t, err)
	p, err := loaded.Paths.Get("ab")
	require.NoError(t, err)
	require.Equal(t, core.ChannelID("channel-0"), p.Dst.ChannelID)
	require.NotEmpty(t, p.Src.ClientID)
	require.NotEmpty(t, p.Src.ConnectionID)
}

func TestStartServiceRejectsUnknownPath(t *testing.T) {
	c := newMemoryConfig(t)
	err := startService(context.Background(), c, []string{"nope"}, core.DefaultServiceConfig(), "")
	require.ErrorIs(t, err, core.ErrInvalidPath)
}
