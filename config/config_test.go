package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	memcmd "github.com/datachainlab/ibc-relayer/chains/memchain/cmd"
	"github.com/datachainlab/ibc-relayer/chains/memchain/module"
	"github.com/datachainlab/ibc-relayer/config"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/datachainlab/ibc-relayer/otelcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transferPath() *core.Path {
	end := func(chainID string) *core.PathEnd {
		return &core.PathEnd{ChainID: chainID, PortID: "transfer", Order: "unordered", Version: "ics20-1"}
	}
	return &core.Path{Src: end("ibc0"), Dst: end("ibc1")}
}

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	c := config.DefaultConfig(filepath.Join(t.TempDir(), "config", "config.yaml"))
	for _, id := range []string{"ibc0", "ibc1"} {
		cc, err := memcmd.DefaultChainConfig(id)
		require.NoError(t, err)
		require.NoError(t, c.AddChain(cc))
	}
	require.NoError(t, c.AddPath("ab", transferPath()))
	return c
}

func TestSaveAndLoad(t *testing.T) {
	c := newConfig(t)
	c.Chains[1].Client.TrustingPeriod = time.Hour
	require.NoError(t, c.Save())

	info, err := os.Stat(c.ConfigPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := config.Load(c.ConfigPath)
	require.NoError(t, err)
	require.Equal(t, c.Global, loaded.Global)
	require.Equal(t, c.Paths, loaded.Paths)
	require.Len(t, loaded.Chains, 2)
	require.Equal(t, "ibc1", loaded.Chains[1].ChainID)
	require.Equal(t, time.Hour, loaded.Chains[1].Client.TrustingPeriod)
	require.Equal(t, "relayer", loaded.Chains[1].Settings["account"])
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"unknown global field": "global:\n  colour: blue\n",
		"chain without type":   "chains:\n- chain-id: ibc0\n  client:\n    trusting-period: 1h\n    trust-threshold: {numerator: 1, denominator: 3}\n",
		"duplicate chain": `chains:
- type: memory
  chain-id: ibc0
  client: {trusting-period: 1h, trust-threshold: {numerator: 1, denominator: 3}}
- type: memory
  chain-id: ibc0
  client: {trusting-period: 1h, trust-threshold: {numerator: 1, denominator: 3}}
`,
		"invalid path": "paths:\n  ab:\n    src: {chain-id: ibc0}\n    dst: {chain-id: ibc0}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
			_, err := config.Load(p)
			require.Error(t, err)
		})
	}
}

func TestAddChainRejectsDuplicate(t *testing.T) {
	c := newConfig(t)
	cc, err := memcmd.DefaultChainConfig("ibc0")
	require.NoError(t, err)
	require.ErrorContains(t, c.AddChain(cc), "already exists")
}

func TestUpdatePathConfig(t *testing.T) {
	c := newConfig(t)
	require.NoError(t, c.Save())

	require.NoError(t, c.UpdatePathConfig("ab", "ibc1", map[core.PathConfigKey]string{
		core.PathConfigClientID:     "mock-client-0",
		core.PathConfigConnectionID: "connection-0",
	}))
	require.ErrorIs(t, c.UpdatePathConfig("ba", "ibc1", nil), core.ErrInvalidPath)
	require.Error(t, c.UpdatePathConfig("ab", "ibc9", nil))

	loaded, err := config.Load(c.ConfigPath)
	require.NoError(t, err)
	p, err := loaded.Paths.Get("ab")
	require.NoError(t, err)
	require.Equal(t, core.ClientID("mock-client-0"), p.Dst.ClientID)
	require.Equal(t, core.ConnectionID("connection-0"), p.Dst.ConnectionID)
	require.Empty(t, p.Src.ClientID)
}

func TestSyncPathEndsConcurrently(t *testing.T) {
	c := newConfig(t)
	reversed := transferPath()
	reversed.Src, reversed.Dst = reversed.Dst, reversed.Src
	require.NoError(t, c.AddPath("ba", reversed))
	require.NoError(t, c.Save())
	require.NoError(t, c.InitChains([]config.ModuleI{module.Module{}}))
	c.InitCoreConfig()
	t.Cleanup(func() { core.SetCoreConfig(nil) })

	clientIDs := map[string]core.ClientID{"ab": "mock-client-0", "ba": "mock-client-1"}
	var wg sync.WaitGroup
	for name, id := range clientIDs {
		path, chains, err := c.PathChains(name)
		require.NoError(t, err)
		ep := &core.Endpoint{Chain: chains.Src, End: path.Src}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				// the same identifier is reported again by later submissions
				events := []core.ChainEvent{&core.EventGenerateClientIdentifier{ID: id}}
				if i == 0 {
					assert.NoError(t, core.SyncPathEndFromEvents(name, ep, events))
					continue
				}
				assert.NoError(t, c.UpdatePathConfig(name, ep.ChainID(), map[core.PathConfigKey]string{core.PathConfigClientID: string(id)}))
			}
		}()
	}
	wg.Wait()

	loaded, err := config.Load(c.ConfigPath)
	require.NoError(t, err)
	for name, id := range clientIDs {
		p, err := loaded.Paths.Get(name)
		require.NoError(t, err)
		require.Equal(t, id, p.Src.ClientID, name)
		require.Empty(t, p.Dst.ClientID, name)
	}
}

func TestInitChains(t *testing.T) {
	c := newConfig(t)
	c.Chains[0].Client.TrustingPeriod = 2 * time.Hour
	require.NoError(t, c.InitChains([]config.ModuleI{module.Module{}}))

	chain, err := c.GetChain("ibc0")
	require.NoError(t, err)
	_, err = otelcore.UnwrapChain(chain)
	require.NoError(t, err, "built chains are traced")
	_, err = c.GetChain("ibc2")
	require.Error(t, err)

	path, chains, err := c.PathChains("ab")
	require.NoError(t, err)
	require.Equal(t, "ibc0", path.Src.ChainID)
	require.Equal(t, "ibc0", chains.Src.ChainID())
	require.Equal(t, "ibc1", chains.Dst.ChainID())
	// the client on ibc1 tracks ibc0
	require.Equal(t, 2*time.Hour, chains.DstSettings.TrustingPeriod)
	require.Equal(t, config.DefaultClientConfig().TrustingPeriod, chains.SrcSettings.TrustingPeriod)

	c.Chains[1].Type = "tendermint"
	require.ErrorContains(t, c.InitChains([]config.ModuleI{module.Module{}}), "no module serves")
}

func TestServiceConfig(t *testing.T) {
	c := config.DefaultConfig("")
	require.Equal(t, core.DefaultServiceConfig(), c.ServiceConfig())

	c.Global.RelayInterval = time.Minute
	c.Global.Retry = core.RetryPolicy{}
	svc := c.ServiceConfig()
	require.Equal(t, time.Minute, svc.Interval)
	require.Equal(t, core.DefaultRetryPolicy(), svc.Retry)
}
