package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/datachainlab/ibc-relayer/chains/memchain"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/stretchr/testify/require"
)

const (
	chainA   = "ibc0"
	chainB   = "ibc1"
	alice    = "alice"
	bob      = "bob"
	pathName = "ibc01"
)

// testEnv is a pair of in-process chains sharing one clock.
type testEnv struct {
	clock *memchain.ManualClock
	a, b  *memchain.Chain
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	genesis := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := memchain.NewManualClock(genesis)

	build := func(chainID string) *memchain.Chain {
		cfg := memchain.DefaultConfig(chainID)
		cfg.GenesisTime = genesis
		cfg.Genesis = []memchain.Balance{
			{Address: cfg.Account, Coins: "10000000samoleans"},
			{Address: alice, Coins: "10000000samoleans"},
		}
		c, err := memchain.New(cfg, clock)
		require.NoError(t, err)
		return c
	}
	return &testEnv{clock: clock, a: build(chainA), b: build(chainB)}
}

func testClientSettings() core.ClientSettings {
	return core.ClientSettings{
		TrustingPeriod:  24 * time.Hour,
		UnbondingPeriod: 48 * time.Hour,
		MaxClockDrift:   10 * time.Second,
		TrustThreshold:  core.DefaultTrustThreshold,
	}
}

func testServiceConfig() core.ServiceConfig {
	return core.ServiceConfig{
		Interval:         20 * time.Millisecond,
		ResubscribeDelay: 10 * time.Millisecond,
		Retry: core.RetryPolicy{
			Attempts: 5,
			Delay:    5 * time.Millisecond,
			MaxDelay: 50 * time.Millisecond,
		},
	}
}

func newTransferPath() *core.Path {
	end := func(chainID string) *core.PathEnd {
		return &core.PathEnd{
			ChainID: chainID,
			PortID:  "transfer",
			Order:   "unordered",
			Version: "ics20-1",
		}
	}
	return &core.Path{Src: end(chainA), Dst: end(chainB)}
}

// linkedPathEnd is the end of the first client, connection and channel created on a fresh chain.
func linkedPathEnd(chainID string) *core.PathEnd {
	return &core.PathEnd{
		ChainID:      chainID,
		ClientID:     "mock-client-0",
		ConnectionID: "connection-0",
		ChannelID:    "channel-0",
		PortID:       "transfer",
		Order:        "unordered",
		Version:      "ics20-1",
	}
}

func newEndpoint(t *testing.T, chain core.ChainHandle, end *core.PathEnd) *core.Endpoint {
	t.Helper()
	ep := core.NewEndpoint(chain, end, nil, testClientSettings())
	t.Cleanup(ep.Submitter.Stop)
	return ep
}

func (e *testEnv) endpoints(t *testing.T, path *core.Path) (src, dst *core.Endpoint) {
	return newEndpoint(t, e.a, path.Src), newEndpoint(t, e.b, path.Dst)
}

// link runs the whole handshake between the path's ends.
func (e *testEnv) link(t *testing.T, ctx context.Context, src, dst *core.Endpoint) {
	t.Helper()
	require.NoError(t, core.CreateClients(ctx, pathName, src, dst))
	require.NoError(t, core.CreateConnection(ctx, pathName, src, dst, time.Millisecond))
	require.NoError(t, core.CreateChannel(ctx, pathName, src, dst, time.Millisecond))
}

func latest(t *testing.T, chain core.ChainHandle) core.QueryContext {
	t.Helper()
	qctx, err := core.LatestQueryContext(context.Background(), chain)
	require.NoError(t, err)
	return qctx
}

func balance(t *testing.T, chain core.ChainHandle, address, denom string) int64 {
	t.Helper()
	coin, err := chain.QueryBalance(latest(t, chain), address, denom)
	require.NoError(t, err)
	return coin.Amount.Int64()
}

// The helpers below never fail the test so that they can be polled from require.Eventually.

func channelInState(chain core.ChainHandle, port core.PortID, channel core.ChannelID, stage core.HandshakeStage) bool {
	qctx, err := core.LatestQueryContext(context.Background(), chain)
	if err != nil {
		return false
	}
	ch, err := chain.QueryChannel(qctx, port, channel)
	return err == nil && ch.State == stage
}

func balanceIs(chain core.ChainHandle, address, denom string, amount int64) bool {
	qctx, err := core.LatestQueryContext(context.Background(), chain)
	if err != nil {
		return false
	}
	coin, err := chain.QueryBalance(qctx, address, denom)
	return err == nil && coin.Amount.Int64() == amount
}

func committed(chain core.ChainHandle, p *core.Packet) bool {
	qctx, err := core.LatestQueryContext(context.Background(), chain)
	if err != nil {
		return true
	}
	commitment, err := chain.QueryPacketCommitment(qctx, p.SourcePort, p.SourceChannel, p.Sequence)
	return err != nil || commitment != nil
}

func received(chain core.ChainHandle, p *core.Packet) bool {
	qctx, err := core.LatestQueryContext(context.Background(), chain)
	if err != nil {
		return false
	}
	ok, err := chain.QueryPacketReceipt(qctx, p.DestinationPort, p.DestinationChannel, p.Sequence)
	return err == nil && ok
}

// accountChain signs with a different account than the relayer's.
type accountChain struct {
	*memchain.Chain
	address string
}

func (c *accountChain) Address() string {
	return c.address
}

// sendAs sends amount from account on the path's source chain to bob on the destination.
func sendAs(t *testing.T, ctx context.Context, account string, from *memchain.Chain, to core.ChainHandle, end *core.PathEnd, amount sdk.Coin, heightOffset uint64) *core.Packet {
	t.Helper()
	sender := &accountChain{Chain: from, address: account}
	src := newEndpoint(t, sender, end)
	dst := newEndpoint(t, to, &core.PathEnd{ChainID: to.ChainID()})
	packet, err := core.SendTransfer(ctx, src, dst, amount, bob, heightOffset, 0)
	require.NoError(t, err)
	return packet
}

// recordingChain records what the relayer submits. It can replace the event feed and hide
// the packets sent before the relayer started.
type recordingChain struct {
	*memchain.Chain
	delay       time.Duration
	feed        chan core.EventBatch
	hideBacklog bool

	mu          sync.Mutex
	inflight    int
	maxInflight int
	recvs       []uint64
	timeouts    []uint64
}

func (c *recordingChain) Submit(ctx context.Context, msgs []core.Msg) (*core.TxResult, error) {
	c.mu.Lock()
	c.inflight++
	c.maxInflight = max(c.maxInflight, c.inflight)
	c.mu.Unlock()

	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	res, err := c.Chain.Submit(ctx, msgs)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if err == nil && res.Success() {
		for _, m := range msgs {
			switch m := m.(type) {
			case *core.MsgRecvPacket:
				c.recvs = append(c.recvs, m.Packet.Sequence)
			case *core.MsgTimeout:
				c.timeouts = append(c.timeouts, m.Packet.Sequence)
			}
		}
	}
	return res, err
}

func (c *recordingChain) Subscribe(ctx context.Context, filter core.EventFilter) (<-chan core.EventBatch, error) {
	if c.feed != nil {
		return c.feed, nil
	}
	return c.Chain.Subscribe(ctx, filter)
}

func (c *recordingChain) QueryPacketCommitments(qctx core.QueryContext, portID core.PortID, channelID core.ChannelID) ([]uint64, error) {
	if c.hideBacklog {
		return nil, nil
	}
	return c.Chain.QueryPacketCommitments(qctx, portID, channelID)
}

func (c *recordingChain) QueryNextSequenceSend(qctx core.QueryContext, portID core.PortID, channelID core.ChannelID) (uint64, error) {
	if c.hideBacklog {
		return 1, nil
	}
	return c.Chain.QueryNextSequenceSend(qctx, portID, channelID)
}

func (c *recordingChain) receivedSequences() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.recvs...)
}

func (c *recordingChain) timedOutSequences() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.timeouts...)
}

// healthRecorder is a HealthReporter that keeps the last failure of each path.
type healthRecorder struct {
	mu       sync.Mutex
	healthy  int
	failures map[string]error
}

func newHealthRecorder() *healthRecorder {
	return &healthRecorder{failures: make(map[string]error)}
}

func (r *healthRecorder) ReportHealthy(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.healthy++
}

func (r *healthRecorder) ReportFailure(path string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[path] = err
}

func (r *healthRecorder) lastFailure(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[path]
}

func (r *healthRecorder) healthyReports() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.healthy
}

// runSupervisor runs sup until the test ends and fails the test if Run returns an error.
func runSupervisor(t *testing.T, sup *core.Supervisor) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("supervisor did not stop")
		}
	})
	return cancel
}
