package core_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	transfertypes "github.com/cosmos/ibc-go/v8/modules/apps/transfer/types"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/stretchr/testify/require"
)

const (
	eventually = 30 * time.Second
	poll       = 10 * time.Millisecond
)

func pathChains(src, dst core.ChainHandle) core.PathChains {
	return core.PathChains{
		Src:         src,
		Dst:         dst,
		SrcSettings: testClientSettings(),
		DstSettings: testClientSettings(),
	}
}

func escrowAddress(port core.PortID, channel core.ChannelID) string {
	return transfertypes.GetEscrowAddress(string(port), string(channel)).String()
}

func TestIBCDenom(t *testing.T) {
	hash := sha256.Sum256([]byte("transfer/channel-7/samoleans"))
	require.Equal(t, "ibc/"+strings.ToUpper(hex.EncodeToString(hash[:])), core.IBCDenom("transfer", "channel-7", "samoleans"))
}

// The supervisor links two fresh chains and relays a transfer and its acknowledgement.
func TestSupervisorTransfersSamoleans(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	reporter := newHealthRecorder()
	sup := core.NewSupervisor(testServiceConfig(), reporter)
	_, err := sup.AddPath(pathName, newTransferPath(), pathChains(env.a, env.b))
	require.NoError(t, err)
	runSupervisor(t, sup)

	require.Eventually(t, func() bool {
		return channelInState(env.a, "transfer", "channel-0", core.StageOpen) &&
			channelInState(env.b, "transfer", "channel-0", core.StageOpen)
	}, eventually, poll)

	const amount = 1_000_000
	packet := sendAs(t, ctx, alice, env.a, env.b, linkedPathEnd(chainA), sdk.NewInt64Coin("samoleans", amount), 0)
	require.Equal(t, core.ChannelID("channel-0"), packet.DestinationChannel)

	hash := sha256.Sum256([]byte("transfer/channel-0/samoleans"))
	voucher := "ibc/" + strings.ToUpper(hex.EncodeToString(hash[:]))
	require.Equal(t, voucher, core.IBCDenom(packet.DestinationPort, packet.DestinationChannel, "samoleans"))

	require.Eventually(t, func() bool {
		return balanceIs(env.b, bob, voucher, amount)
	}, eventually, poll)
	// the acknowledgement clears the commitment on the source
	require.Eventually(t, func() bool { return !committed(env.a, packet) }, eventually, poll)

	require.Equal(t, int64(10_000_000-amount), balance(t, env.a, alice, "samoleans"))
	require.Equal(t, int64(amount), balance(t, env.a, escrowAddress("transfer", "channel-0"), "samoleans"))
	require.Greater(t, reporter.healthyReports(), 0)
}

// A packet whose timeout height passed on the destination is timed out on the source and
// never received on the destination.
func TestTimedOutPacketIsTimedOutOnSource(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	path := newTransferPath()
	src, dst := env.endpoints(t, path)
	env.link(t, ctx, src, dst)

	packet := sendAs(t, ctx, alice, env.a, env.b, linkedPathEnd(chainA), sdk.NewInt64Coin("samoleans", 1000), 2)
	require.Equal(t, int64(10_000_000-1000), balance(t, env.a, alice, "samoleans"))
	env.b.AdvanceBlocks(3)

	a := &recordingChain{Chain: env.a}
	b := &recordingChain{Chain: env.b}
	sup := core.NewSupervisor(testServiceConfig(), nil)
	_, err := sup.AddPath(pathName, path, pathChains(a, b))
	require.NoError(t, err)
	runSupervisor(t, sup)

	require.Eventually(t, func() bool { return !committed(env.a, packet) }, eventually, poll)
	require.Equal(t, []uint64{packet.Sequence}, a.timedOutSequences())
	require.Equal(t, int64(10_000_000), balance(t, env.a, alice, "samoleans"))
	require.Zero(t, balance(t, env.a, escrowAddress("transfer", "channel-0"), "samoleans"))

	env.b.AdvanceBlocks(2)
	require.Never(t, func() bool { return received(env.b, packet) }, 300*time.Millisecond, 20*time.Millisecond)
	require.Empty(t, b.receivedSequences())
	require.Zero(t, balance(t, env.b, bob, core.IBCDenom("transfer", "channel-0", "samoleans")))
}

func TestOrderedTimeoutClosesChannel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	path := newTransferPath()
	path.Src.Order, path.Dst.Order = "ordered", "ordered"
	src, dst := env.endpoints(t, path)
	env.link(t, ctx, src, dst)

	end := linkedPathEnd(chainA)
	end.Order = "ordered"
	packet := sendAs(t, ctx, alice, env.a, env.b, end, sdk.NewInt64Coin("samoleans", 1000), 2)
	env.b.AdvanceBlocks(3)

	sup := core.NewSupervisor(testServiceConfig(), nil)
	_, err := sup.AddPath(pathName, path, pathChains(env.a, env.b))
	require.NoError(t, err)
	runSupervisor(t, sup)

	require.Eventually(t, func() bool {
		return channelInState(env.a, "transfer", "channel-0", core.StageClosed)
	}, eventually, poll)
	require.False(t, committed(env.a, packet))
	require.False(t, received(env.b, packet))
	require.Equal(t, int64(10_000_000), balance(t, env.a, alice, "samoleans"))
}

// Send events delivered as 3, 1, 2 are submitted to the destination as 1, 2, 3.
func TestPacketsRelayedInSequenceOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	path := newTransferPath()
	src, dst := env.endpoints(t, path)
	env.link(t, ctx, src, dst)

	var packets []*core.Packet
	for i := 0; i < 3; i++ {
		packets = append(packets, sendAs(t, ctx, alice, env.a, env.b, linkedPathEnd(chainA), sdk.NewInt64Coin("samoleans", 10), 0))
	}

	feed := make(chan core.EventBatch, 1)
	a := &recordingChain{Chain: env.a, feed: feed, hideBacklog: true}
	b := &recordingChain{Chain: env.b}
	sup := core.NewSupervisor(testServiceConfig(), nil)
	_, err := sup.AddPath(pathName, path, pathChains(a, b))
	require.NoError(t, err)
	runSupervisor(t, sup)

	feed <- core.EventBatch{
		ChainID: chainA,
		Height:  env.a.AdvanceBlocks(0),
		Events: []core.ChainEvent{
			&core.EventSendPacket{Packet: *packets[2]},
			&core.EventSendPacket{Packet: *packets[0]},
			&core.EventSendPacket{Packet: *packets[1]},
		},
	}

	require.Eventually(t, func() bool { return len(b.receivedSequences()) == 3 }, eventually, poll)
	require.Equal(t, []uint64{1, 2, 3}, b.receivedSequences())
	require.True(t, balanceIs(env.b, bob, core.IBCDenom("transfer", "channel-0", "samoleans"), 30))
}

// A missed send event is recovered from chain state once a later sequence shows up.
func TestPacketGapIsFilledFromChain(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	path := newTransferPath()
	src, dst := env.endpoints(t, path)
	env.link(t, ctx, src, dst)

	var last *core.Packet
	for i := 0; i < 3; i++ {
		last = sendAs(t, ctx, alice, env.a, env.b, linkedPathEnd(chainA), sdk.NewInt64Coin("samoleans", 10), 0)
	}

	feed := make(chan core.EventBatch, 1)
	a := &recordingChain{Chain: env.a, feed: feed, hideBacklog: true}
	b := &recordingChain{Chain: env.b}
	sup := core.NewSupervisor(testServiceConfig(), nil)
	_, err := sup.AddPath(pathName, path, pathChains(a, b))
	require.NoError(t, err)
	runSupervisor(t, sup)

	feed <- core.EventBatch{ChainID: chainA, Height: env.a.AdvanceBlocks(0), Events: []core.ChainEvent{&core.EventSendPacket{Packet: *last}}}

	require.Eventually(t, func() bool { return len(b.receivedSequences()) == 3 }, eventually, poll)
	require.Equal(t, []uint64{1, 2, 3}, b.receivedSequences())
}

// Packets sent while the event feed was down are picked up after resubscribing.
func TestServiceRecoversFromBrokenFeed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	path := newTransferPath()
	src, dst := env.endpoints(t, path)
	env.link(t, ctx, src, dst)

	reporter := newHealthRecorder()
	sup := core.NewSupervisor(testServiceConfig(), reporter)
	_, err := sup.AddPath(pathName, path, pathChains(env.a, env.b))
	require.NoError(t, err)
	runSupervisor(t, sup)

	env.a.FailQueries(3)
	env.a.BreakSubscriptions()
	env.b.BreakSubscriptions()
	packet := sendAs(t, ctx, alice, env.a, env.b, linkedPathEnd(chainA), sdk.NewInt64Coin("samoleans", 500), 0)

	voucher := core.IBCDenom(packet.DestinationPort, packet.DestinationChannel, "samoleans")
	require.Eventually(t, func() bool { return balanceIs(env.b, bob, voucher, 500) }, eventually, poll)
	require.Eventually(t, func() bool { return !committed(env.a, packet) }, eventually, poll)
}

// A packet whose submissions fail past the retry budget stays at the head of the queue and
// is relayed by a later drain.
func TestPacketRelayedAfterRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	path := newTransferPath()
	src, dst := env.endpoints(t, path)
	env.link(t, ctx, src, dst)

	reporter := newHealthRecorder()
	sup := core.NewSupervisor(testServiceConfig(), reporter)
	_, err := sup.AddPath(pathName, path, pathChains(env.a, env.b))
	require.NoError(t, err)

	// more than two rounds of the five attempts
	env.b.FailSubmissions(12)
	runSupervisor(t, sup)
	packet := sendAs(t, ctx, alice, env.a, env.b, linkedPathEnd(chainA), sdk.NewInt64Coin("samoleans", 700), 0)

	require.Eventually(t, func() bool { return reporter.lastFailure(pathName) != nil }, eventually, poll)
	voucher := core.IBCDenom(packet.DestinationPort, packet.DestinationChannel, "samoleans")
	require.Eventually(t, func() bool { return balanceIs(env.b, bob, voucher, 700) }, eventually, poll)
	require.Eventually(t, func() bool { return !committed(env.a, packet) }, eventually, poll)
}

// Vouchers sent back from the destination release the escrowed tokens on the source.
func TestVoucherRelayedBackToSource(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	path := newTransferPath()
	src, dst := env.endpoints(t, path)
	env.link(t, ctx, src, dst)

	sup := core.NewSupervisor(testServiceConfig(), nil)
	_, err := sup.AddPath(pathName, path, pathChains(env.a, env.b))
	require.NoError(t, err)
	runSupervisor(t, sup)

	const amount = 2500
	out := sendAs(t, ctx, alice, env.a, env.b, linkedPathEnd(chainA), sdk.NewInt64Coin("samoleans", amount), 0)
	voucher := core.IBCDenom(out.DestinationPort, out.DestinationChannel, "samoleans")
	require.Eventually(t, func() bool { return balanceIs(env.b, bob, voucher, amount) }, eventually, poll)

	back := sendAs(t, ctx, bob, env.b, env.a, linkedPathEnd(chainB), sdk.NewInt64Coin(voucher, amount), 0)
	require.Equal(t, core.ChannelID("channel-0"), back.SourceChannel)
	require.Eventually(t, func() bool { return balanceIs(env.a, bob, "samoleans", amount) }, eventually, poll)
	require.Eventually(t, func() bool { return !committed(env.b, back) }, eventually, poll)
	require.Zero(t, balance(t, env.a, escrowAddress("transfer", "channel-0"), "samoleans"))
	require.Zero(t, balance(t, env.b, bob, voucher))
}

// A send event replayed after a restart for a packet the destination already received is
// skipped, and later packets are still relayed.
func TestReplayedSendEventIsNotReceivedTwice(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	path := newTransferPath()
	src, dst := env.endpoints(t, path)
	env.link(t, ctx, src, dst)

	first := sendAs(t, ctx, alice, env.a, env.b, linkedPathEnd(chainA), sdk.NewInt64Coin("samoleans", 10), 0)
	proven, err := core.ProveForCounterparty(ctx, src, dst, core.PacketCommitmentPath(first.SourcePort, first.SourceChannel, first.Sequence))
	require.NoError(t, err)
	res, err := dst.Submit(ctx, append(proven.Updates, &core.MsgRecvPacket{
		Packet:          *first,
		ProofCommitment: proven.Proof,
		ProofHeight:     proven.Height,
		Signer:          dst.Signer(),
	}))
	require.NoError(t, err)
	require.NoError(t, res.Err())

	// the backlog is hidden so that the replayed event lands at the head of the queue
	feed := make(chan core.EventBatch, 1)
	a := &recordingChain{Chain: env.a, feed: feed, hideBacklog: true}
	b := &recordingChain{Chain: env.b}
	sup := core.NewSupervisor(testServiceConfig(), nil)
	_, err = sup.AddPath(pathName, path, pathChains(a, b))
	require.NoError(t, err)
	runSupervisor(t, sup)

	feed <- core.EventBatch{ChainID: chainA, Height: env.a.AdvanceBlocks(0), Events: []core.ChainEvent{&core.EventSendPacket{Packet: *first}}}
	require.Never(t, func() bool { return len(b.receivedSequences()) > 0 }, 300*time.Millisecond, 20*time.Millisecond)

	second := sendAs(t, ctx, alice, env.a, env.b, linkedPathEnd(chainA), sdk.NewInt64Coin("samoleans", 10), 0)
	feed <- core.EventBatch{ChainID: chainA, Height: env.a.AdvanceBlocks(0), Events: []core.ChainEvent{
		&core.EventSendPacket{Packet: *first},
		&core.EventSendPacket{Packet: *second},
	}}
	require.Eventually(t, func() bool { return len(b.receivedSequences()) == 1 }, eventually, poll)
	require.Equal(t, []uint64{second.Sequence}, b.receivedSequences())
	require.True(t, balanceIs(env.b, bob, core.IBCDenom("transfer", "channel-0", "samoleans"), 20))
}

func TestFilteredPathRelaysNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	path := newTransferPath()
	src, dst := env.endpoints(t, path)
	env.link(t, ctx, src, dst)
	path.Filter = &core.PacketFilter{Policy: core.FilterDeny, List: [][2]string{{"transfer", "channel-*"}}}

	sup := core.NewSupervisor(testServiceConfig(), nil)
	_, err := sup.AddPath(pathName, path, pathChains(env.a, env.b))
	require.NoError(t, err)
	runSupervisor(t, sup)

	packet := sendAs(t, ctx, alice, env.a, env.b, linkedPathEnd(chainA), sdk.NewInt64Coin("samoleans", 10), 0)
	require.Never(t, func() bool { return received(env.b, packet) }, 300*time.Millisecond, 20*time.Millisecond)
}

func TestSupervisorAddPath(t *testing.T) {
	env := newTestEnv(t)
	sup := core.NewSupervisor(testServiceConfig(), nil)

	_, err := sup.AddPath(pathName, newTransferPath(), pathChains(env.b, env.a))
	require.ErrorIs(t, err, core.ErrInvalidPath)

	_, err = sup.AddPath(pathName, newTransferPath(), pathChains(env.a, env.b))
	require.NoError(t, err)
	_, err = sup.AddPath(pathName, newTransferPath(), pathChains(env.a, env.b))
	require.ErrorIs(t, err, core.ErrInvalidPath)
	require.Equal(t, []string{pathName}, sup.PathNames())
}

// Stopping the supervisor lets in-flight submissions finish and returns without error.
func TestSupervisorStops(t *testing.T) {
	env := newTestEnv(t)
	sup := core.NewSupervisor(testServiceConfig(), nil)
	a := &recordingChain{Chain: env.a, delay: 20 * time.Millisecond}
	b := &recordingChain{Chain: env.b, delay: 20 * time.Millisecond}
	_, err := sup.AddPath(pathName, newTransferPath(), pathChains(a, b))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.inflight > 0
	}, eventually, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	require.Zero(t, a.inflight)

	_, err = sup.AddPath("other", newTransferPath(), pathChains(env.a, env.b))
	require.Error(t, err)
}
