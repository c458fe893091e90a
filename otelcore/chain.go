package otelcore

import (
	"context"
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/datachainlab/ibc-relayer/otelcore/semconv"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Chain traces every call made to the wrapped chain handle.
type Chain struct {
	core.ChainHandle
	tracer trace.Tracer
}

var _ core.ChainHandle = (*Chain)(nil)

func NewChain(chain core.ChainHandle, tracer trace.Tracer) core.ChainHandle {
	return &Chain{
		ChainHandle: chain,
		tracer:      tracer,
	}
}

func UnwrapChain(chain core.ChainHandle) (core.ChainHandle, error) {
	c, ok := chain.(*Chain)
	if !ok {
		return nil, fmt.Errorf("chain type is not %T, but %T", &Chain{}, chain)
	}
	return c.ChainHandle, nil
}

func (c *Chain) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name,
		core.WithChainAttributes(c.ChainID()),
		trace.WithAttributes(attrs...),
	)
}

func (c *Chain) startQuery(ctx core.QueryContext, name string, attrs ...attribute.KeyValue) (core.QueryContext, trace.Span) {
	return core.StartTraceWithQueryContext(c.tracer, ctx, name,
		core.WithChainAttributes(c.ChainID()),
		trace.WithAttributes(attrs...),
	)
}

func end(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func channelAttrs(portID core.PortID, channelID core.ChannelID) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.PortIDKey.String(string(portID)),
		semconv.ChannelIDKey.String(string(channelID)),
	}
}

func packetAttrs(portID core.PortID, channelID core.ChannelID, seq uint64) []attribute.KeyValue {
	return append(channelAttrs(portID, channelID), semconv.SequenceKey.Int64(int64(seq)))
}

func (c *Chain) LatestHeight(ctx context.Context) (clienttypes.Height, error) {
	ctx, span := c.start(ctx, "Chain.LatestHeight")
	h, err := c.ChainHandle.LatestHeight(ctx)
	if err == nil {
		span.SetAttributes(core.HeightAttributes(h)...)
	}
	end(span, err)
	return h, err
}

func (c *Chain) QueryLatestHeader(ctx context.Context) (*core.Header, error) {
	ctx, span := c.start(ctx, "Chain.QueryLatestHeader")
	h, err := c.ChainHandle.QueryLatestHeader(ctx)
	end(span, err)
	return h, err
}

func (c *Chain) QueryHeader(ctx context.Context, height clienttypes.Height) (*core.Header, error) {
	ctx, span := c.start(ctx, "Chain.QueryHeader", core.HeightAttributes(height)...)
	h, err := c.ChainHandle.QueryHeader(ctx, height)
	end(span, err)
	return h, err
}

func (c *Chain) QueryClientState(ctx core.QueryContext, clientID core.ClientID) (*core.ClientState, error) {
	ctx, span := c.startQuery(ctx, "Chain.QueryClientState", semconv.ClientIDKey.String(string(clientID)))
	cs, err := c.ChainHandle.QueryClientState(ctx, clientID)
	end(span, err)
	return cs, err
}

func (c *Chain) QueryConsensusState(ctx core.QueryContext, clientID core.ClientID, height clienttypes.Height) (*core.ConsensusState, error) {
	ctx, span := c.startQuery(ctx, "Chain.QueryConsensusState", semconv.ClientIDKey.String(string(clientID)))
	cs, err := c.ChainHandle.QueryConsensusState(ctx, clientID, height)
	end(span, err)
	return cs, err
}

func (c *Chain) QueryConnection(ctx core.QueryContext, connectionID core.ConnectionID) (*core.ConnectionEnd, error) {
	ctx, span := c.startQuery(ctx, "Chain.QueryConnection", semconv.ConnectionIDKey.String(string(connectionID)))
	conn, err := c.ChainHandle.QueryConnection(ctx, connectionID)
	end(span, err)
	return conn, err
}

func (c *Chain) QueryChannel(ctx core.QueryContext, portID core.PortID, channelID core.ChannelID) (*core.ChannelEnd, error) {
	ctx, span := c.startQuery(ctx, "Chain.QueryChannel", channelAttrs(portID, channelID)...)
	ch, err := c.ChainHandle.QueryChannel(ctx, portID, channelID)
	end(span, err)
	return ch, err
}

func (c *Chain) QueryPacketCommitment(ctx core.QueryContext, portID core.PortID, channelID core.ChannelID, seq uint64) ([]byte, error) {
	ctx, span := c.startQuery(ctx, "Chain.QueryPacketCommitment", packetAttrs(portID, channelID, seq)...)
	bz, err := c.ChainHandle.QueryPacketCommitment(ctx, portID, channelID, seq)
	end(span, err)
	return bz, err
}

func (c *Chain) QueryPacketCommitments(ctx core.QueryContext, portID core.PortID, channelID core.ChannelID) ([]uint64, error) {
	ctx, span := c.startQuery(ctx, "Chain.QueryPacketCommitments", channelAttrs(portID, channelID)...)
	seqs, err := c.ChainHandle.QueryPacketCommitments(ctx, portID, channelID)
	end(span, err)
	return seqs, err
}

func (c *Chain) QueryPacketReceipt(ctx core.QueryContext, portID core.PortID, channelID core.ChannelID, seq uint64) (bool, error) {
	ctx, span := c.startQuery(ctx, "Chain.QueryPacketReceipt", packetAttrs(portID, channelID, seq)...)
	ok, err := c.ChainHandle.QueryPacketReceipt(ctx, portID, channelID, seq)
	end(span, err)
	return ok, err
}

func (c *Chain) QueryPacketAcknowledgement(ctx core.QueryContext, portID core.PortID, channelID core.ChannelID, seq uint64) ([]byte, error) {
	ctx, span := c.startQuery(ctx, "Chain.QueryPacketAcknowledgement", packetAttrs(portID, channelID, seq)...)
	ack, err := c.ChainHandle.QueryPacketAcknowledgement(ctx, portID, channelID, seq)
	end(span, err)
	return ack, err
}

func (c *Chain) QueryNextSequenceSend(ctx core.QueryContext, portID core.PortID, channelID core.ChannelID) (uint64, error) {
	ctx, span := c.startQuery(ctx, "Chain.QueryNextSequenceSend", channelAttrs(portID, channelID)...)
	seq, err := c.ChainHandle.QueryNextSequenceSend(ctx, portID, channelID)
	end(span, err)
	return seq, err
}

func (c *Chain) QueryNextSequenceReceive(ctx core.QueryContext, portID core.PortID, channelID core.ChannelID) (uint64, error) {
	ctx, span := c.startQuery(ctx, "Chain.QueryNextSequenceReceive", channelAttrs(portID, channelID)...)
	seq, err := c.ChainHandle.QueryNextSequenceReceive(ctx, portID, channelID)
	end(span, err)
	return seq, err
}

func (c *Chain) QuerySentPackets(ctx core.QueryContext, portID core.PortID, channelID core.ChannelID, seqs []uint64) ([]core.Packet, error) {
	ctx, span := c.startQuery(ctx, "Chain.QuerySentPackets", append(channelAttrs(portID, channelID), attribute.Int("packet_count", len(seqs)))...)
	packets, err := c.ChainHandle.QuerySentPackets(ctx, portID, channelID, seqs)
	end(span, err)
	return packets, err
}

func (c *Chain) QueryBalance(ctx core.QueryContext, address string, denom string) (sdk.Coin, error) {
	ctx, span := c.startQuery(ctx, "Chain.QueryBalance", attribute.String("denom", denom))
	coin, err := c.ChainHandle.QueryBalance(ctx, address, denom)
	end(span, err)
	return coin, err
}

func (c *Chain) ProveState(ctx core.QueryContext, path string) ([]byte, clienttypes.Height, error) {
	ctx, span := c.startQuery(ctx, "Chain.ProveState", semconv.StorePathKey.String(path))
	proof, height, err := c.ChainHandle.ProveState(ctx, path)
	end(span, err)
	return proof, height, err
}

func (c *Chain) Submit(ctx context.Context, msgs []core.Msg) (*core.TxResult, error) {
	ctx, span := c.start(ctx, "Chain.Submit", attribute.Int("msg_count", len(msgs)))
	res, err := c.ChainHandle.Submit(ctx, msgs)
	spanErr := err
	if err == nil {
		span.SetAttributes(semconv.TxHashKey.String(res.TxHash))
		span.SetAttributes(core.HeightAttributes(res.Height)...)
		// a rejected transaction is still an error on the span
		spanErr = res.Err()
	}
	end(span, spanErr)
	return res, err
}

func (c *Chain) Subscribe(ctx context.Context, filter core.EventFilter) (<-chan core.EventBatch, error) {
	_, span := c.start(ctx, "Chain.Subscribe", channelAttrs(filter.PortID, filter.ChannelID)...)
	ch, err := c.ChainHandle.Subscribe(ctx, filter)
	end(span, err)
	return ch, err
}
