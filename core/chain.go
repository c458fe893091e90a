package core

import (
	"context"

	sdk "github.com/cosmos/cosmos-sdk/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
)

// ChainHandle is the relayer's view of one chain: state queries at a height, proofs,
// transaction submission and an event feed. Queries are safe for concurrent use;
// Submit calls for one account are serialized by a Submitter.
type ChainHandle interface {
	// ChainID returns ID of the chain
	ChainID() string

	// Address returns the relayer account that signs submissions
	Address() string

	// LatestHeight returns the latest finalized height
	LatestHeight(ctx context.Context) (clienttypes.Height, error)

	// QueryLatestHeader returns the header at the latest finalized height, used to feed
	// light clients of this chain on its counterparties
	QueryLatestHeader(ctx context.Context) (*Header, error)

	// QueryHeader returns the finalized header at height
	QueryHeader(ctx context.Context, height clienttypes.Height) (*Header, error)

	// QueryClientState returns a light client hosted on this chain
	QueryClientState(ctx QueryContext, clientID ClientID) (*ClientState, error)

	// QueryConsensusState returns the consensus state a hosted client stored for height
	QueryConsensusState(ctx QueryContext, clientID ClientID, height clienttypes.Height) (*ConsensusState, error)

	// QueryConnection returns a connection end hosted on this chain
	QueryConnection(ctx QueryContext, connectionID ConnectionID) (*ConnectionEnd, error)

	// QueryChannel returns a channel end hosted on this chain
	QueryChannel(ctx QueryContext, portID PortID, channelID ChannelID) (*ChannelEnd, error)

	// QueryPacketCommitment returns the commitment of a sent packet, or nil once it is cleared
	QueryPacketCommitment(ctx QueryContext, portID PortID, channelID ChannelID, seq uint64) ([]byte, error)

	// QueryPacketCommitments returns the sequences that still have a commitment, in ascending order
	QueryPacketCommitments(ctx QueryContext, portID PortID, channelID ChannelID) ([]uint64, error)

	// QueryPacketReceipt reports whether a packet has been received on this chain
	QueryPacketReceipt(ctx QueryContext, portID PortID, channelID ChannelID, seq uint64) (bool, error)

	// QueryPacketAcknowledgement returns the acknowledgement written for a received packet, or nil
	QueryPacketAcknowledgement(ctx QueryContext, portID PortID, channelID ChannelID, seq uint64) ([]byte, error)

	// QueryNextSequenceSend returns the sequence the next sent packet will use
	QueryNextSequenceSend(ctx QueryContext, portID PortID, channelID ChannelID) (uint64, error)

	// QueryNextSequenceReceive returns the next sequence an ordered channel accepts
	QueryNextSequenceReceive(ctx QueryContext, portID PortID, channelID ChannelID) (uint64, error)

	// QuerySentPackets returns the packets sent with the given sequences
	QuerySentPackets(ctx QueryContext, portID PortID, channelID ChannelID, seqs []uint64) ([]Packet, error)

	// QueryBalance returns the balance of address in denom
	QueryBalance(ctx QueryContext, address string, denom string) (sdk.Coin, error)

	// ProveState returns a proof of the value stored at path (or of its absence) and the
	// height a counterparty client needs in order to verify it
	ProveState(ctx QueryContext, path string) (proof []byte, proofHeight clienttypes.Height, err error)

	// Submit submits msgs in a single transaction and waits for its inclusion.
	// A transaction rejected by the chain is reported in the TxResult, not as an error.
	Submit(ctx context.Context, msgs []Msg) (*TxResult, error)

	// Subscribe returns a feed of committed blocks' events. The channel is closed when the
	// subscription breaks or ctx is done; callers resubscribe to continue.
	Subscribe(ctx context.Context, filter EventFilter) (<-chan EventBatch, error)
}

// QueryContext is a context that contains a height of the target chain for querying states
type QueryContext interface {
	// Context returns `context.Context``
	Context() context.Context

	// Height returns a height of the target chain for querying a state
	Height() clienttypes.Height
}

type queryContext struct {
	ctx    context.Context
	height clienttypes.Height
}

var _ QueryContext = (*queryContext)(nil)

// NewQueryContext returns a new context for querying states
func NewQueryContext(ctx context.Context, height clienttypes.Height) QueryContext {
	return queryContext{ctx: ctx, height: height}
}

func (qc queryContext) Context() context.Context {
	return qc.ctx
}

func (qc queryContext) Height() clienttypes.Height {
	return qc.height
}

// LatestQueryContext returns a QueryContext at the latest height of chain.
func LatestQueryContext(ctx context.Context, chain ChainHandle) (QueryContext, error) {
	h, err := chain.LatestHeight(ctx)
	if err != nil {
		return nil, err
	}
	return NewQueryContext(ctx, h), nil
}
