package core

import (
	"context"

	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	host "github.com/cosmos/ibc-go/v8/modules/core/24-host"
	"github.com/datachainlab/ibc-relayer/otelcore/semconv"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Store paths of the objects the relayer proves. They follow the ICS-24 layout.

func ConnectionPath(connectionID ConnectionID) string {
	return host.ConnectionPath(string(connectionID))
}

func ChannelPath(portID PortID, channelID ChannelID) string {
	return host.ChannelPath(string(portID), string(channelID))
}

func PacketCommitmentPath(portID PortID, channelID ChannelID, seq uint64) string {
	return host.PacketCommitmentPath(string(portID), string(channelID), seq)
}

func PacketReceiptPath(portID PortID, channelID ChannelID, seq uint64) string {
	return host.PacketReceiptPath(string(portID), string(channelID), seq)
}

func PacketAcknowledgementPath(portID PortID, channelID ChannelID, seq uint64) string {
	return host.PacketAcknowledgementPath(string(portID), string(channelID), seq)
}

func NextSequenceRecvPath(portID PortID, channelID ChannelID) string {
	return host.NextSequenceRecvPath(string(portID), string(channelID))
}

// Proven is a proof from one chain together with the client updates its counterparty needs
// before it can verify the proof.
type Proven struct {
	Proof   []byte
	Height  clienttypes.Height
	Updates []Msg
}

// ProveForCounterparty proves path on prover's chain at its latest height and builds the
// update giving the prover's client on verifier a consensus state at the proof height.
func ProveForCounterparty(ctx context.Context, prover, verifier *Endpoint, path string) (*Proven, error) {
	ctx, span := tracer.Start(ctx, "ProveForCounterparty", trace.WithAttributes(
		semconv.ChainIDKey.String(prover.ChainID()),
		semconv.StorePathKey.String(path),
	))
	defer span.End()

	qctx, err := LatestQueryContext(ctx, prover.Chain)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	proof, proofHeight, err := prover.Chain.ProveState(qctx, path)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	updates, err := NewForeignClient("", verifier, prover).BuildUpdateTo(ctx, proofHeight)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &Proven{Proof: proof, Height: proofHeight, Updates: updates}, nil
}
