package core

import (
	"context"
	"errors"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"github.com/datachainlab/ibc-relayer/log"
	"github.com/datachainlab/ibc-relayer/metrics"
	"github.com/datachainlab/ibc-relayer/otelcore/semconv"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// relayDirection relays the packets sent on from's channel to to's channel.
// Acknowledgements written on to and timeouts go back to from.
type relayDirection struct {
	name  string
	from  *Endpoint
	to    *Endpoint
	queue *PacketQueue
	// closed is set once the channel closed on either end, as after an ordered timeout
	closed bool
}

func newRelayDirection(name string, from, to *Endpoint) *relayDirection {
	return &relayDirection{name: name, from: from, to: to, queue: NewPacketQueue(1)}
}

func (d *relayDirection) logger() *log.RelayLogger {
	return log.GetLogger().
		WithChannelPair(
			d.from.ChainID(), string(d.from.End.PortID), string(d.from.End.ChannelID),
			d.to.ChainID(), string(d.to.End.PortID), string(d.to.End.ChannelID),
		).
		WithModule("core.packet")
}

func (d *relayDirection) attributes(seq uint64) trace.SpanStartOption {
	return trace.WithAttributes(
		semconv.DirectionKey.String(d.name),
		semconv.ChainIDKey.String(d.from.ChainID()),
		semconv.ChannelIDKey.String(string(d.from.End.ChannelID)),
		semconv.SequenceKey.Int64(int64(seq)),
	)
}

func (d *relayDirection) metricAttributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.DirectionKey.String(d.name),
		semconv.ChainIDKey.String(d.from.ChainID()),
	}
}

// sentOn reports whether p was sent on the direction's source channel.
func (d *relayDirection) sentOn(p Packet) bool {
	return p.SourcePort == d.from.End.PortID && p.SourceChannel == d.from.End.ChannelID
}

// receivedOn reports whether p is addressed to the direction's destination channel.
func (d *relayDirection) receivedOn(p Packet) bool {
	return p.DestinationPort == d.to.End.PortID && p.DestinationChannel == d.to.End.ChannelID
}

func (d *relayDirection) ordered() bool {
	return d.from.End.ChannelOrder() == OrderOrdered
}

// clear rebuilds the queue from chain state and returns the packets received on to whose
// acknowledgement has not reached from yet.
func (d *relayDirection) clear(ctx context.Context) ([]*PacketInfo, error) {
	fromCtx, err := LatestQueryContext(ctx, d.from.Chain)
	if err != nil {
		return nil, err
	}
	toCtx, err := LatestQueryContext(ctx, d.to.Chain)
	if err != nil {
		return nil, err
	}

	fromChan, err := d.from.Chain.QueryChannel(fromCtx, d.from.End.PortID, d.from.End.ChannelID)
	if err != nil {
		return nil, err
	}
	toChan, err := d.to.Chain.QueryChannel(toCtx, d.to.End.PortID, d.to.End.ChannelID)
	if err != nil {
		return nil, err
	}
	d.closed = fromChan.State == StageClosed || toChan.State == StageClosed

	seqs, err := d.from.Chain.QueryPacketCommitments(fromCtx, d.from.End.PortID, d.from.End.ChannelID)
	if err != nil {
		return nil, err
	}
	var (
		unreceived []uint64
		received   []uint64
	)
	for _, seq := range seqs {
		ok, err := d.to.Chain.QueryPacketReceipt(toCtx, d.to.End.PortID, d.to.End.ChannelID, seq)
		if err != nil {
			return nil, err
		}
		if ok {
			received = append(received, seq)
		} else {
			unreceived = append(unreceived, seq)
		}
	}

	var acks []*PacketInfo
	if len(received) > 0 {
		packets, err := d.from.Chain.QuerySentPackets(fromCtx, d.from.End.PortID, d.from.End.ChannelID, received)
		if err != nil {
			return nil, err
		}
		for _, p := range packets {
			ack, err := d.to.Chain.QueryPacketAcknowledgement(toCtx, p.DestinationPort, p.DestinationChannel, p.Sequence)
			if err != nil {
				return nil, err
			}
			if len(ack) > 0 {
				acks = append(acks, &PacketInfo{Packet: p, Acknowledgement: ack})
			}
		}
	}

	if len(unreceived) == 0 {
		next, err := d.from.Chain.QueryNextSequenceSend(fromCtx, d.from.End.PortID, d.from.End.ChannelID)
		if err != nil {
			return nil, err
		}
		d.queue.Reset(next, nil)
	} else {
		packets, err := d.from.Chain.QuerySentPackets(fromCtx, d.from.End.PortID, d.from.End.ChannelID, unreceived)
		if err != nil {
			return nil, err
		}
		d.queue.Reset(unreceived[0], packets)
	}
	metrics.BacklogSizeGauge.Set(int64(d.queue.Len()), d.metricAttributes()...)
	d.logger().DebugContext(ctx, "packet backlog loaded",
		"direction", d.name,
		"next", d.queue.Next(),
		"unreceived", unreceived,
		"unacknowledged", PacketInfoList(acks).ExtractSequenceList(),
	)
	return acks, nil
}

// fillGap resolves the cursor when its packet was never observed. It returns false if the
// sequence is still outstanding and its packet could not be loaded.
func (d *relayDirection) fillGap(ctx context.Context) (bool, error) {
	seq := d.queue.Next()
	fromCtx, err := LatestQueryContext(ctx, d.from.Chain)
	if err != nil {
		return false, err
	}
	commitment, err := d.from.Chain.QueryPacketCommitment(fromCtx, d.from.End.PortID, d.from.End.ChannelID, seq)
	if err != nil {
		return false, err
	}
	if commitment == nil {
		// acknowledged or timed out already
		d.queue.Advance()
		return true, nil
	}
	toCtx, err := LatestQueryContext(ctx, d.to.Chain)
	if err != nil {
		return false, err
	}
	if received, err := d.to.Chain.QueryPacketReceipt(toCtx, d.to.End.PortID, d.to.End.ChannelID, seq); err != nil {
		return false, err
	} else if received {
		d.queue.Advance()
		return true, nil
	}
	packets, err := d.from.Chain.QuerySentPackets(fromCtx, d.from.End.PortID, d.from.End.ChannelID, []uint64{seq})
	if err != nil {
		return false, err
	}
	if len(packets) == 0 {
		return false, nil
	}
	return d.queue.Push(packets[0]), nil
}

// packetAction is the terminal transition chosen for a packet.
type packetAction string

const (
	packetSkipped  packetAction = "skipped"
	packetReceived packetAction = "recv"
	packetTimedOut packetAction = "timeout"
)

// relayPacket moves p to a terminal state: skipped if already resolved, received on to, or
// timed out on from. The caller advances the queue on success.
func (d *relayDirection) relayPacket(ctx context.Context, p Packet, policy RetryPolicy) (packetAction, error) {
	ctx, span := tracer.Start(ctx, "relayDirection.relayPacket", d.attributes(p.Sequence))
	defer span.End()
	logger := d.logger()

	var action packetAction
	err := policy.Do(ctx, func() error {
		var err error
		action, err = d.tryRelayPacket(ctx, p)
		return err
	}, func(n uint, err error) {
		logger.WarnContext(ctx, "retrying packet relay", "sequence", p.Sequence, "try", n+1, "error", err.Error())
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if action != packetSkipped {
		metrics.RecordRelayedPacket(ctx, string(action), d.metricAttributes()...)
		logger.InfoContext(ctx, fmt.Sprintf("★ packet %s", action), "sequence", p.Sequence)
	} else {
		logger.DebugContext(ctx, "packet already resolved", "sequence", p.Sequence)
	}
	return action, nil
}

func (d *relayDirection) tryRelayPacket(ctx context.Context, p Packet) (packetAction, error) {
	fromCtx, err := LatestQueryContext(ctx, d.from.Chain)
	if err != nil {
		return "", err
	}
	if commitment, err := d.from.Chain.QueryPacketCommitment(fromCtx, p.SourcePort, p.SourceChannel, p.Sequence); err != nil {
		return "", err
	} else if commitment == nil {
		return packetSkipped, nil
	}

	toHeader, err := d.to.Chain.QueryLatestHeader(ctx)
	if err != nil {
		return "", err
	}
	toCtx := NewQueryContext(ctx, toHeader.Height)
	received, err := d.to.Chain.QueryPacketReceipt(toCtx, p.DestinationPort, p.DestinationChannel, p.Sequence)
	if err != nil {
		return "", err
	}
	if received {
		return packetSkipped, nil
	}

	if p.TimedOut(toHeader.Height, toHeader.Time) {
		return d.timeoutPacket(ctx, p)
	}

	proven, err := ProveForCounterparty(ctx, d.from, d.to, PacketCommitmentPath(p.SourcePort, p.SourceChannel, p.Sequence))
	if err != nil {
		return "", err
	}
	msgs := append(proven.Updates, &MsgRecvPacket{
		Packet:          p,
		ProofCommitment: proven.Proof,
		ProofHeight:     proven.Height,
		Signer:          d.to.Signer(),
	})
	if _, err := d.to.Submit(ctx, msgs); err != nil {
		switch {
		case errors.Is(err, ErrRedundantMsg):
			return packetSkipped, nil
		case errors.Is(err, ErrPacketTimedOut):
			// the destination reached the timeout between the check and the submission
			return d.timeoutPacket(ctx, p)
		}
		return "", err
	}
	return packetReceived, nil
}

func (d *relayDirection) timeoutPacket(ctx context.Context, p Packet) (packetAction, error) {
	if err := d.submitTimeout(ctx, p); err != nil {
		if errors.Is(err, ErrRedundantMsg) {
			return packetSkipped, nil
		}
		return "", err
	}
	return packetTimedOut, nil
}

// submitTimeout proves on from that p was not received on to.
func (d *relayDirection) submitTimeout(ctx context.Context, p Packet) error {
	msg := &MsgTimeout{Packet: p, NextSequenceRecv: p.Sequence, Signer: d.from.Signer()}
	path := PacketReceiptPath(p.DestinationPort, p.DestinationChannel, p.Sequence)
	if d.ordered() {
		toCtx, err := LatestQueryContext(ctx, d.to.Chain)
		if err != nil {
			return err
		}
		next, err := d.to.Chain.QueryNextSequenceReceive(toCtx, p.DestinationPort, p.DestinationChannel)
		if err != nil {
			return err
		}
		if next > p.Sequence {
			return errorsmod.Wrapf(ErrRedundantMsg, "sequence %d already received", p.Sequence)
		}
		msg.NextSequenceRecv = next
		path = NextSequenceRecvPath(p.DestinationPort, p.DestinationChannel)
	}
	proven, err := ProveForCounterparty(ctx, d.to, d.from, path)
	if err != nil {
		return err
	}
	msg.ProofUnreceived = proven.Proof
	msg.ProofHeight = proven.Height
	if _, err := d.from.Submit(ctx, append(proven.Updates, msg)); err != nil && !errors.Is(err, ErrRedundantMsg) {
		return err
	}
	if d.ordered() {
		d.closed = true
	}
	return nil
}

// relayAck delivers the acknowledgement of p, written on to, back to from.
func (d *relayDirection) relayAck(ctx context.Context, p Packet, ack []byte, policy RetryPolicy) error {
	ctx, span := tracer.Start(ctx, "relayDirection.relayAck", d.attributes(p.Sequence))
	defer span.End()
	logger := d.logger()

	acked := false
	err := policy.Do(ctx, func() error {
		fromCtx, err := LatestQueryContext(ctx, d.from.Chain)
		if err != nil {
			return err
		}
		if commitment, err := d.from.Chain.QueryPacketCommitment(fromCtx, p.SourcePort, p.SourceChannel, p.Sequence); err != nil {
			return err
		} else if commitment == nil {
			return nil
		}
		proven, err := ProveForCounterparty(ctx, d.to, d.from, PacketAcknowledgementPath(p.DestinationPort, p.DestinationChannel, p.Sequence))
		if err != nil {
			return err
		}
		msgs := append(proven.Updates, &MsgAcknowledgement{
			Packet:          p,
			Acknowledgement: ack,
			ProofAcked:      proven.Proof,
			ProofHeight:     proven.Height,
			Signer:          d.from.Signer(),
		})
		if _, err := d.from.Submit(ctx, msgs); err != nil {
			if errors.Is(err, ErrRedundantMsg) {
				return nil
			}
			return err
		}
		acked = true
		return nil
	}, func(n uint, err error) {
		logger.WarnContext(ctx, "retrying acknowledgement relay", "sequence", p.Sequence, "try", n+1, "error", err.Error())
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if acked {
		metrics.RecordRelayedPacket(ctx, "ack", d.metricAttributes()...)
		logger.InfoContext(ctx, "★ acknowledgement relayed", "sequence", p.Sequence)
	}
	return nil
}
