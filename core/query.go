package core

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"golang.org/x/sync/errgroup"
)

// QueryConnectionEnd returns the end configured on ep, or nil when no identifier is set yet.
// A configured identifier that does not exist on chain is an error.
func QueryConnectionEnd(ctx context.Context, ep *Endpoint) (*ConnectionEnd, error) {
	if ep.End.ConnectionID == "" {
		return nil, nil
	}
	qctx, err := LatestQueryContext(ctx, ep.Chain)
	if err != nil {
		return nil, err
	}
	conn, err := ep.Chain.QueryConnection(qctx, ep.End.ConnectionID)
	if err != nil {
		if IsNotFound(err) {
			return nil, errorsmod.Wrapf(ErrConnectionNotFound, "connection id %s is given but does not exist on %s", ep.End.ConnectionID, ep.ChainID())
		}
		return nil, err
	}
	return conn, nil
}

// QueryChannelEnd returns the end configured on ep, or nil when no identifier is set yet.
func QueryChannelEnd(ctx context.Context, ep *Endpoint) (*ChannelEnd, error) {
	if ep.End.ChannelID == "" {
		return nil, nil
	}
	qctx, err := LatestQueryContext(ctx, ep.Chain)
	if err != nil {
		return nil, err
	}
	ch, err := ep.Chain.QueryChannel(qctx, ep.End.PortID, ep.End.ChannelID)
	if err != nil {
		if IsNotFound(err) {
			return nil, errorsmod.Wrapf(ErrChannelNotFound, "channel %s/%s is given but does not exist on %s", ep.End.PortID, ep.End.ChannelID, ep.ChainID())
		}
		return nil, err
	}
	return ch, nil
}

// QueryConnectionPair queries both connection ends at once
func QueryConnectionPair(ctx context.Context, src, dst *Endpoint) (srcConn, dstConn *ConnectionEnd, err error) {
	var eg = new(errgroup.Group)
	eg.Go(func() error {
		var err error
		srcConn, err = QueryConnectionEnd(ctx, src)
		return err
	})
	eg.Go(func() error {
		var err error
		dstConn, err = QueryConnectionEnd(ctx, dst)
		return err
	})
	err = eg.Wait()
	return
}

// QueryChannelPair queries both channel ends at once
func QueryChannelPair(ctx context.Context, src, dst *Endpoint) (srcChan, dstChan *ChannelEnd, err error) {
	var eg = new(errgroup.Group)
	eg.Go(func() error {
		var err error
		srcChan, err = QueryChannelEnd(ctx, src)
		return err
	})
	eg.Go(func() error {
		var err error
		dstChan, err = QueryChannelEnd(ctx, dst)
		return err
	})
	err = eg.Wait()
	return
}

// RelayPackets holds the pending packets of both directions of a path, keyed by the end they
// were sent on.
type RelayPackets struct {
	Src PacketInfoList `json:"src"`
	Dst PacketInfoList `json:"dst"`
}

// UnrelayedPackets returns the packets committed on each end that the other end has not received.
func UnrelayedPackets(ctx context.Context, src, dst *Endpoint) (*RelayPackets, error) {
	return queryPending(ctx, src, dst, false)
}

// UnrelayedAcknowledgements returns the packets received on the other end whose commitment
// still exists, with the acknowledgement written for them.
func UnrelayedAcknowledgements(ctx context.Context, src, dst *Endpoint) (*RelayPackets, error) {
	return queryPending(ctx, src, dst, true)
}

func queryPending(ctx context.Context, src, dst *Endpoint, acks bool) (*RelayPackets, error) {
	var rp RelayPackets
	var eg = new(errgroup.Group)
	eg.Go(func() error {
		var err error
		rp.Src, err = pendingPackets(ctx, src, dst, acks)
		return err
	})
	eg.Go(func() error {
		var err error
		rp.Dst, err = pendingPackets(ctx, dst, src, acks)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return &rp, nil
}

func pendingPackets(ctx context.Context, from, to *Endpoint, acks bool) (PacketInfoList, error) {
	fromCtx, err := LatestQueryContext(ctx, from.Chain)
	if err != nil {
		return nil, err
	}
	toCtx, err := LatestQueryContext(ctx, to.Chain)
	if err != nil {
		return nil, err
	}
	seqs, err := from.Chain.QueryPacketCommitments(fromCtx, from.End.PortID, from.End.ChannelID)
	if err != nil {
		return nil, err
	}
	if len(seqs) == 0 {
		return PacketInfoList{}, nil
	}
	var received []uint64
	for _, seq := range seqs {
		ok, err := to.Chain.QueryPacketReceipt(toCtx, to.End.PortID, to.End.ChannelID, seq)
		if err != nil {
			return nil, err
		}
		if ok {
			received = append(received, seq)
		}
	}
	packets, err := from.Chain.QuerySentPackets(fromCtx, from.End.PortID, from.End.ChannelID, seqs)
	if err != nil {
		return nil, err
	}
	all := make(PacketInfoList, 0, len(packets))
	for _, p := range packets {
		all = append(all, &PacketInfo{Packet: p})
	}
	if !acks {
		return append(PacketInfoList{}, all.Subtract(received)...), nil
	}
	ret := PacketInfoList{}
	for _, info := range all.Filter(received) {
		ack, err := to.Chain.QueryPacketAcknowledgement(toCtx, info.DestinationPort, info.DestinationChannel, info.Sequence)
		if err != nil {
			return nil, err
		}
		if len(ack) > 0 {
			info.Acknowledgement = ack
			info.EventHeight = toCtx.Height()
			ret = append(ret, info)
		}
	}
	return ret, nil
}
