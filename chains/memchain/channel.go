package memchain

import (
	"context"
	"encoding/hex"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	"github.com/datachainlab/ibc-relayer/core"
)

// application is a module bound to a port.
type application interface {
	// Version returns the channel version the module negotiates when none is proposed.
	Version() string
	OnRecvPacket(x *tx, p core.Packet) chantypes.Acknowledgement
	OnAcknowledgementPacket(x *tx, p core.Packet, ack []byte) error
	OnTimeoutPacket(x *tx, p core.Packet) error
}

func (x *tx) application(port core.PortID) (application, error) {
	app, ok := x.chain.apps[port]
	if !ok {
		return nil, errorsmod.Wrapf(core.ErrChannelNotFound, "no module is bound to port %s on %s", port, x.chain.config.ChainID)
	}
	return app, nil
}

func (x *tx) handleChannelMsg(ctx context.Context, msg core.ChannelMsg) ([]abci.Event, error) {
	switch msg := msg.(type) {
	case *core.MsgChannelOpenInit:
		return x.channelOpenInit(msg)
	case *core.MsgChannelOpenTry:
		return x.channelOpenTry(msg)
	case *core.MsgChannelOpenAck:
		return x.channelOpenAck(msg)
	case *core.MsgChannelOpenConfirm:
		return x.channelOpenConfirm(msg)
	case *core.MsgChannelCloseInit:
		return x.channelCloseInit(msg)
	case *core.MsgChannelCloseConfirm:
		return x.channelCloseConfirm(msg)
	case *core.MsgRecvPacket:
		return x.recvPacket(msg)
	case *core.MsgAcknowledgement:
		return x.acknowledgePacket(msg)
	case *core.MsgTimeout:
		return x.timeoutPacket(msg)
	default:
		return nil, errorsmod.Wrapf(core.ErrUnroutableMessage, "channel message %T", msg)
	}
}

// openConnection returns the connection a channel is built on, which must be open.
func (x *tx) openConnection(id core.ConnectionID) (*core.ConnectionEnd, error) {
	conn, err := getConnection(x.store, id)
	if err != nil {
		return nil, err
	}
	if conn.State != core.StageOpen {
		return nil, errorsmod.Wrapf(core.ErrInvalidStateTransition, "connection %s is %s, channels need OPEN", id, conn.State)
	}
	return conn, nil
}

func (x *tx) newChannelID() (core.ChannelID, error) {
	seq, err := x.store.nextCounter("channels")
	if err != nil {
		return "", err
	}
	return core.ChannelID(chantypes.FormatChannelIdentifier(seq)), nil
}

// createChannel stores a new channel end with its sequence counters.
func (x *tx) createChannel(port core.PortID, end *core.ChannelEnd) (core.ChannelID, error) {
	id, err := x.newChannelID()
	if err != nil {
		return "", err
	}
	if err := setChannel(x.store, port, id, end); err != nil {
		return "", err
	}
	x.store.setUint64(nextSequenceSendKey(string(port), string(id)), 1)
	x.store.setUint64(core.NextSequenceRecvPath(port, id), 1)
	x.store.setUint64(nextSequenceAckKey(string(port), string(id)), 1)
	return id, nil
}

func (x *tx) channelOpenInit(msg *core.MsgChannelOpenInit) ([]abci.Event, error) {
	app, err := x.application(msg.PortID)
	if err != nil {
		return nil, err
	}
	if _, err := x.openConnection(msg.Channel.ConnectionID()); err != nil {
		return nil, err
	}
	end := msg.Channel
	if end.Version == "" {
		end.Version = app.Version()
	}
	id, err := x.createChannel(msg.PortID, &end)
	if err != nil {
		return nil, err
	}
	return []abci.Event{channelEvent(chantypes.EventTypeChannelOpenInit, msg.PortID, id, &end)}, nil
}

func (x *tx) channelOpenTry(msg *core.MsgChannelOpenTry) ([]abci.Event, error) {
	app, err := x.application(msg.PortID)
	if err != nil {
		return nil, err
	}
	conn, err := x.openConnection(msg.Channel.ConnectionID())
	if err != nil {
		return nil, err
	}
	expected := &core.ChannelEnd{
		State:          core.StageInit,
		Ordering:       msg.Channel.Ordering,
		Counterparty:   core.ChannelCounterparty{PortID: msg.PortID},
		ConnectionHops: []core.ConnectionID{conn.Counterparty.ConnectionID},
		Version:        msg.CounterpartyVersion,
	}
	if err := x.verifyChannel(conn.ClientID, msg.Channel.Counterparty.PortID, msg.Channel.Counterparty.ChannelID, expected, msg.ProofInit, msg.ProofHeight); err != nil {
		return nil, err
	}
	end := msg.Channel
	if end.Version == "" {
		end.Version = app.Version()
	}
	id, err := x.createChannel(msg.PortID, &end)
	if err != nil {
		return nil, err
	}
	return []abci.Event{channelEvent(chantypes.EventTypeChannelOpenTry, msg.PortID, id, &end)}, nil
}

func (x *tx) channelOpenAck(msg *core.MsgChannelOpenAck) ([]abci.Event, error) {
	end, err := getChannel(x.store, msg.PortID, msg.ChannelID)
	if err != nil {
		return nil, err
	}
	if end.State == core.StageOpen && end.Counterparty.ChannelID == msg.CounterpartyChannelID {
		return nil, errorsmod.Wrapf(core.ErrRedundantMsg, "channel %s/%s is already open", msg.PortID, msg.ChannelID)
	}
	if end.State != core.StageInit {
		return nil, errorsmod.Wrapf(core.ErrInvalidStateTransition, "channel %s/%s is %s, ack needs INIT", msg.PortID, msg.ChannelID, end.State)
	}
	conn, err := x.openConnection(end.ConnectionID())
	if err != nil {
		return nil, err
	}
	expected := &core.ChannelEnd{
		State:          core.StageTryOpen,
		Ordering:       end.Ordering,
		Counterparty:   core.ChannelCounterparty{PortID: msg.PortID, ChannelID: msg.ChannelID},
		ConnectionHops: []core.ConnectionID{conn.Counterparty.ConnectionID},
		Version:        msg.CounterpartyVersion,
	}
	if err := x.verifyChannel(conn.ClientID, end.Counterparty.PortID, msg.CounterpartyChannelID, expected, msg.ProofTry, msg.ProofHeight); err != nil {
		return nil, err
	}
	end.Counterparty.ChannelID = msg.CounterpartyChannelID
	end.Version = msg.CounterpartyVersion
	if err := end.SetState(core.StageTryOpen); err != nil {
		return nil, err
	}
	if err := end.SetState(core.StageOpen); err != nil {
		return nil, err
	}
	if err := setChannel(x.store, msg.PortID, msg.ChannelID, end); err != nil {
		return nil, err
	}
	return []abci.Event{channelEvent(chantypes.EventTypeChannelOpenAck, msg.PortID, msg.ChannelID, end)}, nil
}

func (x *tx) channelOpenConfirm(msg *core.MsgChannelOpenConfirm) ([]abci.Event, error) {
	end, err := getChannel(x.store, msg.PortID, msg.ChannelID)
	if err != nil {
		return nil, err
	}
	switch end.State {
	case core.StageTryOpen:
	case core.StageOpen:
		return nil, errorsmod.Wrapf(core.ErrRedundantMsg, "channel %s/%s is already open", msg.PortID, msg.ChannelID)
	default:
		return nil, errorsmod.Wrapf(core.ErrInvalidStateTransition, "channel %s/%s is %s, confirm needs TRYOPEN", msg.PortID, msg.ChannelID, end.State)
	}
	conn, err := x.openConnection(end.ConnectionID())
	if err != nil {
		return nil, err
	}
	expected := &core.ChannelEnd{
		State:          core.StageOpen,
		Ordering:       end.Ordering,
		Counterparty:   core.ChannelCounterparty{PortID: msg.PortID, ChannelID: msg.ChannelID},
		ConnectionHops: []core.ConnectionID{conn.Counterparty.ConnectionID},
		Version:        end.Version,
	}
	if err := x.verifyChannel(conn.ClientID, end.Counterparty.PortID, end.Counterparty.ChannelID, expected, msg.ProofAck, msg.ProofHeight); err != nil {
		return nil, err
	}
	if err := end.SetState(core.StageOpen); err != nil {
		return nil, err
	}
	if err := setChannel(x.store, msg.PortID, msg.ChannelID, end); err != nil {
		return nil, err
	}
	return []abci.Event{channelEvent(chantypes.EventTypeChannelOpenConfirm, msg.PortID, msg.ChannelID, end)}, nil
}

func (x *tx) channelCloseInit(msg *core.MsgChannelCloseInit) ([]abci.Event, error) {
	end, err := getChannel(x.store, msg.PortID, msg.ChannelID)
	if err != nil {
		return nil, err
	}
	if end.State == core.StageClosed {
		return nil, errorsmod.Wrapf(core.ErrRedundantMsg, "channel %s/%s is already closed", msg.PortID, msg.ChannelID)
	}
	if err := end.SetState(core.StageClosed); err != nil {
		return nil, err
	}
	if err := setChannel(x.store, msg.PortID, msg.ChannelID, end); err != nil {
		return nil, err
	}
	return []abci.Event{channelEvent(chantypes.EventTypeChannelCloseInit, msg.PortID, msg.ChannelID, end)}, nil
}

func (x *tx) channelCloseConfirm(msg *core.MsgChannelCloseConfirm) ([]abci.Event, error) {
	end, err := getChannel(x.store, msg.PortID, msg.ChannelID)
	if err != nil {
		return nil, err
	}
	if end.State == core.StageClosed {
		return nil, errorsmod.Wrapf(core.ErrRedundantMsg, "channel %s/%s is already closed", msg.PortID, msg.ChannelID)
	}
	conn, err := x.openConnection(end.ConnectionID())
	if err != nil {
		return nil, err
	}
	expected := &core.ChannelEnd{
		State:          core.StageClosed,
		Ordering:       end.Ordering,
		Counterparty:   core.ChannelCounterparty{PortID: msg.PortID, ChannelID: msg.ChannelID},
		ConnectionHops: []core.ConnectionID{conn.Counterparty.ConnectionID},
		Version:        end.Version,
	}
	if err := x.verifyChannel(conn.ClientID, end.Counterparty.PortID, end.Counterparty.ChannelID, expected, msg.ProofInit, msg.ProofHeight); err != nil {
		return nil, err
	}
	if err := end.SetState(core.StageClosed); err != nil {
		return nil, err
	}
	if err := setChannel(x.store, msg.PortID, msg.ChannelID, end); err != nil {
		return nil, err
	}
	return []abci.Event{channelEvent(chantypes.EventTypeChannelCloseConfirm, msg.PortID, msg.ChannelID, end)}, nil
}

// verifyChannel checks that the counterparty stores expected at its channel path.
func (x *tx) verifyChannel(clientID core.ClientID, cpPort core.PortID, cpChannel core.ChannelID, expected *core.ChannelEnd, proof []byte, proofHeight clienttypes.Height) error {
	bz, err := expected.CommitmentBytes()
	if err != nil {
		return err
	}
	_, err = x.verifyState(clientID, proofHeight, proof, core.ChannelPath(cpPort, cpChannel), bz)
	return err
}

// sendPacket commits a packet on an open channel and assigns its sequence.
func (x *tx) sendPacket(port core.PortID, channel core.ChannelID, data []byte, timeoutHeight clienttypes.Height, timeoutTimestamp uint64) (core.Packet, abci.Event, error) {
	end, err := getChannel(x.store, port, channel)
	if err != nil {
		return core.Packet{}, abci.Event{}, err
	}
	if end.State != core.StageOpen {
		return core.Packet{}, abci.Event{}, errorsmod.Wrapf(core.ErrInvalidStateTransition, "channel %s/%s is %s, sending needs OPEN", port, channel, end.State)
	}
	key := nextSequenceSendKey(string(port), string(channel))
	seq, _, err := x.store.getUint64(key)
	if err != nil {
		return core.Packet{}, abci.Event{}, err
	}
	p := core.Packet{
		Sequence:           seq,
		SourcePort:         port,
		SourceChannel:      channel,
		DestinationPort:    end.Counterparty.PortID,
		DestinationChannel: end.Counterparty.ChannelID,
		Data:               data,
		TimeoutHeight:      timeoutHeight,
		TimeoutTimestamp:   timeoutTimestamp,
	}
	if err := p.ValidateBasic(); err != nil {
		return core.Packet{}, abci.Event{}, err
	}
	x.store.setUint64(key, seq+1)
	x.store.set(core.PacketCommitmentPath(port, channel, seq), p.Commitment())
	pp := p.ToProto()
	if err := x.store.setProto(sentPacketKey(string(port), string(channel), seq), &pp); err != nil {
		return core.Packet{}, abci.Event{}, err
	}
	return p, packetEvent(chantypes.EventTypeSendPacket, p, end), nil
}

func (x *tx) recvPacket(msg *core.MsgRecvPacket) ([]abci.Event, error) {
	p := msg.Packet
	end, err := getChannel(x.store, p.DestinationPort, p.DestinationChannel)
	if err != nil {
		return nil, err
	}
	if end.State != core.StageOpen {
		return nil, errorsmod.Wrapf(core.ErrInvalidStateTransition, "channel %s/%s is %s, receiving needs OPEN", p.DestinationPort, p.DestinationChannel, end.State)
	}
	if end.Counterparty.PortID != p.SourcePort || end.Counterparty.ChannelID != p.SourceChannel {
		return nil, errorsmod.Wrapf(core.ErrInvalidPacket, "packet source %s/%s is not the counterparty of %s/%s", p.SourcePort, p.SourceChannel, p.DestinationPort, p.DestinationChannel)
	}
	conn, err := x.openConnection(end.ConnectionID())
	if err != nil {
		return nil, err
	}
	if p.TimedOut(x.height, x.time) {
		return nil, errorsmod.Wrapf(core.ErrPacketTimedOut, "packet %s at height %s", p, x.height)
	}

	receiptKey := core.PacketReceiptPath(p.DestinationPort, p.DestinationChannel, p.Sequence)
	if end.Ordering == core.OrderOrdered {
		nextKey := core.NextSequenceRecvPath(p.DestinationPort, p.DestinationChannel)
		next, _, err := x.store.getUint64(nextKey)
		if err != nil {
			return nil, err
		}
		switch {
		case p.Sequence < next:
			return nil, errorsmod.Wrapf(core.ErrRedundantMsg, "packet %s already received", p)
		case p.Sequence > next:
			return nil, errorsmod.Wrapf(core.ErrPacketSequenceOutOfOrder, "packet %s, expected sequence %d", p, next)
		}
		x.store.setUint64(nextKey, next+1)
	} else if found, err := x.store.has(receiptKey); err != nil {
		return nil, err
	} else if found {
		return nil, errorsmod.Wrapf(core.ErrRedundantMsg, "packet %s already received", p)
	}

	if _, err := x.verifyState(conn.ClientID, msg.ProofHeight, msg.ProofCommitment, core.PacketCommitmentPath(p.SourcePort, p.SourceChannel, p.Sequence), p.Commitment()); err != nil {
		return nil, err
	}
	x.store.set(receiptKey, []byte{1})

	app, err := x.application(p.DestinationPort)
	if err != nil {
		return nil, err
	}
	ack := app.OnRecvPacket(x, p).Acknowledgement()
	x.store.set(core.PacketAcknowledgementPath(p.DestinationPort, p.DestinationChannel, p.Sequence), chantypes.CommitAcknowledgement(ack))
	x.store.set(rawAckKey(string(p.DestinationPort), string(p.DestinationChannel), p.Sequence), ack)

	writeAck := packetEvent(chantypes.EventTypeWriteAck, p, end)
	writeAck.Attributes = append(writeAck.Attributes, abci.EventAttribute{Key: chantypes.AttributeKeyAckHex, Value: hex.EncodeToString(ack), Index: true})
	return []abci.Event{packetEvent(chantypes.EventTypeRecvPacket, p, end), writeAck}, nil
}

// sentPacketChannel checks the sending side of p and returns its channel. A packet whose
// commitment is gone was already acknowledged or timed out.
func (x *tx) sentPacketChannel(p core.Packet) (*core.ChannelEnd, error) {
	end, err := getChannel(x.store, p.SourcePort, p.SourceChannel)
	if err != nil {
		return nil, err
	}
	commitment, err := x.store.get(core.PacketCommitmentPath(p.SourcePort, p.SourceChannel, p.Sequence))
	if err != nil {
		return nil, err
	}
	if commitment == nil {
		return nil, errorsmod.Wrapf(core.ErrRedundantMsg, "packet %s has no commitment", p)
	}
	if string(commitment) != string(p.Commitment()) {
		return nil, errorsmod.Wrapf(core.ErrInvalidPacket, "packet %s does not match its commitment", p)
	}
	return end, nil
}

func (x *tx) acknowledgePacket(msg *core.MsgAcknowledgement) ([]abci.Event, error) {
	p := msg.Packet
	end, err := x.sentPacketChannel(p)
	if err != nil {
		return nil, err
	}
	if end.State != core.StageOpen {
		return nil, errorsmod.Wrapf(core.ErrInvalidStateTransition, "channel %s/%s is %s, acknowledging needs OPEN", p.SourcePort, p.SourceChannel, end.State)
	}
	conn, err := x.openConnection(end.ConnectionID())
	if err != nil {
		return nil, err
	}
	if _, err := x.verifyState(conn.ClientID, msg.ProofHeight, msg.ProofAcked, core.PacketAcknowledgementPath(p.DestinationPort, p.DestinationChannel, p.Sequence), chantypes.CommitAcknowledgement(msg.Acknowledgement)); err != nil {
		return nil, err
	}
	if end.Ordering == core.OrderOrdered {
		key := nextSequenceAckKey(string(p.SourcePort), string(p.SourceChannel))
		next, _, err := x.store.getUint64(key)
		if err != nil {
			return nil, err
		}
		if p.Sequence != next {
			return nil, errorsmod.Wrapf(core.ErrPacketSequenceOutOfOrder, "acknowledgement of %s, expected sequence %d", p, next)
		}
		x.store.setUint64(key, next+1)
	}
	x.store.delete(core.PacketCommitmentPath(p.SourcePort, p.SourceChannel, p.Sequence))

	app, err := x.application(p.SourcePort)
	if err != nil {
		return nil, err
	}
	if err := app.OnAcknowledgementPacket(x, p, msg.Acknowledgement); err != nil {
		return nil, err
	}
	return []abci.Event{packetEvent(chantypes.EventTypeAcknowledgePacket, p, end)}, nil
}

func (x *tx) timeoutPacket(msg *core.MsgTimeout) ([]abci.Event, error) {
	p := msg.Packet
	end, err := x.sentPacketChannel(p)
	if err != nil {
		return nil, err
	}
	conn, err := getConnection(x.store, end.ConnectionID())
	if err != nil {
		return nil, err
	}

	var (
		path  string
		value []byte
	)
	if end.Ordering == core.OrderOrdered {
		if msg.NextSequenceRecv > p.Sequence {
			return nil, errorsmod.Wrapf(core.ErrRedundantMsg, "packet %s was received", p)
		}
		path = core.NextSequenceRecvPath(p.DestinationPort, p.DestinationChannel)
		value = sdk.Uint64ToBigEndian(msg.NextSequenceRecv)
	} else {
		path = core.PacketReceiptPath(p.DestinationPort, p.DestinationChannel, p.Sequence)
	}
	cons, err := x.verifyState(conn.ClientID, msg.ProofHeight, msg.ProofUnreceived, path, value)
	if err != nil {
		return nil, err
	}
	if !p.TimedOut(msg.ProofHeight, cons.Timestamp) {
		return nil, errorsmod.Wrapf(core.ErrInvalidPacket, "packet %s has not timed out at %s", p, msg.ProofHeight)
	}
	x.store.delete(core.PacketCommitmentPath(p.SourcePort, p.SourceChannel, p.Sequence))

	events := []abci.Event{packetEvent(chantypes.EventTypeTimeoutPacket, p, end)}
	if end.Ordering == core.OrderOrdered && end.State == core.StageOpen {
		if err := end.SetState(core.StageClosed); err != nil {
			return nil, err
		}
		if err := setChannel(x.store, p.SourcePort, p.SourceChannel, end); err != nil {
			return nil, err
		}
		events = append(events, channelEvent(chantypes.EventTypeChannelClosed, p.SourcePort, p.SourceChannel, end))
	}

	app, err := x.application(p.SourcePort)
	if err != nil {
		return nil, err
	}
	if err := app.OnTimeoutPacket(x, p); err != nil {
		return nil, err
	}
	return events, nil
}

func channelEvent(typ string, port core.PortID, id core.ChannelID, end *core.ChannelEnd) abci.Event {
	return newEvent(typ,
		chantypes.AttributeKeyPortID, string(port),
		chantypes.AttributeKeyChannelID, string(id),
		chantypes.AttributeCounterpartyPortID, string(end.Counterparty.PortID),
		chantypes.AttributeCounterpartyChannelID, string(end.Counterparty.ChannelID),
		chantypes.AttributeKeyConnectionID, string(end.ConnectionID()),
	)
}

func packetEvent(typ string, p core.Packet, end *core.ChannelEnd) abci.Event {
	return newEvent(typ,
		chantypes.AttributeKeyDataHex, hex.EncodeToString(p.Data),
		chantypes.AttributeKeyTimeoutHeight, p.TimeoutHeight.String(),
		chantypes.AttributeKeyTimeoutTimestamp, fmt.Sprintf("%d", p.TimeoutTimestamp),
		chantypes.AttributeKeySequence, fmt.Sprintf("%d", p.Sequence),
		chantypes.AttributeKeySrcPort, string(p.SourcePort),
		chantypes.AttributeKeySrcChannel, string(p.SourceChannel),
		chantypes.AttributeKeyDstPort, string(p.DestinationPort),
		chantypes.AttributeKeyDstChannel, string(p.DestinationChannel),
		chantypes.AttributeKeyChannelOrdering, end.Ordering.ToProto().String(),
		chantypes.AttributeKeyConnectionID, string(end.ConnectionID()),
	)
}
