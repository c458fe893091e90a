package core

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	conntypes "github.com/cosmos/ibc-go/v8/modules/core/03-connection/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
)

// EventTypeNewBlock is emitted once per committed block.
const (
	EventTypeNewBlock     = "new_block"
	AttributeKeyHeight    = "height"
	AttributeKeyBlockTime = "time"
)

// ChainEvent is an event observed on a chain, either in a subscription or in a TxResult.
type ChainEvent interface {
	isChainEvent()
}

var (
	_ ChainEvent = (*EventNewBlock)(nil)
	_ ChainEvent = (*EventGenerateClientIdentifier)(nil)
	_ ChainEvent = (*EventUpdateClient)(nil)
	_ ChainEvent = (*EventConnectionHandshake)(nil)
	_ ChainEvent = (*EventChannelHandshake)(nil)
	_ ChainEvent = (*EventSendPacket)(nil)
	_ ChainEvent = (*EventWriteAcknowledgement)(nil)
	_ ChainEvent = (*EventAcknowledgePacket)(nil)
	_ ChainEvent = (*EventTimeoutPacket)(nil)
	_ ChainEvent = (*EventUnknown)(nil)
)

func (*EventNewBlock) isChainEvent()                 {}
func (*EventGenerateClientIdentifier) isChainEvent() {}
func (*EventUpdateClient) isChainEvent()             {}
func (*EventConnectionHandshake) isChainEvent()      {}
func (*EventChannelHandshake) isChainEvent()         {}
func (*EventSendPacket) isChainEvent()               {}
func (*EventWriteAcknowledgement) isChainEvent()     {}
func (*EventAcknowledgePacket) isChainEvent()        {}
func (*EventTimeoutPacket) isChainEvent()            {}
func (*EventUnknown) isChainEvent()                  {}

type EventNewBlock struct {
	Height clienttypes.Height
	Time   time.Time
}

type EventGenerateClientIdentifier struct {
	ID ClientID
}

type EventUpdateClient struct {
	ClientID        ClientID
	ConsensusHeight clienttypes.Height
}

// EventConnectionHandshake reports that a connection end reached Stage.
type EventConnectionHandshake struct {
	Stage                    HandshakeStage
	ConnectionID             ConnectionID
	ClientID                 ClientID
	CounterpartyClientID     ClientID
	CounterpartyConnectionID ConnectionID
}

// EventChannelHandshake reports that a channel end reached Stage.
type EventChannelHandshake struct {
	Stage                 HandshakeStage
	PortID                PortID
	ChannelID             ChannelID
	ConnectionID          ConnectionID
	CounterpartyPortID    PortID
	CounterpartyChannelID ChannelID
}

type EventSendPacket struct {
	Packet Packet
}

type EventWriteAcknowledgement struct {
	Packet          Packet
	Acknowledgement []byte
}

type EventAcknowledgePacket struct {
	Packet Packet
}

type EventTimeoutPacket struct {
	Packet Packet
}

type EventUnknown struct {
	Type string
}

// EventBatch is the set of events a chain committed in one block.
type EventBatch struct {
	ChainID string
	Height  clienttypes.Height
	Events  []ChainEvent
}

// EventFilter narrows a subscription. Empty fields match everything.
type EventFilter struct {
	PortID    PortID
	ChannelID ChannelID
}

// Match reports whether ev concerns the filtered port and channel.
// Block, client and connection events always match.
func (f EventFilter) Match(ev ChainEvent) bool {
	match := func(port PortID, channel ChannelID) bool {
		return (f.PortID == "" || f.PortID == port) && (f.ChannelID == "" || f.ChannelID == channel)
	}
	switch ev := ev.(type) {
	case *EventChannelHandshake:
		return f.PortID == "" || f.PortID == ev.PortID
	case *EventSendPacket:
		return match(ev.Packet.SourcePort, ev.Packet.SourceChannel)
	case *EventWriteAcknowledgement:
		return match(ev.Packet.DestinationPort, ev.Packet.DestinationChannel)
	case *EventAcknowledgePacket:
		return match(ev.Packet.SourcePort, ev.Packet.SourceChannel)
	case *EventTimeoutPacket:
		return match(ev.Packet.SourcePort, ev.Packet.SourceChannel)
	default:
		return true
	}
}

// ParseEvents converts ABCI events into ChainEvents. Unrecognized event types become EventUnknown.
func ParseEvents(events []abci.Event) ([]ChainEvent, error) {
	var ret []ChainEvent
	for _, ev := range events {
		attrs := make(map[string]string, len(ev.Attributes))
		for _, attr := range ev.Attributes {
			attrs[attr.Key] = attr.Value
		}
		parsed, err := parseEvent(ev.Type, attrs)
		if err != nil {
			return nil, errorsmod.Wrapf(ErrQuery, "failed to parse %s event: %v", ev.Type, err)
		}
		ret = append(ret, parsed)
	}
	return ret, nil
}

func parseEvent(typ string, attrs map[string]string) (ChainEvent, error) {
	switch typ {
	case EventTypeNewBlock:
		h, err := clienttypes.ParseHeight(attrs[AttributeKeyHeight])
		if err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, attrs[AttributeKeyBlockTime])
		if err != nil {
			return nil, err
		}
		return &EventNewBlock{Height: h, Time: t}, nil
	case clienttypes.EventTypeCreateClient:
		return &EventGenerateClientIdentifier{ID: ClientID(attrs[clienttypes.AttributeKeyClientID])}, nil
	case clienttypes.EventTypeUpdateClient:
		h, err := clienttypes.ParseHeight(attrs[clienttypes.AttributeKeyConsensusHeight])
		if err != nil {
			return nil, err
		}
		return &EventUpdateClient{ClientID: ClientID(attrs[clienttypes.AttributeKeyClientID]), ConsensusHeight: h}, nil
	case conntypes.EventTypeConnectionOpenInit, conntypes.EventTypeConnectionOpenTry,
		conntypes.EventTypeConnectionOpenAck, conntypes.EventTypeConnectionOpenConfirm:
		return &EventConnectionHandshake{
			Stage:                    connectionEventStage(typ),
			ConnectionID:             ConnectionID(attrs[conntypes.AttributeKeyConnectionID]),
			ClientID:                 ClientID(attrs[conntypes.AttributeKeyClientID]),
			CounterpartyClientID:     ClientID(attrs[conntypes.AttributeKeyCounterpartyClientID]),
			CounterpartyConnectionID: ConnectionID(attrs[conntypes.AttributeKeyCounterpartyConnectionID]),
		}, nil
	case chantypes.EventTypeChannelOpenInit, chantypes.EventTypeChannelOpenTry,
		chantypes.EventTypeChannelOpenAck, chantypes.EventTypeChannelOpenConfirm,
		chantypes.EventTypeChannelCloseInit, chantypes.EventTypeChannelCloseConfirm,
		chantypes.EventTypeChannelClosed:
		return &EventChannelHandshake{
			Stage:                 channelEventStage(typ),
			PortID:                PortID(attrs[chantypes.AttributeKeyPortID]),
			ChannelID:             ChannelID(attrs[chantypes.AttributeKeyChannelID]),
			ConnectionID:          ConnectionID(attrs[chantypes.AttributeKeyConnectionID]),
			CounterpartyPortID:    PortID(attrs[chantypes.AttributeCounterpartyPortID]),
			CounterpartyChannelID: ChannelID(attrs[chantypes.AttributeCounterpartyChannelID]),
		}, nil
	case chantypes.EventTypeSendPacket:
		p, err := parsePacketAttributes(attrs)
		if err != nil {
			return nil, err
		}
		return &EventSendPacket{Packet: p}, nil
	case chantypes.EventTypeWriteAck:
		p, err := parsePacketAttributes(attrs)
		if err != nil {
			return nil, err
		}
		ack, err := hex.DecodeString(attrs[chantypes.AttributeKeyAckHex])
		if err != nil {
			return nil, err
		}
		return &EventWriteAcknowledgement{Packet: p, Acknowledgement: ack}, nil
	case chantypes.EventTypeAcknowledgePacket:
		p, err := parsePacketAttributes(attrs)
		if err != nil {
			return nil, err
		}
		return &EventAcknowledgePacket{Packet: p}, nil
	case chantypes.EventTypeTimeoutPacket:
		p, err := parsePacketAttributes(attrs)
		if err != nil {
			return nil, err
		}
		return &EventTimeoutPacket{Packet: p}, nil
	default:
		return &EventUnknown{Type: typ}, nil
	}
}

func parsePacketAttributes(attrs map[string]string) (Packet, error) {
	var (
		p   Packet
		err error
	)
	if p.Sequence, err = strconv.ParseUint(attrs[chantypes.AttributeKeySequence], 10, 64); err != nil {
		return p, fmt.Errorf("invalid sequence: %w", err)
	}
	p.SourcePort = PortID(attrs[chantypes.AttributeKeySrcPort])
	p.SourceChannel = ChannelID(attrs[chantypes.AttributeKeySrcChannel])
	p.DestinationPort = PortID(attrs[chantypes.AttributeKeyDstPort])
	p.DestinationChannel = ChannelID(attrs[chantypes.AttributeKeyDstChannel])
	if v, ok := attrs[chantypes.AttributeKeyTimeoutHeight]; ok && v != "" {
		if p.TimeoutHeight, err = clienttypes.ParseHeight(v); err != nil {
			return p, fmt.Errorf("invalid timeout height: %w", err)
		}
	}
	if v, ok := attrs[chantypes.AttributeKeyTimeoutTimestamp]; ok && v != "" {
		if p.TimeoutTimestamp, err = strconv.ParseUint(v, 10, 64); err != nil {
			return p, fmt.Errorf("invalid timeout timestamp: %w", err)
		}
	}
	if v, ok := attrs[chantypes.AttributeKeyDataHex]; ok {
		if p.Data, err = hex.DecodeString(v); err != nil {
			return p, fmt.Errorf("invalid packet data: %w", err)
		}
	}
	return p, nil
}

func connectionEventStage(typ string) HandshakeStage {
	switch typ {
	case conntypes.EventTypeConnectionOpenInit:
		return StageInit
	case conntypes.EventTypeConnectionOpenTry:
		return StageTryOpen
	default:
		return StageOpen
	}
}

func channelEventStage(typ string) HandshakeStage {
	switch typ {
	case chantypes.EventTypeChannelOpenInit:
		return StageInit
	case chantypes.EventTypeChannelOpenTry:
		return StageTryOpen
	case chantypes.EventTypeChannelCloseInit, chantypes.EventTypeChannelCloseConfirm, chantypes.EventTypeChannelClosed:
		return StageClosed
	default:
		return StageOpen
	}
}
