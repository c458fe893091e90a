package core

import (
	"fmt"
	"time"

	errorsmod "cosmossdk.io/errors"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
)

// Packet is an application payload sent over a channel.
// TimeoutTimestamp is in unix nanoseconds; zero disables the timestamp timeout.
type Packet struct {
	Sequence           uint64             `json:"sequence"`
	SourcePort         PortID             `json:"source_port"`
	SourceChannel      ChannelID          `json:"source_channel"`
	DestinationPort    PortID             `json:"destination_port"`
	DestinationChannel ChannelID          `json:"destination_channel"`
	Data               []byte             `json:"data"`
	TimeoutHeight      clienttypes.Height `json:"timeout_height"`
	TimeoutTimestamp   uint64             `json:"timeout_timestamp"`
}

func (p Packet) ToProto() chantypes.Packet {
	return chantypes.NewPacket(
		p.Data,
		p.Sequence,
		string(p.SourcePort),
		string(p.SourceChannel),
		string(p.DestinationPort),
		string(p.DestinationChannel),
		p.TimeoutHeight,
		p.TimeoutTimestamp,
	)
}

func PacketFromProto(p chantypes.Packet) Packet {
	return Packet{
		Sequence:           p.Sequence,
		SourcePort:         PortID(p.SourcePort),
		SourceChannel:      ChannelID(p.SourceChannel),
		DestinationPort:    PortID(p.DestinationPort),
		DestinationChannel: ChannelID(p.DestinationChannel),
		Data:               p.Data,
		TimeoutHeight:      p.TimeoutHeight,
		TimeoutTimestamp:   p.TimeoutTimestamp,
	}
}

func (p Packet) ValidateBasic() error {
	if err := p.ToProto().ValidateBasic(); err != nil {
		return errorsmod.Wrap(ErrInvalidPacket, err.Error())
	}
	return nil
}

// Commitment is the hash the sending chain stores for the packet.
func (p Packet) Commitment() []byte {
	pp := p.ToProto()
	return chantypes.CommitPacket(nil, &pp)
}

// TimedOut reports whether the destination chain, at the given latest height and block time,
// can no longer receive the packet.
func (p Packet) TimedOut(height clienttypes.Height, blockTime time.Time) bool {
	if !p.TimeoutHeight.IsZero() && height.GTE(p.TimeoutHeight) {
		return true
	}
	if p.TimeoutTimestamp != 0 && uint64(blockTime.UnixNano()) >= p.TimeoutTimestamp {
		return true
	}
	return false
}

func (p Packet) String() string {
	return fmt.Sprintf("%s/%s->%s/%s#%d", p.SourcePort, p.SourceChannel, p.DestinationPort, p.DestinationChannel, p.Sequence)
}

// PacketInfo is a packet as observed from a SendPacket event, or from a WriteAcknowledgement
// event in which case Acknowledgement is set and EventHeight is the height of that event.
type PacketInfo struct {
	Packet
	Acknowledgement []byte             `json:"acknowledgement"`
	EventHeight     clienttypes.Height `json:"event_height"`
}

// PacketInfoList is ordered as the underlying events occurred.
type PacketInfoList []*PacketInfo

func (ps PacketInfoList) ExtractSequenceList() []uint64 {
	var seqs []uint64
	for _, p := range ps {
		seqs = append(seqs, p.Sequence)
	}
	return seqs
}

func (ps PacketInfoList) Subtract(seqs []uint64) PacketInfoList {
	var ret PacketInfoList
out:
	for _, p := range ps {
		for _, seq := range seqs {
			if p.Sequence == seq {
				continue out
			}
		}
		ret = append(ret, p)
	}
	return ret
}

func (ps PacketInfoList) Filter(seqs []uint64) PacketInfoList {
	var ret PacketInfoList
	for _, p := range ps {
		for _, seq := range seqs {
			if p.Sequence == seq {
				ret = append(ret, p)
				break
			}
		}
	}
	return ret
}
