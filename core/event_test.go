package core_test

import (
	"encoding/hex"
	"strconv"
	"testing"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/stretchr/testify/require"
)

func abciEvent(typ string, kv ...string) abci.Event {
	ev := abci.Event{Type: typ}
	for i := 0; i+1 < len(kv); i += 2 {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: kv[i], Value: kv[i+1]})
	}
	return ev
}

func packetEvent(typ string, p core.Packet, extra ...string) abci.Event {
	kv := []string{
		chantypes.AttributeKeySequence, strconv.FormatUint(p.Sequence, 10),
		chantypes.AttributeKeySrcPort, string(p.SourcePort),
		chantypes.AttributeKeySrcChannel, string(p.SourceChannel),
		chantypes.AttributeKeyDstPort, string(p.DestinationPort),
		chantypes.AttributeKeyDstChannel, string(p.DestinationChannel),
		chantypes.AttributeKeyTimeoutHeight, p.TimeoutHeight.String(),
		chantypes.AttributeKeyTimeoutTimestamp, strconv.FormatUint(p.TimeoutTimestamp, 10),
		chantypes.AttributeKeyDataHex, hex.EncodeToString(p.Data),
	}
	return abciEvent(typ, append(kv, extra...)...)
}

func TestParseEvents(t *testing.T) {
	p := core.Packet{
		Sequence:           7,
		SourcePort:         "transfer",
		SourceChannel:      "channel-0",
		DestinationPort:    "transfer",
		DestinationChannel: "channel-1",
		Data:               []byte(`{"amount":"1"}`),
		TimeoutHeight:      clienttypes.NewHeight(1, 120),
	}
	blockTime := time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC)

	events, err := core.ParseEvents([]abci.Event{
		abciEvent(core.EventTypeNewBlock,
			core.AttributeKeyHeight, "1-5",
			core.AttributeKeyBlockTime, blockTime.Format(time.RFC3339Nano)),
		packetEvent(chantypes.EventTypeSendPacket, p),
		packetEvent(chantypes.EventTypeWriteAck, p, chantypes.AttributeKeyAckHex, hex.EncodeToString([]byte("ok"))),
		abciEvent(chantypes.EventTypeChannelClosed,
			chantypes.AttributeKeyPortID, "transfer",
			chantypes.AttributeKeyChannelID, "channel-0"),
		abciEvent("message", "action", "transfer"),
	})
	require.NoError(t, err)
	require.Equal(t, []core.ChainEvent{
		&core.EventNewBlock{Height: clienttypes.NewHeight(1, 5), Time: blockTime},
		&core.EventSendPacket{Packet: p},
		&core.EventWriteAcknowledgement{Packet: p, Acknowledgement: []byte("ok")},
		&core.EventChannelHandshake{Stage: core.StageClosed, PortID: "transfer", ChannelID: "channel-0"},
		&core.EventUnknown{Type: "message"},
	}, events)
}

func TestParseEventsRejectsMalformed(t *testing.T) {
	_, err := core.ParseEvents([]abci.Event{
		abciEvent(chantypes.EventTypeSendPacket, chantypes.AttributeKeySequence, "seven"),
	})
	require.ErrorIs(t, err, core.ErrQuery)
}

func TestEventFilterMatch(t *testing.T) {
	f := core.EventFilter{PortID: "transfer", ChannelID: "channel-0"}
	out := core.Packet{SourcePort: "transfer", SourceChannel: "channel-0", DestinationPort: "transfer", DestinationChannel: "channel-9"}
	in := core.Packet{SourcePort: "transfer", SourceChannel: "channel-9", DestinationPort: "transfer", DestinationChannel: "channel-0"}

	require.True(t, f.Match(&core.EventSendPacket{Packet: out}))
	require.False(t, f.Match(&core.EventSendPacket{Packet: in}))
	require.True(t, f.Match(&core.EventWriteAcknowledgement{Packet: in}))
	require.False(t, f.Match(&core.EventWriteAcknowledgement{Packet: out}))
	require.True(t, f.Match(&core.EventTimeoutPacket{Packet: out}))
	require.True(t, f.Match(&core.EventChannelHandshake{PortID: "transfer", ChannelID: "channel-3"}))
	require.False(t, f.Match(&core.EventChannelHandshake{PortID: "oracle"}))
	require.True(t, f.Match(&core.EventNewBlock{}))
	require.True(t, core.EventFilter{}.Match(&core.EventSendPacket{Packet: in}))
}
