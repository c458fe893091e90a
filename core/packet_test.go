package core_test

import (
	"math/rand"
	"slices"
	"testing"
	"time"

	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/stretchr/testify/require"
)

func makePacketInfoList(seqs ...uint64) core.PacketInfoList {
	var packets core.PacketInfoList
	for _, seq := range seqs {
		packets = append(packets, &core.PacketInfo{Packet: core.Packet{Sequence: seq}})
	}
	return packets
}

func TestPacketInfoList(t *testing.T) {
	var expectedSeqs []uint64
	for i := 0; i < 10; i++ {
		expectedSeqs = append(expectedSeqs, rand.Uint64())
	}
	seqs := makePacketInfoList(expectedSeqs...).ExtractSequenceList()
	if len(seqs) != 10 || !slices.Equal(seqs, expectedSeqs) {
		t.Errorf("ExtractSequenceList returns an unexpected result: actual=%v, expected=%v", seqs, expectedSeqs)
	}

	packets := makePacketInfoList(7, 6, 5, 4, 3).Filter([]uint64{5, 6, 7, 8, 9})
	if !slices.Equal(packets.ExtractSequenceList(), []uint64{7, 6, 5}) {
		t.Errorf("Filter returns an unexpected result: actual=%v", packets.ExtractSequenceList())
	}

	packets = makePacketInfoList(7, 6, 5, 4, 3).Subtract([]uint64{5, 6, 7, 8, 9})
	if !slices.Equal(packets.ExtractSequenceList(), []uint64{4, 3}) {
		t.Errorf("Subtract returns an unexpected result: actual=%v", packets.ExtractSequenceList())
	}
}

func TestPacketTimedOut(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	type testCase struct {
		packet   core.Packet
		height   clienttypes.Height
		expected bool
	}
	cases := map[string]testCase{
		"height not reached": {
			packet:   core.Packet{TimeoutHeight: clienttypes.NewHeight(0, 10)},
			height:   clienttypes.NewHeight(0, 9),
			expected: false,
		},
		"height reached": {
			packet:   core.Packet{TimeoutHeight: clienttypes.NewHeight(0, 10)},
			height:   clienttypes.NewHeight(0, 10),
			expected: true,
		},
		"timestamp passed": {
			packet:   core.Packet{TimeoutTimestamp: uint64(now.Add(-time.Second).UnixNano())},
			height:   clienttypes.NewHeight(0, 1),
			expected: true,
		},
		"timestamp in the future": {
			packet:   core.Packet{TimeoutTimestamp: uint64(now.Add(time.Second).UnixNano())},
			height:   clienttypes.NewHeight(0, 1),
			expected: false,
		},
		"no timeout": {
			packet:   core.Packet{},
			height:   clienttypes.NewHeight(5, 1000),
			expected: false,
		},
	}
	for n, c := range cases {
		t.Run(n, func(t *testing.T) {
			require.Equal(t, c.expected, c.packet.TimedOut(c.height, now))
		})
	}
}

func TestPacketCommitmentAndValidation(t *testing.T) {
	p := core.Packet{
		Sequence:           1,
		SourcePort:         "transfer",
		SourceChannel:      "channel-0",
		DestinationPort:    "transfer",
		DestinationChannel: "channel-1",
		Data:               []byte("data"),
		TimeoutHeight:      clienttypes.NewHeight(0, 100),
	}
	require.NoError(t, p.ValidateBasic())
	require.Len(t, p.Commitment(), 32)

	other := p
	other.Data = []byte("other")
	require.NotEqual(t, p.Commitment(), other.Commitment())

	p.Sequence = 0
	require.ErrorIs(t, p.ValidateBasic(), core.ErrInvalidPacket)
}
