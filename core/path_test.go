package core_test

import (
	"testing"

	"github.com/datachainlab/ibc-relayer/core"
	"github.com/stretchr/testify/require"
)

func TestPathValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(p *core.Path)
		err    error
	}{
		{"fresh", func(*core.Path) {}, nil},
		{"linked", func(p *core.Path) { p.Src, p.Dst = linkedPathEnd(chainA), linkedPathEnd(chainB) }, nil},
		{"missing end", func(p *core.Path) { p.Dst = nil }, core.ErrInvalidPath},
		{"same chain", func(p *core.Path) { p.Dst.ChainID = chainA }, core.ErrInvalidPath},
		{"port on one end", func(p *core.Path) { p.Dst.PortID = "" }, core.ErrInvalidPath},
		{"bad client id", func(p *core.Path) { p.Src.ClientID = "x" }, core.ErrInvalidIdentifier},
		{"bad order", func(p *core.Path) { p.Src.Order = "sorted" }, core.ErrInvalidPath},
		{"order mismatch", func(p *core.Path) { p.Src.Order = "ordered" }, core.ErrOrderingMismatch},
		{"empty version", func(p *core.Path) { p.Src.ConnectionVersions = []string{""} }, core.ErrInvalidVersion},
		{"bad filter", func(p *core.Path) { p.Filter = &core.PacketFilter{Policy: "maybe"} }, core.ErrInvalidPath},
		{"bad pattern", func(p *core.Path) {
			p.Filter = &core.PacketFilter{Policy: core.FilterAllow, List: [][2]string{{"[", "*"}}}
		}, core.ErrInvalidPath},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTransferPath()
			tc.modify(p)
			err := p.Validate()
			if tc.err == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tc.err)
			}
		})
	}
}

func TestPaths(t *testing.T) {
	paths := core.Paths{}
	require.NoError(t, paths.Add("b", newTransferPath()))
	other := newTransferPath()
	other.Dst.ChainID = "ibc2"
	require.NoError(t, paths.Add("a", other))

	require.ErrorIs(t, paths.Add("a", newTransferPath()), core.ErrInvalidPath)
	require.Equal(t, []string{"a", "b"}, paths.Names())

	p, err := paths.Get("b")
	require.NoError(t, err)
	require.Equal(t, chainB, p.Dst.ChainID)
	_, err = paths.Get("c")
	require.ErrorIs(t, err, core.ErrInvalidPath)

	found, err := paths.PathsFromChains(chainB, chainA)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, found.Names())
	_, err = paths.PathsFromChains(chainB, "ibc2")
	require.ErrorIs(t, err, core.ErrInvalidPath)
}

func TestPacketFilterAllows(t *testing.T) {
	list := [][2]string{{"transfer", "channel-1*"}}
	cases := []struct {
		name    string
		filter  *core.PacketFilter
		channel core.ChannelID
		allowed bool
	}{
		{"nil filter", nil, "channel-0", true},
		{"allow listed", &core.PacketFilter{Policy: core.FilterAllow, List: list}, "channel-12", true},
		{"allow unlisted", &core.PacketFilter{Policy: core.FilterAllow, List: list}, "channel-0", false},
		{"deny listed", &core.PacketFilter{Policy: core.FilterDeny, List: list}, "channel-1", false},
		{"deny unlisted", &core.PacketFilter{Policy: core.FilterDeny, List: list}, "channel-0", true},
		{"unassigned channel", &core.PacketFilter{Policy: core.FilterAllow, List: list}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.allowed, tc.filter.Allows("transfer", tc.channel))
		})
	}
}

func TestPathRelaysPackets(t *testing.T) {
	p := &core.Path{Src: linkedPathEnd(chainA), Dst: linkedPathEnd(chainB)}
	require.True(t, p.RelaysPackets())

	p.Filter = &core.PacketFilter{Policy: core.FilterAllow, List: [][2]string{{"transfer", "channel-0"}}}
	require.True(t, p.RelaysPackets())
	p.Dst.ChannelID = "channel-5"
	require.False(t, p.RelaysPackets())

	p.Src.PortID, p.Dst.PortID = "", ""
	p.Filter = nil
	require.False(t, p.RelaysPackets(), "a connection-only path relays nothing")
}
