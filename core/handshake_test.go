package core_test

import (
	"errors"
	"testing"

	"github.com/datachainlab/ibc-relayer/core"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestValidateVersions(t *testing.T) {
	cases := map[string]struct {
		versions []string
		expected []string
		err      error
	}{
		"empty":      {versions: []string{}, err: core.ErrInvalidVersion},
		"nil":        {versions: nil, err: core.ErrInvalidVersion},
		"blank":      {versions: []string{""}, err: core.ErrInvalidVersion},
		"whitespace": {versions: []string{"1", "  "}, err: core.ErrInvalidVersion},
		"single":     {versions: []string{"1"}, expected: []string{"1"}},
		"many":       {versions: []string{"2", "1"}, expected: []string{"2", "1"}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			vs, err := core.ValidateVersions(c.versions)
			if c.err != nil {
				require.ErrorIs(t, err, c.err)
				require.Equal(t, core.ClassValidation, core.ClassOf(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, c.expected, vs)
		})
	}
}

func TestPickVersion(t *testing.T) {
	v, err := core.PickVersion([]string{"1", "2"}, []string{"3", "2", "1"})
	require.NoError(t, err)
	require.Equal(t, "2", v)

	_, err = core.PickVersion([]string{"1"}, []string{"2"})
	require.ErrorIs(t, err, core.ErrConnectionVersionNegotiate)
}

func TestNextHandshakeStepOpenIsTerminal(t *testing.T) {
	step, err := core.NextHandshakeStep(core.StageOpen, core.StageOpen)
	require.NoError(t, err)
	require.Equal(t, core.ActionNone, step.Action)
}

func TestNextHandshakeStepRejectsUnreachablePairs(t *testing.T) {
	pairs := [][2]core.HandshakeStage{
		{core.StageOpen, core.StageUninitialized},
		{core.StageUninitialized, core.StageOpen},
		{core.StageTryOpen, core.StageTryOpen},
		{core.StageInit, core.StageInit},
		{core.StageClosed, core.StageOpen},
	}
	for _, p := range pairs {
		_, err := core.NextHandshakeStep(p[0], p[1])
		require.ErrorIs(t, err, core.ErrInvalidStateTransition, "pair %v", p)
	}
}

// Starting from any reachable pair, applying the computed steps only moves ends forward and
// reaches (Open, Open) within four steps.
func TestHandshakeTerminates(t *testing.T) {
	reachable := [][2]core.HandshakeStage{
		{core.StageUninitialized, core.StageUninitialized},
		{core.StageInit, core.StageUninitialized},
		{core.StageUninitialized, core.StageInit},
		{core.StageInit, core.StageTryOpen},
		{core.StageTryOpen, core.StageInit},
		{core.StageOpen, core.StageTryOpen},
		{core.StageTryOpen, core.StageOpen},
	}
	rapid.Check(t, func(t *rapid.T) {
		start := rapid.SampledFrom(reachable).Draw(t, "start")
		src, dst := start[0], start[1]
		for i := 0; i < 4; i++ {
			step, err := core.NextHandshakeStep(src, dst)
			if err != nil {
				t.Fatalf("(%s, %s): %v", src, dst, err)
			}
			if step.Action == core.ActionNone {
				break
			}
			next := step.Produces()
			if step.OnSrc {
				if next <= src {
					t.Fatalf("src moved backwards: %s -> %s", src, next)
				}
				src = next
			} else {
				if next <= dst {
					t.Fatalf("dst moved backwards: %s -> %s", dst, next)
				}
				dst = next
			}
			if step.Last && !(src == core.StageOpen && dst == core.StageOpen) {
				t.Fatalf("last step left (%s, %s)", src, dst)
			}
		}
		if src != core.StageOpen || dst != core.StageOpen {
			t.Fatalf("handshake from %v stopped at (%s, %s)", start, src, dst)
		}
	})
}

func TestConnectionEndMovesForwardOnly(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		end, err := core.NewConnectionEnd("mock-client-0", core.ConnectionCounterparty{
			ClientID:     "mock-client-1",
			ConnectionID: "connection-0",
			Prefix:       core.DefaultCommitmentPrefix,
		}, []string{"1"}, 0)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 8; i++ {
			before := end.State
			next := rapid.SampledFrom([]core.HandshakeStage{
				core.StageUninitialized, core.StageInit, core.StageTryOpen, core.StageOpen, core.StageClosed,
			}).Draw(t, "next")
			if err := end.SetState(next); err != nil {
				if !errors.Is(err, core.ErrInvalidStateTransition) {
					t.Fatalf("unexpected error: %v", err)
				}
				if end.State != before {
					t.Fatalf("failed transition changed state to %s", end.State)
				}
				continue
			}
			if end.State != before+1 {
				t.Fatalf("%s -> %s is not a single step forward", before, end.State)
			}
		}
	})
}

func TestChannelEndClosesOnlyWhenOpen(t *testing.T) {
	end, err := core.NewChannelEnd(core.OrderOrdered, core.ChannelCounterparty{PortID: "transfer"}, "connection-0", "ics20-1")
	require.NoError(t, err)
	require.ErrorIs(t, end.SetState(core.StageClosed), core.ErrInvalidStateTransition)
	require.NoError(t, end.SetState(core.StageInit))
	require.NoError(t, end.SetState(core.StageTryOpen))
	// opening needs the counterparty channel id
	require.ErrorIs(t, end.SetState(core.StageOpen), core.ErrInvalidStateTransition)
	end.Counterparty.ChannelID = "channel-4"
	require.NoError(t, end.SetState(core.StageOpen))
	require.NoError(t, end.SetState(core.StageClosed))
	require.ErrorIs(t, end.SetState(core.StageOpen), core.ErrInvalidStateTransition)

	_, err = core.NewChannelEnd(core.OrderNone, core.ChannelCounterparty{PortID: "transfer"}, "connection-0", "")
	require.Error(t, err)
}

func TestConnectionEndProtoRoundTrip(t *testing.T) {
	end := &core.ConnectionEnd{
		State:    core.StageTryOpen,
		ClientID: "mock-client-0",
		Counterparty: core.ConnectionCounterparty{
			ClientID:     "mock-client-3",
			ConnectionID: "connection-7",
			Prefix:       core.DefaultCommitmentPrefix,
		},
		Versions: []string{"1"},
	}
	got, err := core.ConnectionEndFromProto(end.ToProto())
	require.NoError(t, err)
	require.Equal(t, end, got)

	pc := end.ToProto()
	pc.Counterparty.Prefix.KeyPrefix = nil
	_, err = core.ConnectionEndFromProto(pc)
	require.ErrorIs(t, err, core.ErrMissingCounterpartyPrefix)
}

func TestStageOf(t *testing.T) {
	var noConn *core.ConnectionEnd
	var noChan *core.ChannelEnd
	open := &core.ChannelEnd{State: core.StageOpen}
	cases := map[string]struct {
		end      core.HandshakeEnd
		expected core.HandshakeStage
	}{
		"no end":             {nil, core.StageUninitialized},
		"nil connection":     {noConn, core.StageUninitialized},
		"nil channel":        {noChan, core.StageUninitialized},
		"tryopen connection": {&core.ConnectionEnd{State: core.StageTryOpen}, core.StageTryOpen},
		"open channel":       {open, core.StageOpen},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.expected, core.StageOf(tc.end))
		})
	}
}
