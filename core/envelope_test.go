package core_test

import (
	"context"
	"testing"

	abci "github.com/cometbft/cometbft/abci/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/stretchr/testify/require"
)

// foreignMsg is a well formed message outside the closed set of categories.
type foreignMsg struct{}

func (foreignMsg) Type() string         { return "foreign" }
func (foreignMsg) ValidateBasic() error { return nil }

func transferMsg() *core.MsgTransfer {
	return &core.MsgTransfer{
		SourcePort:    "transfer",
		SourceChannel: "channel-0",
		Token:         sdk.NewInt64Coin("samoleans", 10),
		Sender:        "alice",
		Receiver:      "bob",
		TimeoutHeight: clienttypes.NewHeight(0, 100),
	}
}

func TestWrapRoutes(t *testing.T) {
	cases := map[string]struct {
		msg   core.Msg
		route core.Route
	}{
		"client":     {msg: &core.MsgUpdateClient{}, route: core.RouteClient},
		"connection": {msg: &core.MsgConnectionOpenInit{}, route: core.RouteConnection},
		"channel":    {msg: &core.MsgRecvPacket{}, route: core.RouteChannel},
		"close":      {msg: &core.MsgChannelCloseInit{}, route: core.RouteChannel},
		"transfer":   {msg: transferMsg(), route: core.RouteTransfer},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			env, err := core.Wrap(c.msg)
			require.NoError(t, err)
			require.Equal(t, c.route, env.Route())
			require.Same(t, c.msg, env.Msg())
		})
	}

	_, err := core.Wrap(foreignMsg{})
	require.ErrorIs(t, err, core.ErrUnroutableMessage)
	require.Equal(t, core.ClassProtocolViolation, core.ClassOf(err))
}

func TestWrapAllStopsAtFirstInvalid(t *testing.T) {
	envs, err := core.WrapAll([]core.Msg{transferMsg(), transferMsg()})
	require.NoError(t, err)
	require.Len(t, envs, 2)

	bad := transferMsg()
	bad.Receiver = ""
	_, err = core.WrapAll([]core.Msg{transferMsg(), bad})
	require.ErrorIs(t, err, core.ErrInvalidMsg)

	_, err = core.WrapAll([]core.Msg{transferMsg(), foreignMsg{}})
	require.ErrorIs(t, err, core.ErrUnroutableMessage)
}

func TestValidateEnvelopeRejectsEmpty(t *testing.T) {
	for _, env := range []core.Envelope{
		core.ClientEnvelope{},
		core.ConnectionEnvelope{},
		core.ChannelEnvelope{},
		core.TransferEnvelope{},
	} {
		require.ErrorIs(t, core.ValidateEnvelope(env), core.ErrUnroutableMessage, "%T", env)
	}
}

func TestRouterDispatch(t *testing.T) {
	var got []core.Msg
	r := &core.Router{
		Transfer: func(_ context.Context, msg core.TransferMsg) ([]abci.Event, error) {
			got = append(got, msg)
			return []abci.Event{{Type: "transfer"}}, nil
		},
	}
	msg := transferMsg()
	env, err := core.Wrap(msg)
	require.NoError(t, err)
	events, err := r.Dispatch(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, []core.Msg{msg}, got)

	// no connection handler is registered
	_, err = r.Dispatch(context.Background(), core.ConnectionEnvelope{Inner: &core.MsgConnectionOpenInit{
		ClientID: "mock-client-0",
		Counterparty: core.ConnectionCounterparty{
			ClientID: "mock-client-1",
			Prefix:   core.DefaultCommitmentPrefix,
		},
		Version: "1",
		Signer:  "relayer",
	}})
	require.ErrorIs(t, err, core.ErrUnroutableMessage)
	require.Len(t, got, 1)
}
