package memchain

import (
	"context"
	"fmt"
	"time"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	host "github.com/cosmos/ibc-go/v8/modules/core/24-host"
	"github.com/datachainlab/ibc-relayer/core"
)

// LightClientType names the clients memchain hosts. Their headers are mock-client headers.
const LightClientType = "mock-client"

// tx is the state of one transaction being applied in the block at height.
type tx struct {
	chain  *Chain
	store  *txStore
	height clienttypes.Height
	time   time.Time
}

func (x *tx) router() *core.Router {
	return &core.Router{
		Client:     x.handleClientMsg,
		Connection: x.handleConnectionMsg,
		Channel:    x.handleChannelMsg,
		Transfer:   x.handleTransferMsg,
	}
}

func (x *tx) handleClientMsg(ctx context.Context, msg core.ClientMsg) ([]abci.Event, error) {
	switch msg := msg.(type) {
	case *core.MsgCreateClient:
		return x.createClient(msg)
	case *core.MsgUpdateClient:
		return x.updateClient(msg)
	default:
		return nil, errorsmod.Wrapf(core.ErrUnroutableMessage, "client message %T", msg)
	}
}

func (x *tx) createClient(msg *core.MsgCreateClient) ([]abci.Event, error) {
	seq, err := x.store.nextCounter("clients")
	if err != nil {
		return nil, err
	}
	clientID := core.ClientID(clienttypes.FormatClientIdentifier(LightClientType, seq))
	if err := x.store.setJSON(host.FullClientStatePath(string(clientID)), msg.ClientState); err != nil {
		return nil, err
	}
	if err := x.store.setJSON(host.FullConsensusStatePath(string(clientID), msg.ClientState.LatestHeight), msg.ConsensusState); err != nil {
		return nil, err
	}
	return []abci.Event{newEvent(clienttypes.EventTypeCreateClient,
		clienttypes.AttributeKeyClientID, string(clientID),
		clienttypes.AttributeKeyClientType, LightClientType,
		clienttypes.AttributeKeyConsensusHeight, msg.ClientState.LatestHeight.String(),
	)}, nil
}

func (x *tx) updateClient(msg *core.MsgUpdateClient) ([]abci.Event, error) {
	cs, err := getClientState(x.store, msg.ClientID)
	if err != nil {
		return nil, err
	}
	consKey := host.FullConsensusStatePath(string(msg.ClientID), msg.Header.Height)
	if found, err := x.store.has(consKey); err != nil {
		return nil, err
	} else if found {
		return nil, errorsmod.Wrapf(core.ErrRedundantMsg, "client %s already has a consensus state at %s", msg.ClientID, msg.Header.Height)
	}
	trustedHeight := msg.Header.TrustedHeight
	if trustedHeight.IsZero() {
		trustedHeight = cs.LatestHeight
	}
	trusted, err := getConsensusState(x.store, msg.ClientID, trustedHeight)
	if err != nil {
		return nil, errorsmod.Wrapf(core.ErrUntrustedHeader, "no trusted consensus state at %s", trustedHeight)
	}
	if err := core.VerifyHeader(cs, trusted, msg.Header, x.time); err != nil {
		return nil, err
	}
	if msg.Header.Height.GT(cs.LatestHeight) {
		cs.LatestHeight = msg.Header.Height
	}
	if err := x.store.setJSON(host.FullClientStatePath(string(msg.ClientID)), cs); err != nil {
		return nil, err
	}
	if err := x.store.setJSON(consKey, msg.Header.ConsensusState()); err != nil {
		return nil, err
	}
	return []abci.Event{newEvent(clienttypes.EventTypeUpdateClient,
		clienttypes.AttributeKeyClientID, string(msg.ClientID),
		clienttypes.AttributeKeyClientType, LightClientType,
		clienttypes.AttributeKeyConsensusHeight, msg.Header.Height.String(),
	)}, nil
}

// newEvent builds an event from alternating attribute keys and values.
func newEvent(typ string, kv ...string) abci.Event {
	if len(kv)%2 != 0 {
		panic(fmt.Sprintf("odd attribute list for %s", typ))
	}
	ev := abci.Event{Type: typ}
	for i := 0; i < len(kv); i += 2 {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: kv[i], Value: kv[i+1], Index: true})
	}
	return ev
}
