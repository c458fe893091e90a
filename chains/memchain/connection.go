package memchain

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	conntypes "github.com/cosmos/ibc-go/v8/modules/core/03-connection/types"
	"github.com/datachainlab/ibc-relayer/core"
)

func (x *tx) handleConnectionMsg(ctx context.Context, msg core.ConnectionMsg) ([]abci.Event, error) {
	switch msg := msg.(type) {
	case *core.MsgConnectionOpenInit:
		return x.connectionOpenInit(msg)
	case *core.MsgConnectionOpenTry:
		return x.connectionOpenTry(msg)
	case *core.MsgConnectionOpenAck:
		return x.connectionOpenAck(msg)
	case *core.MsgConnectionOpenConfirm:
		return x.connectionOpenConfirm(msg)
	default:
		return nil, errorsmod.Wrapf(core.ErrUnroutableMessage, "connection message %T", msg)
	}
}

func (x *tx) newConnectionID() (core.ConnectionID, error) {
	seq, err := x.store.nextCounter("connections")
	if err != nil {
		return "", err
	}
	return core.ConnectionID(conntypes.FormatConnectionIdentifier(seq)), nil
}

func (x *tx) connectionOpenInit(msg *core.MsgConnectionOpenInit) ([]abci.Event, error) {
	if _, err := getClientState(x.store, msg.ClientID); err != nil {
		return nil, err
	}
	if _, err := core.PickVersion(x.chain.config.ConnectionVersions, []string{msg.Version}); err != nil {
		return nil, err
	}
	end, err := core.NewConnectionEnd(msg.ClientID, msg.Counterparty, []string{msg.Version}, msg.DelayPeriod)
	if err != nil {
		return nil, err
	}
	if err := end.SetState(core.StageInit); err != nil {
		return nil, err
	}
	id, err := x.newConnectionID()
	if err != nil {
		return nil, err
	}
	if err := setConnection(x.store, id, end); err != nil {
		return nil, err
	}
	return []abci.Event{connectionEvent(conntypes.EventTypeConnectionOpenInit, id, end)}, nil
}

func (x *tx) connectionOpenTry(msg *core.MsgConnectionOpenTry) ([]abci.Event, error) {
	if _, err := getClientState(x.store, msg.ClientID); err != nil {
		return nil, err
	}
	expected := &core.ConnectionEnd{
		State:    core.StageInit,
		ClientID: msg.Counterparty.ClientID,
		Counterparty: core.ConnectionCounterparty{
			ClientID: msg.ClientID,
			Prefix:   core.DefaultCommitmentPrefix,
		},
		Versions:    msg.CounterpartyVersions,
		DelayPeriod: msg.DelayPeriod,
	}
	if err := x.verifyConnection(msg.ClientID, msg.Counterparty.ConnectionID, expected, msg.ProofInit, msg.ProofHeight); err != nil {
		return nil, err
	}
	version, err := core.PickVersion(x.chain.config.ConnectionVersions, msg.CounterpartyVersions)
	if err != nil {
		return nil, err
	}
	end, err := core.NewConnectionEnd(msg.ClientID, msg.Counterparty, []string{version}, msg.DelayPeriod)
	if err != nil {
		return nil, err
	}
	if err := end.SetState(core.StageInit); err != nil {
		return nil, err
	}
	if err := end.SetState(core.StageTryOpen); err != nil {
		return nil, err
	}
	id, err := x.newConnectionID()
	if err != nil {
		return nil, err
	}
	if err := setConnection(x.store, id, end); err != nil {
		return nil, err
	}
	return []abci.Event{connectionEvent(conntypes.EventTypeConnectionOpenTry, id, end)}, nil
}

func (x *tx) connectionOpenAck(msg *core.MsgConnectionOpenAck) ([]abci.Event, error) {
	end, err := getConnection(x.store, msg.ConnectionID)
	if err != nil {
		return nil, err
	}
	if end.State == core.StageOpen && end.Counterparty.ConnectionID == msg.CounterpartyConnectionID {
		return nil, errorsmod.Wrapf(core.ErrRedundantMsg, "connection %s is already open", msg.ConnectionID)
	}
	if end.State != core.StageInit {
		return nil, errorsmod.Wrapf(core.ErrInvalidStateTransition, "connection %s is %s, ack needs INIT", msg.ConnectionID, end.State)
	}
	if _, err := core.PickVersion(end.Versions, []string{msg.Version}); err != nil {
		return nil, err
	}
	expected := &core.ConnectionEnd{
		State:    core.StageTryOpen,
		ClientID: end.Counterparty.ClientID,
		Counterparty: core.ConnectionCounterparty{
			ClientID:     end.ClientID,
			ConnectionID: msg.ConnectionID,
			Prefix:       core.DefaultCommitmentPrefix,
		},
		Versions:    []string{msg.Version},
		DelayPeriod: end.DelayPeriod,
	}
	if err := x.verifyConnection(end.ClientID, msg.CounterpartyConnectionID, expected, msg.ProofTry, msg.ProofHeight); err != nil {
		return nil, err
	}
	end.Counterparty.ConnectionID = msg.CounterpartyConnectionID
	end.Versions = []string{msg.Version}
	if err := end.SetState(core.StageTryOpen); err != nil {
		return nil, err
	}
	if err := end.SetState(core.StageOpen); err != nil {
		return nil, err
	}
	if err := setConnection(x.store, msg.ConnectionID, end); err != nil {
		return nil, err
	}
	return []abci.Event{connectionEvent(conntypes.EventTypeConnectionOpenAck, msg.ConnectionID, end)}, nil
}

func (x *tx) connectionOpenConfirm(msg *core.MsgConnectionOpenConfirm) ([]abci.Event, error) {
	end, err := getConnection(x.store, msg.ConnectionID)
	if err != nil {
		return nil, err
	}
	switch end.State {
	case core.StageTryOpen:
	case core.StageOpen:
		return nil, errorsmod.Wrapf(core.ErrRedundantMsg, "connection %s is already open", msg.ConnectionID)
	default:
		return nil, errorsmod.Wrapf(core.ErrInvalidStateTransition, "connection %s is %s, confirm needs TRYOPEN", msg.ConnectionID, end.State)
	}
	expected := &core.ConnectionEnd{
		State:    core.StageOpen,
		ClientID: end.Counterparty.ClientID,
		Counterparty: core.ConnectionCounterparty{
			ClientID:     end.ClientID,
			ConnectionID: msg.ConnectionID,
			Prefix:       core.DefaultCommitmentPrefix,
		},
		Versions:    end.Versions,
		DelayPeriod: end.DelayPeriod,
	}
	if err := x.verifyConnection(end.ClientID, end.Counterparty.ConnectionID, expected, msg.ProofAck, msg.ProofHeight); err != nil {
		return nil, err
	}
	if err := end.SetState(core.StageOpen); err != nil {
		return nil, err
	}
	if err := setConnection(x.store, msg.ConnectionID, end); err != nil {
		return nil, err
	}
	return []abci.Event{connectionEvent(conntypes.EventTypeConnectionOpenConfirm, msg.ConnectionID, end)}, nil
}

// verifyConnection checks that the counterparty stores expected under its connection id.
func (x *tx) verifyConnection(clientID core.ClientID, cpConnectionID core.ConnectionID, expected *core.ConnectionEnd, proof []byte, proofHeight clienttypes.Height) error {
	bz, err := expected.CommitmentBytes()
	if err != nil {
		return err
	}
	_, err = x.verifyState(clientID, proofHeight, proof, core.ConnectionPath(cpConnectionID), bz)
	return err
}

func connectionEvent(typ string, id core.ConnectionID, end *core.ConnectionEnd) abci.Event {
	return newEvent(typ,
		conntypes.AttributeKeyConnectionID, string(id),
		conntypes.AttributeKeyClientID, string(end.ClientID),
		conntypes.AttributeKeyCounterpartyClientID, string(end.Counterparty.ClientID),
		conntypes.AttributeKeyCounterpartyConnectionID, string(end.Counterparty.ConnectionID),
	)
}
