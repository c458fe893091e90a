package memchain

import (
	"context"
	"strings"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	abci "github.com/cometbft/cometbft/abci/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	transfertypes "github.com/cosmos/ibc-go/v8/modules/apps/transfer/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	"github.com/datachainlab/ibc-relayer/core"
)

// transferApp is the ICS-20 fungible token module. Native tokens are escrowed on the way out
// and vouchers are minted on the receiving chain; vouchers going back are burned.
type transferApp struct{}

var _ application = transferApp{}

func (transferApp) Version() string {
	return transfertypes.Version
}

func (x *tx) handleTransferMsg(ctx context.Context, msg core.TransferMsg) ([]abci.Event, error) {
	m, ok := msg.(*core.MsgTransfer)
	if !ok {
		return nil, errorsmod.Wrapf(core.ErrUnroutableMessage, "transfer message %T", msg)
	}
	app, err := x.application(m.SourcePort)
	if err != nil {
		return nil, err
	}
	if _, ok := app.(transferApp); !ok {
		return nil, errorsmod.Wrapf(core.ErrInvalidMsg, "port %s is not bound to the transfer module", m.SourcePort)
	}

	fullDenomPath, err := x.fullDenomPath(m.Token.Denom)
	if err != nil {
		return nil, err
	}
	if err := subBalance(x.store, m.Sender, m.Token); err != nil {
		return nil, err
	}
	if transfertypes.SenderChainIsSource(string(m.SourcePort), string(m.SourceChannel), fullDenomPath) {
		escrow := transfertypes.GetEscrowAddress(string(m.SourcePort), string(m.SourceChannel)).String()
		if err := addBalance(x.store, escrow, m.Token); err != nil {
			return nil, err
		}
	}

	data := transfertypes.NewFungibleTokenPacketData(fullDenomPath, m.Token.Amount.String(), m.Sender, m.Receiver, m.Memo)
	_, ev, err := x.sendPacket(m.SourcePort, m.SourceChannel, data.GetBytes(), m.TimeoutHeight, m.TimeoutTimestamp)
	if err != nil {
		return nil, err
	}
	return []abci.Event{ev}, nil
}

// fullDenomPath resolves a voucher denom to its trace. Native denoms are returned as is.
func (x *tx) fullDenomPath(denom string) (string, error) {
	hash, ok := strings.CutPrefix(denom, transfertypes.DenomPrefix+"/")
	if !ok {
		return denom, nil
	}
	path, err := x.store.get(denomTraceKey(hash))
	if err != nil {
		return "", err
	}
	if path == nil {
		return "", errorsmod.Wrapf(core.ErrInvalidMsg, "unknown denom trace %s", denom)
	}
	return string(path), nil
}

func (transferApp) OnRecvPacket(x *tx, p core.Packet) chantypes.Acknowledgement {
	if err := receiveTokens(x, p); err != nil {
		return chantypes.NewErrorAcknowledgement(err)
	}
	return chantypes.NewResultAcknowledgement([]byte{byte(1)})
}

func receiveTokens(x *tx, p core.Packet) error {
	data, amount, err := decodePacketData(p.Data)
	if err != nil {
		return err
	}
	if transfertypes.ReceiverChainIsSource(string(p.SourcePort), string(p.SourceChannel), data.Denom) {
		// a voucher coming home releases the escrowed tokens
		unprefixed := data.Denom[len(transfertypes.GetDenomPrefix(string(p.SourcePort), string(p.SourceChannel))):]
		token := sdk.NewCoin(transfertypes.ParseDenomTrace(unprefixed).IBCDenom(), amount)
		escrow := transfertypes.GetEscrowAddress(string(p.DestinationPort), string(p.DestinationChannel)).String()
		if err := subBalance(x.store, escrow, token); err != nil {
			return err
		}
		return addBalance(x.store, data.Receiver, token)
	}

	trace := transfertypes.ParseDenomTrace(transfertypes.GetPrefixedDenom(string(p.DestinationPort), string(p.DestinationChannel), data.Denom))
	x.store.set(denomTraceKey(trace.Hash().String()), []byte(trace.GetFullDenomPath()))
	return addBalance(x.store, data.Receiver, sdk.NewCoin(trace.IBCDenom(), amount))
}

func (transferApp) OnAcknowledgementPacket(x *tx, p core.Packet, ackBytes []byte) error {
	var ack chantypes.Acknowledgement
	if err := transfertypes.ModuleCdc.UnmarshalJSON(ackBytes, &ack); err != nil {
		return errorsmod.Wrapf(core.ErrInvalidPacket, "cannot decode acknowledgement: %v", err)
	}
	if ack.Success() {
		return nil
	}
	return refundTokens(x, p)
}

func (transferApp) OnTimeoutPacket(x *tx, p core.Packet) error {
	return refundTokens(x, p)
}

func refundTokens(x *tx, p core.Packet) error {
	data, amount, err := decodePacketData(p.Data)
	if err != nil {
		return err
	}
	token := sdk.NewCoin(transfertypes.ParseDenomTrace(data.Denom).IBCDenom(), amount)
	if transfertypes.SenderChainIsSource(string(p.SourcePort), string(p.SourceChannel), data.Denom) {
		escrow := transfertypes.GetEscrowAddress(string(p.SourcePort), string(p.SourceChannel)).String()
		if err := subBalance(x.store, escrow, token); err != nil {
			return err
		}
	}
	return addBalance(x.store, data.Sender, token)
}

func decodePacketData(bz []byte) (transfertypes.FungibleTokenPacketData, sdkmath.Int, error) {
	var data transfertypes.FungibleTokenPacketData
	if err := transfertypes.ModuleCdc.UnmarshalJSON(bz, &data); err != nil {
		return data, sdkmath.Int{}, errorsmod.Wrapf(core.ErrInvalidPacket, "cannot decode transfer data: %v", err)
	}
	if err := data.ValidateBasic(); err != nil {
		return data, sdkmath.Int{}, errorsmod.Wrap(core.ErrInvalidPacket, err.Error())
	}
	amount, ok := sdkmath.NewIntFromString(data.Amount)
	if !ok {
		return data, sdkmath.Int{}, errorsmod.Wrapf(core.ErrInvalidPacket, "invalid amount %q", data.Amount)
	}
	return data, amount, nil
}
