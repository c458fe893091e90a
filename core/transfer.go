package core

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdk "github.com/cosmos/cosmos-sdk/types"
	transfertypes "github.com/cosmos/ibc-go/v8/modules/apps/transfer/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	"go.opentelemetry.io/otel/codes"
)

// IBCDenom returns the voucher denom minted on the receiving chain for baseDenom arriving
// through the given receiving port and channel.
func IBCDenom(portID PortID, channelID ChannelID, baseDenom string) string {
	return transfertypes.ParseDenomTrace(transfertypes.GetPrefixedDenom(string(portID), string(channelID), baseDenom)).IBCDenom()
}

// SendTransfer sends amount from src's relayer account to receiver on dst and returns the
// packet it produced. The timeout is relative to dst's latest header: a height offset, a
// time offset or, if neither is given, 1000 blocks.
func SendTransfer(ctx context.Context, src, dst *Endpoint, amount sdk.Coin, receiver string, toHeightOffset uint64, toTimeOffset time.Duration) (*Packet, error) {
	ctx, span := tracer.Start(ctx, "SendTransfer", WithChannelPairAttributes(src, dst))
	defer span.End()
	logger := GetChannelPairLogger(src, dst)
	defer logger.TimeTrackContext(ctx, time.Now(), "SendTransfer")

	var (
		timeoutHeight    clienttypes.Height
		timeoutTimestamp uint64
	)
	h, err := dst.Chain.QueryLatestHeader(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	switch {
	case toHeightOffset > 0 && toTimeOffset > 0:
		return nil, errorsmod.Wrap(ErrInvalidMsg, "cannot set both timeout height and time offset")
	case toHeightOffset > 0:
		timeoutHeight = clienttypes.NewHeight(h.Height.GetRevisionNumber(), h.Height.GetRevisionHeight()+toHeightOffset)
	case toTimeOffset > 0:
		timeoutTimestamp = uint64(h.Time.Add(toTimeOffset).UnixNano())
	default:
		timeoutHeight = clienttypes.NewHeight(h.Height.GetRevisionNumber(), h.Height.GetRevisionHeight()+1000)
	}

	msg := &MsgTransfer{
		SourcePort:       src.End.PortID,
		SourceChannel:    src.End.ChannelID,
		Token:            amount,
		Sender:           src.Signer(),
		Receiver:         receiver,
		TimeoutHeight:    timeoutHeight,
		TimeoutTimestamp: timeoutTimestamp,
	}
	res, err := src.Submit(ctx, []Msg{msg})
	if err != nil {
		logger.ErrorContext(ctx, "failed to send transfer message", err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	for _, ev := range res.Events {
		if sp, ok := ev.(*EventSendPacket); ok {
			logger.InfoContext(ctx, "★ transfer sent", "amount", amount.String(), "sequence", sp.Packet.Sequence)
			return &sp.Packet, nil
		}
	}
	return nil, errorsmod.Wrap(ErrSubmission, "transfer result carries no send_packet event")
}
