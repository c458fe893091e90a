package core

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"
	retry "github.com/avast/retry-go"
	"github.com/datachainlab/ibc-relayer/log"
	"go.opentelemetry.io/otel/codes"
)

// CreateChannel runs the channel handshake on top of an open connection until both ends are open
func CreateChannel(ctx context.Context, pathName string, src, dst *Endpoint, interval time.Duration) error {
	ctx, span := tracer.Start(ctx, "CreateChannel", WithChannelPairAttributes(src, dst))
	defer span.End()
	logger := GetChannelPairLogger(src, dst)
	defer logger.TimeTrackContext(ctx, time.Now(), "CreateChannel")

	failed := 0
	err := runUntilComplete(ctx, interval, func() (bool, error) {
		chanSteps, err := ChannelStep(ctx, src, dst)
		if err != nil {
			logger.ErrorContext(ctx, "failed to create channel step", err)
			return false, err
		}

		if !chanSteps.Ready() {
			if chanSteps.Last {
				logger.InfoContext(ctx, "channels are already open", "src_channel_id", src.End.ChannelID, "dst_channel_id", dst.End.ChannelID)
				return true, nil
			}
			logger.DebugContext(ctx, "Waiting for next channel step ...")
			return false, nil
		}

		if err := SendHandshakeStep(ctx, pathName, chanSteps, src, dst); err == nil {
			if chanSteps.Last {
				logger.InfoContext(ctx, "★ Channel created")
				return true, nil
			}
			failed = 0
		} else {
			if ClassOf(err) == ClassProtocolViolation || ClassOf(err) == ClassValidation {
				return false, err
			}
			if failed++; failed > 2 {
				err := errorsmod.Wrapf(ErrSubmission, "channel handshake failed: %v", err)
				logger.ErrorContext(ctx, err.Error(), err)
				return false, err
			}
			logger.WarnContext(ctx, "Retrying transaction...")
			if err := wait(ctx, 5*time.Second); err != nil {
				return false, err
			}
		}
		return false, nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// ChannelStep computes the msgs advancing the channel handshake by one step.
// An empty result with Last set means both ends are already open.
func ChannelStep(ctx context.Context, src, dst *Endpoint) (*RelayMsgs, error) {
	out := NewRelayMsgs()
	if err := validateEndpoints(src, dst); err != nil {
		return nil, err
	}
	if !src.End.HasChannel() || !dst.End.HasChannel() {
		return nil, errorsmod.Wrap(ErrInvalidPath, "port-id must be set on both ends for the channel handshake")
	}
	if src.End.ChannelOrder() != dst.End.ChannelOrder() {
		return nil, errorsmod.Wrapf(ErrOrderingMismatch, "src order %s, dst order %s", src.End.ChannelOrder(), dst.End.ChannelOrder())
	}

	var (
		srcConn, dstConn *ConnectionEnd
		srcChan, dstChan *ChannelEnd
	)
	if err := retry.Do(func() error {
		var err error
		if srcConn, dstConn, err = QueryConnectionPair(ctx, src, dst); err != nil {
			return err
		}
		srcChan, dstChan, err = QueryChannelPair(ctx, src, dst)
		return err
	}, rtyAtt, rtyDel, rtyErr, retry.Context(ctx), retry.RetryIf(IsRetryable)); err != nil {
		return nil, err
	}
	if StageOf(srcConn) != StageOpen || StageOf(dstConn) != StageOpen {
		return nil, errorsmod.Wrapf(ErrInvalidStateTransition, "connection must be open on both ends, got (%s, %s)",
			StageOf(srcConn), StageOf(dstConn))
	}

	step, err := NextHandshakeStep(StageOf(srcChan), StageOf(dstChan))
	if err != nil {
		return nil, err
	}
	if step.Action == ActionNone {
		out.Last = true
		return out, nil
	}
	logChannelStates(ctx, src, dst, srcChan, dstChan)

	me, cp, myChan, cpChan := src, dst, srcChan, dstChan
	if !step.OnSrc {
		me, cp, myChan, cpChan = dst, src, dstChan, srcChan
	}
	msgs, err := buildChannelMsgs(ctx, step.Action, me, cp, myChan, cpChan)
	if err != nil {
		return nil, err
	}
	if step.OnSrc {
		out.Src = msgs
	} else {
		out.Dst = msgs
	}
	out.Last = step.Last
	return out, nil
}

// checkCounterpartyChannel verifies the bindings of cpChan, the end on cp, against me.
func checkCounterpartyChannel(me, cp *Endpoint, cpChan *ChannelEnd) error {
	if err := checkCounterpartyEnd(cpChan, ""); err != nil {
		return err
	}
	if cpChan.Counterparty.PortID != me.End.PortID {
		return errorsmod.Wrapf(ErrChannelNotFound, "channel %s/%s on %s is bound to port %s, not %s",
			cp.End.PortID, cp.End.ChannelID, cp.ChainID(), cpChan.Counterparty.PortID, me.End.PortID)
	}
	if cpChan.Ordering != me.End.ChannelOrder() {
		return errorsmod.Wrapf(ErrOrderingMismatch, "channel %s/%s on %s is %s, %s expects %s",
			cp.End.PortID, cp.End.ChannelID, cp.ChainID(), cpChan.Ordering, me.ChainID(), me.End.ChannelOrder())
	}
	if cpChan.ConnectionID() != cp.End.ConnectionID {
		return errorsmod.Wrapf(ErrInvalidCounterparty, "channel %s/%s on %s runs over %s, not %s",
			cp.End.PortID, cp.End.ChannelID, cp.ChainID(), cpChan.ConnectionID(), cp.End.ConnectionID)
	}
	return nil
}

func buildChannelMsgs(ctx context.Context, action HandshakeAction, me, cp *Endpoint, myChan, cpChan *ChannelEnd) ([]Msg, error) {
	if action == ActionOpenInit {
		return []Msg{&MsgChannelOpenInit{
			PortID: me.End.PortID,
			Channel: ChannelEnd{
				State:          StageInit,
				Ordering:       me.End.ChannelOrder(),
				Counterparty:   ChannelCounterparty{PortID: cp.End.PortID},
				ConnectionHops: []ConnectionID{me.End.ConnectionID},
				Version:        me.End.Version,
			},
			Signer: me.Signer(),
		}}, nil
	}

	if err := checkCounterpartyChannel(me, cp, cpChan); err != nil {
		return nil, err
	}
	if myChan != nil && myChan.Ordering != cpChan.Ordering {
		return nil, errorsmod.Wrapf(ErrOrderingMismatch, "channel ends disagree on ordering: %s vs %s", myChan.Ordering, cpChan.Ordering)
	}
	proven, err := ProveForCounterparty(ctx, cp, me, ChannelPath(cp.End.PortID, cp.End.ChannelID))
	if err != nil {
		return nil, err
	}
	msgs := append([]Msg{}, proven.Updates...)

	switch action {
	case ActionOpenTry:
		version := me.End.Version
		if version == "" {
			version = cpChan.Version
		}
		msgs = append(msgs, &MsgChannelOpenTry{
			PortID: me.End.PortID,
			Channel: ChannelEnd{
				State:          StageTryOpen,
				Ordering:       cpChan.Ordering,
				Counterparty:   ChannelCounterparty{PortID: cp.End.PortID, ChannelID: cp.End.ChannelID},
				ConnectionHops: []ConnectionID{me.End.ConnectionID},
				Version:        version,
			},
			CounterpartyVersion: cpChan.Version,
			ProofInit:           proven.Proof,
			ProofHeight:         proven.Height,
			Signer:              me.Signer(),
		})
	case ActionOpenAck:
		if err := checkCounterpartyEnd(cpChan, string(me.End.ChannelID)); err != nil {
			return nil, errorsmod.Wrapf(err, "channel %s on %s", cp.End.ChannelID, cp.ChainID())
		}
		msgs = append(msgs, &MsgChannelOpenAck{
			PortID:                me.End.PortID,
			ChannelID:             me.End.ChannelID,
			CounterpartyChannelID: cp.End.ChannelID,
			CounterpartyVersion:   cpChan.Version,
			ProofTry:              proven.Proof,
			ProofHeight:           proven.Height,
			Signer:                me.Signer(),
		})
	case ActionOpenConfirm:
		msgs = append(msgs, &MsgChannelOpenConfirm{
			PortID:      me.End.PortID,
			ChannelID:   me.End.ChannelID,
			ProofAck:    proven.Proof,
			ProofHeight: proven.Height,
			Signer:      me.Signer(),
		})
	}
	return msgs, nil
}

// CloseChannel closes the channel on src and confirms the closure on dst
func CloseChannel(ctx context.Context, pathName string, src, dst *Endpoint, interval time.Duration) error {
	ctx, span := tracer.Start(ctx, "CloseChannel", WithChannelPairAttributes(src, dst))
	defer span.End()
	logger := GetChannelPairLogger(src, dst)
	defer logger.TimeTrackContext(ctx, time.Now(), "CloseChannel")

	err := runUntilComplete(ctx, interval, func() (bool, error) {
		closeSteps, err := CloseChannelStep(ctx, src, dst)
		if err != nil {
			logger.ErrorContext(ctx, "failed to create channel close step", err)
			return false, err
		}
		if !closeSteps.Ready() {
			return closeSteps.Last, nil
		}
		if err := SendHandshakeStep(ctx, pathName, closeSteps, src, dst); err != nil {
			return false, err
		}
		if closeSteps.Last {
			logger.InfoContext(ctx, "★ Channel closed")
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// CloseChannelStep computes the next msgs of the closing handshake.
func CloseChannelStep(ctx context.Context, src, dst *Endpoint) (*RelayMsgs, error) {
	out := NewRelayMsgs()
	if src.End.ChannelID == "" || dst.End.ChannelID == "" {
		return nil, errorsmod.Wrap(ErrChannelNotFound, "both channel ids are required to close a channel")
	}
	var srcChan, dstChan *ChannelEnd
	if err := retry.Do(func() error {
		var err error
		srcChan, dstChan, err = QueryChannelPair(ctx, src, dst)
		return err
	}, rtyAtt, rtyDel, rtyErr, retry.Context(ctx), retry.RetryIf(IsRetryable)); err != nil {
		return nil, err
	}
	logChannelStates(ctx, src, dst, srcChan, dstChan)

	closeConfirm := func(me, cp *Endpoint) ([]Msg, error) {
		proven, err := ProveForCounterparty(ctx, cp, me, ChannelPath(cp.End.PortID, cp.End.ChannelID))
		if err != nil {
			return nil, err
		}
		return append(proven.Updates, &MsgChannelCloseConfirm{
			PortID:      me.End.PortID,
			ChannelID:   me.End.ChannelID,
			ProofInit:   proven.Proof,
			ProofHeight: proven.Height,
			Signer:      me.Signer(),
		}), nil
	}

	var err error
	switch s, d := srcChan.State, dstChan.State; {
	case s == StageClosed && d == StageClosed:
		out.Last = true
	case s == StageOpen && d == StageOpen:
		out.Src = append(out.Src, &MsgChannelCloseInit{PortID: src.End.PortID, ChannelID: src.End.ChannelID, Signer: src.Signer()})
	case s == StageClosed && d == StageOpen:
		out.Dst, err = closeConfirm(dst, src)
		out.Last = true
	case s == StageOpen && d == StageClosed:
		out.Src, err = closeConfirm(src, dst)
		out.Last = true
	default:
		err = errorsmod.Wrapf(ErrInvalidStateTransition, "cannot close channel from (%s, %s)", s, d)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func logChannelStates(ctx context.Context, src, dst *Endpoint, srcChan, dstChan *ChannelEnd) {
	GetChannelPairLogger(src, dst).InfoContext(ctx,
		"channel states",
		"src_state", StageOf(srcChan).String(),
		"dst_state", StageOf(dstChan).String(),
	)
}

func GetChannelPairLogger(src, dst *Endpoint) *log.RelayLogger {
	return log.GetLogger().
		WithChannelPair(
			src.ChainID(), string(src.End.PortID), string(src.End.ChannelID),
			dst.ChainID(), string(dst.End.PortID), string(dst.End.ChannelID),
		).
		WithModule("core.channel")
}
