package core

import (
	"context"
	"errors"
	"time"

	errorsmod "cosmossdk.io/errors"
	retry "github.com/avast/retry-go"
	"github.com/datachainlab/ibc-relayer/log"
	"github.com/datachainlab/ibc-relayer/metrics"
	"github.com/datachainlab/ibc-relayer/otelcore/semconv"
	"go.opentelemetry.io/otel/codes"
)

// CreateConnection sends connection handshake messages every interval until the connection is open on both ends
func CreateConnection(ctx context.Context, pathName string, src, dst *Endpoint, interval time.Duration) error {
	ctx, span := tracer.Start(ctx, "CreateConnection", WithConnectionPairAttributes(src, dst))
	defer span.End()
	logger := GetConnectionPairLogger(src, dst)
	defer logger.TimeTrackContext(ctx, time.Now(), "CreateConnection")

	failed := 0
	err := runUntilComplete(ctx, interval, func() (bool, error) {
		connSteps, err := ConnectionStep(ctx, src, dst)
		if err != nil {
			logger.ErrorContext(ctx, "failed to create connection step", err)
			return false, err
		}

		if !connSteps.Ready() {
			if connSteps.Last {
				logger.InfoContext(ctx, "connections are already open", "src_connection_id", src.End.ConnectionID, "dst_connection_id", dst.End.ConnectionID)
				return true, nil
			}
			logger.DebugContext(ctx, "Waiting for next connection step ...")
			return false, nil
		}

		if err := SendHandshakeStep(ctx, pathName, connSteps, src, dst); err == nil {
			if connSteps.Last {
				logger.InfoContext(ctx, "★ Connection created")
				return true, nil
			}
			failed = 0
		} else {
			if ClassOf(err) == ClassProtocolViolation || ClassOf(err) == ClassValidation {
				return false, err
			}
			// give up after the 3rd consecutive failure
			if failed++; failed > 2 {
				err := errorsmod.Wrapf(ErrSubmission, "connection handshake failed: %v", err)
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

// SendHandshakeStep submits the msgs of one step and records identifiers the chains assigned.
func SendHandshakeStep(ctx context.Context, pathName string, steps *RelayMsgs, src, dst *Endpoint) error {
	steps.Send(ctx, src, dst)
	if !steps.Success() {
		return steps.Err
	}
	for _, m := range append(append([]Msg{}, steps.Src...), steps.Dst...) {
		if _, ok := m.(*MsgUpdateClient); !ok {
			metrics.RecordHandshakeStep(ctx, m.Type(), semconv.PathNameKey.String(pathName))
		}
	}
	return errors.Join(
		SyncPathEndFromEvents(pathName, src, steps.SrcEvents),
		SyncPathEndFromEvents(pathName, dst, steps.DstEvents),
	)
}

// ConnectionStep computes the msgs advancing the connection handshake by one step.
// An empty result with Last set means both ends are already open.
func ConnectionStep(ctx context.Context, src, dst *Endpoint) (*RelayMsgs, error) {
	out := NewRelayMsgs()
	if err := validateEndpoints(src, dst); err != nil {
		return nil, err
	}
	if src.End.ClientID == "" || dst.End.ClientID == "" {
		return nil, errorsmod.Wrap(ErrClientNotFound, "clients must be created before the connection handshake")
	}

	var srcConn, dstConn *ConnectionEnd
	if err := retry.Do(func() error {
		var err error
		srcConn, dstConn, err = QueryConnectionPair(ctx, src, dst)
		return err
	}, rtyAtt, rtyDel, rtyErr, retry.Context(ctx), retry.RetryIf(IsRetryable)); err != nil {
		return nil, err
	}

	step, err := NextHandshakeStep(StageOf(srcConn), StageOf(dstConn))
	if err != nil {
		return nil, err
	}
	if step.Action == ActionNone {
		out.Last = true
		return out, nil
	}
	logConnectionStates(ctx, src, dst, srcConn, dstConn)

	me, cp, cpConn := src, dst, dstConn
	if !step.OnSrc {
		me, cp, cpConn = dst, src, srcConn
	}
	msgs, err := buildConnectionMsgs(ctx, step.Action, me, cp, cpConn)
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

func buildConnectionMsgs(ctx context.Context, action HandshakeAction, me, cp *Endpoint, cpConn *ConnectionEnd) ([]Msg, error) {
	if action == ActionOpenInit {
		return []Msg{&MsgConnectionOpenInit{
			ClientID: me.End.ClientID,
			Counterparty: ConnectionCounterparty{
				ClientID: cp.End.ClientID,
				Prefix:   DefaultCommitmentPrefix,
			},
			Version:     me.End.Versions()[0],
			DelayPeriod: me.End.DelayPeriod,
			Signer:      me.Signer(),
		}}, nil
	}

	// the remaining steps all prove the counterparty end
	if cpConn.ClientID != cp.End.ClientID || cpConn.Counterparty.ClientID != me.End.ClientID {
		return nil, errorsmod.Wrapf(ErrInvalidCounterparty, "connection %s on %s is bound to clients (%s, %s), expected (%s, %s)",
			cp.End.ConnectionID, cp.ChainID(), cpConn.ClientID, cpConn.Counterparty.ClientID, cp.End.ClientID, me.End.ClientID)
	}
	if err := checkCounterpartyEnd(cpConn, ""); err != nil {
		return nil, err
	}
	proven, err := ProveForCounterparty(ctx, cp, me, ConnectionPath(cp.End.ConnectionID))
	if err != nil {
		return nil, err
	}
	msgs := append([]Msg{}, proven.Updates...)

	switch action {
	case ActionOpenTry:
		versions, err := ValidateVersions(cpConn.Versions)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, &MsgConnectionOpenTry{
			ClientID: me.End.ClientID,
			Counterparty: ConnectionCounterparty{
				ClientID:     cp.End.ClientID,
				ConnectionID: cp.End.ConnectionID,
				Prefix:       DefaultCommitmentPrefix,
			},
			CounterpartyVersions: versions,
			DelayPeriod:          cpConn.DelayPeriod,
			ProofInit:            proven.Proof,
			ProofHeight:          proven.Height,
			Signer:               me.Signer(),
		})
	case ActionOpenAck:
		if err := checkCounterpartyEnd(cpConn, string(me.End.ConnectionID)); err != nil {
			return nil, errorsmod.Wrapf(err, "connection %s on %s", cp.End.ConnectionID, cp.ChainID())
		}
		version, err := PickVersion(me.End.Versions(), cpConn.Versions)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, &MsgConnectionOpenAck{
			ConnectionID:             me.End.ConnectionID,
			CounterpartyConnectionID: cp.End.ConnectionID,
			Version:                  version,
			ProofTry:                 proven.Proof,
			ProofHeight:              proven.Height,
			Signer:                   me.Signer(),
		})
	case ActionOpenConfirm:
		msgs = append(msgs, &MsgConnectionOpenConfirm{
			ConnectionID: me.End.ConnectionID,
			ProofAck:     proven.Proof,
			ProofHeight:  proven.Height,
			Signer:       me.Signer(),
		})
	}
	return msgs, nil
}

// validateEndpoints checks both path ends before any query is made
func validateEndpoints(src, dst *Endpoint) error {
	if err := src.End.Validate(); err != nil {
		return errorsmod.Wrapf(err, "path end on chain %s", src.ChainID())
	}
	if err := dst.End.Validate(); err != nil {
		return errorsmod.Wrapf(err, "path end on chain %s", dst.ChainID())
	}
	return nil
}

func logConnectionStates(ctx context.Context, src, dst *Endpoint, srcConn, dstConn *ConnectionEnd) {
	GetConnectionPairLogger(src, dst).InfoContext(ctx,
		"connection states",
		"src_state", StageOf(srcConn).String(),
		"dst_state", StageOf(dstConn).String(),
	)
}

func GetConnectionPairLogger(src, dst *Endpoint) *log.RelayLogger {
	return log.GetLogger().
		WithConnectionPair(
			src.ChainID(),
			string(src.End.ClientID),
			string(src.End.ConnectionID),
			dst.ChainID(),
			string(dst.End.ClientID),
			string(dst.End.ConnectionID),
		).
		WithModule("core.connection")
}
