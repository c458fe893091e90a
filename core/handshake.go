package core

import (
	errorsmod "cosmossdk.io/errors"
)

// HandshakeAction is the message kind a handshake step submits.
type HandshakeAction int

const (
	ActionNone HandshakeAction = iota
	ActionOpenInit
	ActionOpenTry
	ActionOpenAck
	ActionOpenConfirm
)

func (a HandshakeAction) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionOpenInit:
		return "open_init"
	case ActionOpenTry:
		return "open_try"
	case ActionOpenAck:
		return "open_ack"
	case ActionOpenConfirm:
		return "open_confirm"
	default:
		return "unknown"
	}
}

// HandshakeStep is the next action of a handshake and the end it is submitted to.
type HandshakeStep struct {
	Action HandshakeAction
	// OnSrc is true when the message goes to the src end, false for dst.
	OnSrc bool
	// Last is true when the step completes the handshake.
	Last bool
}

// Stage the receiving end reaches once the step is applied.
func (s HandshakeStep) Produces() HandshakeStage {
	switch s.Action {
	case ActionOpenInit:
		return StageInit
	case ActionOpenTry:
		return StageTryOpen
	case ActionOpenAck, ActionOpenConfirm:
		return StageOpen
	default:
		return StageUninitialized
	}
}

// NextHandshakeStep derives the next step purely from the current stages of both ends.
// It returns ActionNone once both are Open. A pair no valid handshake can reach yields
// ErrInvalidStateTransition.
func NextHandshakeStep(src, dst HandshakeStage) (HandshakeStep, error) {
	switch {
	case src == StageOpen && dst == StageOpen:
		return HandshakeStep{Action: ActionNone}, nil
	case src == StageUninitialized && dst == StageUninitialized:
		return HandshakeStep{Action: ActionOpenInit, OnSrc: true}, nil
	case src == StageUninitialized && dst == StageInit:
		return HandshakeStep{Action: ActionOpenTry, OnSrc: true}, nil
	case src == StageInit && dst == StageUninitialized:
		return HandshakeStep{Action: ActionOpenTry, OnSrc: false}, nil
	case src == StageInit && dst == StageTryOpen:
		return HandshakeStep{Action: ActionOpenAck, OnSrc: true}, nil
	case src == StageTryOpen && dst == StageInit:
		return HandshakeStep{Action: ActionOpenAck, OnSrc: false}, nil
	case src == StageTryOpen && dst == StageOpen:
		return HandshakeStep{Action: ActionOpenConfirm, OnSrc: true, Last: true}, nil
	case src == StageOpen && dst == StageTryOpen:
		return HandshakeStep{Action: ActionOpenConfirm, OnSrc: false, Last: true}, nil
	default:
		return HandshakeStep{}, errorsmod.Wrapf(ErrInvalidStateTransition, "no handshake step from (%s, %s)", src, dst)
	}
}

// StageOf is the stage of e, Uninitialized when the end does not exist yet.
func StageOf(e HandshakeEnd) HandshakeStage {
	if e == nil {
		return StageUninitialized
	}
	return e.Stage()
}

// checkCounterpartyEnd validates cp, the end about to be proven. When back is set, cp must
// name it as its own counterparty.
func checkCounterpartyEnd(cp HandshakeEnd, back string) error {
	if err := cp.ValidateBasic(); err != nil {
		return err
	}
	if back != "" && cp.CounterpartyID() != back {
		return errorsmod.Wrapf(ErrMissingCounterparty, "counterparty end points back to %q, not %q", cp.CounterpartyID(), back)
	}
	return nil
}
