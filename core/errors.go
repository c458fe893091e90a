package core

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
)

// Codespace is the ABCI codespace shared by relayer errors. Chains that embed the relayer's
// handlers (such as memchain) report rejections in this codespace so that the relayer can
// rebuild the typed error with errorsmod.ABCIError.
const Codespace = "relayer"

// Validation errors are raised before anything is submitted.
var (
	ErrInvalidIdentifier   = errorsmod.Register(Codespace, 2, "invalid identifier")
	ErrInvalidVersion      = errorsmod.Register(Codespace, 3, "invalid version")
	ErrInvalidCounterparty = errorsmod.Register(Codespace, 4, "invalid counterparty")
	ErrInvalidPacket       = errorsmod.Register(Codespace, 5, "invalid packet")
	ErrInvalidHeader       = errorsmod.Register(Codespace, 6, "invalid header")
	ErrInvalidMsg          = errorsmod.Register(Codespace, 7, "invalid message")
	ErrInvalidPath         = errorsmod.Register(Codespace, 8, "invalid path")
)

// Query errors are transient and retried with backoff.
var (
	ErrQuery              = errorsmod.Register(Codespace, 10, "query failed")
	ErrNotFound           = errorsmod.Register(Codespace, 11, "not found")
	ErrClientNotFound     = errorsmod.Register(Codespace, 12, "client not found")
	ErrConnectionNotFound = errorsmod.Register(Codespace, 13, "connection not found")
	ErrChannelNotFound    = errorsmod.Register(Codespace, 14, "channel not found")
)

// Submission errors come from transactions rejected by a chain.
var (
	ErrSubmission           = errorsmod.Register(Codespace, 20, "submission failed")
	ErrRedundantMsg         = errorsmod.Register(Codespace, 21, "message is redundant, already applied")
	ErrClientCreationFailed = errorsmod.Register(Codespace, 22, "client creation failed")
	ErrShutdown             = errorsmod.Register(Codespace, 23, "submitter is shut down")
	ErrInsufficientFunds    = errorsmod.Register(Codespace, 24, "insufficient funds")
)

// Protocol violations are fatal for the current handshake attempt and never retried.
var (
	ErrOrderingMismatch           = errorsmod.Register(Codespace, 30, "channel ordering mismatch")
	ErrMissingCounterparty        = errorsmod.Register(Codespace, 31, "missing counterparty")
	ErrMissingCounterpartyPrefix  = errorsmod.Register(Codespace, 32, "missing counterparty prefix")
	ErrClientExpired              = errorsmod.Register(Codespace, 33, "client expired")
	ErrUntrustedHeader            = errorsmod.Register(Codespace, 34, "untrusted header")
	ErrClientFrozen               = errorsmod.Register(Codespace, 35, "client frozen")
	ErrInvalidStateTransition     = errorsmod.Register(Codespace, 36, "invalid state transition")
	ErrUnroutableMessage          = errorsmod.Register(Codespace, 37, "unroutable message")
	ErrInvalidProof               = errorsmod.Register(Codespace, 38, "invalid proof")
	ErrPacketTimedOut             = errorsmod.Register(Codespace, 39, "packet timed out")
	ErrPacketSequenceOutOfOrder   = errorsmod.Register(Codespace, 40, "packet sequence out of order")
	ErrConnectionVersionNegotiate = errorsmod.Register(Codespace, 41, "no compatible connection version")
)

// ErrorClass is the taxonomy bucket of a relayer error.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassValidation
	ClassQuery
	ClassSubmission
	ClassProtocolViolation
)

func (c ErrorClass) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassQuery:
		return "query"
	case ClassSubmission:
		return "submission"
	case ClassProtocolViolation:
		return "protocol_violation"
	default:
		return "unknown"
	}
}

var errorClasses = []struct {
	class ErrorClass
	errs  []error
}{
	{ClassProtocolViolation, []error{
		ErrOrderingMismatch, ErrMissingCounterparty, ErrMissingCounterpartyPrefix,
		ErrClientExpired, ErrUntrustedHeader, ErrClientFrozen, ErrInvalidStateTransition,
		ErrUnroutableMessage, ErrInvalidProof, ErrPacketTimedOut, ErrPacketSequenceOutOfOrder,
		ErrConnectionVersionNegotiate,
	}},
	{ClassValidation, []error{
		ErrInvalidIdentifier, ErrInvalidVersion, ErrInvalidCounterparty, ErrInvalidPacket,
		ErrInvalidHeader, ErrInvalidMsg, ErrInvalidPath,
	}},
	{ClassQuery, []error{
		ErrQuery, ErrNotFound, ErrClientNotFound, ErrConnectionNotFound, ErrChannelNotFound,
	}},
	{ClassSubmission, []error{
		ErrSubmission, ErrRedundantMsg, ErrClientCreationFailed, ErrShutdown, ErrInsufficientFunds,
	}},
}

// ClassOf returns the taxonomy class of err. Protocol violations win over the other classes
// when an error chain carries more than one registered error.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	for _, c := range errorClasses {
		for _, target := range c.errs {
			if errors.Is(err, target) {
				return c.class
			}
		}
	}
	return ClassUnknown
}

// IsRetryable reports whether err is worth retrying locally.
// Validation errors and protocol violations abort the action immediately;
// a redundant message means the action already landed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRedundantMsg) || errors.Is(err, ErrShutdown) || errors.Is(err, ErrChannelNotFound) {
		return false
	}
	switch ClassOf(err) {
	case ClassQuery, ClassSubmission, ClassUnknown:
		return true
	default:
		return false
	}
}

// IsNotFound reports whether err means that a queried entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrConnectionNotFound) ||
		errors.Is(err, ErrChannelNotFound)
}
