package core

import (
	"bytes"
	"fmt"
	"time"

	errorsmod "cosmossdk.io/errors"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
)

// TrustThreshold is the fraction of the trusted validator set that must sign a new header.
type TrustThreshold struct {
	Numerator   uint64 `json:"numerator" yaml:"numerator"`
	Denominator uint64 `json:"denominator" yaml:"denominator"`
}

// DefaultTrustThreshold is 1/3, the value used by Tendermint light clients.
var DefaultTrustThreshold = TrustThreshold{Numerator: 1, Denominator: 3}

func (t TrustThreshold) Validate() error {
	if t.Denominator == 0 || t.Numerator == 0 {
		return errorsmod.Wrapf(ErrInvalidHeader, "trust threshold %d/%d has a zero term", t.Numerator, t.Denominator)
	}
	// must be within [1/3, 1]
	if t.Numerator*3 < t.Denominator || t.Numerator > t.Denominator {
		return errorsmod.Wrapf(ErrInvalidHeader, "trust threshold %d/%d outside [1/3, 1]", t.Numerator, t.Denominator)
	}
	return nil
}

func (t TrustThreshold) String() string {
	return fmt.Sprintf("%d/%d", t.Numerator, t.Denominator)
}

// ClientSettings are the parameters a new light client is created with.
type ClientSettings struct {
	TrustingPeriod  time.Duration
	UnbondingPeriod time.Duration
	MaxClockDrift   time.Duration
	TrustThreshold  TrustThreshold
}

func (s ClientSettings) Validate() error {
	if s.TrustingPeriod <= 0 {
		return errorsmod.Wrap(ErrInvalidHeader, "trusting period must be positive")
	}
	if s.UnbondingPeriod != 0 && s.TrustingPeriod >= s.UnbondingPeriod {
		return errorsmod.Wrapf(ErrInvalidHeader, "trusting period %s must be shorter than unbonding period %s", s.TrustingPeriod, s.UnbondingPeriod)
	}
	return s.TrustThreshold.Validate()
}

// ClientStatus is the usability of a light client at a given time.
type ClientStatus string

const (
	ClientActive  ClientStatus = "Active"
	ClientExpired ClientStatus = "Expired"
	ClientFrozen  ClientStatus = "Frozen"
)

// ClientState is the light-client snapshot of a counterparty chain held on the host chain.
type ClientState struct {
	ChainID         string             `json:"chain_id"`
	TrustThreshold  TrustThreshold     `json:"trust_threshold"`
	TrustingPeriod  time.Duration      `json:"trusting_period"`
	UnbondingPeriod time.Duration      `json:"unbonding_period"`
	MaxClockDrift   time.Duration      `json:"max_clock_drift"`
	LatestHeight    clienttypes.Height `json:"latest_height"`
	FrozenHeight    clienttypes.Height `json:"frozen_height"`
}

// NewClientState seeds a client from a counterparty header.
func NewClientState(header *Header, settings ClientSettings) (*ClientState, error) {
	if err := header.ValidateBasic(); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &ClientState{
		ChainID:         header.ChainID,
		TrustThreshold:  settings.TrustThreshold,
		TrustingPeriod:  settings.TrustingPeriod,
		UnbondingPeriod: settings.UnbondingPeriod,
		MaxClockDrift:   settings.MaxClockDrift,
		LatestHeight:    header.Height,
	}, nil
}

func (cs *ClientState) Validate() error {
	if cs.ChainID == "" {
		return errorsmod.Wrap(ErrInvalidHeader, "client state without chain id")
	}
	if cs.LatestHeight.IsZero() {
		return errorsmod.Wrap(ErrInvalidHeader, "client state with zero latest height")
	}
	return ClientSettings{
		TrustingPeriod:  cs.TrustingPeriod,
		UnbondingPeriod: cs.UnbondingPeriod,
		MaxClockDrift:   cs.MaxClockDrift,
		TrustThreshold:  cs.TrustThreshold,
	}.Validate()
}

func (cs *ClientState) IsFrozen() bool {
	return !cs.FrozenHeight.IsZero()
}

// IsExpired reports whether the trusting period has elapsed since the latest trusted consensus state.
func (cs *ClientState) IsExpired(latest *ConsensusState, now time.Time) bool {
	return !latest.Timestamp.Add(cs.TrustingPeriod).After(now)
}

// Status evaluates the client against its latest consensus state.
func (cs *ClientState) Status(latest *ConsensusState, now time.Time) ClientStatus {
	switch {
	case cs.IsFrozen():
		return ClientFrozen
	case latest == nil || cs.IsExpired(latest, now):
		return ClientExpired
	default:
		return ClientActive
	}
}

// ConsensusState is what a light client remembers about one counterparty height.
type ConsensusState struct {
	Timestamp          time.Time `json:"timestamp"`
	NextValidatorsHash []byte    `json:"next_validators_hash"`
}

// Header is a finalized counterparty header used to create or advance a light client.
type Header struct {
	ChainID            string             `json:"chain_id"`
	Height             clienttypes.Height `json:"height"`
	Time               time.Time          `json:"time"`
	ValidatorsHash     []byte             `json:"validators_hash"`
	NextValidatorsHash []byte             `json:"next_validators_hash"`
	// TrustedHeight is the client height this header is verified against on update.
	TrustedHeight clienttypes.Height `json:"trusted_height"`
}

func (h *Header) ValidateBasic() error {
	if h == nil {
		return errorsmod.Wrap(ErrInvalidHeader, "nil header")
	}
	if h.ChainID == "" {
		return errorsmod.Wrap(ErrInvalidHeader, "header without chain id")
	}
	if h.Height.IsZero() {
		return errorsmod.Wrap(ErrInvalidHeader, "header with zero height")
	}
	if h.Time.IsZero() {
		return errorsmod.Wrap(ErrInvalidHeader, "header without timestamp")
	}
	if len(h.ValidatorsHash) == 0 || len(h.NextValidatorsHash) == 0 {
		return errorsmod.Wrap(ErrInvalidHeader, "header without validator set hashes")
	}
	if !h.TrustedHeight.IsZero() && h.TrustedHeight.GTE(h.Height) {
		return errorsmod.Wrapf(ErrInvalidHeader, "trusted height %s must be lower than header height %s", h.TrustedHeight, h.Height)
	}
	return nil
}

func (h *Header) ConsensusState() *ConsensusState {
	return &ConsensusState{
		Timestamp:          h.Time,
		NextValidatorsHash: h.NextValidatorsHash,
	}
}

// VerifyHeader applies the acceptance rules for advancing cs from trusted to h at now.
// Signature checks are left to the host chain.
func VerifyHeader(cs *ClientState, trusted *ConsensusState, h *Header, now time.Time) error {
	if err := h.ValidateBasic(); err != nil {
		return err
	}
	if cs.IsFrozen() {
		return errorsmod.Wrapf(ErrClientFrozen, "frozen at %s", cs.FrozenHeight)
	}
	if h.ChainID != cs.ChainID {
		return errorsmod.Wrapf(ErrInvalidHeader, "header chain %s does not match client chain %s", h.ChainID, cs.ChainID)
	}
	if cs.IsExpired(trusted, now) {
		return errorsmod.Wrapf(ErrClientExpired, "trusted consensus state from %s exceeded trusting period %s", trusted.Timestamp, cs.TrustingPeriod)
	}
	if h.Time.After(now.Add(cs.MaxClockDrift)) {
		return errorsmod.Wrapf(ErrUntrustedHeader, "header time %s is beyond max clock drift from %s", h.Time, now)
	}
	if !h.Time.After(trusted.Timestamp) {
		return errorsmod.Wrapf(ErrUntrustedHeader, "header time %s is not after trusted time %s", h.Time, trusted.Timestamp)
	}
	if !bytes.Equal(h.ValidatorsHash, trusted.NextValidatorsHash) {
		return errorsmod.Wrap(ErrUntrustedHeader, "validator set changed beyond trust threshold")
	}
	return nil
}
