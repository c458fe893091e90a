package core

import (
	"fmt"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/cosmos/gogoproto/proto"
	conntypes "github.com/cosmos/ibc-go/v8/modules/core/03-connection/types"
)

// DefaultConnectionVersion is the version identifier proposed when a path does not set one.
const DefaultConnectionVersion = "1"

// HandshakeStage is the lifecycle position of a connection or channel end.
// The zero value means the end does not exist yet.
type HandshakeStage int

const (
	StageUninitialized HandshakeStage = iota
	StageInit
	StageTryOpen
	StageOpen
	StageClosed
)

func (s HandshakeStage) String() string {
	switch s {
	case StageUninitialized:
		return "UNINITIALIZED"
	case StageInit:
		return "INIT"
	case StageTryOpen:
		return "TRYOPEN"
	case StageOpen:
		return "OPEN"
	case StageClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("HandshakeStage(%d)", int(s))
	}
}

// HandshakeEnd is the capability set the handshake drivers need from a connection or channel end.
type HandshakeEnd interface {
	Stage() HandshakeStage
	// CounterpartyID returns the identifier of the remote end, or "" while it is unknown.
	CounterpartyID() string
	ValidateBasic() error
}

// ValidateVersions rejects an empty version list or any blank entry and returns the list unchanged.
func ValidateVersions(versions []string) ([]string, error) {
	if len(versions) == 0 {
		return nil, errorsmod.Wrap(ErrInvalidVersion, "empty supported versions")
	}
	for i, v := range versions {
		if strings.TrimSpace(v) == "" {
			return nil, errorsmod.Wrapf(ErrInvalidVersion, "version at index %d is blank", i)
		}
	}
	return versions, nil
}

// ConnectionCounterparty is the remote chain's view of a connection.
// ConnectionID stays empty until the remote chain commits to an identifier.
type ConnectionCounterparty struct {
	ClientID     ClientID         `json:"client_id" yaml:"client-id"`
	ConnectionID ConnectionID     `json:"connection_id,omitempty" yaml:"connection-id,omitempty"`
	Prefix       CommitmentPrefix `json:"prefix" yaml:"prefix"`
}

func (c ConnectionCounterparty) ValidateBasic() error {
	if err := c.ClientID.Validate(); err != nil {
		return errorsmod.Wrap(ErrInvalidCounterparty, err.Error())
	}
	if c.ConnectionID != "" {
		if err := c.ConnectionID.Validate(); err != nil {
			return errorsmod.Wrap(ErrInvalidCounterparty, err.Error())
		}
	}
	if c.Prefix.Empty() {
		return ErrMissingCounterpartyPrefix
	}
	return nil
}

// ConnectionEnd is one chain's half of a connection.
type ConnectionEnd struct {
	State        HandshakeStage         `json:"state"`
	ClientID     ClientID               `json:"client_id"`
	Counterparty ConnectionCounterparty `json:"counterparty"`
	Versions     []string               `json:"versions"`
	DelayPeriod  time.Duration          `json:"delay_period"`
}

var _ HandshakeEnd = (*ConnectionEnd)(nil)

// NewConnectionEnd returns an Uninitialized end after validating its versions.
func NewConnectionEnd(clientID ClientID, counterparty ConnectionCounterparty, versions []string, delay time.Duration) (*ConnectionEnd, error) {
	vs, err := ValidateVersions(versions)
	if err != nil {
		return nil, err
	}
	return &ConnectionEnd{
		State:        StageUninitialized,
		ClientID:     clientID,
		Counterparty: counterparty,
		Versions:     vs,
		DelayPeriod:  delay,
	}, nil
}

func (c *ConnectionEnd) Stage() HandshakeStage {
	if c == nil {
		return StageUninitialized
	}
	return c.State
}

func (c *ConnectionEnd) CounterpartyID() string { return string(c.Counterparty.ConnectionID) }

// SetState advances the end by exactly one handshake stage.
func (c *ConnectionEnd) SetState(next HandshakeStage) error {
	if next == StageClosed || next != c.State+1 {
		return errorsmod.Wrapf(ErrInvalidStateTransition, "connection %s -> %s", c.State, next)
	}
	if next == StageOpen && c.Counterparty.ConnectionID == "" {
		return errorsmod.Wrap(ErrInvalidStateTransition, "connection cannot open without counterparty connection id")
	}
	c.State = next
	return nil
}

func (c *ConnectionEnd) ValidateBasic() error {
	if err := c.ClientID.Validate(); err != nil {
		return err
	}
	if _, err := ValidateVersions(c.Versions); err != nil {
		return err
	}
	if err := c.Counterparty.ValidateBasic(); err != nil {
		return err
	}
	if c.State == StageOpen && c.Counterparty.ConnectionID == "" {
		return errorsmod.Wrap(ErrInvalidCounterparty, "open connection without counterparty connection id")
	}
	return nil
}

// ToProto converts the end into its ibc-go representation.
func (c *ConnectionEnd) ToProto() conntypes.ConnectionEnd {
	versions := make([]*conntypes.Version, 0, len(c.Versions))
	for _, v := range c.Versions {
		versions = append(versions, conntypes.NewVersion(v, []string{"ORDER_ORDERED", "ORDER_UNORDERED"}))
	}
	return conntypes.ConnectionEnd{
		ClientId: string(c.ClientID),
		Versions: versions,
		State:    connectionStateToProto(c.State),
		Counterparty: conntypes.Counterparty{
			ClientId:     string(c.Counterparty.ClientID),
			ConnectionId: string(c.Counterparty.ConnectionID),
			Prefix:       c.Counterparty.Prefix.MerklePrefix(),
		},
		DelayPeriod: uint64(c.DelayPeriod),
	}
}

// CommitmentBytes is the value a chain commits for this end, and the value proofs are made over.
func (c *ConnectionEnd) CommitmentBytes() ([]byte, error) {
	pc := c.ToProto()
	return proto.Marshal(&pc)
}

// ConnectionEndFromProto converts an ibc-go connection end, failing on a missing counterparty or prefix.
func ConnectionEndFromProto(pc conntypes.ConnectionEnd) (*ConnectionEnd, error) {
	if pc.Counterparty.ClientId == "" {
		return nil, errorsmod.Wrapf(ErrMissingCounterparty, "connection of client %s", pc.ClientId)
	}
	if len(pc.Counterparty.Prefix.KeyPrefix) == 0 {
		return nil, errorsmod.Wrapf(ErrMissingCounterpartyPrefix, "connection of client %s", pc.ClientId)
	}
	state, err := connectionStateFromProto(pc.State)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(pc.Versions))
	for _, v := range pc.Versions {
		if v == nil {
			continue
		}
		versions = append(versions, v.Identifier)
	}
	vs, err := ValidateVersions(versions)
	if err != nil {
		return nil, err
	}
	end := &ConnectionEnd{
		State:    state,
		ClientID: ClientID(pc.ClientId),
		Counterparty: ConnectionCounterparty{
			ClientID:     ClientID(pc.Counterparty.ClientId),
			ConnectionID: ConnectionID(pc.Counterparty.ConnectionId),
			Prefix:       CommitmentPrefix(pc.Counterparty.Prefix.KeyPrefix),
		},
		Versions:    vs,
		DelayPeriod: time.Duration(pc.DelayPeriod),
	}
	if err := end.ValidateBasic(); err != nil {
		return nil, err
	}
	return end, nil
}

func connectionStateToProto(s HandshakeStage) conntypes.State {
	switch s {
	case StageInit:
		return conntypes.INIT
	case StageTryOpen:
		return conntypes.TRYOPEN
	case StageOpen:
		return conntypes.OPEN
	default:
		return conntypes.UNINITIALIZED
	}
}

func connectionStateFromProto(s conntypes.State) (HandshakeStage, error) {
	switch s {
	case conntypes.UNINITIALIZED:
		return StageUninitialized, nil
	case conntypes.INIT:
		return StageInit, nil
	case conntypes.TRYOPEN:
		return StageTryOpen, nil
	case conntypes.OPEN:
		return StageOpen, nil
	default:
		return 0, errorsmod.Wrapf(ErrInvalidCounterparty, "unknown connection state %d", int32(s))
	}
}

// PickVersion returns the first locally supported version also offered by the counterparty.
func PickVersion(supported, proposed []string) (string, error) {
	for _, p := range proposed {
		for _, s := range supported {
			if p == s {
				return p, nil
			}
		}
	}
	return "", errorsmod.Wrapf(ErrConnectionVersionNegotiate, "supported %v, proposed %v", supported, proposed)
}
