package core

import (
	errorsmod "cosmossdk.io/errors"
	commitmenttypes "github.com/cosmos/ibc-go/v8/modules/core/23-commitment/types"
	host "github.com/cosmos/ibc-go/v8/modules/core/24-host"
)

// ClientID identifies a light client on the chain that hosts it.
type ClientID string

// ConnectionID identifies a connection end on the chain that hosts it.
type ConnectionID string

// ChannelID identifies a channel end on the chain that hosts it.
type ChannelID string

// PortID identifies the module a channel is bound to.
type PortID string

// NewClientID validates s and returns it as a ClientID.
func NewClientID(s string) (ClientID, error) {
	if err := host.ClientIdentifierValidator(s); err != nil {
		return "", errorsmod.Wrapf(ErrInvalidIdentifier, "client id %q: %v", s, err)
	}
	return ClientID(s), nil
}

// NewConnectionID validates s and returns it as a ConnectionID.
func NewConnectionID(s string) (ConnectionID, error) {
	if err := host.ConnectionIdentifierValidator(s); err != nil {
		return "", errorsmod.Wrapf(ErrInvalidIdentifier, "connection id %q: %v", s, err)
	}
	return ConnectionID(s), nil
}

// NewChannelID validates s and returns it as a ChannelID.
func NewChannelID(s string) (ChannelID, error) {
	if err := host.ChannelIdentifierValidator(s); err != nil {
		return "", errorsmod.Wrapf(ErrInvalidIdentifier, "channel id %q: %v", s, err)
	}
	return ChannelID(s), nil
}

// NewPortID validates s and returns it as a PortID.
func NewPortID(s string) (PortID, error) {
	if err := host.PortIdentifierValidator(s); err != nil {
		return "", errorsmod.Wrapf(ErrInvalidIdentifier, "port id %q: %v", s, err)
	}
	return PortID(s), nil
}

func (id ClientID) String() string     { return string(id) }
func (id ConnectionID) String() string { return string(id) }
func (id ChannelID) String() string    { return string(id) }
func (id PortID) String() string       { return string(id) }

// Validate re-checks an identifier that was built by conversion instead of NewClientID.
func (id ClientID) Validate() error {
	_, err := NewClientID(string(id))
	return err
}

func (id ConnectionID) Validate() error {
	_, err := NewConnectionID(string(id))
	return err
}

func (id ChannelID) Validate() error {
	_, err := NewChannelID(string(id))
	return err
}

func (id PortID) Validate() error {
	_, err := NewPortID(string(id))
	return err
}

// CommitmentPrefix is the store prefix under which a chain commits its IBC state.
type CommitmentPrefix []byte

// DefaultCommitmentPrefix is the prefix used by chains built on the ibc-go store layout.
var DefaultCommitmentPrefix = CommitmentPrefix("ibc")

func (p CommitmentPrefix) Empty() bool {
	return len(p) == 0
}

func (p CommitmentPrefix) Bytes() []byte {
	return append([]byte(nil), p...)
}

func (p CommitmentPrefix) String() string {
	return string(p)
}

// MerklePrefix converts p into the ibc-go wire representation.
func (p CommitmentPrefix) MerklePrefix() commitmenttypes.MerklePrefix {
	return commitmenttypes.NewMerklePrefix(p.Bytes())
}
