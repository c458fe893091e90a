package core

import (
	"fmt"
	"time"

	errorsmod "cosmossdk.io/errors"
)

// PathEnd is one side of a relay path. Identifiers are empty until the corresponding
// object has been created on the chain.
type PathEnd struct {
	ChainID      string       `yaml:"chain-id" json:"chain-id" mapstructure:"chain-id"`
	ClientID     ClientID     `yaml:"client-id,omitempty" json:"client-id,omitempty" mapstructure:"client-id"`
	ConnectionID ConnectionID `yaml:"connection-id,omitempty" json:"connection-id,omitempty" mapstructure:"connection-id"`
	ChannelID    ChannelID    `yaml:"channel-id,omitempty" json:"channel-id,omitempty" mapstructure:"channel-id"`
	PortID       PortID       `yaml:"port-id,omitempty" json:"port-id,omitempty" mapstructure:"port-id"`
	Order        string       `yaml:"order,omitempty" json:"order,omitempty" mapstructure:"order"`
	Version      string       `yaml:"version,omitempty" json:"version,omitempty" mapstructure:"version"`
	// ConnectionVersions defaults to [DefaultConnectionVersion]
	ConnectionVersions []string      `yaml:"connection-versions,omitempty" json:"connection-versions,omitempty" mapstructure:"connection-versions"`
	DelayPeriod        time.Duration `yaml:"delay-period,omitempty" json:"delay-period,omitempty" mapstructure:"delay-period"`
}

// Validate checks the identifiers that are set. Empty identifiers are allowed.
func (pe *PathEnd) Validate() error {
	if pe.ChainID == "" {
		return errorsmod.Wrap(ErrInvalidPath, "chain-id is required")
	}
	if pe.ClientID != "" {
		if err := pe.ClientID.Validate(); err != nil {
			return err
		}
	}
	if pe.ConnectionID != "" {
		if err := pe.ConnectionID.Validate(); err != nil {
			return err
		}
	}
	if pe.ChannelID != "" {
		if err := pe.ChannelID.Validate(); err != nil {
			return err
		}
	}
	if pe.PortID != "" {
		if err := pe.PortID.Validate(); err != nil {
			return err
		}
	}
	if pe.Order != "" {
		if _, err := ParseOrder(pe.Order); err != nil {
			return err
		}
	}
	if len(pe.ConnectionVersions) > 0 {
		if _, err := ValidateVersions(pe.ConnectionVersions); err != nil {
			return err
		}
	}
	return nil
}

// ChannelOrder returns the configured order, defaulting to unordered.
func (pe *PathEnd) ChannelOrder() Order {
	o, err := ParseOrder(pe.Order)
	if err != nil {
		return OrderUnordered
	}
	return o
}

func (pe *PathEnd) Versions() []string {
	if len(pe.ConnectionVersions) == 0 {
		return []string{DefaultConnectionVersion}
	}
	return pe.ConnectionVersions
}

// HasChannel reports whether the end is scoped to a channel.
func (pe *PathEnd) HasChannel() bool {
	return pe.PortID != ""
}

func (pe *PathEnd) String() string {
	return fmt.Sprintf("%s:cl(%s):co(%s):ch(%s):pt(%s)", pe.ChainID, pe.ClientID, pe.ConnectionID, pe.ChannelID, pe.PortID)
}
