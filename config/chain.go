package config

import (
	"fmt"
	"time"

	"github.com/datachainlab/ibc-relayer/core"
	"gopkg.in/yaml.v2"
)

// ChainConfig is one entry of the chains section. Fields other than the common ones are
// kept in Settings and decoded by the module serving Type.
type ChainConfig struct {
	Type    string       `yaml:"type" json:"type"`
	ChainID string       `yaml:"chain-id" json:"chain-id"`
	Client  ClientConfig `yaml:"client" json:"client"`

	Settings map[string]interface{} `yaml:",inline" json:"-"`
}

// ClientConfig holds the parameters of the light clients tracking this chain.
type ClientConfig struct {
	TrustingPeriod  time.Duration       `yaml:"trusting-period" json:"trusting-period"`
	UnbondingPeriod time.Duration       `yaml:"unbonding-period" json:"unbonding-period"`
	MaxClockDrift   time.Duration       `yaml:"max-clock-drift" json:"max-clock-drift"`
	TrustThreshold  core.TrustThreshold `yaml:"trust-threshold" json:"trust-threshold"`
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		TrustingPeriod:  336 * time.Hour,
		UnbondingPeriod: 504 * time.Hour,
		MaxClockDrift:   10 * time.Second,
		TrustThreshold:  core.DefaultTrustThreshold,
	}
}

func (cc ClientConfig) ClientSettings() core.ClientSettings {
	return core.ClientSettings{
		TrustingPeriod:  cc.TrustingPeriod,
		UnbondingPeriod: cc.UnbondingPeriod,
		MaxClockDrift:   cc.MaxClockDrift,
		TrustThreshold:  cc.TrustThreshold,
	}
}

func (cc *ChainConfig) Validate() error {
	if cc.Type == "" {
		return fmt.Errorf("chain %q has no type", cc.ChainID)
	}
	if cc.ChainID == "" {
		return fmt.Errorf("chain of type %s has no chain-id", cc.Type)
	}
	if err := cc.Client.ClientSettings().Validate(); err != nil {
		return fmt.Errorf("chain %s: %w", cc.ChainID, err)
	}
	return nil
}

// Decode fills v, a module's chain configuration, from the type specific settings.
// The chain-id is always passed through.
func (cc *ChainConfig) Decode(v interface{}) error {
	settings := make(map[string]interface{}, len(cc.Settings)+1)
	for k, val := range cc.Settings {
		settings[k] = val
	}
	settings["chain-id"] = cc.ChainID
	bz, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	if err := yaml.UnmarshalStrict(bz, v); err != nil {
		return fmt.Errorf("chain %s: invalid %s settings: %w", cc.ChainID, cc.Type, err)
	}
	return nil
}

type Chains []core.ChainHandle

// Get returns the configuration for a given chain
func (cs Chains) Get(chainID string) (core.ChainHandle, error) {
	for _, chain := range cs {
		if chainID == chain.ChainID() {
			return chain, nil
		}
	}
	return nil, fmt.Errorf("chain with ID %s is not configured", chainID)
}

// Gets returns a map chainIDs to their chains
func (cs Chains) Gets(chainIDs ...string) (map[string]core.ChainHandle, error) {
	out := make(map[string]core.ChainHandle)
	for _, cid := range chainIDs {
		chain, err := cs.Get(cid)
		if err != nil {
			return out, err
		}
		out[cid] = chain
	}
	return out, nil
}
