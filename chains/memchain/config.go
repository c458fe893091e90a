package memchain

import (
	"fmt"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	"github.com/datachainlab/ibc-relayer/core"
)

// ChainType is the chain type name used in the relayer config.
const ChainType = "memory"

// Balance is a genesis allocation. Coins uses the sdk coin string format, e.g. "1000000samoleans".
type Balance struct {
	Address string `yaml:"address" json:"address" mapstructure:"address"`
	Coins   string `yaml:"coins" json:"coins" mapstructure:"coins"`
}

// Config describes an in-process chain.
type Config struct {
	ChainID string `yaml:"chain-id" json:"chain-id" mapstructure:"chain-id"`
	// Account is the relayer account that signs submissions.
	Account string `yaml:"account" json:"account" mapstructure:"account"`
	// BlockTime is the time between two blocks.
	BlockTime   time.Duration `yaml:"block-time" json:"block-time" mapstructure:"block-time"`
	GenesisTime time.Time     `yaml:"genesis-time" json:"genesis-time" mapstructure:"genesis-time"`
	Genesis     []Balance     `yaml:"genesis" json:"genesis" mapstructure:"genesis"`
	// ConnectionVersions are the connection versions the chain accepts.
	ConnectionVersions []string `yaml:"connection-versions" json:"connection-versions" mapstructure:"connection-versions"`
	// EventBuffer bounds each subscription; a subscriber that falls this far behind is dropped.
	EventBuffer int `yaml:"event-buffer" json:"event-buffer" mapstructure:"event-buffer"`
	// TxDelay is how long a submission takes to be included.
	TxDelay time.Duration `yaml:"tx-delay" json:"tx-delay" mapstructure:"tx-delay"`
}

func DefaultConfig(chainID string) Config {
	return Config{
		ChainID:            chainID,
		Account:            "relayer",
		BlockTime:          time.Second,
		GenesisTime:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ConnectionVersions: []string{core.DefaultConnectionVersion},
		EventBuffer:        256,
	}
}

func (c Config) Validate() error {
	if c.ChainID == "" {
		return fmt.Errorf("chain-id is required")
	}
	if c.Account == "" {
		return fmt.Errorf("account is required")
	}
	if c.BlockTime <= 0 {
		return fmt.Errorf("block-time must be positive")
	}
	if _, err := core.ValidateVersions(c.ConnectionVersions); err != nil {
		return err
	}
	for _, b := range c.Genesis {
		if b.Address == "" {
			return fmt.Errorf("genesis balance without address")
		}
		if _, err := sdk.ParseCoinsNormalized(b.Coins); err != nil {
			return fmt.Errorf("genesis balance of %s: %w", b.Address, err)
		}
	}
	return nil
}

// Revision is the revision number encoded in the chain id, as in "name-1".
func (c Config) Revision() uint64 {
	return clienttypes.ParseChainID(c.ChainID)
}

// Build starts the chain on clock. A nil clock starts a ManualClock at GenesisTime.
func (c Config) Build(clock Clock) (*Chain, error) {
	return New(c, clock)
}
