package cmd

import (
	"fmt"

	"github.com/datachainlab/ibc-relayer/chains/memchain"
	"github.com/datachainlab/ibc-relayer/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config [chain-id]",
		Short: "print a chain configuration for a memory chain, to be added to the chains section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := DefaultChainConfig(args[0])
			if err != nil {
				return err
			}
			out, err := yaml.Marshal([]*config.ChainConfig{cc})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	return cmd
}

// DefaultChainConfig returns the chain config of a memory chain with default settings.
func DefaultChainConfig(chainID string) (*config.ChainConfig, error) {
	bz, err := yaml.Marshal(memchain.DefaultConfig(chainID))
	if err != nil {
		return nil, err
	}
	settings := map[string]interface{}{}
	if err := yaml.Unmarshal(bz, &settings); err != nil {
		return nil, err
	}
	delete(settings, "chain-id")
	// blocks follow the wall clock when built from a config
	delete(settings, "genesis-time")
	return &config.ChainConfig{
		Type:     memchain.ChainType,
		ChainID:  chainID,
		Client:   config.DefaultClientConfig(),
		Settings: settings,
	}, nil
}
