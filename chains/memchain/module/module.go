package module

import (
	"github.com/datachainlab/ibc-relayer/chains/memchain"
	"github.com/datachainlab/ibc-relayer/chains/memchain/cmd"
	"github.com/datachainlab/ibc-relayer/config"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/spf13/cobra"
)

type Module struct{}

var _ config.ModuleI = (*Module)(nil)

// Name returns the name of the module
func (Module) Name() string {
	return "memory"
}

func (Module) ChainType() string {
	return memchain.ChainType
}

// BuildChain starts an in-process chain following the wall clock.
func (Module) BuildChain(cc *config.ChainConfig) (core.ChainHandle, error) {
	cfg := memchain.DefaultConfig(cc.ChainID)
	if err := cc.Decode(&cfg); err != nil {
		return nil, err
	}
	return memchain.New(cfg, memchain.SystemClock{})
}

// GetCmd returns the command
func (Module) GetCmd(ctx *config.Context) *cobra.Command {
	return cmd.MemoryCmd(ctx)
}
