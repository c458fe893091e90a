package config

import (
	"fmt"

	"github.com/datachainlab/ibc-relayer/core"
	"github.com/spf13/cobra"
)

// ModuleI defines an interface of Module
type ModuleI interface {
	// Name returns the name of the module
	Name() string

	// ChainType returns the chain config type this module builds chains for
	ChainType() string

	// BuildChain builds a chain handle from its configuration
	BuildChain(cc *ChainConfig) (core.ChainHandle, error)

	// GetCmd returns the command
	GetCmd(ctx *Context) *cobra.Command
}

func findModule(modules []ModuleI, chainType string) (ModuleI, error) {
	for _, m := range modules {
		if m.ChainType() == chainType {
			return m, nil
		}
	}
	return nil, fmt.Errorf("no module serves chain type %q", chainType)
}
