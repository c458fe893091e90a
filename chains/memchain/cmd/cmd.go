package cmd

import (
	"github.com/datachainlab/ibc-relayer/config"
	"github.com/spf13/cobra"
)

func MemoryCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "manage in-process memory chains",
	}

	cmd.AddCommand(
		configCmd(),
		demoCmd(ctx),
	)

	return cmd
}
