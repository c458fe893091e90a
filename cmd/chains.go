package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/datachainlab/ibc-relayer/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

func chainsCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chains",
		Short: "manage chain configurations",
		RunE:  noCommand,
	}

	cmd.AddCommand(
		chainsListCmd(ctx),
		chainsAddCmd(ctx),
		chainsAddDirCmd(ctx),
	)

	return cmd
}

type chainInfo struct {
	ChainID      string `json:"chain-id" yaml:"chain-id"`
	Type         string `json:"type" yaml:"type"`
	Address      string `json:"address" yaml:"address"`
	LatestHeight string `json:"latest-height" yaml:"latest-height"`
}

func chainsListCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"l"},
		Short:   "print out configured chains with their latest height",
		RunE: func(cmd *cobra.Command, args []string) error {
			var infos []chainInfo
			for _, cc := range ctx.Config.Chains {
				chain, err := ctx.Config.GetChain(cc.ChainID)
				if err != nil {
					return err
				}
				info := chainInfo{ChainID: cc.ChainID, Type: cc.Type, Address: chain.Address()}
				if h, err := chain.LatestHeight(cmd.Context()); err != nil {
					info.LatestHeight = "unavailable: " + err.Error()
				} else {
					info.LatestHeight = h.String()
				}
				infos = append(infos, info)
			}
			return printOutput(cmd, infos)
		},
	}
	return yamlFlag(jsonFlag(cmd))
}

func chainsAddCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "add chains to the configuration file from a file holding a list of chain configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := cmd.Flags().GetString(flagFile)
			if err != nil {
				return err
			}
			bz, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var ccs []*config.ChainConfig
			if err := yaml.UnmarshalStrict(bz, &ccs); err != nil {
				return fmt.Errorf("failed to parse %s: %w", file, err)
			}
			for _, cc := range ccs {
				if err := addChain(ctx, cmd, cc); err != nil {
					return err
				}
			}
			return overWriteConfig(ctx)
		},
	}
	cmd = fileFlag(cmd)
	if err := cmd.MarkFlagRequired(flagFile); err != nil {
		panic(err)
	}
	return cmd
}

func chainsAddDirCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:  "add-dir [dir]",
		Args: cobra.ExactArgs(1),
		Short: `Add new chains to the configuration file from a directory
		full of chain configuration, useful for adding testnet configurations`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if err := filesAdd(ctx, cmd, args[0]); err != nil {
				return err
			}
			return overWriteConfig(ctx)
		},
	}

	return cmd
}

func filesAdd(ctx *config.Context, cmd *cobra.Command, dir string) error {
	dir = filepath.Clean(dir)
	files, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, f := range files {
		pth := filepath.Join(dir, f.Name())
		if f.IsDir() {
			fmt.Fprintf(cmd.ErrOrStderr(), "directory at %s, skipping...\n", pth)
			continue
		}
		byt, err := os.ReadFile(pth)
		if err != nil {
			return fmt.Errorf("failed to read file %s, error: %v", pth, err)
		}
		var cc config.ChainConfig
		if err := yaml.UnmarshalStrict(byt, &cc); err != nil {
			return fmt.Errorf("failed to unmarshal file %s, error: %v", pth, err)
		}
		if err := addChain(ctx, cmd, &cc); err != nil {
			return fmt.Errorf("failed to add chain %s, error: %v", pth, err)
		}
	}
	return nil
}

func addChain(ctx *config.Context, cmd *cobra.Command, cc *config.ChainConfig) error {
	if err := ctx.Config.AddChain(cc); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added %s...\n", cc.ChainID)
	return nil
}

// overWriteConfig checks that every configured chain can be built and saves the config.
func overWriteConfig(ctx *config.Context) error {
	if err := ctx.Config.InitChains(ctx.Modules); err != nil {
		return err
	}
	return ctx.Config.Save()
}

// printOutput prints v as json unless --yaml is set.
func printOutput(cmd *cobra.Command, v interface{}) error {
	jsn, _ := cmd.Flags().GetBool(flagJSON)
	yml, _ := cmd.Flags().GetBool(flagYAML)
	var (
		out []byte
		err error
	)
	switch {
	case yml && jsn:
		return fmt.Errorf("can't pass both --json and --yaml, must pick one")
	case yml:
		out, err = yaml.Marshal(v)
	default: // default format is json
		out, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
