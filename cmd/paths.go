package cmd

import (
	"fmt"
	"os"

	"github.com/datachainlab/ibc-relayer/config"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

func pathsCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paths",
		Short: "manage path configurations",
		Long: `
A path represents the "full path" or "link" for communication between two chains. This includes the client,
connection, and channel ids from both the source and destination chains as well as an optional packet filter`,
		RunE: noCommand,
	}

	cmd.AddCommand(
		pathsListCmd(ctx),
		pathsShowCmd(ctx),
		pathsAddCmd(ctx),
	)

	return cmd
}

func pathsListCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "print out configured paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printOutput(cmd, ctx.Config.Paths)
		},
	}
	return yamlFlag(jsonFlag(cmd))
}

type pathStatus struct {
	Path       *core.Path `json:"path" yaml:"path"`
	Connection []string   `json:"connection" yaml:"connection"`
	Channel    []string   `json:"channel,omitempty" yaml:"channel,omitempty"`
}

func pathsShowCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [path-name]",
		Short: "print out a path and the handshake stages of its connection and channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, src, dst, err := ctx.Config.Endpoints(args[0])
			if err != nil {
				return err
			}
			defer src.Submitter.Stop()
			defer dst.Submitter.Stop()

			st := pathStatus{Path: path}
			srcConn, dstConn, err := core.QueryConnectionPair(cmd.Context(), src, dst)
			if err != nil {
				return err
			}
			st.Connection = []string{core.StageOf(srcConn).String(), core.StageOf(dstConn).String()}
			if path.Src.HasChannel() {
				srcChan, dstChan, err := core.QueryChannelPair(cmd.Context(), src, dst)
				if err != nil {
					return err
				}
				st.Channel = []string{core.StageOf(srcChan).String(), core.StageOf(dstChan).String()}
			}
			return printOutput(cmd, st)
		},
	}
	return yamlFlag(jsonFlag(cmd))
}

func pathsAddCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [path-name]",
		Short: "add a path to the list of paths",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := cmd.Flags().GetString(flagFile)
			if err != nil {
				return err
			}
			if err := fileInputPathAdd(ctx, file, args[0]); err != nil {
				return err
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

// fileInputPathAdd reads a path from a yaml or json file.
func fileInputPathAdd(ctx *config.Context, file, name string) error {
	byt, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	var path core.Path
	if err := yaml.UnmarshalStrict(byt, &path); err != nil {
		return fmt.Errorf("failed to parse path from %s: %w", file, err)
	}
	return ctx.Config.AddPath(name, &path)
}
