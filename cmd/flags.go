package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagLogLevel            = "log-level"
	flagEnableTelemetry     = "enable-telemetry"
	flagUpdateConfig        = "update-config"
	flagJSON                = "json"
	flagYAML                = "yaml"
	flagFile                = "file"
	flagTimeout             = "timeout"
	flagTimeoutHeightOffset = "timeout-height-offset"
	flagTimeoutTimeOffset   = "timeout-time-offset"
	flagIBCDenoms           = "ibc-denoms"
	flagRelayInterval       = "relay-interval"
	flagPrometheusAddr      = "prometheus-addr"
	flagHealthAddr          = "health-addr"
)

func fileFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().StringP(flagFile, "f", "", "fetch yaml or json data from specified file")
	return cmd
}

func yamlFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().BoolP(flagYAML, "y", false, "output using yaml")
	return cmd
}

func jsonFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().BoolP(flagJSON, "j", false, "returns the response in json format")
	return cmd
}

func timeoutFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().DurationP(flagTimeout, "o", 0, "interval between handshake steps, defaults to the configured global timeout")
	return cmd
}

func getTimeout(cmd *cobra.Command, def time.Duration) (time.Duration, error) {
	to, err := cmd.Flags().GetDuration(flagTimeout)
	if err != nil {
		return 0, err
	}
	if to <= 0 {
		return def, nil
	}
	return to, nil
}

func timeoutFlags(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().Uint64(flagTimeoutHeightOffset, 0, "timeout height as an offset from the counterparty's latest height")
	cmd.Flags().Duration(flagTimeoutTimeOffset, 0, "timeout timestamp as an offset from the counterparty's latest block time")
	return cmd
}

func ibcDenomFlags(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().BoolP(flagIBCDenoms, "i", false, "Display IBC denominations for sending tokens back to other chains")
	return cmd
}

// serviceFlags registers the relay service flags; the values may also come from IBC_RELAYER_* variables.
func serviceFlags(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().Duration(flagRelayInterval, 0, "time interval to perform relays, defaults to the configured relay-interval")
	cmd.Flags().String(flagPrometheusAddr, "localhost:2223", "host address to which the prometheus exporter listens")
	cmd.Flags().String(flagHealthAddr, "localhost:2224", "host address to which the gRPC health service listens, empty to disable")
	for _, name := range []string{flagRelayInterval, flagPrometheusAddr, flagHealthAddr} {
		if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}
	return cmd
}
