package core_test

import (
	"errors"
	"fmt"
	"testing"

	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	conntypes "github.com/cosmos/ibc-go/v8/modules/core/03-connection/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validateAll(s string) []error {
	_, errClient := core.NewClientID(s)
	_, errConn := core.NewConnectionID(s)
	_, errChan := core.NewChannelID(s)
	_, errPort := core.NewPortID(s)
	return []error{errClient, errConn, errChan, errPort}
}

func TestIdentifierAcceptsWellFormed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringMatching(`[a-z0-9._+#-]{10,64}`).Draw(t, "id")
		for _, err := range validateAll(s) {
			if err != nil {
				t.Fatalf("%q rejected: %v", s, err)
			}
		}
	})
}

func TestIdentifierRejectsSeparator(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prefix := rapid.StringMatching(`[a-z0-9]{5,20}`).Draw(t, "prefix")
		suffix := rapid.StringMatching(`[a-z0-9]{5,20}`).Draw(t, "suffix")
		s := prefix + "/" + suffix
		for i, err := range validateAll(s) {
			if !errors.Is(err, core.ErrInvalidIdentifier) {
				t.Fatalf("validator %d accepted %q", i, s)
			}
		}
	})
}

func TestIdentifierRejectsOutOfBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		short := rapid.StringMatching(`[a-z]`).Draw(t, "short")
		for i, err := range validateAll(short) {
			if !errors.Is(err, core.ErrInvalidIdentifier) {
				t.Fatalf("validator %d accepted %q", i, short)
			}
		}
		long := rapid.StringMatching(`[a-z]{129,160}`).Draw(t, "long")
		for i, err := range validateAll(long) {
			if !errors.Is(err, core.ErrInvalidIdentifier) {
				t.Fatalf("validator %d accepted a %d byte identifier", i, len(long))
			}
		}
	})
}

func TestGeneratedIdentifiersAreValid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seq := rapid.Uint64Range(0, 1<<40).Draw(t, "seq")
		_, err := core.NewClientID(clienttypes.FormatClientIdentifier("mock-client", seq))
		require.NoError(t, err)
		_, err = core.NewConnectionID(conntypes.FormatConnectionIdentifier(seq))
		require.NoError(t, err)
		_, err = core.NewChannelID(chantypes.FormatChannelIdentifier(seq))
		require.NoError(t, err)
	})
}

func TestIdentifierRoundTrip(t *testing.T) {
	for i, s := range []string{"07-tendermint-0", "connection-12", "channel-3", "transfer"} {
		t.Run(fmt.Sprintf("case %d", i), func(t *testing.T) {
			port, err := core.NewPortID(s)
			require.NoError(t, err)
			require.Equal(t, s, port.String())
			require.NoError(t, port.Validate())
		})
	}
	require.Error(t, core.ClientID("").Validate())
	require.Error(t, core.ChannelID("ch").Validate())
}
