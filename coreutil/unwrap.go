package coreutil

import (
	"fmt"

	"github.com/datachainlab/ibc-relayer/core"
	"github.com/datachainlab/ibc-relayer/otelcore"
)

// UnwrapChain looks through the wrappers the relayer puts around chain handles and returns the
// first value matching the type argument, which may be an interface.
//
// In the following example, UnwrapChain returns the *memchain.Chain behind a traced handle:
//
//	chain, err := coreutil.UnwrapChain[*memchain.Chain](handle)
func UnwrapChain[C any](c core.ChainHandle) (C, error) {
	chain := c
	for {
		switch unwrapped := chain.(type) {
		case *otelcore.Chain:
			chain = unwrapped.ChainHandle
		case C:
			return unwrapped, nil
		default:
			var zero C
			return zero, fmt.Errorf("failed to unwrap chain: expected=%T, actual=%T", zero, unwrapped)
		}
	}
}
