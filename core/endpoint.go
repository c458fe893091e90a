package core

import (
	"context"
)

// Endpoint is one side of a path at runtime: the chain handle, the path end configured for it,
// the submission point of its relayer account and the settings for clients it hosts.
type Endpoint struct {
	Chain     ChainHandle
	End       *PathEnd
	Submitter *Submitter
	// ClientSettings is used when creating a client of the counterparty on this chain.
	ClientSettings ClientSettings
}

// NewEndpoint binds chain to end. A nil submitter gets a dedicated one.
func NewEndpoint(chain ChainHandle, end *PathEnd, submitter *Submitter, settings ClientSettings) *Endpoint {
	if submitter == nil {
		submitter = NewSubmitter(chain)
	}
	return &Endpoint{
		Chain:          chain,
		End:            end,
		Submitter:      submitter,
		ClientSettings: settings,
	}
}

func (ep *Endpoint) ChainID() string {
	return ep.Chain.ChainID()
}

func (ep *Endpoint) Signer() string {
	return ep.Chain.Address()
}

func (ep *Endpoint) Submit(ctx context.Context, msgs []Msg) (*TxResult, error) {
	return ep.Submitter.Submit(ctx, msgs)
}
