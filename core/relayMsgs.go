package core

import (
	"context"
	"errors"
)

// RelayMsgs contains the msgs that need to be sent to both a src and dst chain
// after a given relay round.
type RelayMsgs struct {
	Src []Msg `json:"src"`
	Dst []Msg `json:"dst"`

	Last      bool `json:"last"`
	Succeeded bool `json:"success"`

	// filled by Send
	SrcEvents []ChainEvent `json:"-"`
	DstEvents []ChainEvent `json:"-"`
	Err       error        `json:"-"`
}

// NewRelayMsgs returns an initialized version of relay messages
func NewRelayMsgs() *RelayMsgs {
	return &RelayMsgs{Src: []Msg{}, Dst: []Msg{}, Last: false, Succeeded: false}
}

// Ready returns true if there are messages to relay
func (r *RelayMsgs) Ready() bool {
	if r == nil {
		return false
	}

	if len(r.Src) == 0 && len(r.Dst) == 0 {
		return false
	}
	return true
}

// Success returns the success var
func (r *RelayMsgs) Success() bool {
	return r.Succeeded
}

// Merge appends msgs of other into r
func (r *RelayMsgs) Merge(other *RelayMsgs) {
	if other == nil {
		return
	}
	r.Src = append(r.Src, other.Src...)
	r.Dst = append(r.Dst, other.Dst...)
}

// Send submits the src msgs to src and the dst msgs to dst, each as one transaction.
// A redundant submission counts as a success since its effect is already on chain.
func (r *RelayMsgs) Send(ctx context.Context, src, dst *Endpoint) {
	r.Succeeded = true
	r.Err = nil

	send := func(ep *Endpoint, msgs []Msg) []ChainEvent {
		if len(msgs) == 0 {
			return nil
		}
		res, err := ep.Submit(ctx, msgs)
		if err != nil {
			if errors.Is(err, ErrRedundantMsg) {
				return nil
			}
			r.Succeeded = false
			r.Err = errors.Join(r.Err, err)
			return nil
		}
		return res.Events
	}

	r.SrcEvents = send(src, r.Src)
	r.DstEvents = send(dst, r.Dst)
}
