package core

import (
	"context"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"
)

// Route names the module category a message is dispatched to.
type Route string

const (
	RouteClient     Route = "client"
	RouteConnection Route = "connection"
	RouteChannel    Route = "channel"
	RouteTransfer   Route = "transfer"
)

// Envelope wraps exactly one outgoing message together with its routing category.
// The set of envelopes is closed: ClientEnvelope, ConnectionEnvelope, ChannelEnvelope
// and TransferEnvelope.
type Envelope interface {
	Route() Route
	Msg() Msg
	isEnvelope()
}

type ClientEnvelope struct{ Inner ClientMsg }
type ConnectionEnvelope struct{ Inner ConnectionMsg }
type ChannelEnvelope struct{ Inner ChannelMsg }
type TransferEnvelope struct{ Inner TransferMsg }

func (ClientEnvelope) isEnvelope()     {}
func (ConnectionEnvelope) isEnvelope() {}
func (ChannelEnvelope) isEnvelope()    {}
func (TransferEnvelope) isEnvelope()   {}

func (ClientEnvelope) Route() Route     { return RouteClient }
func (ConnectionEnvelope) Route() Route { return RouteConnection }
func (ChannelEnvelope) Route() Route    { return RouteChannel }
func (TransferEnvelope) Route() Route   { return RouteTransfer }

func (e ClientEnvelope) Msg() Msg     { return e.Inner }
func (e ConnectionEnvelope) Msg() Msg { return e.Inner }
func (e ChannelEnvelope) Msg() Msg    { return e.Inner }
func (e TransferEnvelope) Msg() Msg   { return e.Inner }

// Wrap packs msg into the envelope of its category.
func Wrap(msg Msg) (Envelope, error) {
	switch m := msg.(type) {
	case ClientMsg:
		return ClientEnvelope{Inner: m}, nil
	case ConnectionMsg:
		return ConnectionEnvelope{Inner: m}, nil
	case ChannelMsg:
		return ChannelEnvelope{Inner: m}, nil
	case TransferMsg:
		return TransferEnvelope{Inner: m}, nil
	default:
		return nil, errorsmod.Wrapf(ErrUnroutableMessage, "%T", msg)
	}
}

// WrapAll wraps and validates msgs, failing on the first unroutable or malformed message.
func WrapAll(msgs []Msg) ([]Envelope, error) {
	envs := make([]Envelope, 0, len(msgs))
	for _, msg := range msgs {
		env, err := Wrap(msg)
		if err != nil {
			return nil, err
		}
		if err := ValidateEnvelope(env); err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, nil
}

// ValidateEnvelope checks that env carries a message and that the message is well formed.
func ValidateEnvelope(env Envelope) error {
	var msg Msg
	switch e := env.(type) {
	case ClientEnvelope:
		if e.Inner != nil {
			msg = e.Inner
		}
	case ConnectionEnvelope:
		if e.Inner != nil {
			msg = e.Inner
		}
	case ChannelEnvelope:
		if e.Inner != nil {
			msg = e.Inner
		}
	case TransferEnvelope:
		if e.Inner != nil {
			msg = e.Inner
		}
	default:
		return errorsmod.Wrapf(ErrUnroutableMessage, "unknown envelope %T", env)
	}
	if msg == nil {
		return errorsmod.Wrapf(ErrUnroutableMessage, "empty %s envelope", env.Route())
	}
	return msg.ValidateBasic()
}

// Handler processes one category of messages on a chain and returns the emitted events.
type Handler[M Msg] func(ctx context.Context, msg M) ([]abci.Event, error)

// Router dispatches envelopes to the handler registered for their category.
// A category without a handler rejects its envelopes as unroutable.
type Router struct {
	Client     Handler[ClientMsg]
	Connection Handler[ConnectionMsg]
	Channel    Handler[ChannelMsg]
	Transfer   Handler[TransferMsg]
}

func (r *Router) Dispatch(ctx context.Context, env Envelope) ([]abci.Event, error) {
	if err := ValidateEnvelope(env); err != nil {
		return nil, err
	}
	switch e := env.(type) {
	case ClientEnvelope:
		if r.Client != nil {
			return r.Client(ctx, e.Inner)
		}
	case ConnectionEnvelope:
		if r.Connection != nil {
			return r.Connection(ctx, e.Inner)
		}
	case ChannelEnvelope:
		if r.Channel != nil {
			return r.Channel(ctx, e.Inner)
		}
	case TransferEnvelope:
		if r.Transfer != nil {
			return r.Transfer(ctx, e.Inner)
		}
	}
	return nil, errorsmod.Wrap(ErrUnroutableMessage, fmt.Sprintf("no handler for route %s", env.Route()))
}
