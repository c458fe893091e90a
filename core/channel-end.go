package core

import (
	"encoding/json"
	"fmt"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/cosmos/gogoproto/proto"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
)

// Order is the packet delivery mode of a channel. It is fixed when the channel is initialized.
type Order int

const (
	OrderNone Order = iota
	OrderUnordered
	OrderOrdered
)

// ParseOrder accepts "ordered"/"unordered" in any case, with or without the ORDER_ prefix.
func ParseOrder(s string) (Order, error) {
	switch strings.TrimPrefix(strings.ToLower(s), "order_") {
	case "ordered":
		return OrderOrdered, nil
	case "unordered":
		return OrderUnordered, nil
	default:
		return OrderNone, errorsmod.Wrapf(ErrInvalidPath, "invalid channel order %q", s)
	}
}

func (o Order) String() string {
	switch o {
	case OrderOrdered:
		return "ORDERED"
	case OrderUnordered:
		return "UNORDERED"
	default:
		return "NONE"
	}
}

func (o Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToLower(o.String()))
}

func (o *Order) UnmarshalJSON(bz []byte) error {
	var s string
	if err := json.Unmarshal(bz, &s); err != nil {
		return err
	}
	parsed, err := ParseOrder(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

func (o Order) ToProto() chantypes.Order {
	switch o {
	case OrderOrdered:
		return chantypes.ORDERED
	case OrderUnordered:
		return chantypes.UNORDERED
	default:
		return chantypes.NONE
	}
}

func OrderFromProto(o chantypes.Order) Order {
	switch o {
	case chantypes.ORDERED:
		return OrderOrdered
	case chantypes.UNORDERED:
		return OrderUnordered
	default:
		return OrderNone
	}
}

// ChannelCounterparty is the remote end of a channel.
// ChannelID stays empty until the remote chain commits to an identifier.
type ChannelCounterparty struct {
	PortID    PortID    `json:"port_id"`
	ChannelID ChannelID `json:"channel_id,omitempty"`
}

func (c ChannelCounterparty) ValidateBasic() error {
	if err := c.PortID.Validate(); err != nil {
		return errorsmod.Wrap(ErrInvalidCounterparty, err.Error())
	}
	if c.ChannelID != "" {
		if err := c.ChannelID.Validate(); err != nil {
			return errorsmod.Wrap(ErrInvalidCounterparty, err.Error())
		}
	}
	return nil
}

// ChannelEnd is one chain's half of a channel.
type ChannelEnd struct {
	State          HandshakeStage      `json:"state"`
	Ordering       Order               `json:"ordering"`
	Counterparty   ChannelCounterparty `json:"counterparty"`
	ConnectionHops []ConnectionID      `json:"connection_hops"`
	Version        string              `json:"version"`
}

var _ HandshakeEnd = (*ChannelEnd)(nil)

// NewChannelEnd returns an Uninitialized channel end on top of connectionID.
func NewChannelEnd(order Order, counterparty ChannelCounterparty, connectionID ConnectionID, version string) (*ChannelEnd, error) {
	if order == OrderNone {
		return nil, errorsmod.Wrap(ErrInvalidCounterparty, "channel order must be set")
	}
	end := &ChannelEnd{
		State:          StageUninitialized,
		Ordering:       order,
		Counterparty:   counterparty,
		ConnectionHops: []ConnectionID{connectionID},
		Version:        version,
	}
	if err := end.ValidateBasic(); err != nil {
		return nil, err
	}
	return end, nil
}

func (c *ChannelEnd) Stage() HandshakeStage {
	if c == nil {
		return StageUninitialized
	}
	return c.State
}

func (c *ChannelEnd) CounterpartyID() string { return string(c.Counterparty.ChannelID) }

// ConnectionID returns the single connection hop of the channel.
func (c *ChannelEnd) ConnectionID() ConnectionID {
	if len(c.ConnectionHops) == 0 {
		return ""
	}
	return c.ConnectionHops[0]
}

// SetState advances the channel one stage forward, or closes an open channel.
func (c *ChannelEnd) SetState(next HandshakeStage) error {
	switch {
	case next == StageClosed && c.State == StageOpen:
	case next != StageClosed && next == c.State+1:
		if next == StageOpen && c.Counterparty.ChannelID == "" {
			return errorsmod.Wrap(ErrInvalidStateTransition, "channel cannot open without counterparty channel id")
		}
	default:
		return errorsmod.Wrapf(ErrInvalidStateTransition, "channel %s -> %s", c.State, next)
	}
	c.State = next
	return nil
}

func (c *ChannelEnd) ValidateBasic() error {
	if c.Ordering == OrderNone {
		return errorsmod.Wrap(ErrInvalidCounterparty, "channel order must be set")
	}
	if len(c.ConnectionHops) != 1 {
		return errorsmod.Wrapf(ErrInvalidCounterparty, "channel must have exactly one connection hop, got %d", len(c.ConnectionHops))
	}
	if err := c.ConnectionHops[0].Validate(); err != nil {
		return err
	}
	return c.Counterparty.ValidateBasic()
}

func (c *ChannelEnd) ToProto() chantypes.Channel {
	hops := make([]string, 0, len(c.ConnectionHops))
	for _, h := range c.ConnectionHops {
		hops = append(hops, string(h))
	}
	return chantypes.Channel{
		State:    channelStateToProto(c.State),
		Ordering: c.Ordering.ToProto(),
		Counterparty: chantypes.Counterparty{
			PortId:    string(c.Counterparty.PortID),
			ChannelId: string(c.Counterparty.ChannelID),
		},
		ConnectionHops: hops,
		Version:        c.Version,
	}
}

func (c *ChannelEnd) CommitmentBytes() ([]byte, error) {
	pc := c.ToProto()
	return proto.Marshal(&pc)
}

// ChannelEndFromProto converts an ibc-go channel.
func ChannelEndFromProto(pc chantypes.Channel) (*ChannelEnd, error) {
	if pc.Counterparty.PortId == "" {
		return nil, errorsmod.Wrap(ErrMissingCounterparty, "channel without counterparty port")
	}
	state, err := channelStateFromProto(pc.State)
	if err != nil {
		return nil, err
	}
	hops := make([]ConnectionID, 0, len(pc.ConnectionHops))
	for _, h := range pc.ConnectionHops {
		hops = append(hops, ConnectionID(h))
	}
	end := &ChannelEnd{
		State:    state,
		Ordering: OrderFromProto(pc.Ordering),
		Counterparty: ChannelCounterparty{
			PortID:    PortID(pc.Counterparty.PortId),
			ChannelID: ChannelID(pc.Counterparty.ChannelId),
		},
		ConnectionHops: hops,
		Version:        pc.Version,
	}
	if err := end.ValidateBasic(); err != nil {
		return nil, err
	}
	return end, nil
}

func channelStateToProto(s HandshakeStage) chantypes.State {
	switch s {
	case StageInit:
		return chantypes.INIT
	case StageTryOpen:
		return chantypes.TRYOPEN
	case StageOpen:
		return chantypes.OPEN
	case StageClosed:
		return chantypes.CLOSED
	default:
		return chantypes.UNINITIALIZED
	}
}

func channelStateFromProto(s chantypes.State) (HandshakeStage, error) {
	switch s {
	case chantypes.UNINITIALIZED:
		return StageUninitialized, nil
	case chantypes.INIT:
		return StageInit, nil
	case chantypes.TRYOPEN:
		return StageTryOpen, nil
	case chantypes.OPEN:
		return StageOpen, nil
	case chantypes.CLOSED:
		return StageClosed, nil
	default:
		return 0, errorsmod.Wrap(ErrInvalidCounterparty, fmt.Sprintf("unsupported channel state %s", s))
	}
}
