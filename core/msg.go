package core

import (
	"time"

	errorsmod "cosmossdk.io/errors"
	sdk "github.com/cosmos/cosmos-sdk/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
)

// Msg is a message the relayer submits to a chain.
type Msg interface {
	// Type is a short snake_case name used in logs and metrics.
	Type() string
	ValidateBasic() error
}

// ClientMsg, ConnectionMsg, ChannelMsg and TransferMsg are the routing categories of Msg.
// The unexported markers keep the set closed.
type ClientMsg interface {
	Msg
	isClientMsg()
}

type ConnectionMsg interface {
	Msg
	isConnectionMsg()
}

type ChannelMsg interface {
	Msg
	isChannelMsg()
}

type TransferMsg interface {
	Msg
	isTransferMsg()
}

var (
	_ ClientMsg     = (*MsgCreateClient)(nil)
	_ ClientMsg     = (*MsgUpdateClient)(nil)
	_ ConnectionMsg = (*MsgConnectionOpenInit)(nil)
	_ ConnectionMsg = (*MsgConnectionOpenTry)(nil)
	_ ConnectionMsg = (*MsgConnectionOpenAck)(nil)
	_ ConnectionMsg = (*MsgConnectionOpenConfirm)(nil)
	_ ChannelMsg    = (*MsgChannelOpenInit)(nil)
	_ ChannelMsg    = (*MsgChannelOpenTry)(nil)
	_ ChannelMsg    = (*MsgChannelOpenAck)(nil)
	_ ChannelMsg    = (*MsgChannelOpenConfirm)(nil)
	_ ChannelMsg    = (*MsgChannelCloseInit)(nil)
	_ ChannelMsg    = (*MsgChannelCloseConfirm)(nil)
	_ ChannelMsg    = (*MsgRecvPacket)(nil)
	_ ChannelMsg    = (*MsgAcknowledgement)(nil)
	_ ChannelMsg    = (*MsgTimeout)(nil)
	_ TransferMsg   = (*MsgTransfer)(nil)
)

func (*MsgCreateClient) isClientMsg()              {}
func (*MsgUpdateClient) isClientMsg()              {}
func (*MsgConnectionOpenInit) isConnectionMsg()    {}
func (*MsgConnectionOpenTry) isConnectionMsg()     {}
func (*MsgConnectionOpenAck) isConnectionMsg()     {}
func (*MsgConnectionOpenConfirm) isConnectionMsg() {}
func (*MsgChannelOpenInit) isChannelMsg()          {}
func (*MsgChannelOpenTry) isChannelMsg()           {}
func (*MsgChannelOpenAck) isChannelMsg()           {}
func (*MsgChannelOpenConfirm) isChannelMsg()       {}
func (*MsgChannelCloseInit) isChannelMsg()         {}
func (*MsgChannelCloseConfirm) isChannelMsg()      {}
func (*MsgRecvPacket) isChannelMsg()               {}
func (*MsgAcknowledgement) isChannelMsg()          {}
func (*MsgTimeout) isChannelMsg()                  {}
func (*MsgTransfer) isTransferMsg()                {}

func validateSigner(signer string) error {
	if signer == "" {
		return errorsmod.Wrap(ErrInvalidMsg, "missing signer")
	}
	return nil
}

func validateProof(proof []byte, height clienttypes.Height) error {
	if len(proof) == 0 {
		return errorsmod.Wrap(ErrInvalidMsg, "empty proof")
	}
	if height.IsZero() {
		return errorsmod.Wrap(ErrInvalidMsg, "zero proof height")
	}
	return nil
}

type MsgCreateClient struct {
	ClientState    *ClientState
	ConsensusState *ConsensusState
	Signer         string
}

func (*MsgCreateClient) Type() string { return "create_client" }

func (m *MsgCreateClient) ValidateBasic() error {
	if m.ClientState == nil || m.ConsensusState == nil {
		return errorsmod.Wrap(ErrInvalidMsg, "client and consensus state are required")
	}
	if err := m.ClientState.Validate(); err != nil {
		return err
	}
	return validateSigner(m.Signer)
}

type MsgUpdateClient struct {
	ClientID ClientID
	Header   *Header
	Signer   string
}

func (*MsgUpdateClient) Type() string { return "update_client" }

func (m *MsgUpdateClient) ValidateBasic() error {
	if err := m.ClientID.Validate(); err != nil {
		return err
	}
	if err := m.Header.ValidateBasic(); err != nil {
		return err
	}
	return validateSigner(m.Signer)
}

type MsgConnectionOpenInit struct {
	ClientID     ClientID
	Counterparty ConnectionCounterparty
	Version      string
	DelayPeriod  time.Duration
	Signer       string
}

func (*MsgConnectionOpenInit) Type() string { return "connection_open_init" }

func (m *MsgConnectionOpenInit) ValidateBasic() error {
	if err := m.ClientID.Validate(); err != nil {
		return err
	}
	if m.Counterparty.ConnectionID != "" {
		return errorsmod.Wrap(ErrInvalidCounterparty, "counterparty connection id must be empty on init")
	}
	if err := m.Counterparty.ValidateBasic(); err != nil {
		return err
	}
	if _, err := ValidateVersions([]string{m.Version}); err != nil {
		return err
	}
	return validateSigner(m.Signer)
}

type MsgConnectionOpenTry struct {
	ClientID             ClientID
	Counterparty         ConnectionCounterparty
	CounterpartyVersions []string
	DelayPeriod          time.Duration
	ProofInit            []byte
	ProofHeight          clienttypes.Height
	Signer               string
}

func (*MsgConnectionOpenTry) Type() string { return "connection_open_try" }

func (m *MsgConnectionOpenTry) ValidateBasic() error {
	if err := m.ClientID.Validate(); err != nil {
		return err
	}
	if m.Counterparty.ConnectionID == "" {
		return errorsmod.Wrap(ErrMissingCounterparty, "counterparty connection id is required on try")
	}
	if err := m.Counterparty.ValidateBasic(); err != nil {
		return err
	}
	if _, err := ValidateVersions(m.CounterpartyVersions); err != nil {
		return err
	}
	if err := validateProof(m.ProofInit, m.ProofHeight); err != nil {
		return err
	}
	return validateSigner(m.Signer)
}

type MsgConnectionOpenAck struct {
	ConnectionID             ConnectionID
	CounterpartyConnectionID ConnectionID
	Version                  string
	ProofTry                 []byte
	ProofHeight              clienttypes.Height
	Signer                   string
}

func (*MsgConnectionOpenAck) Type() string { return "connection_open_ack" }

func (m *MsgConnectionOpenAck) ValidateBasic() error {
	if err := m.ConnectionID.Validate(); err != nil {
		return err
	}
	if err := m.CounterpartyConnectionID.Validate(); err != nil {
		return errorsmod.Wrap(ErrInvalidCounterparty, err.Error())
	}
	if _, err := ValidateVersions([]string{m.Version}); err != nil {
		return err
	}
	if err := validateProof(m.ProofTry, m.ProofHeight); err != nil {
		return err
	}
	return validateSigner(m.Signer)
}

type MsgConnectionOpenConfirm struct {
	ConnectionID ConnectionID
	ProofAck     []byte
	ProofHeight  clienttypes.Height
	Signer       string
}

func (*MsgConnectionOpenConfirm) Type() string { return "connection_open_confirm" }

func (m *MsgConnectionOpenConfirm) ValidateBasic() error {
	if err := m.ConnectionID.Validate(); err != nil {
		return err
	}
	if err := validateProof(m.ProofAck, m.ProofHeight); err != nil {
		return err
	}
	return validateSigner(m.Signer)
}

type MsgChannelOpenInit struct {
	PortID  PortID
	Channel ChannelEnd
	Signer  string
}

func (*MsgChannelOpenInit) Type() string { return "channel_open_init" }

func (m *MsgChannelOpenInit) ValidateBasic() error {
	if err := m.PortID.Validate(); err != nil {
		return err
	}
	if m.Channel.State != StageInit {
		return errorsmod.Wrapf(ErrInvalidMsg, "channel state must be INIT, got %s", m.Channel.State)
	}
	if m.Channel.Counterparty.ChannelID != "" {
		return errorsmod.Wrap(ErrInvalidCounterparty, "counterparty channel id must be empty on init")
	}
	if err := m.Channel.ValidateBasic(); err != nil {
		return err
	}
	return validateSigner(m.Signer)
}

type MsgChannelOpenTry struct {
	PortID              PortID
	Channel             ChannelEnd
	CounterpartyVersion string
	ProofInit           []byte
	ProofHeight         clienttypes.Height
	Signer              string
}

func (*MsgChannelOpenTry) Type() string { return "channel_open_try" }

func (m *MsgChannelOpenTry) ValidateBasic() error {
	if err := m.PortID.Validate(); err != nil {
		return err
	}
	if m.Channel.State != StageTryOpen {
		return errorsmod.Wrapf(ErrInvalidMsg, "channel state must be TRYOPEN, got %s", m.Channel.State)
	}
	if m.Channel.Counterparty.ChannelID == "" {
		return errorsmod.Wrap(ErrMissingCounterparty, "counterparty channel id is required on try")
	}
	if err := m.Channel.ValidateBasic(); err != nil {
		return err
	}
	if err := validateProof(m.ProofInit, m.ProofHeight); err != nil {
		return err
	}
	return validateSigner(m.Signer)
}

type MsgChannelOpenAck struct {
	PortID                PortID
	ChannelID             ChannelID
	CounterpartyChannelID ChannelID
	CounterpartyVersion   string
	ProofTry              []byte
	ProofHeight           clienttypes.Height
	Signer                string
}

func (*MsgChannelOpenAck) Type() string { return "channel_open_ack" }

func (m *MsgChannelOpenAck) ValidateBasic() error {
	if err := m.PortID.Validate(); err != nil {
		return err
	}
	if err := m.ChannelID.Validate(); err != nil {
		return err
	}
	if err := m.CounterpartyChannelID.Validate(); err != nil {
		return errorsmod.Wrap(ErrInvalidCounterparty, err.Error())
	}
	if err := validateProof(m.ProofTry, m.ProofHeight); err != nil {
		return err
	}
	return validateSigner(m.Signer)
}

type MsgChannelOpenConfirm struct {
	PortID      PortID
	ChannelID   ChannelID
	ProofAck    []byte
	ProofHeight clienttypes.Height
	Signer      string
}

func (*MsgChannelOpenConfirm) Type() string { return "channel_open_confirm" }

func (m *MsgChannelOpenConfirm) ValidateBasic() error {
	if err := m.PortID.Validate(); err != nil {
		return err
	}
	if err := m.ChannelID.Validate(); err != nil {
		return err
	}
	if err := validateProof(m.ProofAck, m.ProofHeight); err != nil {
		return err
	}
	return validateSigner(m.Signer)
}

type MsgChannelCloseInit struct {
	PortID    PortID
	ChannelID ChannelID
	Signer    string
}

func (*MsgChannelCloseInit) Type() string { return "channel_close_init" }

func (m *MsgChannelCloseInit) ValidateBasic() error {
	if err := m.PortID.Validate(); err != nil {
		return err
	}
	if err := m.ChannelID.Validate(); err != nil {
		return err
	}
	return validateSigner(m.Signer)
}

type MsgChannelCloseConfirm struct {
	PortID      PortID
	ChannelID   ChannelID
	ProofInit   []byte
	ProofHeight clienttypes.Height
	Signer      string
}

func (*MsgChannelCloseConfirm) Type() string { return "channel_close_confirm" }

func (m *MsgChannelCloseConfirm) ValidateBasic() error {
	if err := m.PortID.Validate(); err != nil {
		return err
	}
	if err := m.ChannelID.Validate(); err != nil {
		return err
	}
	if err := validateProof(m.ProofInit, m.ProofHeight); err != nil {
		return err
	}
	return validateSigner(m.Signer)
}

type MsgRecvPacket struct {
	Packet          Packet
	ProofCommitment []byte
	ProofHeight     clienttypes.Height
	Signer          string
}

func (*MsgRecvPacket) Type() string { return "recv_packet" }

func (m *MsgRecvPacket) ValidateBasic() error {
	if err := m.Packet.ValidateBasic(); err != nil {
		return err
	}
	if err := validateProof(m.ProofCommitment, m.ProofHeight); err != nil {
		return err
	}
	return validateSigner(m.Signer)
}

type MsgAcknowledgement struct {
	Packet          Packet
	Acknowledgement []byte
	ProofAcked      []byte
	ProofHeight     clienttypes.Height
	Signer          string
}

func (*MsgAcknowledgement) Type() string { return "acknowledge_packet" }

func (m *MsgAcknowledgement) ValidateBasic() error {
	if err := m.Packet.ValidateBasic(); err != nil {
		return err
	}
	if len(m.Acknowledgement) == 0 {
		return errorsmod.Wrap(ErrInvalidMsg, "empty acknowledgement")
	}
	if err := validateProof(m.ProofAcked, m.ProofHeight); err != nil {
		return err
	}
	return validateSigner(m.Signer)
}

// MsgTimeout proves on the sending chain that the packet was never received.
// NextSequenceRecv is only meaningful for ordered channels.
type MsgTimeout struct {
	Packet           Packet
	NextSequenceRecv uint64
	ProofUnreceived  []byte
	ProofHeight      clienttypes.Height
	Signer           string
}

func (*MsgTimeout) Type() string { return "timeout_packet" }

func (m *MsgTimeout) ValidateBasic() error {
	if err := m.Packet.ValidateBasic(); err != nil {
		return err
	}
	if err := validateProof(m.ProofUnreceived, m.ProofHeight); err != nil {
		return err
	}
	return validateSigner(m.Signer)
}

// MsgTransfer is the ICS-20 fungible token transfer.
type MsgTransfer struct {
	SourcePort       PortID
	SourceChannel    ChannelID
	Token            sdk.Coin
	Sender           string
	Receiver         string
	TimeoutHeight    clienttypes.Height
	TimeoutTimestamp uint64
	Memo             string
}

func (*MsgTransfer) Type() string { return "transfer" }

func (m *MsgTransfer) ValidateBasic() error {
	if err := m.SourcePort.Validate(); err != nil {
		return err
	}
	if err := m.SourceChannel.Validate(); err != nil {
		return err
	}
	if !m.Token.IsValid() || !m.Token.IsPositive() {
		return errorsmod.Wrapf(ErrInvalidMsg, "invalid transfer amount %s", m.Token)
	}
	if m.Sender == "" || m.Receiver == "" {
		return errorsmod.Wrap(ErrInvalidMsg, "sender and receiver are required")
	}
	if m.TimeoutHeight.IsZero() && m.TimeoutTimestamp == 0 {
		return errorsmod.Wrap(ErrInvalidMsg, "either timeout height or timeout timestamp must be set")
	}
	return nil
}

// TxResult is the outcome of one submission. A failed result carries the ABCI
// codespace and code of the rejection.
type TxResult struct {
	Height    clienttypes.Height
	TxHash    string
	Code      uint32
	Codespace string
	Log       string
	Events    []ChainEvent
}

func (r *TxResult) Success() bool {
	return r.Code == 0
}

// Err rebuilds the typed error behind a failed result, or returns nil on success.
func (r *TxResult) Err() error {
	if r.Success() {
		return nil
	}
	err := errorsmod.ABCIError(r.Codespace, r.Code, r.Log)
	if ClassOf(err) == ClassUnknown {
		return errorsmod.Wrapf(ErrSubmission, "codespace=%s code=%d: %s", r.Codespace, r.Code, r.Log)
	}
	return err
}
