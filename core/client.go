package core

import (
	"context"
	"errors"
	"time"

	errorsmod "cosmossdk.io/errors"
	retry "github.com/avast/retry-go"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	"github.com/datachainlab/ibc-relayer/log"
	"github.com/datachainlab/ibc-relayer/otelcore/semconv"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ForeignClient is a light client of Target hosted on Host. Host.End.ClientID names it
// once it exists.
type ForeignClient struct {
	pathName string
	Host     *Endpoint
	Target   *Endpoint
}

func NewForeignClient(pathName string, host, target *Endpoint) *ForeignClient {
	return &ForeignClient{pathName: pathName, Host: host, Target: target}
}

func (fc *ForeignClient) ClientID() ClientID {
	return fc.Host.End.ClientID
}

func (fc *ForeignClient) logger() *log.RelayLogger {
	return log.GetLogger().
		WithClientPair(
			fc.Host.ChainID(), string(fc.Host.End.ClientID),
			fc.Target.ChainID(), string(fc.Target.End.ClientID),
		).
		WithModule("core.client")
}

func (fc *ForeignClient) spanOptions() trace.SpanStartOption {
	return trace.WithAttributes(
		semconv.ChainIDKey.String(fc.Host.ChainID()),
		semconv.ClientIDKey.String(string(fc.Host.End.ClientID)),
	)
}

// exists reports whether the configured client is present on the host.
func (fc *ForeignClient) exists(ctx context.Context) (bool, error) {
	if fc.ClientID() == "" {
		return false, nil
	}
	qctx, err := LatestQueryContext(ctx, fc.Host.Chain)
	if err != nil {
		return false, err
	}
	if _, err := fc.Host.Chain.QueryClientState(qctx, fc.ClientID()); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// BuildCreate returns the message creating the client from Target's latest header,
// or nil if the client already exists.
func (fc *ForeignClient) BuildCreate(ctx context.Context) (Msg, error) {
	var found bool
	if err := retry.Do(func() error {
		var err error
		found, err = fc.exists(ctx)
		return err
	}, rtyAtt, rtyDel, rtyErr, retry.Context(ctx), retry.RetryIf(IsRetryable)); err != nil {
		return nil, err
	}
	if found {
		return nil, nil
	}

	var header *Header
	if err := retry.Do(func() error {
		var err error
		header, err = fc.Target.Chain.QueryLatestHeader(ctx)
		return err
	}, rtyAtt, rtyDel, rtyErr, retry.Context(ctx), retry.RetryIf(IsRetryable)); err != nil {
		return nil, errorsmod.Wrapf(ErrClientCreationFailed, "failed to query the latest header of %s: %v", fc.Target.ChainID(), err)
	}
	cs, err := NewClientState(header, fc.Host.ClientSettings)
	if err != nil {
		return nil, errorsmod.Wrapf(ErrClientCreationFailed, "%v", err)
	}
	return &MsgCreateClient{
		ClientState:    cs,
		ConsensusState: header.ConsensusState(),
		Signer:         fc.Host.Signer(),
	}, nil
}

// Create creates the client on Host unless it already exists, and records the new identifier.
func (fc *ForeignClient) Create(ctx context.Context) (ClientID, error) {
	ctx, span := tracer.Start(ctx, "ForeignClient.Create", fc.spanOptions())
	defer span.End()
	logger := fc.logger()
	defer logger.TimeTrackContext(ctx, time.Now(), "ForeignClient.Create")

	msg, err := fc.BuildCreate(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to build create client msg", err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if msg == nil {
		logger.DebugContext(ctx, "client already exists")
		return fc.ClientID(), nil
	}

	res, err := fc.Host.Submit(ctx, []Msg{msg})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", errorsmod.Wrapf(ErrClientCreationFailed, "%v", err)
	}
	// an existing configured id is not replaced by a new one
	fc.Host.End.ClientID = ""
	if err := SyncPathEndFromEvents(fc.pathName, fc.Host, res.Events); err != nil {
		return "", err
	}
	if fc.ClientID() == "" {
		return "", errorsmod.Wrap(ErrClientCreationFailed, "no client identifier in the create client result")
	}
	logger.InfoContext(ctx, "★ Client created", "client_id", fc.ClientID())
	return fc.ClientID(), nil
}

// Status evaluates the client against the host's current time.
func (fc *ForeignClient) Status(ctx context.Context) (ClientStatus, error) {
	cs, cons, now, err := fc.queryClient(ctx)
	if err != nil {
		return "", err
	}
	return cs.Status(cons, now), nil
}

func (fc *ForeignClient) queryClient(ctx context.Context) (*ClientState, *ConsensusState, time.Time, error) {
	hostHeader, err := fc.Host.Chain.QueryLatestHeader(ctx)
	if err != nil {
		return nil, nil, time.Time{}, err
	}
	qctx := NewQueryContext(ctx, hostHeader.Height)
	cs, err := fc.Host.Chain.QueryClientState(qctx, fc.ClientID())
	if err != nil {
		return nil, nil, time.Time{}, err
	}
	cons, err := fc.Host.Chain.QueryConsensusState(qctx, fc.ClientID(), cs.LatestHeight)
	if err != nil && !IsNotFound(err) {
		return nil, nil, time.Time{}, err
	}
	return cs, cons, hostHeader.Time, nil
}

// BuildUpdate returns the message advancing the client to Target's latest header.
// It returns nil if the client is already at or beyond that height.
func (fc *ForeignClient) BuildUpdate(ctx context.Context) ([]Msg, error) {
	cs, err := fc.checkActive(ctx)
	if err != nil {
		return nil, err
	}
	header, err := fc.Target.Chain.QueryLatestHeader(ctx)
	if err != nil {
		return nil, err
	}
	if header.Height.LTE(cs.LatestHeight) {
		return nil, nil
	}
	return fc.updateMsgs(cs, header), nil
}

// BuildUpdateTo returns the message that makes the client hold a consensus state at height,
// as needed to verify a proof made at that height. It returns nil if one is already stored.
func (fc *ForeignClient) BuildUpdateTo(ctx context.Context, height clienttypes.Height) ([]Msg, error) {
	cs, err := fc.checkActive(ctx)
	if err != nil {
		return nil, err
	}
	qctx, err := LatestQueryContext(ctx, fc.Host.Chain)
	if err != nil {
		return nil, err
	}
	if _, err := fc.Host.Chain.QueryConsensusState(qctx, fc.ClientID(), height); err == nil {
		return nil, nil
	} else if !IsNotFound(err) {
		return nil, err
	}
	if height.LTE(cs.LatestHeight) {
		// the client moved past height in the meantime; a fresh proof will do
		return nil, errorsmod.Wrapf(ErrQuery, "client %s is at %s, past proof height %s", fc.ClientID(), cs.LatestHeight, height)
	}
	header, err := fc.Target.Chain.QueryHeader(ctx, height)
	if err != nil {
		return nil, err
	}
	return fc.updateMsgs(cs, header), nil
}

func (fc *ForeignClient) checkActive(ctx context.Context) (*ClientState, error) {
	if err := fc.ClientID().Validate(); err != nil {
		return nil, errorsmod.Wrapf(err, "client of %s on %s is not created", fc.Target.ChainID(), fc.Host.ChainID())
	}
	cs, cons, now, err := fc.queryClient(ctx)
	if err != nil {
		return nil, err
	}
	switch cs.Status(cons, now) {
	case ClientFrozen:
		return nil, errorsmod.Wrapf(ErrClientFrozen, "client %s on %s", fc.ClientID(), fc.Host.ChainID())
	case ClientExpired:
		return nil, errorsmod.Wrapf(ErrClientExpired, "client %s on %s", fc.ClientID(), fc.Host.ChainID())
	}
	return cs, nil
}

func (fc *ForeignClient) updateMsgs(cs *ClientState, header *Header) []Msg {
	h := *header
	h.TrustedHeight = cs.LatestHeight
	return []Msg{&MsgUpdateClient{
		ClientID: fc.ClientID(),
		Header:   &h,
		Signer:   fc.Host.Signer(),
	}}
}

// Update advances the client to Target's latest header. It is a no-op if the client is
// already current. A header the host refuses surfaces as ErrUntrustedHeader or ErrClientExpired.
func (fc *ForeignClient) Update(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "ForeignClient.Update", fc.spanOptions())
	defer span.End()
	logger := fc.logger()

	var msgs []Msg
	if err := retry.Do(func() error {
		var err error
		msgs, err = fc.BuildUpdate(ctx)
		return err
	}, rtyAtt, rtyDel, rtyErr, retry.Context(ctx), retry.RetryIf(IsRetryable)); err != nil {
		logger.ErrorContext(ctx, "failed to build update client msg", err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if _, err := fc.Host.Submit(ctx, msgs); err != nil {
		if errors.Is(err, ErrRedundantMsg) {
			return nil
		}
		logger.ErrorContext(ctx, "failed to update client", err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	logger.InfoContext(ctx, "★ Client updated", "height", msgs[0].(*MsgUpdateClient).Header.Height.String())
	return nil
}

// CreateClients creates the client of dst on src and the client of src on dst, skipping
// either one that already exists.
func CreateClients(ctx context.Context, pathName string, src, dst *Endpoint) error {
	ctx, span := tracer.Start(ctx, "CreateClients", WithClientPairAttributes(src, dst))
	defer span.End()
	logger := GetClientPairLogger(src, dst)
	defer logger.TimeTrackContext(ctx, time.Now(), "CreateClients")

	srcClient := NewForeignClient(pathName, src, dst)
	dstClient := NewForeignClient(pathName, dst, src)

	clients := NewRelayMsgs()
	if msg, err := srcClient.BuildCreate(ctx); err != nil {
		logger.ErrorContext(ctx, "failed to build create client msg", err, "host", src.ChainID())
		span.SetStatus(codes.Error, err.Error())
		return err
	} else if msg != nil {
		clients.Src = append(clients.Src, msg)
	}
	if msg, err := dstClient.BuildCreate(ctx); err != nil {
		logger.ErrorContext(ctx, "failed to build create client msg", err, "host", dst.ChainID())
		span.SetStatus(codes.Error, err.Error())
		return err
	} else if msg != nil {
		clients.Dst = append(clients.Dst, msg)
	}

	if !clients.Ready() {
		logger.InfoContext(ctx, "clients already exist")
		return nil
	}
	if len(clients.Src) > 0 {
		src.End.ClientID = ""
	}
	if len(clients.Dst) > 0 {
		dst.End.ClientID = ""
	}
	clients.Send(ctx, src, dst)
	if !clients.Success() {
		span.SetStatus(codes.Error, clients.Err.Error())
		return errorsmod.Wrapf(ErrClientCreationFailed, "%v", clients.Err)
	}
	if err := SyncPathEndFromEvents(pathName, src, clients.SrcEvents); err != nil {
		return err
	}
	if err := SyncPathEndFromEvents(pathName, dst, clients.DstEvents); err != nil {
		return err
	}
	logger.InfoContext(ctx, "★ Clients created", "src_client_id", src.End.ClientID, "dst_client_id", dst.End.ClientID)
	return nil
}

// UpdateClients brings both clients of the pair up to date with their targets.
func UpdateClients(ctx context.Context, src, dst *Endpoint) error {
	ctx, span := tracer.Start(ctx, "UpdateClients", WithClientPairAttributes(src, dst))
	defer span.End()
	logger := GetClientPairLogger(src, dst)
	defer logger.TimeTrackContext(ctx, time.Now(), "UpdateClients")

	clients := NewRelayMsgs()
	msgs, err := NewForeignClient("", src, dst).BuildUpdate(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to build update client msg", err, "host", src.ChainID())
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	clients.Src = append(clients.Src, msgs...)
	if msgs, err = NewForeignClient("", dst, src).BuildUpdate(ctx); err != nil {
		logger.ErrorContext(ctx, "failed to build update client msg", err, "host", dst.ChainID())
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	clients.Dst = append(clients.Dst, msgs...)

	if clients.Ready() {
		if clients.Send(ctx, src, dst); !clients.Success() {
			span.SetStatus(codes.Error, clients.Err.Error())
			return clients.Err
		}
		logger.InfoContext(ctx, "★ Clients updated")
	}
	return nil
}

func GetClientPairLogger(src, dst *Endpoint) *log.RelayLogger {
	return log.GetLogger().
		WithClientPair(
			src.ChainID(), string(src.End.ClientID),
			dst.ChainID(), string(dst.End.ClientID),
		).
		WithModule("core.client")
}
