package otelcore_test

import (
	"context"
	"testing"

	sdk "github.com/cosmos/cosmos-sdk/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	"github.com/datachainlab/ibc-relayer/chains/memchain"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/datachainlab/ibc-relayer/otelcore"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestChainRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	inner, err := memchain.New(memchain.DefaultConfig("ibc0"), nil)
	require.NoError(t, err)
	chain := otelcore.NewChain(inner, provider.Tracer("test"))

	ctx := context.Background()
	qctx, err := core.LatestQueryContext(ctx, chain)
	require.NoError(t, err)
	_, err = chain.QueryChannel(qctx, "transfer", "channel-0")
	require.ErrorIs(t, err, core.ErrChannelNotFound)

	res, err := chain.Submit(ctx, []core.Msg{&core.MsgTransfer{
		SourcePort:    "transfer",
		SourceChannel: "channel-0",
		Token:         sdk.NewInt64Coin("samoleans", 1),
		Sender:        "alice",
		Receiver:      "bob",
		TimeoutHeight: clienttypes.NewHeight(0, 10),
	}})
	require.NoError(t, err, "a rejected transaction is not a transport error")
	require.False(t, res.Success())

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	require.Equal(t, "Chain.LatestHeight", spans[0].Name())
	require.Equal(t, codes.Unset, spans[0].Status().Code)
	require.Equal(t, "Chain.QueryChannel", spans[1].Name())
	require.Equal(t, codes.Error, spans[1].Status().Code)
	require.Equal(t, "Chain.Submit", spans[2].Name())
	require.Equal(t, codes.Error, spans[2].Status().Code)

	unwrapped, err := otelcore.UnwrapChain(chain)
	require.NoError(t, err)
	require.Same(t, inner, unwrapped)
	_, err = otelcore.UnwrapChain(inner)
	require.Error(t, err)
}
