package core

import (
	"context"
	"testing"

	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestGetPackageName(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want string
	}{
		{
			name: "pointer to struct",
			v:    &Submitter{},
			want: "github.com/datachainlab/ibc-relayer/core",
		},
		{
			name: "nil",
			v:    nil,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getPackageName(tt.v); got != tt.want {
				t.Errorf("getPackageName() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStartTraceWithQueryContext(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))

	h := clienttypes.NewHeight(1, 42)
	qctx, span := StartTraceWithQueryContext(tp.Tracer("test"), NewQueryContext(context.Background(), h), "Query")
	span.End()

	require.Equal(t, h, qctx.Height())
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	require.Equal(t, "1", attrs["query.height.revision_number"])
	require.Equal(t, "42", attrs["query.height.revision_height"])
}
