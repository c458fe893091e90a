package core

import (
	"fmt"
	"reflect"
	"slices"

	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	"github.com/datachainlab/ibc-relayer/otelcore/semconv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("github.com/datachainlab/ibc-relayer/core")
)

// StartTraceWithQueryContext creates a span and a QueryContext containing the newly-created span.
func StartTraceWithQueryContext(tracer trace.Tracer, ctx QueryContext, spanName string, opts ...trace.SpanStartOption) (QueryContext, trace.Span) {
	opts = append(opts, trace.WithAttributes(semconv.AttributeGroup("query", HeightAttributes(ctx.Height())...)...))
	spanCtx, span := tracer.Start(ctx.Context(), spanName, opts...)
	ctx = NewQueryContext(spanCtx, ctx.Height())
	return ctx, span
}

// HeightAttributes renders h as attributes. Both parts are strings since attributes have no uint64.
func HeightAttributes(h clienttypes.Height) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.HeightRevisionNumberKey.String(fmt.Sprint(h.GetRevisionNumber())),
		semconv.HeightRevisionHeightKey.String(fmt.Sprint(h.GetRevisionHeight())),
	}
}

func WithChainAttributes(chainID string) trace.SpanStartOption {
	return trace.WithAttributes(semconv.ChainIDKey.String(chainID))
}

func WithClientPairAttributes(src, dst *Endpoint) trace.SpanStartOption {
	return trace.WithAttributes(slices.Concat(
		semconv.AttributeGroup("src",
			semconv.ChainIDKey.String(src.ChainID()),
			semconv.ClientIDKey.String(string(src.End.ClientID)),
		),
		semconv.AttributeGroup("dst",
			semconv.ChainIDKey.String(dst.ChainID()),
			semconv.ClientIDKey.String(string(dst.End.ClientID)),
		),
	)...)
}

func WithConnectionPairAttributes(src, dst *Endpoint) trace.SpanStartOption {
	return trace.WithAttributes(slices.Concat(
		semconv.AttributeGroup("src",
			semconv.ChainIDKey.String(src.ChainID()),
			semconv.ClientIDKey.String(string(src.End.ClientID)),
			semconv.ConnectionIDKey.String(string(src.End.ConnectionID)),
		),
		semconv.AttributeGroup("dst",
			semconv.ChainIDKey.String(dst.ChainID()),
			semconv.ClientIDKey.String(string(dst.End.ClientID)),
			semconv.ConnectionIDKey.String(string(dst.End.ConnectionID)),
		),
	)...)
}

func WithChannelPairAttributes(src, dst *Endpoint) trace.SpanStartOption {
	return WithChannelPairAttributesAndKey("src", src, "dst", dst)
}

func WithChannelPairAttributesAndKey(srcKey string, src *Endpoint, dstKey string, dst *Endpoint) trace.SpanStartOption {
	return trace.WithAttributes(slices.Concat(
		semconv.AttributeGroup(srcKey,
			semconv.ChainIDKey.String(src.ChainID()),
			semconv.PortIDKey.String(string(src.End.PortID)),
			semconv.ChannelIDKey.String(string(src.End.ChannelID)),
		),
		semconv.AttributeGroup(dstKey,
			semconv.ChainIDKey.String(dst.ChainID()),
			semconv.PortIDKey.String(string(dst.End.PortID)),
			semconv.ChannelIDKey.String(string(dst.End.ChannelID)),
		),
	)...)
}

// withPackage adds the package name of the function/method `v`
func withPackage(v any) trace.SpanStartOption {
	return trace.WithAttributes(attribute.Key("package").String(getPackageName(v)))
}

func getPackageName(v any) string {
	if v == nil {
		return ""
	}

	rt := reflect.TypeOf(v)
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	return rt.PkgPath()
}
