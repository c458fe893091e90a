package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Environment variables read by Setup. Metrics are configured separately by the metrics package.
// cf. https://opentelemetry.io/docs/specs/otel/configuration/sdk-environment-variables/
const (
	propagatorsKey     = "OTEL_PROPAGATORS"
	defaultPropagators = "tracecontext,baggage"

	tracesExporterKey     = "OTEL_TRACES_EXPORTER"
	logsExporterKey       = "OTEL_LOGS_EXPORTER"
	defaultTracesExporter = "none"
	defaultLogsExporter   = "none"

	consoleTracesWriterKey     = "OTEL_EXPORTER_CONSOLE_TRACES_WRITER"
	consoleLogsWriterKey       = "OTEL_EXPORTER_CONSOLE_LOGS_WRITER"
	defaultConsoleTracesWriter = "stdout"
	defaultConsoleLogsWriter   = "stdout"
)

// Setup installs the global propagator, tracer provider and logger provider. Exporters are
// picked from OTEL_TRACES_EXPORTER and OTEL_LOGS_EXPORTER, each a comma separated list of
// otlp, console or none. The relayer exports nothing unless asked to.
//
// An unknown value is an error rather than a warning so that typos do not silently disable export.
func Setup(ctx context.Context) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}
	fail := func(inErr error) (func(context.Context) error, error) {
		return nil, errors.Join(inErr, shutdown(ctx))
	}

	prop, err := newPropagator()
	if err != nil {
		return fail(err)
	}
	otel.SetTextMapPropagator(prop)

	tracerProvider, err := newTracerProvider(ctx)
	if err != nil {
		return fail(err)
	}
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	loggerProvider, err := newLoggerProvider(ctx)
	if err != nil {
		return fail(err)
	}
	shutdownFuncs = append(shutdownFuncs, loggerProvider.Shutdown)
	global.SetLoggerProvider(loggerProvider)

	return shutdown, nil
}

func getEnv(envName, defaultValue string) string {
	if v := os.Getenv(envName); v != "" {
		return v
	}
	return defaultValue
}

func exporters(envName, defaultValue string) []string {
	var out []string
	for _, e := range strings.Split(getEnv(envName, defaultValue), ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func getWriter(envName, defaultValue string) (io.Writer, error) {
	switch v := getEnv(envName, defaultValue); v {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return nil, fmt.Errorf("unknown writer: %q from %s", v, envName)
	}
}

func newPropagator() (propagation.TextMapPropagator, error) {
	var propagators []propagation.TextMapPropagator
	for _, p := range exporters(propagatorsKey, defaultPropagators) {
		switch p {
		case "tracecontext":
			propagators = append(propagators, propagation.TraceContext{})
		case "baggage":
			propagators = append(propagators, propagation.Baggage{})
		case "none":
		default:
			return nil, fmt.Errorf("unsupported propagator: %q from %s", p, propagatorsKey)
		}
	}
	return propagation.NewCompositeTextMapPropagator(propagators...), nil
}

func newTracerProvider(ctx context.Context) (*sdktrace.TracerProvider, error) {
	var opts []sdktrace.TracerProviderOption
	for _, exporter := range exporters(tracesExporterKey, defaultTracesExporter) {
		switch exporter {
		case "otlp":
			exp, err := otlptracegrpc.New(ctx)
			if err != nil {
				return nil, err
			}
			opts = append(opts, sdktrace.WithBatcher(exp))
		case "console":
			writer, err := getWriter(consoleTracesWriterKey, defaultConsoleTracesWriter)
			if err != nil {
				return nil, err
			}
			exp, err := stdouttrace.New(stdouttrace.WithWriter(writer))
			if err != nil {
				return nil, err
			}
			opts = append(opts, sdktrace.WithBatcher(exp))
		case "none":
		default:
			return nil, fmt.Errorf("unsupported exporter: %q from %s", exporter, tracesExporterKey)
		}
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func newLoggerProvider(ctx context.Context) (*sdklog.LoggerProvider, error) {
	var opts []sdklog.LoggerProviderOption
	for _, exporter := range exporters(logsExporterKey, defaultLogsExporter) {
		switch exporter {
		case "otlp":
			exp, err := otlploggrpc.New(ctx)
			if err != nil {
				return nil, err
			}
			opts = append(opts, sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)))
		case "console":
			writer, err := getWriter(consoleLogsWriterKey, defaultConsoleLogsWriter)
			if err != nil {
				return nil, err
			}
			exp, err := stdoutlog.New(stdoutlog.WithWriter(writer))
			if err != nil {
				return nil, err
			}
			opts = append(opts, sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)))
		case "none":
		default:
			return nil, fmt.Errorf("unsupported exporter: %q from %s", exporter, logsExporterKey)
		}
	}
	return sdklog.NewLoggerProvider(opts...), nil
}
