package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/datachainlab/ibc-relayer/log"
	"github.com/datachainlab/ibc-relayer/otelcore/semconv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
)

const (
	meterName     = "github.com/datachainlab/ibc-relayer"
	namespaceRoot = "relayer"
)

var (
	mu            sync.RWMutex
	meterProvider *metric.MeterProvider
	promServer    *http.Server

	ProcessedBlockHeightGauge *Int64SyncGauge
	BacklogSizeGauge          *Int64SyncGauge
	RelayedPacketsCounter     api.Int64Counter
	FailedActionsCounter      api.Int64Counter
	HandshakeStepsCounter     api.Int64Counter
	SubmissionsCounter        api.Int64Counter
)

func init() {
	// instruments are usable before InitializeMetrics, they just record nothing
	if err := createInstruments(noop.NewMeterProvider().Meter(meterName)); err != nil {
		panic(err)
	}
}

type ExporterConfig interface {
	exporterType() string
}

type ExporterNull struct{}

func (e ExporterNull) exporterType() string { return "null" }

type ExporterProm struct {
	Addr string
}

func (e ExporterProm) exporterType() string { return "prometheus" }

// ExporterOTLP pushes metrics over OTLP/gRPC, configured by the standard OTEL_EXPORTER_OTLP_* variables.
type ExporterOTLP struct {
	Interval time.Duration
}

func (e ExporterOTLP) exporterType() string { return "otlp" }

// ExporterConsole periodically prints metrics to stdout.
type ExporterConsole struct {
	Interval time.Duration
}

func (e ExporterConsole) exporterType() string { return "console" }

func InitializeMetrics(ctx context.Context, exporterConf ExporterConfig) error {
	var provider *metric.MeterProvider
	switch exporterConf := exporterConf.(type) {
	case ExporterNull:
		provider = metric.NewMeterProvider()
	case ExporterProm:
		exporter, err := NewPrometheusExporter(exporterConf.Addr)
		if err != nil {
			return err
		}
		provider = metric.NewMeterProvider(metric.WithReader(exporter))
	case ExporterOTLP:
		exporter, err := otlpmetricgrpc.New(ctx)
		if err != nil {
			return fmt.Errorf("failed to create the OTLP metric exporter: %v", err)
		}
		provider = metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(exporter, periodicOptions(exporterConf.Interval)...)))
	case ExporterConsole:
		exporter, err := stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create the console metric exporter: %v", err)
		}
		provider = metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(exporter, periodicOptions(exporterConf.Interval)...)))
	default:
		return fmt.Errorf("unexpected exporter type: %T", exporterConf)
	}

	mu.Lock()
	defer mu.Unlock()
	meterProvider = provider
	return createInstruments(meterProvider.Meter(meterName))
}

func periodicOptions(interval time.Duration) []metric.PeriodicReaderOption {
	if interval <= 0 {
		return nil
	}
	return []metric.PeriodicReaderOption{metric.WithInterval(interval)}
}

func createInstruments(meter api.Meter) error {
	var err error

	// create the instrument "relayer.processed_block_height"
	name := fmt.Sprintf("%s.processed_block_height", namespaceRoot)
	if ProcessedBlockHeightGauge, err = NewInt64SyncGauge(
		meter,
		name,
		api.WithUnit("1"),
		api.WithDescription("latest block height observed on the event feed"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.backlog_size"
	name = fmt.Sprintf("%s.backlog_size", namespaceRoot)
	if BacklogSizeGauge, err = NewInt64SyncGauge(
		meter,
		name,
		api.WithUnit("1"),
		api.WithDescription("number of packets buffered and not yet resolved"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.relayed_packets"
	name = fmt.Sprintf("%s.relayed_packets", namespaceRoot)
	if RelayedPacketsCounter, err = meter.Int64Counter(
		name,
		api.WithUnit("1"),
		api.WithDescription("number of packet relay actions submitted, by kind"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.failed_actions"
	name = fmt.Sprintf("%s.failed_actions", namespaceRoot)
	if FailedActionsCounter, err = meter.Int64Counter(
		name,
		api.WithUnit("1"),
		api.WithDescription("number of worker actions that failed after retries, by kind and error class"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.handshake_steps"
	name = fmt.Sprintf("%s.handshake_steps", namespaceRoot)
	if HandshakeStepsCounter, err = meter.Int64Counter(
		name,
		api.WithUnit("1"),
		api.WithDescription("number of connection and channel handshake messages submitted"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.submissions"
	name = fmt.Sprintf("%s.submissions", namespaceRoot)
	if SubmissionsCounter, err = meter.Int64Counter(
		name,
		api.WithUnit("1"),
		api.WithDescription("number of transactions submitted, by status"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	return nil
}

func ShutdownMetrics(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()
	var err error
	if promServer != nil {
		err = errors.Join(err, promServer.Shutdown(ctx))
		promServer = nil
	}
	if meterProvider != nil {
		if shutdownErr := meterProvider.Shutdown(ctx); shutdownErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to shutdown the MeterProvider: %v", shutdownErr))
		}
		meterProvider = nil
	}
	return err
}

// NewPrometheusExporter serves /metrics on addr and returns the exporter feeding it.
func NewPrometheusExporter(addr string) (*prometheus.Exporter, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create the Prometheus Exporter: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", otelhttp.NewHandler(promhttp.Handler(), "metrics"))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	promServer = srv
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.GetLogger().WithModule("metrics").Error("Prometheus exporter server failed", err, "addr", addr)
		}
	}()

	return exporter, nil
}

func RecordSubmission(ctx context.Context, status string, attrs ...attribute.KeyValue) {
	attrs = append(attrs, attribute.String("status", status))
	SubmissionsCounter.Add(ctx, 1, api.WithAttributes(attrs...))
}

func RecordRelayedPacket(ctx context.Context, kind string, attrs ...attribute.KeyValue) {
	attrs = append(attrs, attribute.String("kind", kind))
	RelayedPacketsCounter.Add(ctx, 1, api.WithAttributes(attrs...))
}

func RecordFailedAction(ctx context.Context, kind, class string, attrs ...attribute.KeyValue) {
	attrs = append(attrs, attribute.String("kind", kind), attribute.String("error_class", class))
	FailedActionsCounter.Add(ctx, 1, api.WithAttributes(attrs...))
}

func RecordHandshakeStep(ctx context.Context, step string, attrs ...attribute.KeyValue) {
	attrs = append(attrs, semconv.HandshakeStepKey.String(step))
	HandshakeStepsCounter.Add(ctx, 1, api.WithAttributes(attrs...))
}
